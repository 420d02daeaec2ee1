package composer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/altchat/composer/internal/attachment"
	"github.com/altchat/composer/internal/common"
	"github.com/altchat/composer/internal/logging"
	"github.com/altchat/composer/internal/notify"
	"github.com/altchat/composer/internal/policy"
	"github.com/altchat/composer/internal/validation"
)

type fakeUploader struct {
	mu          sync.Mutex
	uploadCalls int
	uploaded    [][]UploadItem
	deleted     []UploadItem
	deleteErr   error
	batchErr    error
	failFirst   bool
	block       chan struct{}
}

func (f *fakeUploader) Upload(ctx context.Context, items []UploadItem) ([]UploadResult, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadCalls++
	f.uploaded = append(f.uploaded, items)
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	results := make([]UploadResult, 0, len(items))
	for _, it := range items {
		if f.failFirst && f.uploadCalls == 1 {
			results = append(results, UploadResult{
				FileID:      it.File.ID,
				State:       StateError,
				ErrorReason: ReasonOther,
				ErrorExtra:  map[string]any{"error": "boom"},
			})
			continue
		}
		results = append(results, UploadResult{
			FileID: it.File.ID,
			State:  StateSuccess,
			URL:    "https://cdn.example.com/" + it.File.Name,
		})
	}
	return results, nil
}

func (f *fakeUploader) Delete(ctx context.Context, item UploadItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, item)
	return f.deleteErr
}

func (f *fakeUploader) deletedItems() []UploadItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]UploadItem(nil), f.deleted...)
}

type recordingNotifier struct {
	mu        sync.Mutex
	events    []string
	dismissed int
}

func (r *recordingNotifier) Temporary(key string, _ notify.Severity, _ notify.Params) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, key)
}

func (r *recordingNotifier) Permanent(key string, _ notify.Severity, _ notify.Params) notify.DismissFunc {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, key)
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.dismissed++
	}
}

func (r *recordingNotifier) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func newTestManager(t *testing.T, up Uploader, pol policy.UploadPolicy, n notify.Notifier, maxAttachments int) *Manager {
	t.Helper()
	log := logging.NewSlogLogger(slog.Default())
	v := validation.NewValidator(policy.Static{Policy: pol}, n, log)
	m, err := NewManager(Config{
		Uploader:       up,
		Validator:      v,
		Notifier:       n,
		Logger:         log,
		MaxAttachments: maxAttachments,
		Preview: func(ctx context.Context, f File) (string, error) {
			return "data:preview/" + f.Name, nil
		},
	})
	require.NoError(t, err)
	return m
}

func TestSubmitFiles_UploadsBatchAndCounts(t *testing.T) {
	up := &fakeUploader{}
	m := newTestManager(t, up, policy.UploadPolicy{}, &recordingNotifier{}, 0)

	files := []File{
		NewFile("a.pdf", "application/pdf", []byte("aa")),
		NewFile("b.mp4", "video/mp4", []byte("bb")),
	}
	require.NoError(t, m.SubmitFiles(context.Background(), files))
	m.Wait()

	snap := m.Snapshot()
	require.Len(t, snap.Items, 2)
	require.Equal(t, 2, snap.AttachmentCount)
	require.Zero(t, snap.InFlight)

	require.Equal(t, attachment.KindFile, snap.Items[0].Kind)
	require.Equal(t, attachment.KindVideo, snap.Items[1].Kind)
	for _, it := range snap.Items {
		require.Equal(t, StateSuccess, it.State)
		require.Equal(t, "https://cdn.example.com/"+it.File.Name, it.URL)
	}
}

func TestSubmitFiles_RejectsWholeBatchOverLimit(t *testing.T) {
	up := &fakeUploader{}
	rec := &recordingNotifier{}
	m := newTestManager(t, up, policy.UploadPolicy{}, rec, 3)

	require.NoError(t, m.SubmitFiles(context.Background(), []File{
		NewFile("one.pdf", "application/pdf", []byte("1")),
		NewFile("two.pdf", "application/pdf", []byte("2")),
	}))
	m.Wait()
	require.Equal(t, 2, m.Snapshot().AttachmentCount)

	err := m.SubmitFiles(context.Background(), []File{
		NewFile("three.pdf", "application/pdf", []byte("3")),
		NewFile("four.pdf", "application/pdf", []byte("4")),
	})
	require.ErrorIs(t, err, common.ErrAttachmentLimitExceeded)

	// No partial admission: state is unchanged.
	m.Wait()
	snap := m.Snapshot()
	require.Len(t, snap.Items, 2)
	require.Contains(t, rec.keys(), notify.KeyAttachmentLimitExceeded)

	// A batch that fits again is admitted and dismisses the limit notice.
	require.NoError(t, m.SubmitFiles(context.Background(), []File{
		NewFile("three.pdf", "application/pdf", []byte("3")),
	}))
	m.Wait()
	require.Equal(t, 1, rec.dismissed)
}

func TestSubmitFiles_ValidationRejectsEntireBatch(t *testing.T) {
	up := &fakeUploader{}
	m := newTestManager(t, up, policy.UploadPolicy{
		File: policy.Branch{BlockedFileExtensions: []string{".exe"}},
	}, &recordingNotifier{}, 0)

	err := m.SubmitFiles(context.Background(), []File{
		NewFile("fine.txt", "text/plain", []byte("ok")),
		NewFile("bad.exe", "application/octet-stream", []byte("no")),
	})
	require.ErrorIs(t, err, common.ErrValidationFailed)

	m.Wait()
	require.Empty(t, m.Snapshot().Items)
	require.Zero(t, up.uploadCalls)
}

func TestSubmitFiles_GeneratesPreviewForImages(t *testing.T) {
	up := &fakeUploader{}
	m := newTestManager(t, up, policy.UploadPolicy{}, &recordingNotifier{}, 0)

	img := NewFile("pic.png", "image/png", []byte("png"))
	doc := NewFile("doc.pdf", "application/pdf", []byte("pdf"))
	require.NoError(t, m.SubmitFiles(context.Background(), []File{img, doc}))
	m.Wait()

	snap := m.Snapshot()
	require.Equal(t, "data:preview/pic.png", snap.Items[0].PreviewURI)
	require.Empty(t, snap.Items[1].PreviewURI)
}

func TestSubmitFiles_PreviewFailureDoesNotBlockUpload(t *testing.T) {
	up := &fakeUploader{}
	log := logging.NewSlogLogger(slog.Default())
	v := validation.NewValidator(policy.Static{}, notify.Discard(), log)
	m, err := NewManager(Config{
		Uploader:  up,
		Validator: v,
		Logger:    log,
		Preview: func(ctx context.Context, f File) (string, error) {
			return "", errors.New("decode failed")
		},
	})
	require.NoError(t, err)

	require.NoError(t, m.SubmitFiles(context.Background(), []File{
		NewFile("broken.png", "image/png", []byte("x")),
	}))
	m.Wait()

	snap := m.Snapshot()
	require.Equal(t, StateSuccess, snap.Items[0].State)
	require.Empty(t, snap.Items[0].PreviewURI)
}

func TestSubmitVoiceRecording(t *testing.T) {
	up := &fakeUploader{}
	m := newTestManager(t, up, policy.UploadPolicy{}, &recordingNotifier{}, 0)

	rec := VoiceRecording{
		Name:       "memo.aac",
		Data:       []byte("audio"),
		Duration:   4.2,
		Waveform:   []float64{0.1, 0.9, 0.4},
		PreviewURI: "blob:memo",
	}
	require.NoError(t, m.SubmitVoiceRecording(context.Background(), rec))
	m.Wait()

	snap := m.Snapshot()
	require.Len(t, snap.Items, 1)
	it := snap.Items[0]
	require.Equal(t, attachment.KindVoiceRecording, it.Kind)
	require.Equal(t, StateSuccess, it.State)
	require.Equal(t, "blob:memo", it.PreviewURI)
	require.Equal(t, 4.2, it.Duration)

	out := m.OutgoingAttachments()
	require.Len(t, out, 1)
	require.Equal(t, string(attachment.KindVoiceRecording), out[0].Type)
	require.Equal(t, 4.2, out[0].Duration)
	require.Equal(t, []float64{0.1, 0.9, 0.4}, out[0].WaveformData)
}

func TestUploadFailureThenRetry(t *testing.T) {
	up := &fakeUploader{failFirst: true}
	rec := &recordingNotifier{}
	m := newTestManager(t, up, policy.UploadPolicy{}, rec, 0)

	a := NewFile("a.pdf", "application/pdf", []byte("a"))
	require.NoError(t, m.SubmitFiles(context.Background(), []File{a}))
	m.Wait()

	snap := m.Snapshot()
	require.Equal(t, StateError, snap.Items[0].State)
	require.Equal(t, ReasonOther, snap.Items[0].ErrorReason)
	require.Equal(t, 0, snap.AttachmentCount)
	require.Contains(t, rec.keys(), notify.KeyUploadFailed)

	m.RetryUpload(context.Background(), a)
	m.Wait()

	snap = m.Snapshot()
	require.Equal(t, StateSuccess, snap.Items[0].State)
	require.Empty(t, snap.Items[0].ErrorReason)
	require.Equal(t, 1, snap.AttachmentCount)
	require.Equal(t, 2, up.uploadCalls)
}

func TestRetryUpload_UnknownFileIsNoop(t *testing.T) {
	up := &fakeUploader{}
	m := newTestManager(t, up, policy.UploadPolicy{}, &recordingNotifier{}, 0)

	m.RetryUpload(context.Background(), NewFile("ghost.pdf", "application/pdf", nil))
	m.Wait()
	require.Zero(t, up.uploadCalls)
}

func TestRetryUpload_LeavesOtherItemsUntouched(t *testing.T) {
	up := &fakeUploader{failFirst: true}
	m := newTestManager(t, up, policy.UploadPolicy{}, &recordingNotifier{}, 0)

	a := NewFile("a.pdf", "application/pdf", []byte("a"))
	require.NoError(t, m.SubmitFiles(context.Background(), []File{a}))
	m.Wait()

	b := NewFile("b.pdf", "application/pdf", []byte("b"))
	require.NoError(t, m.SubmitFiles(context.Background(), []File{b}))
	m.Wait()

	m.RetryUpload(context.Background(), a)
	m.Wait()

	snap := m.Snapshot()
	require.Len(t, snap.Items, 2)
	require.Equal(t, a.ID, snap.Items[0].File.ID)
	require.Equal(t, StateSuccess, snap.Items[0].State)
	require.Equal(t, b.ID, snap.Items[1].File.ID)
	require.Equal(t, StateSuccess, snap.Items[1].State)
	require.Equal(t, 2, snap.AttachmentCount)
}

func TestDeleteUpload_RemoteFailureKeepsItem(t *testing.T) {
	up := &fakeUploader{deleteErr: errors.New("remote delete failed")}
	rec := &recordingNotifier{}
	m := newTestManager(t, up, policy.UploadPolicy{}, rec, 0)

	files := []File{
		NewFile("keep.pdf", "application/pdf", []byte("k")),
		NewFile("drop.pdf", "application/pdf", []byte("d")),
	}
	require.NoError(t, m.SubmitFiles(context.Background(), files))
	m.Wait()

	target, _ := m.store.Get(files[1].ID)
	require.Error(t, m.DeleteUpload(context.Background(), target))

	// Item retained, identity and order preserved.
	snap := m.Snapshot()
	require.Len(t, snap.Items, 2)
	require.Equal(t, files[0].ID, snap.Items[0].File.ID)
	require.Equal(t, files[1].ID, snap.Items[1].File.ID)
	require.Contains(t, rec.keys(), notify.KeyDeleteFailed)
}

func TestDeleteUpload_SuccessItemDeletesRemotely(t *testing.T) {
	up := &fakeUploader{}
	m := newTestManager(t, up, policy.UploadPolicy{}, &recordingNotifier{}, 0)

	f := NewFile("gone.pdf", "application/pdf", []byte("g"))
	require.NoError(t, m.SubmitFiles(context.Background(), []File{f}))
	m.Wait()

	item, _ := m.store.Get(f.ID)
	require.NoError(t, m.DeleteUpload(context.Background(), item))

	require.Empty(t, m.Snapshot().Items)
	require.Len(t, up.deletedItems(), 1)
}

func TestDeleteUpload_ErrorItemSkipsRemoteDelete(t *testing.T) {
	up := &fakeUploader{failFirst: true}
	m := newTestManager(t, up, policy.UploadPolicy{}, &recordingNotifier{}, 0)

	f := NewFile("failed.pdf", "application/pdf", []byte("f"))
	require.NoError(t, m.SubmitFiles(context.Background(), []File{f}))
	m.Wait()

	item, _ := m.store.Get(f.ID)
	require.NoError(t, m.DeleteUpload(context.Background(), item))

	require.Empty(t, m.Snapshot().Items)
	require.Empty(t, up.deletedItems())
}

func TestReset_ClearsStateAndCleansOrphans(t *testing.T) {
	up := &fakeUploader{block: make(chan struct{})}
	m := newTestManager(t, up, policy.UploadPolicy{}, &recordingNotifier{}, 0)

	require.NoError(t, m.SubmitFiles(context.Background(), []File{
		NewFile("late.pdf", "application/pdf", []byte("l")),
	}))
	m.AddCustomAttachment(attachment.Attachment{Type: "poll", Extra: map[string]any{"id": "p1"}})

	m.Reset()
	snap := m.Snapshot()
	require.Empty(t, snap.Items)
	require.Empty(t, snap.Custom)

	// The in-flight batch finishes against the empty list: its uploaded
	// asset no longer matches anything and gets a cleanup delete.
	close(up.block)
	m.Wait()

	deleted := up.deletedItems()
	require.Len(t, deleted, 1)
	require.Equal(t, "https://cdn.example.com/late.pdf", deleted[0].URL)
	require.Empty(t, m.Snapshot().Items)
}

func TestInFlightCounterSumsOutstandingBatches(t *testing.T) {
	up := &fakeUploader{block: make(chan struct{})}
	m := newTestManager(t, up, policy.UploadPolicy{}, &recordingNotifier{}, 0)

	require.NoError(t, m.SubmitFiles(context.Background(), []File{
		NewFile("a.pdf", "application/pdf", []byte("a")),
	}))
	require.NoError(t, m.SubmitFiles(context.Background(), []File{
		NewFile("b.pdf", "application/pdf", []byte("b")),
	}))

	waitSnapshot(t, m, func(s Snapshot) bool { return s.InFlight == 2 })

	close(up.block)
	m.Wait()
	require.Zero(t, m.Snapshot().InFlight)
}

// waitSnapshot subscribes and blocks until the predicate holds.
func waitSnapshot(t *testing.T, m *Manager, ok func(Snapshot) bool) {
	t.Helper()
	ch, cancel := m.Subscribe()
	defer cancel()
	for snap := range ch {
		if ok(snap) {
			return
		}
	}
	t.Fatal("subscription closed before condition held")
}

func TestOutgoingAttachments_ShapesAndOrder(t *testing.T) {
	up := &fakeUploader{}
	m := newTestManager(t, up, policy.UploadPolicy{}, &recordingNotifier{}, 0)

	img := NewFile("photo.png", "image/png", []byte("img"))
	doc := NewFile("report.pdf", "application/pdf", make([]byte, 42))
	require.NoError(t, m.SubmitFiles(context.Background(), []File{img, doc}))
	m.Wait()

	custom := attachment.Attachment{Type: "location", Extra: map[string]any{"lat": 1.0}}
	m.AddCustomAttachment(custom)

	out := m.OutgoingAttachments()
	require.Len(t, out, 3)

	require.Equal(t, "image", out[0].Type)
	require.Equal(t, "https://cdn.example.com/photo.png", out[0].ImageURL)
	require.Equal(t, "photo.png", out[0].Fallback)
	require.Empty(t, out[0].AssetURL)

	require.Equal(t, "file", out[1].Type)
	require.Equal(t, "https://cdn.example.com/report.pdf", out[1].AssetURL)
	require.Equal(t, "report.pdf", out[1].Title)
	require.Equal(t, int64(42), out[1].FileSize)

	// Customs come last, verbatim.
	require.Equal(t, custom, out[2])
}

func TestOutgoingAttachments_SkipsNonSuccessItems(t *testing.T) {
	up := &fakeUploader{failFirst: true}
	m := newTestManager(t, up, policy.UploadPolicy{}, &recordingNotifier{}, 0)

	require.NoError(t, m.SubmitFiles(context.Background(), []File{
		NewFile("broken.pdf", "application/pdf", []byte("x")),
	}))
	m.Wait()

	require.Empty(t, m.OutgoingAttachments())
}

func TestOutgoingSeedRoundTrip(t *testing.T) {
	up := &fakeUploader{}
	m := newTestManager(t, up, policy.UploadPolicy{}, &recordingNotifier{}, 0)

	require.NoError(t, m.SubmitFiles(context.Background(), []File{
		NewFile("photo.png", "image/png", []byte("img")),
		NewFile("clip.mp4", "video/mp4", []byte("vid")),
	}))
	require.NoError(t, m.SubmitVoiceRecording(context.Background(), VoiceRecording{
		Name: "memo.aac", Data: []byte("a"), Duration: 2.5, Waveform: []float64{0.5},
	}))
	m.Wait()

	sent := m.OutgoingAttachments()
	require.Len(t, sent, 3)

	// Seed a fresh session from the sent message, as the edit flow does.
	m2 := newTestManager(t, &fakeUploader{}, policy.UploadPolicy{}, &recordingNotifier{}, 0)
	m2.SeedFromAttachments(sent)

	snap := m2.Snapshot()
	require.Len(t, snap.Items, 3)
	require.Equal(t, 3, snap.AttachmentCount)

	require.Equal(t, attachment.KindImage, snap.Items[0].Kind)
	require.Equal(t, "https://cdn.example.com/photo.png", snap.Items[0].URL)
	require.Equal(t, attachment.KindVideo, snap.Items[1].Kind)
	require.Equal(t, attachment.KindVoiceRecording, snap.Items[2].Kind)
	require.Equal(t, 2.5, snap.Items[2].Duration)
	for _, it := range snap.Items {
		require.Equal(t, StateSuccess, it.State)
		require.NotNil(t, it.Source)
	}

	// Re-sending reproduces the original wire shapes via the source
	// attachments.
	require.Equal(t, sent, m2.OutgoingAttachments())
}

func TestSeedFromAttachments_PartitionsCustoms(t *testing.T) {
	m := newTestManager(t, &fakeUploader{}, policy.UploadPolicy{}, &recordingNotifier{}, 0)

	m.SeedFromAttachments([]attachment.Attachment{
		{Type: "file", AssetURL: "https://cdn/x.pdf", Title: "x.pdf"},
		{Type: "giphy", Extra: map[string]any{"id": "g1"}},
	})

	snap := m.Snapshot()
	require.Len(t, snap.Items, 1)
	require.Len(t, snap.Custom, 1)
	require.Equal(t, "giphy", snap.Custom[0].Type)
	require.Equal(t, 2, snap.AttachmentCount)
}

func TestSeedFromAttachments_ImageURLFallbackOrder(t *testing.T) {
	m := newTestManager(t, &fakeUploader{}, policy.UploadPolicy{}, &recordingNotifier{}, 0)

	m.SeedFromAttachments([]attachment.Attachment{
		{Type: "image", ThumbURL: "https://cdn/thumb.png"},
	})

	snap := m.Snapshot()
	require.Equal(t, "https://cdn/thumb.png", snap.Items[0].URL)
}

func TestDeleteUpload_CustomSourcedItemSkipsRemoteDelete(t *testing.T) {
	up := &fakeUploader{}
	m := newTestManager(t, up, policy.UploadPolicy{}, &recordingNotifier{}, 0)

	// An item whose source the classifier calls custom must not trigger a
	// remote delete even in success state.
	src := attachment.Attachment{Type: "file", AssetURL: "https://cdn/x.pdf"}
	item := itemFromWire(src)
	m.store.Append(item)

	custom := attachment.ClassifierFunc(func(attachment.Attachment) bool { return true })
	m.classifier = custom

	require.NoError(t, m.DeleteUpload(context.Background(), item))
	require.Empty(t, up.deletedItems())
	require.Empty(t, m.Snapshot().Items)
}

func TestBatchErrorMarksAllItems(t *testing.T) {
	up := &fakeUploader{batchErr: errors.New("network down")}
	rec := &recordingNotifier{}
	m := newTestManager(t, up, policy.UploadPolicy{}, rec, 0)

	require.NoError(t, m.SubmitFiles(context.Background(), []File{
		NewFile("a.pdf", "application/pdf", []byte("a")),
		NewFile("b.pdf", "application/pdf", []byte("b")),
	}))
	m.Wait()

	snap := m.Snapshot()
	for _, it := range snap.Items {
		require.Equal(t, StateError, it.State)
		require.Equal(t, ReasonOther, it.ErrorReason)
	}
	require.Zero(t, snap.AttachmentCount)
}

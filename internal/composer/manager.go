package composer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/altchat/composer/internal/attachment"
	"github.com/altchat/composer/internal/common"
	"github.com/altchat/composer/internal/composer/preview"
	"github.com/altchat/composer/internal/logging"
	"github.com/altchat/composer/internal/notify"
	"github.com/altchat/composer/internal/validation"
)

// DefaultMaxAttachments is the admission ceiling on successful uploads plus
// custom attachments. Applications may lower it, never raise it.
const DefaultMaxAttachments = 30

// UploadResult is the per-item outcome reported by an Uploader, joined back
// to state by file identity (result order is not significant).
type UploadResult struct {
	FileID      string
	State       State
	URL         string
	ThumbURL    string
	ErrorReason ErrorReason
	ErrorExtra  map[string]any
}

// Uploader performs the actual network upload of a batch and deletes remote
// assets. Upload returns one result per input item; a batch-level error means
// no item produced a result. There is no cancellation: once dispatched, a
// batch runs to completion.
type Uploader interface {
	Upload(ctx context.Context, items []UploadItem) ([]UploadResult, error)
	Delete(ctx context.Context, item UploadItem) error
}

// PreviewFunc builds a local displayable representation (e.g. a data URI)
// for an image file. Failures are logged, never surfaced.
type PreviewFunc func(ctx context.Context, f File) (string, error)

// Config wires a Manager's collaborators. Uploader and Validator are
// required; everything else has a sensible default.
type Config struct {
	Uploader   Uploader
	Validator  *validation.Validator
	Notifier   notify.Notifier
	Classifier attachment.Classifier
	Preview    PreviewFunc
	Logger     logging.Logger

	// MaxAttachments lowers the admission limit below
	// DefaultMaxAttachments; larger values are clamped.
	MaxAttachments int
}

// Manager owns the upload state of one message-composition session.
type Manager struct {
	store      *Store
	uploader   Uploader
	validator  *validation.Validator
	notifier   notify.Notifier
	classifier attachment.Classifier
	preview    PreviewFunc
	max        int
	log        logging.Logger

	wg sync.WaitGroup

	limitMu      sync.Mutex
	limitDismiss notify.DismissFunc
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Uploader == nil {
		return nil, fmt.Errorf("composer: uploader is required")
	}
	if cfg.Validator == nil {
		return nil, fmt.Errorf("composer: validator is required")
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Discard()
	}
	if cfg.Classifier == nil {
		cfg.Classifier = attachment.DefaultClassifier()
	}
	if cfg.Preview == nil {
		cfg.Preview = func(ctx context.Context, f File) (string, error) {
			return preview.Generate(ctx, f.MIMEType, f.Data)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewSlogLogger(slog.Default())
	}
	max := cfg.MaxAttachments
	if max <= 0 || max > DefaultMaxAttachments {
		max = DefaultMaxAttachments
	}

	return &Manager{
		store:      NewStore(),
		uploader:   cfg.Uploader,
		validator:  cfg.Validator,
		notifier:   cfg.Notifier,
		classifier: cfg.Classifier,
		preview:    cfg.Preview,
		max:        max,
		log:        cfg.Logger.With("component", "composer"),
	}, nil
}

// MaxAttachments returns the configured admission limit.
func (m *Manager) MaxAttachments() int { return m.max }

// Snapshot returns the current composition state.
func (m *Manager) Snapshot() Snapshot { return m.store.Snapshot() }

// Subscribe streams state snapshots to the rendering layer.
func (m *Manager) Subscribe() (<-chan Snapshot, func()) { return m.store.Subscribe() }

// Wait blocks until every dispatched batch and preview task has settled.
// The send path uses it to guarantee OutgoingAttachments sees final states.
func (m *Manager) Wait() { m.wg.Wait() }

// SubmitFiles admits a batch of user-selected files. Admission is
// all-or-nothing: if the batch would exceed the attachment limit or any file
// fails validation, no file is admitted. Admitted files are appended in
// arrival order, previews are kicked off for images, and the whole batch is
// dispatched to the uploader concurrently.
func (m *Manager) SubmitFiles(ctx context.Context, files []File) error {
	if len(files) == 0 {
		return nil
	}

	if m.store.AttachmentCount()+len(files) > m.max {
		m.raiseLimitNotification()
		return common.ErrAttachmentLimitExceeded
	}
	m.clearLimitNotification()

	infos := make([]validation.FileInfo, len(files))
	for i, f := range files {
		infos[i] = validation.FileInfo{Name: f.Name, Size: f.Size, MIMEType: f.MIMEType, Image: f.IsImage()}
	}

	// Both checks run so each invalid file produces its notification, even
	// when an earlier check already doomed the batch.
	extOK := m.validator.CheckExtensions(ctx, infos)
	sizeOK := m.validator.CheckSizes(ctx, infos)
	if !extOK || !sizeOK {
		return common.ErrValidationFailed
	}

	items := make([]UploadItem, len(files))
	for i, f := range files {
		items[i] = UploadItem{
			File:  f,
			Kind:  attachment.KindForMIME(f.MIMEType),
			State: StateUploading,
		}
	}
	m.store.Append(items...)

	for _, f := range files {
		if f.IsImage() {
			m.goPreview(ctx, f)
		}
	}

	m.goBatch(ctx, items)
	return nil
}

// SubmitVoiceRecording runs the same admission and validation gate for one
// synthetic audio file and dispatches it through the regular pipeline.
func (m *Manager) SubmitVoiceRecording(ctx context.Context, rec VoiceRecording) error {
	if m.store.AttachmentCount()+1 > m.max {
		m.raiseLimitNotification()
		return common.ErrAttachmentLimitExceeded
	}
	m.clearLimitNotification()

	mimeType := rec.MIMEType
	if mimeType == "" {
		mimeType = "audio/aac"
	}
	f := NewFile(rec.Name, mimeType, rec.Data)

	infos := []validation.FileInfo{{Name: f.Name, Size: f.Size, MIMEType: f.MIMEType}}
	extOK := m.validator.CheckExtensions(ctx, infos)
	sizeOK := m.validator.CheckSizes(ctx, infos)
	if !extOK || !sizeOK {
		return common.ErrValidationFailed
	}

	item := UploadItem{
		File:       f,
		Kind:       attachment.KindVoiceRecording,
		State:      StateUploading,
		PreviewURI: rec.PreviewURI,
		Duration:   rec.Duration,
		Waveform:   rec.Waveform,
	}
	m.store.Append(item)
	m.goBatch(ctx, []UploadItem{item})
	return nil
}

// RetryUpload resets the matching item to uploading and re-dispatches it
// alone. Unknown files are a no-op.
func (m *Manager) RetryUpload(ctx context.Context, file File) {
	item, ok := m.store.MarkUploading(file.ID)
	if !ok {
		return
	}
	m.goBatch(ctx, []UploadItem{item})
}

// DeleteUpload removes the item from state. Successful uploads that were not
// reconstructed from a custom attachment are deleted remotely first; when
// that fails the item stays and the user is notified.
func (m *Manager) DeleteUpload(ctx context.Context, item UploadItem) error {
	current, ok := m.store.Get(item.File.ID)
	if !ok {
		return nil
	}

	if current.State == StateSuccess && !m.fromCustomSource(current) {
		if err := m.uploader.Delete(ctx, current); err != nil {
			m.notifier.Temporary(notify.KeyDeleteFailed, notify.SeverityError, notify.Params{
				"name": current.File.Name,
			})
			return fmt.Errorf("deleting upload: %w", err)
		}
	}

	m.store.Remove(item.File.ID)
	return nil
}

func (m *Manager) fromCustomSource(it UploadItem) bool {
	return it.Source != nil && m.classifier.IsCustom(*it.Source)
}

// AddCustomAttachment appends an app-defined attachment directly, bypassing
// validation and upload.
func (m *Manager) AddCustomAttachment(att attachment.Attachment) {
	m.store.AddCustom(att)
}

// Reset atomically empties the session and dismisses any active limit
// notification. In-flight uploads are not cancelled; their results reconcile
// against the empty list and orphaned remote assets are cleaned up.
func (m *Manager) Reset() {
	m.store.Clear()
	m.clearLimitNotification()
}

// OutgoingAttachments projects every successful item plus every custom
// attachment into the wire shape consumed by the message-send path. Items
// reconstructed from an existing attachment emit the original structure
// unchanged; customs come last.
func (m *Manager) OutgoingAttachments() []attachment.Attachment {
	snap := m.store.Snapshot()

	out := make([]attachment.Attachment, 0, len(snap.Items)+len(snap.Custom))
	for _, it := range snap.Items {
		if it.State != StateSuccess {
			continue
		}
		if it.Source != nil {
			out = append(out, *it.Source)
			continue
		}
		out = append(out, it.wireAttachment())
	}
	return append(out, snap.Custom...)
}

// SeedFromAttachments appends state reconstructed from a previously sent
// message (edit flow). Customs are split off by the classifier; built-ins
// become success-state items carrying their source attachment.
func (m *Manager) SeedFromAttachments(atts []attachment.Attachment) {
	for _, att := range atts {
		if m.classifier.IsCustom(att) {
			m.store.AddCustom(att)
			continue
		}
		m.store.Append(itemFromWire(att))
	}
}

// goBatch dispatches one upload batch. The batch outlives the caller's
// context: dispatched uploads run to completion.
func (m *Manager) goBatch(ctx context.Context, items []UploadItem) {
	ctx = context.WithoutCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.dispatch(ctx, items)
	}()
}

func (m *Manager) dispatch(ctx context.Context, items []UploadItem) {
	m.store.BeginBatch()
	defer m.store.EndBatch()

	names := make(map[string]string, len(items))
	for _, it := range items {
		names[it.File.ID] = it.File.Name
	}

	results, err := m.uploader.Upload(ctx, items)
	if err != nil {
		m.log.Error(ctx, "upload batch failed", "items", len(items), "error", err)
		for _, it := range items {
			res := UploadResult{
				FileID:      it.File.ID,
				State:       StateError,
				ErrorReason: ReasonOther,
				ErrorExtra:  map[string]any{"error": err.Error()},
			}
			if m.store.ApplyResult(res) {
				m.notifier.Temporary(notify.KeyUploadFailed, notify.SeverityError, notify.Params{
					"name": names[it.File.ID],
				})
			}
		}
		return
	}

	for _, res := range results {
		matched := m.store.ApplyResult(res)
		switch {
		case !matched:
			// The item vanished (reset or delete) while the call was
			// outstanding. Best-effort cleanup of the orphaned asset;
			// failures are only logged.
			if res.State == StateSuccess && res.URL != "" {
				orphan := UploadItem{File: File{ID: res.FileID}, State: StateSuccess, URL: res.URL, ThumbURL: res.ThumbURL}
				if err := m.uploader.Delete(ctx, orphan); err != nil {
					m.log.Warn(ctx, "orphan cleanup failed", "url", res.URL, "error", err)
				}
			}
		case res.State == StateError:
			m.notifier.Temporary(notify.KeyUploadFailed, notify.SeverityError, notify.Params{
				"name":   names[res.FileID],
				"reason": string(res.ErrorReason),
			})
		}
	}
}

func (m *Manager) goPreview(ctx context.Context, f File) {
	ctx = context.WithoutCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		uri, err := m.preview(ctx, f)
		if err != nil {
			m.log.Debug(ctx, "preview generation failed", "name", f.Name, "error", err)
			return
		}
		m.store.SetPreview(f.ID, uri)
	}()
}

func (m *Manager) raiseLimitNotification() {
	m.limitMu.Lock()
	defer m.limitMu.Unlock()
	if m.limitDismiss != nil {
		m.limitDismiss()
	}
	m.limitDismiss = m.notifier.Permanent(notify.KeyAttachmentLimitExceeded, notify.SeverityWarning, notify.Params{
		"limit": m.max,
	})
}

func (m *Manager) clearLimitNotification() {
	m.limitMu.Lock()
	defer m.limitMu.Unlock()
	if m.limitDismiss != nil {
		m.limitDismiss()
		m.limitDismiss = nil
	}
}

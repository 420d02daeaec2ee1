package composer

import (
	"sync"

	"github.com/altchat/composer/internal/attachment"
)

// Snapshot is an immutable view of the composition state published to
// subscribers. AttachmentCount counts successful uploads plus custom
// attachments; items still uploading or in error do not count toward the
// admission limit.
type Snapshot struct {
	Items           []UploadItem
	Custom          []attachment.Attachment
	AttachmentCount int
	InFlight        int
}

// Store owns the mutable state of one composition session. Every mutation
// replaces whole item values keyed by File.ID and publishes a fresh snapshot,
// so concurrent batch reconciliation and preview tasks never alias each
// other's writes.
type Store struct {
	mu       sync.Mutex
	items    []UploadItem
	custom   []attachment.Attachment
	inFlight int

	subs    map[int]chan Snapshot
	nextSub int
}

func NewStore() *Store {
	return &Store{subs: make(map[int]chan Snapshot)}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	count := len(s.custom)
	for _, it := range s.items {
		if it.State == StateSuccess {
			count++
		}
	}
	return Snapshot{
		Items:           append([]UploadItem(nil), s.items...),
		Custom:          append([]attachment.Attachment(nil), s.custom...),
		AttachmentCount: count,
		InFlight:        s.inFlight,
	}
}

// Subscribe registers a snapshot stream for the rendering layer. The current
// state is delivered immediately; afterwards each mutation publishes a new
// snapshot, with intermediate snapshots coalesced when the subscriber lags.
// The returned cancel function releases the subscription.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	ch := make(chan Snapshot, 1)
	s.subs[id] = ch
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Store) publishLocked() {
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		// Coalesce: replace a pending snapshot instead of blocking.
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// AttachmentCount returns successful uploads plus custom attachments.
func (s *Store) AttachmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := len(s.custom)
	for _, it := range s.items {
		if it.State == StateSuccess {
			count++
		}
	}
	return count
}

// InFlight returns the number of outstanding upload batches.
func (s *Store) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Append adds items in arrival order.
func (s *Store) Append(items ...UploadItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, items...)
	s.publishLocked()
}

// AddCustom appends an app-defined attachment.
func (s *Store) AddCustom(att attachment.Attachment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.custom = append(s.custom, att)
	s.publishLocked()
}

// Get finds an item by file identity.
func (s *Store) Get(fileID string) (UploadItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.File.ID == fileID {
			return it, true
		}
	}
	return UploadItem{}, false
}

// MarkUploading resets an item to the uploading state, clearing any prior
// error, and returns the updated item. Used by retry.
func (s *Store) MarkUploading(fileID string) (UploadItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, it := range s.items {
		if it.File.ID != fileID {
			continue
		}
		it.State = StateUploading
		it.ErrorReason = ""
		it.ErrorExtra = nil
		s.items[i] = it
		s.publishLocked()
		return it, true
	}
	return UploadItem{}, false
}

// SetPreview writes a locally generated preview onto the matching item.
// Returns false when the item is gone (deleted or reset meanwhile).
func (s *Store) SetPreview(fileID, previewURI string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, it := range s.items {
		if it.File.ID != fileID {
			continue
		}
		it.PreviewURI = previewURI
		s.items[i] = it
		s.publishLocked()
		return true
	}
	return false
}

// ApplyResult writes an upload result back onto the matching item. Returns
// false when no item matches, which happens when the item was removed while
// the network call was outstanding.
func (s *Store) ApplyResult(res UploadResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, it := range s.items {
		if it.File.ID != res.FileID {
			continue
		}
		it.State = res.State
		it.URL = res.URL
		it.ThumbURL = res.ThumbURL
		it.ErrorReason = res.ErrorReason
		it.ErrorExtra = res.ErrorExtra
		s.items[i] = it
		s.publishLocked()
		return true
	}
	return false
}

// Remove drops an item by file identity.
func (s *Store) Remove(fileID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, it := range s.items {
		if it.File.ID == fileID {
			s.items = append(s.items[:i:i], s.items[i+1:]...)
			s.publishLocked()
			return true
		}
	}
	return false
}

// Clear empties both sequences atomically. In-flight counters are left
// untouched; outstanding batches reconcile against the now-empty list.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.custom = nil
	s.publishLocked()
}

// BeginBatch and EndBatch bracket one dispatched upload batch. The in-flight
// counter is the sum of all outstanding batches, not a binary flag.
func (s *Store) BeginBatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight++
	s.publishLocked()
}

func (s *Store) EndBatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight > 0 {
		s.inFlight--
	}
	s.publishLocked()
}

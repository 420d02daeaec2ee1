package composer

import (
	"github.com/google/uuid"

	"github.com/altchat/composer/internal/attachment"
)

// State is the upload lifecycle of one item: uploading → success | error.
// The only way out of error is an explicit retry (back to uploading) or
// deletion.
type State string

const (
	StateUploading State = "uploading"
	StateSuccess   State = "success"
	StateError     State = "error"
)

// ErrorReason classifies why an item failed.
type ErrorReason string

const (
	ReasonFileExtension ErrorReason = "file-extension"
	ReasonFileSize      ErrorReason = "file-size"
	ReasonOther         ErrorReason = "other"
)

// UploadItem tracks one attachment through its upload lifecycle. Items are
// stored by value and replaced wholesale on every transition, keyed by
// File.ID, so snapshots never alias mutable state.
type UploadItem struct {
	File       File
	PreviewURI string
	Kind       attachment.Kind
	State      State
	URL        string
	ThumbURL   string

	ErrorReason ErrorReason
	ErrorExtra  map[string]any

	// Voice-recording metadata, carried through to the wire shape.
	Duration float64
	Waveform []float64

	// Source points back to the wire attachment this item was reconstructed
	// from (edit flow). When set, OutgoingAttachments emits it unchanged so
	// fields the client does not model survive the round trip.
	Source *attachment.Attachment
}

// wireAttachment synthesizes the outgoing wire shape for an item that was
// uploaded in this session. Images use image_url/fallback; everything else
// uses asset_url/title/file_size.
func (it UploadItem) wireAttachment() attachment.Attachment {
	if it.Kind == attachment.KindImage {
		return attachment.Attachment{
			Type:     string(attachment.KindImage),
			ImageURL: it.URL,
			ThumbURL: it.ThumbURL,
			Fallback: it.File.Name,
			MimeType: it.File.MIMEType,
		}
	}

	att := attachment.Attachment{
		Type:     string(it.Kind),
		AssetURL: it.URL,
		ThumbURL: it.ThumbURL,
		Title:    it.File.Name,
		FileSize: it.File.Size,
		MimeType: it.File.MIMEType,
	}
	if it.Kind == attachment.KindVoiceRecording {
		att.Duration = it.Duration
		att.WaveformData = it.Waveform
	}
	return att
}

// itemFromWire reconstructs an UploadItem from a previously sent built-in
// attachment. The item starts in success state (the asset already exists
// remotely) and keeps a back-reference for round-tripping.
func itemFromWire(att attachment.Attachment) UploadItem {
	src := att

	name := att.Title
	if name == "" {
		name = att.Fallback
	}

	it := UploadItem{
		File: File{
			ID:       uuid.NewString(),
			Name:     name,
			Size:     att.FileSize,
			MIMEType: att.MimeType,
		},
		State:    StateSuccess,
		ThumbURL: att.ThumbURL,
		Source:   &src,
	}

	switch {
	case att.IsImagelike():
		it.Kind = attachment.KindImage
		it.URL = att.ImageSourceURL()
	case attachment.Kind(att.Type) == attachment.KindVoiceRecording:
		it.Kind = attachment.KindVoiceRecording
		it.URL = att.AssetURL
		it.Duration = att.Duration
		it.Waveform = att.WaveformData
	case attachment.Kind(att.Type) == attachment.KindVideo:
		it.Kind = attachment.KindVideo
		it.URL = att.AssetURL
	default:
		it.Kind = attachment.KindFile
		it.URL = att.AssetURL
	}

	return it
}

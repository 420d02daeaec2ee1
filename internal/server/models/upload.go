// Package models defines server-side data models for the upload API.
package models

import "time"

// Upload statuses. An upload is pending between CreateUpload and
// ConfirmUpload; only completed uploads are addressable by clients.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// Upload is one registered attachment upload.
type Upload struct {
	// ID is a globally unique identifier for the upload.
	ID string

	// UserID is the owner; all operations are scoped to it.
	UserID string

	// Name is the original file name as submitted by the client.
	Name string

	// ContentType is the payload MIME type.
	ContentType string

	// Size is the declared payload size in bytes.
	Size int64

	// Kind is the client-side classification (image, video, file,
	// voiceRecording).
	Kind string

	// StorageKey is the object key in the S3 bucket.
	StorageKey string

	// Status is StatusPending or StatusCompleted.
	Status string

	// CreatedAt is the registration time in UTC.
	CreatedAt time.Time
}

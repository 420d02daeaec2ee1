// Package composer tracks the attachments of one message-composition
// session: it admits user-selected files against the configured maximum,
// validates them against server policy, hands them to an Uploader, and
// reconciles upload results back into observable state.
package composer

import (
	"strings"

	"github.com/google/uuid"
)

// File describes one user-selected file. ID is the identity key: exactly one
// UploadItem exists per File, and upload results are joined back by ID, never
// by list position.
type File struct {
	ID       string
	Name     string
	Size     int64
	MIMEType string
	Data     []byte
}

// NewFile builds a File descriptor with a fresh identity for the given
// payload.
func NewFile(name, mimeType string, data []byte) File {
	return File{
		ID:       uuid.NewString(),
		Name:     name,
		Size:     int64(len(data)),
		MIMEType: mimeType,
		Data:     data,
	}
}

// IsImage reports whether the file should use the image policy branch and
// get a local preview.
func (f File) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(f.MIMEType), "image/")
}

// VoiceRecording is the synthetic input for a recorded voice message: the
// encoded audio plus playback metadata. The preview is known up front, so no
// decode step runs for it.
type VoiceRecording struct {
	Name       string
	MIMEType   string
	Data       []byte
	Duration   float64
	Waveform   []float64
	PreviewURI string
}

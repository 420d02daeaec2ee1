// Package attachment defines the wire-format attachment structure exchanged
// with the message-send path, the built-in attachment kinds, and the
// classifier that separates app-defined ("custom") payloads from built-ins.
package attachment

// Kind classifies a built-in attachment.
type Kind string

const (
	KindImage          Kind = "image"
	KindVideo          Kind = "video"
	KindFile           Kind = "file"
	KindVoiceRecording Kind = "voiceRecording"
)

// KindForMIME maps a MIME type to the built-in kind used for new uploads.
func KindForMIME(mimeType string) Kind {
	switch {
	case hasPrefixFold(mimeType, "image/"):
		return KindImage
	case hasPrefixFold(mimeType, "video/"):
		return KindVideo
	default:
		return KindFile
	}
}

func hasPrefixFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c != prefix[i] {
			return false
		}
	}
	return true
}

// Attachment is the wire representation attached to an outgoing or received
// message. Image attachments use ImageURL/Fallback, other built-ins use
// AssetURL/Title/FileSize. Extra carries app-defined payload fields verbatim
// so custom attachments round-trip untouched.
type Attachment struct {
	Type         string         `json:"type,omitempty"`
	ImageURL     string         `json:"image_url,omitempty"`
	AssetURL     string         `json:"asset_url,omitempty"`
	ThumbURL     string         `json:"thumb_url,omitempty"`
	URL          string         `json:"url,omitempty"`
	Title        string         `json:"title,omitempty"`
	Fallback     string         `json:"fallback,omitempty"`
	FileSize     int64          `json:"file_size,omitempty"`
	MimeType     string         `json:"mime_type,omitempty"`
	Duration     float64        `json:"duration,omitempty"`
	WaveformData []float64      `json:"waveform_data,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// IsImagelike reports whether the attachment should be treated as an image
// when seeding state from a previously sent message.
func (a Attachment) IsImagelike() bool {
	return a.ImageURL != "" || a.Type == string(KindImage)
}

// ImageSourceURL picks the display URL for an image-like attachment:
// the image-specific URL first, then the thumbnail, then the legacy URL.
func (a Attachment) ImageSourceURL() string {
	switch {
	case a.ImageURL != "":
		return a.ImageURL
	case a.ThumbURL != "":
		return a.ThumbURL
	default:
		return a.URL
	}
}

// Classifier decides whether a wire attachment is an app-defined custom
// payload rather than one of the built-in kinds.
type Classifier interface {
	IsCustom(att Attachment) bool
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(att Attachment) bool

func (f ClassifierFunc) IsCustom(att Attachment) bool { return f(att) }

// DefaultClassifier treats every type outside the built-in set as custom.
func DefaultClassifier() Classifier {
	return ClassifierFunc(func(att Attachment) bool {
		switch Kind(att.Type) {
		case KindImage, KindVideo, KindFile, KindVoiceRecording:
			return false
		default:
			return true
		}
	})
}

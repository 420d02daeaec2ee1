// Package notify is the sink for user-facing warnings and errors raised by
// the attachment manager (limit exceeded, invalid file, failed delete).
// Notifications are fire-and-forget from the manager's perspective; the
// rendering layer decides how to display them.
package notify

// Severity grades a notification for the rendering layer.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification keys. The rendering layer maps keys to translated copy;
// params carry the values interpolated into it.
const (
	KeyAttachmentLimitExceeded = "attachment-limit-exceeded"
	KeyFileExtensionBlocked    = "validation-file-extension"
	KeyFileSizeExceeded        = "validation-file-size"
	KeyUploadFailed            = "upload-failed"
	KeyDeleteFailed            = "delete-failed"
)

// Params carries structured detail for a notification (offending extension,
// human-readable size limit, file name).
type Params map[string]any

// DismissFunc removes a permanent notification. Safe to call more than once.
type DismissFunc func()

// Notifier receives user-facing notifications.
//
// Temporary notifications are transient toasts; Permanent ones stay until
// dismissed via the returned handle. The manager holds at most one active
// permanent "limit exceeded" notification at a time.
type Notifier interface {
	Temporary(key string, severity Severity, params Params)
	Permanent(key string, severity Severity, params Params) DismissFunc
}

type discard struct{}

func (discard) Temporary(string, Severity, Params) {}
func (discard) Permanent(string, Severity, Params) DismissFunc {
	return func() {}
}

// Discard returns a Notifier that drops everything.
func Discard() Notifier { return discard{} }

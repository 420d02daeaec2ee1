// Package policy defines the server-provided upload policy (allow/block
// lists and size limits) and the contract for fetching it.
package policy

import "context"

// Branch holds the limits for one class of uploads. Empty allow lists mean
// "anything not blocked"; a zero SizeLimit means unlimited.
type Branch struct {
	AllowedFileExtensions []string `json:"allowed_file_extensions,omitempty"`
	BlockedFileExtensions []string `json:"blocked_file_extensions,omitempty"`
	AllowedMimeTypes      []string `json:"allowed_mime_types,omitempty"`
	BlockedMimeTypes      []string `json:"blocked_mime_types,omitempty"`
	SizeLimit             int64    `json:"size_limit,omitempty"`
}

// UploadPolicy carries separate branches for images and for everything else,
// mirroring the app-settings payload of the attachment service.
type UploadPolicy struct {
	Image Branch `json:"image_upload_config"`
	File  Branch `json:"file_upload_config"`
}

// Provider supplies the current upload policy. Implementations may fetch it
// remotely; callers must tolerate failures (validation treats a fetch error
// as a permissive policy).
type Provider interface {
	UploadPolicy(ctx context.Context) (*UploadPolicy, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context) (*UploadPolicy, error)

func (f ProviderFunc) UploadPolicy(ctx context.Context) (*UploadPolicy, error) {
	return f(ctx)
}

// Static is a Provider returning a fixed policy, used by the reference
// server's settings endpoint and in tests.
type Static struct {
	Policy UploadPolicy
}

func (s Static) UploadPolicy(ctx context.Context) (*UploadPolicy, error) {
	p := s.Policy
	return &p, nil
}

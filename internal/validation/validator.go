// Package validation enforces the server-provided upload policy over batches
// of candidate files: extension/MIME checks and size checks, each emitting
// one notification per invalid file. A policy that cannot be fetched is
// treated as permissive, so a transient settings outage never blocks uploads.
package validation

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/altchat/composer/internal/logging"
	"github.com/altchat/composer/internal/notify"
	"github.com/altchat/composer/internal/policy"
)

// FileInfo is the validator's view of a candidate file. Image selects the
// image policy branch.
type FileInfo struct {
	Name     string
	Size     int64
	MIMEType string
	Image    bool
}

// Validator checks files against the upload policy, fetching it lazily and
// caching the first successful fetch for the life of the validator.
type Validator struct {
	provider policy.Provider
	notifier notify.Notifier
	log      logging.Logger

	mu     sync.Mutex
	cached *policy.UploadPolicy
}

func NewValidator(p policy.Provider, n notify.Notifier, log logging.Logger) *Validator {
	if n == nil {
		n = notify.Discard()
	}
	return &Validator{provider: p, notifier: n, log: log.With("component", "validation")}
}

// currentPolicy returns the cached policy, fetching it on first use. A fetch
// failure returns nil (permissive) and is not cached, so the next batch
// retries.
func (v *Validator) currentPolicy(ctx context.Context) *policy.UploadPolicy {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.cached != nil {
		return v.cached
	}

	p, err := v.provider.UploadPolicy(ctx)
	if err != nil {
		v.log.Warn(ctx, "upload policy unavailable, treating as permissive", "error", err)
		return nil
	}
	v.cached = p
	return p
}

// CheckExtensions reports whether every file passes the extension and MIME
// rules of its policy branch. One notification is emitted per invalid file.
func (v *Validator) CheckExtensions(ctx context.Context, files []FileInfo) bool {
	p := v.currentPolicy(ctx)
	if p == nil {
		return true
	}

	ok := true
	for _, f := range files {
		branch := p.File
		if f.Image {
			branch = p.Image
		}
		offending, valid := checkExtension(branch, f)
		if valid {
			continue
		}
		ok = false
		v.notifier.Temporary(notify.KeyFileExtensionBlocked, notify.SeverityError, notify.Params{
			"name": f.Name,
			"ext":  offending,
		})
	}
	return ok
}

// checkExtension applies the four rules of one branch: blocked extension,
// blocked MIME type, non-empty extension allowlist, non-empty MIME
// allowlist. Blocklist and allowlist are independent; both apply when both
// are configured.
func checkExtension(branch policy.Branch, f FileInfo) (offending string, valid bool) {
	name := strings.ToLower(f.Name)
	mimeType := strings.ToLower(f.MIMEType)

	for _, ext := range branch.BlockedFileExtensions {
		if ext != "" && strings.HasSuffix(name, strings.ToLower(ext)) {
			return ext, false
		}
	}

	for _, blocked := range branch.BlockedMimeTypes {
		if blocked != "" && strings.ToLower(blocked) == mimeType {
			return blocked, false
		}
	}

	if len(branch.AllowedFileExtensions) > 0 {
		matched := false
		for _, ext := range branch.AllowedFileExtensions {
			if ext != "" && strings.HasSuffix(name, strings.ToLower(ext)) {
				matched = true
				break
			}
		}
		if !matched {
			return path.Ext(name), false
		}
	}

	if len(branch.AllowedMimeTypes) > 0 {
		matched := false
		for _, allowed := range branch.AllowedMimeTypes {
			if strings.ToLower(allowed) == mimeType {
				matched = true
				break
			}
		}
		if !matched {
			return f.MIMEType, false
		}
	}

	return "", true
}

// CheckSizes reports whether every file fits its applicable size limit. One
// notification per oversized file, with the limit in binary megabytes.
func (v *Validator) CheckSizes(ctx context.Context, files []FileInfo) bool {
	p := v.currentPolicy(ctx)
	if p == nil {
		return true
	}

	ok := true
	for _, f := range files {
		limit := sizeLimitFor(p, f.Image)
		if limit <= 0 || f.Size <= limit {
			continue
		}
		ok = false
		v.notifier.Temporary(notify.KeyFileSizeExceeded, notify.SeverityError, notify.Params{
			"name":  f.Name,
			"limit": humanSizeLimit(limit),
		})
	}
	return ok
}

// sizeLimitFor picks the image limit for images when one is configured,
// falling back to the generic file limit. Zero means unlimited.
func sizeLimitFor(p *policy.UploadPolicy, image bool) int64 {
	if image && p.Image.SizeLimit > 0 {
		return p.Image.SizeLimit
	}
	if p.File.SizeLimit > 0 {
		return p.File.SizeLimit
	}
	return 0
}

func humanSizeLimit(limit int64) string {
	return fmt.Sprintf("%g MB", float64(limit)/(1<<20))
}

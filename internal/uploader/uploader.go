// Package uploader implements the composer's Uploader over the backend's
// presigned-upload flow: register the upload, PUT the payload to the
// presigned URL, confirm. Items in a batch upload concurrently; each item
// settles independently so one failure never aborts its siblings.
package uploader

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/altchat/composer/internal/chatclient"
	"github.com/altchat/composer/internal/composer"
	"github.com/altchat/composer/internal/logging"
	"github.com/altchat/composer/internal/netx"
)

const defaultConcurrency = 4

// API is the subset of the backend client the upload pipeline needs.
type API interface {
	CreateUpload(ctx context.Context, req chatclient.CreateUploadRequest) (*chatclient.UploadTicket, error)
	ConfirmUpload(ctx context.Context, id string) (*chatclient.UploadedAsset, error)
	DeleteUpload(ctx context.Context, assetURL string) error
}

// PresignUploader uploads batches through create/PUT/confirm round trips.
type PresignUploader struct {
	api         API
	http        *http.Client
	log         logging.Logger
	concurrency int
}

// Option tweaks uploader construction.
type Option func(*PresignUploader)

// WithHTTPClient replaces the client used for presigned PUTs.
func WithHTTPClient(h *http.Client) Option {
	return func(u *PresignUploader) { u.http = h }
}

// WithLogger replaces the default logger.
func WithLogger(log logging.Logger) Option {
	return func(u *PresignUploader) { u.log = log }
}

// WithConcurrency caps how many items of one batch upload at once.
func WithConcurrency(n int) Option {
	return func(u *PresignUploader) {
		if n > 0 {
			u.concurrency = n
		}
	}
}

func New(backend API, opts ...Option) *PresignUploader {
	u := &PresignUploader{
		api:         backend,
		log:         logging.NewSlogLogger(slog.Default()),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(u)
	}
	u.log = u.log.With("component", "uploader")
	return u
}

// Upload runs the presign flow for every item and returns one result per
// item. Per-item failures become error results; the batch-level error stays
// nil unless nothing could be attempted at all.
func (u *PresignUploader) Upload(ctx context.Context, items []composer.UploadItem) ([]composer.UploadResult, error) {
	results := make([]composer.UploadResult, len(items))

	g := new(errgroup.Group)
	g.SetLimit(u.concurrency)
	for i, item := range items {
		g.Go(func() error {
			results[i] = u.uploadOne(ctx, item)
			return nil
		})
	}
	// Goroutines report through results, never through errors, so siblings
	// are never cancelled.
	_ = g.Wait()

	return results, nil
}

func (u *PresignUploader) uploadOne(ctx context.Context, item composer.UploadItem) composer.UploadResult {
	ticket, err := u.api.CreateUpload(ctx, chatclient.CreateUploadRequest{
		Name:        item.File.Name,
		ContentType: item.File.MIMEType,
		Size:        item.File.Size,
		Kind:        string(item.Kind),
	})
	if err != nil {
		return u.failure(ctx, item, fmt.Errorf("creating upload slot: %w", err))
	}

	if err := netx.PutToPresignedURL(ctx, u.http, ticket.UploadURL, item.File.MIMEType, item.File.Data); err != nil {
		return u.failure(ctx, item, fmt.Errorf("uploading payload: %w", err))
	}

	asset, err := u.api.ConfirmUpload(ctx, ticket.ID)
	if err != nil {
		return u.failure(ctx, item, fmt.Errorf("confirming upload: %w", err))
	}

	thumb := asset.ThumbURL
	if thumb == "" {
		thumb = ticket.ThumbURL
	}
	return composer.UploadResult{
		FileID:   item.File.ID,
		State:    composer.StateSuccess,
		URL:      asset.URL,
		ThumbURL: thumb,
	}
}

func (u *PresignUploader) failure(ctx context.Context, item composer.UploadItem, err error) composer.UploadResult {
	u.log.Warn(ctx, "item upload failed", "name", item.File.Name, "error", err)
	return composer.UploadResult{
		FileID:      item.File.ID,
		State:       composer.StateError,
		ErrorReason: composer.ReasonOther,
		ErrorExtra:  map[string]any{"error": err.Error()},
	}
}

// Delete removes the remote asset behind a successfully uploaded item.
func (u *PresignUploader) Delete(ctx context.Context, item composer.UploadItem) error {
	return u.api.DeleteUpload(ctx, item.URL)
}

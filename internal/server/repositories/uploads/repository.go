package uploads

import (
	"context"
	"time"

	"github.com/altchat/composer/internal/server/models"
)

// Repository describes persistence for upload records. All lookups are
// scoped by user, so one user can never confirm or delete another's uploads.
type Repository interface {
	// Create inserts a new pending upload.
	Create(ctx context.Context, upload *models.Upload) error

	// GetByID returns one upload, or common.ErrorNotFound.
	GetByID(ctx context.Context, id, userID string) (*models.Upload, error)

	// MarkCompleted transitions a pending upload to completed. Missing or
	// foreign rows return common.ErrorNotFound.
	MarkCompleted(ctx context.Context, id, userID string) error

	// DeleteByStorageKey removes an upload row by its object key. Missing or
	// foreign rows return common.ErrorNotFound.
	DeleteByStorageKey(ctx context.Context, storageKey, userID string) error

	// SelectStalePending returns storage keys of pending uploads created
	// before cutoff.
	SelectStalePending(ctx context.Context, cutoff time.Time) ([]string, error)

	// DeleteByStorageKeys removes the rows behind the given keys.
	DeleteByStorageKeys(ctx context.Context, storageKeys []string) error
}

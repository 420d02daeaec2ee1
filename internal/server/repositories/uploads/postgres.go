// Package uploads stores upload records in PostgreSQL.
package uploads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/altchat/composer/internal/common"
	"github.com/altchat/composer/internal/dbx"
	"github.com/altchat/composer/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or
// *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new pending upload record.
func (r *PostgresRepository) Create(ctx context.Context, upload *models.Upload) error {
	query := `
		INSERT INTO uploads (id, user_id, name, content_type, size, kind, storage_key, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		upload.ID, upload.UserID, upload.Name, upload.ContentType, upload.Size,
		upload.Kind, upload.StorageKey, upload.Status, upload.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert upload: %w", err)
	}
	return nil
}

// GetByID returns one of the user's uploads.
func (r *PostgresRepository) GetByID(ctx context.Context, id, userID string) (*models.Upload, error) {
	query := `
		SELECT id, user_id, name, content_type, size, kind, storage_key, status, created_at
		FROM uploads WHERE id=$1 AND user_id=$2
	`
	row := r.db.QueryRowContext(ctx, query, id, userID)

	u := &models.Upload{}
	err := row.Scan(&u.ID, &u.UserID, &u.Name, &u.ContentType, &u.Size, &u.Kind, &u.StorageKey, &u.Status, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return u, nil
}

// MarkCompleted flips a pending upload to completed.
func (r *PostgresRepository) MarkCompleted(ctx context.Context, id, userID string) error {
	query := `UPDATE uploads SET status=$1 WHERE id=$2 AND user_id=$3 AND status=$4`
	res, err := r.db.ExecContext(ctx, query, models.StatusCompleted, id, userID, models.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark completed: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrorNotFound
	}
	return nil
}

// DeleteByStorageKey removes one of the user's uploads by object key.
func (r *PostgresRepository) DeleteByStorageKey(ctx context.Context, storageKey, userID string) error {
	query := `DELETE FROM uploads WHERE storage_key=$1 AND user_id=$2`
	res, err := r.db.ExecContext(ctx, query, storageKey, userID)
	if err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrorNotFound
	}
	return nil
}

// SelectStalePending lists object keys of pending uploads older than cutoff.
func (r *PostgresRepository) SelectStalePending(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `SELECT storage_key FROM uploads WHERE status=$1 AND created_at < $2`
	rows, err := r.db.QueryContext(ctx, query, models.StatusPending, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to select stale uploads: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// DeleteByStorageKeys removes upload rows for the given object keys.
func (r *PostgresRepository) DeleteByStorageKeys(ctx context.Context, storageKeys []string) error {
	if len(storageKeys) == 0 {
		return nil
	}
	query := `DELETE FROM uploads WHERE storage_key = ANY($1)`
	if _, err := r.db.ExecContext(ctx, query, storageKeys); err != nil {
		return fmt.Errorf("failed to delete uploads: %w", err)
	}
	return nil
}

package drafts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/altchat/composer/internal/attachment"
	"github.com/altchat/composer/internal/common"
	"github.com/altchat/composer/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or
// *sql.Tx). Attachments are stored as a JSON column.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Bootstrap creates the drafts table when it does not exist yet.
func Bootstrap(ctx context.Context, db dbx.DBTX) error {
	query := `CREATE TABLE IF NOT EXISTS drafts (
		channel_id TEXT PRIMARY KEY,
		body TEXT NOT NULL,
		attachments TEXT NOT NULL DEFAULT '[]',
		updated_at INTEGER NOT NULL
	)`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create drafts table: %w", err)
	}
	return nil
}

// Save upserts the draft by channel id.
func (r *SQLiteRepository) Save(ctx context.Context, d *Draft) error {
	atts, err := json.Marshal(d.Attachments)
	if err != nil {
		return fmt.Errorf("failed to encode attachments: %w", err)
	}

	updatedAt := d.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	query := `INSERT INTO drafts (channel_id, body, attachments, updated_at)
			values (?, ?, ?, ?)
			ON CONFLICT(channel_id) DO UPDATE SET body = excluded.body,
				attachments = excluded.attachments,
				updated_at = excluded.updated_at
	`
	_, err = r.db.ExecContext(ctx, query, d.ChannelID, d.Text, string(atts), updatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert draft: %w", err)
	}
	return nil
}

// Get returns a single channel's draft.
func (r *SQLiteRepository) Get(ctx context.Context, channelID string) (*Draft, error) {
	query := `select body, attachments, updated_at from drafts where channel_id=?`
	row := r.db.QueryRowContext(ctx, query, channelID)

	var (
		body      string
		atts      string
		updatedAt int64
	)
	if err := row.Scan(&body, &atts, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}

	d := &Draft{
		ChannelID: channelID,
		Text:      body,
		UpdatedAt: time.UnixMilli(updatedAt).UTC(),
	}
	if err := json.Unmarshal([]byte(atts), &d.Attachments); err != nil {
		return nil, fmt.Errorf("failed to decode attachments: %w", err)
	}
	return d, nil
}

// Delete removes a channel's draft if present.
func (r *SQLiteRepository) Delete(ctx context.Context, channelID string) error {
	query := `delete from drafts where channel_id=?`
	if _, err := r.db.ExecContext(ctx, query, channelID); err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}

// List returns every stored draft, newest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]Draft, error) {
	query := `select channel_id, body, attachments, updated_at from drafts order by updated_at desc`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select drafts: %w", err)
	}
	defer rows.Close()

	var result []Draft
	for rows.Next() {
		var (
			d         Draft
			atts      string
			updatedAt int64
		)
		if err := rows.Scan(&d.ChannelID, &d.Text, &atts, &updatedAt); err != nil {
			return nil, err
		}
		d.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		if err := json.Unmarshal([]byte(atts), &d.Attachments); err != nil {
			return nil, fmt.Errorf("failed to decode attachments: %w", err)
		}
		if d.Attachments == nil {
			d.Attachments = []attachment.Attachment{}
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

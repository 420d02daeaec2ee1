// Package drafts persists unsent composition state per channel, so a draft
// message with its attachments survives app restarts.
package drafts

import (
	"context"
	"time"

	"github.com/altchat/composer/internal/attachment"
)

// Draft is one channel's unsent message: the text plus the attachments the
// composer would send with it.
type Draft struct {
	ChannelID   string
	Text        string
	Attachments []attachment.Attachment
	UpdatedAt   time.Time
}

// Repository describes draft persistence. Implementations are backed by a
// local SQLite database.
type Repository interface {
	// Save inserts or replaces the draft for its channel.
	Save(ctx context.Context, d *Draft) error

	// Get returns the draft for a channel, or common.ErrorNotFound.
	Get(ctx context.Context, channelID string) (*Draft, error)

	// Delete removes a channel's draft. Deleting a missing draft is not an
	// error.
	Delete(ctx context.Context, channelID string) error

	// List returns all drafts, most recently updated first.
	List(ctx context.Context) ([]Draft, error)
}

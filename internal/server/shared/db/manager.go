// Package db wires the PostgreSQL connection, migrations, and repositories.
package db

import (
	"context"
	"database/sql"

	"github.com/altchat/composer/internal/dbx"
	"github.com/altchat/composer/internal/server/repositories/uploads"
)

type RepositoryManager interface {
	RunMigrations(context.Context) error
	Conn() *sql.DB
	Uploads(db dbx.DBTX) uploads.Repository
}

// Package repomanager vends repository implementations bound to a DBTX and
// exposes the schema migration hook.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/futuravault/futuravault/internal/dbx"
	"github.com/futuravault/futuravault/internal/server/repositories/assets"
	"github.com/futuravault/futuravault/internal/server/repositories/edges"
	"github.com/futuravault/futuravault/internal/server/repositories/memories"
	"github.com/futuravault/futuravault/internal/server/repositories/preferences"
)

// RepositoryManager vends repositories bound to the given DBTX, so services
// can run them against either *sql.DB or an open transaction.
type RepositoryManager interface {
	Memories(db dbx.DBTX) memories.Repository
	Assets(db dbx.DBTX) assets.Repository
	Edges(db dbx.DBTX) edges.Repository
	Preferences(db dbx.DBTX) preferences.Repository
	RunMigrations(ctx context.Context, db *sql.DB) error
}

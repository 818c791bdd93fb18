package preferences

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/futuravault/futuravault/internal/common"
	"github.com/futuravault/futuravault/internal/dbx"
	"github.com/futuravault/futuravault/internal/server/models"
)

// PostgresRepository implements preference storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, ownerID string) (models.StoragePreference, error) {
	query := `SELECT preference FROM storage_preferences WHERE owner_id=$1`

	var p string
	err := r.db.QueryRowContext(ctx, query, ownerID).Scan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return "", common.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to select preference: %w", err)
	}
	return models.StoragePreference(p), nil
}

func (r *PostgresRepository) Set(ctx context.Context, ownerID string, p models.StoragePreference) error {
	query := `
		INSERT INTO storage_preferences (owner_id, preference)
		VALUES ($1, $2)
		ON CONFLICT (owner_id)
		DO UPDATE SET preference = EXCLUDED.preference;
	`
	res, err := r.db.ExecContext(ctx, query, ownerID, string(p))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}

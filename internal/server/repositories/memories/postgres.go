package memories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/futuravault/futuravault/internal/common"
	"github.com/futuravault/futuravault/internal/dbx"
	"github.com/futuravault/futuravault/internal/server/models"
)

// PostgresRepository implements memory storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, m *models.Memory) error {
	query := `
		INSERT INTO memories (id, owner_id, type, title, description, storage_status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.OwnerID, string(m.Type), m.Title, m.Description, string(models.StatusWeb2Only))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, ownerID, id string) (*models.Memory, error) {
	query := `
		SELECT id, owner_id, type, title, description,
		       storage_locations, storage_count, storage_status,
		       created_at, updated_at, deleted_at
		FROM memories
		WHERE id=$1 AND owner_id=$2 AND deleted_at IS NULL
	`

	m := &models.Memory{}
	var locations, memType, status string
	err := r.db.QueryRowContext(ctx, query, id, ownerID).Scan(
		&m.ID, &m.OwnerID, &memType, &m.Title, &m.Description,
		&locations, &m.StorageCount, &status,
		&m.CreatedAt, &m.UpdatedAt, &m.DeletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select memory: %w", err)
	}

	m.Type = models.MemoryType(memType)
	m.StorageStatus = models.StorageStatus(status)
	m.StorageLocations = splitLocations(locations)
	return m, nil
}

// UpdateStorageProjection persists the derived storage fields.
func (r *PostgresRepository) UpdateStorageProjection(ctx context.Context, id string, locations []models.Backend, count int, status models.StorageStatus) error {
	query := `
		UPDATE memories
		SET storage_locations=$2, storage_count=$3, storage_status=$4, updated_at=now()
		WHERE id=$1
	`
	result, err := r.db.ExecContext(ctx, query, id, joinLocations(locations), count, string(status))
	if err != nil {
		return fmt.Errorf("failed to update storage projection: %w", err)
	}
	ra, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) MarkDeleted(ctx context.Context, ownerID, id string) error {
	query := `UPDATE memories SET deleted_at=now(), updated_at=now() WHERE id=$1 AND owner_id=$2 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to mark deleted: %w", err)
	}
	ra, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM memories WHERE id=$1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}
	return nil
}

func joinLocations(locations []models.Backend) string {
	parts := make([]string, 0, len(locations))
	for _, l := range locations {
		parts = append(parts, string(l))
	}
	return strings.Join(parts, ",")
}

func splitLocations(s string) []models.Backend {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	locations := make([]models.Backend, 0, len(parts))
	for _, p := range parts {
		locations = append(locations, models.Backend(p))
	}
	return locations
}

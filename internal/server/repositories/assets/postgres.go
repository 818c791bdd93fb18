package assets

import (
	"context"
	"fmt"

	"github.com/futuravault/futuravault/internal/dbx"
	"github.com/futuravault/futuravault/internal/server/models"
)

// PostgresRepository implements asset storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, a *models.Asset) error {
	query := `
		INSERT INTO assets (id, memory_id, asset_type, backend, storage_key, url, size_bytes, mime_type, width, height, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (memory_id, backend, asset_type)
		DO UPDATE SET
			storage_key = EXCLUDED.storage_key,
			url = EXCLUDED.url,
			size_bytes = EXCLUDED.size_bytes,
			mime_type = EXCLUDED.mime_type,
			width = EXCLUDED.width,
			height = EXCLUDED.height,
			status = EXCLUDED.status;
	`
	res, err := r.db.ExecContext(ctx, query,
		a.ID, a.MemoryID, string(a.Type), string(a.Backend), a.StorageKey, a.URL,
		a.SizeBytes, a.MimeType, a.Width, a.Height, string(a.Status))
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

func (r *PostgresRepository) ListByMemory(ctx context.Context, memoryID string) ([]*models.Asset, error) {
	query := `
		SELECT id, memory_id, asset_type, backend, storage_key, url, size_bytes, mime_type, width, height, status
		FROM assets
		WHERE memory_id=$1
	`
	rows, err := r.db.QueryContext(ctx, query, memoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to select assets: %w", err)
	}
	defer rows.Close()

	var result []*models.Asset
	for rows.Next() {
		var item models.Asset
		var assetType, backend, status string
		if err := rows.Scan(&item.ID, &item.MemoryID, &assetType, &backend, &item.StorageKey, &item.URL,
			&item.SizeBytes, &item.MimeType, &item.Width, &item.Height, &status); err != nil {
			return nil, err
		}
		item.Type = models.AssetType(assetType)
		item.Backend = models.Backend(backend)
		item.Status = models.AssetStatus(status)
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

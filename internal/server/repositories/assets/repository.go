package assets

import (
	"context"

	"github.com/futuravault/futuravault/internal/server/models"
)

type Repository interface {
	// Upsert inserts or updates the asset keyed by (memory_id, backend,
	// asset_type), so re-running an upload step never duplicates rows.
	Upsert(ctx context.Context, a *models.Asset) error
	ListByMemory(ctx context.Context, memoryID string) ([]*models.Asset, error)
}

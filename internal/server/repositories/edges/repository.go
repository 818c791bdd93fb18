package edges

import (
	"context"

	"github.com/futuravault/futuravault/internal/server/models"
)

type Repository interface {
	// Upsert inserts or updates the edge keyed by (memory_id, backend,
	// asset_type) so crash-and-rerun never duplicates edges.
	Upsert(ctx context.Context, e *models.StorageEdge) error
	ListByMemory(ctx context.Context, memoryID string) ([]*models.StorageEdge, error)
	// MarkVerified records the upload-verify outcome.
	MarkVerified(ctx context.Context, memoryID string, backend models.Backend, assetType models.AssetType, checksum string) (*models.StorageEdge, error)
	// Delete removes one edge after its physical copy was confirmed gone.
	Delete(ctx context.Context, id string) error
}

package memories

import (
	"context"

	"github.com/futuravault/futuravault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, m *models.Memory) error
	GetByID(ctx context.Context, ownerID, id string) (*models.Memory, error)

	// UpdateStorageProjection writes the cached storage fields. Only the
	// presence recorder calls this.
	UpdateStorageProjection(ctx context.Context, id string, locations []models.Backend, count int, status models.StorageStatus) error

	// MarkDeleted performs the logical delete. The row stays as a tombstone
	// while cleanup settles the physical copies.
	MarkDeleted(ctx context.Context, ownerID, id string) error

	// Delete hard-removes the row (and, by cascade, child rows).
	Delete(ctx context.Context, id string) error
}

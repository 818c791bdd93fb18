package preferences

import (
	"context"

	"github.com/futuravault/futuravault/internal/server/models"
)

type Repository interface {
	// Get returns the user's declared preference, or ErrNotFound if the
	// user never set one.
	Get(ctx context.Context, ownerID string) (models.StoragePreference, error)
	Set(ctx context.Context, ownerID string, p models.StoragePreference) error
}

package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/futuravault/futuravault/internal/common"
	"github.com/futuravault/futuravault/internal/dbx"
	"github.com/futuravault/futuravault/internal/logging"
	"github.com/futuravault/futuravault/internal/server/models"
	"github.com/futuravault/futuravault/internal/server/repositories/repomanager"
	"github.com/futuravault/futuravault/internal/storage/registry"
)

// MemoryService covers memory CRUD plus the storage-preference boundary.
type MemoryService struct {
	db       *sql.DB
	repos    repomanager.RepositoryManager
	registry *registry.Registry
	recorder *Recorder
	cleanup  *CleanupCoordinator
	logger   logging.Logger
}

func NewMemoryService(db *sql.DB, repos repomanager.RepositoryManager, reg *registry.Registry,
	recorder *Recorder, cleanup *CleanupCoordinator, logger logging.Logger) *MemoryService {
	return &MemoryService{
		db:       db,
		repos:    repos,
		registry: reg,
		recorder: recorder,
		cleanup:  cleanup,
		logger:   logger.With("module", "memory"),
	}
}

// AssetDescriptor describes a copy the client already uploaded directly
// (browser-to-storage) before creating the memory.
type AssetDescriptor struct {
	Type      models.AssetType
	Backend   models.Backend
	Key       string
	URL       string
	RemoteID  string
	Checksum  string
	SizeBytes int64
	MimeType  string
	Width     int
	Height    int
}

// CreateMemoryInput creates a memory, optionally with pre-uploaded assets.
type CreateMemoryInput struct {
	Type        models.MemoryType
	Title       string
	Description string
	Assets      []AssetDescriptor
}

// Create inserts the memory and any pre-uploaded asset descriptors in one
// transaction, then recomputes the storage projection.
func (s *MemoryService) Create(ctx context.Context, ownerID string, in CreateMemoryInput) (*models.Memory, error) {
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown memory type %q", common.ErrValidation, in.Type)
	}
	for _, d := range in.Assets {
		if !d.Backend.Valid() {
			return nil, fmt.Errorf("%w: unknown backend %q", common.ErrValidation, d.Backend)
		}
		if d.Key == "" && d.RemoteID == "" {
			return nil, fmt.Errorf("%w: asset descriptor without a locator", common.ErrValidation)
		}
	}

	memory := &models.Memory{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Type:        in.Type,
		Title:       in.Title,
		Description: in.Description,
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.Memories(tx).Create(ctx, memory); err != nil {
			return err
		}

		assetRepo := s.repos.Assets(tx)
		edgeRepo := s.repos.Edges(tx)
		for _, d := range in.Assets {
			remoteID := d.RemoteID
			if remoteID == "" {
				remoteID = d.Key
			}

			if err := assetRepo.Upsert(ctx, &models.Asset{
				ID:         uuid.NewString(),
				MemoryID:   memory.ID,
				Type:       d.Type,
				Backend:    d.Backend,
				StorageKey: d.Key,
				URL:        d.URL,
				SizeBytes:  d.SizeBytes,
				MimeType:   d.MimeType,
				Width:      d.Width,
				Height:     d.Height,
				Status:     models.AssetCompleted,
			}); err != nil {
				return err
			}

			if err := edgeRepo.Upsert(ctx, &models.StorageEdge{
				ID:           uuid.NewString(),
				MemoryID:     memory.ID,
				Backend:      d.Backend,
				AssetType:    d.Type,
				RemoteID:     remoteID,
				Checksum:     d.Checksum,
				SizeBytes:    d.SizeBytes,
				Verification: models.EdgePending,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error creating memory: %w", err)
	}

	if _, err := s.recorder.RecomputeStatus(ctx, memory.ID); err != nil {
		return nil, err
	}
	return s.repos.Memories(s.db).GetByID(ctx, ownerID, memory.ID)
}

// MemoryView is a memory with its assets and derived storage status.
type MemoryView struct {
	Memory *models.Memory
	Assets []*models.Asset
}

func (s *MemoryService) Get(ctx context.Context, ownerID, id string) (*MemoryView, error) {
	memory, err := s.repos.Memories(s.db).GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	assetList, err := s.repos.Assets(s.db).ListByMemory(ctx, id)
	if err != nil {
		return nil, err
	}
	return &MemoryView{Memory: memory, Assets: assetList}, nil
}

// Delete performs the logical delete first and then settles the physical
// copies. The logical delete is never rolled back on cleanup failure;
// per-backend errors come back for operator visibility.
func (s *MemoryService) Delete(ctx context.Context, ownerID, id string) (*CleanupResult, error) {
	memRepo := s.repos.Memories(s.db)

	// Ownership check, and the row must still be live.
	if _, err := memRepo.GetByID(ctx, ownerID, id); err != nil {
		return nil, err
	}

	if err := memRepo.MarkDeleted(ctx, ownerID, id); err != nil {
		return nil, err
	}

	result, err := s.cleanup.Cleanup(ctx, id)
	if err != nil {
		// Metadata deletion stands; the copies are settled on a later pass.
		s.logger.Error(ctx, "cleanup pass failed", "memory", id, "error", err)
		return &CleanupResult{Errors: []CleanupError{{Message: err.Error()}}}, nil
	}
	return result, nil
}

// GetPreference returns the user's declared preference, falling back to
// the best available backend for users who never chose.
func (s *MemoryService) GetPreference(ctx context.Context, ownerID string) (models.StoragePreference, error) {
	pref, err := s.repos.Preferences(s.db).Get(ctx, ownerID)
	if err == nil {
		return pref, nil
	}
	best, bestErr := s.registry.BestAvailable()
	if bestErr != nil {
		return "", bestErr
	}
	return models.StoragePreference(best), nil
}

// SetPreference updates the declared preference. Every backend the
// preference needs must be configured: at least one backend is always
// enabled, and switching to an unavailable backend is rejected rather
// than silently degraded.
func (s *MemoryService) SetPreference(ctx context.Context, ownerID string, pref models.StoragePreference) error {
	if !pref.Valid() {
		return fmt.Errorf("%w: unknown storage preference %q", common.ErrValidation, pref)
	}
	for _, b := range pref.Backends() {
		if !s.registry.Configured(b) {
			return fmt.Errorf("%w: %s", common.ErrBackendNotConfigured, b)
		}
	}
	return s.repos.Preferences(s.db).Set(ctx, ownerID, pref)
}

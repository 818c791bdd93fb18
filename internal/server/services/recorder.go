package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/futuravault/futuravault/internal/logging"
	"github.com/futuravault/futuravault/internal/server/models"
	"github.com/futuravault/futuravault/internal/server/repositories/repomanager"
	"github.com/futuravault/futuravault/internal/storage"
)

// Recorder is the storage presence recorder: the only writer of asset
// rows, storage edges and the cached storage projection on memories.
type Recorder struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	logger logging.Logger
}

func NewRecorder(db *sql.DB, repos repomanager.RepositoryManager, logger logging.Logger) *Recorder {
	return &Recorder{db: db, repos: repos, logger: logger.With("module", "recorder")}
}

// VariantInfo describes the buffer an upload result belongs to.
type VariantInfo struct {
	AssetType models.AssetType
	MimeType  string
	Width     int
	Height    int
}

// Record persists one per-backend outcome for one variant. Success writes
// a completed asset and a pending storage edge; failure writes a failed
// asset row and no edge, since no physical copy exists. Rows are upserted
// by (memory, backend, asset type), so re-running an upload step after a
// crash does not duplicate anything.
func (r *Recorder) Record(ctx context.Context, memoryID string, backend models.Backend, info VariantInfo, result *storage.UploadResult, uploadErr error) error {
	assetRepo := r.repos.Assets(r.db)
	edgeRepo := r.repos.Edges(r.db)

	asset := &models.Asset{
		ID:       uuid.NewString(),
		MemoryID: memoryID,
		Type:     info.AssetType,
		Backend:  backend,
		MimeType: info.MimeType,
		Width:    info.Width,
		Height:   info.Height,
	}

	if uploadErr != nil {
		asset.Status = models.AssetFailed
		if err := assetRepo.Upsert(ctx, asset); err != nil {
			return fmt.Errorf("record failed asset: %w", err)
		}
		return nil
	}

	asset.Status = models.AssetCompleted
	asset.StorageKey = result.Key
	asset.URL = result.URL
	asset.SizeBytes = result.Size

	if err := assetRepo.Upsert(ctx, asset); err != nil {
		return fmt.Errorf("record asset: %w", err)
	}

	edge := &models.StorageEdge{
		ID:           uuid.NewString(),
		MemoryID:     memoryID,
		Backend:      backend,
		AssetType:    info.AssetType,
		RemoteID:     result.Key,
		Checksum:     result.Checksum,
		SizeBytes:    result.Size,
		Verification: models.EdgePending,
	}
	if err := edgeRepo.Upsert(ctx, edge); err != nil {
		return fmt.Errorf("record edge: %w", err)
	}
	return nil
}

// RecomputeStatus derives the aggregate storage status and the cached
// location projection strictly from current storage-edge state. It is a
// pure function of the rows and safe to call redundantly.
func (r *Recorder) RecomputeStatus(ctx context.Context, memoryID string) (models.StorageStatus, error) {
	assetRepo := r.repos.Assets(r.db)
	edgeRepo := r.repos.Edges(r.db)
	memRepo := r.repos.Memories(r.db)

	assets, err := assetRepo.ListByMemory(ctx, memoryID)
	if err != nil {
		return "", fmt.Errorf("list assets: %w", err)
	}
	edges, err := edgeRepo.ListByMemory(ctx, memoryID)
	if err != nil {
		return "", fmt.Errorf("list edges: %w", err)
	}

	status, locations := deriveStatus(assets, edges)

	if err := memRepo.UpdateStorageProjection(ctx, memoryID, locations, len(locations), status); err != nil {
		return "", fmt.Errorf("update projection: %w", err)
	}
	return status, nil
}

// deriveStatus computes the aggregate from edges and assets.
//
// Required assets are the distinct variant types that have at least one
// completed copy somewhere; the memory is stored_forever only when every
// one of them has a canister edge, web2_only when none do.
func deriveStatus(assets []*models.Asset, edges []*models.StorageEdge) (models.StorageStatus, []models.Backend) {
	required := map[models.AssetType]bool{}
	for _, a := range assets {
		if a.Status == models.AssetCompleted {
			required[a.Type] = true
		}
	}

	icpCovered := map[models.AssetType]bool{}
	locationSet := map[models.Backend]bool{}
	for _, e := range edges {
		locationSet[e.Backend] = true
		if e.Backend == models.BackendICP {
			icpCovered[e.AssetType] = true
		}
	}

	locations := make([]models.Backend, 0, len(locationSet))
	for b := range locationSet {
		locations = append(locations, b)
	}
	sort.Slice(locations, func(i, j int) bool { return locations[i] < locations[j] })

	if len(icpCovered) == 0 {
		return models.StatusWeb2Only, locations
	}
	for at := range required {
		if !icpCovered[at] {
			return models.StatusPartial, locations
		}
	}
	return models.StatusForever, locations
}

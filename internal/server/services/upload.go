package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/futuravault/futuravault/internal/common"
	"github.com/futuravault/futuravault/internal/logging"
	"github.com/futuravault/futuravault/internal/server/models"
	"github.com/futuravault/futuravault/internal/server/repositories/repomanager"
	"github.com/futuravault/futuravault/internal/storage"
	"github.com/futuravault/futuravault/internal/storage/registry"
	"github.com/futuravault/futuravault/internal/transform"
)

// FolderUploadConcurrency bounds how many files of one batch are in
// flight at once.
const FolderUploadConcurrency = 5

// UploadService runs the upload side of the orchestration engine.
type UploadService struct {
	db          *sql.DB
	repos       repomanager.RepositoryManager
	registry    *registry.Registry
	selector    *Selector
	transformer transform.Transformer
	recorder    *Recorder
	logger      logging.Logger
	now         func() time.Time
}

func NewUploadService(db *sql.DB, repos repomanager.RepositoryManager, reg *registry.Registry,
	selector *Selector, transformer transform.Transformer, recorder *Recorder, logger logging.Logger) *UploadService {
	return &UploadService{
		db:          db,
		repos:       repos,
		registry:    reg,
		selector:    selector,
		transformer: transformer,
		recorder:    recorder,
		logger:      logger.With("module", "upload"),
		now:         time.Now,
	}
}

// UploadStorageSelection is the answer of the upload-intent endpoint: a
// time-boxed decision with one grant per target backend. It has no side
// effects on remote storage.
type UploadStorageSelection struct {
	Preference models.StoragePreference
	Grants     []models.UploadGrant
}

// Intent reconciles the declared preference with the registry and mints
// grants. For dual, an unconfigured side is simply absent from the grants;
// the verify/record path will report it as not stored.
func (s *UploadService) Intent(ctx context.Context, pref models.StoragePreference) (*UploadStorageSelection, error) {
	if pref == "" {
		best, err := s.registry.BestAvailable()
		if err != nil {
			return nil, err
		}
		pref = models.StoragePreference(best)
	}
	if !pref.Valid() {
		return nil, fmt.Errorf("%w: unknown storage preference %q", common.ErrValidation, pref)
	}

	var grants []models.UploadGrant
	for _, b := range pref.Backends() {
		if !s.registry.Configured(b) {
			if pref != models.PreferenceDual {
				return nil, fmt.Errorf("%w: %s", common.ErrBackendNotConfigured, b)
			}
			continue
		}
		grants = append(grants, s.mintGrant(b))
	}
	if len(grants) == 0 {
		return nil, common.ErrNoBackendConfigured
	}

	return &UploadStorageSelection{Preference: pref, Grants: grants}, nil
}

func (s *UploadService) mintGrant(b models.Backend) models.UploadGrant {
	desc, _ := s.registry.Describe(b)
	return models.UploadGrant{
		Backend:        b,
		IdempotencyKey: uuid.NewString(),
		ExpiresAt:      s.now().Add(s.registry.GrantTTL()),
		Limits:         desc.Limits,
		CanisterID:     desc.CanisterID,
	}
}

// VerifyInput is the client's report of a direct (browser-to-storage)
// upload it completed against a grant.
type VerifyInput struct {
	MemoryID       string
	Backend        models.Backend
	AssetType      models.AssetType
	IdempotencyKey string
	RemoteID       string
	Checksum       string
	Size           int64
}

// Verify marks the storage edge for a directly-uploaded copy as verified.
// Best effort: failure here does not invalidate the upload that already
// happened.
func (s *UploadService) Verify(ctx context.Context, ownerID string, in VerifyInput) (*models.StorageEdge, error) {
	if !in.Backend.Valid() {
		return nil, fmt.Errorf("%w: unknown backend %q", common.ErrValidation, in.Backend)
	}
	if in.AssetType == "" {
		in.AssetType = models.AssetOriginal
	}

	memRepo := s.repos.Memories(s.db)
	if _, err := memRepo.GetByID(ctx, ownerID, in.MemoryID); err != nil {
		return nil, err
	}

	edgeRepo := s.repos.Edges(s.db)
	edge, err := edgeRepo.MarkVerified(ctx, in.MemoryID, in.Backend, in.AssetType, in.Checksum)
	if errors.Is(err, common.ErrNotFound) {
		// The direct upload bypassed the server, so the edge may not exist
		// yet. Create it verified.
		now := s.now()
		edge = &models.StorageEdge{
			ID:           uuid.NewString(),
			MemoryID:     in.MemoryID,
			Backend:      in.Backend,
			AssetType:    in.AssetType,
			RemoteID:     in.RemoteID,
			Checksum:     in.Checksum,
			SizeBytes:    in.Size,
			Verification: models.EdgeVerified,
			VerifiedAt:   &now,
		}
		if upsertErr := edgeRepo.Upsert(ctx, edge); upsertErr != nil {
			return nil, upsertErr
		}
	} else if err != nil {
		return nil, err
	}

	if _, err := s.recorder.RecomputeStatus(ctx, in.MemoryID); err != nil {
		s.logger.Warn(ctx, "status recompute after verify failed", "memory", in.MemoryID, "error", err)
	}
	return edge, nil
}

// UploadInput is one file heading into the pipeline.
type UploadInput struct {
	Type        models.MemoryType
	Title       string
	Description string
	FileName    string
	MimeType    string
	Bytes       []byte
	Preference  models.StoragePreference
	Progress    storage.ProgressFunc
}

// UploadOutcome reports the true per-backend result of one file. A partial
// dual-write success is a success with a non-empty Failed list, not an
// error.
type UploadOutcome struct {
	Memory   *models.Memory
	StoredIn []models.Backend
	Failed   []BackendFailure
	Status   models.StorageStatus
}

type variantBuffer struct {
	info  VariantInfo
	bytes []byte
}

// Upload runs the whole pipeline for one file: materialize variants,
// select backends, execute the adapters, record presence, recompute the
// aggregate status.
func (s *UploadService) Upload(ctx context.Context, ownerID string, in UploadInput) (*UploadOutcome, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}

	plans, planFailures, err := s.selector.Plan(int64(len(in.Bytes)), in.Preference)
	if err != nil {
		return nil, err
	}

	variants, err := s.materialize(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("materialize: %w", err)
	}

	memory := &models.Memory{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Type:        in.Type,
		Title:       in.Title,
		Description: in.Description,
	}
	if err := s.repos.Memories(s.db).Create(ctx, memory); err != nil {
		return nil, fmt.Errorf("create memory: %w", err)
	}

	outcomes := s.fanOut(ctx, memory.ID, in, plans, variants)

	stored, failed := summarize(outcomes)
	failed = append(failed, planFailures...)

	if len(stored) == 0 {
		// Nothing landed anywhere: drop the provisional row and surface
		// the first backend error so the user can retry the file.
		if delErr := s.repos.Memories(s.db).Delete(ctx, memory.ID); delErr != nil {
			s.logger.Error(ctx, "failed to remove provisional memory", "memory", memory.ID, "error", delErr)
		}
		return nil, fmt.Errorf("upload failed on every backend: %w", failed[0].Err)
	}

	status, err := s.recorder.RecomputeStatus(ctx, memory.ID)
	if err != nil {
		return nil, err
	}

	final, err := s.repos.Memories(s.db).GetByID(ctx, ownerID, memory.ID)
	if err != nil {
		return nil, err
	}

	return &UploadOutcome{
		Memory:   final,
		StoredIn: stored,
		Failed:   failed,
		Status:   status,
	}, nil
}

// UploadBatch fans a folder upload out per file with bounded concurrency.
// Per-file failures land in the per-file slot; the batch itself only fails
// on a context-level problem.
func (s *UploadService) UploadBatch(ctx context.Context, ownerID string, files []UploadInput) ([]*UploadOutcome, []error) {
	outcomes := make([]*UploadOutcome, len(files))
	errs := make([]error, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(FolderUploadConcurrency)

	for i, f := range files {
		g.Go(func() error {
			outcomes[i], errs[i] = s.Upload(ctx, ownerID, f)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, errs
}

func (s *UploadService) validate(in UploadInput) error {
	if !in.Type.Valid() {
		return fmt.Errorf("%w: unknown memory type %q", common.ErrValidation, in.Type)
	}
	if len(in.Bytes) == 0 {
		return fmt.Errorf("%w: empty file", common.ErrValidation)
	}
	if in.MimeType == "" {
		return fmt.Errorf("%w: missing mime type", common.ErrValidation)
	}
	return nil
}

// materialize derives the named variant buffers. Images fan out to up to
// three variants; everything else passes through as the single original.
func (s *UploadService) materialize(ctx context.Context, in UploadInput) ([]variantBuffer, error) {
	original := variantBuffer{
		info:  VariantInfo{AssetType: models.AssetOriginal, MimeType: in.MimeType},
		bytes: in.Bytes,
	}

	if in.Type != models.MemoryImage || s.transformer == nil {
		return []variantBuffer{original}, nil
	}

	set, err := s.transformer.Transform(ctx, in.Bytes, in.MimeType)
	if err != nil {
		return nil, err
	}

	variants := []variantBuffer{{
		info: VariantInfo{
			AssetType: models.AssetOriginal,
			MimeType:  set.Original.MimeType,
			Width:     set.Original.Width,
			Height:    set.Original.Height,
		},
		bytes: set.Original.Bytes,
	}}
	if len(set.Display.Bytes) > 0 {
		variants = append(variants, variantBuffer{
			info: VariantInfo{
				AssetType: models.AssetDisplay,
				MimeType:  set.Display.MimeType,
				Width:     set.Display.Width,
				Height:    set.Display.Height,
			},
			bytes: set.Display.Bytes,
		})
	}
	if len(set.Thumb.Bytes) > 0 {
		variants = append(variants, variantBuffer{
			info: VariantInfo{
				AssetType: models.AssetThumb,
				MimeType:  set.Thumb.MimeType,
				Width:     set.Thumb.Width,
				Height:    set.Thumb.Height,
			},
			bytes: set.Thumb.Bytes,
		})
	}
	return variants, nil
}

type backendOutcome struct {
	backend models.Backend
	err     error
}

// fanOut runs the planned backends in parallel (the dual case) and the
// variants of each backend sequentially, re-selecting the neon-side
// protocol per variant size. Every per-variant outcome is recorded; a
// variant may succeed while a sibling fails.
func (s *UploadService) fanOut(ctx context.Context, memoryID string, in UploadInput, plans []PlannedUpload, variants []variantBuffer) []backendOutcome {
	outcomes := make([]backendOutcome, len(plans))

	var wg sync.WaitGroup
	for i, plan := range plans {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = backendOutcome{
				backend: plan.Backend,
				err:     s.uploadToBackend(ctx, memoryID, in, plan.Backend, variants),
			}
		}()
	}
	wg.Wait()

	return outcomes
}

// uploadToBackend pushes every variant to one backend. It returns nil when
// at least one variant landed, so dual-write accounting stays per backend;
// the per-variant truth lives in the recorded assets and edges.
func (s *UploadService) uploadToBackend(ctx context.Context, memoryID string, in UploadInput, backend models.Backend, variants []variantBuffer) error {
	grant := s.mintGrant(backend)

	var firstErr error
	succeeded := 0
	for _, v := range variants {
		result, err := s.uploadVariant(ctx, in, backend, grant, v)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if err == nil {
			succeeded++
		}

		if recErr := s.recorder.Record(ctx, memoryID, backend, v.info, result, err); recErr != nil {
			s.logger.Error(ctx, "presence record failed",
				"memory", memoryID, "backend", backend, "asset", v.info.AssetType, "error", recErr)
			if firstErr == nil {
				firstErr = recErr
			}
		}
	}

	if succeeded == 0 {
		return firstErr
	}
	return nil
}

func (s *UploadService) uploadVariant(ctx context.Context, in UploadInput, backend models.Backend, grant models.UploadGrant, v variantBuffer) (*storage.UploadResult, error) {
	adapter := s.selector.adapterFor(backend, int64(len(v.bytes)))

	result, err := adapter.Upload(ctx, storage.UploadRequest{
		Key:         objectKey(),
		Bytes:       v.bytes,
		MimeType:    v.info.MimeType,
		Name:        in.FileName,
		Description: in.Description,
		Grant:       grant,
		Progress:    in.Progress,
	})
	if err != nil {
		s.logger.Warn(ctx, "variant upload failed",
			"backend", backend, "asset", v.info.AssetType, "error", err)
		return nil, err
	}
	return result, nil
}

func summarize(outcomes []backendOutcome) ([]models.Backend, []BackendFailure) {
	var stored []models.Backend
	var failed []BackendFailure
	for _, o := range outcomes {
		if o.err != nil {
			failed = append(failed, BackendFailure{Backend: o.backend, Err: o.err})
			continue
		}
		stored = append(stored, o.backend)
	}
	return stored, failed
}

// objectKey builds a date-sharded random storage key.
func objectKey() string {
	d := time.Now()
	return fmt.Sprintf("users/%d/%d/%d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}

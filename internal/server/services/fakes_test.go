package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/futuravault/futuravault/internal/common"
	"github.com/futuravault/futuravault/internal/dbx"
	"github.com/futuravault/futuravault/internal/logging"
	"github.com/futuravault/futuravault/internal/server/models"
	"github.com/futuravault/futuravault/internal/server/repositories/assets"
	"github.com/futuravault/futuravault/internal/server/repositories/edges"
	"github.com/futuravault/futuravault/internal/server/repositories/memories"
	"github.com/futuravault/futuravault/internal/server/repositories/preferences"
	"github.com/futuravault/futuravault/internal/storage"
	"github.com/futuravault/futuravault/internal/storage/registry"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func bothBackends() *registry.Registry {
	return registry.New(registry.Config{NeonConfigured: true, ICPConfigured: true, CanisterID: "canister-1"})
}

func neonOnly() *registry.Registry {
	return registry.New(registry.Config{NeonConfigured: true})
}

// ---- in-memory repositories ----

type fakeMemoryRepo struct {
	mu   sync.Mutex
	rows map[string]*models.Memory
}

func newFakeMemoryRepo() *fakeMemoryRepo {
	return &fakeMemoryRepo{rows: map[string]*models.Memory{}}
}

func (r *fakeMemoryRepo) Create(ctx context.Context, m *models.Memory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.rows[m.ID] = &cp
	return nil
}

func (r *fakeMemoryRepo) GetByID(ctx context.Context, ownerID, id string) (*models.Memory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[id]
	if !ok || m.OwnerID != ownerID || m.DeletedAt != nil {
		return nil, common.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMemoryRepo) UpdateStorageProjection(ctx context.Context, id string, locations []models.Backend, count int, status models.StorageStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[id]
	if !ok {
		return common.ErrNotFound
	}
	m.StorageLocations = locations
	m.StorageCount = count
	m.StorageStatus = status
	return nil
}

func (r *fakeMemoryRepo) MarkDeleted(ctx context.Context, ownerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[id]
	if !ok || m.OwnerID != ownerID {
		return common.ErrNotFound
	}
	now := time.Now()
	m.DeletedAt = &now
	return nil
}

func (r *fakeMemoryRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	return nil
}

type fakeAssetRepo struct {
	mu   sync.Mutex
	rows map[string]*models.Asset
}

func newFakeAssetRepo() *fakeAssetRepo {
	return &fakeAssetRepo{rows: map[string]*models.Asset{}}
}

func assetKey(a *models.Asset) string {
	return fmt.Sprintf("%s|%s|%s", a.MemoryID, a.Backend, a.Type)
}

func (r *fakeAssetRepo) Upsert(ctx context.Context, a *models.Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.rows[assetKey(a)] = &cp
	return nil
}

func (r *fakeAssetRepo) ListByMemory(ctx context.Context, memoryID string) ([]*models.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Asset
	for _, a := range r.rows {
		if a.MemoryID == memoryID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeEdgeRepo struct {
	mu      sync.Mutex
	rows    map[string]*models.StorageEdge
	failDel bool
}

func newFakeEdgeRepo() *fakeEdgeRepo {
	return &fakeEdgeRepo{rows: map[string]*models.StorageEdge{}}
}

func edgeKey(memoryID string, b models.Backend, at models.AssetType) string {
	return fmt.Sprintf("%s|%s|%s", memoryID, b, at)
}

func (r *fakeEdgeRepo) Upsert(ctx context.Context, e *models.StorageEdge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.rows[edgeKey(e.MemoryID, e.Backend, e.AssetType)] = &cp
	return nil
}

func (r *fakeEdgeRepo) ListByMemory(ctx context.Context, memoryID string) ([]*models.StorageEdge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.StorageEdge
	for _, e := range r.rows {
		if e.MemoryID == memoryID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeEdgeRepo) MarkVerified(ctx context.Context, memoryID string, b models.Backend, at models.AssetType, checksum string) (*models.StorageEdge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[edgeKey(memoryID, b, at)]
	if !ok {
		return nil, common.ErrNotFound
	}
	now := time.Now()
	e.Verification = models.EdgeVerified
	e.VerifiedAt = &now
	if checksum != "" {
		e.Checksum = checksum
	}
	cp := *e
	return &cp, nil
}

func (r *fakeEdgeRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failDel {
		return errors.New("edge delete refused")
	}
	for k, e := range r.rows {
		if e.ID == id {
			delete(r.rows, k)
			return nil
		}
	}
	return common.ErrNotFound
}

type fakePrefRepo struct {
	mu   sync.Mutex
	rows map[string]models.StoragePreference
}

func newFakePrefRepo() *fakePrefRepo {
	return &fakePrefRepo{rows: map[string]models.StoragePreference{}}
}

func (r *fakePrefRepo) Get(ctx context.Context, ownerID string) (models.StoragePreference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[ownerID]
	if !ok {
		return "", common.ErrNotFound
	}
	return p, nil
}

func (r *fakePrefRepo) Set(ctx context.Context, ownerID string, p models.StoragePreference) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[ownerID] = p
	return nil
}

type fakeRepoManager struct {
	memories *fakeMemoryRepo
	assets   *fakeAssetRepo
	edges    *fakeEdgeRepo
	prefs    *fakePrefRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		memories: newFakeMemoryRepo(),
		assets:   newFakeAssetRepo(),
		edges:    newFakeEdgeRepo(),
		prefs:    newFakePrefRepo(),
	}
}

func (m *fakeRepoManager) Memories(db dbx.DBTX) memories.Repository        { return m.memories }
func (m *fakeRepoManager) Assets(db dbx.DBTX) assets.Repository            { return m.assets }
func (m *fakeRepoManager) Edges(db dbx.DBTX) edges.Repository              { return m.edges }
func (m *fakeRepoManager) Preferences(db dbx.DBTX) preferences.Repository  { return m.prefs }
func (m *fakeRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }

// ---- fake adapter ----

type fakeAdapter struct {
	mu      sync.Mutex
	name    string
	backend models.Backend

	uploadErr error
	deleteErr error

	uploads []storage.UploadRequest
	deletes []string
}

func (a *fakeAdapter) Upload(ctx context.Context, req storage.UploadRequest) (*storage.UploadResult, error) {
	a.mu.Lock()
	a.uploads = append(a.uploads, req)
	a.mu.Unlock()
	if a.uploadErr != nil {
		return nil, a.uploadErr
	}
	return &storage.UploadResult{
		Backend:  a.backend,
		Key:      a.name + "-key",
		URL:      "https://example.com/" + a.name,
		Size:     int64(len(req.Bytes)),
		Checksum: "sum-" + a.name,
	}, nil
}

func (a *fakeAdapter) Delete(ctx context.Context, key string) (bool, error) {
	a.mu.Lock()
	a.deletes = append(a.deletes, key)
	a.mu.Unlock()
	if a.deleteErr != nil {
		return false, a.deleteErr
	}
	return true, nil
}

func (a *fakeAdapter) uploadCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.uploads)
}

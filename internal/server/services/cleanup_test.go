package services

import (
	"context"
	"errors"
	"testing"

	"github.com/futuravault/futuravault/internal/server/models"
)

type cleanupFixture struct {
	coord     *CleanupCoordinator
	repos     *fakeRepoManager
	objectPut *fakeAdapter
	multipart *fakeAdapter
	canister  *fakeAdapter
}

func newCleanupFixture() *cleanupFixture {
	repos := newFakeRepoManager()
	set, objectPut, multipart, canister := testAdapterSet()
	selector := NewSelector(bothBackends(), set)
	coord := NewCleanupCoordinator(nil, repos, selector, testLogger())
	return &cleanupFixture{coord: coord, repos: repos, objectPut: objectPut, multipart: multipart, canister: canister}
}

func seedEdges(f *cleanupFixture) {
	ctx := context.Background()
	f.repos.edges.Upsert(ctx, &models.StorageEdge{
		ID: "edge-1", MemoryID: "mem-1", Backend: models.BackendNeon,
		AssetType: models.AssetOriginal, RemoteID: "neon-orig", SizeBytes: 100,
	})
	f.repos.edges.Upsert(ctx, &models.StorageEdge{
		ID: "edge-2", MemoryID: "mem-1", Backend: models.BackendNeon,
		AssetType: models.AssetThumb, RemoteID: "neon-thumb", SizeBytes: 10,
	})
	f.repos.edges.Upsert(ctx, &models.StorageEdge{
		ID: "edge-3", MemoryID: "mem-1", Backend: models.BackendICP,
		AssetType: models.AssetOriginal, RemoteID: "icp-orig", SizeBytes: 100,
	})
}

func TestCleanup_SettlesAllBackends(t *testing.T) {
	f := newCleanupFixture()
	seedEdges(f)

	result, err := f.coord.Cleanup(context.Background(), "mem-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.DeletedCount != 3 || len(result.Errors) != 0 {
		t.Fatalf("want 3 settled deletes, got %+v", result)
	}

	remaining, _ := f.repos.edges.ListByMemory(context.Background(), "mem-1")
	if len(remaining) != 0 {
		t.Fatalf("all edges must be removed, %d remain", len(remaining))
	}
}

func TestCleanup_OneBackendFailingDoesNotBlockSiblings(t *testing.T) {
	f := newCleanupFixture()
	seedEdges(f)
	f.canister.deleteErr = errors.New("canister unreachable")

	result, err := f.coord.Cleanup(context.Background(), "mem-1")
	if err != nil {
		t.Fatalf("per-backend failure must not fail the pass: %v", err)
	}
	if result.DeletedCount != 2 {
		t.Fatalf("want 2 settled deletes, got %d", result.DeletedCount)
	}
	if len(result.Errors) != 1 || result.Errors[0].Backend != models.BackendICP {
		t.Fatalf("the failed delete must be reported: %+v", result.Errors)
	}

	// The failed edge stays behind for a later pass.
	remaining, _ := f.repos.edges.ListByMemory(context.Background(), "mem-1")
	if len(remaining) != 1 || remaining[0].Backend != models.BackendICP {
		t.Fatalf("only the failed edge may remain, got %+v", remaining)
	}
}

func TestCleanup_RerunSettlesLeftovers(t *testing.T) {
	f := newCleanupFixture()
	seedEdges(f)
	f.canister.deleteErr = errors.New("canister unreachable")

	if _, err := f.coord.Cleanup(context.Background(), "mem-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The backend recovered; the second pass settles the leftover edge.
	f.canister.deleteErr = nil
	result, err := f.coord.Cleanup(context.Background(), "mem-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.DeletedCount != 1 || len(result.Errors) != 0 {
		t.Fatalf("rerun must settle the leftover edge, got %+v", result)
	}

	remaining, _ := f.repos.edges.ListByMemory(context.Background(), "mem-1")
	if len(remaining) != 0 {
		t.Fatalf("no edges may remain after the rerun")
	}
}

func TestCleanup_EdgeRemovalFailureKeepsEdgeAndReportsError(t *testing.T) {
	f := newCleanupFixture()
	seedEdges(f)
	f.repos.edges.failDel = true

	result, err := f.coord.Cleanup(context.Background(), "mem-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.DeletedCount != 0 || len(result.Errors) != 3 {
		t.Fatalf("edge removal failures must be reported per edge, got %+v", result)
	}
}

func TestCleanup_RoutesNeonDeleteBySize(t *testing.T) {
	f := newCleanupFixture()
	ctx := context.Background()
	threshold := f.mustNeonThreshold(t)

	f.repos.edges.Upsert(ctx, &models.StorageEdge{
		ID: "edge-small", MemoryID: "mem-1", Backend: models.BackendNeon,
		AssetType: models.AssetThumb, RemoteID: "small", SizeBytes: threshold,
	})
	f.repos.edges.Upsert(ctx, &models.StorageEdge{
		ID: "edge-large", MemoryID: "mem-1", Backend: models.BackendNeon,
		AssetType: models.AssetOriginal, RemoteID: "large", SizeBytes: threshold + 1,
	})

	if _, err := f.coord.Cleanup(ctx, "mem-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.objectPut.deletes) != 1 || f.objectPut.deletes[0] != "small" {
		t.Fatalf("small copy must delete via object put, got %v", f.objectPut.deletes)
	}
	if len(f.multipart.deletes) != 1 || f.multipart.deletes[0] != "large" {
		t.Fatalf("large copy must delete via multipart store, got %v", f.multipart.deletes)
	}
}

func (f *cleanupFixture) mustNeonThreshold(t *testing.T) int64 {
	t.Helper()
	desc, err := f.coord.selector.registry.Describe(models.BackendNeon)
	if err != nil {
		t.Fatalf("describe neon: %v", err)
	}
	return desc.Limits.DirectPutThreshold
}

func TestCleanup_NoEdgesIsNoop(t *testing.T) {
	f := newCleanupFixture()

	result, err := f.coord.Cleanup(context.Background(), "mem-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.DeletedCount != 0 || len(result.Errors) != 0 {
		t.Fatalf("cleanup of a memory without edges must be a no-op, got %+v", result)
	}
}

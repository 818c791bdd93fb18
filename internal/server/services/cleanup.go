package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/futuravault/futuravault/internal/logging"
	"github.com/futuravault/futuravault/internal/server/models"
	"github.com/futuravault/futuravault/internal/server/repositories/repomanager"
)

// CleanupError is one failed physical delete, kept for operator visibility.
type CleanupError struct {
	Backend models.Backend `json:"backend"`
	Key     string         `json:"key"`
	Message string         `json:"message"`
}

// CleanupResult reports the settle-all outcome of one cleanup pass.
type CleanupResult struct {
	DeletedCount int            `json:"deletedCount"`
	Errors       []CleanupError `json:"errors"`
}

// CleanupCoordinator tears down every physical copy a memory was
// replicated to. Failures never block or reverse the logical deletion; a
// failed edge stays behind so a later re-invocation can settle it.
type CleanupCoordinator struct {
	db       *sql.DB
	repos    repomanager.RepositoryManager
	selector *Selector
	logger   logging.Logger
}

func NewCleanupCoordinator(db *sql.DB, repos repomanager.RepositoryManager, selector *Selector, logger logging.Logger) *CleanupCoordinator {
	return &CleanupCoordinator{
		db:       db,
		repos:    repos,
		selector: selector,
		logger:   logger.With("module", "cleanup"),
	}
}

// Cleanup loads the memory's storage edges and issues one delete per
// (backend, key) pair in parallel, attempting every delete regardless of
// sibling failures. Deleting an already-absent object counts as success,
// so the pass is safe to re-run after a partial prior failure. Each edge
// is removed only after its physical delete settled.
func (c *CleanupCoordinator) Cleanup(ctx context.Context, memoryID string) (*CleanupResult, error) {
	edgeRepo := c.repos.Edges(c.db)

	edgeList, err := edgeRepo.ListByMemory(ctx, memoryID)
	if err != nil {
		return nil, fmt.Errorf("load edges: %w", err)
	}

	type edgeOutcome struct {
		edge *models.StorageEdge
		err  error
	}
	outcomes := make([]edgeOutcome, len(edgeList))

	var wg sync.WaitGroup
	for i, e := range edgeList {
		wg.Add(1)
		go func() {
			defer wg.Done()
			deleter := c.selector.DeleterFor(e.Backend, e.SizeBytes)
			_, err := deleter.Delete(ctx, e.RemoteID)
			outcomes[i] = edgeOutcome{edge: e, err: err}
		}()
	}
	wg.Wait()

	result := &CleanupResult{Errors: []CleanupError{}}
	for _, o := range outcomes {
		if o.err != nil {
			c.logger.Warn(ctx, "physical delete failed",
				"memory", memoryID, "backend", o.edge.Backend, "key", o.edge.RemoteID, "error", o.err)
			result.Errors = append(result.Errors, CleanupError{
				Backend: o.edge.Backend,
				Key:     o.edge.RemoteID,
				Message: o.err.Error(),
			})
			continue
		}

		if err := edgeRepo.Delete(ctx, o.edge.ID); err != nil {
			// The physical copy is gone but the edge remains; the next
			// pass treats the absent object as success and retries this.
			c.logger.Error(ctx, "edge delete failed", "memory", memoryID, "edge", o.edge.ID, "error", err)
			result.Errors = append(result.Errors, CleanupError{
				Backend: o.edge.Backend,
				Key:     o.edge.RemoteID,
				Message: err.Error(),
			})
			continue
		}
		result.DeletedCount++
	}

	return result, nil
}

package canister

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/futuravault/futuravault/internal/common"
	"github.com/futuravault/futuravault/internal/logging"
	"github.com/futuravault/futuravault/internal/server/models"
	"github.com/futuravault/futuravault/internal/storage"
)

const (
	putChunkAttempts = 3
	putChunkBackoff  = 500 * time.Millisecond
)

// ChunkedCanisterAdapter implements storage.Adapter over the canister
// inline/chunked protocol.
//
// Decision rule: payloads up to the inline max go through one
// memories_create call; larger payloads run the begin/put-chunk/finish
// session. The cutoff is a hard threshold, and a payload exceeding
// chunkSize*maxChunks is rejected before any network call.
type ChunkedCanisterAdapter struct {
	actor    Actor
	identity *Identity
	capsule  string
	limits   models.BackendLimits
	logger   logging.Logger
	now      func() time.Time
}

func NewAdapter(actor Actor, identity *Identity, capsule string, limits models.BackendLimits, logger logging.Logger) *ChunkedCanisterAdapter {
	return &ChunkedCanisterAdapter{
		actor:    actor,
		identity: identity,
		capsule:  capsule,
		limits:   limits,
		logger:   logger.With("module", "canister"),
		now:      time.Now,
	}
}

func (a *ChunkedCanisterAdapter) Upload(ctx context.Context, req storage.UploadRequest) (*storage.UploadResult, error) {
	// The canister requires an established identity session; there is no
	// anonymous fallback.
	if a.identity == nil {
		return nil, common.ErrIdentityRequired
	}
	if req.Grant.Expired(a.now()) {
		return nil, common.ErrGrantExpired
	}

	size := int64(len(req.Bytes))
	if size == 0 {
		return nil, fmt.Errorf("%w: empty payload", common.ErrValidation)
	}

	if size <= a.limits.InlineMax {
		return a.uploadInline(ctx, req)
	}
	return a.uploadChunked(ctx, req)
}

func (a *ChunkedCanisterAdapter) uploadInline(ctx context.Context, req storage.UploadRequest) (*storage.UploadResult, error) {
	size := int64(len(req.Bytes))

	// The inline path cannot report partial progress.
	req.ReportProgress(0, size)

	memoryID, err := a.actor.MemoriesCreate(ctx, a.capsule, InlineMemory{
		Meta:  a.meta(req),
		Bytes: req.Bytes,
	}, req.Grant.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("inline create: %w", err)
	}

	req.ReportProgress(size, size)

	sum := sha256.Sum256(req.Bytes)
	return &storage.UploadResult{
		Backend:  models.BackendICP,
		Key:      memoryID,
		Size:     size,
		Checksum: fmt.Sprintf("%x", sum),
	}, nil
}

func (a *ChunkedCanisterAdapter) uploadChunked(ctx context.Context, req storage.UploadRequest) (*storage.UploadResult, error) {
	size := int64(len(req.Bytes))
	chunkSize := a.limits.ChunkSize

	expectedChunks := int((size + chunkSize - 1) / chunkSize)
	if expectedChunks > a.limits.MaxChunks {
		return nil, fmt.Errorf("%w: %d chunks needed, limit %d (max %d bytes)",
			common.ErrChunkCountExceeded, expectedChunks, a.limits.MaxChunks, a.limits.MaxChunkedSize())
	}

	sessionID, err := a.actor.UploadsBegin(ctx, a.capsule, a.meta(req), expectedChunks, req.Grant.IdempotencyKey)
	if err != nil {
		// Nothing to abort: no session was established.
		return nil, fmt.Errorf("uploads_begin: %w", err)
	}

	hash := sha256.New()
	var sent int64

	// Chunks must be acknowledged in index order; the canister assembles
	// by position, so a session is never parallelized.
	for index := 0; index < expectedChunks; index++ {
		start := int64(index) * chunkSize
		end := start + chunkSize
		if end > size {
			end = size
		}
		chunk := req.Bytes[start:end]

		if err := a.putChunkWithRetry(ctx, sessionID, index, chunk); err != nil {
			a.abort(ctx, sessionID)
			return nil, fmt.Errorf("uploads_put_chunk %d: %w", index, err)
		}

		hash.Write(chunk)
		sent = end
		req.ReportProgress(sent, size)
	}

	memoryID, err := a.actor.UploadsFinish(ctx, sessionID, hash.Sum(nil), size)
	if err != nil {
		a.abort(ctx, sessionID)
		return nil, fmt.Errorf("uploads_finish: %w", err)
	}

	return &storage.UploadResult{
		Backend:  models.BackendICP,
		Key:      memoryID,
		Size:     size,
		Checksum: fmt.Sprintf("%x", hash.Sum(nil)),
	}, nil
}

// putChunkWithRetry resubmits the same index and payload on transient
// failures. The call is idempotent by index, so a duplicate acknowledgement
// cannot corrupt reassembly.
func (a *ChunkedCanisterAdapter) putChunkWithRetry(ctx context.Context, sessionID string, index int, chunk []byte) error {
	backoff := retry.WithMaxRetries(putChunkAttempts-1, retry.NewConstant(putChunkBackoff))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := a.actor.UploadsPutChunk(ctx, sessionID, index, chunk)
		if err == nil {
			return nil
		}
		var callErr *CallError
		if errors.As(err, &callErr) && callErr.Transient() {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (a *ChunkedCanisterAdapter) abort(ctx context.Context, sessionID string) {
	if err := a.actor.UploadsAbort(ctx, sessionID); err != nil {
		a.logger.Warn(ctx, "uploads_abort failed", "session", sessionID, "error", err)
	}
}

func (a *ChunkedCanisterAdapter) meta(req storage.UploadRequest) MemoryMeta {
	return MemoryMeta{
		Name:        req.Name,
		MimeType:    req.MimeType,
		Description: req.Description,
		Tags:        req.Tags,
	}
}

// Delete removes the canister memory behind key. An already-absent memory
// counts as success so re-invoked cleanup settles.
func (a *ChunkedCanisterAdapter) Delete(ctx context.Context, key string) (bool, error) {
	if a.identity == nil {
		return false, common.ErrIdentityRequired
	}

	err := a.actor.MemoriesDelete(ctx, key)
	if err == nil {
		return true, nil
	}

	var callErr *CallError
	if errors.As(err, &callErr) && callErr.Code == http.StatusNotFound {
		return true, nil
	}
	return false, fmt.Errorf("memories_delete: %w", err)
}

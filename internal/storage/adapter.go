// Package storage defines the uniform upload contract implemented by every
// backend adapter, regardless of the wire protocol behind it.
package storage

import (
	"context"

	"github.com/futuravault/futuravault/internal/server/models"
)

// ProgressFunc is called after each acknowledged transfer step with the
// number of bytes durably sent so far. Single-shot protocols report 0 and
// then totalBytes; the chunked protocol reports after every chunk.
type ProgressFunc func(bytesUploaded, totalBytes int64)

// UploadRequest carries one byte buffer and its destination decision.
type UploadRequest struct {
	// Key is the destination hint (object key) for backends that take one.
	Key string
	// Bytes is the complete payload. Adapters never mutate it.
	Bytes    []byte
	MimeType string

	// Name, Description and Tags travel with the canister inline/meta call.
	Name        string
	Description string
	Tags        []string

	// Grant is the storage selection minted for this attempt. Every adapter
	// rejects an expired grant before touching the network.
	Grant models.UploadGrant

	// Progress is optional.
	Progress ProgressFunc
}

// UploadResult describes one stored copy.
type UploadResult struct {
	Backend  models.Backend
	Key      string
	URL      string
	Size     int64
	Checksum string
}

// Adapter is the uniform upload contract. Implementations:
// blobput.ObjectPutAdapter, s3multi.MultipartAdapter and
// canister.ChunkedCanisterAdapter.
type Adapter interface {
	Upload(ctx context.Context, req UploadRequest) (*UploadResult, error)

	// Delete removes the object behind key. Deleting an already-absent
	// object reports success so cleanup stays idempotent.
	Delete(ctx context.Context, key string) (bool, error)
}

func (r *UploadRequest) ReportProgress(sent, total int64) {
	if r.Progress != nil {
		r.Progress(sent, total)
	}
}

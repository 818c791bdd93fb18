// Package canister implements the ICP backend: an agent client for the
// canister actor, the cryptographic identity it calls with, and the
// inline/chunked upload adapter on top of both.
package canister

import "context"

// MemoryMeta travels with uploads_begin and memories_create.
type MemoryMeta struct {
	Name        string   `json:"name"`
	MimeType    string   `json:"mime_type"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// InlineMemory is the single-call payload of the inline path.
type InlineMemory struct {
	Meta  MemoryMeta `json:"meta"`
	Bytes []byte     `json:"bytes"`
}

// Actor is the canister upload interface. Every call returns an explicit
// error derived from the canister's Ok/Err tagged result; there are no
// implicit exceptions on the wire.
type Actor interface {
	// UploadsBegin opens a chunked session and returns its id.
	UploadsBegin(ctx context.Context, capsule string, meta MemoryMeta, expectedChunks int, idempotencyKey string) (string, error)

	// UploadsPutChunk submits one slice. The canister assembles chunks by
	// index, so resubmitting the same index with the same bytes is safe.
	UploadsPutChunk(ctx context.Context, sessionID string, index int, chunk []byte) error

	// UploadsFinish seals the session against the content hash and total
	// size and returns the new memory id.
	UploadsFinish(ctx context.Context, sessionID string, sha256Hash []byte, totalSize int64) (string, error)

	// UploadsAbort discards a session after a begin/finish failure.
	UploadsAbort(ctx context.Context, sessionID string) error

	// MemoriesCreate is the inline path: one call carrying the full payload.
	MemoriesCreate(ctx context.Context, capsule string, data InlineMemory, idempotencyKey string) (string, error)

	// MemoriesDelete removes a stored memory. Deleting an absent memory
	// is not an error.
	MemoriesDelete(ctx context.Context, memoryID string) error
}

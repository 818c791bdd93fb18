package models

import "time"

// MemoryType classifies the logical item a user stored.
type MemoryType string

const (
	MemoryImage    MemoryType = "image"
	MemoryVideo    MemoryType = "video"
	MemoryAudio    MemoryType = "audio"
	MemoryDocument MemoryType = "document"
	MemoryNote     MemoryType = "note"
)

func (t MemoryType) Valid() bool {
	switch t {
	case MemoryImage, MemoryVideo, MemoryAudio, MemoryDocument, MemoryNote:
		return true
	}
	return false
}

// StorageStatus is the aggregate replication state of a memory across
// backends, derived from storage edges and never maintained incrementally.
type StorageStatus string

const (
	// StatusWeb2Only: no canister copy exists for any asset.
	StatusWeb2Only StorageStatus = "web2_only"
	// StatusPartial: a canister copy exists for some but not all assets.
	StatusPartial StorageStatus = "partially_stored"
	// StatusForever: every required asset has a canister copy.
	StatusForever StorageStatus = "stored_forever"
)

// Memory is a logical item owned by a user. StorageLocations and
// StorageCount are cached projections of the storage edges; only the
// presence recorder writes them.
type Memory struct {
	ID          string
	OwnerID     string
	Type        MemoryType
	Title       string
	Description string

	StorageLocations []Backend
	StorageCount     int
	StorageStatus    StorageStatus

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

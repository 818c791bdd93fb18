package models

// AssetType names one physical byte-stream variant of a memory.
type AssetType string

const (
	AssetOriginal    AssetType = "original"
	AssetDisplay     AssetType = "display"
	AssetThumb       AssetType = "thumbnail"
	AssetPlaceholder AssetType = "placeholder"
	AssetPoster      AssetType = "poster"
	AssetWaveform    AssetType = "waveform"
)

// AssetStatus tracks per-asset processing state.
type AssetStatus string

const (
	AssetPending   AssetStatus = "pending"
	AssetCompleted AssetStatus = "completed"
	AssetFailed    AssetStatus = "failed"
)

// Asset is one physical byte-stream belonging to a memory. A completed
// asset always has a non-empty storage key and a registered backend.
type Asset struct {
	ID       string
	MemoryID string
	Type     AssetType
	Backend  Backend

	StorageKey string
	URL        string
	SizeBytes  int64
	MimeType   string
	Width      int
	Height     int

	Status AssetStatus
}

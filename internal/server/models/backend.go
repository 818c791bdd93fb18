// Package models defines server-side data models persisted in the database.
package models

// Backend identifies one logical storage backend holding physical copies.
//
// "neon" is the web2 side (relational metadata plus blob/S3 object storage,
// reachable over two wire protocols depending on file size); "icp" is the
// canister backend with its own inline/chunked protocol.
type Backend string

const (
	BackendNeon Backend = "neon"
	BackendICP  Backend = "icp"
)

// Valid reports whether b names a known backend.
func (b Backend) Valid() bool {
	return b == BackendNeon || b == BackendICP
}

// StoragePreference is the user's declared intent for where uploads go.
// It is advisory input to the selector, not part of the upload protocol.
type StoragePreference string

const (
	PreferenceNeon StoragePreference = "neon"
	PreferenceICP  StoragePreference = "icp"
	PreferenceDual StoragePreference = "dual"
)

func (p StoragePreference) Valid() bool {
	return p == PreferenceNeon || p == PreferenceICP || p == PreferenceDual
}

// Backends returns the backends the preference asks writes to go to,
// in selector invocation order.
func (p StoragePreference) Backends() []Backend {
	switch p {
	case PreferenceNeon:
		return []Backend{BackendNeon}
	case PreferenceICP:
		return []Backend{BackendICP}
	case PreferenceDual:
		return []Backend{BackendNeon, BackendICP}
	default:
		return nil
	}
}

// BackendLimits describes the capability limits of one backend as reported
// by the capability registry and carried on upload grants.
type BackendLimits struct {
	// InlineMax is the largest payload the canister accepts in a single
	// inline call. Zero for backends without an inline path.
	InlineMax int64
	// ChunkSize is the fixed chunk size of the canister chunked protocol.
	ChunkSize int64
	// MaxChunks caps the number of chunks per session.
	MaxChunks int
	// DirectPutThreshold is the size above which the neon path switches
	// from a single-shot PUT to presigned multipart.
	DirectPutThreshold int64
	// PartSize is the multipart part size used above the threshold.
	PartSize int64
}

// MaxChunkedSize returns the largest payload the chunked protocol can carry.
func (l BackendLimits) MaxChunkedSize() int64 {
	return l.ChunkSize * int64(l.MaxChunks)
}

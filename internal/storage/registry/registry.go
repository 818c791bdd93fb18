// Package registry holds static knowledge about the configured storage
// backends: which ones exist, their capability limits and availability.
// It is constructed once at process start and passed explicitly to the
// selector and adapters; nothing reads the environment afterwards.
package registry

import (
	"time"

	"github.com/futuravault/futuravault/internal/common"
	"github.com/futuravault/futuravault/internal/server/models"
)

// Reference capability limits.
const (
	// DefaultInlineMax is the largest payload the canister accepts inline.
	DefaultInlineMax = 1_572_864 // 1.5 MiB
	// DefaultChunkSize is the canister chunked-protocol slice size.
	DefaultChunkSize = 1_048_576 // 1 MiB
	// DefaultMaxChunks caps chunks per upload session.
	DefaultMaxChunks = 512
	// DefaultDirectPutThreshold is the neon-side cutoff above which uploads
	// bypass the application server via presigned multipart.
	DefaultDirectPutThreshold = 4 << 20
	// DefaultPartSize is the multipart part size.
	DefaultPartSize = 8 << 20
	// DefaultGrantTTL bounds how long an upload grant stays usable.
	DefaultGrantTTL = 600 * time.Second
)

// priority is the fixed order used by BestAvailable.
var priority = []models.Backend{models.BackendNeon, models.BackendICP}

// Description is the registry's answer about one backend.
type Description struct {
	Configured bool
	Limits     models.BackendLimits
	// CanisterID is the canister address, icp only.
	CanisterID string
}

// Config declares which backends the process was started with.
type Config struct {
	NeonConfigured bool
	ICPConfigured  bool
	CanisterID     string

	// Zero-valued limits fall back to the reference defaults.
	Neon models.BackendLimits
	ICP  models.BackendLimits

	GrantTTL time.Duration
}

// Registry is a read-only view over backend capabilities.
type Registry struct {
	backends map[models.Backend]Description
	grantTTL time.Duration
}

func New(cfg Config) *Registry {
	neon := cfg.Neon
	if neon.DirectPutThreshold == 0 {
		neon.DirectPutThreshold = DefaultDirectPutThreshold
	}
	if neon.PartSize == 0 {
		neon.PartSize = DefaultPartSize
	}

	icp := cfg.ICP
	if icp.InlineMax == 0 {
		icp.InlineMax = DefaultInlineMax
	}
	if icp.ChunkSize == 0 {
		icp.ChunkSize = DefaultChunkSize
	}
	if icp.MaxChunks == 0 {
		icp.MaxChunks = DefaultMaxChunks
	}

	ttl := cfg.GrantTTL
	if ttl == 0 {
		ttl = DefaultGrantTTL
	}

	return &Registry{
		backends: map[models.Backend]Description{
			models.BackendNeon: {Configured: cfg.NeonConfigured, Limits: neon},
			models.BackendICP:  {Configured: cfg.ICPConfigured, Limits: icp, CanisterID: cfg.CanisterID},
		},
		grantTTL: ttl,
	}
}

// Describe returns capability information for one backend.
func (r *Registry) Describe(b models.Backend) (Description, error) {
	d, ok := r.backends[b]
	if !ok {
		return Description{}, common.ErrBackendNotConfigured
	}
	return d, nil
}

// Configured reports whether b is known and available.
func (r *Registry) Configured(b models.Backend) bool {
	d, ok := r.backends[b]
	return ok && d.Configured
}

// BestAvailable returns the first configured backend in priority order.
// With no backend configured every upload must be rejected outright, so
// the error is terminal.
func (r *Registry) BestAvailable() (models.Backend, error) {
	for _, b := range priority {
		if r.Configured(b) {
			return b, nil
		}
	}
	return "", common.ErrNoBackendConfigured
}

// GrantTTL returns the lifetime stamped on new upload grants.
func (r *Registry) GrantTTL() time.Duration {
	return r.grantTTL
}

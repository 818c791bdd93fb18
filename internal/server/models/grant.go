package models

import "time"

// UploadGrant is the ephemeral storage selection minted before an upload
// begins. It is consumed once and never persisted beyond its TTL.
type UploadGrant struct {
	Backend        Backend
	IdempotencyKey string
	ExpiresAt      time.Time
	Limits         BackendLimits

	// CanisterID is set only for icp grants.
	CanisterID string
}

// Expired reports whether the grant may no longer be used. Adapters check
// this before any network call; an expired grant is a hard failure and the
// client must request a new one.
func (g UploadGrant) Expired(now time.Time) bool {
	return !now.Before(g.ExpiresAt)
}

package models

import "time"

// EdgeVerification is the verification state of a storage edge.
type EdgeVerification string

const (
	EdgePending  EdgeVerification = "pending"
	EdgeVerified EdgeVerification = "verified"
)

// StorageEdge links a memory to one physical copy in one backend. An edge
// exists if and only if the corresponding remote object is believed to
// exist; cleanup removes the edge only after the physical delete settled.
type StorageEdge struct {
	ID        string
	MemoryID  string
	Backend   Backend
	AssetType AssetType

	RemoteID  string
	Checksum  string
	SizeBytes int64

	Verification EdgeVerification
	VerifiedAt   *time.Time
}

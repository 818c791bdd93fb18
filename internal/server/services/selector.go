// Package services implements the storage orchestration engine: backend
// selection, upload execution, presence recording and cleanup.
package services

import (
	"fmt"

	"github.com/futuravault/futuravault/internal/common"
	"github.com/futuravault/futuravault/internal/server/models"
	"github.com/futuravault/futuravault/internal/storage"
	"github.com/futuravault/futuravault/internal/storage/registry"
)

// AdapterSet holds the one adapter per wire protocol. The selector picks
// from it exactly once per upload; nothing deeper in the call stack
// dispatches on backend tags.
type AdapterSet struct {
	ObjectPut storage.Adapter
	Multipart storage.Adapter
	Canister  storage.Adapter
}

// PlannedUpload is one adapter invocation the selector decided on.
type PlannedUpload struct {
	Backend models.Backend
	Adapter storage.Adapter
}

// BackendFailure reports a per-backend outcome that did not produce a copy.
type BackendFailure struct {
	Backend models.Backend
	Err     error
}

// Selector reconciles the user's declared preference with backend
// availability and file size.
//
// Decision table:
//
//	icp  -> canister adapter only, no size-based routing
//	neon -> object PUT below the direct threshold, presigned multipart above
//	dual -> neon-path adapter and canister adapter, independently
type Selector struct {
	registry *registry.Registry
	adapters AdapterSet
}

func NewSelector(reg *registry.Registry, adapters AdapterSet) *Selector {
	return &Selector{registry: reg, adapters: adapters}
}

// Plan returns the adapter invocations for one payload of the given size,
// plus per-backend failures for preferred backends that cannot serve. With
// a single-backend preference an unconfigured backend is an error; with
// dual the configured side still proceeds and the other side is reported
// as a failure, never silently upgraded.
func (s *Selector) Plan(size int64, pref models.StoragePreference) ([]PlannedUpload, []BackendFailure, error) {
	if !pref.Valid() {
		return nil, nil, fmt.Errorf("%w: unknown storage preference %q", common.ErrValidation, pref)
	}
	if _, err := s.registry.BestAvailable(); err != nil {
		return nil, nil, err
	}

	backends := pref.Backends()
	dual := pref == models.PreferenceDual

	var plans []PlannedUpload
	var failures []BackendFailure

	for _, b := range backends {
		if !s.registry.Configured(b) {
			if !dual {
				return nil, nil, fmt.Errorf("%w: %s", common.ErrBackendNotConfigured, b)
			}
			failures = append(failures, BackendFailure{Backend: b, Err: common.ErrBackendNotConfigured})
			continue
		}
		plans = append(plans, PlannedUpload{Backend: b, Adapter: s.adapterFor(b, size)})
	}

	if len(plans) == 0 {
		return nil, nil, common.ErrNoBackendConfigured
	}
	return plans, failures, nil
}

func (s *Selector) adapterFor(b models.Backend, size int64) storage.Adapter {
	if b == models.BackendICP {
		return s.adapters.Canister
	}
	desc, _ := s.registry.Describe(models.BackendNeon)
	if size <= desc.Limits.DirectPutThreshold {
		return s.adapters.ObjectPut
	}
	return s.adapters.Multipart
}

// DeleterFor returns the adapter that can delete the physical copy behind
// an edge. The neon side reuses the upload routing rule, so the same size
// deterministically lands on the same store.
func (s *Selector) DeleterFor(b models.Backend, size int64) storage.Adapter {
	return s.adapterFor(b, size)
}

// Package specs implements the versioned CameraSpec / ImagingSpec patch
// stores. Patch content is treated as opaque, content-addressed bytes;
// bit-level validation is a provider concern out of scope here. A store
// bumps its version only when a patch actually changes observable
// content, and defers APPLY_WHEN_SAFE patches until the caller reports
// the affected entity is safe to mutate.
package specs

import (
	"bytes"
	"errors"
)

// ApplyMode selects when a spec patch is allowed to take effect.
type ApplyMode int

const (
	ApplyWhenSafe ApplyMode = iota
	ApplyNow
)

// ErrUnsafeApplyNow is returned when an APPLY_NOW patch targets an entity
// that is not currently safe to mutate (an engaged device, an in-flight
// capture dependency).
var ErrUnsafeApplyNow = errors.New("specs: apply_now requested while unsafe")

// Entry is one versioned spec's current committed state plus any patch
// deferred because it arrived unsafe under APPLY_WHEN_SAFE.
type Entry struct {
	Version uint64
	Content []byte
	pending *pendingPatch
}

type pendingPatch struct {
	version uint64
	content []byte
}

// HasPending reports whether a patch is waiting for a safe window.
func (e *Entry) HasPending() bool { return e.pending != nil }

// CameraSpecStore holds one Entry per hardware_id.
type CameraSpecStore struct {
	entries map[string]*Entry
}

// NewCameraSpecStore returns an empty store.
func NewCameraSpecStore() *CameraSpecStore {
	return &CameraSpecStore{entries: make(map[string]*Entry)}
}

// Get returns the current entry for hardwareID, creating an empty one
// (version 0, nil content) if absent.
func (s *CameraSpecStore) Get(hardwareID string) *Entry {
	e, ok := s.entries[hardwareID]
	if !ok {
		e = &Entry{}
		s.entries[hardwareID] = e
	}
	return e
}

// Apply applies a patch to hardwareID's spec. safe reports whether the
// device is currently safe to mutate (not engaged, no in-flight capture
// dependency). Returns whether the version actually changed.
func (s *CameraSpecStore) Apply(hardwareID string, newVersion uint64, content []byte, mode ApplyMode, safe bool) (changed bool, err error) {
	e := s.Get(hardwareID)
	return applyToEntry(e, newVersion, content, mode, safe)
}

// RetryPending re-attempts any APPLY_WHEN_SAFE patch deferred for
// hardwareID, now that safe reports true. Called by the core loop after
// each relevant state transition. Returns whether it applied.
func (s *CameraSpecStore) RetryPending(hardwareID string, safe bool) (changed bool) {
	e, ok := s.entries[hardwareID]
	if !ok || e.pending == nil || !safe {
		return false
	}
	p := e.pending
	e.pending = nil
	changed, _ = applyToEntry(e, p.version, p.content, ApplyWhenSafe, true)
	return changed
}

// ImagingSpecStore holds the single global ImagingSpec entry.
type ImagingSpecStore struct {
	entry Entry
}

// NewImagingSpecStore returns a store with an empty initial spec.
func NewImagingSpecStore() *ImagingSpecStore {
	return &ImagingSpecStore{}
}

// Get returns the current entry.
func (s *ImagingSpecStore) Get() *Entry { return &s.entry }

// Apply applies a patch to the global ImagingSpec. safe reports whether
// every device is currently unengaged with no in-flight capture
// dependency, per spec.
func (s *ImagingSpecStore) Apply(newVersion uint64, content []byte, mode ApplyMode, safe bool) (changed bool, err error) {
	return applyToEntry(&s.entry, newVersion, content, mode, safe)
}

// RetryPending re-attempts a deferred APPLY_WHEN_SAFE patch now that safe
// reports true.
func (s *ImagingSpecStore) RetryPending(safe bool) (changed bool) {
	if s.entry.pending == nil || !safe {
		return false
	}
	p := s.entry.pending
	s.entry.pending = nil
	changed, _ = applyToEntry(&s.entry, p.version, p.content, ApplyWhenSafe, true)
	return changed
}

func applyToEntry(e *Entry, newVersion uint64, content []byte, mode ApplyMode, safe bool) (changed bool, err error) {
	if bytes.Equal(e.Content, content) {
		// Idempotent at identical content: no version bump, clear any
		// stale pending patch matching the already-applied content.
		if e.pending != nil && bytes.Equal(e.pending.content, content) {
			e.pending = nil
		}
		return false, nil
	}

	if mode == ApplyNow {
		if !safe {
			return false, ErrUnsafeApplyNow
		}
		e.Content = content
		e.Version = newVersion
		return true, nil
	}

	// ApplyWhenSafe
	if safe {
		e.Content = content
		e.Version = newVersion
		e.pending = nil
		return true, nil
	}
	e.pending = &pendingPatch{version: newVersion, content: content}
	return false, nil
}

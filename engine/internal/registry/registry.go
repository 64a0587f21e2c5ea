// Package registry implements the lifecycle registry: the store and
// indexes of every provider-reported native object, with retention
// windows and detached-lineage detection. All operations are core-thread
// only; nothing here is safe for concurrent use.
package registry

// Phase is the lifecycle stage of a native object record.
type Phase int

const (
	PhaseCreated Phase = iota
	PhaseLive
	PhaseTearingDown
	PhaseDestroyed
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "CREATED"
	case PhaseLive:
		return "LIVE"
	case PhaseTearingDown:
		return "TEARING_DOWN"
	case PhaseDestroyed:
		return "DESTROYED"
	default:
		return "UNKNOWN"
	}
}

// Record is a NativeObjectRecord: one provider-reported resource tracked
// by the registry.
type Record struct {
	NativeID               uint64
	Type                   string
	Phase                  Phase
	OwnerRigID             uint64
	OwnerDeviceInstanceID  uint64
	OwnerStreamID          uint64
	RootID                 uint64
	CreatedNS              int64
	DestroyedNS            int64
	BytesAllocated         int64
	BuffersInUse           int
}

// CreateInfo is the input to on_created.
type CreateInfo struct {
	NativeID              uint64
	Type                  string
	Phase                 Phase // CREATED or LIVE, per provider report
	OwnerRigID            uint64
	OwnerDeviceInstanceID uint64
	OwnerStreamID         uint64
	RootID                uint64
	CreatedNS             int64
	BytesAllocated        int64
}

// DuplicateNativeIDError is raised (as a panic, not a returned error) when
// on_created is called with a native_id already present: a programming
// bug, not a runtime condition.
type DuplicateNativeIDError struct {
	NativeID uint64
}

func (e *DuplicateNativeIDError) Error() string {
	return "registry: duplicate native_id on create"
}

// OwnerAliveFunc reports whether the entity owning root is still present
// and alive in core state (an armed rig, a live device instance). The
// registry has no notion of rigs/devices itself; the core loop supplies
// this predicate so detached_roots() can be computed.
type OwnerAliveFunc func(rootID uint64) bool

// Registry stores native-object records keyed by native_id, with
// secondary indexes by root_id, owner device instance, and phase.
type Registry struct {
	byNativeID map[uint64]*Record
	byRootID    map[uint64]map[uint64]struct{}
	byOwnerDev  map[uint64]map[uint64]struct{}
	byPhase     map[uint64]map[uint64]struct{}
	retentionMS int64
}

// New returns an empty Registry. retentionMS is the RETENTION_MS window
// (how long a DESTROYED record survives before Sweep), expressed in the
// same unit as the timestamps passed to OnDestroyed and Sweep; the core
// passes it in nanoseconds.
func New(retentionMS int64) *Registry {
	return &Registry{
		byNativeID:  make(map[uint64]*Record),
		byRootID:    make(map[uint64]map[uint64]struct{}),
		byOwnerDev:  make(map[uint64]map[uint64]struct{}),
		byPhase:     make(map[uint64]map[uint64]struct{}),
		retentionMS: retentionMS,
	}
}

// OnCreated inserts a new record. Panics with *DuplicateNativeIDError if
// native_id is already present, per spec: "reject duplicate native_id as
// a bug."
func (r *Registry) OnCreated(info CreateInfo) *Record {
	if _, exists := r.byNativeID[info.NativeID]; exists {
		panic(&DuplicateNativeIDError{NativeID: info.NativeID})
	}
	rec := &Record{
		NativeID:              info.NativeID,
		Type:                  info.Type,
		Phase:                 info.Phase,
		OwnerRigID:            info.OwnerRigID,
		OwnerDeviceInstanceID: info.OwnerDeviceInstanceID,
		OwnerStreamID:         info.OwnerStreamID,
		RootID:                info.RootID,
		CreatedNS:             info.CreatedNS,
		BytesAllocated:        info.BytesAllocated,
	}
	r.byNativeID[rec.NativeID] = rec
	r.indexInsert(rec)
	return rec
}

// OnDestroyed transitions a record to DESTROYED and stamps destroyed_ns.
// The caller (core loop) is responsible for scheduling the retention
// expiry timer at ts + RETENTION_MS.
func (r *Registry) OnDestroyed(nativeID uint64, ts int64) *Record {
	rec, ok := r.byNativeID[nativeID]
	if !ok {
		return nil
	}
	r.indexRemovePhase(rec)
	rec.Phase = PhaseDestroyed
	rec.DestroyedNS = ts
	r.indexInsertPhase(rec)
	return rec
}

// Transition moves rec to a new phase (CREATED→LIVE, LIVE→TEARING_DOWN).
// Destruction must go through OnDestroyed so destroyed_ns is stamped.
func (r *Registry) Transition(nativeID uint64, phase Phase) *Record {
	rec, ok := r.byNativeID[nativeID]
	if !ok {
		return nil
	}
	r.indexRemovePhase(rec)
	rec.Phase = phase
	r.indexInsertPhase(rec)
	return rec
}

// Get returns the record for nativeID, if present.
func (r *Registry) Get(nativeID uint64) (*Record, bool) {
	rec, ok := r.byNativeID[nativeID]
	return rec, ok
}

// Sweep removes every DESTROYED record whose retention window has
// elapsed as of now (destroyed_ns + RETENTION_MS ≤ now). Returns the
// count removed.
func (r *Registry) Sweep(now int64) int {
	removed := 0
	for id, rec := range r.byNativeID {
		if rec.Phase != PhaseDestroyed {
			continue
		}
		if rec.DestroyedNS+r.retentionMS > now {
			continue
		}
		r.indexRemove(rec)
		delete(r.byNativeID, id)
		removed++
	}
	return removed
}

// DetachedRoots returns the set of root_ids present in the registry whose
// owner (per isOwnerAlive) is no longer live in core state.
func (r *Registry) DetachedRoots(isOwnerAlive OwnerAliveFunc) map[uint64]struct{} {
	out := make(map[uint64]struct{})
	for rootID := range r.byRootID {
		if len(r.byRootID[rootID]) == 0 {
			continue
		}
		if !isOwnerAlive(rootID) {
			out[rootID] = struct{}{}
		}
	}
	return out
}

// ByOwnerDevice returns all native_ids owned by the given device instance.
func (r *Registry) ByOwnerDevice(deviceInstanceID uint64) []uint64 {
	return setKeys(r.byOwnerDev[deviceInstanceID])
}

// ByPhase returns all native_ids currently in the given phase.
func (r *Registry) ByPhase(phase Phase) []uint64 {
	return setKeys(r.byPhase[uint64(phase)])
}

// ByRoot returns all native_ids sharing the given root_id.
func (r *Registry) ByRoot(rootID uint64) []uint64 {
	return setKeys(r.byRootID[rootID])
}

// Len reports the total number of records currently tracked.
func (r *Registry) Len() int {
	return len(r.byNativeID)
}

func setKeys(m map[uint64]struct{}) []uint64 {
	if len(m) == 0 {
		return nil
	}
	out := make([]uint64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func (r *Registry) indexInsert(rec *Record) {
	r.indexSet(r.byRootID, rec.RootID, rec.NativeID)
	r.indexSet(r.byOwnerDev, rec.OwnerDeviceInstanceID, rec.NativeID)
	r.indexInsertPhase(rec)
}

func (r *Registry) indexInsertPhase(rec *Record) {
	r.indexSet(r.byPhase, uint64(rec.Phase), rec.NativeID)
}

func (r *Registry) indexRemovePhase(rec *Record) {
	r.indexUnset(r.byPhase, uint64(rec.Phase), rec.NativeID)
}

func (r *Registry) indexRemove(rec *Record) {
	r.indexUnset(r.byRootID, rec.RootID, rec.NativeID)
	r.indexUnset(r.byOwnerDev, rec.OwnerDeviceInstanceID, rec.NativeID)
	r.indexRemovePhase(rec)
}

func (r *Registry) indexSet(idx map[uint64]map[uint64]struct{}, key, nativeID uint64) {
	set, ok := idx[key]
	if !ok {
		set = make(map[uint64]struct{})
		idx[key] = set
	}
	set[nativeID] = struct{}{}
}

func (r *Registry) indexUnset(idx map[uint64]map[uint64]struct{}, key, nativeID uint64) {
	set, ok := idx[key]
	if !ok {
		return
	}
	delete(set, nativeID)
	if len(set) == 0 {
		delete(idx, key)
	}
}

// Package snapshotbuilder assembles the immutable, publish-ready snapshot
// of core state: rigs, devices, streams, and native-object records, plus
// the gen/topology_gen/detached_root_ids bookkeeping. The Builder is the
// one stateful piece (it remembers the previous topology fingerprint and
// generation counter); everything else it produces is a fresh, immutable
// value safe to share across goroutines.
package snapshotbuilder

import (
	"sort"

	"cambang/engine/internal/registry"
)

// Rig is the publish-ready view of a rig.
type Rig struct {
	RigID               uint64
	Name                string
	Mode                string
	MemberHardwareIDs   []string
	ActiveCaptureID     uint64
	CaptureProfileVersion uint64
	Triggered           uint64
	Completed           uint64
	Failed              uint64
	LastCaptureID       uint64
	LastCaptureLatencyNS int64
	LastSyncSkewNS      int64
	ErrorCode           string
}

// Device is the publish-ready view of a device instance.
type Device struct {
	HardwareID          string
	InstanceID          uint64
	Phase               string
	Mode                string
	Engaged             bool
	RigID               uint64
	CameraSpecVersion   uint64
	CaptureProfileVersion uint64
	WarmHoldMS          int64
	WarmRemainingMS     int64
	RebuildCount        int
	ErrorsCount         int
	LastErrorCode       string
}

// Stream is the publish-ready view of a stream.
type Stream struct {
	StreamID       uint64
	DeviceInstanceID uint64
	Phase          string
	Intent         string
	Mode           string
	StopReason     string
	ProfileVersion uint64
	Width          int
	Height         int
	FormatFourCC   uint32
	TargetFPSMin   int
	TargetFPSMax   int
	FramesReceived uint64
	FramesDelivered uint64
	FramesDropped  uint64
	QueueDepth     int
	LastFrameTSNS  int64
}

// Snapshot is the immutable composite published by the core loop.
type Snapshot struct {
	SchemaVersion      int
	Gen                uint64
	TopologyGen        uint64
	TimestampNS        int64
	ImagingSpecVersion uint64
	Rigs               []Rig
	Devices            []Device
	Streams            []Stream
	NativeObjects      []registry.Record
	DetachedRootIDs    []uint64
}

// DeviceInput carries what the Builder needs from a device instance plus
// enough to compute warm_remaining_ms at snapshot time.
type DeviceInput struct {
	Device
	WarmDeadlineNS int64 // 0 if no warm timer currently scheduled
}

// Inputs is everything the core loop hands the Builder for one publish.
type Inputs struct {
	Rigs               []Rig
	Devices            []DeviceInput
	Streams            []Stream
	Registry           *registry.Registry
	IsRootOwnerAlive   registry.OwnerAliveFunc
	ImagingSpecVersion uint64
	TimestampNS        int64
}

// Builder assembles Snapshots and tracks gen/topology_gen across publishes.
type Builder struct {
	gen            uint64
	lastTopologyGen uint64
	lastFingerprint string
}

// New returns a Builder starting at gen 0 / topology_gen 0. The first
// Build call always produces gen 1.
func New() *Builder {
	return &Builder{}
}

// Build assembles one immutable Snapshot from in. gen increments on every
// call; topology_gen increments on the first call and whenever the
// topology fingerprint differs from the previous call's.
func (b *Builder) Build(in Inputs) Snapshot {
	b.gen++

	fp := topologyFingerprint(in)
	if b.gen == 1 || fp != b.lastFingerprint {
		b.lastTopologyGen++
	}
	b.lastFingerprint = fp

	devices := make([]Device, 0, len(in.Devices))
	for _, d := range in.Devices {
		dv := d.Device
		if d.WarmDeadlineNS > 0 {
			remaining := d.WarmDeadlineNS - in.TimestampNS
			if remaining < 0 {
				remaining = 0
			}
			dv.WarmRemainingMS = remaining / 1e6
		}
		devices = append(devices, dv)
	}

	var natives []registry.Record
	var detached []uint64
	if in.Registry != nil {
		for id := range allNativeIDs(in.Registry) {
			if rec, ok := in.Registry.Get(id); ok {
				natives = append(natives, *rec)
			}
		}
		if in.IsRootOwnerAlive != nil {
			set := in.Registry.DetachedRoots(in.IsRootOwnerAlive)
			for root := range set {
				detached = append(detached, root)
			}
			sort.Slice(detached, func(i, j int) bool { return detached[i] < detached[j] })
		}
	}
	sort.Slice(natives, func(i, j int) bool { return natives[i].NativeID < natives[j].NativeID })

	return Snapshot{
		SchemaVersion:      1,
		Gen:                b.gen,
		TopologyGen:        b.lastTopologyGen,
		TimestampNS:        in.TimestampNS,
		ImagingSpecVersion: in.ImagingSpecVersion,
		Rigs:               in.Rigs,
		Devices:            devices,
		Streams:            in.Streams,
		NativeObjects:      natives,
		DetachedRootIDs:    detached,
	}
}

func allNativeIDs(r *registry.Registry) map[uint64]struct{} {
	out := make(map[uint64]struct{})
	for _, phase := range []registry.Phase{registry.PhaseCreated, registry.PhaseLive, registry.PhaseTearingDown, registry.PhaseDestroyed} {
		for _, id := range r.ByPhase(phase) {
			out[id] = struct{}{}
		}
	}
	return out
}

// topologyFingerprint captures exactly the sets that drive topology_gen:
// rig_ids, (hardware_id, instance_id) pairs, stream_ids, rig membership,
// and root_ids present in the registry.
func topologyFingerprint(in Inputs) string {
	rigIDs := make([]uint64, 0, len(in.Rigs))
	for _, r := range in.Rigs {
		rigIDs = append(rigIDs, r.RigID)
	}
	sort.Slice(rigIDs, func(i, j int) bool { return rigIDs[i] < rigIDs[j] })

	type devKey struct {
		hw  string
		inst uint64
	}
	devKeys := make([]devKey, 0, len(in.Devices))
	for _, d := range in.Devices {
		devKeys = append(devKeys, devKey{d.HardwareID, d.InstanceID})
	}
	sort.Slice(devKeys, func(i, j int) bool {
		if devKeys[i].hw != devKeys[j].hw {
			return devKeys[i].hw < devKeys[j].hw
		}
		return devKeys[i].inst < devKeys[j].inst
	})

	streamIDs := make([]uint64, 0, len(in.Streams))
	for _, s := range in.Streams {
		streamIDs = append(streamIDs, s.StreamID)
	}
	sort.Slice(streamIDs, func(i, j int) bool { return streamIDs[i] < streamIDs[j] })

	var roots []uint64
	if in.Registry != nil {
		seen := make(map[uint64]struct{})
		for id := range allNativeIDs(in.Registry) {
			if rec, ok := in.Registry.Get(id); ok {
				seen[rec.RootID] = struct{}{}
			}
		}
		for r := range seen {
			roots = append(roots, r)
		}
		sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })
	}

	buf := make([]byte, 0, 256)
	appendUint64s := func(label string, vals []uint64) {
		buf = append(buf, label...)
		for _, v := range vals {
			buf = appendUint64(buf, v)
			buf = append(buf, ',')
		}
		buf = append(buf, ';')
	}
	appendUint64s("rig:", rigIDs)
	buf = append(buf, "dev:"...)
	for _, k := range devKeys {
		buf = append(buf, k.hw...)
		buf = append(buf, '#')
		buf = appendUint64(buf, k.inst)
		buf = append(buf, ',')
	}
	buf = append(buf, ';')
	appendUint64s("stream:", streamIDs)
	appendUint64s("root:", roots)
	for _, r := range in.Rigs {
		buf = append(buf, "mem"...)
		buf = appendUint64(buf, r.RigID)
		buf = append(buf, ':')
		for _, m := range r.MemberHardwareIDs {
			buf = append(buf, m...)
			buf = append(buf, ',')
		}
		buf = append(buf, ';')
	}
	return string(buf)
}

func appendUint64(buf []byte, v uint64) []byte {
	if v == 0 {
		return append(buf, '0')
	}
	var tmp [20]byte
	i := len(tmp)
	for v > 0 {
		i--
		tmp[i] = byte('0' + v%10)
		v /= 10
	}
	return append(buf, tmp[i:]...)
}

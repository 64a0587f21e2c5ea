package engine

import "cambang/engine/internal/snapshotbuilder"

// These aliases re-export the internal snapshot view types so host code
// never needs to import engine/internal/snapshotbuilder directly.
type (
	Snapshot           = snapshotbuilder.Snapshot
	SnapshotRig        = snapshotbuilder.Rig
	SnapshotDevice     = snapshotbuilder.Device
	SnapshotStream     = snapshotbuilder.Stream
)

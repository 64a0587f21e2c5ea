package engine

import (
	"cambang/engine/internal/snapshotbuilder"
)

// publish assembles the current rig/device/stream maps into a Snapshot and
// publishes it. Called from Step only when the iteration left state dirty.
func (c *Core) publish(now int64) {
	rigs := make([]snapshotbuilder.Rig, 0, len(c.rigs))
	for _, r := range c.rigs {
		rigs = append(rigs, snapshotbuilder.Rig{
			RigID:                 r.RigID,
			Name:                  r.Name,
			Mode:                  r.machine.Mode.String(),
			MemberHardwareIDs:     r.Members,
			ActiveCaptureID:       r.ActiveCaptureID,
			CaptureProfileVersion: r.CaptureProfileVersion,
			Triggered:             r.Triggered,
			Completed:             r.Completed,
			Failed:                r.Failed,
			LastCaptureID:         r.LastCaptureID,
			LastCaptureLatencyNS:  r.LastCaptureLatencyNS,
			LastSyncSkewNS:        r.LastSyncSkewNS,
			ErrorCode:             r.ErrorCode,
		})
	}

	devices := make([]snapshotbuilder.DeviceInput, 0, len(c.devices))
	for _, d := range c.devices {
		devices = append(devices, snapshotbuilder.DeviceInput{
			Device: snapshotbuilder.Device{
				HardwareID:            d.HardwareID,
				InstanceID:            d.InstanceID,
				Phase:                 d.machine.Phase.String(),
				Mode:                  d.machine.Mode.String(),
				Engaged:               true,
				RigID:                 d.RigID,
				CameraSpecVersion:     d.CameraSpecVersion,
				CaptureProfileVersion: d.CaptureProfileVersion,
				WarmHoldMS:            d.WarmHoldMS,
				RebuildCount:          d.RebuildCount,
				ErrorsCount:           d.ErrorsCount,
				LastErrorCode:         d.LastErrorCode,
			},
			WarmDeadlineNS: d.warmDeadlineNS,
		})
	}

	streams := make([]snapshotbuilder.Stream, 0, len(c.streams))
	for _, s := range c.streams {
		streams = append(streams, snapshotbuilder.Stream{
			StreamID:         s.StreamID,
			DeviceInstanceID: s.DeviceInstanceID,
			Phase:            s.machine.Phase.String(),
			Intent:           s.Intent.String(),
			Mode:             s.machine.Mode.String(),
			StopReason:       s.machine.StopReason.String(),
			ProfileVersion:   s.ProfileVersion,
			Width:            s.Width,
			Height:           s.Height,
			FormatFourCC:     uint32(s.FormatFourCC),
			TargetFPSMin:     s.TargetFPSMin,
			TargetFPSMax:     s.TargetFPSMax,
			FramesReceived:   s.FramesReceived,
			FramesDelivered:  s.FramesDelivered,
			FramesDropped:    s.FramesDropped,
			QueueDepth:       s.QueueDepth,
			LastFrameTSNS:    s.LastFrameTSNS,
		})
	}

	snap := c.builder.Build(snapshotbuilder.Inputs{
		Rigs:               rigs,
		Devices:            devices,
		Streams:            streams,
		Registry:           c.registry,
		IsRootOwnerAlive:   c.isRootOwnerAlive,
		ImagingSpecVersion: c.imagingSpec.Get().Version,
		TimestampNS:        now,
	})
	c.publisher.Publish(snap)
}

// isRootOwnerAlive reports whether rootID matches the root id of a device
// instance still present in core state, in any phase, or the id of a rig
// present in core state, in any mode.
func (c *Core) isRootOwnerAlive(rootID uint64) bool {
	for _, d := range c.devices {
		if d.RootID == rootID {
			return true
		}
	}
	for _, r := range c.rigs {
		if r.RigID == rootID {
			return true
		}
	}
	return false
}

package engine

import (
	"cambang/engine/internal/arbitration"
	"cambang/engine/internal/fsm"
	"cambang/engine/internal/timers"
	"cambang/engine/pixelformat"
)

// rigEntity is the core-thread-owned state for one rig, combining its
// closed-table machine with the bookkeeping the snapshot builder and
// arbitration engine need.
type rigEntity struct {
	RigID   uint64
	Name    string
	Members []string // hardware_ids, in create_rig order

	machine *fsm.RigMachine

	ActiveCaptureID       uint64
	CaptureProfileVersion uint64
	Triggered             uint64
	Completed             uint64
	Failed                uint64
	LastCaptureID         uint64
	LastCaptureLatencyNS  int64
	LastSyncSkewNS        int64
	ErrorCode             string
}

func newRigEntity(rigID uint64, name string, members []string) *rigEntity {
	return &rigEntity{
		RigID:   rigID,
		Name:    name,
		Members: members,
		machine: fsm.NewRigMachine(),
	}
}

// deviceEntity is the core-thread-owned state for one engaged device
// instance.
type deviceEntity struct {
	HardwareID string
	InstanceID uint64
	RootID     uint64

	machine *fsm.DeviceMachine

	RigID                 uint64 // 0 if not a rig member
	CameraSpecVersion     uint64
	CaptureProfileVersion uint64
	WarmHoldMS            int64
	RebuildCount          int
	ErrorsCount           int
	LastErrorCode         string

	Capability   arbitration.Capability
	StillProfile arbitration.StillProfile

	activeStreamID  uint64 // 0 if none
	activeCaptureID uint64 // 0 if none

	warmDeadlineNS int64 // 0 if no warm timer currently scheduled
	warmHandle     timers.Handle
	hasWarmTimer   bool
}

func newDeviceEntity(hardwareID string, instanceID, rootID uint64, warmHoldMS int64) *deviceEntity {
	return &deviceEntity{
		HardwareID: hardwareID,
		InstanceID: instanceID,
		RootID:     rootID,
		machine:    fsm.NewDeviceMachine(),
		WarmHoldMS: warmHoldMS,
	}
}

// inUse reports whether this device currently has an active stream or an
// in-flight capture. A device with neither is eligible for warm-hold
// teardown once its warm timer expires.
func (d *deviceEntity) inUse() bool {
	return d.activeStreamID != 0 || d.activeCaptureID != 0
}

// streamEntity is the core-thread-owned state for one stream.
type streamEntity struct {
	StreamID         uint64
	DeviceInstanceID uint64

	machine *fsm.StreamMachine

	Intent         arbitration.Intent
	ProfileVersion uint64
	Width          int
	Height         int
	FormatFourCC   pixelformat.FourCC
	TargetFPSMin   int
	TargetFPSMax   int

	FramesReceived  uint64
	FramesDelivered uint64
	FramesDropped   uint64
	QueueDepth      int
	LastFrameTSNS   int64

	starvationHandle    timers.Handle
	hasStarvationTimer  bool
}

func newStreamEntity(streamID, deviceInstanceID uint64, profile arbitration.StreamProfile) *streamEntity {
	return &streamEntity{
		StreamID:         streamID,
		DeviceInstanceID: deviceInstanceID,
		machine:          fsm.NewStreamMachine(),
		Intent:           profile.Intent,
		Width:            profile.Width,
		Height:           profile.Height,
		FormatFourCC:     profile.FormatFourCC,
		TargetFPSMin:     profile.TargetFPSMin,
		TargetFPSMax:     profile.TargetFPSMax,
	}
}

func (s *streamEntity) ref() arbitration.StreamRef {
	return arbitration.StreamRef{StreamID: s.StreamID, Intent: s.Intent}
}

package engine

import (
	"github.com/google/uuid"

	"cambang/engine/internal/arbitration"
	"cambang/engine/internal/specs"
	"cambang/engine/internal/tuning"
)

// CorrelationID tags a command (and any spans/log lines/events derived
// from handling it) for cross-cutting tracing.
type CorrelationID string

// NewCorrelationID returns a fresh random correlation id.
func NewCorrelationID() CorrelationID {
	return CorrelationID(uuid.NewString())
}

// CommandKind enumerates the host-facing command surface.
type CommandKind int

const (
	CmdEnumerateEndpoints CommandKind = iota
	CmdEngageDevice
	CmdDisengageDevice
	CmdSetWarmPolicy
	CmdCreateStream
	CmdDestroyStream
	CmdStartStream
	CmdStopStream
	CmdSetStillCaptureProfile
	CmdTriggerDeviceCapture
	CmdCreateRig
	CmdDestroyRig
	CmdArmRig
	CmdDisarmRig
	CmdTriggerRigSyncCapture
	CmdUpdateCameraSpec
	CmdUpdateImagingSpec
	CmdUpdateTuning
	CmdShutdown
)

var commandKindNames = [...]string{
	"enumerate_endpoints", "engage_device", "disengage_device", "set_warm_policy",
	"create_stream", "destroy_stream", "start_stream", "stop_stream",
	"set_still_capture_profile", "trigger_device_capture", "create_rig", "destroy_rig",
	"arm_rig", "disarm_rig", "trigger_rig_sync_capture", "update_camera_spec",
	"update_imaging_spec", "update_tuning", "shutdown",
}

func (k CommandKind) String() string {
	if int(k) < 0 || int(k) >= len(commandKindNames) {
		return "unknown_command"
	}
	return commandKindNames[k]
}

// RigConfig is the member/coordination configuration supplied to
// create_rig.
type RigConfig struct {
	Name    string
	Members []string // hardware_ids
}

// Payload structs, one per CommandKind -----------------------------------

type EngageDevicePayload struct{ HardwareID string }
type DisengageDevicePayload struct{ InstanceID uint64 }
type SetWarmPolicyPayload struct {
	InstanceID uint64
	WarmHoldMS int64
}
type CreateStreamPayload struct {
	InstanceID uint64
	Profile    arbitration.StreamProfile
	Replace    bool
}
type DestroyStreamPayload struct{ StreamID uint64 }
type StartStreamPayload struct{ StreamID uint64 }
type StopStreamPayload struct{ StreamID uint64 }
type SetStillCaptureProfilePayload struct {
	InstanceID uint64
	Profile    arbitration.StillProfile
}
type TriggerDeviceCapturePayload struct{ InstanceID uint64 }
type CreateRigPayload struct {
	Name    string
	Members []string
	Config  RigConfig
}
type DestroyRigPayload struct{ RigID uint64 }
type ArmRigPayload struct{ RigID uint64 }
type DisarmRigPayload struct{ RigID uint64 }
type TriggerRigSyncCapturePayload struct{ RigID uint64 }
type UpdateCameraSpecPayload struct {
	HardwareID string
	NewVersion uint64
	Patch      []byte
	ApplyMode  specs.ApplyMode
}
type UpdateImagingSpecPayload struct {
	NewVersion uint64
	Patch      []byte
	ApplyMode  specs.ApplyMode
}
type UpdateTuningPayload struct{ Constants tuning.Constants }

// Command is an immutable message enqueued by a host thread. Every
// command carries a CorrelationID and an optional Reply channel; the core
// always posts exactly one reply (success, denial, or SHUTTING_DOWN).
type Command struct {
	Kind          CommandKind
	CorrelationID CorrelationID
	Payload       interface{}
	Reply         chan CommandReply
}

// CommandReply is the uniform reply envelope. Value's concrete type
// depends on Kind (e.g. uint64 for instance/stream/capture/rig ids,
// []provider.Endpoint for enumerate_endpoints); Err is non-nil on
// failure.
type CommandReply struct {
	Value interface{}
	Err   *CoreError
}

// newCommand allocates a Command with a fresh correlation id and a
// buffered reply channel of capacity 1, so posting a reply never blocks
// even if the caller stops waiting.
func newCommand(kind CommandKind, payload interface{}) Command {
	return Command{
		Kind:          kind,
		CorrelationID: NewCorrelationID(),
		Payload:       payload,
		Reply:         make(chan CommandReply, 1),
	}
}

package engine

import (
	"context"

	"cambang/engine/internal/arbitration"
	"cambang/engine/internal/specs"
	"cambang/engine/internal/tuning"
	"cambang/engine/provider"
)

// call submits cmd and blocks until the core posts a reply or ctx is
// cancelled. This is the only place a host thread waits on the core loop;
// every public method below is a thin, typed wrapper around it.
func (c *Core) call(ctx context.Context, cmd Command) (interface{}, error) {
	if err := c.submit(cmd); err != nil {
		return nil, NewCoreError(ErrQueueFull, err.Error())
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case reply := <-cmd.Reply:
		if reply.Err != nil {
			return reply.Value, reply.Err
		}
		return reply.Value, nil
	}
}

// EnumerateEndpoints returns the endpoints discovered at startup.
func (c *Core) EnumerateEndpoints(ctx context.Context) ([]provider.Endpoint, error) {
	v, err := c.call(ctx, newCommand(CmdEnumerateEndpoints, nil))
	if err != nil {
		return nil, err
	}
	eps, _ := v.([]provider.Endpoint)
	return eps, nil
}

// EngageDevice opens hardwareID and returns its device instance id.
// Idempotent: engaging an already-engaged hardware_id returns the existing
// instance id.
func (c *Core) EngageDevice(ctx context.Context, hardwareID string) (uint64, error) {
	return c.callUint64(ctx, newCommand(CmdEngageDevice, EngageDevicePayload{HardwareID: hardwareID}))
}

// DisengageDevice closes instanceID. Fails ERR_BUSY if the device has an
// active stream or capture.
func (c *Core) DisengageDevice(ctx context.Context, instanceID uint64) error {
	_, err := c.call(ctx, newCommand(CmdDisengageDevice, DisengageDevicePayload{InstanceID: instanceID}))
	return err
}

// SetWarmPolicy updates instanceID's warm_hold_ms, rescheduling its warm
// expiry timer if currently idle.
func (c *Core) SetWarmPolicy(ctx context.Context, instanceID uint64, warmHoldMS int64) error {
	_, err := c.call(ctx, newCommand(CmdSetWarmPolicy, SetWarmPolicyPayload{InstanceID: instanceID, WarmHoldMS: warmHoldMS}))
	return err
}

// CreateStream creates a stream on instanceID per profile, returning the
// new stream id. If replace is true and the device already has a stream,
// the existing one is destroyed first.
func (c *Core) CreateStream(ctx context.Context, instanceID uint64, profile arbitration.StreamProfile, replace bool) (uint64, error) {
	return c.callUint64(ctx, newCommand(CmdCreateStream, CreateStreamPayload{InstanceID: instanceID, Profile: profile, Replace: replace}))
}

// DestroyStream destroys streamID.
func (c *Core) DestroyStream(ctx context.Context, streamID uint64) error {
	_, err := c.call(ctx, newCommand(CmdDestroyStream, DestroyStreamPayload{StreamID: streamID}))
	return err
}

// StartStream starts flowing frames on streamID.
func (c *Core) StartStream(ctx context.Context, streamID uint64) error {
	_, err := c.call(ctx, newCommand(CmdStartStream, StartStreamPayload{StreamID: streamID}))
	return err
}

// StopStream stops streamID.
func (c *Core) StopStream(ctx context.Context, streamID uint64) error {
	_, err := c.call(ctx, newCommand(CmdStopStream, StopStreamPayload{StreamID: streamID}))
	return err
}

// SetStillCaptureProfile sets instanceID's still capture profile.
func (c *Core) SetStillCaptureProfile(ctx context.Context, instanceID uint64, profile arbitration.StillProfile) error {
	_, err := c.call(ctx, newCommand(CmdSetStillCaptureProfile, SetStillCaptureProfilePayload{InstanceID: instanceID, Profile: profile}))
	return err
}

// TriggerDeviceCapture triggers a still capture on instanceID, returning
// the new capture id.
func (c *Core) TriggerDeviceCapture(ctx context.Context, instanceID uint64) (uint64, error) {
	return c.callUint64(ctx, newCommand(CmdTriggerDeviceCapture, TriggerDeviceCapturePayload{InstanceID: instanceID}))
}

// CreateRig creates a rig of the given hardware_id members, returning the
// new rig id.
func (c *Core) CreateRig(ctx context.Context, name string, members []string) (uint64, error) {
	return c.callUint64(ctx, newCommand(CmdCreateRig, CreateRigPayload{Name: name, Members: members}))
}

// DestroyRig destroys rigID. Fails ERR_BAD_STATE unless the rig is OFF.
func (c *Core) DestroyRig(ctx context.Context, rigID uint64) error {
	_, err := c.call(ctx, newCommand(CmdDestroyRig, DestroyRigPayload{RigID: rigID}))
	return err
}

// ArmRig arms rigID.
func (c *Core) ArmRig(ctx context.Context, rigID uint64) error {
	_, err := c.call(ctx, newCommand(CmdArmRig, ArmRigPayload{RigID: rigID}))
	return err
}

// DisarmRig disarms rigID. Fails ERR_BAD_STATE if a capture is in flight.
func (c *Core) DisarmRig(ctx context.Context, rigID uint64) error {
	_, err := c.call(ctx, newCommand(CmdDisarmRig, DisarmRigPayload{RigID: rigID}))
	return err
}

// TriggerRigSyncCapture triggers a synchronized capture across every
// member of rigID, returning the shared capture id.
func (c *Core) TriggerRigSyncCapture(ctx context.Context, rigID uint64) (uint64, error) {
	return c.callUint64(ctx, newCommand(CmdTriggerRigSyncCapture, TriggerRigSyncCapturePayload{RigID: rigID}))
}

// UpdateCameraSpec patches hardwareID's CameraSpec.
func (c *Core) UpdateCameraSpec(ctx context.Context, hardwareID string, newVersion uint64, patch []byte, mode specs.ApplyMode) error {
	_, err := c.call(ctx, newCommand(CmdUpdateCameraSpec, UpdateCameraSpecPayload{
		HardwareID: hardwareID, NewVersion: newVersion, Patch: patch, ApplyMode: mode,
	}))
	return err
}

// UpdateImagingSpec patches the global ImagingSpec.
func (c *Core) UpdateImagingSpec(ctx context.Context, newVersion uint64, patch []byte, mode specs.ApplyMode) error {
	_, err := c.call(ctx, newCommand(CmdUpdateImagingSpec, UpdateImagingSpecPayload{
		NewVersion: newVersion, Patch: patch, ApplyMode: mode,
	}))
	return err
}

// UpdateTuning replaces the live tuning constants, e.g. in response to a
// hot-reloaded tuning file. Serialized through the command queue so it
// can never race a timer-scheduling decision mid-Step.
func (c *Core) UpdateTuning(ctx context.Context, constants tuning.Constants) error {
	_, err := c.call(ctx, newCommand(CmdUpdateTuning, UpdateTuningPayload{Constants: constants}))
	return err
}

// Shutdown begins an orderly teardown of every stream and device. Run
// returns once teardown completes.
func (c *Core) Shutdown(ctx context.Context) error {
	_, err := c.call(ctx, newCommand(CmdShutdown, nil))
	return err
}

func (c *Core) callUint64(ctx context.Context, cmd Command) (uint64, error) {
	v, err := c.call(ctx, cmd)
	if err != nil {
		return 0, err
	}
	id, _ := v.(uint64)
	return id, nil
}

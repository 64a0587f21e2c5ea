package engine

import (
	"context"
	"strconv"

	oteltrace "go.opentelemetry.io/otel/trace"

	"cambang/engine/internal/arbitration"
	"cambang/engine/internal/fsm"
	"cambang/engine/internal/ids"
	"cambang/engine/internal/specs"
	"cambang/engine/pixelformat"
	"cambang/engine/provider"
	"cambang/engine/telemetry/events"
	"cambang/engine/telemetry/tracing"
)

func idString(id uint64) string { return strconv.FormatUint(id, 10) }

// dispatch handles exactly one command, always posting a CommandReply
// (success, denial, or SHUTTING_DOWN) before returning. When tracing is
// enabled, the whole handling of the command runs inside one span, so an
// exporter can show a preemption or arbitration denial against the
// command that caused it.
func (c *Core) dispatch(cmd Command, now int64) {
	ctx := context.Background()
	var span oteltrace.Span
	if c.tracer != nil {
		ctx, span = c.tracer.StartCommand(ctx, cmd.Kind.String(), string(cmd.CorrelationID))
	}
	c.mCommands.Inc(1, cmd.Kind.String())

	if c.shuttingDown {
		c.reply(cmd, nil, NewCoreError(ErrShuttingDown, "core is shutting down"))
		if span != nil {
			tracing.EndCommand(span, "denied")
		}
		return
	}

	var value interface{}
	var err *CoreError

	switch cmd.Kind {
	case CmdEnumerateEndpoints:
		value = c.endpoints

	case CmdEngageDevice:
		value, err = c.handleEngageDevice(cmd.Payload.(EngageDevicePayload), now)

	case CmdDisengageDevice:
		err = c.handleDisengageDevice(cmd.Payload.(DisengageDevicePayload))

	case CmdSetWarmPolicy:
		err = c.handleSetWarmPolicy(cmd.Payload.(SetWarmPolicyPayload), now)

	case CmdCreateStream:
		value, err = c.handleCreateStream(cmd.Payload.(CreateStreamPayload), now)

	case CmdDestroyStream:
		err = c.handleDestroyStream(cmd.Payload.(DestroyStreamPayload), now)

	case CmdStartStream:
		err = c.handleStartStream(cmd.Payload.(StartStreamPayload))

	case CmdStopStream:
		err = c.handleStopStream(cmd.Payload.(StopStreamPayload))

	case CmdSetStillCaptureProfile:
		err = c.handleSetStillCaptureProfile(cmd.Payload.(SetStillCaptureProfilePayload))

	case CmdTriggerDeviceCapture:
		value, err = c.handleTriggerDeviceCapture(ctx, cmd.Payload.(TriggerDeviceCapturePayload), now)

	case CmdCreateRig:
		value = c.handleCreateRig(cmd.Payload.(CreateRigPayload))

	case CmdDestroyRig:
		err = c.handleDestroyRig(cmd.Payload.(DestroyRigPayload))

	case CmdArmRig:
		err = c.handleArmRig(cmd.Payload.(ArmRigPayload))

	case CmdDisarmRig:
		err = c.handleDisarmRig(cmd.Payload.(DisarmRigPayload))

	case CmdTriggerRigSyncCapture:
		value, err = c.handleTriggerRigSyncCapture(ctx, cmd.Payload.(TriggerRigSyncCapturePayload), now)

	case CmdUpdateCameraSpec:
		err = c.handleUpdateCameraSpec(cmd.Payload.(UpdateCameraSpecPayload))

	case CmdUpdateImagingSpec:
		err = c.handleUpdateImagingSpec(cmd.Payload.(UpdateImagingSpecPayload))

	case CmdUpdateTuning:
		err = c.handleUpdateTuning(ctx, cmd.Payload.(UpdateTuningPayload))

	case CmdShutdown:
		c.handleShutdown(now)

	default:
		err = NewCoreError(ErrInvalidArgument, "unknown command kind")
	}

	if err != nil {
		tracing.RecordError(ctx, err)
	}
	c.reply(cmd, value, err)
	if span != nil {
		outcome := "accepted"
		if err != nil {
			outcome = "error"
		}
		tracing.EndCommand(span, outcome)
	}
}

func (c *Core) reply(cmd Command, value interface{}, err *CoreError) {
	if cmd.Reply == nil {
		return
	}
	cmd.Reply <- CommandReply{Value: value, Err: err}
}

func mapProviderError(res provider.Result) *CoreError {
	if res.Ok() {
		return nil
	}
	var code ErrorCode
	switch res.Code {
	case provider.ErrNotSupported:
		code = ErrNotSupported
	case provider.ErrInvalidArgument:
		code = ErrInvalidArgument
	case provider.ErrBusy:
		code = ErrBusy
	case provider.ErrBadState:
		code = ErrBadState
	case provider.ErrPlatformConstraint:
		code = ErrPlatformConstraint
	case provider.ErrTransientFailure:
		code = ErrTransientFailure
	case provider.ErrShuttingDown:
		code = ErrShuttingDown
	default:
		code = ErrProviderFailed
	}
	return NewCoreError(code, res.Message)
}

func mapArbitrationError(err error) *CoreError {
	if err == nil {
		return nil
	}
	switch e := err.(type) {
	case *arbitration.ArbitrationError:
		return reasonToCoreError(e.Reason)
	case *arbitration.ValidationError:
		return reasonToCoreError(e.Reason)
	default:
		return NewCoreError(ErrInvalidArgument, err.Error())
	}
}

func reasonToCoreError(reason string) *CoreError {
	switch reason {
	case arbitration.ReasonRigAuthoritative:
		return NewCoreError(ErrRigAuthoritative, reason)
	case arbitration.ReasonBusy:
		return NewCoreError(ErrBusy, reason)
	case arbitration.ReasonBadState:
		return NewCoreError(ErrBadState, reason)
	case arbitration.ReasonInvalidArgument:
		return NewCoreError(ErrInvalidArgument, reason)
	case arbitration.ReasonNotSupported:
		return NewCoreError(ErrNotSupported, reason)
	case arbitration.ReasonProfileIncompatible:
		return NewCoreError(ErrProfileIncompatible, reason)
	default:
		return NewCoreError(ErrBadState, reason)
	}
}

// defaultCapability is the capability union assumed for a newly engaged
// device until a real CameraSpec patch narrows it. Bit-level capability
// negotiation is a provider/spec-patch concern out of scope here.
func defaultCapability() arbitration.Capability {
	return arbitration.Capability{
		SupportedFormats: []pixelformat.FourCC{pixelformat.NV12, pixelformat.I420, pixelformat.RGBA, pixelformat.JPEG, pixelformat.RAW},
		MaxWidth:         4096,
		MaxHeight:        4096,
		MinFPS:           1,
		MaxFPS:           240,
	}
}

func (c *Core) handleEngageDevice(p EngageDevicePayload, now int64) (uint64, *CoreError) {
	if existing, ok := c.deviceByHardwareID[p.HardwareID]; ok {
		return existing, nil
	}
	instanceID := c.idset.Next(ids.SpaceDevice)
	rootID := c.idset.Next(ids.SpaceRoot)
	d := newDeviceEntity(p.HardwareID, instanceID, rootID, c.tuning.Current().DefaultWarmHoldMS)
	d.Capability = defaultCapability()

	res := c.prov.OpenDevice(p.HardwareID, instanceID, rootID)
	if !res.Ok() {
		return 0, mapProviderError(res)
	}
	c.devices[instanceID] = d
	c.deviceByHardwareID[p.HardwareID] = instanceID
	c.markDirty()
	return instanceID, nil
}

func (c *Core) handleDisengageDevice(p DisengageDevicePayload) *CoreError {
	d := c.devices[p.InstanceID]
	if d == nil {
		return NewCoreError(ErrInvalidArgument, "unknown device instance")
	}
	if d.inUse() {
		return NewCoreError(ErrBusy, "device has an active stream or capture")
	}
	c.cancelWarmExpiry(d)
	c.beginDeviceTeardown(d)
	return nil
}

func (c *Core) handleSetWarmPolicy(p SetWarmPolicyPayload, now int64) *CoreError {
	d := c.devices[p.InstanceID]
	if d == nil {
		return NewCoreError(ErrInvalidArgument, "unknown device instance")
	}
	d.WarmHoldMS = p.WarmHoldMS
	c.maybeScheduleWarmExpiry(d, now)
	c.markDirty()
	return nil
}

func (c *Core) handleCreateStream(p CreateStreamPayload, now int64) (uint64, *CoreError) {
	d := c.devices[p.InstanceID]
	if d == nil {
		return 0, NewCoreError(ErrInvalidArgument, "unknown device instance")
	}

	var existingRef *arbitration.StreamRef
	if d.activeStreamID != 0 {
		if existing := c.streams[d.activeStreamID]; existing != nil {
			ref := existing.ref()
			existingRef = &ref
		}
	}

	armedRigMember := d.RigID != 0 && c.rigs[d.RigID] != nil && c.rigs[d.RigID].machine.Mode != fsm.RigOff
	normalized, aerr := c.arb.DecideCreateStream(p.Profile, d.Capability, armedRigMember, false, existingRef, p.Replace)
	if aerr != nil {
		return 0, mapArbitrationError(aerr)
	}

	if d.activeStreamID != 0 && p.Replace {
		if derr := c.handleDestroyStream(DestroyStreamPayload{StreamID: d.activeStreamID}, now); derr != nil {
			return 0, derr
		}
	}

	streamID := c.idset.Next(ids.SpaceStream)
	s := newStreamEntity(streamID, p.InstanceID, normalized)
	res := c.prov.CreateStream(provider.StreamRequest{
		DeviceInstanceID: p.InstanceID, StreamID: streamID,
		Width: normalized.Width, Height: normalized.Height, FormatFourCC: normalized.FormatFourCC,
		TargetFPSMin: normalized.TargetFPSMin, TargetFPSMax: normalized.TargetFPSMax,
	})
	if !res.Ok() {
		return 0, mapProviderError(res)
	}
	c.streams[streamID] = s
	d.activeStreamID = streamID
	c.cancelWarmExpiry(d)
	c.markDirty()
	return streamID, nil
}

func (c *Core) handleDestroyStream(p DestroyStreamPayload, now int64) *CoreError {
	s := c.streams[p.StreamID]
	if s == nil {
		return NewCoreError(ErrInvalidArgument, "unknown stream")
	}
	res := c.prov.DestroyStream(p.StreamID)
	if !res.Ok() {
		return mapProviderError(res)
	}
	c.cancelStarvationWatchdog(s)
	if d := c.devices[s.DeviceInstanceID]; d != nil && d.activeStreamID == s.StreamID {
		d.activeStreamID = 0
		c.maybeScheduleWarmExpiry(d, now)
	}
	c.markDirty()
	return nil
}

func (c *Core) handleStartStream(p StartStreamPayload) *CoreError {
	s := c.streams[p.StreamID]
	if s == nil {
		return NewCoreError(ErrInvalidArgument, "unknown stream")
	}
	if s.machine.Mode != fsm.StreamStopped {
		return NewCoreError(ErrBadState, "stream already started")
	}
	d := c.devices[s.DeviceInstanceID]
	captureInFlight := d != nil && d.activeCaptureID != 0
	if d != nil && d.RigID != 0 {
		if rig := c.rigs[d.RigID]; rig != nil && rig.ActiveCaptureID != 0 {
			captureInFlight = true
		}
	}
	if aerr := c.arb.DecideStartStream(captureInFlight); aerr != nil {
		return mapArbitrationError(aerr)
	}
	res := c.prov.StartStream(p.StreamID)
	if !res.Ok() {
		return mapProviderError(res)
	}
	if d != nil {
		c.cancelWarmExpiry(d)
	}
	c.markDirty()
	return nil
}

func (c *Core) handleStopStream(p StopStreamPayload) *CoreError {
	s := c.streams[p.StreamID]
	if s == nil {
		return NewCoreError(ErrInvalidArgument, "unknown stream")
	}
	res := c.prov.StopStream(p.StreamID)
	if !res.Ok() {
		return mapProviderError(res)
	}
	c.markDirty()
	return nil
}

func (c *Core) handleSetStillCaptureProfile(p SetStillCaptureProfilePayload) *CoreError {
	d := c.devices[p.InstanceID]
	if d == nil {
		return NewCoreError(ErrInvalidArgument, "unknown device instance")
	}
	normalized, aerr := arbitration.ValidateStillProfile(p.Profile, d.Capability)
	if aerr != nil {
		return mapArbitrationError(aerr)
	}
	d.StillProfile = normalized
	d.CaptureProfileVersion++
	c.markDirty()
	return nil
}

func (c *Core) handleTriggerDeviceCapture(ctx context.Context, p TriggerDeviceCapturePayload, now int64) (uint64, *CoreError) {
	d := c.devices[p.InstanceID]
	if d == nil {
		return 0, NewCoreError(ErrInvalidArgument, "unknown device instance")
	}
	if d.machine.Mode != fsm.DeviceIdle && d.machine.Mode != fsm.DeviceStreaming {
		return 0, NewCoreError(ErrBadState, "device is not idle or streaming")
	}
	armedRigMember := d.RigID != 0 && c.rigs[d.RigID] != nil && c.rigs[d.RigID].machine.Mode != fsm.RigOff

	var active []arbitration.StreamRef
	if d.activeStreamID != 0 {
		if s := c.streams[d.activeStreamID]; s != nil {
			active = append(active, s.ref())
		}
	}

	toPreempt, aerr := c.arb.DecideTriggerDeviceCapture(armedRigMember, false, active)
	if aerr != nil {
		return 0, mapArbitrationError(aerr)
	}
	for _, ref := range toPreempt {
		c.preemptStream(ctx, ref.StreamID)
	}

	captureID := c.idset.Next(ids.SpaceCapture)
	res := c.prov.TriggerCapture(provider.CaptureRequest{
		DeviceInstanceID: p.InstanceID, CaptureID: captureID,
		Width: d.StillProfile.Width, Height: d.StillProfile.Height, FormatFourCC: d.StillProfile.FormatFourCC,
	})
	if !res.Ok() {
		return 0, mapProviderError(res)
	}
	d.machine.Apply(fsm.DeviceEventCaptureAccepted)
	d.activeCaptureID = captureID
	c.captures[captureID] = &captureContext{Pending: []uint64{p.InstanceID}, StartedNS: now}
	c.cancelWarmExpiry(d)
	c.markDirty()
	return captureID, nil
}

func (c *Core) preemptStream(ctx context.Context, streamID uint64) {
	s := c.streams[streamID]
	if s == nil {
		return
	}
	res := c.prov.StopStream(streamID)
	if !res.Ok() {
		return
	}
	s.machine.Apply(fsm.StreamEventStopped, fsm.StopReasonPreempted)
	c.cancelStarvationWatchdog(s)
	ownerInstanceID := s.DeviceInstanceID
	if d := c.devices[s.DeviceInstanceID]; d != nil {
		d.machine.Apply(fsm.DeviceEventStreamStopped)
		if d.activeStreamID == streamID {
			d.activeStreamID = 0
		}
	}

	c.mPreemptions.Inc(1)
	tracing.RecordArbitrationDecision(ctx, "preempted", "", idString(streamID))
	if c.eventsBus != nil {
		c.eventsBus.PublishCtx(ctx, events.Event{
			Category: events.CategoryPreemption,
			Type:     "stream_preempted",
			Fields: map[string]interface{}{
				"stream_id":   streamID,
				"instance_id": ownerInstanceID,
			},
		})
	}
}

func (c *Core) handleCreateRig(p CreateRigPayload) uint64 {
	rigID := c.idset.Next(ids.SpaceRig)
	members := p.Members
	if members == nil {
		members = p.Config.Members
	}
	name := p.Name
	if name == "" {
		name = p.Config.Name
	}
	rig := newRigEntity(rigID, name, members)
	c.rigs[rigID] = rig
	for _, hw := range members {
		if instanceID, ok := c.deviceByHardwareID[hw]; ok {
			c.devices[instanceID].RigID = rigID
		}
	}
	c.markDirty()
	return rigID
}

func (c *Core) handleDestroyRig(p DestroyRigPayload) *CoreError {
	rig := c.rigs[p.RigID]
	if rig == nil {
		return NewCoreError(ErrInvalidArgument, "unknown rig")
	}
	if rig.machine.Mode != fsm.RigOff {
		return NewCoreError(ErrBadState, "rig must be disarmed before destroy")
	}
	for _, hw := range rig.Members {
		if instanceID, ok := c.deviceByHardwareID[hw]; ok {
			c.devices[instanceID].RigID = 0
		}
	}
	delete(c.rigs, p.RigID)
	c.markDirty()
	return nil
}

func (c *Core) handleArmRig(p ArmRigPayload) *CoreError {
	rig := c.rigs[p.RigID]
	if rig == nil {
		return NewCoreError(ErrInvalidArgument, "unknown rig")
	}
	if rig.machine.Mode != fsm.RigOff {
		return NewCoreError(ErrBadState, "rig is not OFF")
	}
	rig.machine.Apply(fsm.RigEventArm)
	c.markDirty()
	return nil
}

func (c *Core) handleDisarmRig(p DisarmRigPayload) *CoreError {
	rig := c.rigs[p.RigID]
	if rig == nil {
		return NewCoreError(ErrInvalidArgument, "unknown rig")
	}
	if rig.ActiveCaptureID != 0 {
		return NewCoreError(ErrBadState, "rig has a capture in flight")
	}
	if rig.machine.Mode != fsm.RigArmed {
		return NewCoreError(ErrBadState, "rig is not ARMED")
	}
	rig.machine.Apply(fsm.RigEventDisarm)
	c.markDirty()
	return nil
}

func (c *Core) handleTriggerRigSyncCapture(ctx context.Context, p TriggerRigSyncCapturePayload, now int64) (uint64, *CoreError) {
	rig := c.rigs[p.RigID]
	if rig == nil {
		return 0, NewCoreError(ErrInvalidArgument, "unknown rig")
	}

	memberStreams := make(map[uint64][]arbitration.StreamRef, len(rig.Members))
	allLiveAndNotCapturing := rig.machine.Mode == fsm.RigArmed
	var memberInstanceIDs []uint64
	for _, hw := range rig.Members {
		instanceID, ok := c.deviceByHardwareID[hw]
		if !ok {
			allLiveAndNotCapturing = false
			continue
		}
		memberInstanceIDs = append(memberInstanceIDs, instanceID)
		d := c.devices[instanceID]
		if d == nil || d.machine.Phase != fsm.DeviceLive ||
			(d.machine.Mode != fsm.DeviceIdle && d.machine.Mode != fsm.DeviceStreaming) {
			allLiveAndNotCapturing = false
		}
		var refs []arbitration.StreamRef
		if d != nil && d.activeStreamID != 0 {
			if s := c.streams[d.activeStreamID]; s != nil {
				refs = append(refs, s.ref())
			}
		}
		memberStreams[instanceID] = refs
	}

	toPreempt, aerr := c.arb.DecideTriggerRigSyncCapture(rig.machine.Mode == fsm.RigArmed, allLiveAndNotCapturing, memberStreams)
	if aerr != nil {
		return 0, mapArbitrationError(aerr)
	}
	for _, refs := range toPreempt {
		for _, ref := range refs {
			c.preemptStream(ctx, ref.StreamID)
		}
	}

	captureID := c.idset.Next(ids.SpaceCapture)
	for _, instanceID := range memberInstanceIDs {
		d := c.devices[instanceID]
		res := c.prov.TriggerCapture(provider.CaptureRequest{
			DeviceInstanceID: instanceID, CaptureID: captureID, RigID: p.RigID,
			Width: d.StillProfile.Width, Height: d.StillProfile.Height, FormatFourCC: d.StillProfile.FormatFourCC,
		})
		if !res.Ok() {
			return 0, mapProviderError(res)
		}
		d.machine.Apply(fsm.DeviceEventCaptureAccepted)
		d.activeCaptureID = captureID
		c.cancelWarmExpiry(d)
	}

	rig.machine.Apply(fsm.RigEventCaptureAccepted)
	rig.ActiveCaptureID = captureID
	rig.Triggered++
	c.captures[captureID] = &captureContext{RigID: p.RigID, Pending: append([]uint64(nil), memberInstanceIDs...), StartedNS: now}
	c.markDirty()
	return captureID, nil
}

func (c *Core) handleUpdateCameraSpec(p UpdateCameraSpecPayload) *CoreError {
	d := c.devices[c.deviceByHardwareID[p.HardwareID]]
	safe := d == nil || !d.inUse()
	changed, err := c.cameraSpecs.Apply(p.HardwareID, p.NewVersion, p.Patch, p.ApplyMode, safe)
	if err != nil {
		return specsErrToCoreError(err)
	}
	if changed {
		res := c.prov.ApplyCameraSpecPatch(p.HardwareID, p.NewVersion, p.Patch)
		if !res.Ok() {
			return mapProviderError(res)
		}
		if d != nil {
			d.CameraSpecVersion = p.NewVersion
		}
		c.markDirty()
	}
	return nil
}

func (c *Core) handleUpdateImagingSpec(p UpdateImagingSpecPayload) *CoreError {
	changed, err := c.imagingSpec.Apply(p.NewVersion, p.Patch, p.ApplyMode, c.allDevicesSafe())
	if err != nil {
		return specsErrToCoreError(err)
	}
	if changed {
		res := c.prov.ApplyImagingSpecPatch(p.NewVersion, p.Patch)
		if !res.Ok() {
			return mapProviderError(res)
		}
		c.markDirty()
	}
	return nil
}

// allDevicesSafe reports whether every engaged device is currently
// unengaged in use and has no in-flight capture dependency, the
// precondition for an ImagingSpec patch to apply.
func (c *Core) allDevicesSafe() bool {
	for _, d := range c.devices {
		if d.inUse() {
			return false
		}
	}
	return true
}

// retryPendingSpecPatches re-attempts any APPLY_WHEN_SAFE patch deferred
// earlier, now that the relevant device(s) may have become safe. Called
// once per Step after events, commands, and timers have all settled.
func (c *Core) retryPendingSpecPatches() {
	for hw, instanceID := range c.deviceByHardwareID {
		d := c.devices[instanceID]
		safe := d == nil || !d.inUse()
		if !c.cameraSpecs.RetryPending(hw, safe) {
			continue
		}
		e := c.cameraSpecs.Get(hw)
		if res := c.prov.ApplyCameraSpecPatch(hw, e.Version, e.Content); res.Ok() && d != nil {
			d.CameraSpecVersion = e.Version
		}
		c.markDirty()
	}

	if c.imagingSpec.RetryPending(c.allDevicesSafe()) {
		e := c.imagingSpec.Get()
		c.prov.ApplyImagingSpecPatch(e.Version, e.Content)
		c.markDirty()
	}
}

// handleUpdateTuning applies a hot-reloaded tuning file through the same
// single-writer queue every other command goes through, so a reload can
// never race a timer scheduling decision mid-Step.
func (c *Core) handleUpdateTuning(ctx context.Context, p UpdateTuningPayload) *CoreError {
	if err := p.Constants.Validate(); err != nil {
		return NewCoreError(ErrInvalidArgument, err.Error())
	}
	c.tuning.Set(p.Constants)
	if c.eventsBus != nil {
		c.eventsBus.PublishCtx(ctx, events.Event{
			Category: events.CategoryTuning,
			Type:     "tuning_updated",
			Fields: map[string]interface{}{
				"retention_ms":    p.Constants.RetentionMS,
				"starve_ms":       p.Constants.StarveMS,
				"default_warm_ms": p.Constants.DefaultWarmHoldMS,
			},
		})
	}
	return nil
}

func specsErrToCoreError(err error) *CoreError {
	if err == specs.ErrUnsafeApplyNow {
		return NewCoreError(ErrBadState, err.Error())
	}
	return NewCoreError(ErrInvalidArgument, err.Error())
}

func (c *Core) handleShutdown(now int64) {
	c.shuttingDown = true
	for _, s := range c.streams {
		c.prov.StopStream(s.StreamID)
	}
	for _, d := range c.devices {
		c.cancelWarmExpiry(d)
		if d.machine.Phase == fsm.DeviceLive {
			c.beginDeviceTeardown(d)
		}
	}
	c.prov.Shutdown()
	c.markDirty()
}

package engine

import (
	"testing"
	"time"

	"cambang/engine/internal/arbitration"
	"cambang/engine/pixelformat"
	"cambang/engine/provider"
	"cambang/engine/provider/synthetic"
)

const ms = int64(time.Millisecond)

// doCmd submits a command and drives exactly the Step needed to get a
// reply, the way a synchronous test harness talks to a core loop that is
// normally driven by Run in its own goroutine.
func doCmd(c *Core, kind CommandKind, payload interface{}, now int64) CommandReply {
	cmd := newCommand(kind, payload)
	if err := c.submit(cmd); err != nil {
		return CommandReply{Err: NewCoreError(ErrQueueFull, err.Error())}
	}
	c.Step(now)
	select {
	case r := <-cmd.Reply:
		return r
	default:
		panic("command not replied within its Step")
	}
}

func mustUint64(t *testing.T, r CommandReply) uint64 {
	t.Helper()
	if r.Err != nil {
		t.Fatalf("unexpected error: %v", r.Err)
	}
	id, ok := r.Value.(uint64)
	if !ok {
		t.Fatalf("expected uint64 reply, got %T", r.Value)
	}
	return id
}

func previewProfile() arbitration.StreamProfile {
	return arbitration.StreamProfile{
		Intent: arbitration.IntentPreview, Width: 640, Height: 480,
		FormatFourCC: pixelformat.NV12, TargetFPSMin: 15, TargetFPSMax: 30,
	}
}

func viewfinderProfile() arbitration.StreamProfile {
	p := previewProfile()
	p.Intent = arbitration.IntentViewfinder
	return p
}

func findDevice(snap Snapshot, instanceID uint64) *SnapshotDevice {
	for i := range snap.Devices {
		if snap.Devices[i].InstanceID == instanceID {
			return &snap.Devices[i]
		}
	}
	return nil
}

func findStream(snap Snapshot, streamID uint64) *SnapshotStream {
	for i := range snap.Streams {
		if snap.Streams[i].StreamID == streamID {
			return &snap.Streams[i]
		}
	}
	return nil
}

// S1 — warm expiry teardown.
func TestWarmExpiryTeardown(t *testing.T) {
	clock := synthetic.NewFakeClock(0)
	prov := synthetic.New(clock, []provider.Endpoint{{HardwareID: "camA", Name: "Cam A"}})
	c := NewCore(Defaults(), prov, clock)

	instanceID := mustUint64(t, doCmd(c, CmdEngageDevice, EngageDevicePayload{HardwareID: "camA"}, 0))
	if r := doCmd(c, CmdSetWarmPolicy, SetWarmPolicyPayload{InstanceID: instanceID, WarmHoldMS: 500}, 0); r.Err != nil {
		t.Fatalf("set_warm_policy: %v", r.Err)
	}

	streamID := mustUint64(t, doCmd(c, CmdCreateStream, CreateStreamPayload{InstanceID: instanceID, Profile: previewProfile()}, 0))
	if r := doCmd(c, CmdStartStream, StartStreamPayload{StreamID: streamID}, 0); r.Err != nil {
		t.Fatalf("start_stream: %v", r.Err)
	}

	stopAt := clock.Advance(1000 * ms)
	if r := doCmd(c, CmdStopStream, StopStreamPayload{StreamID: streamID}, stopAt); r.Err != nil {
		t.Fatalf("stop_stream: %v", r.Err)
	}

	// stop_stream's on_stream_stopped callback schedules the warm-expiry
	// timer for stopAt+500ms and publishes once, synchronously, within
	// this same Step.
	snap, ok := c.Snapshot()
	if !ok {
		t.Fatal("expected a published snapshot")
	}
	genBefore := snap.Gen
	dev := findDevice(snap, instanceID)
	if dev == nil || dev.Phase != "LIVE" || !dev.Engaged {
		t.Fatalf("expected device still LIVE/engaged right after stop, got %+v", dev)
	}
	if dev.WarmRemainingMS != 500 {
		t.Fatalf("expected warm_remaining_ms=500 right after stop, got %d", dev.WarmRemainingMS)
	}

	// Advancing short of the deadline with no intervening state change
	// triggers no new publish; the last snapshot (above) still applies.
	at1499 := clock.Advance(499 * ms)
	c.Step(at1499)
	snap, ok = c.Snapshot()
	if !ok || snap.Gen != genBefore {
		t.Fatalf("expected no new publish before the warm-expiry deadline")
	}

	at1501 := clock.Advance(2 * ms)
	c.Step(at1501) // pops warm-expiry timer, begins teardown (TEARING_DOWN)
	c.Step(at1501) // drains on_device_closed, DESTROYED + removed

	snapAfter, ok := c.Snapshot()
	if !ok {
		t.Fatal("expected a published snapshot")
	}
	if findDevice(snapAfter, instanceID) != nil {
		t.Fatalf("expected device to be gone after teardown, got %+v", snapAfter.Devices)
	}
	if snapAfter.TopologyGen <= snap.TopologyGen {
		t.Fatalf("expected topology_gen to increment once the device instance disappeared")
	}
}

// Host threads may legally issue start_stream twice on the same stream
// (cross-thread command order is not guaranteed) — the second call must
// be denied, not reach the provider and panic the FSM.
func TestStartStreamDoubleStartDenied(t *testing.T) {
	clock := synthetic.NewFakeClock(0)
	prov := synthetic.New(clock, []provider.Endpoint{{HardwareID: "camA", Name: "Cam A"}})
	c := NewCore(Defaults(), prov, clock)

	instanceID := mustUint64(t, doCmd(c, CmdEngageDevice, EngageDevicePayload{HardwareID: "camA"}, 0))
	streamID := mustUint64(t, doCmd(c, CmdCreateStream, CreateStreamPayload{InstanceID: instanceID, Profile: previewProfile()}, 0))
	if r := doCmd(c, CmdStartStream, StartStreamPayload{StreamID: streamID}, 0); r.Err != nil {
		t.Fatalf("first start_stream: %v", r.Err)
	}

	r := doCmd(c, CmdStartStream, StartStreamPayload{StreamID: streamID}, 0)
	if r.Err == nil || r.Err.Code != ErrBadState {
		t.Fatalf("expected ERR_BAD_STATE on a second start_stream, got %+v", r)
	}

	snap, _ := c.Snapshot()
	stream := findStream(snap, streamID)
	if stream == nil || stream.Mode != "FLOWING" {
		t.Fatalf("expected stream still FLOWING after the denied second start, got %+v", stream)
	}
}

// S2 — preemption by capture.
func TestPreemptionByCapture(t *testing.T) {
	clock := synthetic.NewFakeClock(0)
	prov := synthetic.New(clock, []provider.Endpoint{{HardwareID: "camA", Name: "Cam A"}})
	c := NewCore(Defaults(), prov, clock)

	instanceID := mustUint64(t, doCmd(c, CmdEngageDevice, EngageDevicePayload{HardwareID: "camA"}, 0))
	streamID := mustUint64(t, doCmd(c, CmdCreateStream, CreateStreamPayload{InstanceID: instanceID, Profile: viewfinderProfile()}, 0))
	if r := doCmd(c, CmdStartStream, StartStreamPayload{StreamID: streamID}, 0); r.Err != nil {
		t.Fatalf("start_stream: %v", r.Err)
	}
	if r := doCmd(c, CmdSetStillCaptureProfile, SetStillCaptureProfilePayload{
		InstanceID: instanceID,
		Profile:    arbitration.StillProfile{Width: 1920, Height: 1080, FormatFourCC: pixelformat.JPEG},
	}, 0); r.Err != nil {
		t.Fatalf("set_still_capture_profile: %v", r.Err)
	}

	captureID := mustUint64(t, doCmd(c, CmdTriggerDeviceCapture, TriggerDeviceCapturePayload{InstanceID: instanceID}, 0))

	snap, _ := c.Snapshot()
	stream := findStream(snap, streamID)
	if stream == nil || stream.Mode != "STOPPED" || stream.StopReason != "PREEMPTED" {
		t.Fatalf("expected stream STOPPED/PREEMPTED, got %+v", stream)
	}
	dev := findDevice(snap, instanceID)
	if dev == nil || dev.Mode != "CAPTURING" {
		t.Fatalf("expected device CAPTURING, got %+v", dev)
	}

	prov.CompleteCapture(captureID)
	c.Step(clock.NowNS())

	snap, _ = c.Snapshot()
	dev = findDevice(snap, instanceID)
	if dev == nil || dev.Mode != "IDLE" {
		t.Fatalf("expected device IDLE after capture completed (no auto-restart), got %+v", dev)
	}
}

// S3 — rig authority denial.
func TestRigAuthorityDenial(t *testing.T) {
	clock := synthetic.NewFakeClock(0)
	prov := synthetic.New(clock, nil)
	c := NewCore(Defaults(), prov, clock)

	instanceA := mustUint64(t, doCmd(c, CmdEngageDevice, EngageDevicePayload{HardwareID: "camA"}, 0))
	mustUint64(t, doCmd(c, CmdEngageDevice, EngageDevicePayload{HardwareID: "camB"}, 0))

	rigID := mustUint64(t, doCmd(c, CmdCreateRig, CreateRigPayload{Name: "R", Members: []string{"camA", "camB"}}, 0))
	if r := doCmd(c, CmdArmRig, ArmRigPayload{RigID: rigID}, 0); r.Err != nil {
		t.Fatalf("arm_rig: %v", r.Err)
	}

	snapBefore, _ := c.Snapshot()

	r := doCmd(c, CmdTriggerDeviceCapture, TriggerDeviceCapturePayload{InstanceID: instanceA}, 0)
	if r.Err == nil || r.Err.Code != ErrRigAuthoritative {
		t.Fatalf("expected RIG_AUTHORITATIVE denial, got %+v", r)
	}

	snapAfter, _ := c.Snapshot()
	if snapAfter.Gen != snapBefore.Gen {
		t.Fatalf("expected no state change (no new publish) on denial")
	}
}

// S4 — rig sync capture.
func TestRigSyncCapture(t *testing.T) {
	clock := synthetic.NewFakeClock(0)
	prov := synthetic.New(clock, nil)
	c := NewCore(Defaults(), prov, clock)

	mustUint64(t, doCmd(c, CmdEngageDevice, EngageDevicePayload{HardwareID: "camA"}, 0))
	mustUint64(t, doCmd(c, CmdEngageDevice, EngageDevicePayload{HardwareID: "camB"}, 0))
	rigID := mustUint64(t, doCmd(c, CmdCreateRig, CreateRigPayload{Name: "R", Members: []string{"camA", "camB"}}, 0))
	if r := doCmd(c, CmdArmRig, ArmRigPayload{RigID: rigID}, 0); r.Err != nil {
		t.Fatalf("arm_rig: %v", r.Err)
	}

	captureID := mustUint64(t, doCmd(c, CmdTriggerRigSyncCapture, TriggerRigSyncCapturePayload{RigID: rigID}, 0))

	tsA := clock.Advance(5 * ms)
	prov.CompleteCapture(captureID)
	c.Step(tsA)

	tsB := clock.Advance(3 * ms)
	prov.CompleteCapture(captureID)
	c.Step(tsB)

	snap, _ := c.Snapshot()
	var rig *SnapshotRig
	for i := range snap.Rigs {
		if snap.Rigs[i].RigID == rigID {
			rig = &snap.Rigs[i]
		}
	}
	if rig == nil || rig.Mode != "ARMED" {
		t.Fatalf("expected rig back to ARMED, got %+v", rig)
	}
	if rig.Completed != 1 {
		t.Fatalf("expected captures_completed=1, got %d", rig.Completed)
	}
	wantSkew := tsB - tsA
	if rig.LastSyncSkewNS != wantSkew {
		t.Fatalf("expected last_sync_skew_ns=%d, got %d", wantSkew, rig.LastSyncSkewNS)
	}
}

// S5 — retention sweep republish.
func TestRetentionSweepRepublish(t *testing.T) {
	clock := synthetic.NewFakeClock(0)
	prov := synthetic.New(clock, nil)
	c := NewCore(Defaults(), prov, clock)
	var cb provider.Callbacks = c

	cb.OnNativeObjectCreated(9001, "buffer_pool", 0, 9001)
	c.Step(clock.NowNS())

	snap1, _ := c.Snapshot()
	if len(snap1.NativeObjects) != 1 {
		t.Fatalf("expected 1 native object after create, got %d", len(snap1.NativeObjects))
	}

	destroyedAt := clock.Advance(10 * ms)
	cb.OnNativeObjectDestroyed(9001, destroyedAt)
	c.Step(destroyedAt)

	snap2, _ := c.Snapshot()
	if len(snap2.NativeObjects) != 1 || snap2.NativeObjects[0].Phase.String() != "DESTROYED" {
		t.Fatalf("expected 1 DESTROYED native object, got %+v", snap2.NativeObjects)
	}

	pastRetention := clock.Advance(Defaults().Tuning.RetentionMS*ms + ms)
	c.Step(pastRetention)

	snap3, _ := c.Snapshot()
	if len(snap3.NativeObjects) != 0 {
		t.Fatalf("expected native object gone after retention window, got %+v", snap3.NativeObjects)
	}
	if snap3.Gen <= snap2.Gen {
		t.Fatalf("expected gen to strictly increase across the retention sweep publish")
	}
	if snap3.TopologyGen <= snap2.TopologyGen {
		t.Fatalf("expected topology_gen to increment once the detached root disappeared")
	}
}

// S6 — shutdown determinism.
func TestShutdownDeterminism(t *testing.T) {
	clock := synthetic.NewFakeClock(0)
	prov := synthetic.New(clock, []provider.Endpoint{{HardwareID: "camA"}, {HardwareID: "camB"}})
	c := NewCore(Defaults(), prov, clock)

	instanceA := mustUint64(t, doCmd(c, CmdEngageDevice, EngageDevicePayload{HardwareID: "camA"}, 0))
	instanceB := mustUint64(t, doCmd(c, CmdEngageDevice, EngageDevicePayload{HardwareID: "camB"}, 0))

	streamID := mustUint64(t, doCmd(c, CmdCreateStream, CreateStreamPayload{InstanceID: instanceA, Profile: previewProfile()}, 0))
	if r := doCmd(c, CmdStartStream, StartStreamPayload{StreamID: streamID}, 0); r.Err != nil {
		t.Fatalf("start_stream: %v", r.Err)
	}
	if r := doCmd(c, CmdSetStillCaptureProfile, SetStillCaptureProfilePayload{
		InstanceID: instanceB,
		Profile:    arbitration.StillProfile{Width: 1920, Height: 1080, FormatFourCC: pixelformat.JPEG},
	}, 0); r.Err != nil {
		t.Fatalf("set_still_capture_profile: %v", r.Err)
	}
	captureID := mustUint64(t, doCmd(c, CmdTriggerDeviceCapture, TriggerDeviceCapturePayload{InstanceID: instanceB}, 0))

	doCmd(c, CmdShutdown, nil, clock.NowNS())

	if r := doCmd(c, CmdEngageDevice, EngageDevicePayload{HardwareID: "camC"}, clock.NowNS()); r.Err == nil || r.Err.Code != ErrShuttingDown {
		t.Fatalf("expected SHUTTING_DOWN for a command issued after shutdown, got %+v", r)
	}

	// Device close does not wait on an in-flight capture to resolve (close
	// only gates on phase, not mode); camB's still-pending capture outcome
	// arriving after teardown is handled as a no-op, not a crash.
	prov.CompleteCapture(captureID)
	c.Step(clock.NowNS())

	if !c.fullyTornDown() {
		snap, _ := c.Snapshot()
		t.Fatalf("expected full teardown after shutdown, devices remaining: %+v", snap.Devices)
	}

	snap, ok := c.Snapshot()
	if !ok {
		t.Fatal("expected a final published snapshot")
	}
	for _, s := range snap.Streams {
		if s.Mode != "STOPPED" {
			t.Fatalf("expected every stream STOPPED, got %+v", s)
		}
	}
}

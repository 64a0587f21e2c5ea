package engine

import (
	"time"

	"cambang/engine/internal/fsm"
	"cambang/engine/internal/registry"
	"cambang/engine/internal/timers"
	"cambang/engine/provider"
	"cambang/engine/telemetry/events"
)

// publishEvent is a nil-safe wrapper around the informational events bus;
// it is used for telemetry that originates off the command path (timers,
// provider callbacks) where there is no request context to thread through.
func (c *Core) publishEvent(ev events.Event) {
	if c.eventsBus != nil {
		c.eventsBus.Publish(ev)
	}
}

// captureContext tracks an in-flight capture_id: which device instances
// are still expected to report a completion/failure, in the order their
// trigger_capture calls were issued. The provider callback contract
// carries only capture_id (not device_instance_id), so multi-member rig
// captures associate each arriving completion with the oldest still-
// pending member rather than an explicit identity; this is a documented
// simplification, not a spec requirement.
type captureContext struct {
	RigID      uint64
	Pending    []uint64
	Timestamps []int64
	StartedNS  int64
}

func (c *Core) applyEvent(ev internalEvent, now int64) {
	switch ev.kind {
	case evtDeviceOpened:
		if d := c.devices[ev.deviceInstanceID]; d != nil {
			d.machine.Apply(fsm.DeviceEventOpened)
			c.markDirty()
		}

	case evtDeviceClosed:
		if d := c.devices[ev.deviceInstanceID]; d != nil {
			d.machine.Apply(fsm.DeviceEventCloseConfirmed)
			delete(c.devices, d.InstanceID)
			delete(c.deviceByHardwareID, d.HardwareID)
			c.publishEvent(events.Event{
				Category: events.CategoryTransition,
				Type:     "device_closed",
				Fields:   map[string]interface{}{"instance_id": d.InstanceID, "hardware_id": d.HardwareID},
			})
			c.markDirty()
		}

	case evtStreamCreated:
		if s := c.streams[ev.streamID]; s != nil {
			s.machine.Apply(fsm.StreamEventCreated, fsm.StopReasonNone)
			c.markDirty()
		}

	case evtStreamDestroyed:
		if s := c.streams[ev.streamID]; s != nil {
			if d := c.devices[s.DeviceInstanceID]; d != nil && d.activeStreamID == s.StreamID {
				d.activeStreamID = 0
			}
			delete(c.streams, s.StreamID)
			c.markDirty()
		}

	case evtStreamStarted:
		if s := c.streams[ev.streamID]; s != nil {
			s.machine.Apply(fsm.StreamEventStarted, fsm.StopReasonNone)
			if d := c.devices[s.DeviceInstanceID]; d != nil {
				d.machine.Apply(fsm.DeviceEventStreamStarted)
			}
			c.scheduleStarvationWatchdog(s, now)
			c.markDirty()
		}

	case evtStreamStopped:
		// A stream already STOPPED (e.g. preempted by a capture) has had its
		// stop applied by the core; the provider's confirmation changes nothing.
		if s := c.streams[ev.streamID]; s != nil && s.machine.Mode != fsm.StreamStopped {
			reason := fsm.StopReasonProvider
			if ev.ok {
				reason = fsm.StopReasonUser
			}
			s.machine.Apply(fsm.StreamEventStopped, reason)
			c.cancelStarvationWatchdog(s)
			if d := c.devices[s.DeviceInstanceID]; d != nil {
				d.machine.Apply(fsm.DeviceEventStreamStopped)
				if d.activeStreamID == s.StreamID {
					d.activeStreamID = 0
				}
				c.maybeScheduleWarmExpiry(d, now)
			}
			c.markDirty()
		}

	case evtCaptureStarted:
		if ctx := c.captures[ev.captureID]; ctx != nil && ctx.RigID != 0 {
			if rig := c.rigs[ctx.RigID]; rig != nil && rig.machine.Mode == fsm.RigTriggering {
				rig.machine.Apply(fsm.RigEventFirstMemberFrame)
			}
		}
		c.markDirty()

	case evtCaptureCompleted:
		c.applyCaptureOutcome(ev.captureID, true, ev.timestampNS, "")
		c.markDirty()

	case evtCaptureFailed:
		c.applyCaptureOutcome(ev.captureID, false, now, ev.code.String())
		c.markDirty()

	case evtFrame:
		c.applyFrame(ev.frame, now)
		c.markDirty()

	case evtDeviceError:
		if d := c.devices[ev.deviceInstanceID]; d != nil {
			d.machine.Apply(fsm.DeviceEventProviderError)
			d.ErrorsCount++
			d.LastErrorCode = ev.code.String()
			c.publishEvent(events.Event{
				Category: events.CategoryError,
				Type:     "device_error",
				Severity: "error",
				Fields: map[string]interface{}{
					"instance_id": d.InstanceID,
					"code":        ev.code.String(),
				},
			})
			c.markDirty()
		}

	case evtStreamError:
		if s := c.streams[ev.streamID]; s != nil {
			s.machine.Apply(fsm.StreamEventError, fsm.StopReasonNone)
			c.publishEvent(events.Event{
				Category: events.CategoryError,
				Type:     "stream_error",
				Severity: "error",
				Fields: map[string]interface{}{
					"stream_id": s.StreamID,
					"code":      ev.code.String(),
				},
			})
			c.markDirty()
		}

	case evtNativeObjectCreated:
		c.registry.OnCreated(registry.CreateInfo{
			NativeID:              ev.nativeID,
			Type:                  ev.nativeType,
			Phase:                 registry.PhaseLive,
			OwnerDeviceInstanceID: ev.ownerDeviceInstanceID,
			RootID:                ev.rootID,
			CreatedNS:             now,
		})
		c.markDirty()

	case evtNativeObjectDestroyed:
		if rec := c.registry.OnDestroyed(ev.nativeID, ev.timestampNS); rec != nil {
			c.timerHeap.Schedule(ev.timestampNS+c.tuning.Current().RetentionMS*int64(time.Millisecond), timers.Tag{
				Kind: timers.KindRetentionSweep, Target: ev.nativeID,
			})
		}
		c.markDirty()
	}
}

// applyCaptureOutcome resolves one member's completion or failure for
// captureID, updating device and (if applicable) rig state once every
// expected member has reported in.
func (c *Core) applyCaptureOutcome(captureID uint64, ok bool, ts int64, errCode string) {
	ctx := c.captures[captureID]
	if ctx == nil || len(ctx.Pending) == 0 {
		return
	}
	memberID := ctx.Pending[0]
	ctx.Pending = ctx.Pending[1:]
	ctx.Timestamps = append(ctx.Timestamps, ts)

	if d := c.devices[memberID]; d != nil {
		d.machine.Apply(fsm.DeviceEventCaptureCompleteOrFailed)
		d.activeCaptureID = 0
		if !ok {
			d.ErrorsCount++
			d.LastErrorCode = errCode
		}
	}

	if ctx.RigID == 0 {
		delete(c.captures, captureID)
		return
	}

	rig := c.rigs[ctx.RigID]
	if rig == nil || len(ctx.Pending) > 0 {
		return
	}

	// Every member has reported; resolve the rig.
	rig.ActiveCaptureID = 0
	rig.LastCaptureID = captureID
	rig.LastCaptureLatencyNS = ts - ctx.StartedNS
	if ok {
		rig.Completed++
		if len(ctx.Timestamps) >= 2 {
			skew := ctx.Timestamps[len(ctx.Timestamps)-1] - ctx.Timestamps[0]
			if skew < 0 {
				skew = -skew
			}
			rig.LastSyncSkewNS = skew
		}
		rig.machine.Apply(fsm.RigEventAllMembersComplete)
	} else {
		rig.Failed++
		rig.ErrorCode = errCode
		rig.machine.Apply(fsm.RigEventProviderOrTimeoutError)
	}
	delete(c.captures, captureID)
}

func (c *Core) applyFrame(frame provider.FrameView, now int64) {
	if frame.StreamID != 0 {
		if s := c.streams[frame.StreamID]; s != nil {
			if s.machine.Mode == fsm.StreamFlowing || s.machine.Mode == fsm.StreamStarved {
				s.machine.Apply(fsm.StreamEventFrameReceived, fsm.StopReasonNone)
			}
			s.FramesReceived++
			s.FramesDelivered++
			s.LastFrameTSNS = frame.TimestampNS
			c.scheduleStarvationWatchdog(s, now)
		}
	}
	if frame.Release != nil {
		frame.Release()
	}
}

func (c *Core) scheduleStarvationWatchdog(s *streamEntity, now int64) {
	c.cancelStarvationWatchdog(s)
	deadline := now + c.tuning.Current().StarveMS*int64(time.Millisecond)
	s.starvationHandle = c.timerHeap.Schedule(deadline, timers.Tag{Kind: timers.KindStreamStarvation, Target: s.StreamID})
	s.hasStarvationTimer = true
}

func (c *Core) cancelStarvationWatchdog(s *streamEntity) {
	if s.hasStarvationTimer {
		c.timerHeap.Cancel(s.starvationHandle)
		s.hasStarvationTimer = false
	}
}

func (c *Core) maybeScheduleWarmExpiry(d *deviceEntity, now int64) {
	if d.inUse() || d.WarmHoldMS <= 0 {
		return
	}
	c.cancelWarmExpiry(d)
	deadline := now + d.WarmHoldMS*int64(time.Millisecond)
	d.warmDeadlineNS = deadline
	d.warmHandle = c.timerHeap.Schedule(deadline, timers.Tag{Kind: timers.KindWarmExpiry, Target: d.InstanceID})
	d.hasWarmTimer = true
}

func (c *Core) cancelWarmExpiry(d *deviceEntity) {
	if d.hasWarmTimer {
		c.timerHeap.Cancel(d.warmHandle)
		d.hasWarmTimer = false
		d.warmDeadlineNS = 0
	}
}

func (c *Core) applyTimer(tag timers.Tag, now int64) {
	switch tag.Kind {
	case timers.KindWarmExpiry:
		d := c.devices[tag.Target]
		if d == nil || !d.hasWarmTimer || d.inUse() {
			return
		}
		d.hasWarmTimer = false
		d.warmDeadlineNS = 0
		c.beginDeviceTeardown(d)

	case timers.KindRetentionSweep:
		if n := c.registry.Sweep(now); n > 0 {
			c.publishEvent(events.Event{
				Category: events.CategoryRetention,
				Type:     "retention_swept",
				Fields:   map[string]interface{}{"count": n},
			})
			c.markDirty()
		}

	case timers.KindStreamStarvation:
		s := c.streams[tag.Target]
		if s != nil && s.hasStarvationTimer && s.machine.Mode == fsm.StreamFlowing {
			s.machine.Apply(fsm.StreamEventStarvationTimeout, fsm.StopReasonNone)
			c.markDirty()
		}
	}
}

func (c *Core) beginDeviceTeardown(d *deviceEntity) {
	d.machine.Apply(fsm.DeviceEventCloseBegin)
	c.prov.CloseDevice(d.InstanceID)
	c.markDirty()
}

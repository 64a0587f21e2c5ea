package engine

import (
	"context"

	"cambang/engine/provider"
)

// eventKind tags what kind of provider-reported fact an internalEvent
// carries.
type eventKind int

const (
	evtDeviceOpened eventKind = iota
	evtDeviceClosed
	evtStreamCreated
	evtStreamDestroyed
	evtStreamStarted
	evtStreamStopped
	evtCaptureStarted
	evtCaptureCompleted
	evtCaptureFailed
	evtFrame
	evtDeviceError
	evtStreamError
	evtNativeObjectCreated
	evtNativeObjectDestroyed
)

// internalEvent is the evt_queue payload: one provider-reported fact,
// converted from a Callbacks invocation. The core thread applies these in
// FIFO order at the start of the next Step, before any command.
type internalEvent struct {
	kind eventKind

	deviceInstanceID uint64
	streamID         uint64
	captureID        uint64
	ok               bool
	code             provider.ResultCode
	timestampNS      int64
	frame            provider.FrameView

	nativeID              uint64
	nativeType            string
	ownerDeviceInstanceID uint64
	rootID                uint64
}

// The Callbacks implementation below only ever enqueues; it must never
// mutate core state directly, since it may be invoked from a provider's
// own thread for a real platform backend (our stub/synthetic providers
// happen to call back synchronously, but the contract does not assume
// that).

func (c *Core) enqueueEvent(ev internalEvent) {
	if err := c.evtQueue.Enqueue(ev); err != nil {
		c.logger.WarnCtx(context.Background(), "evt_queue full, dropping provider event", "kind", ev.kind)
	}
}

func (c *Core) OnDeviceOpened(instanceID uint64) {
	c.enqueueEvent(internalEvent{kind: evtDeviceOpened, deviceInstanceID: instanceID})
}

func (c *Core) OnDeviceClosed(instanceID uint64) {
	c.enqueueEvent(internalEvent{kind: evtDeviceClosed, deviceInstanceID: instanceID})
}

func (c *Core) OnStreamCreated(streamID uint64) {
	c.enqueueEvent(internalEvent{kind: evtStreamCreated, streamID: streamID})
}

func (c *Core) OnStreamDestroyed(streamID uint64) {
	c.enqueueEvent(internalEvent{kind: evtStreamDestroyed, streamID: streamID})
}

func (c *Core) OnStreamStarted(streamID uint64) {
	c.enqueueEvent(internalEvent{kind: evtStreamStarted, streamID: streamID})
}

func (c *Core) OnStreamStopped(streamID uint64, ok bool) {
	c.enqueueEvent(internalEvent{kind: evtStreamStopped, streamID: streamID, ok: ok})
}

func (c *Core) OnCaptureStarted(captureID uint64) {
	c.enqueueEvent(internalEvent{kind: evtCaptureStarted, captureID: captureID})
}

func (c *Core) OnCaptureCompleted(captureID uint64, timestampNS int64) {
	c.enqueueEvent(internalEvent{kind: evtCaptureCompleted, captureID: captureID, timestampNS: timestampNS})
}

func (c *Core) OnCaptureFailed(captureID uint64, code provider.ResultCode) {
	c.enqueueEvent(internalEvent{kind: evtCaptureFailed, captureID: captureID, code: code})
}

func (c *Core) OnFrame(frame provider.FrameView) {
	c.enqueueEvent(internalEvent{kind: evtFrame, frame: frame})
}

func (c *Core) OnDeviceError(instanceID uint64, code provider.ResultCode) {
	c.enqueueEvent(internalEvent{kind: evtDeviceError, deviceInstanceID: instanceID, code: code})
}

func (c *Core) OnStreamError(streamID uint64, code provider.ResultCode) {
	c.enqueueEvent(internalEvent{kind: evtStreamError, streamID: streamID, code: code})
}

func (c *Core) OnNativeObjectCreated(nativeID uint64, kind string, ownerDeviceInstanceID, rootID uint64) {
	c.enqueueEvent(internalEvent{
		kind: evtNativeObjectCreated, nativeID: nativeID, nativeType: kind,
		ownerDeviceInstanceID: ownerDeviceInstanceID, rootID: rootID,
	})
}

func (c *Core) OnNativeObjectDestroyed(nativeID uint64, timestampNS int64) {
	c.enqueueEvent(internalEvent{kind: evtNativeObjectDestroyed, nativeID: nativeID, timestampNS: timestampNS})
}

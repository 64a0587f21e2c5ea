// Package synthetic implements a fully deterministic, manually-clocked
// Provider used to drive the core's end-to-end scenario tests and as a
// go run demo backend. Every operation acknowledges synchronously with a
// scripted result; asynchronous facts (capture completion, frame
// delivery, device/stream errors) are only ever emitted when the test
// driving the provider calls the corresponding Deliver*/Complete*/Fail*
// method, never on a background goroutine or real timer.
package synthetic

import (
	"sync"

	"cambang/engine/provider"
)

// Clock is the time source the provider stamps events with. Tests inject
// a manually-advanced fake clock; nothing here reads the wall clock.
type Clock interface {
	NowNS() int64
}

// FakeClock is a Clock a test can advance deterministically.
type FakeClock struct {
	mu  sync.Mutex
	now int64
}

func NewFakeClock(startNS int64) *FakeClock { return &FakeClock{now: startNS} }

func (c *FakeClock) NowNS() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by deltaNS and returns the new time.
func (c *FakeClock) Advance(deltaNS int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += deltaNS
	return c.now
}

// Script lets a test force a specific call to fail instead of the
// provider's default success behavior. Keys are the target id the call
// concerns (instance_id, stream_id, capture_id); opens are keyed by the
// instance_id the core assigns to the device.
type Script struct {
	mu            sync.Mutex
	openFailures  map[uint64]provider.ResultCode
	createFailures map[uint64]provider.ResultCode
	startFailures  map[uint64]provider.ResultCode
	captureFailures map[uint64]provider.ResultCode
}

func newScript() *Script {
	return &Script{
		openFailures:    make(map[uint64]provider.ResultCode),
		createFailures:  make(map[uint64]provider.ResultCode),
		startFailures:   make(map[uint64]provider.ResultCode),
		captureFailures: make(map[uint64]provider.ResultCode),
	}
}

func (s *Script) FailOpen(instanceID uint64, code provider.ResultCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openFailures[instanceID] = code
}

func (s *Script) FailCreateStream(streamID uint64, code provider.ResultCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createFailures[streamID] = code
}

func (s *Script) FailStartStream(streamID uint64, code provider.ResultCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startFailures[streamID] = code
}

func (s *Script) FailCapture(captureID uint64, code provider.ResultCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captureFailures[captureID] = code
}

func (s *Script) take(m map[uint64]provider.ResultCode, id uint64) (provider.ResultCode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := m[id]
	if ok {
		delete(m, id)
	}
	return code, ok
}

// Provider is the synthetic backend.
type Provider struct {
	clock     Clock
	callbacks provider.Callbacks
	endpoints []provider.Endpoint
	Script    *Script
}

// New returns a synthetic provider exposing endpoints and stamping events
// using clock.
func New(clock Clock, endpoints []provider.Endpoint) *Provider {
	return &Provider{clock: clock, endpoints: endpoints, Script: newScript()}
}

func (p *Provider) ProviderName() string { return "synthetic" }

func (p *Provider) Initialize(callbacks provider.Callbacks) provider.Result {
	p.callbacks = callbacks
	return provider.OkResult()
}

func (p *Provider) EnumerateEndpoints() ([]provider.Endpoint, provider.Result) {
	return p.endpoints, provider.OkResult()
}

func (p *Provider) OpenDevice(hardwareID string, instanceID, rootID uint64) provider.Result {
	if code, failed := p.Script.take(p.Script.openFailures, instanceID); failed {
		return provider.ErrResult(code, "scripted open failure")
	}
	p.callbacks.OnDeviceOpened(instanceID)
	return provider.OkResult()
}

func (p *Provider) CloseDevice(instanceID uint64) provider.Result {
	p.callbacks.OnDeviceClosed(instanceID)
	return provider.OkResult()
}

func (p *Provider) CreateStream(req provider.StreamRequest) provider.Result {
	if code, failed := p.Script.take(p.Script.createFailures, req.StreamID); failed {
		return provider.ErrResult(code, "scripted create_stream failure")
	}
	p.callbacks.OnStreamCreated(req.StreamID)
	return provider.OkResult()
}

func (p *Provider) DestroyStream(streamID uint64) provider.Result {
	p.callbacks.OnStreamDestroyed(streamID)
	return provider.OkResult()
}

func (p *Provider) StartStream(streamID uint64) provider.Result {
	if code, failed := p.Script.take(p.Script.startFailures, streamID); failed {
		return provider.ErrResult(code, "scripted start_stream failure")
	}
	p.callbacks.OnStreamStarted(streamID)
	return provider.OkResult()
}

func (p *Provider) StopStream(streamID uint64) provider.Result {
	p.callbacks.OnStreamStopped(streamID, true)
	return provider.OkResult()
}

func (p *Provider) TriggerCapture(req provider.CaptureRequest) provider.Result {
	if code, failed := p.Script.take(p.Script.captureFailures, req.CaptureID); failed {
		return provider.ErrResult(code, "scripted trigger_capture failure")
	}
	p.callbacks.OnCaptureStarted(req.CaptureID)
	return provider.OkResult()
}

func (p *Provider) AbortCapture(captureID uint64) provider.Result {
	return provider.ErrResult(provider.ErrNotSupported, "synthetic provider does not support abort")
}

func (p *Provider) ApplyCameraSpecPatch(hardwareID string, version uint64, patch []byte) provider.Result {
	return provider.OkResult()
}

func (p *Provider) ApplyImagingSpecPatch(version uint64, patch []byte) provider.Result {
	return provider.OkResult()
}

func (p *Provider) Shutdown() provider.Result { return provider.OkResult() }

// CompleteCapture delivers on_capture_completed at the clock's current time.
func (p *Provider) CompleteCapture(captureID uint64) {
	p.callbacks.OnCaptureCompleted(captureID, p.clock.NowNS())
}

// FailCapture delivers on_capture_failed. Per spec open questions, this
// may be delivered without a prior OnCaptureStarted.
func (p *Provider) FailCapture(captureID uint64, code provider.ResultCode) {
	p.callbacks.OnCaptureFailed(captureID, code)
}

// DeliverFrame delivers a frame at the clock's current time, stamping
// TimestampNS if the caller left it zero.
func (p *Provider) DeliverFrame(frame provider.FrameView) {
	if frame.TimestampNS == 0 {
		frame.TimestampNS = p.clock.NowNS()
	}
	if frame.Release == nil {
		frame.Release = func() {}
	}
	p.callbacks.OnFrame(frame)
}

// DeviceError delivers on_device_error.
func (p *Provider) DeviceError(instanceID uint64, code provider.ResultCode) {
	p.callbacks.OnDeviceError(instanceID, code)
}

// StreamError delivers on_stream_error.
func (p *Provider) StreamError(streamID uint64, code provider.ResultCode) {
	p.callbacks.OnStreamError(streamID, code)
}

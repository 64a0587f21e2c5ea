// Package stub implements a minimal always-succeeds Provider: the
// zero-configuration default for cmd/cambangd. It accepts every call,
// never emits frames or spontaneous events, and is useful for smoke-
// testing the host-facing command surface without any real camera.
package stub

import "cambang/engine/provider"

type Provider struct {
	callbacks provider.Callbacks
	endpoints []provider.Endpoint
}

// New returns a stub Provider exposing the given fixed endpoint list.
func New(endpoints []provider.Endpoint) *Provider {
	return &Provider{endpoints: endpoints}
}

func (p *Provider) ProviderName() string { return "stub" }

func (p *Provider) Initialize(callbacks provider.Callbacks) provider.Result {
	p.callbacks = callbacks
	return provider.OkResult()
}

func (p *Provider) EnumerateEndpoints() ([]provider.Endpoint, provider.Result) {
	return p.endpoints, provider.OkResult()
}

func (p *Provider) OpenDevice(hardwareID string, instanceID, rootID uint64) provider.Result {
	if p.callbacks != nil {
		p.callbacks.OnDeviceOpened(instanceID)
	}
	return provider.OkResult()
}

func (p *Provider) CloseDevice(instanceID uint64) provider.Result {
	if p.callbacks != nil {
		p.callbacks.OnDeviceClosed(instanceID)
	}
	return provider.OkResult()
}

func (p *Provider) CreateStream(req provider.StreamRequest) provider.Result {
	if p.callbacks != nil {
		p.callbacks.OnStreamCreated(req.StreamID)
	}
	return provider.OkResult()
}

func (p *Provider) DestroyStream(streamID uint64) provider.Result {
	if p.callbacks != nil {
		p.callbacks.OnStreamDestroyed(streamID)
	}
	return provider.OkResult()
}

func (p *Provider) StartStream(streamID uint64) provider.Result {
	if p.callbacks != nil {
		p.callbacks.OnStreamStarted(streamID)
	}
	return provider.OkResult()
}

func (p *Provider) StopStream(streamID uint64) provider.Result {
	if p.callbacks != nil {
		p.callbacks.OnStreamStopped(streamID, true)
	}
	return provider.OkResult()
}

func (p *Provider) TriggerCapture(req provider.CaptureRequest) provider.Result {
	if p.callbacks != nil {
		p.callbacks.OnCaptureStarted(req.CaptureID)
		p.callbacks.OnCaptureCompleted(req.CaptureID, 0)
	}
	return provider.OkResult()
}

func (p *Provider) AbortCapture(captureID uint64) provider.Result {
	return provider.ErrResult(provider.ErrNotSupported, "stub provider does not support abort")
}

func (p *Provider) ApplyCameraSpecPatch(hardwareID string, version uint64, patch []byte) provider.Result {
	return provider.OkResult()
}

func (p *Provider) ApplyImagingSpecPatch(version uint64, patch []byte) provider.Result {
	return provider.OkResult()
}

func (p *Provider) Shutdown() provider.Result { return provider.OkResult() }

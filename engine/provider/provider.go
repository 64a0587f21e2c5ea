// Package provider defines the interface contract the core consumes from
// a platform camera backend: a capability set, not a class hierarchy, so
// synthetic, stub, and real platform providers each satisfy it
// independently.
package provider

import "cambang/engine/pixelformat"

// ResultCode mirrors the ProviderResult code enum.
type ResultCode int

const (
	OK ResultCode = iota
	ErrNotSupported
	ErrInvalidArgument
	ErrBusy
	ErrBadState
	ErrPlatformConstraint
	ErrTransientFailure
	ErrProviderFailed
	ErrShuttingDown
)

func (c ResultCode) String() string {
	switch c {
	case OK:
		return "OK"
	case ErrNotSupported:
		return "ERR_NOT_SUPPORTED"
	case ErrInvalidArgument:
		return "ERR_INVALID_ARGUMENT"
	case ErrBusy:
		return "ERR_BUSY"
	case ErrBadState:
		return "ERR_BAD_STATE"
	case ErrPlatformConstraint:
		return "ERR_PLATFORM_CONSTRAINT"
	case ErrTransientFailure:
		return "ERR_TRANSIENT_FAILURE"
	case ErrProviderFailed:
		return "ERR_PROVIDER_FAILED"
	case ErrShuttingDown:
		return "ERR_SHUTTING_DOWN"
	default:
		return "ERR_UNKNOWN"
	}
}

// Result is the uniform return value of every provider method.
type Result struct {
	Code    ResultCode
	Message string
}

// Ok reports whether the result is a success.
func (r Result) Ok() bool { return r.Code == OK }

func OkResult() Result { return Result{Code: OK} }

func ErrResult(code ResultCode, msg string) Result { return Result{Code: code, Message: msg} }

// Endpoint describes one enumerable camera endpoint.
type Endpoint struct {
	HardwareID string
	Name       string
}

// StreamRequest is the provider-facing create_stream request.
type StreamRequest struct {
	DeviceInstanceID uint64
	StreamID         uint64
	Width            int
	Height           int
	FormatFourCC     pixelformat.FourCC
	TargetFPSMin     int
	TargetFPSMax     int
}

// CaptureRequest is the provider-facing trigger_capture request. RigID is
// 0 for a device-only capture.
type CaptureRequest struct {
	DeviceInstanceID uint64
	CaptureID        uint64
	RigID            uint64
	Width            int
	Height           int
	FormatFourCC     pixelformat.FourCC
}

// FrameView is the frame-delivery contract: the provider retains buffer
// ownership until Release is invoked. Release must be non-blocking and
// safe to call from the core thread.
type FrameView struct {
	DeviceInstanceID uint64
	StreamID         uint64 // 0 for captures
	CaptureID        uint64 // 0 for streams
	Width            int
	Height           int
	FormatFourCC     pixelformat.FourCC
	TimestampNS      int64
	Data             []byte
	SizeBytes        int
	StrideBytes      int // 0 = packed/unknown
	Release          func()
}

// Callbacks is the sink the provider invokes on its single serialised
// callback context; it must not call back into the core from multiple
// goroutines concurrently.
type Callbacks interface {
	OnDeviceOpened(instanceID uint64)
	OnDeviceClosed(instanceID uint64)
	OnStreamCreated(streamID uint64)
	OnStreamDestroyed(streamID uint64)
	OnStreamStarted(streamID uint64)
	OnStreamStopped(streamID uint64, ok bool)
	OnCaptureStarted(captureID uint64)
	OnCaptureCompleted(captureID uint64, timestampNS int64)
	OnCaptureFailed(captureID uint64, code ResultCode)
	OnFrame(frame FrameView)
	OnDeviceError(instanceID uint64, code ResultCode)
	OnStreamError(streamID uint64, code ResultCode)
	OnNativeObjectCreated(nativeID uint64, kind string, ownerDeviceInstanceID, rootID uint64)
	OnNativeObjectDestroyed(nativeID uint64, timestampNS int64)
}

// Provider is the platform camera backend contract. Every method is
// called only from the core thread.
type Provider interface {
	ProviderName() string
	Initialize(callbacks Callbacks) Result
	EnumerateEndpoints() ([]Endpoint, Result)
	OpenDevice(hardwareID string, instanceID, rootID uint64) Result
	CloseDevice(instanceID uint64) Result
	CreateStream(req StreamRequest) Result
	DestroyStream(streamID uint64) Result
	StartStream(streamID uint64) Result
	StopStream(streamID uint64) Result
	TriggerCapture(req CaptureRequest) Result
	AbortCapture(captureID uint64) Result
	ApplyCameraSpecPatch(hardwareID string, version uint64, patch []byte) Result
	ApplyImagingSpecPatch(version uint64, patch []byte) Result
	Shutdown() Result
}

package fsm

// DevicePhase is the lifecycle stage of a device instance.
type DevicePhase int

const (
	DeviceCreated DevicePhase = iota
	DeviceLive
	DeviceTearingDown
	DeviceDestroyed
)

func (p DevicePhase) String() string {
	switch p {
	case DeviceCreated:
		return "CREATED"
	case DeviceLive:
		return "LIVE"
	case DeviceTearingDown:
		return "TEARING_DOWN"
	case DeviceDestroyed:
		return "DESTROYED"
	default:
		return "UNKNOWN"
	}
}

// DeviceMode is the operational posture of a live device instance.
type DeviceMode int

const (
	DeviceIdle DeviceMode = iota
	DeviceStreaming
	DeviceCapturing
	DeviceError
)

func (m DeviceMode) String() string {
	switch m {
	case DeviceIdle:
		return "IDLE"
	case DeviceStreaming:
		return "STREAMING"
	case DeviceCapturing:
		return "CAPTURING"
	case DeviceError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// DeviceEvent is a named trigger applied to a device's phase/mode machine.
type DeviceEvent int

const (
	DeviceEventOpened DeviceEvent = iota
	DeviceEventStreamStarted
	DeviceEventStreamStopped
	DeviceEventCaptureAccepted
	DeviceEventCaptureCompleteOrFailed
	DeviceEventProviderError
	DeviceEventCloseBegin
	DeviceEventCloseConfirmed
)

// DeviceMachine tracks phase and mode independently but mutates both from
// the same event stream, per this combined transition table:
//
//	CREATED → LIVE on on_device_opened
//	IDLE ↔ STREAMING via stream start/stop
//	{IDLE,STREAMING} → CAPTURING on capture accept
//	CAPTURING → previous on complete/fail
//	any → ERROR on on_device_error
//	LIVE → TEARING_DOWN → DESTROYED on close
type DeviceMachine struct {
	Phase DevicePhase
	Mode  DeviceMode

	preCaptureMode DeviceMode
}

// NewDeviceMachine returns a machine starting CREATED/IDLE.
func NewDeviceMachine() *DeviceMachine {
	return &DeviceMachine{Phase: DeviceCreated, Mode: DeviceIdle}
}

// Apply drives event against the current phase/mode.
func (m *DeviceMachine) Apply(event DeviceEvent) {
	if event == DeviceEventProviderError {
		m.Mode = DeviceError
		return
	}

	switch event {
	case DeviceEventOpened:
		if m.Phase != DeviceCreated {
			illegal("device", m.Phase.String(), "on_device_opened")
		}
		m.Phase = DeviceLive

	case DeviceEventStreamStarted:
		if m.Mode != DeviceIdle {
			illegal("device", m.Mode.String(), "stream_started")
		}
		m.Mode = DeviceStreaming

	case DeviceEventStreamStopped:
		if m.Mode != DeviceStreaming {
			illegal("device", m.Mode.String(), "stream_stopped")
		}
		m.Mode = DeviceIdle

	case DeviceEventCaptureAccepted:
		if m.Mode != DeviceIdle && m.Mode != DeviceStreaming {
			illegal("device", m.Mode.String(), "capture_accepted")
		}
		m.preCaptureMode = m.Mode
		m.Mode = DeviceCapturing

	case DeviceEventCaptureCompleteOrFailed:
		if m.Mode != DeviceCapturing {
			illegal("device", m.Mode.String(), "capture_complete_or_failed")
		}
		m.Mode = m.preCaptureMode

	case DeviceEventCloseBegin:
		if m.Phase != DeviceLive {
			illegal("device", m.Phase.String(), "close_begin")
		}
		m.Phase = DeviceTearingDown

	case DeviceEventCloseConfirmed:
		if m.Phase != DeviceTearingDown {
			illegal("device", m.Phase.String(), "close_confirmed")
		}
		m.Phase = DeviceDestroyed

	default:
		illegal("device", m.Phase.String(), "unknown_event")
	}
}

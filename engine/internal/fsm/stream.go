package fsm

// StreamPhase is the lifecycle stage of a stream.
type StreamPhase int

const (
	StreamCreated StreamPhase = iota
	StreamLive
)

func (p StreamPhase) String() string {
	if p == StreamLive {
		return "LIVE"
	}
	return "CREATED"
}

// StreamMode is the operational posture of a stream.
type StreamMode int

const (
	StreamStopped StreamMode = iota
	StreamFlowing
	StreamStarved
	StreamError
)

func (m StreamMode) String() string {
	switch m {
	case StreamStopped:
		return "STOPPED"
	case StreamFlowing:
		return "FLOWING"
	case StreamStarved:
		return "STARVED"
	case StreamError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// StopReason records why a stream last stopped.
type StopReason int

const (
	StopReasonNone StopReason = iota
	StopReasonUser
	StopReasonPreempted
	StopReasonProvider
)

func (r StopReason) String() string {
	switch r {
	case StopReasonUser:
		return "USER"
	case StopReasonPreempted:
		return "PREEMPTED"
	case StopReasonProvider:
		return "PROVIDER"
	default:
		return "NONE"
	}
}

// StreamEvent is a named trigger applied to a stream's phase/mode machine.
type StreamEvent int

const (
	StreamEventCreated StreamEvent = iota
	StreamEventStarted
	StreamEventFrameReceived
	StreamEventStarvationTimeout
	StreamEventStopped
	StreamEventError
)

// StreamMachine implements:
//
//	CREATED → LIVE on on_stream_created
//	STOPPED → FLOWING on on_stream_started
//	FLOWING → STARVED if no frame within STARVE_MS
//	STARVED → FLOWING on next frame
//	any → STOPPED on on_stream_stopped(ok), recording stop_reason
//	any → ERROR on error event
type StreamMachine struct {
	Phase      StreamPhase
	Mode       StreamMode
	StopReason StopReason
}

// NewStreamMachine returns a machine starting CREATED/STOPPED.
func NewStreamMachine() *StreamMachine {
	return &StreamMachine{Phase: StreamCreated, Mode: StreamStopped}
}

// Apply drives event against the current phase/mode. reason is only
// consulted for StreamEventStopped.
func (m *StreamMachine) Apply(event StreamEvent, reason StopReason) {
	if event == StreamEventError {
		m.Mode = StreamError
		return
	}

	switch event {
	case StreamEventCreated:
		if m.Phase != StreamCreated {
			illegal("stream", m.Phase.String(), "on_stream_created")
		}
		m.Phase = StreamLive

	case StreamEventStarted:
		if m.Mode != StreamStopped {
			illegal("stream", m.Mode.String(), "on_stream_started")
		}
		m.Mode = StreamFlowing

	case StreamEventFrameReceived:
		if m.Mode != StreamFlowing && m.Mode != StreamStarved {
			illegal("stream", m.Mode.String(), "frame_received")
		}
		m.Mode = StreamFlowing

	case StreamEventStarvationTimeout:
		if m.Mode != StreamFlowing {
			illegal("stream", m.Mode.String(), "starvation_timeout")
		}
		m.Mode = StreamStarved

	case StreamEventStopped:
		m.Mode = StreamStopped
		m.StopReason = reason

	default:
		illegal("stream", m.Mode.String(), "unknown_event")
	}
}

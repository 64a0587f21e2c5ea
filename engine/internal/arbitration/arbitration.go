package arbitration

import "sort"

// StreamRef is the minimal view of a stream the arbitration engine needs
// to decide preemption order.
type StreamRef struct {
	StreamID uint64
	Intent   Intent
}

// ErrorReason strings mirror the core-facing taxonomy; the engine package
// maps these onto *CoreError.
const (
	ReasonRigAuthoritative = "ERR_RIG_AUTHORITATIVE"
	ReasonBusy             = "ERR_BUSY"
	ReasonBadState         = "ERR_BAD_STATE"
)

// ArbitrationError carries one of the Reason* constants.
type ArbitrationError struct {
	Reason string
}

func (e *ArbitrationError) Error() string { return e.Reason }

// Engine holds no mutable state of its own: every decision is a pure
// function of the inputs supplied by the core loop, which owns the actual
// rig/device/stream state.
type Engine struct{}

// New returns an arbitration Engine.
func New() *Engine { return &Engine{} }

// DecideCreateStream decides whether a new or replacement stream may be
// admitted on a device.
func (e *Engine) DecideCreateStream(req StreamProfile, cap Capability, deviceIsArmedRigMember, rigProfileIncompatible bool, existing *StreamRef, isReplace bool) (StreamProfile, error) {
	if deviceIsArmedRigMember && rigProfileIncompatible {
		return StreamProfile{}, &ArbitrationError{Reason: ReasonRigAuthoritative}
	}
	if existing != nil && !isReplace {
		return StreamProfile{}, &ArbitrationError{Reason: ReasonBusy}
	}
	normalized, err := ValidateStreamProfile(req, cap)
	if err != nil {
		return StreamProfile{}, err
	}
	return normalized, nil
}

// DecideStartStream decides whether a stream may start flowing frames.
func (e *Engine) DecideStartStream(captureInFlightOnDeviceOrRig bool) error {
	if captureInFlightOnDeviceOrRig {
		return &ArbitrationError{Reason: ReasonBadState}
	}
	return nil
}

// DecideTriggerDeviceCapture decides whether a device-level still capture
// may proceed, returning the streams to preempt (in preemption order) on
// success.
func (e *Engine) DecideTriggerDeviceCapture(isArmedRigMember, rigPolicyAllowsDeviceCapture bool, activeStreams []StreamRef) ([]StreamRef, error) {
	if isArmedRigMember && !rigPolicyAllowsDeviceCapture {
		return nil, &ArbitrationError{Reason: ReasonRigAuthoritative}
	}
	return PreemptionOrder(activeStreams), nil
}

// DecideTriggerRigSyncCapture decides whether a synchronized rig capture
// may proceed. memberStreams maps each member device instance id to its
// currently active streams.
func (e *Engine) DecideTriggerRigSyncCapture(rigArmed, allMembersLiveAndNotCapturing bool, memberStreams map[uint64][]StreamRef) (map[uint64][]StreamRef, error) {
	if !rigArmed || !allMembersLiveAndNotCapturing {
		return nil, &ArbitrationError{Reason: ReasonBadState}
	}
	out := make(map[uint64][]StreamRef, len(memberStreams))
	for deviceInstanceID, streams := range memberStreams {
		out[deviceInstanceID] = PreemptionOrder(streams)
	}
	return out, nil
}

// PreemptionOrder sorts streams for preemption: PREVIEW before VIEWFINDER,
// stable order by stream_id within the same intent.
func PreemptionOrder(streams []StreamRef) []StreamRef {
	out := make([]StreamRef, len(streams))
	copy(out, streams)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Intent != out[j].Intent {
			return out[i].Intent == IntentPreview
		}
		return out[i].StreamID < out[j].StreamID
	})
	return out
}

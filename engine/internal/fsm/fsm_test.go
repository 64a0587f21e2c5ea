package fsm

import "testing"

func TestRigMachineHappyPath(t *testing.T) {
	m := NewRigMachine()
	m.Apply(RigEventArm)
	if m.Mode != RigArmed {
		t.Fatalf("expected ARMED, got %s", m.Mode)
	}
	m.Apply(RigEventCaptureAccepted)
	m.Apply(RigEventFirstMemberFrame)
	m.Apply(RigEventAllMembersComplete)
	if m.Mode != RigArmed {
		t.Fatalf("expected ARMED after full cycle, got %s", m.Mode)
	}
	m.Apply(RigEventDisarm)
	if m.Mode != RigOff {
		t.Fatalf("expected OFF, got %s", m.Mode)
	}
}

func TestRigMachineIllegalTransitionPanics(t *testing.T) {
	m := NewRigMachine()
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for illegal rig transition")
		} else if _, ok := r.(*IllegalTransitionError); !ok {
			t.Fatalf("expected *IllegalTransitionError, got %T", r)
		}
	}()
	m.Apply(RigEventCaptureAccepted) // OFF has no capture_accepted transition
}

func TestRigMachineErrorFromAnyMode(t *testing.T) {
	m := NewRigMachine()
	m.Apply(RigEventArm)
	m.Apply(RigEventProviderOrTimeoutError)
	if m.Mode != RigError {
		t.Fatalf("expected ERROR, got %s", m.Mode)
	}
}

func TestDeviceMachineCaptureReturnsToPreviousMode(t *testing.T) {
	m := NewDeviceMachine()
	m.Apply(DeviceEventOpened)
	m.Apply(DeviceEventStreamStarted)
	if m.Mode != DeviceStreaming {
		t.Fatalf("expected STREAMING, got %s", m.Mode)
	}
	m.Apply(DeviceEventCaptureAccepted)
	if m.Mode != DeviceCapturing {
		t.Fatalf("expected CAPTURING, got %s", m.Mode)
	}
	m.Apply(DeviceEventCaptureCompleteOrFailed)
	if m.Mode != DeviceStreaming {
		t.Fatalf("expected return to STREAMING, got %s", m.Mode)
	}
}

func TestDeviceMachineFullLifecycle(t *testing.T) {
	m := NewDeviceMachine()
	m.Apply(DeviceEventOpened)
	m.Apply(DeviceEventCloseBegin)
	m.Apply(DeviceEventCloseConfirmed)
	if m.Phase != DeviceDestroyed {
		t.Fatalf("expected DESTROYED, got %s", m.Phase)
	}
}

func TestDeviceMachineIllegalCloseWithoutOpenPanics(t *testing.T) {
	m := NewDeviceMachine()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic closing a device that was never opened")
		}
	}()
	m.Apply(DeviceEventCloseBegin)
}

func TestStreamMachineStarvationRecovery(t *testing.T) {
	m := NewStreamMachine()
	m.Apply(StreamEventCreated, StopReasonNone)
	m.Apply(StreamEventStarted, StopReasonNone)
	m.Apply(StreamEventStarvationTimeout, StopReasonNone)
	if m.Mode != StreamStarved {
		t.Fatalf("expected STARVED, got %s", m.Mode)
	}
	m.Apply(StreamEventFrameReceived, StopReasonNone)
	if m.Mode != StreamFlowing {
		t.Fatalf("expected FLOWING after frame, got %s", m.Mode)
	}
}

func TestStreamMachineStopRecordsReason(t *testing.T) {
	m := NewStreamMachine()
	m.Apply(StreamEventCreated, StopReasonNone)
	m.Apply(StreamEventStarted, StopReasonNone)
	m.Apply(StreamEventStopped, StopReasonPreempted)
	if m.Mode != StreamStopped || m.StopReason != StopReasonPreempted {
		t.Fatalf("expected STOPPED/PREEMPTED, got %s/%v", m.Mode, m.StopReason)
	}
}

package synthetic

import (
	"testing"

	"cambang/engine/provider"
)

type recordingCallbacks struct {
	opened    []uint64
	completed []uint64
	failed    []uint64
}

func (r *recordingCallbacks) OnDeviceOpened(instanceID uint64)   { r.opened = append(r.opened, instanceID) }
func (r *recordingCallbacks) OnDeviceClosed(uint64)              {}
func (r *recordingCallbacks) OnStreamCreated(uint64)             {}
func (r *recordingCallbacks) OnStreamDestroyed(uint64)           {}
func (r *recordingCallbacks) OnStreamStarted(uint64)             {}
func (r *recordingCallbacks) OnStreamStopped(uint64, bool)       {}
func (r *recordingCallbacks) OnCaptureStarted(uint64)            {}
func (r *recordingCallbacks) OnCaptureCompleted(id uint64, _ int64) {
	r.completed = append(r.completed, id)
}
func (r *recordingCallbacks) OnCaptureFailed(id uint64, _ provider.ResultCode) {
	r.failed = append(r.failed, id)
}
func (r *recordingCallbacks) OnFrame(provider.FrameView)                               {}
func (r *recordingCallbacks) OnDeviceError(uint64, provider.ResultCode)                 {}
func (r *recordingCallbacks) OnStreamError(uint64, provider.ResultCode)                 {}
func (r *recordingCallbacks) OnNativeObjectCreated(uint64, string, uint64, uint64)      {}
func (r *recordingCallbacks) OnNativeObjectDestroyed(uint64, int64)                     {}

func TestOpenDeviceSucceedsByDefault(t *testing.T) {
	clock := NewFakeClock(0)
	p := New(clock, nil)
	cb := &recordingCallbacks{}
	p.Initialize(cb)

	res := p.OpenDevice("camA", 1, 1)
	if !res.Ok() {
		t.Fatalf("expected OK, got %v", res)
	}
	if len(cb.opened) != 1 || cb.opened[0] != 1 {
		t.Fatalf("expected OnDeviceOpened(1), got %v", cb.opened)
	}
}

func TestScriptedOpenFailure(t *testing.T) {
	clock := NewFakeClock(0)
	p := New(clock, nil)
	cb := &recordingCallbacks{}
	p.Initialize(cb)
	p.Script.FailOpen(1, provider.ErrTransientFailure)

	res := p.OpenDevice("camA", 1, 1)
	if res.Ok() || res.Code != provider.ErrTransientFailure {
		t.Fatalf("expected scripted failure, got %v", res)
	}
	if len(cb.opened) != 0 {
		t.Fatalf("callback should not fire on scripted failure, got %v", cb.opened)
	}

	// Script is consumed: a second open succeeds.
	res2 := p.OpenDevice("camA", 1, 1)
	if !res2.Ok() {
		t.Fatalf("expected second open to succeed, got %v", res2)
	}
}

func TestCompleteCaptureUsesClockTime(t *testing.T) {
	clock := NewFakeClock(1000)
	p := New(clock, nil)
	cb := &recordingCallbacks{}
	p.Initialize(cb)

	p.CompleteCapture(42)
	if len(cb.completed) != 1 || cb.completed[0] != 42 {
		t.Fatalf("expected capture 42 completed, got %v", cb.completed)
	}
}

func TestFailCaptureWithoutPriorStart(t *testing.T) {
	clock := NewFakeClock(0)
	p := New(clock, nil)
	cb := &recordingCallbacks{}
	p.Initialize(cb)

	p.FailCapture(7, provider.ErrProviderFailed)
	if len(cb.failed) != 1 || cb.failed[0] != 7 {
		t.Fatalf("expected capture 7 failed, got %v", cb.failed)
	}
}

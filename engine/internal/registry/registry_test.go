package registry

import "testing"

func TestOnCreatedAndGet(t *testing.T) {
	r := New(1000)
	rec := r.OnCreated(CreateInfo{NativeID: 1, Type: "device", Phase: PhaseLive, RootID: 10, CreatedNS: 0})
	if rec.Phase != PhaseLive {
		t.Fatalf("expected LIVE, got %s", rec.Phase)
	}
	got, ok := r.Get(1)
	if !ok || got.NativeID != 1 {
		t.Fatalf("expected to find native_id 1")
	}
}

func TestOnCreatedDuplicatePanics(t *testing.T) {
	r := New(1000)
	r.OnCreated(CreateInfo{NativeID: 1, RootID: 10})
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate native_id")
		}
	}()
	r.OnCreated(CreateInfo{NativeID: 1, RootID: 10})
}

func TestOnDestroyedStampsAndSweepRemovesAfterRetention(t *testing.T) {
	r := New(1000)
	r.OnCreated(CreateInfo{NativeID: 1, RootID: 10, CreatedNS: 0})
	r.OnDestroyed(1, 500)

	if n := r.Sweep(1000); n != 0 {
		t.Fatalf("expected no removals before retention elapses, got %d", n)
	}
	if _, ok := r.Get(1); !ok {
		t.Fatal("record should still be present before retention window elapses")
	}

	if n := r.Sweep(1500); n != 1 {
		t.Fatalf("expected 1 removal once retention elapses, got %d", n)
	}
	if _, ok := r.Get(1); ok {
		t.Fatal("record should be gone after sweep past retention")
	}
}

func TestDetachedRoots(t *testing.T) {
	r := New(1000)
	r.OnCreated(CreateInfo{NativeID: 1, RootID: 10})
	r.OnCreated(CreateInfo{NativeID: 2, RootID: 20})

	aliveRoots := map[uint64]bool{10: true}
	isAlive := func(rootID uint64) bool { return aliveRoots[rootID] }

	detached := r.DetachedRoots(isAlive)
	if _, ok := detached[20]; !ok {
		t.Fatalf("expected root 20 to be detached, got %v", detached)
	}
	if _, ok := detached[10]; ok {
		t.Fatalf("root 10 should not be detached, got %v", detached)
	}
}

func TestByOwnerDeviceAndByPhaseIndexes(t *testing.T) {
	r := New(1000)
	r.OnCreated(CreateInfo{NativeID: 1, OwnerDeviceInstanceID: 5, Phase: PhaseLive, RootID: 1})
	r.OnCreated(CreateInfo{NativeID: 2, OwnerDeviceInstanceID: 5, Phase: PhaseCreated, RootID: 1})

	owned := r.ByOwnerDevice(5)
	if len(owned) != 2 {
		t.Fatalf("expected 2 records owned by device 5, got %d", len(owned))
	}

	live := r.ByPhase(PhaseLive)
	if len(live) != 1 || live[0] != 1 {
		t.Fatalf("expected only native_id 1 in LIVE phase, got %v", live)
	}

	r.Transition(2, PhaseLive)
	live = r.ByPhase(PhaseLive)
	if len(live) != 2 {
		t.Fatalf("expected 2 records in LIVE phase after transition, got %d", len(live))
	}
}

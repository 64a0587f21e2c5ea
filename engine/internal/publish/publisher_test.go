package publish

import (
	"testing"

	"cambang/engine/internal/snapshotbuilder"
)

func TestPublishThenCurrent(t *testing.T) {
	p := New()
	if _, ok := p.Current(); ok {
		t.Fatal("expected no snapshot before first publish")
	}
	p.Publish(snapshotbuilder.Snapshot{Gen: 1, TopologyGen: 1})
	got, ok := p.Current()
	if !ok || got.Gen != 1 {
		t.Fatalf("expected gen 1, got %+v ok=%v", got, ok)
	}
}

func TestObserversNotifiedSynchronouslyInOrder(t *testing.T) {
	p := New()
	var calls []uint64
	p.Subscribe(func(gen, topologyGen uint64) { calls = append(calls, gen) })
	p.Subscribe(func(gen, topologyGen uint64) { calls = append(calls, gen*10) })

	p.Publish(snapshotbuilder.Snapshot{Gen: 5})
	if len(calls) != 2 || calls[0] != 5 || calls[1] != 50 {
		t.Fatalf("unexpected observer calls: %v", calls)
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	p := New()
	count := 0
	id := p.Subscribe(func(gen, topologyGen uint64) { count++ })
	p.Publish(snapshotbuilder.Snapshot{Gen: 1})
	p.Unsubscribe(id)
	p.Publish(snapshotbuilder.Snapshot{Gen: 2})
	if count != 1 {
		t.Fatalf("expected 1 notification before unsubscribe, got %d", count)
	}
}

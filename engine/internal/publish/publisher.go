// Package publish implements the atomic-swap snapshot publisher: a single
// reference cell holding the current immutable snapshot, published with
// release ordering so concurrent readers can load it with acquire
// ordering and never see a torn or partially-built value.
package publish

import (
	"sort"
	"sync"
	"sync/atomic"

	"cambang/engine/internal/snapshotbuilder"
)

// Observer is notified synchronously, on the publishing goroutine, after
// every successful swap. Observers must not reenter the publisher.
type Observer func(gen, topologyGen uint64)

// Publisher holds the current snapshot behind an atomic pointer.
type Publisher struct {
	current atomic.Pointer[snapshotbuilder.Snapshot]

	mu        sync.Mutex
	observers map[int]Observer
	nextID    int
}

// New returns a Publisher with no snapshot yet published.
func New() *Publisher {
	return &Publisher{observers: make(map[int]Observer)}
}

// Publish stores snap as the current snapshot with release ordering, then
// invokes every registered observer synchronously in registration order.
func (p *Publisher) Publish(snap snapshotbuilder.Snapshot) {
	p.current.Store(&snap)

	p.mu.Lock()
	ids := make([]int, 0, len(p.observers))
	for id := range p.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	obs := make([]Observer, len(ids))
	for i, id := range ids {
		obs[i] = p.observers[id]
	}
	p.mu.Unlock()

	for _, o := range obs {
		o(snap.Gen, snap.TopologyGen)
	}
}

// Current loads the current snapshot with acquire ordering. Returns false
// if nothing has been published yet.
func (p *Publisher) Current() (snapshotbuilder.Snapshot, bool) {
	ptr := p.current.Load()
	if ptr == nil {
		return snapshotbuilder.Snapshot{}, false
	}
	return *ptr, true
}

// Subscribe registers an observer and returns an id for Unsubscribe.
func (p *Publisher) Subscribe(o Observer) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.observers[id] = o
	return id
}

// Unsubscribe removes a previously registered observer.
func (p *Publisher) Unsubscribe(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.observers, id)
}

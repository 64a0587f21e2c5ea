// Package timers implements the single min-heap timer scheduler the core
// loop uses for warm expiry, retention sweeps, and stream-starvation
// watchdogs. Deadlines are an abstract monotonic unit (nanoseconds since an
// arbitrary epoch) supplied by the caller — the heap never reads the wall
// clock itself, so tests can drive it with a fake clock.
package timers

import "container/heap"

// Tag is the opaque payload a scheduled timer carries. Kind distinguishes
// what fired (warm expiry, retention sweep, starvation watchdog); Target
// names the entity the timer concerns (a device instance, stream, etc.);
// CorrelationID lets a capture-triggered timer be traced back to its
// originating command.
type Tag struct {
	Kind          Kind
	Target        uint64
	CorrelationID string
}

// Kind enumerates the reasons a timer fires.
type Kind int

const (
	KindWarmExpiry Kind = iota
	KindRetentionSweep
	KindStreamStarvation
)

// Handle identifies a scheduled timer for cancellation.
type Handle uint64

type entry struct {
	deadline  int64
	tag       Tag
	handle    Handle
	cancelled bool
	index     int
}

type entryHeap []*entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].deadline < h[j].deadline }
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Heap is a min-heap of (deadline, Tag) scheduled timers with logical
// cancellation. Not safe for concurrent use; owned by the core thread.
type Heap struct {
	h          entryHeap
	byHandle   map[Handle]*entry
	nextHandle Handle
}

// New returns an empty timer heap.
func New() *Heap {
	return &Heap{byHandle: make(map[Handle]*entry)}
}

// Schedule inserts a new timer for tag at deadline and returns a handle
// that can later be passed to Cancel.
func (t *Heap) Schedule(deadline int64, tag Tag) Handle {
	t.nextHandle++
	h := t.nextHandle
	e := &entry{deadline: deadline, tag: tag, handle: h}
	heap.Push(&t.h, e)
	t.byHandle[h] = e
	return h
}

// Cancel marks the timer identified by handle as cancelled. It is a no-op
// if the handle is unknown or already fired/cancelled. Cancellation is
// logical: the entry is tombstoned and dropped lazily on Pop/PeekDeadline.
func (t *Heap) Cancel(handle Handle) {
	e, ok := t.byHandle[handle]
	if !ok {
		return
	}
	e.cancelled = true
	delete(t.byHandle, handle)
}

// PeekDeadline returns the nearest live deadline, if any. Cancelled
// entries at the top are drained first.
func (t *Heap) PeekDeadline() (deadline int64, ok bool) {
	t.drainCancelled()
	if len(t.h) == 0 {
		return 0, false
	}
	return t.h[0].deadline, true
}

// PopDue removes and returns every live timer whose deadline is ≤ now, in
// deadline order.
func (t *Heap) PopDue(now int64) []Tag {
	var due []Tag
	for {
		t.drainCancelled()
		if len(t.h) == 0 || t.h[0].deadline > now {
			break
		}
		e := heap.Pop(&t.h).(*entry)
		delete(t.byHandle, e.handle)
		due = append(due, e.tag)
	}
	return due
}

// Len reports the number of live (non-cancelled) timers outstanding.
func (t *Heap) Len() int {
	return len(t.byHandle)
}

func (t *Heap) drainCancelled() {
	for len(t.h) > 0 && t.h[0].cancelled {
		heap.Pop(&t.h)
	}
}

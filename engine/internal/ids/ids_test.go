package ids

import "testing"

func TestAllocatorNeverReturnsZero(t *testing.T) {
	a := NewAllocator()
	for i := 0; i < 3; i++ {
		if got := a.Next(); got == 0 {
			t.Fatalf("Next() returned 0 at iteration %d", i)
		}
	}
}

func TestAllocatorMonotonicAndUnique(t *testing.T) {
	a := NewAllocator()
	seen := make(map[uint64]bool)
	prev := uint64(0)
	for i := 0; i < 1000; i++ {
		id := a.Next()
		if id <= prev {
			t.Fatalf("id %d did not increase past previous %d", id, prev)
		}
		if seen[id] {
			t.Fatalf("id %d issued twice", id)
		}
		seen[id] = true
		prev = id
	}
}

func TestPeekDoesNotConsume(t *testing.T) {
	a := NewAllocator()
	p1 := a.Peek()
	p2 := a.Peek()
	if p1 != p2 {
		t.Fatalf("Peek() not idempotent: %d vs %d", p1, p2)
	}
	if n := a.Next(); n != p1 {
		t.Fatalf("Next() = %d, want peeked value %d", n, p1)
	}
}

func TestSetIssuesIndependentSpaces(t *testing.T) {
	s := NewSet()
	d1 := s.Next(SpaceDevice)
	st1 := s.Next(SpaceStream)
	d2 := s.Next(SpaceDevice)
	if d1 != 1 || d2 != 2 {
		t.Fatalf("device space not monotonic: %d, %d", d1, d2)
	}
	if st1 != 1 {
		t.Fatalf("stream space should start independently at 1, got %d", st1)
	}
}

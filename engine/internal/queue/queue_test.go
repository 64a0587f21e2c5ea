package queue

import "testing"

func TestEnqueueDrainFIFOOrder(t *testing.T) {
	q := New[int](10)
	for i := 1; i <= 5; i++ {
		if err := q.Enqueue(i); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	got := q.Drain(0)
	want := []int{1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestEnqueueReturnsQueueFullAtCapacity(t *testing.T) {
	q := New[int](2)
	if err := q.Enqueue(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := q.Enqueue(2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := q.Enqueue(3); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestDrainRespectsMaxCap(t *testing.T) {
	q := New[int](10)
	for i := 1; i <= 5; i++ {
		_ = q.Enqueue(i)
	}
	first := q.Drain(2)
	if len(first) != 2 || first[0] != 1 || first[1] != 2 {
		t.Fatalf("unexpected first drain: %v", first)
	}
	if q.Len() != 3 {
		t.Fatalf("expected 3 remaining, got %d", q.Len())
	}
	rest := q.Drain(0)
	if len(rest) != 3 || rest[0] != 3 {
		t.Fatalf("unexpected rest drain: %v", rest)
	}
}

func TestWakeSignalledOnEnqueue(t *testing.T) {
	q := New[int](10)
	_ = q.Enqueue(1)
	select {
	case <-q.Wake():
	default:
		t.Fatal("expected wake signal after enqueue")
	}
}

func TestDrainEmptyReturnsNil(t *testing.T) {
	q := New[int](10)
	if got := q.Drain(0); got != nil {
		t.Fatalf("expected nil for empty queue, got %v", got)
	}
}

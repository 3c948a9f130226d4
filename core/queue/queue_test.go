package queue

import "testing"

func TestHeadDropKeepsMostRecent(t *testing.T) {
	q, err := New[int](3, HeadDrop)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for i := 1; i <= 5; i++ {
		if !q.Offer(i) {
			t.Fatalf("offer %d: expected success under head-drop", i)
		}
	}
	if q.Len() != 3 {
		t.Fatalf("expected size 3, got %d", q.Len())
	}
	want := []int{3, 4, 5}
	for _, w := range want {
		got, ok := q.Poll()
		if !ok || got != w {
			t.Fatalf("got %d,%v want %d", got, ok, w)
		}
	}
}

func TestTailRejectNeverEvicts(t *testing.T) {
	q, err := New[int](2, TailReject)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !q.Offer(1) {
		t.Fatal("expected accept")
	}
	if !q.Offer(2) {
		t.Fatal("expected accept")
	}
	if q.Offer(3) {
		t.Fatal("expected reject at capacity")
	}
	if q.Len() != 2 {
		t.Fatalf("expected size 2, got %d", q.Len())
	}
	got, _ := q.Peek()
	if got != 1 {
		t.Fatalf("expected oldest element preserved, got %d", got)
	}
}

func TestPollEmpty(t *testing.T) {
	q, _ := New[string](1, TailReject)
	if _, ok := q.Poll(); ok {
		t.Fatal("expected empty poll to report not-ok")
	}
}

func TestFIFOOrder(t *testing.T) {
	q, _ := New[int](5, TailReject)
	for i := 0; i < 5; i++ {
		q.Offer(i)
	}
	for i := 0; i < 5; i++ {
		got, ok := q.Poll()
		if !ok || got != i {
			t.Fatalf("iteration %d: got %d,%v", i, got, ok)
		}
	}
}

func TestNewRejectsNonPositiveCapacity(t *testing.T) {
	if _, err := New[int](0, HeadDrop); err == nil {
		t.Fatal("expected error for zero capacity")
	}
	if _, err := New[int](-1, HeadDrop); err == nil {
		t.Fatal("expected error for negative capacity")
	}
}

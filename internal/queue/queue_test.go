package queue

import (
	"testing"
	"time"
)

func TestPushPopFIFO(t *testing.T) {
	q := New[int](4, nil)
	for i := 0; i < 4; i++ {
		if !q.Push(i) {
			t.Fatalf("Push(%d) returned false", i)
		}
	}
	for i := 0; i < 4; i++ {
		v, ok := q.Pop()
		if !ok || v != i {
			t.Fatalf("Pop() = %d, %v; want %d, true", v, ok, i)
		}
	}
}

func TestPushBlocksAtCapacity(t *testing.T) {
	q := New[int](1, nil)
	if !q.Push(1) {
		t.Fatal("first push should succeed")
	}

	done := make(chan bool, 1)
	go func() {
		done <- q.Push(2)
	}()

	select {
	case <-done:
		t.Fatal("Push should have blocked while queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	if _, ok := q.Pop(); !ok {
		t.Fatal("Pop should succeed")
	}

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("blocked Push should have succeeded once room freed")
		}
	case <-time.After(time.Second):
		t.Fatal("Push never unblocked after Pop freed capacity")
	}
}

func TestTryPushRespectsCapacityExceptNil(t *testing.T) {
	isNil := func(v *int) bool { return v == nil }
	q := New[*int](1, isNil)
	one := 1
	if !q.TryPush(&one) {
		t.Fatal("first TryPush should succeed")
	}
	two := 2
	if q.TryPush(&two) {
		t.Fatal("TryPush at capacity should fail for non-nil item")
	}
	if !q.TryPush(nil) {
		t.Fatal("TryPush of nil sentinel should bypass capacity")
	}
}

func TestAbortWakesWaiters(t *testing.T) {
	q := New[int](1, nil)
	q.Push(1)

	done := make(chan bool, 1)
	go func() {
		done <- q.Push(2)
	}()

	time.Sleep(20 * time.Millisecond)
	q.Abort()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("Push should report failure after Abort")
		}
	case <-time.After(time.Second):
		t.Fatal("Abort did not wake blocked Push")
	}

	if _, ok := q.Pop(); !ok {
		t.Fatal("Pop should still drain the remaining item after Abort")
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("Pop should report closed once drained and aborted")
	}
}

func TestClearDoesNotAbort(t *testing.T) {
	q := New[int](2, nil)
	q.Push(1)
	q.Push(2)

	var released []int
	q.Clear(func(v int) { released = append(released, v) })

	if q.Len() != 0 {
		t.Fatalf("Len() = %d after Clear, want 0", q.Len())
	}
	if len(released) != 2 {
		t.Fatalf("released %d items, want 2", len(released))
	}
	if !q.Push(3) {
		t.Fatal("queue should still accept pushes after Clear")
	}
}

package bicbridge

import (
	"testing"
	"time"
)

func TestBoundedQueuePushPopOrder(t *testing.T) {
	q := NewBoundedQueue[int](3)
	for _, v := range []int{1, 2, 3} {
		if ok := q.Push(v); !ok {
			t.Fatalf("Push(%d) dropped, want accepted", v)
		}
	}
	for _, want := range []int{1, 2, 3} {
		got, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop() ok=false, want true")
		}
		if got != want {
			t.Errorf("Pop()=%d, want %d", got, want)
		}
	}
}

func TestBoundedQueueOverflowDrops(t *testing.T) {
	q := NewBoundedQueue[int](2)
	if !q.Push(1) || !q.Push(2) {
		t.Fatalf("expected first two pushes to be accepted")
	}
	if ok := q.Push(3); ok {
		t.Errorf("Push(3) on a full queue returned accepted, want dropped")
	}
	if n := q.Len(); n != 2 {
		t.Errorf("Len()=%d, want 2 (overflowed push must not be stored)", n)
	}
}

func TestBoundedQueuePopBlocksUntilPush(t *testing.T) {
	q := NewBoundedQueue[string](1)
	done := make(chan string, 1)
	go func() {
		v, ok := q.Pop()
		if !ok {
			done <- "CLOSED"
			return
		}
		done <- v
	}()

	select {
	case <-done:
		t.Fatalf("Pop returned before any Push")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push("hello")
	select {
	case v := <-done:
		if v != "hello" {
			t.Errorf("Pop()=%q, want %q", v, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("Pop never returned after Push")
	}
}

func TestBoundedQueueCloseWakesBlockedConsumerWithSentinel(t *testing.T) {
	q := NewBoundedQueue[int](1)
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Errorf("Pop() after Close returned ok=true, want false (terminal sentinel)")
		}
	case <-time.After(time.Second):
		t.Fatal("blocked consumer was never woken by Close")
	}
}

func TestBoundedQueueCloseDrainsRemainingBeforeSentinel(t *testing.T) {
	q := NewBoundedQueue[int](4)
	q.Push(1)
	q.Push(2)
	q.Close()

	v, ok := q.Pop()
	if !ok || v != 1 {
		t.Errorf("first Pop()=(%d,%v), want (1,true)", v, ok)
	}
	v, ok = q.Pop()
	if !ok || v != 2 {
		t.Errorf("second Pop()=(%d,%v), want (2,true)", v, ok)
	}
	_, ok = q.Pop()
	if ok {
		t.Errorf("Pop() after drain on a closed queue returned ok=true, want false")
	}
}

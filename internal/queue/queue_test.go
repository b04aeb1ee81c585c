package queue

import (
	"sync"
	"testing"
	"time"
)

func TestQueue_PushPopOrder(t *testing.T) {
	q := New[int](4)

	for i := 0; i < 3; i++ {
		if !q.Push(i) {
			t.Fatalf("Push(%d) returned false", i)
		}
	}

	if q.Len() != 3 {
		t.Errorf("Len() = %d, want 3", q.Len())
	}

	for i := 0; i < 3; i++ {
		val, ok := q.TryPop()
		if !ok {
			t.Fatalf("TryPop() returned false for item %d", i)
		}
		if val != i {
			t.Errorf("popped %d, want %d", val, i)
		}
	}

	if _, ok := q.TryPop(); ok {
		t.Error("TryPop() on empty queue returned true")
	}
}

func TestQueue_GrowsWhenFull(t *testing.T) {
	q := New[int](2)

	for i := 0; i < 100; i++ {
		q.Push(i)
	}

	stats := q.Stats()
	if stats.Len != 100 {
		t.Errorf("Len = %d, want 100", stats.Len)
	}
	if stats.Resizes < 5 {
		t.Errorf("Resizes = %d, want at least 5", stats.Resizes)
	}

	for i := 0; i < 100; i++ {
		val, _ := q.TryPop()
		if val != i {
			t.Fatalf("popped %d, want %d", val, i)
		}
	}
}

func TestQueue_GrowAfterWrap(t *testing.T) {
	q := New[int](4)

	// Move head forward so the ring wraps before growing.
	for i := 0; i < 3; i++ {
		q.Push(i)
	}
	q.TryPop()
	q.TryPop()
	for i := 3; i < 10; i++ {
		q.Push(i)
	}

	for want := 2; want < 10; want++ {
		got, ok := q.TryPop()
		if !ok {
			t.Fatalf("TryPop() returned false, want %d", want)
		}
		if got != want {
			t.Fatalf("popped %d, want %d", got, want)
		}
	}
}

func TestQueue_Drain(t *testing.T) {
	q := New[string](8)
	q.Push("a")
	q.Push("b")
	q.Push("c")

	got := q.Drain(2)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Drain(2) = %v, want [a b]", got)
	}

	rest := q.Drain(0)
	if len(rest) != 1 || rest[0] != "c" {
		t.Errorf("Drain(0) = %v, want [c]", rest)
	}

	if q.Drain(0) != nil {
		t.Error("Drain on empty queue should return nil")
	}
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := New[int](1)

	done := make(chan int)
	go func() {
		v, _ := q.Pop()
		done <- v
	}()

	select {
	case <-done:
		t.Fatal("Pop returned before Push")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push(42)

	select {
	case v := <-done:
		if v != 42 {
			t.Errorf("Pop() = %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after Push")
	}
}

func TestQueue_CloseDrainsThenStops(t *testing.T) {
	q := New[int](4)
	q.Push(1)
	q.Close()

	if q.Push(2) {
		t.Error("Push after Close returned true")
	}

	v, ok := q.Pop()
	if !ok || v != 1 {
		t.Errorf("Pop() = %d, %v; want 1, true", v, ok)
	}

	if _, ok := q.Pop(); ok {
		t.Error("Pop on closed empty queue returned true")
	}
}

func TestQueue_CloseWakesWaiters(t *testing.T) {
	q := New[int](1)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Pop()
		}()
	}

	time.Sleep(10 * time.Millisecond)
	q.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiters not released by Close")
	}
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := New[int](2)

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				q.Push(i)
			}
		}()
	}
	wg.Wait()

	stats := q.Stats()
	if stats.Pushed != 1000 {
		t.Errorf("Pushed = %d, want 1000", stats.Pushed)
	}
	if len(q.Drain(0)) != 1000 {
		t.Error("expected to drain 1000 items")
	}
}

package syncx

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int]()
	for i := 0; i < 5; i++ {
		q.Push(i)
	}
	if q.Len() != 5 {
		t.Fatalf("Len = %d, want 5", q.Len())
	}
	for want := 0; want < 5; want++ {
		got, ok := q.Pop(context.Background())
		if !ok || got != want {
			t.Fatalf("Pop = %d,%v want %d,true", got, ok, want)
		}
	}
}

func TestQueueCloseDrains(t *testing.T) {
	q := NewQueue[string]()
	q.Push("a")
	q.Push("b")
	q.Close()

	if q.Push("c") {
		t.Error("Push after Close should report false")
	}
	for _, want := range []string{"a", "b"} {
		if got, ok := q.Pop(context.Background()); !ok || got != want {
			t.Errorf("Pop = %q,%v want %q,true", got, ok, want)
		}
	}
	if _, ok := q.Pop(context.Background()); ok {
		t.Error("drained closed queue should report false")
	}
	q.Close() // idempotent
}

func TestQueuePopWaitsForPush(t *testing.T) {
	q := NewQueue[int]()
	got := make(chan int, 1)
	go func() {
		v, _ := q.Pop(context.Background())
		got <- v
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push(7)

	select {
	case v := <-got:
		if v != 7 {
			t.Errorf("Pop = %d, want 7", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake on Push")
	}
}

func TestQueuePopCancelled(t *testing.T) {
	q := NewQueue[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, ok := q.Pop(ctx); ok {
		t.Error("Pop on empty queue should fail when ctx ends")
	}
}

func TestQueueCloseWakesWaiters(t *testing.T) {
	q := NewQueue[int]()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Pop(context.Background())
		}()
	}
	time.Sleep(10 * time.Millisecond)
	q.Close()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not wake all waiters")
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := NewQueue[int]()
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
	q.Close()

	n := 0
	for {
		if _, ok := q.Pop(context.Background()); !ok {
			break
		}
		n++
	}
	if n != 1000 {
		t.Errorf("popped %d, want 1000", n)
	}
}

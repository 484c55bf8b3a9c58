package core

import (
	"sync"
	"testing"
)

func TestBoundedQueuePullInOrder(t *testing.T) {
	q := NewBoundedQueue([]string{"a", "b", "c"})
	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.Pull()
		if !ok || got != want {
			t.Fatalf("Pull() = %q, %v; want %q, true", got, ok, want)
		}
	}
	if _, ok := q.Pull(); ok {
		t.Fatalf("expected drained queue")
	}
	if _, ok := q.Pull(); ok {
		t.Fatalf("expected drained queue to stay drained")
	}
	if q.Claimed() != 3 || q.Len() != 3 {
		t.Fatalf("claimed=%d len=%d", q.Claimed(), q.Len())
	}
}

func TestBoundedQueueAbort(t *testing.T) {
	q := NewBoundedQueue([]int{1, 2, 3, 4})
	if v, ok := q.Pull(); !ok || v != 1 {
		t.Fatalf("Pull() = %d, %v", v, ok)
	}
	q.Abort()
	if !q.Aborted() {
		t.Fatalf("Aborted() = false after Abort")
	}
	if _, ok := q.Pull(); ok {
		t.Fatalf("Pull succeeded on an aborted queue")
	}
	if q.Claimed() != 1 {
		t.Fatalf("claimed = %d, want 1", q.Claimed())
	}
}

func TestBoundedQueueConcurrentPull(t *testing.T) {
	const n = 1000
	items := make([]int, n)
	for i := range items {
		items[i] = i
	}
	q := NewBoundedQueue(items)

	var mu sync.Mutex
	seen := make(map[int]int)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				v, ok := q.Pull()
				if !ok {
					return
				}
				mu.Lock()
				seen[v]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("saw %d distinct items, want %d", len(seen), n)
	}
	for v, count := range seen {
		if count != 1 {
			t.Fatalf("item %d pulled %d times", v, count)
		}
	}
}

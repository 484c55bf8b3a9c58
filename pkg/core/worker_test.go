package core

import (
	"sync/atomic"
	"testing"
)

type fakeRunner struct {
	res  Result
	runs atomic.Int32
}

func (f *fakeRunner) Run() Result {
	f.runs.Add(1)
	return f.res
}

func TestWorkerDrainsQueue(t *testing.T) {
	runners := []Runner{
		&fakeRunner{res: Result{Read: 10, Written: 4}},
		&fakeRunner{res: Result{Read: 20, Written: 8}},
		&fakeRunner{res: Result{Read: 30, Written: 12}},
	}
	got := NewWorker(NewBoundedQueue(runners)).Run()
	want := Result{Code: OK, Read: 60, Written: 24}
	if got != want {
		t.Fatalf("Run() = %+v, want %+v", got, want)
	}
}

func TestWorkerStopsAtFirstFailure(t *testing.T) {
	failing := &fakeRunner{res: Result{Code: CodeReadFile, Read: 5, Written: 2}}
	last := &fakeRunner{res: Result{Read: 100, Written: 100}}
	queue := NewBoundedQueue([]Runner{
		&fakeRunner{res: Result{Read: 10, Written: 4}},
		failing,
		last,
	})

	got := NewWorker(queue).Run()
	want := Result{Code: CodeReadFile, Read: 15, Written: 6}
	if got != want {
		t.Fatalf("Run() = %+v, want %+v", got, want)
	}
	if last.runs.Load() != 0 {
		t.Fatalf("worker kept pulling after a failure")
	}
	if queue.Aborted() {
		t.Fatalf("worker must not abort the shared queue")
	}
}

func TestWorkerOnAbortedQueue(t *testing.T) {
	r := &fakeRunner{res: Result{Read: 1}}
	queue := NewBoundedQueue([]Runner{r})
	queue.Abort()
	if got := NewWorker(queue).Run(); got != (Result{}) {
		t.Fatalf("Run() = %+v, want zero result", got)
	}
	if r.runs.Load() != 0 {
		t.Fatalf("aborted queue handed out a task")
	}
}

package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAddTaskRunsToFinish(t *testing.T) {
	s := New(2, nil)
	defer s.Close()

	done := make(chan struct{})
	s.AddTask(&Task{
		Name: "finish",
		Run:  func() Status { return StatusFinished },
		Finished: func() {
			close(done)
		},
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not finish in time")
	}
}

func TestYieldReappendsToTailAndInterleaves(t *testing.T) {
	s := New(1, nil)
	defer s.Close()

	var mu sync.Mutex
	var order []string
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	firstRunStarted := make(chan struct{})
	proceed := make(chan struct{})
	var runs int32
	yielderDone := make(chan struct{})

	s.AddTask(&Task{
		Name: "yielder",
		Run: func() Status {
			record("yielder")
			if atomic.AddInt32(&runs, 1) == 1 {
				close(firstRunStarted)
				<-proceed
				return StatusYield
			}
			return StatusFinished
		},
		Finished: func() { close(yielderDone) },
	})

	// Wait until the yielder's first Run is underway, then queue a second
	// task. If yield re-appended the same task inline instead of going
	// through the shared queue, this task would never get a turn.
	<-firstRunStarted
	otherDone := make(chan struct{})
	s.AddTask(&Task{
		Name:     "other",
		Run:      func() Status { record("other"); return StatusFinished },
		Finished: func() { close(otherDone) },
	})
	close(proceed)

	select {
	case <-otherDone:
	case <-time.After(2 * time.Second):
		t.Fatal("other task never ran; yielding task starved the queue")
	}
	select {
	case <-yielderDone:
	case <-time.After(2 * time.Second):
		t.Fatal("yielding task never finished")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"yielder", "other", "yielder"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestFailedCallsFailedCallback(t *testing.T) {
	s := New(1, nil)
	defer s.Close()

	done := make(chan struct{})
	s.AddTask(&Task{
		Name: "failer",
		Run:  func() Status { return StatusFailed },
		Failed: func() {
			close(done)
		},
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("failed callback never invoked")
	}
}

func TestCloseCancelsPendingTasks(t *testing.T) {
	s := New(1, nil)

	block := make(chan struct{})
	started := make(chan struct{})
	s.AddTask(&Task{
		Name: "blocker",
		Run: func() Status {
			close(started)
			<-block
			return StatusFinished
		},
	})
	<-started

	canceled := make(chan struct{})
	s.AddTask(&Task{
		Name:   "queued",
		Run:    func() Status { return StatusFinished },
		Cancel: func() { close(canceled) },
	})

	closeDone := make(chan struct{})
	go func() {
		s.Close()
		close(closeDone)
	}()

	// give Close a moment to cancel the still-queued task before the
	// blocked worker is released to exit
	select {
	case <-canceled:
	case <-time.After(2 * time.Second):
		t.Fatal("queued task was not canceled on Close")
	}

	close(block)

	select {
	case <-closeDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after worker unblocked")
	}
}

func TestAddEventRunsInOrder(t *testing.T) {
	s := New(1, nil)
	defer s.Close()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(3)

	for i := 0; i < 3; i++ {
		i := i
		s.AddEvent(&Event{
			Name: "ev",
			Run: func() {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				wg.Done()
			},
		})
	}

	wg.Wait()
	for i, v := range order {
		if v != i {
			t.Errorf("order = %v, want sequential", order)
			break
		}
	}
}

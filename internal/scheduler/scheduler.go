// Package scheduler is a fixed-size worker pool draining a FIFO task queue
// plus a single-goroutine event queue, the in-process translation of the
// pthread-based scheduler this daemon has always used for its background
// work.
package scheduler

import (
	"log/slog"
	"runtime"
	"sync"

	"github.com/google/uuid"
)

// Status is the outcome a Task's Run reports back to the scheduler.
type Status int

const (
	StatusFinished Status = iota
	StatusYield
	StatusCanceled
	StatusFailed
)

// Task is one unit of background work. Run executes on a worker goroutine
// and may be called more than once if it yields. Exactly one of Finished,
// Failed, or Cancel is called once Run stops returning StatusYield, and it
// runs on the same worker goroutine that last ran Run. A task still queued
// when Close runs, or submitted after Close, gets Cancel on the goroutine
// that called Close or AddTask instead.
type Task struct {
	ID       uuid.UUID
	Name     string
	Run      func() Status
	Finished func()
	Failed   func()
	Cancel   func()
}

// Event is a one-shot callback run on the scheduler's single event-handling
// goroutine, in the order it was submitted.
type Event struct {
	ID   uuid.UUID
	Name string
	Run  func()
}

// Scheduler owns a fixed worker pool for Tasks and a single goroutine for
// Events. Both queues are FIFO.
type Scheduler struct {
	log *slog.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	tasks     []*Task
	terminate bool
	wg        sync.WaitGroup

	events   chan *Event
	eventsWg sync.WaitGroup
}

// New creates a Scheduler with the given number of worker goroutines. A
// non-positive count resolves to runtime.NumCPU()-1, minimum 1, mirroring
// _get_thread_count's sizing rule.
func New(workers int, log *slog.Logger) *Scheduler {
	if workers <= 0 {
		workers = runtime.NumCPU() - 1
		if workers < 1 {
			workers = 1
		}
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Scheduler{
		log:    log,
		events: make(chan *Event, 64),
	}
	s.cond = sync.NewCond(&s.mu)

	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.workerLoop()
	}

	s.eventsWg.Add(1)
	go s.eventLoop()

	return s
}

// AddTask appends t to the task queue and wakes one idle worker.
func (s *Scheduler) AddTask(t *Task) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	s.mu.Lock()
	if s.terminate {
		s.mu.Unlock()
		if t.Cancel != nil {
			t.Cancel()
		}
		return
	}
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()
	s.cond.Signal()
}

// AddEvent enqueues e for the event goroutine. Events run in submission
// order, never concurrently with one another.
func (s *Scheduler) AddEvent(e *Event) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	s.events <- e
}

func (s *Scheduler) workerLoop() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		for len(s.tasks) == 0 && !s.terminate {
			s.cond.Wait()
		}
		if s.terminate {
			s.mu.Unlock()
			return
		}

		t := s.tasks[0]
		s.tasks = s.tasks[1:]
		s.mu.Unlock()

		s.runTask(t)
	}
}

// runTask runs t once. A yielding task is re-appended to the tail of the
// queue rather than re-run inline, so it interleaves with every other
// queued task instead of starving them — matching SIMPLEQ_INSERT_TAIL
// followed by continue in the original scheduler.
func (s *Scheduler) runTask(t *Task) {
	status := t.Run()
	switch status {
	case StatusFinished:
		if t.Finished != nil {
			t.Finished()
		}
	case StatusFailed:
		s.log.Warn("task failed", "task_id", t.ID, "task", t.Name)
		if t.Failed != nil {
			t.Failed()
		}
	case StatusCanceled:
		if t.Cancel != nil {
			t.Cancel()
		}
	case StatusYield:
		s.mu.Lock()
		if s.terminate {
			s.mu.Unlock()
			if t.Cancel != nil {
				t.Cancel()
			}
			return
		}
		s.tasks = append(s.tasks, t)
		s.mu.Unlock()
		s.cond.Signal()
	default:
		s.log.Error("task returned unknown status", "task_id", t.ID, "status", status)
	}
}

func (s *Scheduler) eventLoop() {
	defer s.eventsWg.Done()
	for e := range s.events {
		e.Run()
	}
}

// Close stops accepting new work, cancels every task still queued without
// running it, wakes and joins every worker, then stops the event goroutine.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.terminate = true
	pending := s.tasks
	s.tasks = nil
	s.mu.Unlock()

	s.cond.Broadcast()

	for _, t := range pending {
		if t.Cancel != nil {
			t.Cancel()
		}
	}

	s.wg.Wait()

	close(s.events)
	s.eventsWg.Wait()
}

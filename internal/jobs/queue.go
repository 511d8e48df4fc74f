package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

var ErrClosed = errors.New("jobs: queue closed")

// Job is one background unit of work. It receives the queue's root context,
// never the context of the request that submitted it.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Scheduler is what the lifecycle controller depends on.
type Scheduler interface {
	Submit(ctx context.Context, j Job) error
}

// Queue runs jobs on a fixed set of workers fed by a bounded channel.
type Queue struct {
	log *slog.Logger
	ch  chan Job

	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewQueue starts workers immediately.
func NewQueue(log *slog.Logger, workers, size int) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if size < 0 {
		size = 0
	}
	if log == nil {
		log = slog.Default()
	}
	root, cancel := context.WithCancel(context.Background())
	q := &Queue{
		log:    log.With("component", "jobs"),
		ch:     make(chan Job, size),
		root:   root,
		cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	return q
}

// Submit blocks until j is enqueued, ctx is done, or the queue is closed.
func (q *Queue) Submit(ctx context.Context, j Job) error {
	if j.Run == nil {
		return fmt.Errorf("jobs: %q has no Run func", j.Name)
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.ch <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.root.Done():
		return ErrClosed
	}
}

// Shutdown stops intake and waits for queued jobs to drain. When ctx expires
// first, running jobs see their context cancelled.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

func (q *Queue) worker(n int) {
	defer q.wg.Done()
	for j := range q.ch {
		q.run(n, j)
	}
}

func (q *Queue) run(n int, j Job) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			q.log.Error("job panicked", "job", j.Name, "worker", n, "panic", p, "stack", string(debug.Stack()))
		}
	}()
	if err := j.Run(q.root); err != nil {
		q.log.Error("job failed", "job", j.Name, "worker", n, "err", err, "duration_ms", time.Since(start).Milliseconds())
		return
	}
	q.log.Debug("job done", "job", j.Name, "worker", n, "duration_ms", time.Since(start).Milliseconds())
}

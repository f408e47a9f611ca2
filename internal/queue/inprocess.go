package queue

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// Handler processes one dequeued analysis task.
type Handler func(ctx context.Context, task *AnalysisTask)

// InProcessQueue implements TaskQueue with a worker goroutine inside
// the server process. Used for local development, where no Cloud Tasks
// queue exists; delivery guarantees are best-effort.
type InProcessQueue struct {
	tasks   chan *AnalysisTask
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	timeout time.Duration
}

// NewInProcessQueue starts a queue delivering tasks to handler.
func NewInProcessQueue(handler Handler, workers int) *InProcessQueue {
	if workers <= 0 {
		workers = 1
	}
	q := &InProcessQueue{
		tasks:   make(chan *AnalysisTask, 64),
		timeout: 2 * time.Minute,
	}

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for task := range q.tasks {
				ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
				handler(ctx, task)
				cancel()
			}
		}()
	}
	return q
}

// Enqueue schedules a task on the worker channel.
func (q *InProcessQueue) Enqueue(ctx context.Context, task *AnalysisTask) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errors.New("queue is closed")
	}
	q.mu.Unlock()

	select {
	case q.tasks <- task:
		log.Printf("[Task Created] (in-process) for user: %s", task.UserKey)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks and waits for in-flight work.
func (q *InProcessQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	close(q.tasks)
	q.wg.Wait()
	return nil
}

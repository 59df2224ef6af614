package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/models"
)

var ErrClosed = errors.New("queue: closed")

// Queue is an unbounded FIFO of jobs. Enqueue never blocks; Dequeue blocks
// until a job is available, the queue is closed or ctx ends.
type Queue struct {
	mu     sync.Mutex
	items  []models.Job
	ready  chan struct{}
	done   chan struct{}
	closed bool
}

func New() *Queue {
	return &Queue{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Enqueue appends job and returns its 1-based position in the queue.
func (q *Queue) Enqueue(job models.Job) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, ErrClosed
	}
	q.items = append(q.items, job)
	q.signal()
	return len(q.items), nil
}

func (q *Queue) Dequeue(ctx context.Context) (models.Job, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			job := q.items[0]
			q.items[0] = models.Job{}
			q.items = q.items[1:]
			if len(q.items) > 0 {
				q.signal()
			}
			q.mu.Unlock()
			return job, nil
		}
		if q.closed {
			q.mu.Unlock()
			return models.Job{}, ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return models.Job{}, ctx.Err()
		case <-q.done:
		case <-q.ready:
		}
	}
}

// signal wakes one waiting consumer. Must be called with mu held.
func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting jobs. Jobs already queued are still handed out;
// Dequeue reports ErrClosed once the queue is drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// Drain removes and returns every job still waiting.
func (q *Queue) Drain() []models.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobs := q.items
	q.items = nil
	return jobs
}

package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/models"
)

type JobHandler interface {
	Handle(ctx context.Context, job models.Job) error
}

type HandlerFunc func(ctx context.Context, job models.Job) error

func (f HandlerFunc) Handle(ctx context.Context, job models.Job) error {
	return f(ctx, job)
}

// Pool runs a fixed number of workers over a Queue.
type Pool struct {
	queue   *Queue
	workers int
	handler JobHandler
	logger  zerolog.Logger

	wg   sync.WaitGroup
	busy atomic.Int32
}

func NewPool(queue *Queue, workers int, handler JobHandler, logger zerolog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		queue:   queue,
		workers: workers,
		handler: handler,
		logger:  logger.With().Str("component", "worker-pool").Logger(),
	}
}

func (p *Pool) Workers() int {
	return p.workers
}

func (p *Pool) Busy() int {
	return int(p.busy.Load())
}

// Start launches the workers. They exit when ctx is done or the queue is
// closed and drained; Wait blocks until they all have.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info().Int("workers", p.workers).Msg("worker pool starting")
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i+1)
	}
}

func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	logger := p.logger.With().Int("worker", id).Logger()

	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.Debug().Err(err).Msg("worker stopping")
				return
			}
			logger.Error().Err(err).Msg("dequeue failed")
			continue
		}

		logger.Info().
			Str("job_id", job.ID).
			Int64("user_id", job.UserID).
			Int("waiting", p.queue.Len()).
			Msg("job picked")

		if err := p.handle(ctx, job); err != nil {
			logger.Error().Err(err).Str("job_id", job.ID).Int64("user_id", job.UserID).Msg("job failed")
			continue
		}
		logger.Info().Str("job_id", job.ID).Int64("user_id", job.UserID).Msg("job done")
	}
}

func (p *Pool) handle(ctx context.Context, job models.Job) (err error) {
	p.busy.Add(1)
	defer p.busy.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.handler.Handle(ctx, job)
}

// Package jobs runs uploaded files through the pipeline on a bounded
// queue and records their progress in the job store.
package jobs

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saldang/grezzi/internal/model"
	"github.com/saldang/grezzi/internal/pipeline"
	"github.com/saldang/grezzi/internal/store"
)

// ErrQueueFull is returned by Submit when no slot is free.
var ErrQueueFull = errors.New("jobs: queue full")

// ErrClosed is returned by Submit after Wait has been called.
var ErrClosed = errors.New("jobs: queue closed")

// ErrShutdown is the failure recorded for jobs still queued when the
// workers stop.
var ErrShutdown = errors.New("jobs: shutdown")

// Runner processes one file.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Option configures a Queue.
type Option func(*Queue)

// WithSize sets the number of jobs that may wait for a worker.
func WithSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.size = n
		}
	}
}

// WithWorkers sets the number of files processed concurrently.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithRemoveInput deletes each input file once its job is over, whether
// it succeeded or not.
func WithRemoveInput(remove bool) Option {
	return func(q *Queue) {
		q.removeInput = remove
	}
}

// Queue is a bounded FIFO of jobs drained by a fixed set of workers.
type Queue struct {
	store       store.Store
	runner      Runner
	size        int
	workers     int
	removeInput bool

	mu     sync.RWMutex
	ch     chan *model.Job
	closed bool
	g      *errgroup.Group

	done   atomic.Int64
	failed atomic.Int64
}

// New builds a Queue. Call Start before Submit.
func New(st store.Store, r Runner, opts ...Option) *Queue {
	q := &Queue{
		store:   st,
		runner:  r,
		size:    16,
		workers: 1,
	}
	for _, o := range opts {
		o(q)
	}
	q.ch = make(chan *model.Job, q.size)
	return q
}

// Start launches the workers. They stop when ctx is cancelled or the
// queue is drained after Wait.
func (q *Queue) Start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for i := range q.workers {
		g.Go(func() error {
			log := zap.L().With(zap.Int("worker", i))
			for {
				// select picks at random when both are ready.
				if gctx.Err() != nil {
					return nil
				}
				select {
				case <-gctx.Done():
					return nil
				case job, ok := <-q.ch:
					if !ok {
						return nil
					}
					q.process(gctx, log, job)
				}
			}
		})
	}
	q.mu.Lock()
	q.g = g
	q.mu.Unlock()

	zap.L().Info("jobs: queue started",
		zap.Int("workers", q.workers),
		zap.Int("size", q.size),
	)
}

// Submit records a new job and enqueues it without blocking. A job that
// finds the queue full is stored as failed and ErrQueueFull is returned.
func (q *Queue) Submit(ctx context.Context, file, tableID string) (*model.Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return nil, ErrClosed
	}

	job, err := q.store.CreateJob(ctx, file, tableID)
	if err != nil {
		return nil, eris.Wrap(err, "jobs: create job")
	}

	select {
	case q.ch <- job:
		zap.L().Info("jobs: submitted", zap.String("job_id", job.ID), zap.String("file", file))
		return job, nil
	default:
		if err := q.store.FailJob(ctx, job.ID, model.JobResult{}, ErrQueueFull.Error()); err != nil {
			zap.L().Warn("jobs: record rejected job", zap.String("job_id", job.ID), zap.Error(err))
		}
		return nil, ErrQueueFull
	}
}

// Len returns the number of jobs waiting for a worker.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Wait stops accepting jobs and blocks until the workers have finished
// the queued ones, or the Start context is cancelled. Jobs left in the
// queue after that are recorded as failed.
func (q *Queue) Wait() error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	g := q.g
	q.mu.Unlock()

	var err error
	if g != nil {
		err = g.Wait()
	}
	q.drain()
	zap.L().Info("jobs: queue stopped",
		zap.Int64("done", q.done.Load()),
		zap.Int64("failed", q.failed.Load()),
	)
	return err
}

// drain fails every job the workers never picked up. The channel is
// closed, so the loop ends once it is empty.
func (q *Queue) drain() {
	for job := range q.ch {
		q.failed.Add(1)
		log := zap.L().With(zap.String("job_id", job.ID), zap.String("file", job.File))
		if err := q.store.FailJob(context.Background(), job.ID, model.JobResult{}, ErrShutdown.Error()); err != nil {
			log.Warn("jobs: record shutdown", zap.Error(err))
		}
		q.cleanup(log, job)
		log.Warn("jobs: job dropped at shutdown")
	}
}

// cleanup removes the input of a failed job. The pipeline keeps failed
// inputs in place for the CLI; queued uploads have no other owner.
func (q *Queue) cleanup(log *zap.Logger, job *model.Job) {
	if !q.removeInput {
		return
	}
	if err := os.Remove(job.File); err != nil && !os.IsNotExist(err) {
		log.Warn("jobs: remove input", zap.Error(err))
	}
}

func (q *Queue) process(ctx context.Context, log *zap.Logger, job *model.Job) {
	log = log.With(zap.String("job_id", job.ID), zap.String("file", job.File))
	// Status writes must land even while the server shuts down.
	sctx := context.WithoutCancel(ctx)

	observe := func(state model.JobState, _ pipeline.Result, _ error) {
		if state.Terminal() {
			return
		}
		if err := q.store.UpdateJobState(sctx, job.ID, state); err != nil {
			log.Warn("jobs: update state", zap.String("state", string(state)), zap.Error(err))
		}
	}

	res, err := q.runner.Run(ctx, pipeline.Request{
		File:        job.File,
		TableID:     job.TableID,
		RemoveInput: q.removeInput,
		Observer:    observe,
	})

	var summary model.JobResult
	if res != nil {
		summary = res.JobResult()
	}

	if err != nil {
		q.failed.Add(1)
		log.Error("jobs: job failed", zap.Error(err))
		if serr := q.store.FailJob(sctx, job.ID, summary, err.Error()); serr != nil {
			log.Warn("jobs: record failure", zap.Error(serr))
		}
		q.cleanup(log, job)
		return
	}

	q.done.Add(1)
	if serr := q.store.CompleteJob(sctx, job.ID, summary); serr != nil {
		log.Warn("jobs: record completion", zap.Error(serr))
	}
	log.Info("jobs: job complete",
		zap.Int("rows", summary.RawRows),
		zap.Int("clean_rows", summary.CleanRows),
	)
}

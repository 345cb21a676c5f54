// Package workerpool runs client request jobs across a fixed number of
// goroutines behind a bounded queue. A submit blocks while the queue is
// full, the same back-pressure the reference server applied by blocking
// on a condition variable when its circular job buffer was saturated.
package workerpool

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/klingon-exchange/klingon-v2/pkg/logging"
)

// Job is one unit of work: a connection's next request to process.
type Job func(ctx context.Context)

// Pool is a fixed-size goroutine pool draining a bounded job channel.
type Pool struct {
	jobs chan Job
	log  *logging.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// Config controls pool size and queue depth.
type Config struct {
	Workers       int
	QueueCapacity int
}

// New starts a pool of cfg.Workers goroutines reading from a queue of
// depth cfg.QueueCapacity.
func New(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		jobs:   make(chan Job, cfg.QueueCapacity),
		log:    logging.GetDefault().Component("workerpool"),
		ctx:    ctx,
		cancel: cancel,
	}

	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.worker(i)
	}

	p.log.Info("worker pool started", "workers", cfg.Workers, "queue_capacity", cfg.QueueCapacity)
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.runJob(id, job)
		}
	}
}

func (p *Pool) runJob(id int, job Job) {
	traceID := uuid.NewString()
	p.log.Debug("job started", "worker", id, "trace_id", traceID)
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("job panicked", "worker", id, "trace_id", traceID, "panic", fmt.Sprintf("%v", r))
		}
	}()
	job(p.ctx)
}

// Submit enqueues a job, blocking if the queue is full. It returns an
// error if the pool has been shut down or ctx is cancelled first.
func (p *Pool) Submit(ctx context.Context, job Job) (err error) {
	// Shutdown closes the job channel; a send on it panics, which is
	// reported here as the shutdown error.
	defer func() {
		if recover() != nil {
			err = fmt.Errorf("worker pool is shutting down")
		}
	}()
	select {
	case p.jobs <- job:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit enqueues a job without blocking, reporting false if the
// queue is currently full.
func (p *Pool) TrySubmit(job Job) bool {
	select {
	case p.jobs <- job:
		return true
	default:
		return false
	}
}

// Shutdown stops accepting new jobs and waits for in-flight and queued
// jobs already accepted to drain, or for ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	close(p.jobs)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.log.Info("worker pool drained")
		return nil
	case <-ctx.Done():
		p.cancel()
		return fmt.Errorf("worker pool shutdown timed out: %w", ctx.Err())
	}
}

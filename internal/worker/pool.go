// Package worker runs background jobs with bounded concurrency.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dmitrijs2005/outofsight/internal/logging"
	"golang.org/x/sync/errgroup"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// Job is a unit of background work. ctx is cancelled when the pool is shut
// down before the job finishes.
type Job func(ctx context.Context) error

// Pool runs at most n jobs at a time. Job errors are logged and counted, they
// never stop other jobs.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc
	g      errgroup.Group
	logger logging.Logger

	// slots holds one token per running job. It is acquired without holding
	// mu so that Shutdown is never blocked by a waiting Submit.
	slots   chan struct{}
	closing chan struct{}

	mu     sync.RWMutex
	closed bool

	failed atomic.Int64
}

func New(parent context.Context, workers int, logger logging.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	return &Pool{
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
		slots:   make(chan struct{}, workers),
		closing: make(chan struct{}),
	}
}

// Submit schedules job, blocking while all workers are busy. A blocked Submit
// returns ErrPoolClosed once Shutdown starts.
func (p *Pool) Submit(name string, job Job) error {
	select {
	case p.slots <- struct{}{}:
	case <-p.closing:
		return ErrPoolClosed
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		<-p.slots
		return ErrPoolClosed
	}

	p.g.Go(func() (err error) {
		defer func() { <-p.slots }()
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
			if err != nil {
				p.failed.Add(1)
				p.logger.Error(p.ctx, "background job failed", "job", name, "err", err)
			}
		}()
		return job(p.ctx)
	})
	return nil
}

// Wait blocks until every submitted job has returned.
func (p *Pool) Wait() {
	_ = p.g.Wait()
}

// Failed returns how many jobs ended with an error.
func (p *Pool) Failed() int64 {
	return p.failed.Load()
}

// Shutdown stops accepting jobs and waits for running ones. When ctx expires
// first, the jobs' context is cancelled and Shutdown waits for them to return.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.closing)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.logger.Warn(ctx, "shutdown timeout, cancelling running jobs")
		p.cancel()
		<-done
		return ctx.Err()
	}
}

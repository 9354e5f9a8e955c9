package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/outofsight/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsAllJobs(t *testing.T) {
	p := New(context.Background(), 3, logging.Discard())

	var n atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit("inc", func(ctx context.Context) error {
			n.Add(1)
			return nil
		}))
	}
	p.Wait()

	assert.Equal(t, int32(10), n.Load())
	assert.Zero(t, p.Failed())
}

func TestPool_RespectsLimit(t *testing.T) {
	p := New(context.Background(), 2, logging.Discard())

	var running, peak atomic.Int32
	for i := 0; i < 8; i++ {
		require.NoError(t, p.Submit("slow", func(ctx context.Context) error {
			cur := running.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return nil
		}))
	}
	p.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPool_CountsFailuresAndPanics(t *testing.T) {
	p := New(context.Background(), 2, logging.Discard())

	require.NoError(t, p.Submit("err", func(ctx context.Context) error { return errors.New("boom") }))
	require.NoError(t, p.Submit("panic", func(ctx context.Context) error { panic("kaput") }))
	require.NoError(t, p.Submit("ok", func(ctx context.Context) error { return nil }))
	p.Wait()

	assert.Equal(t, int64(2), p.Failed())
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	p := New(context.Background(), 1, logging.Discard())
	require.NoError(t, p.Shutdown(context.Background()))

	err := p.Submit("late", func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, ErrPoolClosed)
}

func TestPool_ParentCancelDoesNotKillJobs(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	p := New(parent, 1, logging.Discard())

	var sawCancel atomic.Bool
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, p.Submit("job", func(ctx context.Context) error {
		close(started)
		<-release
		sawCancel.Store(ctx.Err() != nil)
		return nil
	}))

	<-started
	cancel()
	close(release)
	p.Wait()

	assert.False(t, sawCancel.Load())
}

func TestPool_ShutdownTimeoutCancelsJobs(t *testing.T) {
	p := New(context.Background(), 1, logging.Discard())

	started := make(chan struct{})
	require.NoError(t, p.Submit("stuck", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Shutdown(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(1), p.Failed())
}

func TestPool_ShutdownReleasesBlockedSubmit(t *testing.T) {
	p := New(context.Background(), 1, logging.Discard())

	started := make(chan struct{})
	var cancelled atomic.Bool
	require.NoError(t, p.Submit("busy", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return nil
	}))
	<-started

	var ranSecond atomic.Bool
	submitErr := make(chan error, 1)
	go func() {
		submitErr <- p.Submit("queued", func(ctx context.Context) error {
			ranSecond.Store(true)
			return nil
		})
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	shutdownErr := make(chan error, 1)
	go func() { shutdownErr <- p.Shutdown(ctx) }()

	select {
	case err := <-shutdownErr:
		require.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return while a Submit was waiting for a worker")
	}

	select {
	case err := <-submitErr:
		require.ErrorIs(t, err, ErrPoolClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("waiting Submit was not released")
	}

	assert.True(t, cancelled.Load())
	assert.False(t, ranSecond.Load())
}

func TestPool_ShutdownWaitsForRunningJobs(t *testing.T) {
	p := New(context.Background(), 1, logging.Discard())

	var finished atomic.Bool
	require.NoError(t, p.Submit("short", func(ctx context.Context) error {
		time.Sleep(10 * time.Millisecond)
		finished.Store(true)
		return nil
	}))

	require.NoError(t, p.Shutdown(context.Background()))
	assert.True(t, finished.Load())
}

func TestNew_ClampsWorkers(t *testing.T) {
	p := New(context.Background(), 0, logging.Discard())
	require.NoError(t, p.Submit("one", func(ctx context.Context) error { return nil }))
	p.Wait()
}

package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueRejectsDuplicateInFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	q := NewQueue("sweeps", func(ctx context.Context, job Job) error {
		started <- struct{}{}
		<-release
		return nil
	}, QueueConfig{Workers: 1})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "tenant-1", Type: "risk_sweep"}))
	<-started

	err := q.Enqueue(Job{ID: "tenant-1", Type: "risk_sweep"})
	require.ErrorIs(t, err, ErrDuplicateJob)
	require.True(t, q.InFlight("tenant-1"))

	close(release)
	require.Eventually(t, func() bool { return !q.InFlight("tenant-1") }, time.Second, 5*time.Millisecond)
	require.NoError(t, q.Enqueue(Job{ID: "tenant-1", Type: "risk_sweep"}))
}

func TestQueueRetriesThenGivesUp(t *testing.T) {
	var attempts int32
	q := NewQueue("sweeps", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("store unavailable")
	}, QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "tenant-2"}))
	require.Eventually(t, func() bool { return !q.InFlight("tenant-2") }, time.Second, 5*time.Millisecond)
	require.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("sweeps", func(context.Context, Job) error { return nil }, QueueConfig{})
	require.Error(t, q.Enqueue(Job{ID: "x"}))
	require.False(t, q.InFlight("x"))
}

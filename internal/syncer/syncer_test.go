package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestShouldWait_WithinGapDoesNotWait(t *testing.T) {
	s := New()
	require.False(t, s.ShouldWait(1, 0))
	require.False(t, s.ShouldWait(1, 4.9))
}

func TestShouldWait_AtOrBeyondGapWaits(t *testing.T) {
	s := New()
	s.ShouldWait(2, 0) // slow track establishes the floor at 0
	require.True(t, s.ShouldWait(1, 5.0))
}

func TestShouldWait_ResolvesWaitersAsSlowestAdvances(t *testing.T) {
	s := New()
	s.ShouldWait(2, 0)
	require.True(t, s.ShouldWait(1, 5.0))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	waitDone := make(chan error, 1)
	go func() { waitDone <- s.Wait(ctx, 5.0) }()

	// Give the goroutine a chance to register as a waiter.
	time.Sleep(10 * time.Millisecond)

	// Slowest track catches up; the waiter should resolve.
	s.ShouldWait(2, 1.0)

	select {
	case err := <-waitDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter was not resolved after slowest track advanced")
	}
}

func TestWait_ContextCancellation(t *testing.T) {
	s := New()
	s.ShouldWait(2, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Wait(ctx, 10.0)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCloseTrack_UnblocksRemainingWaiters(t *testing.T) {
	s := New()
	s.ShouldWait(1, 0)
	s.ShouldWait(2, 10.0) // far ahead, would need to wait

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	waitDone := make(chan error, 1)
	go func() { waitDone <- s.Wait(ctx, 10.0) }()
	time.Sleep(10 * time.Millisecond)

	// The slow track finishes entirely rather than advancing.
	s.CloseTrack(1)

	select {
	case err := <-waitDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("closing the slow track should unblock the waiter")
	}
}

func TestMaxTimestampGapConstant(t *testing.T) {
	require.Equal(t, 5.0, MaxTimestampGap)
}

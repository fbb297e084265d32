package testutil

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ey-asu-rnd/streamguard/internal/stream"
)

func TestGoroutineTest(t *testing.T) {
	gt := NewGoroutineTest(t)

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		gt.Go(func() error {
			ran.Add(1)
			return nil
		})
	}
	gt.Wait()

	assert.Equal(t, int32(5), ran.Load())
}

func TestGoroutineTest_Context(t *testing.T) {
	gt := NewGoroutineTestWithTimeout(t, 5*time.Second)
	defer gt.Wait()

	gt.GoWithContext(func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
			return nil
		}
	})
}

func TestWithTimeout(t *testing.T) {
	require.NoError(t, WithTimeout(time.Second, func() error { return nil }))

	err := WithTimeout(10*time.Millisecond, func() error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})
	assert.ErrorContains(t, err, "timed out")
}

func TestEventually(t *testing.T) {
	var n atomic.Int32
	go func() {
		time.Sleep(20 * time.Millisecond)
		n.Store(1)
	}()

	require.NoError(t, Eventually(time.Second, 5*time.Millisecond, func() bool {
		return n.Load() == 1
	}))
	assert.Error(t, Eventually(10*time.Millisecond, time.Millisecond, func() bool { return false }))
}

func TestRecorder(t *testing.T) {
	var forwarded int
	r := &Recorder[int]{OnRecord: func(stream.Event[int]) { forwarded++ }}

	r.Record(stream.BatchEvent[int](1, 10))
	r.Record(stream.ProgressEvent[int](stream.NewProgress("generation")))
	r.Record(stream.BatchEvent[int](2, 5))

	assert.Equal(t, 3, forwarded)
	assert.Len(t, r.Events(), 3)
	assert.Equal(t, 2, r.Count(stream.EventBatchComplete))
	assert.Zero(t, r.Count(stream.EventComplete))

	last, ok := r.Last(stream.EventBatchComplete)
	require.True(t, ok)
	assert.Equal(t, 5, last.Batch.Count)

	_, ok = r.Last(stream.EventError)
	assert.False(t, ok)
}

package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcomeRecorder struct {
	mu   sync.Mutex
	errs map[string]error
	done chan struct{}
	want int
}

func newOutcomeRecorder(want int) *outcomeRecorder {
	return &outcomeRecorder{errs: map[string]error{}, done: make(chan struct{}), want: want}
}

func (r *outcomeRecorder) record(job Job, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[job.ID] = err
	if len(r.errs) == r.want {
		close(r.done)
	}
}

func (r *outcomeRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job outcomes")
	}
}

func TestQueueProcessesJobs(t *testing.T) {
	rec := newOutcomeRecorder(3)
	var handled int32
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&handled, 1)
		return nil
	}, QueueConfig{Workers: 2, OnOutcome: rec.record})
	q.Start(context.Background())
	defer q.Stop()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(Job{ID: id, Type: "noop"}))
	}
	rec.wait(t)
	assert.Equal(t, int32(3), atomic.LoadInt32(&handled))
	for _, err := range rec.errs {
		assert.NoError(t, err)
	}
}

func TestQueueRetriesThenGivesUp(t *testing.T) {
	rec := newOutcomeRecorder(2)
	var attempts sync.Map
	q := NewQueue("retry", func(ctx context.Context, job Job) error {
		attempts.Store(job.ID, job.Attempt)
		if job.ID == "flaky" && job.Attempt >= 1 {
			return nil
		}
		return errors.New("boom")
	}, QueueConfig{MaxRetries: 2, RetryDelay: 5 * time.Millisecond, OnOutcome: rec.record})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "flaky"}))
	require.NoError(t, q.Enqueue(Job{ID: "broken"}))
	rec.wait(t)

	assert.NoError(t, rec.errs["flaky"])
	assert.EqualError(t, rec.errs["broken"], "boom")
	last, _ := attempts.Load("broken")
	assert.Equal(t, 2, last)
}

func TestQueueEnqueueRequiresStart(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	assert.Error(t, q.Enqueue(Job{ID: "x"}))

	q.Start(context.Background())
	q.Stop()
	assert.Error(t, q.Enqueue(Job{ID: "y"}))
}

func TestQueueFull(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue("full", func(ctx context.Context, job Job) error {
		<-block
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer func() {
		close(block)
		q.Stop()
	}()

	var full error
	for i := 0; i < 5 && full == nil; i++ {
		full = q.Enqueue(Job{ID: "j"})
	}
	assert.ErrorIs(t, full, ErrQueueFull)
}

package batchqueue

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]string
	err     func(batch []*Entry[string]) error
}

func (r *recorder) handle(ctx context.Context, batch []*Entry[string]) error {
	r.mu.Lock()
	payloads := []string{}
	for _, e := range batch {
		payloads = append(payloads, e.Payload)
	}
	r.batches = append(r.batches, payloads)
	r.mu.Unlock()

	if r.err != nil {
		return r.err(batch)
	}
	return nil
}

func (r *recorder) Batches() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string{}, r.batches...)
}

func newTestQueue(r *recorder, s *ManualScheduler, options ...Option[string]) *Queue[string] {
	options = append([]Option[string]{
		WithName[string]("test"),
		WithScheduler[string](s),
		WithLogger[string](log.New(io.Discard, "", 0)),
	}, options...)
	return New[string](r.handle, 10*time.Second, options...)
}

func TestQueue_FlushAfterDelay(t *testing.T) {
	s := NewManualScheduler()
	r := &recorder{}
	q := newTestQueue(r, s)

	require.NoError(t, q.Enqueue("a", "A"))
	assert.True(t, q.Armed())
	assert.Equal(t, 1, q.PendingCount())

	s.Advance(9 * time.Second)
	assert.Empty(t, r.Batches(), "handler must not run before the delay")

	s.Advance(1 * time.Second)
	assert.Equal(t, [][]string{{"A"}}, r.Batches())
	assert.Equal(t, 0, q.PendingCount())
	assert.False(t, q.Armed())
}

func TestQueue_EnqueueNeverCallsHandler(t *testing.T) {
	s := NewManualScheduler()
	r := &recorder{}
	q := newTestQueue(r, s)

	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue("k", "v"))
	}

	assert.Empty(t, r.Batches())
	assert.Equal(t, 1, s.Pending(), "only one timer per accumulation cycle")
}

func TestQueue_DelayCountsFromFirstEnqueue(t *testing.T) {
	s := NewManualScheduler()
	r := &recorder{}
	q := newTestQueue(r, s)

	q.Enqueue("a", "A")
	s.Advance(6 * time.Second)
	q.Enqueue("b", "B")
	s.Advance(4 * time.Second)

	assert.Equal(t, [][]string{{"A", "B"}}, r.Batches())
}

func TestQueue_OverwriteKeepsPosition(t *testing.T) {
	s := NewManualScheduler()
	r := &recorder{}
	q := newTestQueue(r, s)

	q.Enqueue("a", "A1")
	q.Enqueue("b", "B")
	q.Enqueue("a", "A2")
	assert.Equal(t, 2, q.PendingCount())

	s.Advance(10 * time.Second)

	assert.Equal(t, [][]string{{"A2", "B"}}, r.Batches())
	assert.Equal(t, int64(1), q.Stats().Overwritten)
}

func TestQueue_EnqueueDuringHandlerStartsNewCycle(t *testing.T) {
	s := NewManualScheduler()
	r := &recorder{}
	var q *Queue[string]
	r.err = func(batch []*Entry[string]) error {
		if batch[0].Payload == "first" {
			require.NoError(t, q.Enqueue("late", "second"))
			assert.Equal(t, 1, q.PendingCount())
			assert.True(t, q.Armed())
		}
		return nil
	}
	q = newTestQueue(r, s)

	q.Enqueue("early", "first")
	s.Advance(10 * time.Second)
	assert.Equal(t, [][]string{{"first"}}, r.Batches())

	s.Advance(10 * time.Second)
	assert.Equal(t, [][]string{{"first"}, {"second"}}, r.Batches())
}

func TestQueue_StaleFireWithNothingQueued(t *testing.T) {
	s := NewManualScheduler()
	r := &recorder{}
	q := newTestQueue(r, s)

	q.Enqueue("a", "A")
	q.Flush(context.Background())
	assert.Equal(t, [][]string{{"A"}}, r.Batches())
	assert.False(t, q.Armed())

	s.Advance(time.Minute)
	assert.Len(t, r.Batches(), 1)
}

func TestQueue_FlushIsSerialized(t *testing.T) {
	release := make(chan struct{})
	running := make(chan struct{}, 2)
	concurrent := 0
	maxConcurrent := 0
	mu := sync.Mutex{}

	handler := func(ctx context.Context, batch []*Entry[int]) error {
		mu.Lock()
		concurrent++
		if concurrent > maxConcurrent {
			maxConcurrent = concurrent
		}
		mu.Unlock()
		running <- struct{}{}
		<-release
		mu.Lock()
		concurrent--
		mu.Unlock()
		return nil
	}
	q := New[int](handler, time.Millisecond, WithLogger[int](log.New(io.Discard, "", 0)))

	q.Enqueue("a", 1)
	<-running
	q.Enqueue("b", 2)
	time.Sleep(20 * time.Millisecond)

	close(release)
	<-running
	q.Flush(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxConcurrent)
}

func TestQueue_FailureWithoutRetryIsDropped(t *testing.T) {
	s := NewManualScheduler()
	r := &recorder{err: func(batch []*Entry[string]) error {
		return errors.New("boom")
	}}
	dead := []*DeadLetter[string]{}
	q := newTestQueue(r, s, WithDeadLetter[string](func(d *DeadLetter[string]) {
		dead = append(dead, d)
	}))

	q.Enqueue("a", "A")
	q.Enqueue("b", "B")
	s.Advance(10 * time.Second)
	s.Advance(time.Hour)

	assert.Len(t, r.Batches(), 1, "a failed batch is not retried")
	require.Len(t, dead, 2)
	assert.Equal(t, "a", dead[0].Key)
	assert.Equal(t, "boom", dead[0].Error)
	assert.Equal(t, 1, dead[0].Attempts)
	assert.Len(t, q.DeadLetters(), 2)
	assert.Equal(t, int64(2), q.Stats().Dead)
}

func TestQueue_HandlerPanicIsContained(t *testing.T) {
	s := NewManualScheduler()
	r := &recorder{err: func(batch []*Entry[string]) error {
		panic("kaboom")
	}}
	q := newTestQueue(r, s)

	q.Enqueue("a", "A")
	assert.NotPanics(t, func() {
		s.Advance(10 * time.Second)
	})

	require.Len(t, q.DeadLetters(), 1)
	assert.Contains(t, q.DeadLetters()[0].Error, "kaboom")

	// The queue keeps working
	r.err = nil
	q.Enqueue("b", "B")
	s.Advance(10 * time.Second)
	assert.Equal(t, []string{"B"}, r.Batches()[1])
}

func TestQueue_RetryWithBackoff(t *testing.T) {
	s := NewManualScheduler()
	failures := 2
	r := &recorder{}
	r.err = func(batch []*Entry[string]) error {
		be := &BatchError{}
		for _, e := range batch {
			if e.Key == "bad" && failures > 0 {
				failures--
				be.Add(e.Key, errors.New("transient"))
			}
		}
		return be.ErrOrNil()
	}
	q := newTestQueue(r, s, WithRetry[string](3, time.Second, 30*time.Second))

	q.Enqueue("good", "G")
	q.Enqueue("bad", "X")
	s.Advance(10 * time.Second)
	assert.Equal(t, [][]string{{"G", "X"}}, r.Batches())

	// first retry re-enqueued after 1s, flushed 10s later
	s.Advance(1 * time.Second)
	assert.Equal(t, 1, q.PendingCount())
	s.Advance(10 * time.Second)
	assert.Equal(t, []string{"X"}, r.Batches()[1])

	// second retry waits 2s
	s.Advance(1 * time.Second)
	assert.Equal(t, 0, q.PendingCount())
	s.Advance(1 * time.Second)
	assert.Equal(t, 1, q.PendingCount())
	s.Advance(10 * time.Second)

	assert.Len(t, r.Batches(), 3)
	assert.Empty(t, q.DeadLetters())
	stats := q.Stats()
	assert.Equal(t, int64(2), stats.Retried)
	assert.Equal(t, int64(2), stats.Failed)
	assert.Equal(t, int64(2), stats.Applied)
}

func TestQueue_RetryExhausted(t *testing.T) {
	s := NewManualScheduler()
	r := &recorder{err: func(batch []*Entry[string]) error {
		return errors.New("always")
	}}
	q := newTestQueue(r, s, WithRetry[string](2, time.Second, time.Second))

	q.Enqueue("a", "A")
	s.Advance(time.Hour)

	assert.Len(t, r.Batches(), 3)
	require.Len(t, q.DeadLetters(), 1)
	assert.Equal(t, 3, q.DeadLetters()[0].Attempts)
}

func TestQueue_PermanentErrorSkipsRetry(t *testing.T) {
	s := NewManualScheduler()
	r := &recorder{err: func(batch []*Entry[string]) error {
		be := &BatchError{}
		be.Add(batch[0].Key, Permanent(errors.New("invalid")))
		return be
	}}
	q := newTestQueue(r, s, WithRetry[string](5, time.Second, time.Second))

	q.Enqueue("a", "A")
	s.Advance(time.Hour)

	assert.Len(t, r.Batches(), 1)
	assert.Len(t, q.DeadLetters(), 1)
}

func TestQueue_NewerPayloadSupersedesRetry(t *testing.T) {
	s := NewManualScheduler()
	r := &recorder{}
	r.err = func(batch []*Entry[string]) error {
		if batch[0].Payload == "old" {
			return errors.New("transient")
		}
		return nil
	}
	q := newTestQueue(r, s, WithRetry[string](3, 5*time.Second, time.Minute))

	q.Enqueue("k", "old")
	s.Advance(10 * time.Second) // fails, retry armed for +5s
	q.Enqueue("k", "new")
	s.Advance(10 * time.Second) // flushes "new"; the retry of "old" is discarded
	s.Advance(time.Hour)

	assert.Equal(t, [][]string{{"old"}, {"new"}}, r.Batches())
}

func TestQueue_CloseFlushesAndRejects(t *testing.T) {
	s := NewManualScheduler()
	r := &recorder{}
	q := newTestQueue(r, s)

	q.Enqueue("a", "A")
	require.NoError(t, q.Close(context.Background()))

	assert.Equal(t, [][]string{{"A"}}, r.Batches())
	assert.ErrorIs(t, q.Enqueue("b", "B"), ErrClosed)
	assert.ErrorIs(t, q.Close(context.Background()), ErrClosed)
}

func TestQueue_RetryFiredDuringCloseIsDeadLettered(t *testing.T) {
	s := NewManualScheduler()
	r := &recorder{err: func(batch []*Entry[string]) error {
		return errors.New("transient")
	}}
	dead := []*DeadLetter[string]{}
	q := newTestQueue(r, s,
		WithRetry[string](3, time.Second, time.Second),
		WithDeadLetter[string](func(d *DeadLetter[string]) {
			dead = append(dead, d)
		}),
	)

	q.Enqueue("a", "A")
	s.Advance(10 * time.Second)

	q.mu.Lock()
	require.Len(t, q.retries, 1)
	var id int
	var retry *pendingRetry[string]
	for id, retry = range q.retries {
	}
	q.mu.Unlock()

	// The retry timer has fired but its callback has not taken the lock yet
	require.True(t, retry.timer.Stop())
	require.NoError(t, q.Close(context.Background()))
	assert.Empty(t, dead)

	q.requeue(id, retry.entry)

	assert.Len(t, r.Batches(), 1)
	require.Len(t, dead, 1)
	assert.Equal(t, "a", dead[0].Key)
	assert.Equal(t, ErrClosed.Error(), dead[0].Error)
	assert.Len(t, q.DeadLetters(), 1)
}

func TestQueue_DeadLetterCapacity(t *testing.T) {
	s := NewManualScheduler()
	r := &recorder{err: func(batch []*Entry[string]) error {
		return errors.New("nope")
	}}
	q := newTestQueue(r, s, WithDeadLetterCapacity[string](2))

	q.Enqueue("a", "A")
	q.Enqueue("b", "B")
	q.Enqueue("c", "C")
	s.Advance(10 * time.Second)

	dead := q.DeadLetters()
	require.Len(t, dead, 2)
	assert.Equal(t, "b", dead[0].Key)
	assert.Equal(t, "c", dead[1].Key)
	assert.Equal(t, int64(3), q.Stats().Dead)
}

func TestQueue_WithoutMetrics(t *testing.T) {
	s := NewManualScheduler()
	failures := 1
	r := &recorder{err: func(batch []*Entry[string]) error {
		be := &BatchError{}
		for _, e := range batch {
			switch {
			case e.Key == "permanent":
				be.Add(e.Key, Permanent(errors.New("invalid")))
			case failures > 0:
				failures--
				be.Add(e.Key, errors.New("transient"))
			}
		}
		return be.ErrOrNil()
	}}
	q := New[string](r.handle, time.Second,
		WithScheduler[string](s),
		WithLogger[string](log.New(io.Discard, "", 0)),
		WithRetry[string](1, time.Second, time.Second),
	)

	assert.NotPanics(t, func() {
		require.NoError(t, q.Enqueue("a", "A"))
		require.NoError(t, q.Enqueue("a", "A2"))
		require.NoError(t, q.Enqueue("permanent", "P"))
		s.Advance(time.Hour)
	})

	stats := q.Stats()
	assert.Equal(t, int64(3), stats.Enqueued)
	assert.Equal(t, int64(1), stats.Overwritten)
	assert.Equal(t, int64(1), stats.Retried)
	assert.Equal(t, int64(1), stats.Applied)
	assert.Equal(t, int64(1), stats.Dead)
}

func TestQueue_Metrics(t *testing.T) {
	s := NewManualScheduler()
	r := &recorder{}
	m := NewMetrics(prometheus.NewRegistry())
	q := newTestQueue(r, s, WithMetrics[string](m))

	q.Enqueue("a", "A")
	q.Enqueue("a", "A")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.pending.WithLabelValues("test")))

	s.Advance(10 * time.Second)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.enqueued.WithLabelValues("test")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.overwritten.WithLabelValues("test")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.applied.WithLabelValues("test")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.pending.WithLabelValues("test")))
}

func TestBackoff(t *testing.T) {
	q := New[string](nil, time.Second, WithRetry[string](10, time.Second, 5*time.Second))

	assert.Equal(t, 1*time.Second, q.backoff(0))
	assert.Equal(t, 2*time.Second, q.backoff(1))
	assert.Equal(t, 4*time.Second, q.backoff(2))
	assert.Equal(t, 5*time.Second, q.backoff(3))
	assert.Equal(t, 5*time.Second, q.backoff(30))
}

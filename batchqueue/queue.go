package batchqueue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is a pending payload waiting for the next flush.
type Entry[T any] struct {
	Key     string
	Payload T

	// Attempt counts previous failed attempts, 0 on the first flush.
	Attempt    int
	EnqueuedAt time.Time
}

// Handler applies a flushed batch. It returns nil when every entry was
// applied, a *BatchError naming the entries that failed, or any other error
// to fail the whole batch.
type Handler[T any] func(ctx context.Context, batch []*Entry[T]) error

// DeadLetter is an entry the queue gave up on.
type DeadLetter[T any] struct {
	Queue     string    `json:"queue"`
	BatchID   string    `json:"batch_id"`
	Key       string    `json:"key"`
	Payload   T         `json:"payload"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

type Stats struct {
	Pending     int   `json:"pending"`
	Enqueued    int64 `json:"enqueued"`
	Overwritten int64 `json:"overwritten"`
	Batches     int64 `json:"batches"`
	Applied     int64 `json:"applied"`
	Failed      int64 `json:"failed"`
	Retried     int64 `json:"retried"`
	Dead        int64 `json:"dead"`
}

type pendingRetry[T any] struct {
	timer Timer
	entry *Entry[T]
}

// Queue deduplicates payloads by key and hands them to a Handler in batches,
// a fixed delay after the first enqueue of each accumulation cycle.
type Queue[T any] struct {
	name          string
	handler       Handler[T]
	delay         time.Duration
	scheduler     Scheduler
	logger        *log.Logger
	maxRetries    int
	retryDelay    time.Duration
	maxRetryDelay time.Duration
	onDeadLetter  func(d *DeadLetter[T])
	deadCapacity  int
	metrics       *Metrics
	ctx           context.Context

	// flushMu serializes handler runs, a cycle is fully attempted before the
	// next one starts.
	flushMu sync.Mutex

	// All further fields are protected by mu
	mu       sync.Mutex
	keys     map[string]int
	entries  []*Entry[T]
	timer    Timer
	timerGen uint64
	closed   bool
	retryID  int
	retrying map[string]int
	retries  map[int]*pendingRetry[T]
	dead     []*DeadLetter[T]
	stats    Stats
}

func New[T any](handler Handler[T], delay time.Duration, options ...Option[T]) *Queue[T] {
	q := &Queue[T]{
		name:          "queue",
		handler:       handler,
		delay:         delay,
		scheduler:     RealScheduler,
		logger:        log.Default(),
		retryDelay:    delay,
		maxRetryDelay: 30 * time.Second,
		deadCapacity:  100,
		ctx:           context.Background(),
		keys:          map[string]int{},
		retrying:      map[string]int{},
		retries:       map[int]*pendingRetry[T]{},
	}

	for _, option := range options {
		option(q)
	}

	return q
}

func (q *Queue[T]) Name() string {
	return q.name
}

// Enqueue stores payload under key, replacing any pending payload with the
// same key. The key keeps the position of its first enqueue in the cycle.
// It never calls the handler.
func (q *Queue[T]) Enqueue(key string, payload T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	// A fresh payload supersedes any retry waiting for this key
	delete(q.retrying, key)

	q.put(&Entry[T]{
		Key:        key,
		Payload:    payload,
		EnqueuedAt: q.scheduler.Now(),
	})
	q.stats.Enqueued++
	q.metrics.add(enqueuedTotal, q.name, 1)

	return nil
}

// put must be called with mu held.
func (q *Queue[T]) put(entry *Entry[T]) {
	if i, exists := q.keys[entry.Key]; exists {
		q.entries[i] = entry
		q.stats.Overwritten++
		q.metrics.add(overwrittenTotal, q.name, 1)
	} else {
		q.keys[entry.Key] = len(q.entries)
		q.entries = append(q.entries, entry)
	}
	q.metrics.setPending(q.name, len(q.entries))

	if q.timer == nil {
		q.arm()
	}
}

// arm must be called with mu held.
func (q *Queue[T]) arm() {
	q.timerGen++
	gen := q.timerGen
	q.timer = q.scheduler.AfterFunc(q.delay, func() {
		q.fire(gen)
	})
}

// PendingCount returns the number of distinct keys waiting for a flush.
func (q *Queue[T]) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Armed reports whether a flush timer is running.
func (q *Queue[T]) Armed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.timer != nil
}

func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	stats := q.stats
	stats.Pending = len(q.entries)
	return stats
}

// DeadLetters returns the most recent entries the queue gave up on, oldest
// first.
func (q *Queue[T]) DeadLetters() []*DeadLetter[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	result := make([]*DeadLetter[T], len(q.dead))
	copy(result, q.dead)
	return result
}

func (q *Queue[T]) fire(gen uint64) {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	q.mu.Lock()
	if gen != q.timerGen || q.timer == nil {
		// Stopped or replaced by a forced flush
		q.mu.Unlock()
		return
	}
	batch := q.take()
	q.mu.Unlock()

	q.process(q.ctx, batch)
}

// take must be called with mu held. It clears the pending state and disarms
// the timer.
func (q *Queue[T]) take() []*Entry[T] {
	q.timer = nil
	if len(q.entries) == 0 {
		return nil
	}
	batch := q.entries
	q.entries = nil
	q.keys = map[string]int{}
	q.metrics.setPending(q.name, 0)
	return batch
}

// Flush hands pending entries to the handler right away, without waiting for
// the timer. It waits for any flush already running.
func (q *Queue[T]) Flush(ctx context.Context) {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	q.mu.Lock()
	if q.timer != nil {
		q.timer.Stop()
	}
	batch := q.take()
	q.mu.Unlock()

	q.process(ctx, batch)
}

// Close stops accepting entries, moves waiting retries back to the pending
// set and flushes it one last time. Entries failing during this flush, and
// retries whose timer already fired, are dead lettered.
func (q *Queue[T]) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.closed = true
	for id, retry := range q.retries {
		if retry.timer.Stop() && q.retrying[retry.entry.Key] == id {
			delete(q.retrying, retry.entry.Key)
			retry.entry.Attempt++
			q.put(retry.entry)
		}
		delete(q.retries, id)
	}
	q.mu.Unlock()

	q.Flush(ctx)

	return nil
}

func (q *Queue[T]) process(ctx context.Context, batch []*Entry[T]) {
	if len(batch) == 0 {
		return
	}

	batchID := uuid.New().String()
	t0 := time.Now()
	err := q.call(ctx, batch)

	q.mu.Lock()
	q.stats.Batches++
	q.mu.Unlock()
	q.metrics.add(batchesTotal, q.name, 1)

	if err == nil {
		q.mu.Lock()
		q.stats.Applied += int64(len(batch))
		q.mu.Unlock()
		q.metrics.add(appliedTotal, q.name, len(batch))
		q.logger.Printf("%s: batch %s applied %d entries in %s", q.name, batchID, len(batch), time.Since(t0))
		return
	}

	failed := map[string]error{}
	var batchErr *BatchError
	if errors.As(err, &batchErr) {
		for _, f := range batchErr.Failed {
			failed[f.Key] = f.Err
		}
	} else {
		for _, entry := range batch {
			failed[entry.Key] = err
		}
	}

	applied := 0
	for _, entry := range batch {
		entryErr, isFailed := failed[entry.Key]
		if !isFailed {
			applied++
			continue
		}
		q.retryOrBury(batchID, entry, entryErr)
	}

	q.mu.Lock()
	q.stats.Applied += int64(applied)
	q.stats.Failed += int64(len(batch) - applied)
	q.mu.Unlock()
	q.metrics.add(appliedTotal, q.name, applied)
	q.metrics.add(failedTotal, q.name, len(batch)-applied)

	q.logger.Printf("ERROR: %s: batch %s applied %d of %d entries: %s", q.name, batchID, applied, len(batch), err.Error())
}

func (q *Queue[T]) call(ctx context.Context, batch []*Entry[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return q.handler(ctx, batch)
}

func (q *Queue[T]) backoff(attempt int) time.Duration {
	d := q.retryDelay
	for i := 0; i < attempt && d < q.maxRetryDelay; i++ {
		d *= 2
	}
	if d > q.maxRetryDelay {
		return q.maxRetryDelay
	}
	return d
}

func (q *Queue[T]) retryOrBury(batchID string, entry *Entry[T], err error) {
	q.mu.Lock()

	if q.closed || IsPermanent(err) || entry.Attempt >= q.maxRetries {
		d := q.bury(batchID, entry, err)
		q.mu.Unlock()
		if q.onDeadLetter != nil {
			q.onDeadLetter(d)
		}
		return
	}

	q.retryID++
	id := q.retryID
	q.retrying[entry.Key] = id
	q.retries[id] = &pendingRetry[T]{
		entry: entry,
		timer: q.scheduler.AfterFunc(q.backoff(entry.Attempt), func() {
			q.requeue(id, entry)
		}),
	}
	q.stats.Retried++
	q.metrics.add(retriedTotal, q.name, 1)
	q.mu.Unlock()
}

func (q *Queue[T]) requeue(id int, entry *Entry[T]) {
	q.mu.Lock()

	delete(q.retries, id)
	if q.retrying[entry.Key] != id {
		// Superseded by a newer payload for the same key
		q.mu.Unlock()
		return
	}
	delete(q.retrying, entry.Key)

	if q.closed {
		// Fired while Close was taking the pending retries
		d := q.bury("", entry, ErrClosed)
		q.mu.Unlock()
		if q.onDeadLetter != nil {
			q.onDeadLetter(d)
		}
		return
	}

	retry := *entry
	retry.Attempt++
	q.put(&retry)
	q.mu.Unlock()
}

// bury must be called with mu held.
func (q *Queue[T]) bury(batchID string, entry *Entry[T], err error) *DeadLetter[T] {
	d := &DeadLetter[T]{
		Queue:     q.name,
		BatchID:   batchID,
		Key:       entry.Key,
		Payload:   entry.Payload,
		Attempts:  entry.Attempt + 1,
		Error:     err.Error(),
		Timestamp: q.scheduler.Now(),
	}

	if q.deadCapacity > 0 {
		if len(q.dead) >= q.deadCapacity {
			q.dead = q.dead[1:]
		}
		q.dead = append(q.dead, d)
	}
	q.stats.Dead++
	q.metrics.add(deadTotal, q.name, 1)

	q.logger.Printf("WARNING: %s: dropped '%s' after %d attempts: %s", q.name, entry.Key, d.Attempts, d.Error)

	return d
}

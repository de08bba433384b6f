package batchqueue

import (
	"log"
	"time"
)

type Option[T any] func(q *Queue[T])

// WithName sets the name used in logs, dead letters and metric labels.
func WithName[T any](name string) Option[T] {
	return func(q *Queue[T]) {
		q.name = name
	}
}

func WithLogger[T any](l *log.Logger) Option[T] {
	return func(q *Queue[T]) {
		q.logger = l
	}
}

func WithScheduler[T any](s Scheduler) Option[T] {
	return func(q *Queue[T]) {
		q.scheduler = s
	}
}

// WithRetry enables retries of failed entries: up to max additional attempts,
// waiting base*2^attempt between them, never more than limit.
func WithRetry[T any](max int, base, limit time.Duration) Option[T] {
	return func(q *Queue[T]) {
		q.maxRetries = max
		q.retryDelay = base
		q.maxRetryDelay = limit
	}
}

// WithDeadLetter registers an observer called for every entry given up.
func WithDeadLetter[T any](f func(d *DeadLetter[T])) Option[T] {
	return func(q *Queue[T]) {
		q.onDeadLetter = f
	}
}

// WithDeadLetterCapacity bounds how many dead letters are kept in memory.
func WithDeadLetterCapacity[T any](n int) Option[T] {
	return func(q *Queue[T]) {
		q.deadCapacity = n
	}
}

func WithMetrics[T any](m *Metrics) Option[T] {
	return func(q *Queue[T]) {
		q.metrics = m
	}
}

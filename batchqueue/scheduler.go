package batchqueue

import "time"

// Timer is a single-shot deferred action that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler arms deferred actions. The queue arms at most one per
// accumulation cycle.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
	Now() time.Time
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (realScheduler) Now() time.Time {
	return time.Now()
}

// RealScheduler is backed by time.AfterFunc.
var RealScheduler Scheduler = realScheduler{}

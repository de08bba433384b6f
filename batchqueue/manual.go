package batchqueue

import (
	"sort"
	"sync"
	"time"
)

// ManualScheduler is a Scheduler driven by Advance instead of the wall clock.
// Deferred actions run synchronously inside Advance, in deadline order, which
// makes flush timing fully deterministic.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	s        *ManualScheduler
	deadline time.Time
	seq      int
	f        func()
	stopped  bool
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{
		now: time.Date(2022, 8, 15, 2, 8, 13, 0, time.UTC),
	}
}

func (s *ManualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *ManualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	t := &manualTimer{
		s:        s,
		deadline: s.now.Add(d),
		seq:      s.seq,
		f:        f,
	}
	s.timers = append(s.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	for i, other := range t.s.timers {
		if other == t {
			t.s.timers = append(t.s.timers[:i], t.s.timers[i+1:]...)
			t.stopped = true
			return true
		}
	}
	return false
}

// Pending returns the number of armed timers.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Advance moves the clock forward by d firing every timer whose deadline is
// reached, including timers armed by the fired callbacks themselves.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()

	for {
		s.mu.Lock()
		sort.SliceStable(s.timers, func(i, j int) bool {
			if s.timers[i].deadline.Equal(s.timers[j].deadline) {
				return s.timers[i].seq < s.timers[j].seq
			}
			return s.timers[i].deadline.Before(s.timers[j].deadline)
		})
		if len(s.timers) == 0 || s.timers[0].deadline.After(target) {
			s.now = target
			s.mu.Unlock()
			return
		}
		t := s.timers[0]
		s.timers = s.timers[1:]
		if t.deadline.After(s.now) {
			s.now = t.deadline
		}
		s.mu.Unlock()

		t.f()
	}
}

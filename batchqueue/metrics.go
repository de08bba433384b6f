package batchqueue

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes queue activity to prometheus. A single Metrics can be shared
// by several queues, series are labeled by queue name. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	enqueued    *prometheus.CounterVec
	overwritten *prometheus.CounterVec
	batches     *prometheus.CounterVec
	applied     *prometheus.CounterVec
	failed      *prometheus.CounterVec
	retried     *prometheus.CounterVec
	dead        *prometheus.CounterVec
	pending     *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "itempicker",
			Subsystem: "queue",
			Name:      name,
			Help:      help,
		}, []string{"queue"})
	}

	m := &Metrics{
		enqueued:    counter("enqueued_total", "Entries accepted by Enqueue."),
		overwritten: counter("overwritten_total", "Enqueues that replaced a pending payload with the same key."),
		batches:     counter("batches_total", "Non empty flushes handed to the handler."),
		applied:     counter("applied_total", "Entries applied without error."),
		failed:      counter("failed_total", "Entries reported as failed by the handler."),
		retried:     counter("retried_total", "Failed entries scheduled for another attempt."),
		dead:        counter("dead_letters_total", "Entries given up after exhausting retries."),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "itempicker",
			Subsystem: "queue",
			Name:      "pending",
			Help:      "Distinct keys waiting for the next flush.",
		}, []string{"queue"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.enqueued,
			m.overwritten,
			m.batches,
			m.applied,
			m.failed,
			m.retried,
			m.dead,
			m.pending,
		)
	}

	return m
}

type counterOf func(m *Metrics) *prometheus.CounterVec

var (
	enqueuedTotal    counterOf = func(m *Metrics) *prometheus.CounterVec { return m.enqueued }
	overwrittenTotal counterOf = func(m *Metrics) *prometheus.CounterVec { return m.overwritten }
	batchesTotal     counterOf = func(m *Metrics) *prometheus.CounterVec { return m.batches }
	appliedTotal     counterOf = func(m *Metrics) *prometheus.CounterVec { return m.applied }
	failedTotal      counterOf = func(m *Metrics) *prometheus.CounterVec { return m.failed }
	retriedTotal     counterOf = func(m *Metrics) *prometheus.CounterVec { return m.retried }
	deadTotal        counterOf = func(m *Metrics) *prometheus.CounterVec { return m.dead }
)

func (m *Metrics) add(counter counterOf, queue string, n int) {
	if m == nil || n == 0 {
		return
	}
	counter(m).WithLabelValues(queue).Add(float64(n))
}

func (m *Metrics) setPending(queue string, n int) {
	if m == nil {
		return
	}
	m.pending.WithLabelValues(queue).Set(float64(n))
}

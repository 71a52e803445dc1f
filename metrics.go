package staffauth

import (
	"sync/atomic"
)

// MetricID indexes one engine counter.
type MetricID uint16

const (
	MetricUsernameStepSuccess MetricID = iota
	MetricUsernameStepFailure
	MetricPasswordStepSuccess
	MetricPasswordStepFailure
	MetricCodeStepSuccess
	MetricCodeStepFailure
	MetricCodeResent
	MetricResendRateLimited
	MetricAccountLockout
	MetricSessionIssued
	MetricSessionInvalidated
	MetricAttemptExpired
	MetricAuditWriteFailure
	metricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is the in-process counter set. Counters are cache-line padded so
// concurrent step handlers do not contend on neighbouring IDs.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter. Safe to call concurrently with Inc. With
// metrics disabled the counter map is empty, which exporters render as no
// output.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counters: make(map[MetricID]uint64, metricIDCount),
	}
	if m == nil || !m.enabled {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snap.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return snap
}

package rebuild

import (
	"sync"
	"time"
)

// Metrics tracks rebuild outcomes
type Metrics struct {
	attempts      int64
	successes     int64
	failures      int64
	dropped       int64
	reloads       int64
	totalDuration time.Duration
	lastDuration  time.Duration
	mutex         sync.RWMutex
}

// Snapshot is a point-in-time copy of Metrics
type Snapshot struct {
	Attempts        int64
	Successes       int64
	Failures        int64
	Dropped         int64
	Reloads         int64
	AverageDuration time.Duration
	LastDuration    time.Duration
	TotalDuration   time.Duration
}

// NewMetrics creates a new metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordAttempt records a finished rebuild
func (m *Metrics) RecordAttempt(duration time.Duration, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.attempts++
	m.totalDuration += duration
	m.lastDuration = duration

	if err != nil {
		m.failures++
	} else {
		m.successes++
	}
}

// RecordDropped records a trigger ignored because a rebuild was in flight
func (m *Metrics) RecordDropped() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.dropped++
}

// RecordReload records a successful browser reload
func (m *Metrics) RecordReload() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.reloads++
}

// Snapshot returns a copy of the current metrics
func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	s := Snapshot{
		Attempts:      m.attempts,
		Successes:     m.successes,
		Failures:      m.failures,
		Dropped:       m.dropped,
		Reloads:       m.reloads,
		LastDuration:  m.lastDuration,
		TotalDuration: m.totalDuration,
	}
	if m.attempts > 0 {
		s.AverageDuration = m.totalDuration / time.Duration(m.attempts)
	}
	return s
}

// Reset resets all metrics
func (m *Metrics) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.attempts = 0
	m.successes = 0
	m.failures = 0
	m.dropped = 0
	m.reloads = 0
	m.totalDuration = 0
	m.lastDuration = 0
}

// SuccessRate returns the success rate as a percentage
func (s Snapshot) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0.0
	}
	return float64(s.Successes) / float64(s.Attempts) * 100.0
}

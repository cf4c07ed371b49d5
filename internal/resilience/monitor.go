package resilience

import (
	"sort"
	"sync"
)

const defaultMaxRecentFailures = 20

// #region observer
// Observer receives every execution record, e.g. to export metrics.
type Observer interface {
	ObserveStageAttempt(rec StageExecutionRecord)
}

// #endregion observer

// #region stats
// StageStats aggregates execution records for one stage name.
type StageStats struct {
	Stage          string                 `json:"stage_name"`
	Successes      int                    `json:"successes"`
	Failures       int                    `json:"failures"`
	Timeouts       int                    `json:"timeouts"` // subset of Failures
	LastDurationMs int64                  `json:"last_duration_ms"`
	RecentFailures []StageExecutionRecord `json:"recent_failures"`
}

// #endregion stats

// #region monitor
// Monitor is the shared, in-memory sink for stage execution records.
// It is diagnostic only and never drives control decisions.
type Monitor struct {
	mu        sync.Mutex
	stages    map[string]*StageStats
	maxRecent int
	observer  Observer
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithMaxRecentFailures caps the per-stage recent failure list.
func WithMaxRecentFailures(n int) MonitorOption {
	return func(m *Monitor) {
		if n > 0 {
			m.maxRecent = n
		}
	}
}

// WithObserver forwards every record to o after it is stored.
func WithObserver(o Observer) MonitorOption {
	return func(m *Monitor) { m.observer = o }
}

// NewMonitor creates an empty monitor.
func NewMonitor(opts ...MonitorOption) *Monitor {
	m := &Monitor{
		stages:    make(map[string]*StageStats),
		maxRecent: defaultMaxRecentFailures,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Record appends one execution record. A nil monitor discards it.
func (m *Monitor) Record(rec StageExecutionRecord) {
	if m == nil {
		return
	}
	m.mu.Lock()
	st, ok := m.stages[rec.Stage]
	if !ok {
		st = &StageStats{Stage: rec.Stage}
		m.stages[rec.Stage] = st
	}
	st.LastDurationMs = rec.DurationMs
	if rec.Outcome == OutcomeSuccess {
		st.Successes++
	} else {
		st.Failures++
		if rec.Outcome == OutcomeTimeout {
			st.Timeouts++
		}
		st.RecentFailures = append(st.RecentFailures, rec)
		if over := len(st.RecentFailures) - m.maxRecent; over > 0 {
			st.RecentFailures = append([]StageExecutionRecord(nil), st.RecentFailures[over:]...)
		}
	}
	obs := m.observer
	m.mu.Unlock()

	if obs != nil {
		obs.ObserveStageAttempt(rec)
	}
}

// Stats returns a copy of the aggregate for one stage.
func (m *Monitor) Stats(stage string) (StageStats, bool) {
	if m == nil {
		return StageStats{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stages[stage]
	if !ok {
		return StageStats{}, false
	}
	return copyStats(st), true
}

// Snapshot returns every stage aggregate, sorted by stage name.
func (m *Monitor) Snapshot() []StageStats {
	if m == nil {
		return []StageStats{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StageStats, 0, len(m.stages))
	for _, st := range m.stages {
		out = append(out, copyStats(st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out
}

// Reset drops all aggregates.
func (m *Monitor) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = make(map[string]*StageStats)
}

func copyStats(st *StageStats) StageStats {
	out := *st
	out.RecentFailures = append([]StageExecutionRecord(nil), st.RecentFailures...)
	return out
}

// #endregion monitor

// Package metrics keeps in-process timings and counters for the timeline
// engine: edits, relabeling, the recompute pipeline and both persistence
// writes. Everything is lock-free and cheap enough to leave on; set
// BW_METRICS=0 to turn collection off.
//
//	defer metrics.Timer(metrics.EditSplit)()
package metrics

import (
	"os"
	"sync/atomic"
	"time"
)

var enabled atomic.Bool

func init() {
	enabled.Store(os.Getenv("BW_METRICS") != "0")
}

// Enabled reports whether metrics are being collected.
func Enabled() bool {
	return enabled.Load()
}

// SetEnabled turns collection on or off.
func SetEnabled(e bool) {
	enabled.Store(e)
}

// TimingMetric accumulates durations for one named operation.
type TimingMetric struct {
	name  string
	count atomic.Int64
	total atomic.Int64
	max   atomic.Int64
	min   atomic.Int64 // 0 until the first sample
}

func newTimingMetric(name string) *TimingMetric {
	return &TimingMetric{name: name}
}

// Record adds one sample.
func (m *TimingMetric) Record(d time.Duration) {
	if !Enabled() {
		return
	}
	ns := d.Nanoseconds()
	m.count.Add(1)
	m.total.Add(ns)
	for old := m.max.Load(); ns > old; old = m.max.Load() {
		if m.max.CompareAndSwap(old, ns) {
			break
		}
	}
	for old := m.min.Load(); old == 0 || ns < old; old = m.min.Load() {
		if m.min.CompareAndSwap(old, ns) {
			break
		}
	}
}

func (m *TimingMetric) Name() string { return m.name }
func (m *TimingMetric) Count() int64 { return m.count.Load() }
func (m *TimingMetric) MaxNs() int64 { return m.max.Load() }
func (m *TimingMetric) MinNs() int64 { return m.min.Load() }

// AvgNs is the mean sample, 0 without samples.
func (m *TimingMetric) AvgNs() int64 {
	n := m.count.Load()
	if n == 0 {
		return 0
	}
	return m.total.Load() / n
}

// Stats snapshots the metric in milliseconds.
func (m *TimingMetric) Stats() TimingStats {
	return TimingStats{
		Name:    m.name,
		Count:   m.Count(),
		TotalMs: ms(m.total.Load()),
		AvgMs:   ms(m.AvgNs()),
		MaxMs:   ms(m.MaxNs()),
		MinMs:   ms(m.MinNs()),
	}
}

func ms(ns int64) float64 { return float64(ns) / 1e6 }

// Reset drops every sample.
func (m *TimingMetric) Reset() {
	m.count.Store(0)
	m.total.Store(0)
	m.max.Store(0)
	m.min.Store(0)
}

// TimingStats is a point-in-time view of a TimingMetric.
type TimingStats struct {
	Name    string  `json:"name"`
	Count   int64   `json:"count"`
	TotalMs float64 `json:"total_ms"`
	AvgMs   float64 `json:"avg_ms"`
	MaxMs   float64 `json:"max_ms"`
	MinMs   float64 `json:"min_ms,omitempty"`
}

// Timer starts timing m and returns the function that stops it.
func Timer(m *TimingMetric) func() {
	if m == nil || !Enabled() {
		return func() {}
	}
	start := time.Now()
	return func() { m.Record(time.Since(start)) }
}

// Engine operation timings, in the order the CLI prints them.
var (
	EditMerge      = newTimingMetric("edit_merge")
	EditSplit      = newTimingMetric("edit_split")
	EditDelete     = newTimingMetric("edit_delete")
	Relabel        = newTimingMetric("relabel")
	Recompute      = newTimingMetric("recompute")
	SnapshotCommit = newTimingMetric("snapshot_commit")
	IndexUpdate    = newTimingMetric("index_update")
	Undo           = newTimingMetric("undo")
	Segmentation   = newTimingMetric("segmentation")
	JSONParsing    = newTimingMetric("json_parsing")

	timings = []*TimingMetric{
		EditMerge, EditSplit, EditDelete, Relabel, Recompute,
		SnapshotCommit, IndexUpdate, Undo, Segmentation, JSONParsing,
	}
)

// AllTimingStats returns stats for the timings that have samples.
func AllTimingStats() []TimingStats {
	var out []TimingStats
	for _, m := range timings {
		if m.Count() > 0 {
			out = append(out, m.Stats())
		}
	}
	return out
}

// ResetAll clears every timing and counter.
func ResetAll() {
	for _, m := range timings {
		m.Reset()
	}
	for _, c := range counters {
		c.Reset()
	}
}

package metrics

import (
	"testing"
	"time"
)

func TestTimingMetricRecord(t *testing.T) {
	SetEnabled(true)
	m := newTimingMetric("test")
	m.Record(10 * time.Millisecond)
	m.Record(30 * time.Millisecond)

	if m.Count() != 2 {
		t.Fatalf("expected 2 samples, got %d", m.Count())
	}
	if m.MinNs() != int64(10*time.Millisecond) {
		t.Errorf("min = %d", m.MinNs())
	}
	if m.MaxNs() != int64(30*time.Millisecond) {
		t.Errorf("max = %d", m.MaxNs())
	}
	if m.AvgNs() != int64(20*time.Millisecond) {
		t.Errorf("avg = %d", m.AvgNs())
	}

	stats := m.Stats()
	if stats.Name != "test" || stats.AvgMs != 20 {
		t.Errorf("unexpected stats %+v", stats)
	}

	m.Reset()
	if m.Count() != 0 || m.MinNs() != 0 {
		t.Error("Reset did not clear metric")
	}
}

func TestTimerDisabled(t *testing.T) {
	SetEnabled(false)
	defer SetEnabled(true)

	m := newTimingMetric("disabled")
	Timer(m)()
	if m.Count() != 0 {
		t.Error("disabled metrics should not record")
	}
}

func TestAllTimingStatsSkipsEmpty(t *testing.T) {
	SetEnabled(true)
	ResetAll()
	defer ResetAll()

	if got := AllTimingStats(); len(got) != 0 {
		t.Fatalf("expected no stats after reset, got %+v", got)
	}
	EditSplit.Record(time.Millisecond)
	Timer(Undo)()
	stats := AllTimingStats()
	if len(stats) != 2 || stats[0].Name != "edit_split" || stats[1].Name != "undo" {
		t.Errorf("stats = %+v", stats)
	}
}

func TestCounters(t *testing.T) {
	SetEnabled(true)
	ResetAll()
	UndosApplied.Inc()
	UndosApplied.Inc()
	MutationsFailed.Inc()

	if UndosApplied.Value() != 2 {
		t.Errorf("undos = %d", UndosApplied.Value())
	}
	stats := AllCounterStats()
	if len(stats) != 2 {
		t.Fatalf("expected 2 non-zero counters, got %+v", stats)
	}

	ResetAll()
	if len(AllCounterStats()) != 0 {
		t.Error("ResetAll should clear counters")
	}
}

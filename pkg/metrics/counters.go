package metrics

import "sync/atomic"

// Counter is a monotonically increasing event count.
type Counter struct {
	name string
	n    atomic.Int64
}

func newCounter(name string) *Counter {
	return &Counter{name: name}
}

// Inc adds one to the counter.
func (c *Counter) Inc() {
	if c == nil || !Enabled() {
		return
	}
	c.n.Add(1)
}

// Name returns the counter name.
func (c *Counter) Name() string {
	return c.name
}

// Value returns the current count.
func (c *Counter) Value() int64 {
	return c.n.Load()
}

// Reset sets the counter back to zero.
func (c *Counter) Reset() {
	c.n.Store(0)
}

// CounterStats is a snapshot of a counter.
type CounterStats struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

// Engine outcome counters.
var (
	MutationsCommitted = newCounter("mutations_committed")
	MutationsFailed    = newCounter("mutations_failed")
	UndosApplied       = newCounter("undos_applied")
	IndexRollbacks     = newCounter("index_rollbacks")

	counters = []*Counter{MutationsCommitted, MutationsFailed, UndosApplied, IndexRollbacks}
)

// AllCounterStats returns the counters that are above zero.
func AllCounterStats() []CounterStats {
	var out []CounterStats
	for _, c := range counters {
		if v := c.Value(); v > 0 {
			out = append(out, CounterStats{Name: c.name, Value: v})
		}
	}
	return out
}

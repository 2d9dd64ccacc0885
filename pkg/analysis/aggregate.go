// Package analysis derives the cycle table and wellness scores from a
// timeline. Both stages are pure functions of their input.
package analysis

import (
	"github.com/vanderheijden86/breathwork/pkg/model"
)

// Aggregator turns a timeline into a cycle table plus one span per cycle.
type Aggregator interface {
	Aggregate(events []model.Event) ([]model.CycleRow, []model.CycleSpan)
}

// CycleAggregator is the default Aggregator. A cycle opens at each
// inhalation and runs until the next one; events before the first
// inhalation belong to no cycle.
type CycleAggregator struct{}

// Aggregate implements Aggregator.
func (CycleAggregator) Aggregate(events []model.Event) ([]model.CycleRow, []model.CycleSpan) {
	sorted := model.CloneEvents(events)
	model.SortByStart(sorted)

	table := []model.CycleRow{}
	var cur *model.CycleRow
	flush := func() {
		if cur == nil {
			return
		}
		cur.Duration = cur.End - cur.Start
		if cur.Inhale > 0 {
			cur.IERatio = cur.Exhale / cur.Inhale
		}
		cur.Completed = cur.Inhale > 0 && cur.Exhale > 0
		table = append(table, *cur)
		cur = nil
	}

	for _, e := range sorted {
		if e.Type == model.Inhalation {
			flush()
			cur = &model.CycleRow{Cycle: len(table) + 1, Start: e.Start, End: e.End}
		}
		if cur == nil {
			continue
		}
		switch e.Type {
		case model.Inhalation:
			cur.Inhale += e.Duration()
		case model.Exhalation:
			cur.Exhale += e.Duration()
		case model.Apnea:
			cur.Apnea += e.Duration()
			cur.HasApnea = true
		}
		if e.End > cur.End {
			cur.End = e.End
		}
		cur.EventIDs = append(cur.EventIDs, e.ID)
	}
	flush()

	spans := make([]model.CycleSpan, len(table))
	for i, row := range table {
		spans[i] = model.CycleSpan{Cycle: row.Cycle, Start: row.Start, End: row.End}
	}
	return table, spans
}

// Package edit implements the structural timeline edits: merge, split and
// delete. Every edit returns a fresh slice that has already been passed
// through the configured relabel policy; inputs are never mutated.
package edit

import (
	"fmt"

	"github.com/vanderheijden86/breathwork/pkg/metrics"
	"github.com/vanderheijden86/breathwork/pkg/model"
	"github.com/vanderheijden86/breathwork/pkg/relabel"
)

// Options controls edit behaviour.
type Options struct {
	// Policy is applied to the result of every edit.
	Policy relabel.Policy

	// AllowSpanning lets Merge combine events that are not adjacent in
	// time. Unselected events inside the merged span are kept as
	// overlapping siblings. When false such merges fail with
	// model.ErrNonContiguousMerge.
	AllowSpanning bool
}

// Merge replaces the events named by ids with a single event covering the
// earliest selected start to the latest selected end. The new event takes
// id max(existing)+1. Ids that match nothing are ignored as long as at
// least one id matches.
func Merge(events []model.Event, ids []int, opts Options) ([]model.Event, error) {
	defer metrics.Timer(metrics.EditMerge)()

	want := model.IDSet(ids)
	var selected []model.Event
	first := -1
	for i, e := range events {
		if _, ok := want[e.ID]; ok {
			selected = append(selected, e)
			if first < 0 {
				first = i
			}
		}
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: none of %v in timeline", model.ErrSegmentsNotFound, ids)
	}
	model.SortByStart(selected)

	merged := model.Event{
		ID:    model.MaxID(events) + 1,
		Start: selected[0].Start,
		End:   selected[0].End,
		Type:  selected[0].Type,
	}
	for _, e := range selected[1:] {
		if e.End > merged.End {
			merged.End = e.End
		}
	}

	out := make([]model.Event, 0, len(events)-len(selected)+1)
	for i, e := range events {
		if i == first {
			out = append(out, merged)
		}
		if _, ok := want[e.ID]; ok {
			continue
		}
		if !opts.AllowSpanning && e.Start < merged.End && e.End > merged.Start {
			return nil, fmt.Errorf("%w: event %d lies inside merged span [%g, %g]",
				model.ErrNonContiguousMerge, e.ID, merged.Start, merged.End)
		}
		out = append(out, e)
	}
	return relabel.Apply(opts.Policy, out), nil
}

// Split cuts event id at time at. The original keeps [start, at) and a new
// event with id max(existing)+1 takes [at, end). The split point must lie
// strictly inside the event.
func Split(events []model.Event, id int, at float64, opts Options) ([]model.Event, error) {
	defer metrics.Timer(metrics.EditSplit)()

	idx := -1
	for i, e := range events {
		if e.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: id %d", model.ErrSegmentNotFound, id)
	}
	target := events[idx]
	if !(target.Start < at && at < target.End) {
		return nil, fmt.Errorf("%w: %g not inside event %d [%g, %g]",
			model.ErrInvalidSplitPoint, at, id, target.Start, target.End)
	}

	head := target
	head.End = at
	tail := model.Event{ID: model.MaxID(events) + 1, Start: at, End: target.End, Type: target.Type}

	out := make([]model.Event, 0, len(events)+1)
	out = append(out, events[:idx]...)
	out = append(out, head, tail)
	out = append(out, events[idx+1:]...)
	return relabel.Apply(opts.Policy, out), nil
}

// Delete removes every event whose id is in ids. Unknown ids and an empty
// id list are not errors; the remaining events are still relabelled.
func Delete(events []model.Event, ids []int, opts Options) []model.Event {
	defer metrics.Timer(metrics.EditDelete)()

	drop := model.IDSet(ids)
	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		if _, ok := drop[e.ID]; ok {
			continue
		}
		out = append(out, e)
	}
	return relabel.Apply(opts.Policy, out)
}

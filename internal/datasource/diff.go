package datasource

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vanderheijden86/breathwork/pkg/model"
)

// EventDiff lists the differences between the snapshot timeline and the
// timeline mirrored in an index row.
type EventDiff struct {
	// MissingInIndex contains event IDs present in the snapshot only.
	MissingInIndex []int `json:"missing_in_index,omitempty"`
	// MissingInSnapshot contains event IDs present in the index only.
	MissingInSnapshot []int `json:"missing_in_snapshot,omitempty"`
	// Changed contains IDs present in both with different bounds or type.
	Changed []int `json:"changed,omitempty"`
	// CountSnapshot is the number of events in the snapshot.
	CountSnapshot int `json:"count_snapshot"`
	// CountIndex is the number of events in the index row.
	CountIndex int `json:"count_index"`
}

// HasDrift reports whether the two timelines differ.
func (d EventDiff) HasDrift() bool {
	return len(d.MissingInIndex) > 0 || len(d.MissingInSnapshot) > 0 || len(d.Changed) > 0
}

// Summary returns a human-readable summary of the differences.
func (d EventDiff) Summary() string {
	if !d.HasDrift() {
		return fmt.Sprintf("timelines match (%d events)", d.CountSnapshot)
	}
	var sb strings.Builder
	if d.CountSnapshot != d.CountIndex {
		fmt.Fprintf(&sb, "count mismatch: %d in snapshot vs %d indexed; ", d.CountSnapshot, d.CountIndex)
	}
	if len(d.MissingInIndex) > 0 {
		fmt.Fprintf(&sb, "not indexed: %s; ", idList(d.MissingInIndex))
	}
	if len(d.MissingInSnapshot) > 0 {
		fmt.Fprintf(&sb, "stale in index: %s; ", idList(d.MissingInSnapshot))
	}
	if len(d.Changed) > 0 {
		fmt.Fprintf(&sb, "changed: %s; ", idList(d.Changed))
	}
	return strings.TrimSuffix(sb.String(), "; ")
}

// idList prints up to five ids and a count of the rest.
func idList(ids []int) string {
	const max = 5
	parts := make([]string, 0, max)
	for i, id := range ids {
		if i == max {
			parts = append(parts, fmt.Sprintf("+%d more", len(ids)-max))
			break
		}
		parts = append(parts, fmt.Sprintf("%d", id))
	}
	return strings.Join(parts, ", ")
}

// DiffEvents compares the snapshot timeline with the indexed one by id.
func DiffEvents(snap, indexed []model.Event) EventDiff {
	diff := EventDiff{CountSnapshot: len(snap), CountIndex: len(indexed)}

	byID := make(map[int]model.Event, len(indexed))
	for _, e := range indexed {
		byID[e.ID] = e
	}
	seen := make(map[int]bool, len(snap))
	for _, e := range snap {
		seen[e.ID] = true
		other, ok := byID[e.ID]
		switch {
		case !ok:
			diff.MissingInIndex = append(diff.MissingInIndex, e.ID)
		case other != e:
			diff.Changed = append(diff.Changed, e.ID)
		}
	}
	for _, e := range indexed {
		if !seen[e.ID] {
			diff.MissingInSnapshot = append(diff.MissingInSnapshot, e.ID)
		}
	}

	sort.Ints(diff.MissingInIndex)
	sort.Ints(diff.MissingInSnapshot)
	sort.Ints(diff.Changed)
	return diff
}

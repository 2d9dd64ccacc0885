// Package model defines the respiratory timeline types shared by every
// breathwork package: events, session records, derived cycle data and the
// error taxonomy reported across the request boundary.
package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

// EventType is the breathing phase carried by an event.
type EventType string

const (
	Inhalation EventType = "inhalation"
	Exhalation EventType = "exhalation"
	Apnea      EventType = "apnea"
)

// EventTypes lists every valid event type in display order.
var EventTypes = []EventType{Inhalation, Exhalation, Apnea}

// Valid reports whether t is one of the closed set of phase types.
func (t EventType) Valid() bool {
	switch t {
	case Inhalation, Exhalation, Apnea:
		return true
	}
	return false
}

// IsBreathing reports whether t takes part in inhalation/exhalation alternation.
func (t EventType) IsBreathing() bool {
	return t == Inhalation || t == Exhalation
}

// ParseEventType normalizes s and returns the matching EventType.
func ParseEventType(s string) (EventType, error) {
	t := EventType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown event type %q", s)
	}
	return t, nil
}

// UnmarshalJSON rejects types outside the closed enumeration.
func (t *EventType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseEventType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Event is one typed interval of the timeline.
type Event struct {
	ID    int       `json:"id"`
	Start float64   `json:"start"`
	End   float64   `json:"end"`
	Type  EventType `json:"type"`
}

// Duration returns End - Start in seconds.
func (e Event) Duration() float64 {
	return e.End - e.Start
}

// Contains reports whether t lies strictly inside the event.
func (e Event) Contains(t float64) bool {
	return e.Start < t && t < e.End
}

func (e Event) String() string {
	return fmt.Sprintf("#%d %s [%.3f, %.3f)", e.ID, e.Type, e.Start, e.End)
}

// CloneEvents returns a copy of events that shares no backing array.
func CloneEvents(events []Event) []Event {
	if events == nil {
		return nil
	}
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

// SortByStart sorts events in place by start time. Ties keep their
// relative order, so an event inserted right after another stays after it.
func SortByStart(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start < events[j].Start
	})
}

// MaxID returns the largest id in events, or 0 when events is empty.
func MaxID(events []Event) int {
	max := 0
	for _, e := range events {
		if e.ID > max {
			max = e.ID
		}
	}
	return max
}

// IDSet builds a lookup set from a list of ids.
func IDSet(ids []int) map[int]struct{} {
	set := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// ValidateTimeline checks the structural invariants of a timeline: every
// event has a known type and a positive duration, ids are unique and
// events are ordered by start. The first violation is returned wrapped in
// ErrCorruptTimeline.
func ValidateTimeline(events []Event) error {
	seen := make(map[int]struct{}, len(events))
	for i, e := range events {
		if !e.Type.Valid() {
			return fmt.Errorf("%w: event %d has invalid type %q", ErrCorruptTimeline, e.ID, e.Type)
		}
		if !(e.Start < e.End) {
			return fmt.Errorf("%w: event %d has non-positive duration [%g, %g]", ErrCorruptTimeline, e.ID, e.Start, e.End)
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("%w: duplicate event id %d", ErrCorruptTimeline, e.ID)
		}
		seen[e.ID] = struct{}{}
		if i > 0 && events[i-1].Start > e.Start {
			return fmt.Errorf("%w: event %d starts before its predecessor %d", ErrCorruptTimeline, e.ID, events[i-1].ID)
		}
	}
	return nil
}

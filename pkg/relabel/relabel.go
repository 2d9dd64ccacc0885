// Package relabel repairs phase labels on a timeline after a structural edit.
//
// Two pattern rules exist and neither is implied: callers choose one
// explicitly, usually from configuration.
//
//   - Alternating: apnea events keep their type; every other event
//     alternates inhalation/exhalation, starting with inhalation. Apneas are
//     skipped when deciding the alternation but keep their position.
//   - FourPhase: the type is a function of sorted position only, cycling
//     inhalation, apnea, exhalation, apnea.
package relabel

import (
	"fmt"
	"strings"

	"github.com/vanderheijden86/breathwork/pkg/metrics"
	"github.com/vanderheijden86/breathwork/pkg/model"
)

// Policy selects the pattern rule used by Apply.
type Policy int

const (
	Alternating Policy = iota
	FourPhase
)

var fourPhaseCycle = [4]model.EventType{model.Inhalation, model.Apnea, model.Exhalation, model.Apnea}

func (p Policy) String() string {
	switch p {
	case Alternating:
		return "alternating"
	case FourPhase:
		return "four-phase"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy accepts the names produced by String plus a few spellings
// seen in config files.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "alternating", "alternate":
		return Alternating, nil
	case "four-phase", "four_phase", "fourphase", "4-phase", "strict":
		return FourPhase, nil
	}
	return Alternating, fmt.Errorf("unknown relabel policy %q (want alternating or four-phase)", s)
}

// MarshalText implements encoding.TextMarshaler so policies round-trip
// through YAML and JSON config.
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(text []byte) error {
	parsed, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Apply returns a new slice holding events sorted by start with types
// reassigned according to p. Ids and time bounds are untouched and the
// input slice is not modified.
func Apply(p Policy, events []model.Event) []model.Event {
	defer metrics.Timer(metrics.Relabel)()

	out := model.CloneEvents(events)
	if out == nil {
		out = []model.Event{}
	}
	model.SortByStart(out)

	switch p {
	case FourPhase:
		for i := range out {
			out[i].Type = fourPhaseCycle[i%len(fourPhaseCycle)]
		}
	default:
		next := model.Inhalation
		for i := range out {
			if out[i].Type == model.Apnea {
				continue
			}
			out[i].Type = next
			if next == model.Inhalation {
				next = model.Exhalation
			} else {
				next = model.Inhalation
			}
		}
	}
	return out
}

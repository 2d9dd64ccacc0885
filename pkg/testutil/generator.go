// Package testutil provides timeline fixture generators and assertions.
// Seeded generators produce deterministic output for reproducible tests;
// the rapid generators feed property-based tests.
package testutil

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/goccy/go-json"
	"pgregory.net/rapid"

	"github.com/vanderheijden86/breathwork/pkg/model"
)

// GeneratorConfig controls timeline generation.
type GeneratorConfig struct {
	Seed        int64   // Random seed for determinism (0 = fixed default seed)
	MeanInhale  float64 // Mean inhalation length in seconds (default 2.0)
	MeanExhale  float64 // Mean exhalation length in seconds (default 3.0)
	Jitter      float64 // Relative jitter applied to each length (default 0.2)
	ApneaEvery  int     // Insert an apnea after every Nth cycle (0 = never)
	ApneaLength float64 // Apnea length in seconds (default 4.0)
}

// DefaultConfig returns a config suitable for most tests.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Seed:        42,
		MeanInhale:  2.0,
		MeanExhale:  3.0,
		Jitter:      0.2,
		ApneaLength: 4.0,
	}
}

// Generator creates breathing timelines.
type Generator struct {
	cfg GeneratorConfig
	rng *rand.Rand
}

// New creates a Generator with the given config.
func New(cfg GeneratorConfig) *Generator {
	def := DefaultConfig()
	if cfg.Seed == 0 {
		cfg.Seed = def.Seed
	}
	if cfg.MeanInhale <= 0 {
		cfg.MeanInhale = def.MeanInhale
	}
	if cfg.MeanExhale <= 0 {
		cfg.MeanExhale = def.MeanExhale
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	if cfg.ApneaLength <= 0 {
		cfg.ApneaLength = def.ApneaLength
	}
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
}

// NewDefault creates a Generator with DefaultConfig.
func NewDefault() *Generator {
	return New(DefaultConfig())
}

func (g *Generator) length(mean float64) float64 {
	j := 1 + g.cfg.Jitter*(2*g.rng.Float64()-1)
	// Round to milliseconds so fixtures print cleanly.
	return math.Round(mean*j*1000) / 1000
}

// Cycles builds a contiguous timeline of n inhalation/exhalation cycles,
// optionally interleaved with apneas. Ids run 1..len in start order.
func (g *Generator) Cycles(n int) []model.Event {
	var events []model.Event
	t := 0.0
	add := func(typ model.EventType, d float64) {
		if d <= 0 {
			d = 0.001
		}
		events = append(events, model.Event{ID: len(events) + 1, Start: t, End: t + d, Type: typ})
		t += d
	}
	for i := 0; i < n; i++ {
		add(model.Inhalation, g.length(g.cfg.MeanInhale))
		add(model.Exhalation, g.length(g.cfg.MeanExhale))
		if g.cfg.ApneaEvery > 0 && (i+1)%g.cfg.ApneaEvery == 0 {
			add(model.Apnea, g.length(g.cfg.ApneaLength))
		}
	}
	return events
}

// Session wraps a generated timeline into a session record rooted at folder.
func (g *Generator) Session(folder string, cycles int) *model.Session {
	events := g.Cycles(cycles)
	duration := 0.0
	if len(events) > 0 {
		duration = events[len(events)-1].End
	}
	return &model.Session{
		SessionFolder:        folder,
		AudioFilename:        "fixture.wav",
		Events:               events,
		OriginalEvents:       model.CloneEvents(events),
		ApneaThresholdFactor: 1.5,
		Duration:             duration,
		SampleRate:           16000,
	}
}

// Scenario returns the three-event timeline used throughout the engine's
// worked examples: inhalation (0,5), exhalation (5,9), apnea (9,10).
func Scenario() []model.Event {
	return []model.Event{
		{ID: 1, Start: 0, End: 5, Type: model.Inhalation},
		{ID: 2, Start: 5, End: 9, Type: model.Exhalation},
		{ID: 3, Start: 9, End: 10, Type: model.Apnea},
	}
}

// ToJSONL converts events to one JSON object per line.
func ToJSONL(events []model.Event) string {
	var sb strings.Builder
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			panic(fmt.Sprintf("marshal event %d: %v", e.ID, err))
		}
		sb.Write(data)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// TimelineGen draws valid timelines: contiguous, positive durations,
// unique ids in shuffled order, and arbitrary prior labels.
func TimelineGen() *rapid.Generator[[]model.Event] {
	return rapid.Custom(func(t *rapid.T) []model.Event {
		n := rapid.IntRange(0, 24).Draw(t, "n")
		events := make([]model.Event, 0, n)
		start := 0.0
		for i := 0; i < n; i++ {
			d := float64(rapid.IntRange(1, 4000).Draw(t, "ms")) / 1000
			typ := rapid.SampledFrom(model.EventTypes).Draw(t, "type")
			events = append(events, model.Event{ID: i + 1, Start: start, End: start + d, Type: typ})
			start += d
		}
		perm := rapid.Permutation(idRange(n)).Draw(t, "ids")
		for i := range events {
			events[i].ID = perm[i]
		}
		return events
	})
}

func idRange(n int) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i + 1
	}
	return ids
}

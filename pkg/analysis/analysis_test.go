package analysis

import (
	"reflect"
	"strings"
	"testing"

	"github.com/vanderheijden86/breathwork/pkg/model"
	"github.com/vanderheijden86/breathwork/pkg/testutil"
)

func TestAggregateScenario(t *testing.T) {
	table, spans := CycleAggregator{}.Aggregate(testutil.Scenario())
	if len(table) != 1 || len(spans) != 1 {
		t.Fatalf("got %d rows, %d spans; want 1, 1", len(table), len(spans))
	}
	row := table[0]
	want := model.CycleRow{
		Cycle: 1, Start: 0, End: 10,
		Inhale: 5, Exhale: 4, Apnea: 1, Duration: 10, IERatio: 0.8,
		EventIDs: []int{1, 2, 3}, HasApnea: true, Completed: true,
	}
	if !reflect.DeepEqual(row, want) {
		t.Errorf("row = %+v\nwant  %+v", row, want)
	}
	if spans[0] != (model.CycleSpan{Cycle: 1, Start: 0, End: 10}) {
		t.Errorf("span = %+v", spans[0])
	}
}

func TestAggregateLeadingAndTrailing(t *testing.T) {
	events := []model.Event{
		{ID: 4, Start: 6, End: 8, Type: model.Inhalation},
		{ID: 9, Start: 0, End: 1, Type: model.Exhalation},
		{ID: 1, Start: 1, End: 3, Type: model.Inhalation},
		{ID: 2, Start: 3, End: 6, Type: model.Exhalation},
	}
	table, _ := CycleAggregator{}.Aggregate(events)
	if len(table) != 2 {
		t.Fatalf("got %d rows, want 2", len(table))
	}
	if table[0].Start != 1 || table[0].End != 6 || !table[0].Completed {
		t.Errorf("first row = %+v", table[0])
	}
	if table[1].Completed || table[1].Exhale != 0 || table[1].Cycle != 2 {
		t.Errorf("trailing row = %+v", table[1])
	}
	if !reflect.DeepEqual(table[0].EventIDs, []int{1, 2}) {
		t.Errorf("leading exhalation should be ignored, ids = %v", table[0].EventIDs)
	}
}

func TestAggregateEmpty(t *testing.T) {
	table, spans := CycleAggregator{}.Aggregate(nil)
	if table == nil || len(table) != 0 || len(spans) != 0 {
		t.Errorf("expected empty non-nil table, got %#v", table)
	}
}

func rows(n int, inhale, exhale, apnea float64) []model.CycleRow {
	out := make([]model.CycleRow, n)
	for i := range out {
		out[i] = model.CycleRow{
			Cycle:     i + 1,
			Inhale:    inhale,
			Exhale:    exhale,
			Apnea:     apnea,
			Duration:  inhale + exhale + apnea,
			IERatio:   exhale / inhale,
			Completed: true,
			HasApnea:  apnea > 0,
		}
	}
	return out
}

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		table     []model.CycleRow
		override  *ScoringConfig
		pillars   map[string]float64
		overall   float64
		level     string
		recommend string
	}{
		{
			name:      "on_target",
			table:     rows(3, 4, 6, 0),
			pillars:   map[string]float64{PillarPace: 100, PillarRhythm: 100, PillarRatio: 100, PillarApnea: 100},
			overall:   100,
			level:     LevelHealthy,
			recommend: "balanced",
		},
		{
			name:      "long_apneas",
			table:     rows(2, 4, 6, 10),
			pillars:   map[string]float64{PillarPace: 100, PillarRhythm: 100, PillarRatio: 100, PillarApnea: 50},
			overall:   87.5,
			level:     LevelHealthy,
			recommend: "50% of the session was apnea",
		},
		{
			name:      "too_fast",
			table:     rows(4, 2, 3, 0),
			pillars:   map[string]float64{PillarPace: 0, PillarRhythm: 100, PillarRatio: 100, PillarApnea: 100},
			overall:   75,
			level:     LevelHealthy,
			recommend: "Slow your breathing: 12.0 breaths/min",
		},
		{
			name:     "too_fast_with_override",
			table:    rows(4, 2, 3, 0),
			override: &ScoringConfig{TargetBPM: 12},
			pillars:  map[string]float64{PillarPace: 100, PillarRhythm: 100, PillarRatio: 100, PillarApnea: 100},
			overall:  100,
			level:    LevelHealthy,
		},
		{
			name:      "pace_only_weights",
			table:     rows(4, 2, 3, 0),
			override:  &ScoringConfig{Weights: map[string]float64{PillarRhythm: 0, PillarRatio: 0, PillarApnea: 0}},
			overall:   0,
			level:     LevelCritical,
			recommend: "Slow your breathing",
		},
		{
			name:      "short_exhale",
			table:     rows(3, 5, 5, 0),
			overall:   (100 + 100 + 66.7 + 100) / 4,
			level:     LevelHealthy,
			recommend: "Lengthen the exhalation: exhale/inhale ratio 1.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, err := NewPillarScorer(nil).Score(tt.table, tt.override)
			if err != nil {
				t.Fatalf("Score: %v", err)
			}
			for p, want := range tt.pillars {
				testutil.AssertFloat(t, p, sc.Pillars[p], want)
			}
			if diff := sc.Overall - tt.overall; diff > 0.06 || diff < -0.06 {
				t.Errorf("overall = %g, want %g", sc.Overall, tt.overall)
			}
			if sc.Level != tt.level {
				t.Errorf("level = %s, want %s", sc.Level, tt.level)
			}
			if !strings.Contains(sc.Recommendation, tt.recommend) {
				t.Errorf("recommendation %q does not contain %q", sc.Recommendation, tt.recommend)
			}
			if sc.CycleCount != len(tt.table) {
				t.Errorf("cycle count = %d", sc.CycleCount)
			}
		})
	}
}

func TestScoreRhythm(t *testing.T) {
	table := append(rows(1, 4, 6, 0), rows(1, 8, 12, 0)...)
	sc, err := NewPillarScorer(nil).Score(table, nil)
	if err != nil {
		t.Fatal(err)
	}
	// durations 10 and 20: mean 15, sample sd 7.07, cv 0.471
	testutil.AssertFloat(t, "rhythm", sc.Pillars[PillarRhythm], 52.9)
}

func TestScoreNoCompleteCycles(t *testing.T) {
	table := []model.CycleRow{{Cycle: 1, Inhale: 3, Duration: 3}}
	sc, err := NewPillarScorer(nil).Score(table, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sc.CycleCount != 0 || sc.Level != LevelCritical || sc.Recommendation == "" {
		t.Errorf("unexpected scores %+v", sc)
	}
}

func TestScoreRejectsBadOverride(t *testing.T) {
	s := NewPillarScorer(nil)
	bad := []*ScoringConfig{
		{Weights: map[string]float64{"breathiness": 1}},
		{Weights: map[string]float64{PillarPace: -1}},
		{Weights: map[string]float64{PillarPace: 0, PillarRhythm: 0, PillarRatio: 0, PillarApnea: 0}},
	}
	for _, o := range bad {
		if _, err := s.Score(rows(2, 4, 6, 0), o); err == nil {
			t.Errorf("expected error for override %+v", o)
		}
	}
}

func TestMergeDoesNotAliasWeights(t *testing.T) {
	base := DefaultScoringConfig()
	merged := base.Merge(&ScoringConfig{Weights: map[string]float64{PillarPace: 3}})
	if base.Weights[PillarPace] != 0.25 {
		t.Error("Merge mutated the base weights")
	}
	if merged.Weights[PillarPace] != 3 || merged.Weights[PillarApnea] != 0.25 {
		t.Errorf("merged weights = %v", merged.Weights)
	}
}

func TestLevelFromScore(t *testing.T) {
	for score, want := range map[float64]string{100: LevelHealthy, 70: LevelHealthy, 69.9: LevelWarning, 40: LevelWarning, 10: LevelCritical} {
		if got := LevelFromScore(score); got != want {
			t.Errorf("LevelFromScore(%g) = %s, want %s", score, got, want)
		}
	}
}

package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/vanderheijden86/breathwork/pkg/model"
)

// Pillar names, in tie-break order for the recommendation.
const (
	PillarPace   = "pace"
	PillarRhythm = "rhythm"
	PillarRatio  = "ratio"
	PillarApnea  = "apnea"
)

// Pillars lists every pillar the scorer produces.
var Pillars = []string{PillarPace, PillarRhythm, PillarRatio, PillarApnea}

// Score levels.
const (
	LevelHealthy  = "healthy"  // Overall >= 70
	LevelWarning  = "warning"  // Overall 40-69
	LevelCritical = "critical" // Overall < 40
)

const (
	HealthyThreshold = 70
	WarningThreshold = 40

	DefaultTargetBPM     = 6.0
	DefaultTargetIERatio = 1.5
)

// ScoringConfig tunes the scorer. Zero fields fall back to the defaults
// when merged, so a partial override file only names what it changes.
type ScoringConfig struct {
	TargetBPM     float64            `yaml:"target_breaths_per_minute" json:"target_breaths_per_minute,omitempty"`
	TargetIERatio float64            `yaml:"target_ie_ratio" json:"target_ie_ratio,omitempty"`
	Weights       map[string]float64 `yaml:"weights" json:"weights,omitempty"`
}

// DefaultScoringConfig returns equal pillar weights and resonance-breathing
// targets.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		TargetBPM:     DefaultTargetBPM,
		TargetIERatio: DefaultTargetIERatio,
		Weights: map[string]float64{
			PillarPace:   0.25,
			PillarRhythm: 0.25,
			PillarRatio:  0.25,
			PillarApnea:  0.25,
		},
	}
}

// Merge returns c with the non-zero fields of o applied on top.
func (c ScoringConfig) Merge(o *ScoringConfig) ScoringConfig {
	out := c
	out.Weights = make(map[string]float64, len(c.Weights))
	for k, v := range c.Weights {
		out.Weights[k] = v
	}
	if o == nil {
		return out
	}
	if o.TargetBPM > 0 {
		out.TargetBPM = o.TargetBPM
	}
	if o.TargetIERatio > 0 {
		out.TargetIERatio = o.TargetIERatio
	}
	for k, v := range o.Weights {
		out.Weights[k] = v
	}
	return out
}

// Validate rejects configs that cannot produce a score.
func (c ScoringConfig) Validate() error {
	if c.TargetBPM <= 0 {
		return fmt.Errorf("target_breaths_per_minute must be positive, got %g", c.TargetBPM)
	}
	if c.TargetIERatio <= 0 {
		return fmt.Errorf("target_ie_ratio must be positive, got %g", c.TargetIERatio)
	}
	total := 0.0
	for name, w := range c.Weights {
		if !knownPillar(name) {
			return fmt.Errorf("unknown pillar %q in weights", name)
		}
		if w < 0 {
			return fmt.Errorf("weight for %s must not be negative", name)
		}
		total += w
	}
	if total <= 0 {
		return fmt.Errorf("pillar weights sum to zero")
	}
	return nil
}

func knownPillar(name string) bool {
	for _, p := range Pillars {
		if p == name {
			return true
		}
	}
	return false
}

// Scorer turns a cycle table into scores. override may be nil.
type Scorer interface {
	Score(table []model.CycleRow, override *ScoringConfig) (model.Scores, error)
}

// PillarScorer is the default Scorer.
type PillarScorer struct {
	Config ScoringConfig
}

// NewPillarScorer returns a scorer over cfg merged onto the defaults.
func NewPillarScorer(cfg *ScoringConfig) *PillarScorer {
	return &PillarScorer{Config: DefaultScoringConfig().Merge(cfg)}
}

// Score implements Scorer.
func (s *PillarScorer) Score(table []model.CycleRow, override *ScoringConfig) (model.Scores, error) {
	cfg := s.Config.Merge(override)
	if err := cfg.Validate(); err != nil {
		return model.Scores{}, fmt.Errorf("scoring config: %w", err)
	}

	var durations, ratios []float64
	var apnea, total float64
	for _, row := range table {
		total += row.Duration
		apnea += row.Apnea
		if !row.Completed {
			continue
		}
		durations = append(durations, row.Inhale+row.Exhale)
		ratios = append(ratios, row.IERatio)
	}

	scores := model.Scores{Pillars: map[string]float64{}, CycleCount: len(durations)}
	if len(durations) == 0 {
		scores.Level = LevelCritical
		scores.Recommendation = "Not enough complete breathing cycles to score; check the segmentation."
		return scores, nil
	}

	meanDur, sdDur := stat.MeanStdDev(durations, nil)
	if len(durations) < 2 {
		sdDur = 0
	}
	scores.BreathsPerMin = 60 / meanDur
	scores.MeanIERatio = stat.Mean(ratios, nil)
	apneaShare := 0.0
	if total > 0 {
		apneaShare = apnea / total
	}

	scores.Pillars[PillarPace] = closeness(scores.BreathsPerMin, cfg.TargetBPM)
	scores.Pillars[PillarRhythm] = clamp(100 * (1 - sdDur/meanDur))
	scores.Pillars[PillarRatio] = closeness(scores.MeanIERatio, cfg.TargetIERatio)
	scores.Pillars[PillarApnea] = clamp(100 * (1 - apneaShare))

	weighted, weights := 0.0, 0.0
	for _, p := range Pillars {
		w := cfg.Weights[p]
		weighted += w * scores.Pillars[p]
		weights += w
	}
	for p, v := range scores.Pillars {
		scores.Pillars[p] = round1(v)
	}
	scores.Overall = round1(weighted / weights)
	scores.Level = LevelFromScore(scores.Overall)
	scores.Recommendation = recommend(scores, cfg, sdDur/meanDur, apneaShare)
	return scores, nil
}

// LevelFromScore maps an overall score to a level.
func LevelFromScore(score float64) string {
	if score >= HealthyThreshold {
		return LevelHealthy
	}
	if score >= WarningThreshold {
		return LevelWarning
	}
	return LevelCritical
}

func recommend(sc model.Scores, cfg ScoringConfig, cv, apneaShare float64) string {
	weakest := ""
	for _, p := range Pillars {
		if cfg.Weights[p] == 0 {
			continue
		}
		if weakest == "" || sc.Pillars[p] < sc.Pillars[weakest] {
			weakest = p
		}
	}
	if weakest == "" || sc.Pillars[weakest] >= HealthyThreshold {
		return "Breathing pattern is balanced; keep practising at this pace."
	}

	switch weakest {
	case PillarPace:
		if sc.BreathsPerMin > cfg.TargetBPM {
			return fmt.Sprintf("Slow your breathing: %.1f breaths/min against a target of %.1f.", sc.BreathsPerMin, cfg.TargetBPM)
		}
		return fmt.Sprintf("Breathe a little faster: %.1f breaths/min against a target of %.1f.", sc.BreathsPerMin, cfg.TargetBPM)
	case PillarRhythm:
		return fmt.Sprintf("Keep cycle lengths steady; they vary by %.0f%%.", 100*cv)
	case PillarRatio:
		if sc.MeanIERatio < cfg.TargetIERatio {
			return fmt.Sprintf("Lengthen the exhalation: exhale/inhale ratio %.2f against a target of %.2f.", sc.MeanIERatio, cfg.TargetIERatio)
		}
		return fmt.Sprintf("Shorten the exhalation slightly: exhale/inhale ratio %.2f against a target of %.2f.", sc.MeanIERatio, cfg.TargetIERatio)
	default:
		return fmt.Sprintf("Reduce pauses between breaths: %.0f%% of the session was apnea.", 100*apneaShare)
	}
}

// closeness scores how near v is to target: 100 on target, 0 at twice or
// zero times the target.
func closeness(v, target float64) float64 {
	return clamp(100 * (1 - math.Abs(v-target)/target))
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

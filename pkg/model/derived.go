package model

import "time"

// CycleRow is one row of the cycle table: a respiratory cycle starting at
// an inhalation and running until the next inhalation.
type CycleRow struct {
	Cycle     int     `json:"cycle"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Inhale    float64 `json:"inhale_s"`
	Exhale    float64 `json:"exhale_s"`
	Apnea     float64 `json:"apnea_s"`
	Duration  float64 `json:"duration_s"`
	IERatio   float64 `json:"ie_ratio"` // exhale / inhale, 0 when inhale is 0
	EventIDs  []int   `json:"event_ids"`
	HasApnea  bool    `json:"has_apnea"`
	Completed bool    `json:"completed"` // false for a trailing cycle without exhalation
}

// CycleSpan is the derived event covering one whole cycle.
type CycleSpan struct {
	Cycle int     `json:"cycle"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Scores is the output of the scoring engine.
type Scores struct {
	Pillars        map[string]float64 `json:"scores"`
	Overall        float64            `json:"overall"`
	Level          string             `json:"level"`
	Recommendation string             `json:"recommendation"`
	BreathsPerMin  float64            `json:"breaths_per_minute"`
	MeanIERatio    float64            `json:"mean_ie_ratio"`
	CycleCount     int                `json:"cycle_count"`
}

// Derived bundles everything the recompute pipeline derives from events.
type Derived struct {
	Table  []CycleRow  `json:"table"`
	Cycles []CycleSpan `json:"cycle_events"`
	Scores Scores      `json:"respiration_analysis"`
}

// IndexedRecord is one row of the secondary, queryable store.
type IndexedRecord struct {
	ID                 int64     `json:"id"`
	Filename           string    `json:"filename"`
	Participant        string    `json:"participant_name,omitempty"`
	AnalysisTimestamp  time.Time `json:"analysis_timestamp"`
	TotalDuration      float64   `json:"total_duration_seconds"`
	SampleRate         int       `json:"sampling_rate"`
	SessionFolder      string    `json:"session_folder"`
	CyclesJSON         string    `json:"respiratory_cycles_json"`
	AnalysisJSON       string    `json:"respiration_analysis_json"`
	SegmentationEvents string    `json:"segmentation_events_json"`
}

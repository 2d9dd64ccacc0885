package model

import (
	"fmt"
	"time"
)

// Session is the owning aggregate of one analysed recording. It is the
// payload of the durable snapshot.
type Session struct {
	SessionFolder        string    `json:"session_folder"`
	AudioFilename        string    `json:"audio_filename"`
	Participant          string    `json:"participant_name,omitempty"`
	Events               []Event   `json:"events"`
	OriginalEvents       []Event   `json:"original_events"`
	DBID                 int64     `json:"db_id"`
	ApneaThresholdFactor float64   `json:"apnea_threshold_factor"`
	Duration             float64   `json:"duration"`
	SampleRate           int       `json:"sampling_rate"`
	CreatedAt            time.Time `json:"created_at"`
	// Version advances on every committed mutation and moves back on undo.
	Version int `json:"version"`
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Events = CloneEvents(s.Events)
	c.OriginalEvents = CloneEvents(s.OriginalEvents)
	return &c
}

// Validate checks the current timeline and the retained original timeline.
func (s *Session) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil session", ErrCorruptTimeline)
	}
	if s.SessionFolder == "" {
		return fmt.Errorf("%w: missing session folder", ErrCorruptTimeline)
	}
	if err := ValidateTimeline(s.Events); err != nil {
		return fmt.Errorf("events: %w", err)
	}
	if err := ValidateTimeline(s.OriginalEvents); err != nil {
		return fmt.Errorf("original events: %w", err)
	}
	return nil
}

// FindEvent returns the index of the event with the given id, or -1.
func (s *Session) FindEvent(id int) int {
	for i, e := range s.Events {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// Segmentation is what a segmentation engine returns for a recording.
type Segmentation struct {
	Events     []Event `json:"events"`
	Duration   float64 `json:"duration"`
	SampleRate int     `json:"sampling_rate"`
}

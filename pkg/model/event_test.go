package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/goccy/go-json"
)

func TestParseEventType(t *testing.T) {
	tests := []struct {
		in      string
		want    EventType
		wantErr bool
	}{
		{"inhalation", Inhalation, false},
		{" Exhalation ", Exhalation, false},
		{"APNEA", Apnea, false},
		{"pause", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseEventType(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseEventType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseEventType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEventTypeUnmarshalRejectsUnknown(t *testing.T) {
	var e Event
	err := json.Unmarshal([]byte(`{"id":1,"start":0,"end":1,"type":"hold"}`), &e)
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}

	if err := json.Unmarshal([]byte(`{"id":1,"start":0,"end":1,"type":"apnea"}`), &e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Type != Apnea {
		t.Errorf("expected apnea, got %q", e.Type)
	}
}

func TestValidateTimeline(t *testing.T) {
	valid := []Event{
		{ID: 1, Start: 0, End: 5, Type: Inhalation},
		{ID: 2, Start: 5, End: 9, Type: Exhalation},
		{ID: 3, Start: 9, End: 10, Type: Apnea},
	}
	if err := ValidateTimeline(valid); err != nil {
		t.Fatalf("valid timeline rejected: %v", err)
	}
	if err := ValidateTimeline(nil); err != nil {
		t.Fatalf("empty timeline rejected: %v", err)
	}

	cases := map[string][]Event{
		"unsorted": {
			{ID: 1, Start: 5, End: 9, Type: Inhalation},
			{ID: 2, Start: 0, End: 5, Type: Exhalation},
		},
		"duplicate id": {
			{ID: 1, Start: 0, End: 5, Type: Inhalation},
			{ID: 1, Start: 5, End: 9, Type: Exhalation},
		},
		"zero duration": {
			{ID: 1, Start: 3, End: 3, Type: Inhalation},
		},
		"negative duration": {
			{ID: 1, Start: 4, End: 3, Type: Inhalation},
		},
		"bad type": {
			{ID: 1, Start: 0, End: 1, Type: "hold"},
		},
	}
	for name, events := range cases {
		err := ValidateTimeline(events)
		if !errors.Is(err, ErrCorruptTimeline) {
			t.Errorf("%s: expected ErrCorruptTimeline, got %v", name, err)
		}
	}
}

func TestSortByStartIsStable(t *testing.T) {
	events := []Event{
		{ID: 3, Start: 9, End: 10, Type: Apnea},
		{ID: 1, Start: 0, End: 5, Type: Inhalation},
		{ID: 4, Start: 5, End: 7, Type: Exhalation},
		{ID: 2, Start: 5, End: 9, Type: Exhalation},
	}
	SortByStart(events)
	wantIDs := []int{1, 4, 2, 3}
	for i, id := range wantIDs {
		if events[i].ID != id {
			t.Fatalf("position %d: expected id %d, got %d", i, id, events[i].ID)
		}
	}
}

func TestMaxIDAndClone(t *testing.T) {
	if MaxID(nil) != 0 {
		t.Error("MaxID(nil) should be 0")
	}
	events := []Event{{ID: 7, Start: 0, End: 1, Type: Apnea}, {ID: 2, Start: 1, End: 2, Type: Apnea}}
	if got := MaxID(events); got != 7 {
		t.Errorf("MaxID = %d, want 7", got)
	}
	c := CloneEvents(events)
	c[0].ID = 99
	if events[0].ID != 7 {
		t.Error("CloneEvents shares backing array")
	}
}

func TestCode(t *testing.T) {
	if Code(nil) != "" {
		t.Error("nil error should map to empty code")
	}
	wrapped := fmt.Errorf("split 4 at 12: %w", ErrInvalidSplitPoint)
	if Code(wrapped) != CodeInvalidSplitPoint {
		t.Errorf("expected %s, got %s", CodeInvalidSplitPoint, Code(wrapped))
	}
	if !Recoverable(wrapped) {
		t.Error("taxonomy errors should be recoverable")
	}
	if Code(errors.New("disk on fire")) != CodeInternal {
		t.Error("unknown errors should map to INTERNAL")
	}
	if Recoverable(errors.New("disk on fire")) {
		t.Error("unknown errors should not be recoverable")
	}
}

func TestSessionCloneAndValidate(t *testing.T) {
	s := &Session{
		SessionFolder:  "/tmp/s1",
		Events:         []Event{{ID: 1, Start: 0, End: 1, Type: Inhalation}},
		OriginalEvents: []Event{{ID: 1, Start: 0, End: 1, Type: Inhalation}},
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	c := s.Clone()
	c.Events[0].End = 2
	if s.Events[0].End != 1 {
		t.Error("Clone shares events")
	}
	if s.FindEvent(1) != 0 || s.FindEvent(2) != -1 {
		t.Error("FindEvent mismatch")
	}

	s.SessionFolder = ""
	if err := s.Validate(); !errors.Is(err, ErrCorruptTimeline) {
		t.Errorf("expected ErrCorruptTimeline for missing folder, got %v", err)
	}
}

package testutil

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vanderheijden86/breathwork/pkg/model"
)

// AssertSortedByStart fails if events are not in non-decreasing start order.
func AssertSortedByStart(t testing.TB, events []model.Event) {
	t.Helper()
	for i := 1; i < len(events); i++ {
		if events[i].Start < events[i-1].Start {
			t.Fatalf("events not sorted: [%d] %v starts before [%d] %v", i, events[i], i-1, events[i-1])
		}
	}
}

// AssertUniqueIDs fails if any id appears twice.
func AssertUniqueIDs(t testing.TB, events []model.Event) {
	t.Helper()
	seen := make(map[int]bool, len(events))
	for _, e := range events {
		if seen[e.ID] {
			t.Fatalf("duplicate event id %d", e.ID)
		}
		seen[e.ID] = true
	}
}

// AssertValidTimeline fails if the timeline breaks any structural invariant.
func AssertValidTimeline(t testing.TB, events []model.Event) {
	t.Helper()
	if err := model.ValidateTimeline(events); err != nil {
		t.Fatalf("invalid timeline: %v", err)
	}
}

// AssertIDs checks the ids in order.
func AssertIDs(t testing.TB, events []model.Event, want ...int) {
	t.Helper()
	got := IDs(events)
	if len(got) != len(want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ids = %v, want %v", got, want)
		}
	}
}

// AssertTypes checks the event types in order.
func AssertTypes(t testing.TB, events []model.Event, want ...model.EventType) {
	t.Helper()
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, e := range events {
		if e.Type != want[i] {
			t.Errorf("event %d (id %d): type %s, want %s", i, e.ID, e.Type, want[i])
		}
	}
}

// AssertBounds checks the (start, end) pairs in order. Pairs are given flat:
// start0, end0, start1, end1, ...
func AssertBounds(t testing.TB, events []model.Event, pairs ...float64) {
	t.Helper()
	if len(pairs) != 2*len(events) {
		t.Fatalf("got %d events, want %d", len(events), len(pairs)/2)
	}
	for i, e := range events {
		if !approx(e.Start, pairs[2*i]) || !approx(e.End, pairs[2*i+1]) {
			t.Errorf("event %d (id %d): (%g,%g), want (%g,%g)", i, e.ID, e.Start, e.End, pairs[2*i], pairs[2*i+1])
		}
	}
}

// AssertFloat fails if got differs from want by more than 1e-9.
func AssertFloat(t testing.TB, name string, got, want float64) {
	t.Helper()
	if !approx(got, want) {
		t.Errorf("%s = %g, want %g", name, got, want)
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9
}

// IDs extracts event ids in order.
func IDs(events []model.Event) []int {
	ids := make([]int, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	return ids
}

// WriteEventsFile writes events as JSONL into dir and returns the path.
func WriteEventsFile(t testing.TB, dir, name string, events []model.Event) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(ToJSONL(events)), 0644); err != nil {
		t.Fatalf("write events file: %v", err)
	}
	return path
}

// GoldenFile handles golden file comparisons.
type GoldenFile struct {
	t      testing.TB
	dir    string
	name   string
	update bool
}

// NewGoldenFile creates a golden file helper.
// If GENERATE_GOLDEN env var is set, golden files will be updated.
func NewGoldenFile(t testing.TB, dir, name string) *GoldenFile {
	t.Helper()
	return &GoldenFile{
		t:      t,
		dir:    dir,
		name:   name,
		update: os.Getenv("GENERATE_GOLDEN") != "",
	}
}

// Path returns the full path to the golden file.
func (g *GoldenFile) Path() string {
	return filepath.Join(g.dir, g.name)
}

// Assert compares actual content against the golden file, or rewrites the
// golden file when GENERATE_GOLDEN is set.
func (g *GoldenFile) Assert(actual string) {
	g.t.Helper()
	path := g.Path()

	if g.update {
		if err := os.MkdirAll(g.dir, 0755); err != nil {
			g.t.Fatalf("failed to create golden dir: %v", err)
		}
		if err := os.WriteFile(path, []byte(actual), 0644); err != nil {
			g.t.Fatalf("failed to write golden file: %v", err)
		}
		g.t.Logf("updated golden file: %s", path)
		return
	}

	expected, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			g.t.Fatalf("golden file does not exist: %s\nRun with GENERATE_GOLDEN=1 to create it", path)
		}
		g.t.Fatalf("failed to read golden file: %v", err)
	}

	if string(expected) == actual {
		return
	}
	expLines := strings.Split(string(expected), "\n")
	actLines := strings.Split(actual, "\n")
	for i := 0; i < len(expLines) || i < len(actLines); i++ {
		var exp, act string
		if i < len(expLines) {
			exp = expLines[i]
		}
		if i < len(actLines) {
			act = actLines[i]
		}
		if exp != act {
			g.t.Fatalf("golden file %s mismatch at line %d:\nexpected: %s\nactual:   %s", g.name, i+1, exp, act)
		}
	}
}

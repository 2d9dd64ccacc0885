package loader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vanderheijden86/breathwork/pkg/model"
	"github.com/vanderheijden86/breathwork/pkg/testutil"
)

func collect(warnings *[]string) ParseOptions {
	return ParseOptions{WarningHandler: func(msg string) { *warnings = append(*warnings, msg) }}
}

func TestParseEvents(t *testing.T) {
	input := "\xEF\xBB\xBF" + `{"duration": 12.5, "sample_rate": 16000}
{"id": 1, "start": 0, "end": 5, "type": "Inhalation"}

{"id": 2, "start": 5, "end": 9, "type": "exhalation"}
{"start": 9, "end": 10, "type": "apnea"}
`
	var warnings []string
	got, err := ParseEvents(strings.NewReader(input), collect(&warnings))
	if err != nil {
		t.Fatalf("ParseEvents: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if !got.HasMeta || got.Meta.Duration != 12.5 || got.Meta.SampleRate != 16000 {
		t.Errorf("meta = %+v", got.Meta)
	}
	testutil.AssertIDs(t, got.Events, 1, 2, 3)
	testutil.AssertTypes(t, got.Events, model.Inhalation, model.Exhalation, model.Apnea)
}

func TestParseEventsSkipsBadLines(t *testing.T) {
	input := `{"id": 1, "start": 0, "end": 5, "type": "inhalation"}
not json
{"id": 2, "start": 5, "end": 5, "type": "exhalation"}
{"id": 3, "start": 5, "end": 6, "type": "sigh"}
{"id": 4, "start": 6, "type": "apnea"}
{"id": 1, "start": 6, "end": 8, "type": "exhalation"}
{"duration": 3}
`
	var warnings []string
	got, err := ParseEvents(strings.NewReader(input), collect(&warnings))
	if err != nil {
		t.Fatal(err)
	}
	if got.Skipped != 4 {
		t.Errorf("skipped = %d, want 4", got.Skipped)
	}
	if len(warnings) != 6 {
		t.Errorf("got %d warnings: %v", len(warnings), warnings)
	}
	// The duplicate id 1 is renumbered to the next free id.
	testutil.AssertIDs(t, got.Events, 1, 2)
	if got.HasMeta {
		t.Error("late metadata line should be ignored")
	}
}

func TestParseEventsLongLine(t *testing.T) {
	input := `{"id": 1, "start": 0, "end": 5, "type": "inhalation", "pad": "` + strings.Repeat("x", 200) + `"}
{"id": 2, "start": 5, "end": 9, "type": "exhalation"}
`
	var warnings []string
	opts := collect(&warnings)
	opts.BufferSize = 64
	got, err := ParseEvents(strings.NewReader(input), opts)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertIDs(t, got.Events, 2)
	if len(warnings) != 1 || !strings.Contains(warnings[0], "too long") {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestLoadEventsFromFileMissing(t *testing.T) {
	if _, err := LoadEventsFromFile(filepath.Join(t.TempDir(), "nope.jsonl"), ParseOptions{}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSidecarPath(t *testing.T) {
	if got := SidecarPath("/data/rec.wav"); got != "/data/rec.events.jsonl" {
		t.Errorf("SidecarPath = %s", got)
	}
}

func TestFileSegmenter(t *testing.T) {
	dir := t.TempDir()
	events := []model.Event{
		{ID: 7, Start: 4, End: 8, Type: model.Exhalation},
		{ID: 3, Start: 0, End: 4, Type: model.Inhalation},
		{ID: 9, Start: 8, End: 9, Type: model.Apnea},
		{ID: 1, Start: 9, End: 13, Type: model.Inhalation},
		{ID: 2, Start: 13, End: 17, Type: model.Exhalation},
		{ID: 5, Start: 17, End: 27, Type: model.Apnea},
	}
	path := testutil.WriteRecording(t, dir, "rec", events)

	seg, err := (&FileSegmenter{}).Segment(context.Background(), path, 1.5)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	testutil.AssertIDs(t, seg.Events, 1, 2, 3, 4, 5, 6)
	// Median breathing duration is 4s, so the 1s apnea falls under 6s and
	// becomes breathing while the 10s apnea stays.
	testutil.AssertTypes(t, seg.Events,
		model.Inhalation, model.Exhalation, model.Inhalation, model.Inhalation, model.Exhalation, model.Apnea)
	if seg.SampleRate != 8000 {
		t.Errorf("sample rate = %d, want 8000 from the wav header", seg.SampleRate)
	}
	testutil.AssertFloat(t, "duration", seg.Duration, 27)

	seg, err = (&FileSegmenter{}).Segment(context.Background(), path, 0)
	if err != nil {
		t.Fatal(err)
	}
	if seg.Events[2].Type != model.Apnea {
		t.Error("zero threshold should keep every apnea")
	}
}

func TestFileSegmenterErrors(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	seg := &FileSegmenter{Options: ParseOptions{WarningHandler: func(string) {}}}

	if _, err := seg.Segment(ctx, filepath.Join(dir, "missing.wav"), 1); err == nil {
		t.Error("expected error without sidecar")
	}

	empty := testutil.WriteRecording(t, dir, "empty", nil)
	if _, err := seg.Segment(ctx, empty, 1); err == nil {
		t.Error("expected error for empty sidecar")
	}

	overlap := testutil.WriteRecording(t, dir, "overlap", []model.Event{
		{ID: 1, Start: 0, End: 5, Type: model.Inhalation},
		{ID: 2, Start: 4, End: 6, Type: model.Exhalation},
	})
	if _, err := seg.Segment(ctx, overlap, 1); err == nil {
		t.Error("expected error for overlapping events")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := seg.Segment(cancelled, overlap, 1); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestReadWAVInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.wav")
	testutil.WriteWAV(t, path, 16000, 2.5)
	info, err := ReadWAVInfo(path)
	if err != nil {
		t.Fatalf("ReadWAVInfo: %v", err)
	}
	if info.SampleRate != 16000 || info.Channels != 1 || info.BitsPerSample != 16 {
		t.Errorf("info = %+v", info)
	}
	testutil.AssertFloat(t, "duration", info.Duration(), 2.5)

	bogus := filepath.Join(t.TempDir(), "b.wav")
	if err := os.WriteFile(bogus, []byte("hello world, not audio"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadWAVInfo(bogus); err == nil {
		t.Error("expected error for non-wav file")
	}
}

package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/vanderheijden86/breathwork/pkg/metrics"
	"github.com/vanderheijden86/breathwork/pkg/model"
)

// SidecarSuffix names the events file that accompanies a recording.
const SidecarSuffix = ".events.jsonl"

// SidecarPath returns the events file for a recording: the recording path
// with its extension replaced by SidecarSuffix.
func SidecarPath(recording string) string {
	return strings.TrimSuffix(recording, filepath.Ext(recording)) + SidecarSuffix
}

// FileSegmenter serves segmentations from sidecar event files. Candidate
// apneas shorter than threshold times the median breathing-event duration
// are treated as breathing, the same knob a signal-level segmenter uses.
type FileSegmenter struct {
	Options ParseOptions
}

// Segment reads the sidecar of recording and returns its events with ids
// renumbered 1..n in start order.
func (s *FileSegmenter) Segment(ctx context.Context, recording string, threshold float64) (*model.Segmentation, error) {
	defer metrics.Timer(metrics.Segmentation)()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parsed, err := LoadEventsFromFile(SidecarPath(recording), s.Options)
	if err != nil {
		return nil, err
	}
	if len(parsed.Events) == 0 {
		return nil, fmt.Errorf("no events for %s", filepath.Base(recording))
	}

	events := parsed.Events
	model.SortByStart(events)
	if err := checkOverlap(events); err != nil {
		return nil, err
	}
	ApplyApneaThreshold(events, threshold)
	for i := range events {
		events[i].ID = i + 1
	}

	seg := &model.Segmentation{
		Events:     events,
		Duration:   parsed.Meta.Duration,
		SampleRate: parsed.Meta.SampleRate,
	}
	if seg.Duration <= 0 || seg.SampleRate <= 0 {
		if info, err := ReadWAVInfo(recording); err == nil {
			if seg.Duration <= 0 {
				seg.Duration = info.Duration()
			}
			if seg.SampleRate <= 0 {
				seg.SampleRate = info.SampleRate
			}
		}
	}
	if last := events[len(events)-1].End; seg.Duration < last {
		seg.Duration = last
	}
	return seg, nil
}

// Attachments returns the sidecar so it travels with the recording.
func (s *FileSegmenter) Attachments(recording string) []string {
	p := SidecarPath(recording)
	if _, err := os.Stat(p); err != nil {
		return nil
	}
	return []string{p}
}

func checkOverlap(sorted []model.Event) error {
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Start < sorted[i-1].End {
			return fmt.Errorf("events %d and %d overlap", sorted[i-1].ID, sorted[i].ID)
		}
	}
	return nil
}

// ApplyApneaThreshold relabels apneas shorter than factor times the median
// breathing-event duration as inhalations, in place. The caller's relabel
// policy settles the final breathing phase. A non-positive factor or a
// timeline without breathing events leaves everything untouched.
func ApplyApneaThreshold(events []model.Event, factor float64) {
	if factor <= 0 {
		return
	}
	var durations []float64
	for _, e := range events {
		if e.Type.IsBreathing() {
			durations = append(durations, e.Duration())
		}
	}
	if len(durations) == 0 {
		return
	}
	sort.Float64s(durations)
	limit := factor * stat.Quantile(0.5, stat.Empirical, durations, nil)
	for i := range events {
		if events[i].Type == model.Apnea && events[i].Duration() < limit {
			events[i].Type = model.Inhalation
		}
	}
}

// Package loader reads event timelines from JSONL files and provides a
// file-backed segmentation engine that serves recordings whose events were
// produced offline.
package loader

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/vanderheijden86/breathwork/pkg/metrics"
	"github.com/vanderheijden86/breathwork/pkg/model"
)

// DefaultMaxBufferSize is the default buffer size for the reader (1MB).
const DefaultMaxBufferSize = 1024 * 1024

// QuietEnvVar suppresses the default stderr warnings when set to 1.
const QuietEnvVar = "BW_QUIET"

// Metadata is the optional header line of an events file.
type Metadata struct {
	Duration   float64 `json:"duration"`
	SampleRate int     `json:"sample_rate"`
}

// ParseOptions configures the behavior of ParseEvents.
type ParseOptions struct {
	// WarningHandler is called with warning messages (e.g., malformed JSON).
	// If nil, warnings are printed to os.Stderr.
	WarningHandler func(string)

	// BufferSize sets the maximum line size (in bytes) to read at once.
	// Lines longer than this are skipped with a warning.
	// If 0, uses DefaultMaxBufferSize.
	BufferSize int
}

// Parsed is the result of reading an events file.
type Parsed struct {
	Events  []model.Event
	Meta    Metadata
	Skipped int
	HasMeta bool
}

// line is the union of an event line and the metadata header.
type line struct {
	ID         *int     `json:"id"`
	Start      *float64 `json:"start"`
	End        *float64 `json:"end"`
	Type       string   `json:"type"`
	Duration   *float64 `json:"duration"`
	SampleRate *int     `json:"sample_rate"`
}

// LoadEventsFromFile reads events from a JSONL file.
func LoadEventsFromFile(path string, opts ParseOptions) (*Parsed, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("no events file at %s", path)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open events file: %w", err)
	}
	defer file.Close()
	return ParseEvents(file, opts)
}

// ParseEvents parses JSONL content into events. The first non-empty line
// may be a metadata header with duration and sample_rate. Malformed lines
// are skipped with a warning; events without an id get the next free id
// after parsing. Events are returned in file order.
func ParseEvents(r io.Reader, opts ParseOptions) (*Parsed, error) {
	defer metrics.Timer(metrics.JSONParsing)()

	maxCapacity := opts.BufferSize
	if maxCapacity <= 0 {
		maxCapacity = DefaultMaxBufferSize
	}
	reader := bufio.NewReaderSize(r, maxCapacity)

	warn := opts.WarningHandler
	if warn == nil {
		if os.Getenv(QuietEnvVar) == "1" {
			warn = func(string) {}
		} else {
			warn = func(msg string) {
				fmt.Fprintf(os.Stderr, "Warning: %s\n", msg)
			}
		}
	}

	out := &Parsed{Events: []model.Event{}}
	seen := make(map[int]bool)
	var unnumbered []int
	lineNum := 0
	for {
		lineNum++
		raw, isPrefix, err := reader.ReadLine()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("error reading events stream at line %d: %w", lineNum, err)
		}
		if isPrefix {
			warn(fmt.Sprintf("skipping line %d: line too long (exceeds %d bytes)", lineNum, maxCapacity))
			out.Skipped++
			for isPrefix {
				_, isPrefix, err = reader.ReadLine()
				if err == io.EOF {
					break
				}
				if err != nil {
					return nil, fmt.Errorf("error skipping long line at line %d: %w", lineNum, err)
				}
			}
			continue
		}
		if lineNum == 1 {
			raw = stripBOM(raw)
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}

		var l line
		if err := json.Unmarshal(raw, &l); err != nil {
			warn(fmt.Sprintf("skipping malformed JSON on line %d: %v", lineNum, err))
			out.Skipped++
			continue
		}

		if l.Type == "" && (l.Duration != nil || l.SampleRate != nil) {
			if out.HasMeta || len(out.Events) > 0 {
				warn(fmt.Sprintf("ignoring metadata on line %d: only the first line may carry metadata", lineNum))
				continue
			}
			out.HasMeta = true
			if l.Duration != nil {
				out.Meta.Duration = *l.Duration
			}
			if l.SampleRate != nil {
				out.Meta.SampleRate = *l.SampleRate
			}
			continue
		}

		ev, err := l.event()
		if err != nil {
			warn(fmt.Sprintf("skipping invalid event on line %d: %v", lineNum, err))
			out.Skipped++
			continue
		}
		if l.ID == nil || seen[ev.ID] {
			if l.ID != nil {
				warn(fmt.Sprintf("duplicate id %d on line %d; renumbering", ev.ID, lineNum))
			}
			unnumbered = append(unnumbered, len(out.Events))
		} else {
			seen[ev.ID] = true
		}
		out.Events = append(out.Events, ev)
	}

	next := model.MaxID(out.Events) + 1
	for _, i := range unnumbered {
		for seen[next] {
			next++
		}
		out.Events[i].ID = next
		seen[next] = true
	}
	return out, nil
}

func (l line) event() (model.Event, error) {
	typ, err := model.ParseEventType(l.Type)
	if err != nil {
		return model.Event{}, err
	}
	if l.Start == nil || l.End == nil {
		return model.Event{}, fmt.Errorf("missing start or end")
	}
	if !(*l.Start < *l.End) {
		return model.Event{}, fmt.Errorf("non-positive duration [%g, %g]", *l.Start, *l.End)
	}
	ev := model.Event{Start: *l.Start, End: *l.End, Type: typ}
	if l.ID != nil {
		ev.ID = *l.ID
	}
	return ev, nil
}

// stripBOM removes the UTF-8 Byte Order Mark if present
func stripBOM(b []byte) []byte {
	if bytes.HasPrefix(b, []byte{0xEF, 0xBB, 0xBF}) {
		return b[3:]
	}
	return b
}

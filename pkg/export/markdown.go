// Package export renders analysed sessions for people: a markdown report
// and a static timeline figure.
package export

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vanderheijden86/breathwork/pkg/analysis"
	"github.com/vanderheijden86/breathwork/pkg/model"
)

// ReportOptions controls markdown generation.
type ReportOptions struct {
	Title       string    // defaults to "Breathing report: <recording>"
	GeneratedAt time.Time // defaults to time.Now
}

// GenerateMarkdown renders a session and its derived results: metadata,
// scores with the recommendation, the cycle table and the current timeline
// compared against the one segmentation produced.
func GenerateMarkdown(sess *model.Session, d model.Derived, opts ReportOptions) (string, error) {
	if sess == nil {
		return "", fmt.Errorf("no session to report")
	}
	title := opts.Title
	if title == "" {
		title = "Breathing report: " + sess.AudioFilename
	}
	generated := opts.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", title)
	fmt.Fprintf(&sb, "*Generated: %s*\n\n", generated.UTC().Format("2006-01-02 15:04:05 MST"))

	writeMetadata(&sb, sess)
	writeScores(&sb, d.Scores)
	writeCycles(&sb, d.Table)
	writeTimeline(&sb, sess)

	return sb.String(), nil
}

func writeMetadata(sb *strings.Builder, sess *model.Session) {
	sb.WriteString("| Field | Value |\n|---|---|\n")
	if sess.Participant != "" {
		fmt.Fprintf(sb, "| Participant | %s |\n", escapeCell(sess.Participant))
	}
	fmt.Fprintf(sb, "| Recording | %s |\n", escapeCell(sess.AudioFilename))
	fmt.Fprintf(sb, "| Duration | %.1f s |\n", sess.Duration)
	if sess.SampleRate > 0 {
		fmt.Fprintf(sb, "| Sample rate | %d Hz |\n", sess.SampleRate)
	}
	fmt.Fprintf(sb, "| Apnea threshold factor | %.2f |\n", sess.ApneaThresholdFactor)
	fmt.Fprintf(sb, "| Version | %d |\n", sess.Version)
	fmt.Fprintf(sb, "| Session folder | `%s` |\n\n", filepath.Base(sess.SessionFolder))
}

func writeScores(sb *strings.Builder, sc model.Scores) {
	sb.WriteString("## Scores\n\n")
	fmt.Fprintf(sb, "**Overall: %.1f (%s)**\n\n", sc.Overall, sc.Level)

	if len(sc.Pillars) > 0 {
		sb.WriteString("| Pillar | Score |\n|---|---:|\n")
		for _, name := range pillarOrder(sc.Pillars) {
			fmt.Fprintf(sb, "| %s | %.1f |\n", name, sc.Pillars[name])
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(sb, "Breaths per minute: %.2f, mean exhale/inhale ratio: %.2f, complete cycles: %d\n\n",
		sc.BreathsPerMin, sc.MeanIERatio, sc.CycleCount)
	if sc.Recommendation != "" {
		fmt.Fprintf(sb, "> %s\n\n", sc.Recommendation)
	}
}

// pillarOrder lists the known pillars first, then anything else sorted.
func pillarOrder(pillars map[string]float64) []string {
	var names, extra []string
	seen := make(map[string]bool, len(analysis.Pillars))
	for _, p := range analysis.Pillars {
		seen[p] = true
		if _, ok := pillars[p]; ok {
			names = append(names, p)
		}
	}
	for p := range pillars {
		if !seen[p] {
			extra = append(extra, p)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

func writeCycles(sb *strings.Builder, table []model.CycleRow) {
	sb.WriteString("## Cycles\n\n")
	if len(table) == 0 {
		sb.WriteString("_No cycles._\n\n")
		return
	}
	sb.WriteString("| # | Start | End | Inhale | Exhale | Apnea | I:E | Events |\n")
	sb.WriteString("|---:|---:|---:|---:|---:|---:|---:|---|\n")
	for _, r := range table {
		num := fmt.Sprintf("%d", r.Cycle)
		if !r.Completed {
			num += " (open)"
		}
		fmt.Fprintf(sb, "| %s | %.2f | %.2f | %.2f | %.2f | %.2f | %.2f | %s |\n",
			num, r.Start, r.End, r.Inhale, r.Exhale, r.Apnea, r.IERatio, joinInts(r.EventIDs))
	}
	sb.WriteString("\n")
}

func writeTimeline(sb *strings.Builder, sess *model.Session) {
	sb.WriteString("## Timeline\n\n")
	orig := make(map[int]model.Event, len(sess.OriginalEvents))
	for _, e := range sess.OriginalEvents {
		orig[e.ID] = e
	}
	fmt.Fprintf(sb, "%d events now, %d from segmentation.\n\n", len(sess.Events), len(sess.OriginalEvents))

	sb.WriteString("| ID | Type | Start | End | Duration | Change |\n")
	sb.WriteString("|---:|---|---:|---:|---:|---|\n")
	current := make(map[int]bool, len(sess.Events))
	for _, e := range sess.Events {
		current[e.ID] = true
		change := ""
		if o, ok := orig[e.ID]; !ok {
			change = "added"
		} else if o != e {
			change = "changed"
		}
		fmt.Fprintf(sb, "| %d | %s | %.2f | %.2f | %.2f | %s |\n",
			e.ID, e.Type, e.Start, e.End, e.Duration(), change)
	}

	var removed []int
	for _, e := range sess.OriginalEvents {
		if !current[e.ID] {
			removed = append(removed, e.ID)
		}
	}
	if len(removed) > 0 {
		fmt.Fprintf(sb, "\nRemoved since segmentation: %s\n", joinInts(removed))
	}
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ", ")
}

func escapeCell(s string) string {
	return strings.NewReplacer("|", "\\|", "\n", " ").Replace(s)
}

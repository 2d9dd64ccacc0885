package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/vanderheijden86/breathwork/pkg/analysis"
	"github.com/vanderheijden86/breathwork/pkg/export"
	"github.com/vanderheijden86/breathwork/pkg/model"
	"github.com/vanderheijden86/breathwork/pkg/session"
	"github.com/vanderheijden86/breathwork/pkg/ui"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(ui.ColorPrimary)

func newTable(styled bool, headers ...string) *table.Table {
	t := table.New().Headers(headers...)
	if styled {
		t = t.Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(ui.ColorBgHighlight)).
			StyleFunc(func(row, col int) lipgloss.Style {
				s := lipgloss.NewStyle().Padding(0, 1)
				if row == table.HeaderRow {
					return s.Inherit(headerStyle)
				}
				return s
			})
	} else {
		t = t.Border(lipgloss.ASCIIBorder()).
			StyleFunc(func(row, col int) lipgloss.Style { return lipgloss.NewStyle().Padding(0, 1) })
	}
	return t
}

func renderSummaries(sums []session.Summary, styled bool) string {
	t := newTable(styled, "ID", "Recording", "Participant", "Analysed", "Duration", "Overall", "Level")
	for _, s := range sums {
		t.Row(
			fmt.Sprint(s.ID),
			s.Filename,
			s.Participant,
			s.AnalysisTimestamp.Local().Format(time.DateTime),
			fmt.Sprintf("%.1fs", s.TotalDuration),
			fmt.Sprintf("%.1f", s.Scores.Overall),
			s.Scores.Level,
		)
	}
	return t.String()
}

func renderEvents(events []model.Event, styled bool) string {
	t := newTable(styled, "ID", "Type", "Start", "End", "Duration")
	for _, e := range events {
		typ := string(e.Type)
		if styled {
			typ = ui.RenderEventBadge(typ)
		}
		t.Row(
			fmt.Sprint(e.ID),
			typ,
			fmt.Sprintf("%.3f", e.Start),
			fmt.Sprintf("%.3f", e.End),
			fmt.Sprintf("%.3f", e.Duration()),
		)
	}
	return t.String()
}

func renderCycles(rows []model.CycleRow, styled bool) string {
	t := newTable(styled, "Cycle", "Start", "End", "Inhale", "Exhale", "Apnea", "I:E", "Events")
	for _, r := range rows {
		cycle := fmt.Sprint(r.Cycle)
		if !r.Completed {
			cycle += "*"
		}
		ids := make([]string, len(r.EventIDs))
		for i, id := range r.EventIDs {
			ids[i] = fmt.Sprint(id)
		}
		t.Row(
			cycle,
			fmt.Sprintf("%.2f", r.Start),
			fmt.Sprintf("%.2f", r.End),
			fmt.Sprintf("%.2f", r.Inhale),
			fmt.Sprintf("%.2f", r.Exhale),
			fmt.Sprintf("%.2f", r.Apnea),
			fmt.Sprintf("%.2f", r.IERatio),
			strings.Join(ids, ","),
		)
	}
	return t.String()
}

func printResult(w io.Writer, res *session.Result, styled bool) {
	undo := "no undo"
	if res.UndoAvailable {
		undo = "undo available"
	}
	fmt.Fprintf(w, "Session %d  version %d  %s\n\n", res.ID, res.Version, undo)
	fmt.Fprintln(w, renderEvents(res.Events, styled))
	if len(res.Table) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, renderCycles(res.Table, styled))
	}
	fmt.Fprintln(w)
	printScores(w, res.Scores, styled)
}

func printScoresLine(w io.Writer, res *session.Result) {
	fmt.Fprintf(w, "Overall %.1f (%s), %.1f breaths/min\n", res.Scores.Overall, res.Scores.Level, res.Scores.BreathsPerMin)
}

func printScores(w io.Writer, sc model.Scores, styled bool) {
	level := sc.Level
	if styled {
		level = ui.RenderLevelBadge(sc.Level)
	}
	fmt.Fprintf(w, "Overall %.1f %s\n", sc.Overall, level)
	for _, p := range analysis.Pillars {
		v, ok := sc.Pillars[p]
		if !ok {
			continue
		}
		if styled {
			fmt.Fprintf(w, "  %-7s %s %5.1f\n", p, ui.RenderScoreBar(v, 20), v)
		} else {
			fmt.Fprintf(w, "  %-7s %5.1f\n", p, v)
		}
	}
	fmt.Fprintf(w, "%d cycles, %.2f breaths/min, mean I:E %.2f\n", sc.CycleCount, sc.BreathsPerMin, sc.MeanIERatio)
	if sc.Recommendation != "" {
		fmt.Fprintln(w, sc.Recommendation)
	}
}

// derived loads the session and its derived results together.
func (a *app) derived(cmd *cobra.Command, arg string) (*model.Session, model.Derived, error) {
	id, err := parseSessionID(arg)
	if err != nil {
		return nil, model.Derived{}, err
	}
	mgr, err := a.engine(cmd.Context())
	if err != nil {
		return nil, model.Derived{}, err
	}
	sess, err := mgr.Session(cmd.Context(), id)
	if err != nil {
		return nil, model.Derived{}, err
	}
	res, err := mgr.Get(cmd.Context(), id)
	if err != nil {
		return nil, model.Derived{}, err
	}
	return sess, model.Derived{Table: res.Table, Cycles: res.Cycles, Scores: res.Scores}, nil
}

func reportCmd(a *app) *cobra.Command {
	var output, title string
	var render, copyOut bool
	cmd := &cobra.Command{
		Use:   "report <session>",
		Short: "Write a markdown report of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, d, err := a.derived(cmd, args[0])
			if err != nil {
				return err
			}
			md, err := export.GenerateMarkdown(sess, d, export.ReportOptions{Title: title})
			if err != nil {
				return err
			}

			if output != "" {
				if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
					return fmt.Errorf("creating output directory: %w", err)
				}
				if err := os.WriteFile(output, []byte(md), 0o644); err != nil {
					return fmt.Errorf("writing report: %w", err)
				}
			}
			if copyOut {
				if err := clipboard.WriteAll(md); err != nil {
					return fmt.Errorf("copying report to clipboard: %w", err)
				}
			}
			if a.jsonOut {
				return a.emit(map[string]string{"markdown": md, "path": output}, nil)
			}
			switch {
			case output != "":
				fmt.Fprintf(a.out, "Report written to %s\n", output)
			case render:
				r, err := glamour.NewTermRenderer(
					glamour.WithAutoStyle(),
					glamour.WithWordWrap(termWidth(a.out, 100)),
				)
				if err != nil {
					return err
				}
				out, err := r.Render(md)
				if err != nil {
					return err
				}
				fmt.Fprint(a.out, out)
			default:
				fmt.Fprint(a.out, md)
			}
			if copyOut {
				fmt.Fprintln(a.errOut, "Report copied to clipboard")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the report to a file")
	cmd.Flags().StringVar(&title, "title", "", "Report title")
	cmd.Flags().BoolVar(&render, "render", false, "Render markdown for the terminal")
	cmd.Flags().BoolVar(&copyOut, "copy", false, "Copy the report to the clipboard")
	return cmd
}

func figureCmd(a *app) *cobra.Command {
	var output, format, title string
	var width int
	cmd := &cobra.Command{
		Use:   "figure <session>",
		Short: "Draw the original and current timelines as an SVG or PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, d, err := a.derived(cmd, args[0])
			if err != nil {
				return err
			}
			if output == "" {
				output = filepath.Join(sess.SessionFolder, "timeline.svg")
			}
			if format == "" && filepath.Ext(output) == "" {
				output += ".svg"
			}
			err = export.SaveTimelineFigure(export.FigureOptions{
				Path:    output,
				Format:  format,
				Title:   title,
				Width:   width,
				Session: sess,
				Cycles:  d.Cycles,
			})
			if err != nil {
				return err
			}
			return a.emit(map[string]string{"path": output}, func(w io.Writer) {
				fmt.Fprintf(w, "Figure written to %s\n", output)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (default <session folder>/timeline.svg)")
	cmd.Flags().StringVar(&format, "format", "", "svg or png (default from extension)")
	cmd.Flags().StringVar(&title, "title", "", "Figure title")
	cmd.Flags().IntVar(&width, "width", 0, "Width in pixels")
	return cmd
}

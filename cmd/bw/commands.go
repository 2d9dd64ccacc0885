package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vanderheijden86/breathwork/pkg/analysis"
	"github.com/vanderheijden86/breathwork/pkg/config"
	"github.com/vanderheijden86/breathwork/pkg/session"
)

func importCmd(a *app) *cobra.Command {
	var participant string
	var threshold float64
	cmd := &cobra.Command{
		Use:   "import <recording.wav>",
		Short: "Segment a recording and start a new session",
		Long: `Segment a recording and start a new session.

The events come from the sidecar file next to the recording
(<name>.events.jsonl). The recording and the sidecar are copied into a
new session folder under the results directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			res, err := mgr.Import(cmd.Context(), session.ImportRequest{
				Recording:   args[0],
				Participant: participant,
				Threshold:   threshold,
			})
			if err != nil {
				return err
			}
			return a.emit(res, func(w io.Writer) {
				fmt.Fprintf(w, "Imported session %d: %d events, %d cycles\n", res.ID, len(res.Events), len(res.Table))
				printScoresLine(w, res)
			})
		},
	}
	cmd.Flags().StringVarP(&participant, "participant", "p", "", "Participant name")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Apnea threshold factor (default from config)")
	return cmd
}

func listCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List indexed sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			sums, err := mgr.List(cmd.Context())
			if err != nil {
				return err
			}
			if sums == nil {
				sums = []session.Summary{}
			}
			return a.emit(sums, func(w io.Writer) {
				if len(sums) == 0 {
					fmt.Fprintln(w, "No sessions. Import one with 'bw import <recording.wav>'.")
					return
				}
				fmt.Fprintln(w, renderSummaries(sums, isTTY(w)))
			})
		},
	}
}

func showCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session>",
		Short: "Show the timeline, cycle table and scores of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			mgr, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			res, err := mgr.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.emit(res, func(w io.Writer) { printResult(w, res, isTTY(w)) })
		},
	}
}

// editCommand builds the merge/delete style commands that take a session
// and a list of event ids.
func editCommand(a *app, use, short string, minIDs int, op func(mgr *session.Manager, cmd *cobra.Command, id int64, ids []int) (*session.Result, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(1 + minIDs),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			ids, err := parseEventIDs(args[1:])
			if err != nil {
				return err
			}
			mgr, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			res, err := op(mgr, cmd, id, ids)
			if err != nil {
				return err
			}
			return a.emit(res, func(w io.Writer) { printResult(w, res, isTTY(w)) })
		},
	}
}

func mergeCmd(a *app) *cobra.Command {
	return editCommand(a, "merge <session> <event>...", "Merge adjacent events into one", 1,
		func(mgr *session.Manager, cmd *cobra.Command, id int64, ids []int) (*session.Result, error) {
			return mgr.Merge(cmd.Context(), id, ids)
		})
}

func deleteCmd(a *app) *cobra.Command {
	return editCommand(a, "delete <session> <event>...", "Delete events from the timeline", 0,
		func(mgr *session.Manager, cmd *cobra.Command, id int64, ids []int) (*session.Result, error) {
			return mgr.Delete(cmd.Context(), id, ids)
		})
}

func splitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "split <session> <event> <seconds>",
		Short: "Split an event in two at a time point",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			ids, err := parseEventIDs(args[1:2])
			if err != nil {
				return err
			}
			at, err := parseFloat(args[2])
			if err != nil {
				return fmt.Errorf("invalid split time %q", args[2])
			}
			mgr, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			res, err := mgr.Split(cmd.Context(), id, ids[0], at)
			if err != nil {
				return err
			}
			return a.emit(res, func(w io.Writer) { printResult(w, res, isTTY(w)) })
		},
	}
}

func undoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "undo <session>",
		Short: "Restore the version before the last edit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			mgr, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			res, err := mgr.Undo(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.emit(res, func(w io.Writer) { printResult(w, res, isTTY(w)) })
		},
	}
}

func recalcCmd(a *app) *cobra.Command {
	var threshold float64
	cmd := &cobra.Command{
		Use:   "recalc <session>",
		Short: "Re-run segmentation on the session recording",
		Long: `Re-run segmentation on the session recording with a new apnea threshold.
The current timeline becomes the undo version.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			mgr, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			res, err := mgr.Recalc(cmd.Context(), id, threshold)
			if err != nil {
				return err
			}
			return a.emit(res, func(w io.Writer) { printResult(w, res, isTTY(w)) })
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Apnea threshold factor (default from config)")
	return cmd
}

func scoresCmd(a *app) *cobra.Command {
	var overridePath string
	var targetBPM, targetIE float64
	var weights []string
	cmd := &cobra.Command{
		Use:   "scores <session>",
		Short: "Recompute scores with an optional scoring override",
		Long: `Recompute scores for the current timeline. The override is merged onto
the configured scoring; nothing is persisted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			override, err := buildOverride(overridePath, targetBPM, targetIE, weights)
			if err != nil {
				return err
			}
			mgr, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			sc, err := mgr.RecalcScores(cmd.Context(), id, override)
			if err != nil {
				return err
			}
			return a.emit(sc, func(w io.Writer) {
				printScores(w, sc, isTTY(w))
			})
		},
	}
	cmd.Flags().StringVar(&overridePath, "override", "", "YAML or JSON scoring override file")
	cmd.Flags().Float64Var(&targetBPM, "target-bpm", 0, "Target breaths per minute")
	cmd.Flags().Float64Var(&targetIE, "target-ie", 0, "Target exhale/inhale ratio")
	cmd.Flags().StringSliceVar(&weights, "weight", nil, "Pillar weight as name=value (repeatable)")
	return cmd
}

func buildOverride(path string, bpm, ie float64, weights []string) (*analysis.ScoringConfig, error) {
	o := &analysis.ScoringConfig{}
	if path != "" {
		loaded, err := config.LoadScoringOverride(path)
		if err != nil {
			return nil, err
		}
		o = loaded
	}
	if bpm > 0 {
		o.TargetBPM = bpm
	}
	if ie > 0 {
		o.TargetIERatio = ie
	}
	for _, kv := range weights {
		name, val, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid weight %q, want name=value", kv)
		}
		w, err := parseFloat(val)
		if err != nil {
			return nil, fmt.Errorf("invalid weight %q: %w", kv, err)
		}
		if o.Weights == nil {
			o.Weights = make(map[string]float64)
		}
		o.Weights[strings.TrimSpace(name)] = w
	}
	return o, nil
}

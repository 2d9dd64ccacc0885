package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/vanderheijden86/breathwork/internal/datasource"
	"github.com/vanderheijden86/breathwork/pkg/ui"
	"github.com/vanderheijden86/breathwork/pkg/version"
	"github.com/vanderheijden86/breathwork/pkg/watcher"
)

func editCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <session>",
		Short: "Edit a session timeline interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			if !isTTY(os.Stdin) || !isTTY(a.out) {
				return errors.New("edit needs an interactive terminal")
			}
			mgr, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			return runTUIProgram(ui.NewModel(cmd.Context(), mgr, id))
		},
	}
}

func watchCmd(a *app) *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "watch <session>",
		Short: "Revalidate a session snapshot whenever it changes on disk",
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
			sess, err := mgr.Session(cmd.Context(), id)
			if err != nil {
				return err
			}

			report := func(r watcher.Report) {
				_ = a.emit(watchLine{
					Time:    r.Time,
					Version: r.Version,
					Events:  r.Events,
					Code:    string(r.Code()),
					Error:   errString(r.Err),
				}, func(w io.Writer) {
					if r.Err != nil {
						fmt.Fprintf(w, "%s  %s: %v\n", r.Time.Format(time.TimeOnly), r.Code(), r.Err)
						return
					}
					fmt.Fprintf(w, "%s  ok: version %d, %d events\n", r.Time.Format(time.TimeOnly), r.Version, r.Events)
				})
			}

			opts := []watcher.Option{watcher.WithForcePoll(a.cfg.Watch.ForcePoll)}
			if a.cfg.Watch.Debounce > 0 {
				opts = append(opts, watcher.WithDebounce(a.cfg.Watch.Debounce))
			}
			g, err := watcher.NewGuard(a.store, a.files, sess.SessionFolder, report, opts...)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			report(g.Check())
			if err := g.Start(ctx); err != nil {
				return err
			}
			defer g.Stop()
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().DurationVar(&duration, "for", 0, "Stop after this long (default: until interrupted)")
	return cmd
}

type watchLine struct {
	Time    time.Time `json:"time"`
	Version int       `json:"version,omitempty"`
	Events  int       `json:"events,omitempty"`
	Code    string    `json:"code,omitempty"`
	Error   string    `json:"error,omitempty"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func reconcileCmd(a *app) *cobra.Command {
	var repair, strict bool
	var concurrency int
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare every index row with its snapshot",
		Long: `Compare every index row with its snapshot and report drift, missing or
corrupt snapshots and session folders that have no index row. With --repair,
drifted rows are rewritten from their snapshots.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			opts := datasource.ReconcileOptions{
				ResultsDir:  a.cfg.ResolvedResultsDir(),
				Repair:      repair,
				Concurrency: concurrency,
			}
			if repair {
				opts.Resyncer = datasource.ResyncFunc(func(ctx context.Context, id int64) error {
					_, err := mgr.Resync(ctx, id)
					return err
				})
			}
			if a.debug {
				opts.Logger = log.New(a.errOut, "reconcile: ", 0)
			}
			report, err := datasource.Reconcile(cmd.Context(), a.store, a.idx, opts)
			if err != nil {
				return err
			}
			if err := a.emit(report, func(w io.Writer) { printReconcile(w, report) }); err != nil {
				return err
			}
			if strict && !report.Clean() {
				healthy := report.Count(datasource.StatusOK) + report.Count(datasource.StatusRepaired)
				return fmt.Errorf("%d sessions and %d orphaned folders need attention",
					len(report.Findings)-healthy, len(report.Orphans))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "Rewrite drifted index rows from their snapshots")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when anything needs attention")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Parallel snapshot loads (default 8)")
	return cmd
}

func printReconcile(w io.Writer, r *datasource.Report) {
	for _, f := range r.Findings {
		line := fmt.Sprintf("%4d  %-9s %s", f.ID, f.Status, f.Folder)
		if f.Detail != "" && f.Status != datasource.StatusOK {
			line += "  (" + f.Detail + ")"
		}
		fmt.Fprintln(w, line)
	}
	for _, o := range r.Orphans {
		fmt.Fprintf(w, "   -  %-9s %s\n", "orphan", o)
	}
	if r.Clean() {
		fmt.Fprintf(w, "All %d sessions match their snapshots.\n", len(r.Findings))
	}
}

func clearCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every index row (snapshots stay on disk)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				if !isTTY(os.Stdin) {
					return errors.New("refusing to clear the index without --yes")
				}
				confirmed := false
				form := huh.NewForm(huh.NewGroup(
					huh.NewConfirm().
						Title("Delete every session from the index?").
						Description("Snapshots stay on disk; 'bw reconcile' lists them afterwards.").
						Value(&confirmed).
						Affirmative("Yes, clear").
						Negative("Cancel"),
				)).WithTheme(huh.ThemeDracula())
				if err := form.RunWithContext(cmd.Context()); err != nil {
					return err
				}
				if !confirmed {
					fmt.Fprintln(a.out, "Canceled.")
					return nil
				}
			}
			mgr, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			n, err := mgr.Clear(cmd.Context())
			if err != nil {
				return err
			}
			return a.emit(map[string]int64{"deleted": n}, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted %d index rows.\n", n)
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func versionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rev := version.Revision()
			return a.emit(map[string]string{"version": version.Version, "revision": rev}, func(w io.Writer) {
				if rev != "" {
					fmt.Fprintf(w, "bw %s (%s)\n", version.Version, rev)
					return
				}
				fmt.Fprintf(w, "bw %s\n", version.Version)
			})
		},
	}
}

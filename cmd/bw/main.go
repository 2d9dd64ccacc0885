package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vanderheijden86/breathwork/pkg/analysis"
	"github.com/vanderheijden86/breathwork/pkg/config"
	"github.com/vanderheijden86/breathwork/pkg/debug"
	"github.com/vanderheijden86/breathwork/pkg/index"
	"github.com/vanderheijden86/breathwork/pkg/loader"
	"github.com/vanderheijden86/breathwork/pkg/metrics"
	"github.com/vanderheijden86/breathwork/pkg/model"
	"github.com/vanderheijden86/breathwork/pkg/session"
	"github.com/vanderheijden86/breathwork/pkg/snapshot"
	"github.com/vanderheijden86/breathwork/pkg/ui"
	"github.com/vanderheijden86/breathwork/pkg/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := newApp(os.Stdout, os.Stderr)
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	stop()
	if err != nil {
		a.reportError(err)
		os.Exit(1)
	}
}

// app holds the global flags and the lazily built engine.
type app struct {
	out, errOut io.Writer

	configPath string
	jsonOut    bool
	timings    bool
	debug      bool

	cfg   config.Config
	idx   *index.Store
	files *snapshot.FileBackend
	store *snapshot.Store
	mgr   *session.Manager
}

func newApp(out, errOut io.Writer) *app {
	return &app{out: out, errOut: errOut}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "bw",
		Short:         "Edit and version segmented breathing timelines",
		Version:       version.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.debug {
				debug.SetEnabled(true)
				debug.SetOutput(a.errOut)
			}
			if a.timings {
				metrics.SetEnabled(true)
			}
			return a.loadConfig()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.timings {
				a.printTimings()
			}
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Config file (default ~/.config/bw/config.yaml)")
	pf.BoolVar(&a.jsonOut, "json", false, "Write machine-readable JSON")
	pf.BoolVar(&a.timings, "timings", false, "Print operation timings to stderr")
	pf.BoolVar(&a.debug, "debug", false, "Log engine internals to stderr")

	root.AddCommand(
		importCmd(a),
		listCmd(a),
		showCmd(a),
		mergeCmd(a),
		splitCmd(a),
		deleteCmd(a),
		undoCmd(a),
		recalcCmd(a),
		scoresCmd(a),
		reportCmd(a),
		figureCmd(a),
		editCmd(a),
		watchCmd(a),
		reconcileCmd(a),
		clearCmd(a),
		versionCmd(a),
	)
	return root
}

func (a *app) loadConfig() error {
	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadFrom(a.configPath)
	} else {
		a.cfg, err = config.Load()
	}
	return err
}

// engine opens the index and builds the session manager on first use.
func (a *app) engine(ctx context.Context) (*session.Manager, error) {
	if a.mgr != nil {
		return a.mgr, nil
	}
	db := a.cfg.ResolvedDatabase()
	if err := os.MkdirAll(filepath.Dir(db), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	idx, err := index.Open(ctx, db)
	if err != nil {
		return nil, err
	}
	a.idx = idx
	a.files = snapshot.NewFileBackend()
	a.store = snapshot.NewStore(a.files)

	seg := &loader.FileSegmenter{Options: loader.ParseOptions{
		WarningHandler: func(msg string) { debug.Log("segmenter: %s", msg) },
	}}
	mgr, err := session.New(session.Deps{
		Snapshots: a.store,
		Index:     idx,
		Segmenter: seg,
		Scorer:    analysis.NewPillarScorer(&a.cfg.Scoring),
	}, session.Options{
		Policy:        a.cfg.Policy(),
		AllowSpanning: a.cfg.Merge.AllowSpanning,
		ResultsDir:    a.cfg.ResolvedResultsDir(),
		Threshold:     a.cfg.Segmentation.ApneaThresholdFactor,
	})
	if err != nil {
		return nil, err
	}
	a.mgr = mgr
	return mgr, nil
}

func (a *app) close() {
	if a.idx != nil {
		_ = a.idx.Close()
		a.idx = nil
	}
	a.mgr = nil
}

// emit writes v as JSON in --json mode and calls text otherwise.
func (a *app) emit(v any, text func(w io.Writer)) error {
	if a.jsonOut {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(a.out)
	return nil
}

type errorBody struct {
	Code    model.ErrorCode `json:"code"`
	Message string          `json:"message"`
}

// reportError renders err as {"error":{"code","message"}} in --json mode.
func (a *app) reportError(err error) {
	if a.jsonOut {
		enc := json.NewEncoder(a.out)
		_ = enc.Encode(map[string]errorBody{"error": {Code: model.Code(err), Message: err.Error()}})
		return
	}
	code := model.Code(err)
	if code == model.CodeInternal {
		fmt.Fprintf(a.errOut, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(a.errOut, "Error [%s]: %v\n", code, err)
}

func (a *app) printTimings() {
	fmt.Fprintln(a.errOut, "timings:")
	for _, s := range metrics.AllTimingStats() {
		if s.Count == 0 {
			continue
		}
		fmt.Fprintf(a.errOut, "  %-16s n=%-4d avg=%.2fms max=%.2fms\n", s.Name, s.Count, s.AvgMs, s.MaxMs)
	}
	for _, c := range metrics.AllCounterStats() {
		if c.Value > 0 {
			fmt.Fprintf(a.errOut, "  %-16s %d\n", c.Name, c.Value)
		}
	}
}

// isTTY reports whether w is an interactive terminal.
func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// termWidth returns the width of the terminal behind w, or def.
func termWidth(w io.Writer, def int) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return def
}

func parseSessionID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid session id %q", s)
	}
	return id, nil
}

// parseFloat parses a whole argument as a finite number.
func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}

func parseEventIDs(args []string) ([]int, error) {
	ids := make([]int, 0, len(args))
	for _, s := range args {
		id, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("invalid event id %q", s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func runTUIProgram(m ui.Model) error {
	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithoutSignalHandler(),
	)

	runDone := make(chan struct{})
	defer close(runDone)

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-runDone:
			return
		case <-sigCh:
		}

		p.Quit()

		select {
		case <-runDone:
			return
		case <-sigCh:
		case <-time.After(5 * time.Second):
		}

		p.Kill()
	}()

	// Optional auto-quit for automated tests: set BW_TUI_AUTOCLOSE_MS.
	if v := os.Getenv("BW_TUI_AUTOCLOSE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			go func() {
				timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
				defer timer.Stop()

				select {
				case <-runDone:
					return
				case <-timer.C:
				}

				p.Quit()
			}()
		}
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, tea.ErrInterrupted) {
		return nil
	}
	return err
}

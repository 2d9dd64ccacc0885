package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/vanderheijden86/breathwork/pkg/index"
	"github.com/vanderheijden86/breathwork/pkg/model"
	"github.com/vanderheijden86/breathwork/pkg/snapshot"
)

// Resyncer rewrites an index row from its snapshot. session.Manager
// implements it.
type Resyncer interface {
	Resync(ctx context.Context, id int64) error
}

// ResyncFunc adapts a function to Resyncer.
type ResyncFunc func(ctx context.Context, id int64) error

func (f ResyncFunc) Resync(ctx context.Context, id int64) error { return f(ctx, id) }

// ReconcileOptions configures Reconcile.
type ReconcileOptions struct {
	// ResultsDir, when set, is scanned for session folders with no index row.
	ResultsDir string
	// Repair rewrites drifted rows through Resyncer.
	Repair   bool
	Resyncer Resyncer
	// Concurrency bounds parallel snapshot loads (default 8).
	Concurrency int
	// Logger defaults to discarding output.
	Logger *log.Logger
}

// Status classifies one indexed session.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDrift    Status = "drift"
	StatusMissing  Status = "missing"   // snapshot gone
	StatusCorrupt  Status = "corrupt"   // snapshot fails validation
	StatusBadIndex Status = "bad_index" // index payload cannot be decoded
	StatusRepaired Status = "repaired"
)

// Finding is the outcome for one indexed session.
type Finding struct {
	ID     int64     `json:"id"`
	Folder string    `json:"folder"`
	Status Status    `json:"status"`
	Diff   EventDiff `json:"diff"`
	Detail string    `json:"detail,omitempty"`
}

// Report is the result of a reconcile pass.
type Report struct {
	Findings []Finding `json:"findings"`
	// Orphans are session folders with a snapshot but no index row.
	Orphans []string `json:"orphans,omitempty"`
}

// Count returns how many findings have status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, f := range r.Findings {
		if f.Status == s {
			n++
		}
	}
	return n
}

// Clean reports whether every session matched and nothing is orphaned.
func (r *Report) Clean() bool {
	return len(r.Orphans) == 0 && r.Count(StatusOK)+r.Count(StatusRepaired) == len(r.Findings)
}

// Reconcile checks every indexed session against its snapshot. Snapshots
// load in parallel; repairs run one at a time afterwards.
func Reconcile(ctx context.Context, store *snapshot.Store, idx *index.Store, opts ReconcileOptions) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if opts.Repair && opts.Resyncer == nil {
		return nil, errors.New("repair requested without a resyncer")
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = 8
	}

	recs, err := idx.List(ctx)
	if err != nil {
		return nil, err
	}
	report := &Report{Findings: make([]Finding, len(recs))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range recs {
		rec := &recs[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			report.Findings[i] = check(store, rec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	logger.Printf("checked %d indexed sessions", len(recs))

	if opts.Repair {
		for i := range report.Findings {
			f := &report.Findings[i]
			if f.Status != StatusDrift && f.Status != StatusBadIndex {
				continue
			}
			if err := opts.Resyncer.Resync(ctx, f.ID); err != nil {
				logger.Printf("session %d: repair failed: %v", f.ID, err)
				f.Detail = fmt.Sprintf("repair failed: %v", err)
				continue
			}
			logger.Printf("session %d: index rewritten from snapshot", f.ID)
			f.Status = StatusRepaired
		}
	}

	if opts.ResultsDir != "" {
		dirs, err := DiscoverSessions(opts.ResultsDir)
		if err != nil {
			return nil, err
		}
		indexed := make(map[string]bool, len(recs))
		for _, rec := range recs {
			if abs, err := filepath.Abs(rec.SessionFolder); err == nil {
				indexed[abs] = true
			}
		}
		for _, d := range dirs {
			if !indexed[d.Folder] {
				report.Orphans = append(report.Orphans, d.Folder)
			}
		}
		if len(report.Orphans) > 0 {
			logger.Printf("%d session folders have no index row", len(report.Orphans))
		}
	}
	return report, nil
}

func check(store *snapshot.Store, rec *model.IndexedRecord) Finding {
	f := Finding{ID: rec.ID, Folder: rec.SessionFolder, Status: StatusOK}

	sess, err := store.Load(rec.SessionFolder)
	switch {
	case errors.Is(err, model.ErrSessionNotFound):
		f.Status, f.Detail = StatusMissing, err.Error()
		return f
	case err != nil:
		f.Status, f.Detail = StatusCorrupt, err.Error()
		return f
	}

	indexed, err := index.DecodeEvents(rec)
	if err != nil {
		f.Status, f.Detail = StatusBadIndex, err.Error()
		return f
	}
	f.Diff = DiffEvents(sess.Events, indexed)
	if f.Diff.HasDrift() {
		f.Status, f.Detail = StatusDrift, f.Diff.Summary()
	}
	if sess.DBID != 0 && sess.DBID != rec.ID {
		f.Status = StatusDrift
		f.Detail = fmt.Sprintf("snapshot belongs to row %d", sess.DBID)
	}
	return f
}

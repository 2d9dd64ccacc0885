// Package session orchestrates edits of analysed recordings. The Manager
// owns the path from a request (merge, split, delete, recalculate, undo) to
// a consistent pair of stores: the durable snapshot holding the timeline
// and the index row mirroring its derived results.
//
// Mutations of one session are serialised in-process by a keyed mutex and
// across processes by the snapshot backend's lock.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vanderheijden86/breathwork/pkg/analysis"
	"github.com/vanderheijden86/breathwork/pkg/debug"
	"github.com/vanderheijden86/breathwork/pkg/edit"
	"github.com/vanderheijden86/breathwork/pkg/index"
	"github.com/vanderheijden86/breathwork/pkg/metrics"
	"github.com/vanderheijden86/breathwork/pkg/model"
	"github.com/vanderheijden86/breathwork/pkg/relabel"
	"github.com/vanderheijden86/breathwork/pkg/snapshot"
)

// Segmenter produces the initial timeline for a recording.
type Segmenter interface {
	Segment(ctx context.Context, recording string, threshold float64) (*model.Segmentation, error)
}

// Attacher is implemented by segmenters that need files besides the
// recording itself; they are copied into the session folder on import.
type Attacher interface {
	Attachments(recording string) []string
}

// Options configures a Manager.
type Options struct {
	Policy        relabel.Policy
	AllowSpanning bool
	// ResultsDir receives one folder per imported recording.
	ResultsDir string
	// Threshold is the apnea threshold factor used when a request gives none.
	Threshold float64
	// Now defaults to time.Now.
	Now func() time.Time
}

// Deps are the collaborators of a Manager. Aggregator and Scorer default to
// the analysis package implementations.
type Deps struct {
	Snapshots  *snapshot.Store
	Index      *index.Store
	Segmenter  Segmenter
	Aggregator analysis.Aggregator
	Scorer     analysis.Scorer
}

// Result is what every state-changing operation returns.
type Result struct {
	ID            int64             `json:"id"`
	Events        []model.Event     `json:"events"`
	Table         []model.CycleRow  `json:"table"`
	Cycles        []model.CycleSpan `json:"cycle_events"`
	Scores        model.Scores      `json:"respiration_analysis"`
	UndoAvailable bool              `json:"undo_available"`
	Version       int               `json:"version"`
}

// Summary is one line of List.
type Summary struct {
	model.IndexedRecord
	Scores model.Scores `json:"scores"`
}

// Manager is safe for concurrent use.
type Manager struct {
	snaps  *snapshot.Store
	idx    *index.Store
	seg    Segmenter
	agg    analysis.Aggregator
	scorer analysis.Scorer
	opts   Options
	locks  *keyedMutex
}

// New builds a Manager.
func New(deps Deps, opts Options) (*Manager, error) {
	if deps.Snapshots == nil || deps.Index == nil {
		return nil, errors.New("session manager needs a snapshot store and an index")
	}
	if deps.Aggregator == nil {
		deps.Aggregator = analysis.CycleAggregator{}
	}
	if deps.Scorer == nil {
		deps.Scorer = analysis.NewPillarScorer(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		snaps:  deps.Snapshots,
		idx:    deps.Index,
		seg:    deps.Segmenter,
		agg:    deps.Aggregator,
		scorer: deps.Scorer,
		opts:   opts,
		locks:  newKeyedMutex(),
	}, nil
}

func (m *Manager) editOptions() edit.Options {
	return edit.Options{Policy: m.opts.Policy, AllowSpanning: m.opts.AllowSpanning}
}

// folder resolves a session id to its snapshot handle.
func (m *Manager) folder(ctx context.Context, id int64) (string, error) {
	rec, err := m.idx.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return rec.SessionFolder, nil
}

// Session returns the full snapshot record, including the original events.
func (m *Manager) Session(ctx context.Context, id int64) (*model.Session, error) {
	folder, err := m.folder(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.snaps.Load(folder)
}

// Get returns the current events with freshly derived table and scores.
func (m *Manager) Get(ctx context.Context, id int64) (*Result, error) {
	defer debug.LogEnterExit(fmt.Sprintf("session.Get(%d)", id))()
	folder, err := m.folder(ctx, id)
	if err != nil {
		return nil, err
	}
	sess, err := m.snaps.Load(folder)
	if err != nil {
		return nil, err
	}
	d, err := m.derive(sess.Events, nil)
	if err != nil {
		return nil, err
	}
	undo, err := m.snaps.UndoAvailable(folder)
	if err != nil {
		return nil, err
	}
	return result(id, sess, d, undo), nil
}

// UndoAvailable reports whether Undo would succeed. It consumes nothing.
func (m *Manager) UndoAvailable(ctx context.Context, id int64) (bool, error) {
	folder, err := m.folder(ctx, id)
	if err != nil {
		return false, err
	}
	return m.snaps.UndoAvailable(folder)
}

// mutate runs fn against the current session under the session lock. The
// backup is taken before fn runs and is kept whatever the outcome.
func (m *Manager) mutate(ctx context.Context, op string, id int64, fn func(cur *model.Session) (*model.Session, error)) (res *Result, err error) {
	defer debug.LogEnterExit(fmt.Sprintf("session.%s(%d)", op, id))()
	unlock := m.locks.Lock(id)
	defer unlock()
	defer func() {
		if err != nil {
			metrics.MutationsFailed.Inc()
			debug.Log("session %d: %s failed: %v", id, op, err)
		} else {
			metrics.MutationsCommitted.Inc()
		}
	}()

	folder, err := m.folder(ctx, id)
	if err != nil {
		return nil, err
	}
	mut, err := m.snaps.Begin(folder)
	if err != nil {
		return nil, err
	}
	defer mut.Close()

	next, err := fn(mut.Current())
	if err != nil {
		return nil, err
	}
	return m.publish(ctx, id, mut, next)
}

// Merge replaces the selected events with one spanning event.
func (m *Manager) Merge(ctx context.Context, id int64, ids []int) (*Result, error) {
	return m.mutate(ctx, "Merge", id, func(cur *model.Session) (*model.Session, error) {
		events, err := edit.Merge(cur.Events, ids, m.editOptions())
		if err != nil {
			return nil, err
		}
		cur.Events = events
		return cur, nil
	})
}

// Split cuts one event in two at time at.
func (m *Manager) Split(ctx context.Context, id int64, eventID int, at float64) (*Result, error) {
	return m.mutate(ctx, "Split", id, func(cur *model.Session) (*model.Session, error) {
		events, err := edit.Split(cur.Events, eventID, at, m.editOptions())
		if err != nil {
			return nil, err
		}
		cur.Events = events
		return cur, nil
	})
}

// Delete removes the selected events. Unknown ids are ignored.
func (m *Manager) Delete(ctx context.Context, id int64, ids []int) (*Result, error) {
	return m.mutate(ctx, "Delete", id, func(cur *model.Session) (*model.Session, error) {
		cur.Events = edit.Delete(cur.Events, ids, m.editOptions())
		return cur, nil
	})
}

// Recalc re-runs segmentation on the session's recording with a new apnea
// threshold factor. Both the current and the original events are replaced.
func (m *Manager) Recalc(ctx context.Context, id int64, threshold float64) (*Result, error) {
	if threshold <= 0 {
		threshold = m.opts.Threshold
	}
	return m.mutate(ctx, "Recalc", id, func(cur *model.Session) (*model.Session, error) {
		if m.seg == nil {
			return nil, fmt.Errorf("%w: no segmentation engine configured", model.ErrRecalculationFailed)
		}
		seg, err := m.seg.Segment(ctx, m.recordingPath(cur), threshold)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrRecalculationFailed, err)
		}
		events := relabel.Apply(m.opts.Policy, seg.Events)
		if err := model.ValidateTimeline(events); err != nil {
			return nil, fmt.Errorf("%w: segmentation returned %v", model.ErrRecalculationFailed, err)
		}
		cur.Events = events
		cur.OriginalEvents = model.CloneEvents(events)
		cur.ApneaThresholdFactor = threshold
		if seg.Duration > 0 {
			cur.Duration = seg.Duration
		}
		if seg.SampleRate > 0 {
			cur.SampleRate = seg.SampleRate
		}
		return cur, nil
	})
}

// Undo restores the version saved by the last mutation. There is one level
// of undo and no redo.
func (m *Manager) Undo(ctx context.Context, id int64) (res *Result, err error) {
	defer debug.LogEnterExit(fmt.Sprintf("session.Undo(%d)", id))()
	defer metrics.Timer(metrics.Undo)()
	unlock := m.locks.Lock(id)
	defer unlock()

	folder, err := m.folder(ctx, id)
	if err != nil {
		return nil, err
	}
	r, err := m.snaps.BeginUndo(folder)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	res, err = m.restore(ctx, id, r)
	if err == nil {
		metrics.UndosApplied.Inc()
	}
	return res, err
}

// RecalcScores scores the current events with override merged onto the
// configured scoring. Nothing is persisted and no backup is taken.
func (m *Manager) RecalcScores(ctx context.Context, id int64, override *analysis.ScoringConfig) (model.Scores, error) {
	folder, err := m.folder(ctx, id)
	if err != nil {
		return model.Scores{}, err
	}
	sess, err := m.snaps.Load(folder)
	if err != nil {
		return model.Scores{}, err
	}
	d, err := m.derive(sess.Events, override)
	if err != nil {
		return model.Scores{}, err
	}
	return d.Scores, nil
}

// Resync rewrites the index row of a session from its snapshot. It is the
// repair path for rows that drifted, e.g. after a crash between stores.
func (m *Manager) Resync(ctx context.Context, id int64) (*Result, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	folder, err := m.folder(ctx, id)
	if err != nil {
		return nil, err
	}
	sess, err := m.snaps.Load(folder)
	if err != nil {
		return nil, err
	}
	d, err := m.derive(sess.Events, nil)
	if err != nil {
		return nil, err
	}
	p, err := payloads(sess, d)
	if err != nil {
		return nil, err
	}
	if err := m.idx.UpdatePayloads(ctx, nil, id, p); err != nil {
		return nil, err
	}
	undo, err := m.snaps.UndoAvailable(folder)
	if err != nil {
		return nil, err
	}
	return result(id, sess, d, undo), nil
}

// List returns every indexed session, newest first, with decoded scores.
func (m *Manager) List(ctx context.Context) ([]Summary, error) {
	recs, err := m.idx.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(recs))
	for _, rec := range recs {
		sc, err := index.DecodeScores(&rec)
		if err != nil {
			debug.Log("session %d: %v", rec.ID, err)
		}
		out = append(out, Summary{IndexedRecord: rec, Scores: sc})
	}
	return out, nil
}

// Clear removes every index row and returns the count. Snapshots on disk
// are left alone.
func (m *Manager) Clear(ctx context.Context) (int64, error) {
	return m.idx.Clear(ctx)
}

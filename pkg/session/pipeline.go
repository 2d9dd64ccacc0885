package session

import (
	"context"
	"fmt"

	"github.com/vanderheijden86/breathwork/pkg/analysis"
	"github.com/vanderheijden86/breathwork/pkg/debug"
	"github.com/vanderheijden86/breathwork/pkg/index"
	"github.com/vanderheijden86/breathwork/pkg/metrics"
	"github.com/vanderheijden86/breathwork/pkg/model"
	"github.com/vanderheijden86/breathwork/pkg/snapshot"
)

// derive runs the aggregator and scorer over events.
func (m *Manager) derive(events []model.Event, override *analysis.ScoringConfig) (model.Derived, error) {
	defer metrics.Timer(metrics.Recompute)()
	table, spans := m.agg.Aggregate(events)
	scores, err := m.scorer.Score(table, override)
	if err != nil {
		return model.Derived{}, err
	}
	return model.Derived{Table: table, Cycles: spans, Scores: scores}, nil
}

// payloads encodes what the index row mirrors of sess.
func payloads(sess *model.Session, d model.Derived) (index.Payloads, error) {
	p, err := index.EncodePayloads(d, sess.Events)
	if err != nil {
		return p, err
	}
	p.Duration, p.SampleRate = sess.Duration, sess.SampleRate
	return p, nil
}

func result(id int64, sess *model.Session, d model.Derived, undo bool) *Result {
	return &Result{
		ID:            id,
		Events:        model.CloneEvents(sess.Events),
		Table:         d.Table,
		Cycles:        d.Cycles,
		Scores:        d.Scores,
		UndoAvailable: undo,
		Version:       sess.Version,
	}
}

// publish derives results for next, stages the index update, publishes the
// snapshot and then commits the index. A failed index commit rolls the
// snapshot back, so readers never see the two stores disagree.
func (m *Manager) publish(ctx context.Context, id int64, mut *snapshot.Mutation, next *model.Session) (*Result, error) {
	d, err := m.derive(next.Events, nil)
	if err != nil {
		return nil, err
	}
	p, err := payloads(next, d)
	if err != nil {
		return nil, err
	}

	tx, err := m.idx.Begin(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.idx.UpdatePayloads(ctx, tx, id, p); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := mut.Commit(next); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		metrics.IndexRollbacks.Inc()
		if rbErr := mut.Rollback(); rbErr != nil {
			return nil, fmt.Errorf("commit index: %w (snapshot rollback also failed: %v)", err, rbErr)
		}
		return nil, fmt.Errorf("commit index: %w", err)
	}

	next.Version = mut.Current().Version + 1
	debug.Log("session %d: published version %d (%d events)", id, next.Version, len(next.Events))
	return result(id, next, d, true), nil
}

// restore is publish for undo: the previous snapshot version is derived and
// staged in the index before it is promoted.
func (m *Manager) restore(ctx context.Context, id int64, r *snapshot.Restore) (*Result, error) {
	prev := r.Previous()
	d, err := m.derive(prev.Events, nil)
	if err != nil {
		return nil, err
	}
	p, err := payloads(prev, d)
	if err != nil {
		return nil, err
	}

	tx, err := m.idx.Begin(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.idx.UpdatePayloads(ctx, tx, id, p); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := r.Apply(); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		metrics.IndexRollbacks.Inc()
		if rbErr := r.Revert(); rbErr != nil {
			return nil, fmt.Errorf("commit index: %w (snapshot revert also failed: %v)", err, rbErr)
		}
		return nil, fmt.Errorf("commit index: %w", err)
	}
	return result(id, prev, d, false), nil
}

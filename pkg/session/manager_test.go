package session

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vanderheijden86/breathwork/pkg/analysis"
	"github.com/vanderheijden86/breathwork/pkg/index"
	"github.com/vanderheijden86/breathwork/pkg/loader"
	"github.com/vanderheijden86/breathwork/pkg/model"
	"github.com/vanderheijden86/breathwork/pkg/relabel"
	"github.com/vanderheijden86/breathwork/pkg/snapshot"
	"github.com/vanderheijden86/breathwork/pkg/testutil"
)

type fakeSegmenter struct {
	mu     sync.Mutex
	events []model.Event
	err    error
	calls  []string
}

func (f *fakeSegmenter) Segment(_ context.Context, recording string, threshold float64) (*model.Segmentation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recording)
	if f.err != nil {
		return nil, f.err
	}
	events := model.CloneEvents(f.events)
	return &model.Segmentation{Events: events, Duration: events[len(events)-1].End, SampleRate: 8000}, nil
}

type env struct {
	t     *testing.T
	ctx   context.Context
	m     *Manager
	idx   *index.Store
	snaps *snapshot.Store
	mem   *snapshot.MemoryBackend
	seg   *fakeSegmenter
	dir   string
}

func newEnv(t *testing.T, policy relabel.Policy, memory bool) *env {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()

	idx, err := index.Open(ctx, filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = idx.Close() })

	e := &env{t: t, ctx: ctx, idx: idx, dir: dir, seg: &fakeSegmenter{events: testutil.Scenario()}}
	var backend snapshot.Backend = snapshot.NewFileBackend()
	if memory {
		e.mem = snapshot.NewMemoryBackend()
		backend = e.mem
	}
	e.snaps = snapshot.NewStore(backend)

	clock := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	var clockMu sync.Mutex
	m, err := New(Deps{Snapshots: e.snaps, Index: idx, Segmenter: e.seg}, Options{
		Policy:     policy,
		ResultsDir: filepath.Join(dir, "results"),
		Threshold:  1.5,
		Now: func() time.Time {
			clockMu.Lock()
			defer clockMu.Unlock()
			clock = clock.Add(time.Second)
			return clock
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	e.m = m
	return e
}

func (e *env) importScenario() int64 {
	e.t.Helper()
	rec := filepath.Join(e.dir, "in", "breath.wav")
	testutil.WriteWAV(e.t, rec, 8000, 10)
	res, err := e.m.Import(e.ctx, ImportRequest{Recording: rec, Participant: "Ana"})
	if err != nil {
		e.t.Fatalf("Import: %v", err)
	}
	return res.ID
}

// assertMirrored checks that the index row holds the snapshot's events.
func (e *env) assertMirrored(id int64) {
	e.t.Helper()
	sess, err := e.m.Session(e.ctx, id)
	if err != nil {
		e.t.Fatalf("Session: %v", err)
	}
	rec, err := e.idx.Get(e.ctx, id)
	if err != nil {
		e.t.Fatal(err)
	}
	indexed, err := index.DecodeEvents(rec)
	if err != nil {
		e.t.Fatal(err)
	}
	if !reflect.DeepEqual(indexed, sess.Events) {
		e.t.Fatalf("index and snapshot disagree:\nindex:    %v\nsnapshot: %v", indexed, sess.Events)
	}
	if rec.TotalDuration != sess.Duration || rec.SampleRate != sess.SampleRate {
		e.t.Fatalf("recording metadata disagrees: index %gs @%d, snapshot %gs @%d",
			rec.TotalDuration, rec.SampleRate, sess.Duration, sess.SampleRate)
	}
}

func TestSplitUndoLifecycle(t *testing.T) {
	for _, memory := range []bool{false, true} {
		name := "file"
		if memory {
			name = "memory"
		}
		t.Run(name, func(t *testing.T) {
			e := newEnv(t, relabel.FourPhase, memory)
			id := e.importScenario()

			if ok, _ := e.m.UndoAvailable(e.ctx, id); ok {
				t.Fatal("undo available right after import")
			}
			before, err := e.m.Get(e.ctx, id)
			if err != nil {
				t.Fatal(err)
			}

			res, err := e.m.Split(e.ctx, id, 2, 7)
			if err != nil {
				t.Fatalf("Split: %v", err)
			}
			testutil.AssertIDs(t, res.Events, 1, 2, 4, 3)
			testutil.AssertBounds(t, res.Events, 0, 5, 5, 7, 7, 9, 9, 10)
			testutil.AssertTypes(t, res.Events, model.Inhalation, model.Apnea, model.Exhalation, model.Apnea)
			if !res.UndoAvailable || res.Version != 1 {
				t.Errorf("result undo=%v version=%d", res.UndoAvailable, res.Version)
			}
			e.assertMirrored(id)
			if ok, _ := e.m.UndoAvailable(e.ctx, id); !ok {
				t.Fatal("undo not available after split")
			}

			undone, err := e.m.Undo(e.ctx, id)
			if err != nil {
				t.Fatalf("Undo: %v", err)
			}
			if !reflect.DeepEqual(undone.Events, before.Events) {
				t.Errorf("undo restored %v, want %v", undone.Events, before.Events)
			}
			e.assertMirrored(id)
			if ok, _ := e.m.UndoAvailable(e.ctx, id); ok {
				t.Error("undo still available after undo")
			}
			if _, err := e.m.Undo(e.ctx, id); !errors.Is(err, model.ErrNoUndoAvailable) {
				t.Errorf("second undo err = %v, want ErrNoUndoAvailable", err)
			}

			sess, _ := e.m.Session(e.ctx, id)
			if sess.Participant != "Ana" || sess.DBID != id || len(sess.OriginalEvents) != 3 {
				t.Errorf("unexpected session %+v", sess)
			}
		})
	}
}

func TestMergeAndDeleteScenarios(t *testing.T) {
	e := newEnv(t, relabel.Alternating, true)
	id := e.importScenario()

	res, err := e.m.Merge(e.ctx, id, []int{1, 2})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	testutil.AssertIDs(t, res.Events, 4, 3)
	testutil.AssertBounds(t, res.Events, 0, 9, 9, 10)
	testutil.AssertTypes(t, res.Events, model.Inhalation, model.Apnea)
	if len(res.Table) != 1 || res.Table[0].Inhale != 9 {
		t.Errorf("table not recomputed: %+v", res.Table)
	}
	e.assertMirrored(id)

	if _, err := e.m.Undo(e.ctx, id); err != nil {
		t.Fatal(err)
	}
	res, err = e.m.Delete(e.ctx, id, []int{3})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	testutil.AssertIDs(t, res.Events, 1, 2)
	testutil.AssertTypes(t, res.Events, model.Inhalation, model.Exhalation)
	e.assertMirrored(id)

	// Deleting nothing still counts as a mutation and takes a backup.
	res, err = e.m.Delete(e.ctx, id, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.UndoAvailable || len(res.Events) != 2 {
		t.Errorf("no-op delete result %+v", res)
	}
}

func TestFailedEditLeavesStateIntact(t *testing.T) {
	e := newEnv(t, relabel.Alternating, true)
	id := e.importScenario()
	sess, _ := e.m.Session(e.ctx, id)
	before, _ := e.mem.Read(sess.SessionFolder, snapshot.Current)

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"split_outside", func() error { _, err := e.m.Split(e.ctx, id, 2, 12); return err }, model.ErrInvalidSplitPoint},
		{"split_unknown", func() error { _, err := e.m.Split(e.ctx, id, 99, 1); return err }, model.ErrSegmentNotFound},
		{"merge_unknown", func() error { _, err := e.m.Merge(e.ctx, id, []int{42}); return err }, model.ErrSegmentsNotFound},
		{"merge_gap", func() error { _, err := e.m.Merge(e.ctx, id, []int{1, 3}); return err }, model.ErrNonContiguousMerge},
		{"unknown_session", func() error { _, err := e.m.Merge(e.ctx, 404, []int{1}); return err }, model.ErrSessionNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			after, _ := e.mem.Read(sess.SessionFolder, snapshot.Current)
			if !bytes.Equal(before, after) {
				t.Error("live snapshot changed")
			}
			e.assertMirrored(id)
		})
	}

	// The backup taken by the failed attempts restores an identical state.
	if ok, _ := e.m.UndoAvailable(e.ctx, id); !ok {
		t.Fatal("failed mutations should leave a backup")
	}
	res, err := e.m.Undo(e.ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res.Events, sess.Events) {
		t.Errorf("undo after failed edits changed events: %v", res.Events)
	}
}

func TestSnapshotWriteFailureKeepsIndex(t *testing.T) {
	e := newEnv(t, relabel.Alternating, true)
	id := e.importScenario()
	rec, _ := e.idx.Get(e.ctx, id)

	boom := errors.New("disk full")
	e.mem.FailWrite = func(_ string, slot snapshot.Slot) error {
		if slot == snapshot.Current {
			return boom
		}
		return nil
	}
	if _, err := e.m.Merge(e.ctx, id, []int{1, 2}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want disk full", err)
	}
	e.mem.FailWrite = nil

	after, _ := e.idx.Get(e.ctx, id)
	if after.SegmentationEvents != rec.SegmentationEvents || after.AnalysisJSON != rec.AnalysisJSON {
		t.Error("index changed although the snapshot write failed")
	}
	e.assertMirrored(id)
}

func TestRecalc(t *testing.T) {
	e := newEnv(t, relabel.Alternating, true)
	id := e.importScenario()
	if _, err := e.m.Split(e.ctx, id, 1, 2); err != nil {
		t.Fatal(err)
	}

	imported, _ := e.idx.Get(e.ctx, id)
	e.seg.events = testutil.NewDefault().Cycles(3)
	res, err := e.m.Recalc(e.ctx, id, 2.5)
	if err != nil {
		t.Fatalf("Recalc: %v", err)
	}
	if len(res.Events) != 6 || res.Scores.CycleCount != 3 {
		t.Errorf("recalc result: %d events, %d cycles", len(res.Events), res.Scores.CycleCount)
	}
	sess, _ := e.m.Session(e.ctx, id)
	if !reflect.DeepEqual(sess.OriginalEvents, sess.Events) {
		t.Error("recalc should reset the original events")
	}
	if sess.ApneaThresholdFactor != 2.5 {
		t.Errorf("threshold = %g", sess.ApneaThresholdFactor)
	}
	if last := e.seg.calls[len(e.seg.calls)-1]; !strings.HasPrefix(last, sess.SessionFolder) {
		t.Errorf("recalc segmented %s, want the copy inside %s", last, sess.SessionFolder)
	}
	e.assertMirrored(id)
	rec, _ := e.idx.Get(e.ctx, id)
	if rec.TotalDuration == imported.TotalDuration {
		t.Errorf("recalc kept the imported duration %g", rec.TotalDuration)
	}

	// Undo brings the old recording metadata back into the index too.
	if _, err := e.m.Undo(e.ctx, id); err != nil {
		t.Fatal(err)
	}
	e.assertMirrored(id)
	if rec, _ := e.idx.Get(e.ctx, id); rec.TotalDuration != imported.TotalDuration {
		t.Errorf("undo left duration %g, want %g", rec.TotalDuration, imported.TotalDuration)
	}
	if _, err := e.m.Recalc(e.ctx, id, 2.5); err != nil {
		t.Fatal(err)
	}

	e.seg.err = errors.New("engine crashed")
	before, _ := e.m.Get(e.ctx, id)
	if _, err := e.m.Recalc(e.ctx, id, 0); !errors.Is(err, model.ErrRecalculationFailed) {
		t.Fatalf("err = %v, want ErrRecalculationFailed", err)
	}
	after, _ := e.m.Get(e.ctx, id)
	if !reflect.DeepEqual(before.Events, after.Events) {
		t.Error("failed recalc changed events")
	}
}

func TestRecalcScoresIsPure(t *testing.T) {
	e := newEnv(t, relabel.Alternating, true)
	id := e.importScenario()
	rec, _ := e.idx.Get(e.ctx, id)

	base, err := e.m.RecalcScores(e.ctx, id, nil)
	if err != nil {
		t.Fatal(err)
	}
	// One 9s breathing cycle is 6.67 breaths/min; targeting that maxes pace.
	tuned, err := e.m.RecalcScores(e.ctx, id, &analysis.ScoringConfig{TargetBPM: 60.0 / 9})
	if err != nil {
		t.Fatal(err)
	}
	if tuned.Pillars[analysis.PillarPace] != 100 || tuned.Pillars[analysis.PillarPace] <= base.Pillars[analysis.PillarPace] {
		t.Errorf("override not applied: base %v tuned %v", base.Pillars, tuned.Pillars)
	}
	if ok, _ := e.m.UndoAvailable(e.ctx, id); ok {
		t.Error("recalc-scores must not create a backup")
	}
	after, _ := e.idx.Get(e.ctx, id)
	if after.AnalysisJSON != rec.AnalysisJSON {
		t.Error("recalc-scores must not touch the index")
	}

	bad := &analysis.ScoringConfig{Weights: map[string]float64{"vibes": 1}}
	if _, err := e.m.RecalcScores(e.ctx, id, bad); err == nil {
		t.Error("expected error for invalid override")
	}
}

func TestImportValidation(t *testing.T) {
	e := newEnv(t, relabel.Alternating, true)
	mp3 := filepath.Join(e.dir, "song.mp3")
	if err := os.WriteFile(mp3, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := e.m.Import(e.ctx, ImportRequest{Recording: mp3}); !errors.Is(err, model.ErrUnsupportedFile) {
		t.Errorf("err = %v, want ErrUnsupportedFile", err)
	}

	e.seg.err = errors.New("no signal")
	wav := filepath.Join(e.dir, "quiet.WAV")
	testutil.WriteWAV(t, wav, 8000, 1)
	if _, err := e.m.Import(e.ctx, ImportRequest{Recording: wav}); !errors.Is(err, model.ErrRecalculationFailed) {
		t.Errorf("err = %v, want ErrRecalculationFailed", err)
	}
	entries, _ := os.ReadDir(filepath.Join(e.dir, "results"))
	if len(entries) != 0 {
		t.Errorf("failed import left %d folders behind", len(entries))
	}
	list, _ := e.m.List(e.ctx)
	if len(list) != 0 {
		t.Errorf("failed import left %d index rows", len(list))
	}
}

func TestImportWithFileSegmenter(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	idx, err := index.Open(ctx, filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	m, err := New(Deps{
		Snapshots: snapshot.NewStore(snapshot.NewFileBackend()),
		Index:     idx,
		Segmenter: &loader.FileSegmenter{},
	}, Options{
		Policy:     relabel.Alternating,
		ResultsDir: filepath.Join(dir, "results"),
		Threshold:  1.5,
		Now:        func() time.Time { return time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC) },
	})
	if err != nil {
		t.Fatal(err)
	}

	events := testutil.New(testutil.GeneratorConfig{ApneaEvery: 2, ApneaLength: 8}).Cycles(4)
	rec := testutil.WriteRecording(t, filepath.Join(dir, "upload"), "morning", events)

	res, err := m.Import(ctx, ImportRequest{Recording: rec})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	sess, _ := m.Session(ctx, res.ID)
	if filepath.Base(sess.SessionFolder) != "morning_20240203-040506" {
		t.Errorf("folder = %s", sess.SessionFolder)
	}
	for _, name := range []string{"morning.wav", "morning.events.jsonl", "analysis.json"} {
		if _, err := os.Stat(filepath.Join(sess.SessionFolder, name)); err != nil {
			t.Errorf("missing %s in session folder", name)
		}
	}
	if sess.SampleRate != 8000 {
		t.Errorf("sample rate = %d", sess.SampleRate)
	}

	// Same second, same name: the second import gets a suffixed folder.
	res2, err := m.Import(ctx, ImportRequest{Recording: rec})
	if err != nil {
		t.Fatal(err)
	}
	sess2, _ := m.Session(ctx, res2.ID)
	if filepath.Base(sess2.SessionFolder) != "morning_20240203-040506-2" {
		t.Errorf("second folder = %s", sess2.SessionFolder)
	}

	// Recalc reads the sidecar copied into the session folder.
	if err := os.Remove(loader.SidecarPath(rec)); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Recalc(ctx, res.ID, 0.1); err != nil {
		t.Fatalf("Recalc after upload removed: %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	e := newEnv(t, relabel.Alternating, true)
	first := e.importScenario()
	second := e.importScenario()

	list, err := e.m.List(e.ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != second || list[1].ID != first {
		t.Fatalf("unexpected list order: %+v", list)
	}
	if list[0].Scores.Recommendation == "" {
		t.Error("list entries should carry decoded scores")
	}

	n, err := e.m.Clear(e.ctx)
	if err != nil || n != 2 {
		t.Errorf("Clear = %d, %v", n, err)
	}
	if _, err := e.m.Get(e.ctx, first); !errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("Get after clear: %v", err)
	}
}

func TestResync(t *testing.T) {
	e := newEnv(t, relabel.Alternating, true)
	id := e.importScenario()
	if err := e.idx.UpdatePayloads(e.ctx, nil, id, index.Payloads{Events: "[]"}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.m.Resync(e.ctx, id); err != nil {
		t.Fatalf("Resync: %v", err)
	}
	e.assertMirrored(id)
}

func TestConcurrentEditsSerialize(t *testing.T) {
	for _, memory := range []bool{false, true} {
		e := newEnv(t, relabel.Alternating, memory)
		e.seg.events = testutil.NewDefault().Cycles(10)
		id := e.importScenario()

		const n = 8
		var wg sync.WaitGroup
		for i := 1; i <= n; i++ {
			wg.Add(1)
			go func(eventID int) {
				defer wg.Done()
				if _, err := e.m.Delete(e.ctx, id, []int{eventID}); err != nil {
					t.Error(err)
				}
			}(i)
		}
		wg.Wait()

		res, err := e.m.Get(e.ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Events) != 20-n || res.Version != n {
			t.Errorf("memory=%v: %d events at version %d, want %d at %d", memory, len(res.Events), res.Version, 20-n, n)
		}
		e.assertMirrored(id)
		if e.m.locks.size() != 0 {
			t.Errorf("%d session locks leaked", e.m.locks.size())
		}
	}
}

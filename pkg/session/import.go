package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vanderheijden86/breathwork/pkg/debug"
	"github.com/vanderheijden86/breathwork/pkg/index"
	"github.com/vanderheijden86/breathwork/pkg/model"
	"github.com/vanderheijden86/breathwork/pkg/relabel"
	"github.com/vanderheijden86/breathwork/pkg/snapshot"
)

// AllowedExtensions lists the recording formats Import accepts.
var AllowedExtensions = []string{".wav"}

// FolderTimeLayout is the timestamp suffix of session folder names.
const FolderTimeLayout = "20060102-150405"

// ImportRequest describes a new recording to analyse.
type ImportRequest struct {
	Recording   string
	Participant string
	// Threshold is the apnea threshold factor; zero uses the configured one.
	Threshold float64
}

// AllowedFile reports whether name has an accepted recording extension.
func AllowedFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range AllowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

func (m *Manager) recordingPath(sess *model.Session) string {
	return filepath.Join(sess.SessionFolder, sess.AudioFilename)
}

// Import segments a recording, creates its session folder under the
// results directory and registers it in both stores. The returned Result
// carries the new session id.
func (m *Manager) Import(ctx context.Context, req ImportRequest) (res *Result, err error) {
	defer debug.LogEnterExit("session.Import " + filepath.Base(req.Recording))()

	if !AllowedFile(req.Recording) {
		return nil, fmt.Errorf("%w: %s (accepted: %s)", model.ErrUnsupportedFile,
			filepath.Base(req.Recording), strings.Join(AllowedExtensions, ", "))
	}
	if m.opts.ResultsDir == "" {
		return nil, fmt.Errorf("no results directory configured")
	}
	if m.seg == nil {
		return nil, fmt.Errorf("%w: no segmentation engine configured", model.ErrRecalculationFailed)
	}
	threshold := req.Threshold
	if threshold <= 0 {
		threshold = m.opts.Threshold
	}

	seg, err := m.seg.Segment(ctx, req.Recording, threshold)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrRecalculationFailed, err)
	}
	events := relabel.Apply(m.opts.Policy, seg.Events)
	if err := model.ValidateTimeline(events); err != nil {
		return nil, fmt.Errorf("%w: segmentation returned %v", model.ErrRecalculationFailed, err)
	}

	now := m.opts.Now()
	folder, err := m.createFolder(req.Recording, now)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(folder)
		}
	}()

	files := []string{req.Recording}
	if a, ok := m.seg.(Attacher); ok {
		files = append(files, a.Attachments(req.Recording)...)
	}
	for _, f := range files {
		if err := copyFile(f, filepath.Join(folder, filepath.Base(f))); err != nil {
			return nil, err
		}
	}

	sess := &model.Session{
		SessionFolder:        folder,
		AudioFilename:        filepath.Base(req.Recording),
		Participant:          req.Participant,
		Events:               events,
		OriginalEvents:       model.CloneEvents(events),
		ApneaThresholdFactor: threshold,
		Duration:             seg.Duration,
		SampleRate:           seg.SampleRate,
		CreatedAt:            now,
	}
	d, err := m.derive(events, nil)
	if err != nil {
		return nil, err
	}
	payloads, err := index.EncodePayloads(d, events)
	if err != nil {
		return nil, err
	}

	tx, err := m.idx.Begin(ctx)
	if err != nil {
		return nil, err
	}
	id, err := m.idx.Insert(ctx, tx, &model.IndexedRecord{
		Filename:           sess.AudioFilename,
		Participant:        sess.Participant,
		AnalysisTimestamp:  now,
		TotalDuration:      sess.Duration,
		SampleRate:         sess.SampleRate,
		SessionFolder:      folder,
		CyclesJSON:         payloads.Cycles,
		AnalysisJSON:       payloads.Analysis,
		SegmentationEvents: payloads.Events,
	})
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	sess.DBID = id
	if err := m.snaps.Create(sess); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		_ = m.snaps.Backend().Remove(folder, snapshot.Current)
		return nil, fmt.Errorf("commit index: %w", err)
	}

	debug.Log("session %d: imported %s into %s (%d events)", id, sess.AudioFilename, folder, len(events))
	return result(id, sess, d, false), nil
}

// createFolder makes <results>/<stem>_<timestamp>, adding a counter when
// two imports land in the same second.
func (m *Manager) createFolder(recording string, now time.Time) (string, error) {
	base := filepath.Base(recording)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	name := fmt.Sprintf("%s_%s", stem, now.Format(FolderTimeLayout))
	if err := os.MkdirAll(m.opts.ResultsDir, 0755); err != nil {
		return "", fmt.Errorf("create results directory: %w", err)
	}
	for i := 1; ; i++ {
		folder := filepath.Join(m.opts.ResultsDir, name)
		if i > 1 {
			folder = fmt.Sprintf("%s-%d", folder, i)
		}
		err := os.Mkdir(folder, 0755)
		if err == nil {
			return folder, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("create session folder: %w", err)
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(src), err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(dst), err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", filepath.Base(src), err)
	}
	return out.Close()
}

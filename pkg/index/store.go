// Package index is the queryable mirror of analysed sessions: one SQLite
// row per session holding the cycle table, scores and events as JSON.
//
// The Store owns a single *sql.DB handle. Writes take an explicit *sql.Tx
// so the session pipeline can hold the row update open while it publishes
// the snapshot, and commit only once both sides succeeded.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/vanderheijden86/breathwork/pkg/metrics"
	"github.com/vanderheijden86/breathwork/pkg/model"
)

const timeLayout = time.RFC3339Nano

// Store is the indexed record store.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and ensures the
// schema is current.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	// Single writer; every statement shares one connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	if err := createSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Begin starts a transaction. Callers must not use the Store outside the
// transaction until it ends.
func (s *Store) Begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return tx, nil
}

// WithTx runs fn in a transaction, committing on success and rolling back
// on error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(tx *sql.Tx) execer {
	if tx != nil {
		return tx
	}
	return s.db
}

// Payloads holds the three JSON documents mirrored into a row, plus the
// recording metadata that a re-segmentation can change. A zero Duration or
// SampleRate keeps the stored value.
type Payloads struct {
	Cycles   string
	Analysis string
	Events   string

	Duration   float64
	SampleRate int
}

// EncodePayloads serialises derived results and events for storage.
func EncodePayloads(d model.Derived, events []model.Event) (Payloads, error) {
	defer metrics.Timer(metrics.JSONParsing)()
	var p Payloads
	table := d.Table
	if table == nil {
		table = []model.CycleRow{}
	}
	if events == nil {
		events = []model.Event{}
	}
	b, err := json.Marshal(table)
	if err != nil {
		return p, fmt.Errorf("encode cycle table: %w", err)
	}
	p.Cycles = string(b)
	if b, err = json.Marshal(d.Scores); err != nil {
		return p, fmt.Errorf("encode scores: %w", err)
	}
	p.Analysis = string(b)
	if b, err = json.Marshal(events); err != nil {
		return p, fmt.Errorf("encode events: %w", err)
	}
	p.Events = string(b)
	return p, nil
}

// Insert adds a row and returns its id. A nil tx runs outside a transaction.
func (s *Store) Insert(ctx context.Context, tx *sql.Tx, rec *model.IndexedRecord) (int64, error) {
	ts := rec.AnalysisTimestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	res, err := s.execer(tx).ExecContext(ctx, `
		INSERT INTO analysis_sessions (
			filename, participant_name, analysis_timestamp, total_duration_seconds, sampling_rate,
			session_folder, respiratory_cycles_json, respiration_analysis_json, segmentation_events_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Filename, nullString(rec.Participant), ts.UTC().Format(timeLayout), rec.TotalDuration, rec.SampleRate,
		rec.SessionFolder, rec.CyclesJSON, rec.AnalysisJSON, rec.SegmentationEvents)
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

// UpdatePayloads replaces the payloads of row id. It fails with
// model.ErrSessionNotFound when no such row exists.
func (s *Store) UpdatePayloads(ctx context.Context, tx *sql.Tx, id int64, p Payloads) error {
	defer metrics.Timer(metrics.IndexUpdate)()
	res, err := s.execer(tx).ExecContext(ctx, `
		UPDATE analysis_sessions
		SET respiratory_cycles_json = ?,
			respiration_analysis_json = ?,
			segmentation_events_json = ?,
			total_duration_seconds = COALESCE(NULLIF(?, 0), total_duration_seconds),
			sampling_rate = COALESCE(NULLIF(?, 0), sampling_rate)
		WHERE id = ?`,
		p.Cycles, p.Analysis, p.Events, p.Duration, p.SampleRate, id)
	if err != nil {
		return fmt.Errorf("update session %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: index id %d", model.ErrSessionNotFound, id)
	}
	return nil
}

const selectColumns = `id, filename, participant_name, analysis_timestamp, total_duration_seconds,
	sampling_rate, session_folder, respiratory_cycles_json, respiration_analysis_json, segmentation_events_json`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*model.IndexedRecord, error) {
	var rec model.IndexedRecord
	var participant, cycles, analysis, events sql.NullString
	var ts string
	if err := row.Scan(&rec.ID, &rec.Filename, &participant, &ts, &rec.TotalDuration,
		&rec.SampleRate, &rec.SessionFolder, &cycles, &analysis, &events); err != nil {
		return nil, err
	}
	rec.Participant = participant.String
	rec.CyclesJSON = cycles.String
	rec.AnalysisJSON = analysis.String
	rec.SegmentationEvents = events.String
	if t, err := parseTimestamp(ts); err == nil {
		rec.AnalysisTimestamp = t
	}
	return &rec, nil
}

// parseTimestamp accepts our own format plus the space-separated form
// written by older tooling.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{timeLayout, "2006-01-02 15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// Get returns row id or model.ErrSessionNotFound.
func (s *Store) Get(ctx context.Context, id int64) (*model.IndexedRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM analysis_sessions WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: index id %d", model.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %d: %w", id, err)
	}
	return rec, nil
}

// FindByFolder returns the row for a session folder or model.ErrSessionNotFound.
func (s *Store) FindByFolder(ctx context.Context, folder string) (*model.IndexedRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM analysis_sessions WHERE session_folder = ? ORDER BY id DESC LIMIT 1`, folder)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: folder %s", model.ErrSessionNotFound, folder)
	}
	if err != nil {
		return nil, fmt.Errorf("find session %s: %w", folder, err)
	}
	return rec, nil
}

// List returns all rows, newest first.
func (s *Store) List(ctx context.Context) ([]model.IndexedRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM analysis_sessions ORDER BY analysis_timestamp DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []model.IndexedRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Clear deletes every row and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM analysis_sessions`)
	if err != nil {
		return 0, fmt.Errorf("clear sessions: %w", err)
	}
	return res.RowsAffected()
}

// DecodeScores parses the respiration_analysis_json payload of a row.
func DecodeScores(rec *model.IndexedRecord) (model.Scores, error) {
	var sc model.Scores
	if rec.AnalysisJSON == "" {
		return sc, nil
	}
	if err := json.Unmarshal([]byte(rec.AnalysisJSON), &sc); err != nil {
		return sc, fmt.Errorf("decode scores of %d: %w", rec.ID, err)
	}
	return sc, nil
}

// DecodeEvents parses the segmentation_events_json payload of a row.
func DecodeEvents(rec *model.IndexedRecord) ([]model.Event, error) {
	var events []model.Event
	if rec.SegmentationEvents == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(rec.SegmentationEvents), &events); err != nil {
		return nil, fmt.Errorf("decode events of %d: %w", rec.ID, err)
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

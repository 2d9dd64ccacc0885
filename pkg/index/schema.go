package index

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is recorded in the meta table.
const SchemaVersion = 2

// createSchema creates the tables and indexes and migrates older layouts.
func createSchema(ctx context.Context, db *sql.DB) error {
	if err := createSessionsTable(ctx, db); err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}
	if err := migrateParticipant(ctx, db); err != nil {
		return fmt.Errorf("migrate participant column: %w", err)
	}
	if err := createIndexes(ctx, db); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	if err := createMetaTable(ctx, db); err != nil {
		return fmt.Errorf("create meta table: %w", err)
	}
	return nil
}

func createSessionsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS analysis_sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			filename TEXT NOT NULL,
			participant_name TEXT,
			analysis_timestamp TEXT NOT NULL,
			total_duration_seconds REAL NOT NULL,
			sampling_rate INTEGER NOT NULL,
			session_folder TEXT NOT NULL,
			respiratory_cycles_json TEXT,
			respiration_analysis_json TEXT,
			segmentation_events_json TEXT
		)
	`)
	return err
}

// migrateParticipant adds participant_name to databases created before the
// column existed.
func migrateParticipant(ctx context.Context, db *sql.DB) error {
	cols, err := tableColumns(ctx, db, "analysis_sessions")
	if err != nil {
		return err
	}
	if cols["participant_name"] {
		return nil
	}
	_, err = db.ExecContext(ctx, `ALTER TABLE analysis_sessions ADD COLUMN participant_name TEXT`)
	return err
}

func tableColumns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

func createIndexes(ctx context.Context, db *sql.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_sessions_timestamp ON analysis_sessions(analysis_timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_folder ON analysis_sessions(session_folder)`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func createMetaTable(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS index_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO index_meta (key, value) VALUES ('schema_version', ?)`,
		fmt.Sprintf("%d", SchemaVersion))
	return err
}

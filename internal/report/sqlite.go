package report

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/arkilian/iohammer/internal/errors"
)

// SQLiteSink records every reporting interval, emitted or suppressed, into
// an intervals table. This is the machine-readable companion to the stdout
// lines: the outer test runner queries it instead of parsing text.
type SQLiteSink struct {
	db     *sql.DB
	runID  string
	insert *sql.Stmt
}

const intervalSchema = `
CREATE TABLE IF NOT EXISTS intervals (
	run_id       TEXT NOT NULL,
	ts           INTEGER NOT NULL,
	samples      INTEGER NOT NULL,
	errors       INTEGER NOT NULL,
	mean_ns      INTEGER NOT NULL,
	max_ns       INTEGER NOT NULL,
	peak_pending INTEGER NOT NULL,
	emitted      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_intervals_run ON intervals(run_id, ts);
`

// NewSQLiteSink opens (creating if needed) the interval database at path.
// Rows are tagged with runID so one database can hold many runs.
func NewSQLiteSink(path, runID string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.NewArtifactError(errors.CodeSinkFailed, "failed to open interval db", err)
	}

	// Single writer; no need for a connection pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(intervalSchema); err != nil {
		db.Close()
		return nil, errors.NewArtifactError(errors.CodeSinkFailed, "failed to create intervals table", err)
	}

	insert, err := db.Prepare(`INSERT INTO intervals
		(run_id, ts, samples, errors, mean_ns, max_ns, peak_pending, emitted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, errors.NewArtifactError(errors.CodeSinkFailed, "failed to prepare insert", err)
	}

	return &SQLiteSink{db: db, runID: runID, insert: insert}, nil
}

// Record inserts one interval row.
func (s *SQLiteSink) Record(iv Interval) error {
	emitted := 0
	if iv.Emitted {
		emitted = 1
	}
	_, err := s.insert.Exec(s.runID, iv.Timestamp.UnixNano(), iv.Samples, iv.Errors,
		int64(iv.Mean), int64(iv.Max), iv.PeakPending, emitted)
	if err != nil {
		return fmt.Errorf("failed to record interval: %w", err)
	}
	return nil
}

// Close closes the prepared statement and database.
func (s *SQLiteSink) Close() error {
	s.insert.Close()
	return s.db.Close()
}

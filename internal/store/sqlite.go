package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    variants TEXT NOT NULL,
    control_id TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL DEFAULT 'running',
    winner_variant TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_experiments_state ON experiments(state);

CREATE TABLE IF NOT EXISTS events (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL,
    test_id TEXT NOT NULL,
    variant_id TEXT NOT NULL,
    participant_id TEXT NOT NULL,
    sequence_id TEXT NOT NULL DEFAULT '',
    touch_id TEXT NOT NULL DEFAULT '',
    event_type TEXT NOT NULL,
    metadata TEXT,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_test ON events(test_id, seq);
CREATE INDEX IF NOT EXISTS idx_events_test_variant ON events(test_id, variant_id, event_type);
`

// Open opens (or creates) the database at dbPath and applies the schema.
func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}

	// A single connection serialises writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite: apply schema")
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for health checks
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) CreateExperiment(ctx context.Context, exp *Experiment) (*Experiment, error) {
	variantsJSON, err := json.Marshal(exp.Variants)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal variants")
	}

	state := exp.State
	if state == "" {
		state = StateRunning
	}

	now := time.Now().UTC().Unix()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO experiments (id, name, variants, control_id, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		exp.ID, exp.Name, string(variantsJSON), exp.ControlID, string(state), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrExists
		}
		return nil, eris.Wrapf(err, "sqlite: insert experiment %s", exp.ID)
	}

	created := cloneExperiment(exp)
	created.State = state
	created.CreatedAt = time.Unix(now, 0).UTC()
	created.UpdatedAt = created.CreatedAt
	return created, nil
}

const experimentColumns = `id, name, variants, control_id, state, winner_variant, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row rowScanner) (*Experiment, error) {
	var exp Experiment
	var variantsJSON string
	var createdAt, updatedAt int64

	err := row.Scan(&exp.ID, &exp.Name, &variantsJSON, &exp.ControlID, &exp.State, &exp.WinnerVariant, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan experiment")
	}

	if err := json.Unmarshal([]byte(variantsJSON), &exp.Variants); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal variants")
	}

	exp.CreatedAt = time.Unix(createdAt, 0).UTC()
	exp.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &exp, nil
}

func (s *SQLiteStore) GetExperiment(ctx context.Context, id string) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments WHERE id = ?`, id,
	)
	return scanExperiment(row)
}

func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]*Experiment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments ORDER BY created_at DESC, id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list experiments")
	}
	defer rows.Close()

	var experiments []*Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, err
		}
		experiments = append(experiments, exp)
	}
	return experiments, eris.Wrap(rows.Err(), "sqlite: list experiments iterate")
}

func (s *SQLiteStore) UpdateExperimentState(ctx context.Context, id string, state ExperimentState, winnerVariant string) error {
	now := time.Now().UTC().Unix()

	var result sql.Result
	var err error
	if winnerVariant != "" {
		result, err = s.db.ExecContext(ctx,
			`UPDATE experiments SET state = ?, winner_variant = ?, updated_at = ? WHERE id = ?`,
			string(state), winnerVariant, now, id,
		)
	} else {
		result, err = s.db.ExecContext(ctx,
			`UPDATE experiments SET state = ?, updated_at = ? WHERE id = ?`,
			string(state), now, id,
		)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: update experiment state %s", id)
	}
	return checkRowsAffected(result)
}

func (s *SQLiteStore) DeleteExperiment(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin delete")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE test_id = ?`, id); err != nil {
		return eris.Wrapf(err, "sqlite: delete events %s", id)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM experiments WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete experiment %s", id)
	}
	if err := checkRowsAffected(result); err != nil {
		return err
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit delete")
}

// AppendEvents inserts the batch inside one transaction.
func (s *SQLiteStore) AppendEvents(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin append")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (id, test_id, variant_id, participant_id, sequence_id, touch_id, event_type, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare append")
	}
	defer stmt.Close()

	for i, e := range events {
		var metadata sql.NullString
		if len(e.Metadata) > 0 {
			b, err := json.Marshal(e.Metadata)
			if err != nil {
				return eris.Wrapf(err, "sqlite: marshal metadata for event %d", i)
			}
			metadata = sql.NullString{String: string(b), Valid: true}
		}

		_, err := stmt.ExecContext(ctx,
			e.ID, e.TestID, e.VariantID, e.ParticipantID, e.SequenceID, e.TouchID,
			e.Type.String(), metadata, e.CreatedAt.UTC().UnixNano(),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert event %d", i)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit append")
}

// ListEvents returns a test's events in the order they were appended.
func (s *SQLiteStore) ListEvents(ctx context.Context, testID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, test_id, variant_id, participant_id, sequence_id, touch_id, event_type, metadata, created_at
		 FROM events WHERE test_id = ? ORDER BY seq`,
		testID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list events %s", testID)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var eventType string
		var metadata sql.NullString
		var createdAt int64

		if err := rows.Scan(&e.ID, &e.TestID, &e.VariantID, &e.ParticipantID, &e.SequenceID, &e.TouchID, &eventType, &metadata, &createdAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event")
		}

		if e.Type, err = ParseEventType(eventType); err != nil {
			return nil, eris.Wrapf(err, "sqlite: event %s", e.ID)
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
				return nil, eris.Wrapf(err, "sqlite: unmarshal metadata for event %s", e.ID)
			}
		}
		e.CreatedAt = time.Unix(0, createdAt).UTC()

		events = append(events, e)
	}

	return events, eris.Wrap(rows.Err(), "sqlite: list events iterate")
}

func (s *SQLiteStore) CountEvents(ctx context.Context, testID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE test_id = ?`, testID).Scan(&n)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: count events %s", testID)
	}
	return n, nil
}

// LastEventSeq relies on AUTOINCREMENT never handing out a seq twice.
func (s *SQLiteStore) LastEventSeq(ctx context.Context, testID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events WHERE test_id = ?`, testID).Scan(&seq)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: last event seq %s", testID)
	}
	return seq, nil
}

func checkRowsAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/huntred/circle/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
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
	return &SQLiteStore{db: db}, nil
}

// Timestamps are stored as unix nanoseconds so range filters and ordering
// stay numeric.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS circle_cycles (
	id            TEXT PRIMARY KEY,
	business_unit TEXT NOT NULL,
	start_time    INTEGER NOT NULL,
	end_time      INTEGER NOT NULL,
	metrics       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS circle_failures (
	id            TEXT PRIMARY KEY,
	cycle_id      TEXT NOT NULL,
	business_unit TEXT NOT NULL,
	phase         TEXT NOT NULL,
	error         TEXT NOT NULL,
	started_at    INTEGER NOT NULL,
	failed_at     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS circle_model_state (
	business_unit TEXT PRIMARY KEY,
	state         BLOB NOT NULL,
	updated_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_circle_cycles_bu_start ON circle_cycles(business_unit, start_time DESC);
CREATE INDEX IF NOT EXISTS idx_circle_failures_bu ON circle_failures(business_unit, failed_at DESC);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveCycle(ctx context.Context, m *model.CycleMetrics) error {
	if err := validateCycle(m); err != nil {
		return err
	}
	metricsJSON, err := json.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal metrics")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO circle_cycles (id, business_unit, start_time, end_time, metrics) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		m.CycleID, m.BusinessUnitID, m.StartTime.UnixNano(), m.EndTime.UnixNano(), string(metricsJSON),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert cycle %s", m.CycleID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrCycleExists, "cycle %s", m.CycleID)
	}
	return nil
}

func (s *SQLiteStore) GetCycle(ctx context.Context, cycleID string) (*model.CycleMetrics, error) {
	var metricsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT metrics FROM circle_cycles WHERE id = ?`, cycleID,
	).Scan(&metricsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "cycle %s", cycleID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get cycle %s", cycleID)
	}

	var m model.CycleMetrics
	if err := json.Unmarshal([]byte(metricsJSON), &m); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal metrics")
	}
	return &m, nil
}

func (s *SQLiteStore) ListCycles(ctx context.Context, filter CycleFilter) ([]model.CycleMetrics, error) {
	query := `SELECT metrics FROM circle_cycles WHERE 1=1`
	var args []any
	if filter.BusinessUnitID != "" {
		query += ` AND business_unit = ?`
		args = append(args, filter.BusinessUnitID)
	}
	if !filter.Since.IsZero() {
		query += ` AND start_time >= ?`
		args = append(args, filter.Since.UnixNano())
	}
	query += ` ORDER BY start_time DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, filter.limit(), filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list cycles")
	}
	defer rows.Close()

	var out []model.CycleMetrics
	for rows.Next() {
		var metricsJSON string
		if err := rows.Scan(&metricsJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cycle")
		}
		var m model.CycleMetrics
		if err := json.Unmarshal([]byte(metricsJSON), &m); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal metrics")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list cycles iterate")
}

func (s *SQLiteStore) SaveFailure(ctx context.Context, f model.CycleFailure) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO circle_failures (id, cycle_id, business_unit, phase, error, started_at, failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.CycleID, f.BusinessUnitID, string(f.Phase), f.Error, f.StartedAt.UnixNano(), f.FailedAt.UnixNano(),
	)
	return eris.Wrapf(err, "sqlite: insert failure %s", f.CycleID)
}

func (s *SQLiteStore) ListFailures(ctx context.Context, filter CycleFilter) ([]model.CycleFailure, error) {
	query := `SELECT id, cycle_id, business_unit, phase, error, started_at, failed_at FROM circle_failures WHERE 1=1`
	var args []any
	if filter.BusinessUnitID != "" {
		query += ` AND business_unit = ?`
		args = append(args, filter.BusinessUnitID)
	}
	if !filter.Since.IsZero() {
		query += ` AND failed_at >= ?`
		args = append(args, filter.Since.UnixNano())
	}
	query += ` ORDER BY failed_at DESC LIMIT ? OFFSET ?`
	args = append(args, filter.limit(), filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list failures")
	}
	defer rows.Close()

	var out []model.CycleFailure
	for rows.Next() {
		var f model.CycleFailure
		var phase string
		var started, failed int64
		if err := rows.Scan(&f.ID, &f.CycleID, &f.BusinessUnitID, &phase, &f.Error, &started, &failed); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan failure")
		}
		f.Phase = model.CirclePhase(phase)
		f.StartedAt = time.Unix(0, started).UTC()
		f.FailedAt = time.Unix(0, failed).UTC()
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list failures iterate")
}

func (s *SQLiteStore) GetModelState(ctx context.Context, businessUnitID string) ([]byte, error) {
	var state []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM circle_model_state WHERE business_unit = ?`, businessUnitID,
	).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get model state %s", businessUnitID)
	}
	return state, nil
}

func (s *SQLiteStore) SaveModelState(ctx context.Context, businessUnitID string, state []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO circle_model_state (business_unit, state, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(business_unit) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		businessUnitID, state, time.Now().UTC().UnixNano(),
	)
	return eris.Wrapf(err, "sqlite: save model state %s", businessUnitID)
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/huntred/circle/internal/db"
	"github.com/huntred/circle/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS circle_cycles (
	id            TEXT PRIMARY KEY,
	business_unit TEXT NOT NULL,
	start_time    TIMESTAMPTZ NOT NULL,
	end_time      TIMESTAMPTZ NOT NULL,
	metrics       JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS circle_failures (
	id            TEXT PRIMARY KEY,
	cycle_id      TEXT NOT NULL,
	business_unit TEXT NOT NULL,
	phase         TEXT NOT NULL,
	error         TEXT NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	failed_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS circle_model_state (
	business_unit TEXT PRIMARY KEY,
	state         JSONB NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_circle_cycles_bu_start ON circle_cycles(business_unit, start_time DESC);
CREATE INDEX IF NOT EXISTS idx_circle_failures_bu ON circle_failures(business_unit, failed_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveCycle(ctx context.Context, m *model.CycleMetrics) error {
	if err := validateCycle(m); err != nil {
		return err
	}
	metricsJSON, err := json.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal metrics")
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO circle_cycles (id, business_unit, start_time, end_time, metrics) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		m.CycleID, m.BusinessUnitID, m.StartTime, *m.EndTime, metricsJSON,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert cycle %s", m.CycleID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrCycleExists, "cycle %s", m.CycleID)
	}
	return nil
}

func (s *PostgresStore) GetCycle(ctx context.Context, cycleID string) (*model.CycleMetrics, error) {
	var metricsJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT metrics FROM circle_cycles WHERE id = $1`, cycleID,
	).Scan(&metricsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "cycle %s", cycleID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get cycle %s", cycleID)
	}

	var m model.CycleMetrics
	if err := json.Unmarshal(metricsJSON, &m); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal metrics")
	}
	return &m, nil
}

func (s *PostgresStore) ListCycles(ctx context.Context, filter CycleFilter) ([]model.CycleMetrics, error) {
	query := `SELECT metrics FROM circle_cycles WHERE true`
	args := []any{}
	argIdx := 1

	if filter.BusinessUnitID != "" {
		query += fmt.Sprintf(` AND business_unit = $%d`, argIdx)
		args = append(args, filter.BusinessUnitID)
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND start_time >= $%d`, argIdx)
		args = append(args, filter.Since)
		argIdx++
	}
	query += ` ORDER BY start_time DESC, id DESC`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, filter.limit())
	argIdx++
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list cycles")
	}
	defer rows.Close()

	var out []model.CycleMetrics
	for rows.Next() {
		var metricsJSON []byte
		if err := rows.Scan(&metricsJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cycle")
		}
		var m model.CycleMetrics
		if err := json.Unmarshal(metricsJSON, &m); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal metrics")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list cycles iterate")
}

func (s *PostgresStore) SaveFailure(ctx context.Context, f model.CycleFailure) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO circle_failures (id, cycle_id, business_unit, phase, error, started_at, failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		f.ID, f.CycleID, f.BusinessUnitID, string(f.Phase), f.Error, f.StartedAt, f.FailedAt,
	)
	return eris.Wrapf(err, "postgres: insert failure %s", f.CycleID)
}

func (s *PostgresStore) ListFailures(ctx context.Context, filter CycleFilter) ([]model.CycleFailure, error) {
	query := `SELECT id, cycle_id, business_unit, phase, error, started_at, failed_at FROM circle_failures WHERE true`
	args := []any{}
	argIdx := 1

	if filter.BusinessUnitID != "" {
		query += fmt.Sprintf(` AND business_unit = $%d`, argIdx)
		args = append(args, filter.BusinessUnitID)
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND failed_at >= $%d`, argIdx)
		args = append(args, filter.Since)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY failed_at DESC LIMIT $%d`, argIdx)
	args = append(args, filter.limit())

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list failures")
	}
	defer rows.Close()

	var out []model.CycleFailure
	for rows.Next() {
		var f model.CycleFailure
		var phase string
		if err := rows.Scan(&f.ID, &f.CycleID, &f.BusinessUnitID, &phase, &f.Error, &f.StartedAt, &f.FailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan failure")
		}
		f.Phase = model.CirclePhase(phase)
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list failures iterate")
}

func (s *PostgresStore) GetModelState(ctx context.Context, businessUnitID string) ([]byte, error) {
	var state []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM circle_model_state WHERE business_unit = $1`, businessUnitID,
	).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get model state %s", businessUnitID)
	}
	return state, nil
}

func (s *PostgresStore) SaveModelState(ctx context.Context, businessUnitID string, state []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO circle_model_state (business_unit, state, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (business_unit) DO UPDATE SET state = EXCLUDED.state, updated_at = now()`,
		businessUnitID, state,
	)
	return eris.Wrapf(err, "postgres: save model state %s", businessUnitID)
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/vulnradar/vulnradar/internal/db"
	"github.com/vulnradar/vulnradar/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	sqlInsertRun       = `INSERT INTO runs (id, status, created_at, updated_at) VALUES ($1, $2, $3, $4)`
	sqlUpdateRunStatus = `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`
	sqlCompleteRun     = `UPDATE runs SET status = $1, stats = $2, error = $3, updated_at = $4 WHERE id = $5`
	sqlGetRun          = `SELECT id, status, stats, error, created_at, updated_at FROM runs WHERE id = $1`
	sqlInsertPhase     = `INSERT INTO run_phases (id, run_id, name, status, started_at) VALUES ($1, $2, $3, $4, $5)`
	sqlCompletePhase   = `UPDATE run_phases SET status = $1, duration_ms = $2, error = $3 WHERE id = $4`
	sqlLatestSnapshot  = `SELECT id, run_at FROM snapshots ORDER BY created_at DESC, id DESC LIMIT 1`
	sqlSnapshotRecords = `SELECT record FROM snapshot_records WHERE snapshot_id = $1`
	sqlInsertSnapshot  = `INSERT INTO snapshots (id, run_at, created_at) VALUES ($1, $2, $3)`
	sqlLoadRegistry    = `SELECT data FROM registry WHERE id = 1`
	sqlSaveRegistry    = `INSERT INTO registry (id, data, updated_at) VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`
)

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run":        sqlInsertRun,
	"update_run_status": sqlUpdateRunStatus,
	"insert_phase":      sqlInsertPhase,
	"complete_phase":    sqlCompletePhase,
	"save_registry":     sqlSaveRegistry,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'queued',
	stats      JSONB,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_phases (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	name        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	duration_ms BIGINT NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS snapshots (
	id         TEXT PRIMARY KEY,
	run_at     TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS snapshot_records (
	snapshot_id TEXT NOT NULL REFERENCES snapshots(id),
	cve_id      TEXT NOT NULL,
	record      JSONB NOT NULL,
	PRIMARY KEY (snapshot_id, cve_id)
);

CREATE TABLE IF NOT EXISTS registry (
	id         INT PRIMARY KEY CHECK (id = 1),
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_run_phases_run_id ON run_phases(run_id);
CREATE INDEX IF NOT EXISTS idx_snapshots_created_at ON snapshots(created_at);
`

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

func (s *PostgresStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	if _, err := s.pool.Exec(ctx, sqlInsertRun, id, string(model.RunStatusQueued), now, now); err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx, sqlUpdateRunStatus, string(status), time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run %s not found", runID)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, stats *model.RunStats, runErr string) error {
	status := model.RunStatusComplete
	if runErr != "" {
		status = model.RunStatusFailed
	}

	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}

	tag, err := s.pool.Exec(ctx, sqlCompleteRun, string(status), statsJSON, runErr, time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run %s not found", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	return scanPgRun(s.pool.QueryRow(ctx, sqlGetRun, runID))
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, stats, error, created_at, updated_at FROM runs`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(args) == 1 {
		query += ` LIMIT $2 OFFSET $3`
	} else {
		query += ` LIMIT $1 OFFSET $2`
	}
	args = append(args, limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanPgRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs")
}

func (s *PostgresStore) CreatePhase(ctx context.Context, runID string, name string) (*model.RunPhase, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	if _, err := s.pool.Exec(ctx, sqlInsertPhase, id, runID, name, string(model.PhaseStatusRunning), now); err != nil {
		return nil, eris.Wrapf(err, "postgres: insert phase %s", name)
	}

	return &model.RunPhase{
		ID:        id,
		RunID:     runID,
		Name:      name,
		Status:    model.PhaseStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) CompletePhase(ctx context.Context, phaseID string, status model.PhaseStatus, durationMs int64, errMsg string) error {
	tag, err := s.pool.Exec(ctx, sqlCompletePhase, string(status), durationMs, errMsg, phaseID)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete phase %s", phaseID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: phase %s not found", phaseID)
	}
	return nil
}

func (s *PostgresStore) LatestSnapshot(ctx context.Context) (*model.Snapshot, error) {
	var (
		snapshotID string
		runAt      time.Time
	)
	err := s.pool.QueryRow(ctx, sqlLatestSnapshot).Scan(&snapshotID, &runAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.NewSnapshot(time.Time{}), nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest snapshot")
	}

	rows, err := s.pool.Query(ctx, sqlSnapshotRecords, snapshotID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: snapshot records")
	}
	defer rows.Close()

	snapshot := model.NewSnapshot(runAt)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		var rec model.CanonicalRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, eris.Wrap(err, "postgres: decode record")
		}
		snapshot.Put(rec)
	}
	return snapshot, eris.Wrap(rows.Err(), "postgres: snapshot records")
}

// SaveSnapshot inserts the snapshot header and bulk-loads the records
// over the COPY protocol, in one transaction: a snapshot either commits
// with all its records or not at all, so a crash mid-save can never
// leave a header that LatestSnapshot would return as an empty previous
// snapshot.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, snapshot *model.Snapshot) error {
	snapshotID := uuid.New().String()

	records := snapshot.SortedRecords()
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal record %s", rec.ID)
		}
		rows = append(rows, []any{snapshotID, rec.ID, data})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin snapshot tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, sqlInsertSnapshot, snapshotID, snapshot.RunAt, time.Now().UTC()); err != nil {
		return eris.Wrap(err, "postgres: insert snapshot")
	}
	if _, err := db.CopyFrom(ctx, tx, "snapshot_records", []string{"snapshot_id", "cve_id", "record"}, rows); err != nil {
		return eris.Wrap(err, "postgres: copy snapshot records")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit snapshot")
}

func (s *PostgresStore) LoadRegistry(ctx context.Context) (*model.IssueRegistry, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, sqlLoadRegistry).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.NewIssueRegistry(), nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load registry")
	}

	var registry model.IssueRegistry
	if err := json.Unmarshal(data, &registry); err != nil {
		return nil, eris.Wrap(err, "postgres: decode registry")
	}
	return &registry, nil
}

func (s *PostgresStore) SaveRegistry(ctx context.Context, registry *model.IssueRegistry) error {
	data, err := json.Marshal(registry)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal registry")
	}

	_, err = s.pool.Exec(ctx, sqlSaveRegistry, data, time.Now().UTC())
	return eris.Wrap(err, "postgres: save registry")
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var (
		run       model.Run
		statsJSON []byte
	)
	err := row.Scan(&run.ID, &run.Status, &statsJSON, &run.Error, &run.CreatedAt, &run.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(err, "postgres: run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan run")
	}

	if len(statsJSON) > 0 && string(statsJSON) != "null" {
		var stats model.RunStats
		if err := json.Unmarshal(statsJSON, &stats); err != nil {
			return nil, eris.Wrap(err, "postgres: decode stats")
		}
		run.Stats = &stats
	}
	return &run, nil
}

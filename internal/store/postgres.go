package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/suitability-cli/internal/db"
	"github.com/sells-group/suitability-cli/internal/model"
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

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 1
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

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
	id            TEXT PRIMARY KEY,
	species_label TEXT NOT NULL,
	thresholds    JSONB NOT NULL,
	inputs        JSONB NOT NULL,
	status        TEXT NOT NULL DEFAULT 'running',
	summary       JSONB,
	error         TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS zone_results (
	run_id            TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq               INTEGER NOT NULL,
	zone_id           TEXT NOT NULL,
	suitable_area_km2 DOUBLE PRECISION NOT NULL,
	total_area_km2    DOUBLE PRECISION NOT NULL,
	pct_suitable      DOUBLE PRECISION,
	flag              TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS zones (
	zone_id        TEXT PRIMARY KEY,
	total_area_km2 DOUBLE PRECISION,
	geom           BYTEA NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_species ON runs(species_label);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
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

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) CreateRun(ctx context.Context, run model.Run) (*model.Run, error) {
	run.ID = uuid.New().String()
	run.Status = model.RunStatusRunning
	run.CreatedAt = now()
	run.UpdatedAt = run.CreatedAt
	run.Summary = nil
	run.Error = ""

	thresholds, inputs, err := marshalRunParams(run)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create run")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, species_label, thresholds, inputs, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.SpeciesLabel, thresholds, inputs, string(run.Status), run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &run, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error {
	summaryJSON, err := marshalSummary(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET summary = $1, status = $2, updated_at = $3 WHERE id = $4`,
		summaryJSON, string(model.RunStatusComplete), now(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrRunNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET error = $1, status = $2, updated_at = $3 WHERE id = $4`,
		reason, string(model.RunStatusFailed), now(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrRunNotFound, "run %s", runID)
	}
	return nil
}

const postgresRunColumns = `id, species_label, thresholds, inputs, status, summary, error, created_at, updated_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPostgresRun(s.pool.QueryRow(ctx,
		`SELECT `+postgresRunColumns+` FROM runs WHERE id = $1`,
		runID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrRunNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + postgresRunColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.SpeciesLabel != "" {
		query += fmt.Sprintf(` AND species_label = $%d`, argIdx)
		args = append(args, filter.SpeciesLabel)
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at > $%d`, argIdx)
		args = append(args, filter.CreatedAfter)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, argIdx)
	args = append(args, filter.limit())
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

var resultColumns = []string{"run_id", "seq", "zone_id", "suitable_area_km2", "total_area_km2", "pct_suitable", "flag"}

// SaveResults bulk-loads a run's result table with COPY.
func (s *PostgresStore) SaveResults(ctx context.Context, runID string, results []model.ZoneResult) error {
	rows := make([][]any, len(results))
	for i, r := range results {
		rows[i] = []any{runID, i, r.ZoneID, r.SuitableAreaKM2, r.TotalAreaKM2, r.PctSuitable, r.Flag}
	}
	_, err := db.CopyFrom(ctx, s.pool, "zone_results", resultColumns, rows)
	return eris.Wrapf(err, "postgres: save results for run %s", runID)
}

func (s *PostgresStore) ListResults(ctx context.Context, runID string) ([]model.ZoneResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, seq, zone_id, suitable_area_km2, total_area_km2, pct_suitable, flag
		 FROM zone_results WHERE run_id = $1 ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list results %s", runID)
	}
	defer rows.Close()

	var out []model.ZoneResult
	for rows.Next() {
		var r model.ZoneResult
		if err := rows.Scan(&r.RunID, &r.Seq, &r.ZoneID, &r.SuitableAreaKM2, &r.TotalAreaKM2, &r.PctSuitable, &r.Flag); err != nil {
			return nil, eris.Wrap(err, "postgres: scan result")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list results iterate")
}

var zoneUpsert = db.UpsertConfig{
	Table:        "zones",
	Columns:      []string{"zone_id", "total_area_km2", "geom", "updated_at"},
	ConflictKeys: []string{"zone_id"},
}

// SaveZones upserts the zone catalog keyed by zone id.
func (s *PostgresStore) SaveZones(ctx context.Context, zones []model.Zone) error {
	ts := now()
	rows := make([][]any, len(zones))
	for i, z := range zones {
		rows[i] = []any{z.ID, z.TotalAreaKM2, z.Geometry, ts}
	}
	_, err := db.BulkUpsert(ctx, s.pool, zoneUpsert, rows)
	return eris.Wrap(err, "postgres: save zones")
}

func scanPostgresRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var status string
	var thresholds, inputs, summary []byte

	if err := row.Scan(&r.ID, &r.SpeciesLabel, &thresholds, &inputs, &status, &summary, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if err := unmarshalRunParams(&r, thresholds, inputs, summary); err != nil {
		return nil, err
	}
	return &r, nil
}

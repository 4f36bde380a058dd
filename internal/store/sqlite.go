package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/suitability-cli/internal/model"
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
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	species_label TEXT NOT NULL,
	thresholds    TEXT NOT NULL,
	inputs        TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'running',
	summary       TEXT,
	error         TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS zone_results (
	run_id            TEXT NOT NULL REFERENCES runs(id),
	seq               INTEGER NOT NULL,
	zone_id           TEXT NOT NULL,
	suitable_area_km2 REAL NOT NULL,
	total_area_km2    REAL NOT NULL,
	pct_suitable      REAL,
	flag              TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS zones (
	zone_id        TEXT PRIMARY KEY,
	total_area_km2 REAL,
	geom           BLOB NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_species ON runs(species_label);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run model.Run) (*model.Run, error) {
	run.ID = uuid.New().String()
	run.Status = model.RunStatusRunning
	run.CreatedAt = now()
	run.UpdatedAt = run.CreatedAt
	run.Summary = nil
	run.Error = ""

	thresholds, inputs, err := marshalRunParams(run)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: create run")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, species_label, thresholds, inputs, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.SpeciesLabel, string(thresholds), string(inputs), string(run.Status), run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &run, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error {
	summaryJSON, err := marshalSummary(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}
	summaryCol := sql.NullString{String: string(summaryJSON), Valid: summaryJSON != nil}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET summary = ?, status = ?, updated_at = ? WHERE id = ?`,
		summaryCol, string(model.RunStatusComplete), now(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET error = ?, status = ?, updated_at = ? WHERE id = ?`,
		reason, string(model.RunStatusFailed), now(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

const sqliteRunColumns = `id, species_label, thresholds, inputs, status, summary, error, created_at, updated_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteRunColumns+` FROM runs WHERE id = ?`, runID)
	r, err := scanSQLiteRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrRunNotFound, "sqlite: get run %s", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.SpeciesLabel != "" {
		query += ` AND species_label = ?`
		args = append(args, filter.SpeciesLabel)
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at > ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, filter.limit())

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveResults(ctx context.Context, runID string, results []model.ZoneResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save results")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO zone_results (run_id, seq, zone_id, suitable_area_km2, total_area_km2, pct_suitable, flag) VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare save results")
	}
	defer stmt.Close() //nolint:errcheck

	for i, r := range results {
		pct := sql.NullFloat64{}
		if r.PctSuitable != nil {
			pct = sql.NullFloat64{Float64: *r.PctSuitable, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, runID, i, r.ZoneID, r.SuitableAreaKM2, r.TotalAreaKM2, pct, r.Flag); err != nil {
			return eris.Wrapf(err, "sqlite: insert result %s for run %s", r.ZoneID, runID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save results")
}

func (s *SQLiteStore) ListResults(ctx context.Context, runID string) ([]model.ZoneResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, seq, zone_id, suitable_area_km2, total_area_km2, pct_suitable, flag
		 FROM zone_results WHERE run_id = ? ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list results %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ZoneResult
	for rows.Next() {
		var r model.ZoneResult
		var pct sql.NullFloat64
		if err := rows.Scan(&r.RunID, &r.Seq, &r.ZoneID, &r.SuitableAreaKM2, &r.TotalAreaKM2, &pct, &r.Flag); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan result")
		}
		if pct.Valid {
			r.PctSuitable = &pct.Float64
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list results iterate")
}

func (s *SQLiteStore) SaveZones(ctx context.Context, zones []model.Zone) error {
	if len(zones) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save zones")
	}
	defer tx.Rollback() //nolint:errcheck

	ts := now()
	for _, z := range zones {
		total := sql.NullFloat64{}
		if z.TotalAreaKM2 != nil {
			total = sql.NullFloat64{Float64: *z.TotalAreaKM2, Valid: true}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO zones (zone_id, total_area_km2, geom, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (zone_id) DO UPDATE SET total_area_km2 = excluded.total_area_km2, geom = excluded.geom, updated_at = excluded.updated_at`,
			z.ID, total, z.Geometry, ts,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert zone %s", z.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save zones")
}

// helpers

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrRunNotFound, "run %s", runID)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(row scannable) (*model.Run, error) {
	var r model.Run
	var thresholds, inputs string
	var summary sql.NullString

	err := row.Scan(&r.ID, &r.SpeciesLabel, &thresholds, &inputs, &r.Status, &summary, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	var summaryBytes []byte
	if summary.Valid {
		summaryBytes = []byte(summary.String)
	}
	if err := unmarshalRunParams(&r, []byte(thresholds), []byte(inputs), summaryBytes); err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	return &r, nil
}

func marshalRunParams(r model.Run) (thresholds, inputs []byte, err error) {
	if thresholds, err = json.Marshal(r.Thresholds); err != nil {
		return nil, nil, eris.Wrap(err, "marshal thresholds")
	}
	if inputs, err = json.Marshal(r.Inputs); err != nil {
		return nil, nil, eris.Wrap(err, "marshal inputs")
	}
	return thresholds, inputs, nil
}

// marshalSummary returns nil for a nil summary so the column stays NULL.
func marshalSummary(v *model.RunSummary) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalRunParams(r *model.Run, thresholds, inputs, summary []byte) error {
	if err := json.Unmarshal(thresholds, &r.Thresholds); err != nil {
		return eris.Wrap(err, "unmarshal thresholds")
	}
	if err := json.Unmarshal(inputs, &r.Inputs); err != nil {
		return eris.Wrap(err, "unmarshal inputs")
	}
	if summary != nil {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal(summary, r.Summary); err != nil {
			return eris.Wrap(err, "unmarshal summary")
		}
	}
	return nil
}

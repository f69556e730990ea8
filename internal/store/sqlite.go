package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
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

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	manifest    TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	error       TEXT,
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS neighborhoods (
	id   TEXT PRIMARY KEY,
	srid INTEGER NOT NULL,
	geom BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS estimates (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	year         INTEGER NOT NULL,
	neighborhood TEXT NOT NULL,
	attribute    TEXT NOT NULL,
	value        REAL NOT NULL,
	PRIMARY KEY (run_id, year, neighborhood, attribute)
);

CREATE TABLE IF NOT EXISTS verdicts (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	year         INTEGER NOT NULL,
	attribute    TEXT NOT NULL,
	source_total REAL NOT NULL,
	target_total REAL NOT NULL,
	discrepancy  REAL NOT NULL,
	conserved    INTEGER NOT NULL,
	expected     INTEGER NOT NULL,
	PRIMARY KEY (run_id, year, attribute)
);

CREATE INDEX IF NOT EXISTS idx_estimates_neighborhood ON estimates(neighborhood);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, manifest string) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, manifest, status, started_at) VALUES (?, ?, ?, ?)`,
		id, manifest, RunStatusRunning, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &Run{ID: id, Manifest: manifest, Status: RunStatusRunning, StartedAt: now}, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, runErr error) error {
	status := RunStatusComplete
	var errMsg sql.NullString
	if runErr != nil {
		status = RunStatusFailed
		errMsg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: run %s not found", runID)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	var (
		r        Run
		errMsg   sql.NullString
		finished sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, manifest, status, error, started_at, finished_at FROM runs WHERE id = ?`,
		runID,
	).Scan(&r.ID, &r.Manifest, &r.Status, &errMsg, &r.StartedAt, &finished)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("sqlite: run %s not found", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	r.Error = errMsg.String
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	return &r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, manifest, status, error, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			errMsg   sql.NullString
			finished sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.Manifest, &r.Status, &errMsg, &r.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.Error = errMsg.String
		if finished.Valid {
			r.FinishedAt = &finished.Time
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func (s *SQLiteStore) UpsertNeighborhoods(ctx context.Context, crs string, neighborhoods []Neighborhood) error {
	srid := sridFromCRS(crs)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert neighborhoods")
	}
	defer func() { _ = tx.Rollback() }()

	for _, n := range neighborhoods {
		wkb, err := EncodeEWKB(n.Geom, crs)
		if err != nil {
			return eris.Wrapf(err, "sqlite: neighborhood %s", n.ID)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO neighborhoods (id, srid, geom) VALUES (?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET srid = excluded.srid, geom = excluded.geom`,
			n.ID, srid, wkb,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert neighborhood %s", n.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit neighborhoods")
}

func (s *SQLiteStore) SaveEstimates(ctx context.Context, estimates []Estimate) error {
	if len(estimates) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save estimates")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO estimates (run_id, year, neighborhood, attribute, value) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare estimates insert")
	}
	defer stmt.Close()

	for _, e := range estimates {
		if _, err := stmt.ExecContext(ctx, e.RunID, e.Year, e.Neighborhood, e.Attribute, e.Value); err != nil {
			return eris.Wrapf(err, "sqlite: insert estimate %s/%d/%s", e.Neighborhood, e.Year, e.Attribute)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit estimates")
}

func (s *SQLiteStore) SaveVerdicts(ctx context.Context, verdicts []VerdictRecord) error {
	if len(verdicts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save verdicts")
	}
	defer func() { _ = tx.Rollback() }()

	for _, v := range verdicts {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO verdicts (run_id, year, attribute, source_total, target_total, discrepancy, conserved, expected)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			v.RunID, v.Year, v.Attribute, v.SourceTotal, v.TargetTotal, v.Discrepancy, v.Conserved, v.Expected,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert verdict %d/%s", v.Year, v.Attribute)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit verdicts")
}

func (s *SQLiteStore) Series(ctx context.Context, runID, neighborhood string) ([]Estimate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, year, neighborhood, attribute, value
		 FROM estimates WHERE run_id = ? AND neighborhood = ?
		 ORDER BY year, attribute`,
		runID, neighborhood,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query series")
	}
	defer rows.Close()

	var out []Estimate
	for rows.Next() {
		var e Estimate
		if err := rows.Scan(&e.RunID, &e.Year, &e.Neighborhood, &e.Attribute, &e.Value); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan estimate")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate series")
}

func (s *SQLiteStore) Verdicts(ctx context.Context, runID string) ([]VerdictRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, year, attribute, source_total, target_total, discrepancy, conserved, expected
		 FROM verdicts WHERE run_id = ? ORDER BY year, attribute`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query verdicts")
	}
	defer rows.Close()

	var out []VerdictRecord
	for rows.Next() {
		var v VerdictRecord
		if err := rows.Scan(&v.RunID, &v.Year, &v.Attribute, &v.SourceTotal, &v.TargetTotal,
			&v.Discrepancy, &v.Conserved, &v.Expected); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan verdict")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate verdicts")
}

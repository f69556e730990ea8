package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/tracthist/internal/db"
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

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run":     `INSERT INTO runs (id, manifest, status, started_at) VALUES ($1, $2, $3, $4)`,
	"get_run":        `SELECT id, manifest, status, error, started_at, finished_at FROM runs WHERE id = $1`,
	"insert_verdict": `INSERT INTO verdicts (run_id, year, attribute, source_total, target_total, discrepancy, conserved, expected) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"get_series":     `SELECT run_id, year, neighborhood, attribute, value FROM estimates WHERE run_id = $1 AND neighborhood = $2 ORDER BY year, attribute`,
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

	// Prepare frequently-used statements on each new connection.
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

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	manifest    TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	error       TEXT,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS neighborhoods (
	id   TEXT PRIMARY KEY,
	srid INTEGER NOT NULL,
	geom BYTEA NOT NULL
);

CREATE TABLE IF NOT EXISTS estimates (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	year         INTEGER NOT NULL,
	neighborhood TEXT NOT NULL,
	attribute    TEXT NOT NULL,
	value        DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, year, neighborhood, attribute)
);

CREATE TABLE IF NOT EXISTS verdicts (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	year         INTEGER NOT NULL,
	attribute    TEXT NOT NULL,
	source_total DOUBLE PRECISION NOT NULL,
	target_total DOUBLE PRECISION NOT NULL,
	discrepancy  DOUBLE PRECISION NOT NULL,
	conserved    BOOLEAN NOT NULL,
	expected     BOOLEAN NOT NULL,
	PRIMARY KEY (run_id, year, attribute)
);

CREATE INDEX IF NOT EXISTS idx_estimates_neighborhood ON estimates(neighborhood);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
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

func (s *PostgresStore) CreateRun(ctx context.Context, manifest string) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, manifest, status, started_at) VALUES ($1, $2, $3, $4)`,
		id, manifest, RunStatusRunning, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &Run{ID: id, Manifest: manifest, Status: RunStatusRunning, StartedAt: now}, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, runErr error) error {
	status := RunStatusComplete
	var errMsg *string
	if runErr != nil {
		status = RunStatusFailed
		msg := runErr.Error()
		errMsg = &msg
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, finished_at = $3 WHERE id = $4`,
		status, errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	var (
		r      Run
		errMsg *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, manifest, status, error, started_at, finished_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.Manifest, &r.Status, &errMsg, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("run not found: %s", runID)
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	if errMsg != nil {
		r.Error = *errMsg
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, manifest, status, error, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r      Run
			errMsg *string
		)
		if err := rows.Scan(&r.ID, &r.Manifest, &r.Status, &errMsg, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if errMsg != nil {
			r.Error = *errMsg
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) UpsertNeighborhoods(ctx context.Context, crs string, neighborhoods []Neighborhood) error {
	srid := sridFromCRS(crs)
	for _, n := range neighborhoods {
		wkb, err := EncodeEWKB(n.Geom, crs)
		if err != nil {
			return eris.Wrapf(err, "postgres: neighborhood %s", n.ID)
		}
		_, err = s.pool.Exec(ctx,
			`INSERT INTO neighborhoods (id, srid, geom) VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO UPDATE SET srid = $2, geom = $3`,
			n.ID, srid, wkb,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: upsert neighborhood %s", n.ID)
		}
	}
	return nil
}

// SaveEstimates bulk-loads estimate rows with the COPY protocol. A full
// pipeline run produces tens of thousands of cells, so row-at-a-time
// inserts are not worth it here.
func (s *PostgresStore) SaveEstimates(ctx context.Context, estimates []Estimate) error {
	rows := make([][]any, 0, len(estimates))
	for _, e := range estimates {
		rows = append(rows, []any{e.RunID, e.Year, e.Neighborhood, e.Attribute, e.Value})
	}

	n, err := db.CopyFrom(ctx, s.pool, "estimates",
		[]string{"run_id", "year", "neighborhood", "attribute", "value"}, rows)
	if err != nil {
		return eris.Wrap(err, "postgres: save estimates")
	}
	if n != int64(len(rows)) {
		return eris.Errorf("postgres: estimates copy wrote %d of %d rows", n, len(rows))
	}
	return nil
}

func (s *PostgresStore) SaveVerdicts(ctx context.Context, verdicts []VerdictRecord) error {
	for _, v := range verdicts {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO verdicts (run_id, year, attribute, source_total, target_total, discrepancy, conserved, expected)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			v.RunID, v.Year, v.Attribute, v.SourceTotal, v.TargetTotal, v.Discrepancy, v.Conserved, v.Expected,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert verdict %d/%s", v.Year, v.Attribute)
		}
	}
	return nil
}

func (s *PostgresStore) Series(ctx context.Context, runID, neighborhood string) ([]Estimate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, year, neighborhood, attribute, value
		 FROM estimates WHERE run_id = $1 AND neighborhood = $2
		 ORDER BY year, attribute`,
		runID, neighborhood,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query series")
	}
	defer rows.Close()

	var out []Estimate
	for rows.Next() {
		var e Estimate
		if err := rows.Scan(&e.RunID, &e.Year, &e.Neighborhood, &e.Attribute, &e.Value); err != nil {
			return nil, eris.Wrap(err, "postgres: scan estimate")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: series iterate")
}

func (s *PostgresStore) Verdicts(ctx context.Context, runID string) ([]VerdictRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, year, attribute, source_total, target_total, discrepancy, conserved, expected
		 FROM verdicts WHERE run_id = $1 ORDER BY year, attribute`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query verdicts")
	}
	defer rows.Close()

	var out []VerdictRecord
	for rows.Next() {
		var v VerdictRecord
		if err := rows.Scan(&v.RunID, &v.Year, &v.Attribute, &v.SourceTotal, &v.TargetTotal,
			&v.Discrepancy, &v.Conserved, &v.Expected); err != nil {
			return nil, eris.Wrap(err, "postgres: scan verdict")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: verdicts iterate")
}

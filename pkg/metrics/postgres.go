package metrics

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// RunLedger persists one row per completed benchmark run to PostgreSQL, so
// runs can be compared across Parameters (variant, batch shape, data
// handling) after the fact.
type RunLedger struct {
	db *sql.DB
}

// NewRunLedger opens dsn, verifies connectivity, and ensures the runs
// table exists.
func NewRunLedger(dsn string) (*RunLedger, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening metrics postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging metrics postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ledger := &RunLedger{db: db}
	if err := ledger.initSchema(); err != nil {
		return nil, err
	}
	return ledger, nil
}

func (l *RunLedger) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS hebench_runs (
		run_id       VARCHAR(32) PRIMARY KEY,
		variant      VARCHAR(8)  NOT NULL,
		int_bits     INTEGER     NOT NULL,
		batch_size   INTEGER     NOT NULL,
		batch_count  INTEGER     NOT NULL,
		data_handling VARCHAR(32) NOT NULL,
		started_at   TIMESTAMP   NOT NULL,
		finished_at  TIMESTAMP,
		elapsed_ms   BIGINT,
		succeeded    BOOLEAN     DEFAULT false
	);

	CREATE INDEX IF NOT EXISTS idx_hebench_runs_variant ON hebench_runs(variant);
	`
	_, err := l.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("initializing metrics schema: %w", err)
	}
	return nil
}

// Run is one row of the run-ledger.
type Run struct {
	RunID        string
	Variant      string
	IntBits      int
	BatchSize    int
	BatchCount   int
	DataHandling string
	StartedAt    time.Time
}

// RecordStart inserts a new in-progress run row.
func (l *RunLedger) RecordStart(r Run) error {
	const q = `
		INSERT INTO hebench_runs
			(run_id, variant, int_bits, batch_size, batch_count, data_handling, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id) DO NOTHING
	`
	_, err := l.db.Exec(q, r.RunID, r.Variant, r.IntBits, r.BatchSize, r.BatchCount, r.DataHandling, r.StartedAt)
	if err != nil {
		return fmt.Errorf("recording run start for %q: %w", r.RunID, err)
	}
	return nil
}

// RecordFinish marks runID complete, recording whether it succeeded and
// how long it took.
func (l *RunLedger) RecordFinish(runID string, succeeded bool, elapsed time.Duration) error {
	const q = `
		UPDATE hebench_runs
		SET finished_at = NOW(), elapsed_ms = $2, succeeded = $3
		WHERE run_id = $1
	`
	_, err := l.db.Exec(q, runID, elapsed.Milliseconds(), succeeded)
	if err != nil {
		return fmt.Errorf("recording run finish for %q: %w", runID, err)
	}
	return nil
}

// Close releases the underlying database connection pool.
func (l *RunLedger) Close() error {
	return l.db.Close()
}

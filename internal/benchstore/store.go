// Package benchstore persists benchmark runs to PostgreSQL so retrieval
// quality can be compared across corpus versions and parameter changes.
package benchstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/syscred/evidence-engine/pkg/postgres"
	"github.com/syscred/evidence-engine/pkg/resilience"
)

// Run describes one benchmark invocation over a topic set.
type Run struct {
	CorpusPath string
	TopicsPath string
	QrelsPath  string
	Docs       int
	Topics     int
	StartedAt  time.Time
	DurationMs int64
}

// ConfigResult holds the mean metrics for one retrieval configuration
// within a run.
type ConfigResult struct {
	Name         string
	Model        string
	UsePRF       bool
	MeanP10      float64
	MeanR10      float64
	MAP          float64
	MRR          float64
	MeanNDCG10   float64
	TopicsRun    int
	AvgLatencyMs float64
}

type Store struct {
	client *postgres.Client
	logger *slog.Logger
}

func New(client *postgres.Client) *Store {
	return &Store{
		client: client,
		logger: slog.Default().With("component", "benchstore"),
	}
}

// EnsureSchema creates the benchmark tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS benchmark_runs (
	id           BIGSERIAL PRIMARY KEY,
	corpus_path  TEXT NOT NULL,
	topics_path  TEXT NOT NULL,
	qrels_path   TEXT NOT NULL,
	docs         INT NOT NULL,
	topics       INT NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	duration_ms  BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS benchmark_results (
	id             BIGSERIAL PRIMARY KEY,
	run_id         BIGINT NOT NULL REFERENCES benchmark_runs(id) ON DELETE CASCADE,
	config_name    TEXT NOT NULL,
	model          TEXT NOT NULL,
	use_prf        BOOLEAN NOT NULL,
	mean_p10       DOUBLE PRECISION NOT NULL,
	mean_r10       DOUBLE PRECISION NOT NULL,
	map            DOUBLE PRECISION NOT NULL,
	mrr            DOUBLE PRECISION NOT NULL,
	mean_ndcg10    DOUBLE PRECISION NOT NULL,
	topics_run     INT NOT NULL,
	avg_latency_ms DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_benchmark_results_run ON benchmark_results(run_id);`

	return resilience.Retry(ctx, "benchstore-ensure-schema", resilience.RetryConfig{}, func() error {
		_, err := s.client.DB.ExecContext(ctx, schema)
		if err != nil {
			return fmt.Errorf("creating benchmark schema: %w", err)
		}
		return nil
	})
}

// SaveRun writes the run row and all per-configuration results in a single
// transaction and returns the new run id.
func (s *Store) SaveRun(ctx context.Context, run Run, results []ConfigResult) (int64, error) {
	var runID int64
	err := resilience.Retry(ctx, "benchstore-save-run", resilience.RetryConfig{}, func() error {
		return s.client.InTx(ctx, func(tx *sql.Tx) error {
			err := tx.QueryRowContext(ctx,
				`INSERT INTO benchmark_runs
					(corpus_path, topics_path, qrels_path, docs, topics, started_at, duration_ms)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)
				 RETURNING id`,
				run.CorpusPath, run.TopicsPath, run.QrelsPath,
				run.Docs, run.Topics, run.StartedAt, run.DurationMs,
			).Scan(&runID)
			if err != nil {
				return fmt.Errorf("inserting benchmark run: %w", err)
			}
			for _, r := range results {
				_, err := tx.ExecContext(ctx,
					`INSERT INTO benchmark_results
						(run_id, config_name, model, use_prf,
						 mean_p10, mean_r10, map, mrr, mean_ndcg10,
						 topics_run, avg_latency_ms)
					 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
					runID, r.Name, r.Model, r.UsePRF,
					r.MeanP10, r.MeanR10, r.MAP, r.MRR, r.MeanNDCG10,
					r.TopicsRun, r.AvgLatencyMs,
				)
				if err != nil {
					return fmt.Errorf("inserting result %s: %w", r.Name, err)
				}
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("benchmark run persisted", "run_id", runID, "configs", len(results))
	return runID, nil
}

// LatestRuns returns the most recent runs, newest first.
func (s *Store) LatestRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.client.DB.QueryContext(ctx,
		`SELECT corpus_path, topics_path, qrels_path, docs, topics, started_at, duration_ms
		 FROM benchmark_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying benchmark runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0, limit)
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.CorpusPath, &r.TopicsPath, &r.QrelsPath,
			&r.Docs, &r.Topics, &r.StartedAt, &r.DurationMs); err != nil {
			return nil, fmt.Errorf("scanning benchmark run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

package eval

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/bsky-explainer/bskyx/db"
)

// HistoryStore keeps past benchmark runs in the embedded libsql database.
type HistoryStore struct {
	db *sql.DB
}

// ModelSummary is the stored aggregate of one model in one run.
type ModelSummary struct {
	AvgFactuality float64
	AvgUtility    float64
	AvgSteps      float64
	Exhausted     int
}

// RunRecord is one stored benchmark run.
type RunRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	JudgeModel string
	Models     map[string]ModelSummary
}

// OpenHistory connects to dsn and applies migrations.
func OpenHistory(ctx context.Context, dsn string, logger zerolog.Logger) (*HistoryStore, error) {
	conn, err := db.Connect(ctx, dsn, logger)
	if err != nil {
		return nil, err
	}
	return &HistoryStore{db: conn}, nil
}

// Close closes the database.
func (s *HistoryStore) Close() error { return s.db.Close() }

// RecordBenchmark stores a run, its model aggregates and every case score in one transaction.
func (s *HistoryStore) RecordBenchmark(ctx context.Context, bench *Benchmark, judgeModel string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO benchmark_runs (id, started_at, finished_at, judge_model) VALUES (?, ?, ?, ?)`,
		bench.RunID, bench.StartedAt.UnixMilli(), bench.FinishedAt.UnixMilli(), judgeModel,
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, model := range bench.Models {
		res, ok := bench.Results[model]
		if !ok {
			continue
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO model_results (run_id, model, avg_factuality, avg_utility, avg_steps, exhausted) VALUES (?, ?, ?, ?, ?, ?)`,
			bench.RunID, model, res.AvgFactuality, res.AvgUtility, res.AvgSteps, res.Exhausted,
		); err != nil {
			return fmt.Errorf("failed to insert results of %s: %w", model, err)
		}
		for _, d := range res.Details {
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO case_scores (run_id, model, case_id, factuality, utility, reasoning, agent_output, steps, outcome)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				bench.RunID, model, d.ID, d.Scores.Factuality, d.Scores.Utility, d.Scores.Reasoning, d.AgentOutput, d.Steps, d.Outcome,
			); err != nil {
				return fmt.Errorf("failed to insert case %s of %s: %w", d.ID, model, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit benchmark: %w", err)
	}
	return nil
}

// Runs returns the most recent runs, newest first.
func (s *HistoryStore) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, judge_model FROM benchmark_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			rec               RunRecord
			started, finished int64
		)
		if err := rows.Scan(&rec.ID, &started, &finished, &rec.JudgeModel); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		rec.StartedAt = time.UnixMilli(started).UTC()
		rec.FinishedAt = time.UnixMilli(finished).UTC()
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		models, err := s.modelSummaries(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Models = models
	}
	return runs, nil
}

func (s *HistoryStore) modelSummaries(ctx context.Context, runID string) (map[string]ModelSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT model, avg_factuality, avg_utility, avg_steps, exhausted FROM model_results WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query model results: %w", err)
	}
	defer rows.Close()

	models := make(map[string]ModelSummary)
	for rows.Next() {
		var (
			model string
			sum   ModelSummary
		)
		if err := rows.Scan(&model, &sum.AvgFactuality, &sum.AvgUtility, &sum.AvgSteps, &sum.Exhausted); err != nil {
			return nil, fmt.Errorf("failed to scan model result: %w", err)
		}
		models[model] = sum
	}
	return models, rows.Err()
}

package eval

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryStore_RecordAndList(t *testing.T) {
	ctx := context.Background()
	store, err := OpenHistory(ctx, "file:"+filepath.Join(t.TempDir(), "history.db"), zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()

	started := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	older := &Benchmark{
		RunID:      "run-1",
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		Models:     []string{"gpt-4o"},
		Results: map[string]*ModelResult{"gpt-4o": {
			AvgFactuality: 4.5, AvgUtility: 4, AvgSteps: 2, Exhausted: 0,
			Details: []CaseResult{
				{ID: "1", AgentOutput: "* a", Scores: Score{5, 4, "ok"}, Steps: 2, Outcome: "done"},
				{ID: "2", AgentOutput: "* b", Scores: Score{4, 4, "ok"}, Steps: 2, Outcome: "done"},
			},
		}},
	}
	newer := &Benchmark{
		RunID:      "run-2",
		StartedAt:  started.Add(time.Hour),
		FinishedAt: started.Add(time.Hour + time.Minute),
		Models:     []string{"gpt-4o", "gpt-4o-mini"},
		Results: map[string]*ModelResult{
			"gpt-4o":      {AvgFactuality: 5, AvgUtility: 5, AvgSteps: 1},
			"gpt-4o-mini": {AvgFactuality: 3, AvgUtility: 2.5, AvgSteps: 4.5, Exhausted: 1},
		},
	}
	require.NoError(t, store.RecordBenchmark(ctx, older, "gpt-4o"))
	require.NoError(t, store.RecordBenchmark(ctx, newer, "gpt-4o"))

	runs, err := store.Runs(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, "run-1", runs[1].ID)
	assert.True(t, runs[1].StartedAt.Equal(started))
	assert.Equal(t, "gpt-4o", runs[0].JudgeModel)
	assert.Equal(t, ModelSummary{AvgFactuality: 3, AvgUtility: 2.5, AvgSteps: 4.5, Exhausted: 1}, runs[0].Models["gpt-4o-mini"])
	assert.Equal(t, 4.5, runs[1].Models["gpt-4o"].AvgFactuality)

	var scored int
	require.NoError(t, store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM case_scores WHERE run_id = ?", "run-1").Scan(&scored))
	assert.Equal(t, 2, scored)

	// run ids are unique
	assert.Error(t, store.RecordBenchmark(ctx, older, "gpt-4o"))

	limited, err := store.Runs(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

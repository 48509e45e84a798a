package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/ZanzyTHEbar/bsky-explainer/bskyx/generation/harness"
)

// Explainer runs the agent on one post.
type Explainer interface {
	Run(ctx context.Context, post harness.Post) (*harness.Result, error)
}

// AgentFactory builds the agent benchmarked for model.
type AgentFactory func(model string) (Explainer, error)

// CaseResult is the judged outcome of one case for one model.
type CaseResult struct {
	ID          string `json:"id"`
	AgentOutput string `json:"agent_output"`
	Scores      Score  `json:"scores"`
	Steps       int    `json:"steps"`
	Outcome     string `json:"outcome"`
	DurationMs  int64  `json:"duration_ms"`
}

// ModelResult aggregates the cases of one model.
type ModelResult struct {
	AvgFactuality float64      `json:"avg_factuality"`
	AvgUtility    float64      `json:"avg_utility"`
	AvgSteps      float64      `json:"avg_steps"`
	Exhausted     int          `json:"exhausted"`
	Details       []CaseResult `json:"details"`
}

// Benchmark is the result of one RunBenchmark call.
type Benchmark struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Models     []string // run order
	Results    map[string]*ModelResult
}

// MarshalJSON encodes the per-model results keyed by model name.
func (b *Benchmark) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Results)
}

const outcomeError = "error"

// Harness runs every case against a list of models and judges the answers.
type Harness struct {
	cases       []Case
	judge       *Judge
	newAgent    AgentFactory
	concurrency int
	history     *HistoryStore
	logger      zerolog.Logger
}

// NewHarness creates a harness evaluating cases one at a time.
func NewHarness(cases []Case, judge *Judge, newAgent AgentFactory, logger zerolog.Logger) *Harness {
	return &Harness{
		cases:       cases,
		judge:       judge,
		newAgent:    newAgent,
		concurrency: 1,
		logger:      logger,
	}
}

// WithConcurrency sets how many cases of a model are evaluated at once.
func (h *Harness) WithConcurrency(n int) *Harness {
	if n < 1 {
		n = 1
	}
	h.concurrency = n
	return h
}

// WithHistory records every benchmark in store.
func (h *Harness) WithHistory(store *HistoryStore) *Harness {
	h.history = store
	return h
}

// Cases returns the loaded cases.
func (h *Harness) Cases() []Case { return h.cases }

// RunBenchmark evaluates every case with a fresh agent per model. Agent
// failures are scored like any other answer; only cancellation, agent
// construction and history errors are returned.
func (h *Harness) RunBenchmark(ctx context.Context, models []string) (*Benchmark, error) {
	bench := &Benchmark{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Models:    models,
		Results:   make(map[string]*ModelResult, len(models)),
	}

	for _, model := range models {
		h.logger.Info().Str("model", model).Int("cases", len(h.cases)).Msg("Benchmarking model")

		agent, err := h.newAgent(model)
		if err != nil {
			return nil, fmt.Errorf("failed to create agent for %s: %w", model, err)
		}

		details := make([]CaseResult, len(h.cases))
		p := pool.New().WithMaxGoroutines(h.concurrency).WithContext(ctx)
		for i, c := range h.cases {
			p.Go(func(ctx context.Context) error {
				details[i] = h.EvaluateCase(ctx, agent, c)
				return nil
			})
		}
		_ = p.Wait()
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("benchmark of %s interrupted: %w", model, err)
		}

		bench.Results[model] = summarize(details)
	}
	bench.FinishedAt = time.Now().UTC()

	if h.history != nil {
		if err := h.history.RecordBenchmark(ctx, bench, h.judge.model()); err != nil {
			return bench, fmt.Errorf("failed to record benchmark history: %w", err)
		}
	}
	return bench, nil
}

// EvaluateCase runs agent on c and judges the answer.
func (h *Harness) EvaluateCase(ctx context.Context, agent Explainer, c Case) CaseResult {
	preview := c.PostContent
	if preview == "" {
		preview = "Fetching URL..."
	}
	h.logger.Info().Str("case", c.ID).Msgf("Running case %s: %.50s...", c.ID, preview)

	started := time.Now()
	result := CaseResult{ID: c.ID}
	run, err := agent.Run(ctx, c.Post())
	if err != nil {
		result.AgentOutput = fmt.Sprintf("Error: %v", err)
		result.Outcome = outcomeError
	} else {
		result.AgentOutput = run.Answer
		result.Steps = run.Steps
		result.Outcome = run.Outcome.String()
	}
	result.DurationMs = time.Since(started).Milliseconds()

	original := c.PostContent
	if original == "" {
		original = FetchedContentPlaceholder
	}
	result.Scores = h.judge.Score(ctx, original, c.GoldStandard, result.AgentOutput)
	return result
}

func summarize(details []CaseResult) *ModelResult {
	res := &ModelResult{Details: details}
	if len(details) == 0 {
		return res
	}

	var factuality, utility, steps int
	for _, d := range details {
		factuality += d.Scores.Factuality
		utility += d.Scores.Utility
		steps += d.Steps
		if d.Outcome == harness.OutcomeExhausted.String() {
			res.Exhausted++
		}
	}
	n := float64(len(details))
	res.AvgFactuality = float64(factuality) / n
	res.AvgUtility = float64(utility) / n
	res.AvgSteps = float64(steps) / n
	return res
}

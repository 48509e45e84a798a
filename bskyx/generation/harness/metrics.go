package harness

import (
	"slices"
	"sync"
	"time"

	ports "github.com/ZanzyTHEbar/bsky-explainer/bskyx/generation/harness/ports"
)

// MetricsCollector aggregates run, provider and tool statistics across agent runs.
// It is safe for concurrent use.
type MetricsCollector struct {
	mu sync.RWMutex

	runs      int64
	completed int64
	exhausted int64
	failed    int64
	steps     int64

	providerCalls  int64
	providerErrors int64
	totalTokens    int64

	runLatency []time.Duration
	toolStats  map[string]ToolStats
}

// ToolStats tracks dispatches of a single tool.
type ToolStats struct {
	Calls        int64         `json:"calls"`
	Errors       int64         `json:"errors"`
	TotalLatency time.Duration `json:"total_latency"`
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		runLatency: make([]time.Duration, 0, 64),
		toolStats:  make(map[string]ToolStats),
	}
}

// RecordRun records a finished run. err is set for runs aborted by a provider failure.
func (mc *MetricsCollector) RecordRun(outcome Outcome, steps int, duration time.Duration, err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.runs++
	mc.steps += int64(steps)
	mc.runLatency = append(mc.runLatency, duration)
	switch {
	case err != nil:
		mc.failed++
	case outcome == OutcomeExhausted:
		mc.exhausted++
	default:
		mc.completed++
	}
}

// RecordProviderCall records one model invocation.
func (mc *MetricsCollector) RecordProviderCall(usage *ports.Usage, err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.providerCalls++
	if err != nil {
		mc.providerErrors++
	}
	if usage != nil {
		mc.totalTokens += int64(usage.TotalTokens)
	}
}

// RecordToolCall records one tool dispatch. failed covers errors and panics.
func (mc *MetricsCollector) RecordToolCall(name string, duration time.Duration, failed bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	stats := mc.toolStats[name]
	stats.Calls++
	stats.TotalLatency += duration
	if failed {
		stats.Errors++
	}
	mc.toolStats[name] = stats
}

// GetSummary returns a summary of collected metrics
func (mc *MetricsCollector) GetSummary() MetricsSummary {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	tools := make(map[string]ToolStats, len(mc.toolStats))
	for name, stats := range mc.toolStats {
		tools[name] = stats
	}

	summary := MetricsSummary{
		Runs:           mc.runs,
		Completed:      mc.completed,
		Exhausted:      mc.exhausted,
		Failed:         mc.failed,
		ProviderCalls:  mc.providerCalls,
		ProviderErrors: mc.providerErrors,
		TotalTokens:    mc.totalTokens,
		ToolStats:      tools,
		RunLatency:     calculatePercentiles(mc.runLatency),
	}
	if mc.runs > 0 {
		summary.AvgSteps = float64(mc.steps) / float64(mc.runs)
	}
	return summary
}

// calculatePercentiles calculates p50, p95, p99 latencies
func calculatePercentiles(latencies []time.Duration) LatencyPercentiles {
	if len(latencies) == 0 {
		return LatencyPercentiles{}
	}

	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	return LatencyPercentiles{
		P50: sorted[len(sorted)*50/100],
		P95: sorted[len(sorted)*95/100],
		P99: sorted[len(sorted)*99/100],
	}
}

// MetricsSummary represents a summary of collected metrics
type MetricsSummary struct {
	Runs           int64                `json:"runs"`
	Completed      int64                `json:"completed"`
	Exhausted      int64                `json:"exhausted"`
	Failed         int64                `json:"failed"`
	AvgSteps       float64              `json:"avg_steps"`
	ProviderCalls  int64                `json:"provider_calls"`
	ProviderErrors int64                `json:"provider_errors"`
	TotalTokens    int64                `json:"total_tokens"`
	ToolStats      map[string]ToolStats `json:"tool_stats"`
	RunLatency     LatencyPercentiles   `json:"run_latency"`
}

// LatencyPercentiles represents latency percentiles
type LatencyPercentiles struct {
	P50 time.Duration `json:"p50"`
	P95 time.Duration `json:"p95"`
	P99 time.Duration `json:"p99"`
}

// Reset clears all collected metrics
func (mc *MetricsCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.runs, mc.completed, mc.exhausted, mc.failed, mc.steps = 0, 0, 0, 0, 0
	mc.providerCalls, mc.providerErrors, mc.totalTokens = 0, 0, 0
	mc.runLatency = mc.runLatency[:0]
	mc.toolStats = make(map[string]ToolStats)
}

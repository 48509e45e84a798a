package harnessports

import "context"

// Span and event names emitted by the agent loop.
const (
	SpanAgentRun     = "agent_run"
	SpanProviderCall = "provider_call"
	SpanToolCall     = "tool_call"

	EventObservation     = "observation"
	EventFinalAnswer     = "final_answer"
	EventBudgetExhausted = "budget_exhausted"
	EventCacheHit        = "cache_hit"
)

// Tracer emits spans and events for one agent run.
type Tracer interface {
	StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error))
	Event(ctx context.Context, name string, attrs map[string]any)
}

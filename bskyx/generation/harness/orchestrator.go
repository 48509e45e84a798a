package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	ports "github.com/ZanzyTHEbar/bsky-explainer/bskyx/generation/harness/ports"
	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog"
)

// ExhaustedMessage is the answer of a run that used its whole step budget.
const ExhaustedMessage = "Error: Maximum steps reached without a final answer."

// DefaultMaxSteps bounds the model invocations of one run.
const DefaultMaxSteps = 5

// Outcome is the terminal state of a run.
type Outcome int

const (
	OutcomeDone Outcome = iota
	OutcomeExhausted
)

func (o Outcome) String() string {
	if o == OutcomeExhausted {
		return "exhausted"
	}
	return "done"
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// Policy controls the loop.
type Policy struct {
	MaxSteps        int           // model invocations per run
	NativeTools     bool          // declare tools to the provider and prefer its structured calls
	Options         ports.Options // sampling options for every step, Stop is always overridden
	ObservationLogs int           // observation characters written to traces
}

// DefaultPolicy returns sensible defaults.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxSteps:        DefaultMaxSteps,
		ObservationLogs: 200,
	}
}

// Result is the outcome of one run.
type Result struct {
	RunID      string                `json:"run_id"`
	Answer     string                `json:"answer"`
	Outcome    Outcome               `json:"outcome"`
	Steps      int                   `json:"steps"`
	Transcript []ports.PromptMessage `json:"transcript"`
	Usage      ports.Usage           `json:"usage"`
}

// Agent drives the Thought/Action/Observation loop for one post at a time.
//
// An Agent may be shared: every Run owns a fresh transcript and the registry
// is read-only.
type Agent struct {
	provider   ports.Provider
	registry   *Registry
	builder    *PromptBuilder
	parser     *ActionParser
	tracer     ports.Tracer
	policy     Policy
	system     string
	guardrails *Guardrails
	metrics    *MetricsCollector
	logger     zerolog.Logger
}

// NewAgent creates an agent. A nil policy or tracer falls back to defaults.
func NewAgent(provider ports.Provider, registry *Registry, builder *PromptBuilder, parser *ActionParser, tracer ports.Tracer, policy *Policy) *Agent {
	if builder == nil {
		builder = NewPromptBuilder()
	}
	if parser == nil {
		parser = NewActionParser()
	}
	if tracer == nil {
		tracer = &noOpTracer{}
	}
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Agent{
		provider: provider,
		registry: registry,
		builder:  builder,
		parser:   parser,
		tracer:   tracer,
		policy:   *policy,
		system:   builder.SystemPrompt(registry),
		logger:   zerolog.Nop(),
	}
}

// WithGuardrails enables answer sanitization.
func (a *Agent) WithGuardrails(g *Guardrails) *Agent {
	a.guardrails = g
	return a
}

// WithMetrics attaches a collector shared with other agents.
func (a *Agent) WithMetrics(m *MetricsCollector) *Agent {
	a.metrics = m
	return a
}

// WithLogger sets the logger used for loop diagnostics.
func (a *Agent) WithLogger(logger zerolog.Logger) *Agent {
	a.logger = logger
	return a
}

// SystemPrompt returns the instructions this agent sends as turn 0.
func (a *Agent) SystemPrompt() string { return a.system }

// Explain runs the agent on a post and returns the answer text.
// A run that exhausts its budget returns ExhaustedMessage and a nil error.
func (a *Agent) Explain(ctx context.Context, content, url string) (string, error) {
	result, err := a.Run(ctx, Post{Content: content, URL: url})
	if err != nil {
		return "", err
	}
	return result.Answer, nil
}

// Run executes the loop until a final answer or the step budget.
//
// Parse failures, unknown tools and tool failures are fed back to the model as
// observations. Only provider failures and context cancellation end a run with
// an error; cancellation is checked between steps.
func (a *Agent) Run(ctx context.Context, post Post) (result *Result, err error) {
	runID := uuid.NewString()
	started := time.Now()
	maxSteps := a.policy.MaxSteps
	if maxSteps < 1 {
		maxSteps = DefaultMaxSteps
	}

	ctx, finish := a.tracer.StartSpan(ctx, ports.SpanAgentRun, map[string]any{
		"run_id":    runID,
		"max_steps": maxSteps,
		"post_url":  post.URL,
	})
	defer func() {
		finish(err)
		if a.metrics != nil {
			outcome, steps := OutcomeDone, 0
			if result != nil {
				outcome, steps = result.Outcome, result.Steps
			}
			a.metrics.RecordRun(outcome, steps, time.Since(started), err)
		}
	}()

	transcript := NewTranscript(a.system, a.builder.TaskPrompt(post))
	var specs []ports.ToolSpec
	if a.policy.NativeTools {
		specs = a.registry.Specs()
	}
	var usage ports.Usage

	for step := 1; step <= maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run %s cancelled before step %d: %w", runID, step, err)
		}

		completion, err := a.complete(ctx, transcript, specs, runID, step)
		if err != nil {
			return nil, fmt.Errorf("provider call failed at step %d: %w", step, err)
		}
		if completion.Usage != nil {
			usage.PromptTokens += completion.Usage.PromptTokens
			usage.CompletionTokens += completion.Usage.CompletionTokens
			usage.TotalTokens += completion.Usage.TotalTokens
		}

		action, text := a.decide(completion)
		if err := transcript.AppendAssistant(text); err != nil {
			return nil, err
		}
		a.logger.Debug().Str("run_id", runID).Int("step", step).Str("action", action.Kind.String()).Msg(text)

		var observation string
		switch action.Kind {
		case ActionFinalAnswer:
			answer := action.Answer
			if a.guardrails != nil {
				answer = a.guardrails.SanitizeOutput(answer)
			}
			a.tracer.Event(ctx, ports.EventFinalAnswer, map[string]any{"step": step, "chars": len(answer)})
			return &Result{
				RunID:      runID,
				Answer:     answer,
				Outcome:    OutcomeDone,
				Steps:      step,
				Transcript: transcript.Messages(),
				Usage:      usage,
			}, nil
		case ActionToolCall:
			observation = a.dispatch(ctx, action, step)
		default:
			observation = action.Reason
		}

		a.tracer.Event(ctx, ports.EventObservation, map[string]any{
			"step":        step,
			"tool":        action.Tool,
			"observation": truncate(observation, a.policy.ObservationLogs),
		})
		if err := transcript.AppendObservation(ObservationMarker + " " + observation); err != nil {
			return nil, err
		}
	}

	a.tracer.Event(ctx, ports.EventBudgetExhausted, map[string]any{"steps": maxSteps})
	return &Result{
		RunID:      runID,
		Answer:     ExhaustedMessage,
		Outcome:    OutcomeExhausted,
		Steps:      maxSteps,
		Transcript: transcript.Messages(),
		Usage:      usage,
	}, nil
}

func (a *Agent) complete(ctx context.Context, transcript *Transcript, specs []ports.ToolSpec, runID string, step int) (ports.Completion, error) {
	in := a.builder.Build(transcript, specs, map[string]string{
		"run_id": runID,
		"step":   fmt.Sprintf("%d", step),
	})
	opts := a.policy.Options
	opts.Stop = []string{ObservationMarker}
	if len(specs) > 0 && opts.ToolChoice == "" {
		opts.ToolChoice = "auto"
	}

	spanCtx, spanFinish := a.tracer.StartSpan(ctx, ports.SpanProviderCall, map[string]any{
		"step":     step,
		"messages": len(in.Messages),
	})
	completion, err := a.provider.Complete(spanCtx, in, opts)
	spanFinish(err)
	if a.metrics != nil {
		a.metrics.RecordProviderCall(completion.Usage, err)
	}
	return completion, err
}

// decide picks the action of one completion and the text recorded for it.
// A structured tool call is used when the text itself holds no final answer.
func (a *Agent) decide(completion ports.Completion) (ParsedAction, string) {
	text := strings.TrimSpace(completion.Text)
	if len(completion.ToolCalls) == 0 || strings.Contains(text, FinalAnswerMarker) {
		return a.parser.Parse(text), text
	}

	// Tools run one at a time; extra calls in the same completion are ignored.
	call := completion.ToolCalls[0]
	action := a.nativeAction(call)
	if action.Kind != ActionToolCall {
		return action, text
	}

	var rendered strings.Builder
	if text == "" || strings.Contains(text, ActionMarker) || strings.Contains(text, ActionInputMarker) {
		rendered.WriteString("Thought: I should use a tool.\n")
	} else {
		rendered.WriteString(text)
		rendered.WriteByte('\n')
	}
	fmt.Fprintf(&rendered, "%s %s\n%s %s", ActionMarker, call.Name, ActionInputMarker, strings.ReplaceAll(action.Input, "\n", " "))
	return action, rendered.String()
}

func (a *Agent) nativeAction(call ports.ToolCall) ParsedAction {
	args := map[string]any{}
	if len(call.Args) > 0 {
		if err := json.Unmarshal(call.Args, &args); err != nil {
			repaired, repairErr := jsonrepair.JSONRepair(string(call.Args))
			if repairErr != nil {
				return Malformed(fmt.Sprintf("Error parsing action: invalid arguments for %s: %v", call.Name, err))
			}
			if err := json.Unmarshal([]byte(repaired), &args); err != nil {
				return Malformed(fmt.Sprintf("Error parsing action: invalid arguments for %s: %v", call.Name, err))
			}
		}
	}

	key := InputKeyQuery
	if tool, ok := a.registry.Lookup(call.Name); ok {
		key = InputKeyFor(tool)
	}
	value, ok := args[key]
	if !ok && len(args) == 1 {
		for _, v := range args {
			value = v
		}
	}
	input := ""
	if value != nil {
		if s, isString := value.(string); isString {
			input = s
		} else {
			input = fmt.Sprint(value)
		}
	}
	return ToolCall(call.Name, input)
}

// dispatch runs a tool call and returns the observation text.
func (a *Agent) dispatch(ctx context.Context, action ParsedAction, step int) string {
	tool, ok := a.registry.Lookup(action.Tool)
	if !ok {
		return fmt.Sprintf("Error: Tool '%s' not found.", action.Tool)
	}

	spanCtx, spanFinish := a.tracer.StartSpan(ctx, ports.SpanToolCall, map[string]any{
		"step": step,
		"tool": action.Tool,
	})
	started := time.Now()
	output, err := invoke(spanCtx, tool, map[string]string{InputKeyFor(tool): action.Input})
	spanFinish(err)
	if a.metrics != nil {
		a.metrics.RecordToolCall(action.Tool, time.Since(started), err != nil)
	}

	if err != nil {
		return fmt.Sprintf("Error: tool '%s' failed: %v", action.Tool, err)
	}
	return output
}

// invoke shields the loop from tool panics.
func invoke(ctx context.Context, tool ports.Tool, args map[string]string) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return tool.Execute(ctx, args)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

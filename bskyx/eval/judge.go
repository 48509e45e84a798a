package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/bsky-explainer/bskyx/generation/harness"
	ports "github.com/ZanzyTHEbar/bsky-explainer/bskyx/generation/harness/ports"
)

// FetchedContentPlaceholder stands in for the original post when a case only has a URL.
const FetchedContentPlaceholder = "Content fetched from URL"

// JudgeSystemPrompt is the system turn of every judging request.
const JudgeSystemPrompt = "You are an evaluation judge."

// Score is the judge's verdict on one explanation.
type Score struct {
	Factuality int    `json:"factuality"`
	Utility    int    `json:"utility"`
	Reasoning  string `json:"reasoning"`
}

// FailedScore is recorded when the judge cannot produce a usable verdict.
var FailedScore = Score{Factuality: 0, Utility: 0, Reasoning: "Error in judging."}

const scoreSchema = `{
  "type": "object",
  "properties": {
    "factuality": {"type": "integer", "minimum": 1, "maximum": 5},
    "utility": {"type": "integer", "minimum": 1, "maximum": 5},
    "reasoning": {"type": "string"}
  },
  "required": ["factuality", "utility"]
}`

const judgeTemplate = `You are an impartial judge evaluating an AI agent's ability to explain social media posts.

Original Post: %s
Gold Standard Context: %s

Agent Explanation: %s

Evaluate the Agent Explanation on two metrics (1-5 scale):
1. Factuality: Is the information true and consistent with the Gold Standard?
2. Utility: Is the explanation helpful, clear, and does it provide necessary context?

Output valid JSON only:
{
    "factuality": <int>,
    "utility": <int>,
    "reasoning": "<short explanation>"
}`

// Judge scores agent explanations with an LLM.
type Judge struct {
	provider  ports.Provider
	name      string
	validator *harness.JSONValidator
	logger    zerolog.Logger
}

// NewJudge creates a judge backed by provider. name is the judging model, recorded in history.
func NewJudge(provider ports.Provider, name string, logger zerolog.Logger) *Judge {
	return &Judge{
		provider:  provider,
		name:      name,
		validator: harness.NewJSONValidator(),
		logger:    logger,
	}
}

func (j *Judge) model() string { return j.name }

// Score rates agentOutput against the gold standard. It never fails: any
// provider or decoding problem yields FailedScore.
func (j *Judge) Score(ctx context.Context, originalPost, goldStandard, agentOutput string) Score {
	completion, err := j.provider.Complete(ctx, ports.PromptInput{
		System: JudgeSystemPrompt,
		Messages: []ports.PromptMessage{
			{Role: ports.RoleUser, Content: fmt.Sprintf(judgeTemplate, originalPost, goldStandard, agentOutput)},
		},
	}, ports.Options{JSONMode: true})
	if err != nil {
		j.logger.Warn().Err(err).Msg("Judging error")
		return FailedScore
	}

	score, err := j.decode(completion.Text)
	if err != nil {
		j.logger.Warn().Err(err).Str("response", completion.Text).Msg("Judging error")
		return FailedScore
	}
	return score
}

func (j *Judge) decode(text string) (Score, error) {
	raw := strings.TrimSpace(text)
	if !json.Valid([]byte(raw)) {
		repaired, err := jsonrepair.JSONRepair(raw)
		if err != nil {
			return Score{}, fmt.Errorf("judge returned invalid JSON: %w", err)
		}
		raw = repaired
	}
	if err := j.validator.Validate(json.RawMessage(raw), []byte(scoreSchema)); err != nil {
		return Score{}, err
	}

	var score Score
	if err := json.Unmarshal([]byte(raw), &score); err != nil {
		return Score{}, err
	}
	return score, nil
}

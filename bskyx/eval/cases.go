// Package eval benchmarks the explainer agent against gold-standard cases
// with an LLM judge.
package eval

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ZanzyTHEbar/bsky-explainer/bskyx/generation/harness"
)

// Case is one benchmark post with its reference explanation.
type Case struct {
	ID           string `json:"id"`
	PostContent  string `json:"post_content,omitempty"`
	PostURL      string `json:"post_url"`
	GoldStandard string `json:"gold_standard"`
}

// Post returns the agent input of the case. Missing content leaves the agent to fetch it.
func (c Case) Post() harness.Post {
	return harness.Post{Content: c.PostContent, URL: c.PostURL}
}

// ErrInvalidCases is returned when a cases file does not match the expected shape.
var ErrInvalidCases = errors.New("invalid cases file")

const casesSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "id": {"type": "string", "minLength": 1},
      "post_content": {"type": "string"},
      "post_url": {"type": "string"},
      "gold_standard": {"type": "string", "minLength": 1}
    },
    "required": ["id", "gold_standard"],
    "anyOf": [
      {"required": ["post_content"]},
      {"required": ["post_url"]}
    ]
  }
}`

// LoadCases reads and validates a JSON array of cases.
func LoadCases(path string) ([]Case, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cases: %w", err)
	}
	return ParseCases(raw)
}

// ParseCases validates raw against the cases schema and decodes it.
func ParseCases(raw []byte) ([]Case, error) {
	if err := harness.NewJSONValidator().Validate(raw, []byte(casesSchema)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCases, err)
	}

	var cases []Case
	if err := json.Unmarshal(raw, &cases); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCases, err)
	}

	seen := make(map[string]struct{}, len(cases))
	for _, c := range cases {
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate case id %q", ErrInvalidCases, c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return cases, nil
}

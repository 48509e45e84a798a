package harness

import (
	"errors"
	"fmt"
	"strings"
)

// Markers of the ReAct response grammar.
const (
	FinalAnswerMarker = "Final Answer:"
	ActionMarker      = "Action:"
	ActionInputMarker = "Action Input:"
)

// MalformedMessage is fed back when a response contains neither an action nor a final answer.
const MalformedMessage = "I need to specify an Action and Action Input to use a tool, or provide a Final Answer."

// ActionKind tags the variant held by a ParsedAction.
type ActionKind int

const (
	ActionMalformed ActionKind = iota
	ActionFinalAnswer
	ActionToolCall
)

func (k ActionKind) String() string {
	switch k {
	case ActionFinalAnswer:
		return "final_answer"
	case ActionToolCall:
		return "tool_call"
	default:
		return "malformed"
	}
}

// ParsedAction is the decision extracted from one assistant turn.
type ParsedAction struct {
	Kind ActionKind

	Answer string // ActionFinalAnswer

	Tool  string // ActionToolCall, lower-cased
	Input string // ActionToolCall, first line only

	Reason string // ActionMalformed, text fed back to the model
}

// FinalAnswer builds a terminal action.
func FinalAnswer(text string) ParsedAction {
	return ParsedAction{Kind: ActionFinalAnswer, Answer: text}
}

// ToolCall builds a dispatch action.
func ToolCall(name, input string) ParsedAction {
	return ParsedAction{Kind: ActionToolCall, Tool: strings.ToLower(strings.TrimSpace(name)), Input: strings.TrimSpace(input)}
}

// Malformed builds a recoverable parse failure.
func Malformed(reason string) ParsedAction {
	return ParsedAction{Kind: ActionMalformed, Reason: reason}
}

// ActionParser extracts actions from free-form model text.
type ActionParser struct{}

// NewActionParser creates a parser for the ReAct grammar.
func NewActionParser() *ActionParser {
	return &ActionParser{}
}

// Parse never fails: anything it cannot understand becomes ActionMalformed.
//
// A final answer wins over any action in the same text. Otherwise the first
// line starting with "Action:" and the first line starting with "Action Input:"
// are used, wherever they are.
func (p *ActionParser) Parse(text string) ParsedAction {
	if idx := strings.Index(text, FinalAnswerMarker); idx >= 0 {
		return FinalAnswer(strings.TrimSpace(text[idx+len(FinalAnswerMarker):]))
	}

	if !strings.Contains(text, ActionMarker) || !strings.Contains(text, ActionInputMarker) {
		return Malformed(MalformedMessage)
	}

	lines := strings.Split(text, "\n")
	name, err := markerValue(lines, ActionMarker)
	if err != nil {
		return Malformed(fmt.Sprintf("Error parsing action: %v", err))
	}
	input, err := markerValue(lines, ActionInputMarker)
	if err != nil {
		return Malformed(fmt.Sprintf("Error parsing action: %v", err))
	}

	return ToolCall(name, input)
}

var errNoMarkerLine = errors.New("no line starts with marker")

// markerValue returns what follows marker on the first line that starts with it,
// up to a repeated marker on the same line.
func markerValue(lines []string, marker string) (string, error) {
	for _, line := range lines {
		if !strings.HasPrefix(line, marker) {
			continue
		}
		rest := line[len(marker):]
		if idx := strings.Index(rest, marker); idx >= 0 {
			rest = rest[:idx]
		}
		return strings.TrimSpace(rest), nil
	}
	return "", fmt.Errorf("%w %q", errNoMarkerLine, marker)
}

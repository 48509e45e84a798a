package harness

import (
	"errors"
	"fmt"

	ports "github.com/ZanzyTHEbar/bsky-explainer/bskyx/generation/harness/ports"
)

// ErrTranscriptOrder is returned when a turn would break the role sequence.
var ErrTranscriptOrder = errors.New("transcript turn out of order")

// Transcript is the conversation of a single agent run.
//
// Turn 0 is the system prompt and turn 1 the task. After that, assistant and
// user turns strictly alternate starting with the assistant.
type Transcript struct {
	turns []ports.PromptMessage
}

// NewTranscript seeds a transcript with the system prompt and the task.
func NewTranscript(system, task string) *Transcript {
	return &Transcript{
		turns: []ports.PromptMessage{
			{Role: ports.RoleSystem, Content: system},
			{Role: ports.RoleUser, Content: task},
		},
	}
}

// Append adds the next turn, rejecting any role other than the expected one.
func (t *Transcript) Append(role, content string) error {
	if want := t.nextRole(); role != want {
		return fmt.Errorf("%w: turn %d must be %q, got %q", ErrTranscriptOrder, len(t.turns), want, role)
	}
	t.turns = append(t.turns, ports.PromptMessage{Role: role, Content: content})
	return nil
}

// AppendAssistant is Append for model output.
func (t *Transcript) AppendAssistant(content string) error {
	return t.Append(ports.RoleAssistant, content)
}

// AppendObservation is Append for the user-role feedback turn.
func (t *Transcript) AppendObservation(content string) error {
	return t.Append(ports.RoleUser, content)
}

func (t *Transcript) nextRole() string {
	// turns 2, 4, 6... belong to the assistant
	if len(t.turns)%2 == 0 {
		return ports.RoleAssistant
	}
	return ports.RoleUser
}

// Messages returns a copy of the turns suitable for a provider request.
func (t *Transcript) Messages() []ports.PromptMessage {
	out := make([]ports.PromptMessage, len(t.turns))
	copy(out, t.turns)
	return out
}

// Len returns the number of turns.
func (t *Transcript) Len() int { return len(t.turns) }

// Last returns the most recent turn.
func (t *Transcript) Last() ports.PromptMessage { return t.turns[len(t.turns)-1] }

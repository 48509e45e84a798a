package harness

import (
	"fmt"
	"strings"

	ports "github.com/ZanzyTHEbar/bsky-explainer/bskyx/generation/harness/ports"
)

// ObservationMarker is the stop sequence that keeps the model from writing its own observations.
const ObservationMarker = "Observation:"

// Post is the subject of one explanation run.
type Post struct {
	Content string `json:"content"`
	URL     string `json:"url"`
}

// PromptBuilder renders the agent's system instructions and task turns.
type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder { return &PromptBuilder{} }

// SystemPrompt lists the registered tools and lays out the response grammar and decision protocol.
// The output depends only on the registry.
func (b *PromptBuilder) SystemPrompt(registry *Registry) string {
	var descriptions strings.Builder
	for i, tool := range registry.Tools() {
		if i > 0 {
			descriptions.WriteByte('\n')
		}
		fmt.Fprintf(&descriptions, "- %s: %s", tool.Name(), tool.Description())
	}

	quoted := make([]string, 0, len(registry.Names()))
	for _, name := range registry.Names() {
		quoted = append(quoted, fmt.Sprintf("%q", name))
	}

	return norm(fmt.Sprintf(systemTemplate, descriptions.String(), "["+strings.Join(quoted, ", ")+"]"))
}

// TaskPrompt renders the first user turn for a post.
func (b *PromptBuilder) TaskPrompt(post Post) string {
	return fmt.Sprintf("Please explain this Bluesky post:\nURL: %s\nContent: %s", post.URL, post.Content)
}

// Build turns a transcript into a provider request. Tool specs are attached only when given.
func (b *PromptBuilder) Build(transcript *Transcript, toolSpecs []ports.ToolSpec, meta map[string]string) ports.PromptInput {
	messages := transcript.Messages()
	for i := range messages {
		messages[i].Content = norm(messages[i].Content)
	}
	return ports.PromptInput{
		Messages: messages,
		Tools:    toolSpecs,
		Meta:     meta,
	}
}

// norm normalizes newlines and trims whitespace to reduce prompt diffs for caching.
func norm(s string) string { return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n")) }

const systemTemplate = `You are an advanced AI assistant designed to explain Bluesky posts, memes, and technical jargon to a general audience.
You have access to the following tools:

%s

You function as a ReAct (Reason + Act) agent. For each step, you must follow this format STRICTLY:

Thought: [Your reasoning about what information is missing or what to do next]
Action: [The name of the tool to use, e.g., 'search' or 'vision']
Action Input: [The input for the tool, e.g., a search query or image URL]

Then stop. Never write "Observation:" yourself; the observation is supplied to you after the tool runs.
Once you receive an Observation, you will repeat the cycle until you have enough information.
When you are ready to provide the final answer, use this format:

Thought: I have sufficient information.
Final Answer:
* [Point 1] (Source)
* [Point 2] (Source)
* ...

PROTOCOL (Prioritized Decision Tree):

1. **MISSING CONTENT CHECK**:
   - Is the post content missing but a URL is provided?
   - If YES: Use ` + "`bluesky_fetch`" + ` to retrieve the text.
   - Then proceed to Step 2 with the fetched text.

2. **CHECK FOR IMAGES (CONTEXT ASSEMBLY)**:
   - Does the post (or fetched content) contain an image URL?
   - If YES: **Use the ` + "`vision`" + ` tool immediately** to get a description.
   - Combine the Post Text + Image Description for the next steps.

3. **ANALYZE CONTENT SIMPLICITY**:
   - Is the combined context (Text + Image) strictly about simple, common knowledge?
   - If YES: **Do NOT search.** Provide a Final Answer immediately.
   - If NO: Proceed to step 4.

4. **CHECK FOR JARGON/MEMES**:
   - Does the post contain technical jargon, memes, or slang that isn't explained by the image?
   - If YES: Use the ` + "`search`" + ` tool to find definitions or origins.

5. **FINALIZE**:
   - Once you have enough context, provide the Final Answer.

RULES:
- "Action" must be one of %s.
- If no search results are found, try a different query.
- **Output the Final Answer as a list of bullet points.**
`

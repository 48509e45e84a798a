package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/bsky-explainer/bskyx/generation/harness"
	ports "github.com/ZanzyTHEbar/bsky-explainer/bskyx/generation/harness/ports"
)

// missingContent is sent in place of the post text when only a URL is given.
const missingContent = "Content not provided. Use the post URL to fetch it if needed."

type explainOptions struct {
	url      string
	content  string
	maxSteps int
	model    string
	json     bool
}

type explainOutput struct {
	URL     string          `json:"url"`
	Content string          `json:"content"`
	RunID   string          `json:"run_id"`
	Outcome harness.Outcome `json:"outcome"`
	Steps   int             `json:"steps"`
	Answer  string          `json:"answer"`
	Points  []harness.Point `json:"points"`
	Usage   ports.Usage     `json:"usage"`
}

func newExplainCommand(a *app) *cobra.Command {
	opts := &explainOptions{}
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Explain a Bluesky post",
		Example: `  bskyx explain --url https://bsky.app/profile/alice.bsky.social/post/3kabc
  bskyx explain --content "lol this is peak"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(cmd, a, opts)
		},
	}

	cmd.Flags().StringVar(&opts.url, "url", "", "URL of the Bluesky post to explain")
	cmd.Flags().StringVar(&opts.content, "content", "", "Content of the post (optional if URL provided, but helpful)")
	cmd.Flags().IntVar(&opts.maxSteps, "max-steps", 0, "Override the agent step budget")
	cmd.Flags().StringVar(&opts.model, "model", "", "Override the agent model")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the result as JSON")

	return cmd
}

func runExplain(cmd *cobra.Command, a *app, opts *explainOptions) error {
	out := cmd.OutOrStdout()

	if opts.url == "" && opts.content == "" {
		fmt.Fprintln(out, "Error: Please provide --url or --content.")
		return &exitError{code: 1}
	}

	content := opts.content
	if content == "" {
		content = missingContent
	}

	if !opts.json {
		fmt.Fprintf(out, "Initializing Bluesky Agent...\nURL: %s\nContent: %s\n\n", opts.url, content)
	}

	if err := a.cfg.Validate(); err != nil {
		fmt.Fprintf(out, "Error: %v.\n", err)
		return &exitError{code: 1}
	}

	cfg := *a.cfg
	if opts.maxSteps > 0 {
		cfg.Agent.MaxSteps = opts.maxSteps
	}
	model := cfg.LLM.Model
	if opts.model != "" {
		model = opts.model
	}

	factory := harness.NewFactory(&cfg, a.logger)
	registry, err := factory.CreateRegistry()
	if err != nil {
		return err
	}
	metrics := harness.NewMetricsCollector()
	agent := factory.CreateAgent(model, registry, metrics)

	result, err := agent.Run(cmd.Context(), harness.Post{Content: content, URL: opts.url})
	if err != nil {
		fmt.Fprintf(out, "An error occurred: %v\n", err)
		return &exitError{code: 1}
	}

	summary := metrics.GetSummary()
	a.logger.Debug().
		Str("run_id", result.RunID).
		Int("steps", result.Steps).
		Int64("provider_calls", summary.ProviderCalls).
		Int64("total_tokens", summary.TotalTokens).
		Msg("Run finished")

	if opts.json {
		return writeJSON(out, explainOutput{
			URL:     opts.url,
			Content: content,
			RunID:   result.RunID,
			Outcome: result.Outcome,
			Steps:   result.Steps,
			Answer:  result.Answer,
			Points:  harness.ParseExplanation(result.Answer).Points,
			Usage:   result.Usage,
		})
	}

	fmt.Fprint(out, "\n=== Agent Explanation ===\n\n")
	fmt.Fprintln(out, renderMarkdown(out, result.Answer))
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

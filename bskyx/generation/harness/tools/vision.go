package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	ports "github.com/ZanzyTHEbar/bsky-explainer/bskyx/generation/harness/ports"
)

const (
	VisionToolName        = "vision"
	visionToolDescription = "Useful for describing the content of an image from a URL. Input should be the image URL."
	// VisionPrompt is the instruction sent alongside the image.
	VisionPrompt           = "Describe this image in detail. Identify any text, memes, objects, or context relevant to social media."
	defaultVisionMaxTokens = 300
)

// ProviderFactory builds a provider for a single request.
type ProviderFactory func() (ports.Provider, error)

// VisionTool describes images with a multimodal model.
type VisionTool struct {
	newProvider ProviderFactory
	maxTokens   int
}

// NewVisionTool creates a vision tool. newProvider is called on every invocation.
func NewVisionTool(newProvider ProviderFactory, maxTokens int) *VisionTool {
	if maxTokens <= 0 {
		maxTokens = defaultVisionMaxTokens
	}
	return &VisionTool{newProvider: newProvider, maxTokens: maxTokens}
}

func (t *VisionTool) Name() string        { return VisionToolName }
func (t *VisionTool) Description() string { return visionToolDescription }
func (t *VisionTool) InputKey() string    { return "image_url" }

// Execute asks the model to describe the image at image_url.
func (t *VisionTool) Execute(ctx context.Context, args map[string]string) (string, error) {
	description, err := t.describe(ctx, strings.TrimSpace(args["image_url"]))
	if err != nil {
		return fmt.Sprintf("Error analyzing image: %v", err), nil
	}
	return description, nil
}

func (t *VisionTool) describe(ctx context.Context, imageURL string) (string, error) {
	if imageURL == "" {
		return "", errors.New("missing image URL")
	}
	provider, err := t.newProvider()
	if err != nil {
		return "", err
	}

	completion, err := provider.Complete(ctx, ports.PromptInput{
		Messages: []ports.PromptMessage{{
			Role:      ports.RoleUser,
			Content:   VisionPrompt,
			ImageURLs: []string{imageURL},
		}},
	}, ports.Options{MaxNewTokens: t.maxTokens})
	if err != nil {
		return "", err
	}
	return completion.Text, nil
}

var _ ports.Tool = (*VisionTool)(nil)

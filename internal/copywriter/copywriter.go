// Package copywriter generates marketing copy (slogan and short description)
// for a deal's main product using the text-generation provider.
package copywriter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"salesops_backend/platform/apperr"
	"salesops_backend/platform/config"

	"google.golang.org/genai"
)

// Copy is the generated marketing content for one product.
type Copy struct {
	Slogan      string `json:"slogan"`
	Description string `json:"description"`
}

// Generator requests structured marketing copy from the model.
type Generator struct {
	client *genai.Client
	model  string
}

// NewGenerator creates a copy generator from configuration.
func NewGenerator(ctx context.Context, cfg config.CopywriterConfig) (*Generator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GetGenAIAPIKey(),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Generator{
		client: client,
		model:  cfg.GetCopywriterModel(),
	}, nil
}

const systemPrompt = `You write concise HVAC marketing copy for quote pages.
Given a product name and its technical description, respond with JSON only:
{"slogan": "<one punchy sentence, max 90 characters>",
 "description": "<two or three plain sentences for a homeowner, no jargon>"}`

// Describe generates a slogan and short description for the product. Both
// fields are required; a response missing either fails with a validation
// error so the saga never publishes partial content.
func (g *Generator) Describe(ctx context.Context, productName, productDescription string) (*Copy, error) {
	prompt := fmt.Sprintf("%s\n\nProduct name: %s\n\nTechnical description:\n%s",
		systemPrompt, productName, productDescription)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, apperr.Upstream("marketing copy generation failed", err)
	}

	return parseCopy(resp.Text())
}

func parseCopy(raw string) (*Copy, error) {
	raw = strings.TrimSpace(raw)
	// Some models wrap JSON in a code fence despite the response MIME type.
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var out Copy
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &out); err != nil {
		return nil, apperr.Upstream("marketing copy response was not valid JSON", err)
	}

	out.Slogan = strings.TrimSpace(out.Slogan)
	out.Description = strings.TrimSpace(out.Description)
	if out.Slogan == "" {
		return nil, apperr.Validation("the generator returned no slogan; please try a different product")
	}
	if out.Description == "" {
		return nil, apperr.Validation("the generator returned no description; please try a different product")
	}
	return &out, nil
}

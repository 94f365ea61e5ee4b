package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"syncnexus/internal/infra/config"
	"syncnexus/internal/infra/fault"
)

// Gemini is the streaming backend. The API does not meter per call here, so
// every successful call is charged a fixed estimate.
type Gemini struct {
	config config.GeminiConfig

	once   sync.Once
	client *genai.Client
	err    error
}

// NewGemini creates a streaming backend. The SDK client is built on first use.
func NewGemini(cfg config.GeminiConfig) *Gemini {
	return &Gemini{config: cfg}
}

// Name returns the provider name.
func (g *Gemini) Name() string {
	return config.ProviderGemini
}

func (g *Gemini) sdk(ctx context.Context) (*genai.Client, error) {
	g.once.Do(func() {
		g.client, g.err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.config.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	return g.client, g.err
}

// Generate streams a response and concatenates the chunks.
func (g *Gemini) Generate(ctx context.Context, req Request) (string, Usage, error) {
	const op = "llm.gemini"

	client, err := g.sdk(ctx)
	if err != nil {
		return "", Usage{}, fault.Wrap(fault.KindModel, op, fmt.Errorf("failed to create GenAI client: %w", err))
	}

	genCfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		genCfg.ResponseMIMEType = "application/json"
	}

	contents := []*genai.Content{
		genai.NewContentFromText(req.Prompt, genai.RoleUser),
	}

	var sb strings.Builder
	for resp, err := range client.Models.GenerateContentStream(ctx, g.config.Model, contents, genCfg) {
		if err != nil {
			return "", Usage{}, fault.Wrap(fault.KindModel, op, fmt.Errorf("GenAI stream failed: %w", err))
		}
		sb.WriteString(resp.Text())
	}

	return sb.String(), streamUsage(g.config, req, sb.String()), nil
}

// streamUsage is what one streamed call is charged: the configured constant,
// or an estimate from the text lengths when none is configured.
func streamUsage(cfg config.GeminiConfig, req Request, out string) Usage {
	tokens := cfg.TokensPerCall
	if tokens <= 0 {
		tokens = EstimateRequestTokens(req) + EstimateTokens(out)
	}
	return Usage{Tokens: tokens, Cost: cfg.CostPerCall}
}

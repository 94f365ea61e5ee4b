package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"

	"syncnexus/internal/infra/config"
	"syncnexus/internal/infra/fault"
)

// OpenAI is the token-metered chat-completion backend.
type OpenAI struct {
	client *openai.Client
	config config.OpenAIConfig
}

// NewOpenAI creates a chat-completion backend.
func NewOpenAI(cfg config.OpenAIConfig) *OpenAI {
	opts := []option.RequestOption{
		// Failed model calls are never retried automatically.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}

	cl := openai.NewClient(opts...)
	return &OpenAI{
		client: &cl,
		config: cfg,
	}
}

// Name returns the provider name.
func (o *OpenAI) Name() string {
	return config.ProviderOpenAI
}

// Generate sends a chat completion request and meters it by total tokens.
func (o *OpenAI) Generate(ctx context.Context, req Request) (string, Usage, error) {
	const op = "llm.openai"

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessageParamUnion{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Role:    constant.System(RoleSystem),
				Content: openai.ChatCompletionSystemMessageParamContentUnion{OfString: openai.String(req.System)},
			},
		})
	}
	messages = append(messages, openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Role:    constant.User(RoleUser),
			Content: openai.ChatCompletionUserMessageParamContentUnion{OfString: openai.String(req.Prompt)},
		},
	})

	params := openai.ChatCompletionNewParams{
		Messages: messages,
		Model:    shared.ChatModel(o.config.Model),
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{
				Type: constant.JSONObject("json_object"),
			},
		}
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", Usage{}, fault.Newf(fault.KindModel, op, "api error (status %d): %s", apiErr.StatusCode, apiErr.Message)
		}
		return "", Usage{}, fault.Wrap(fault.KindModel, op, fmt.Errorf("create completion: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", Usage{}, fault.Newf(fault.KindModel, op, "no choices returned")
	}

	tokens := int(resp.Usage.TotalTokens)
	usage := Usage{
		Tokens: tokens,
		Cost:   float64(tokens) / 1000 * o.config.CostPer1KTokens,
	}
	return resp.Choices[0].Message.Content, usage, nil
}

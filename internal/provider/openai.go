package provider

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI implements Provider for OpenAI and OpenAI-compatible endpoints.
type OpenAI struct {
	client *openai.Client
	name   string
}

// NewOpenAI creates an OpenAI provider with the given API key.
func NewOpenAI(apiKey string) *OpenAI {
	return &OpenAI{
		client: openai.NewClient(apiKey),
		name:   "openai",
	}
}

// NewOpenAICompatible creates a provider for an OpenAI-compatible endpoint.
// baseURL is the full API root including any version path.
func NewOpenAICompatible(name, apiKey, baseURL string) *OpenAI {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL
	return &OpenAI{
		client: openai.NewClientWithConfig(config),
		name:   name,
	}
}

// Name returns the provider identifier.
func (p *OpenAI) Name() string {
	return p.name
}

// Complete sends a chat completion request.
func (p *OpenAI) Complete(ctx context.Context, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutCall)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%s api call: %w", p.name, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s api call: no choices returned", p.name)
	}

	return &Response{
		Content:      resp.Choices[0].Message.Content,
		StopReason:   string(resp.Choices[0].FinishReason),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

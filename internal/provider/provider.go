// Package provider backs relay participants with chat completion APIs.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// timeoutCall bounds a single completion request.
const timeoutCall = 60 * time.Second

// Message roles on the wire.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrUnknownProvider is returned for provider names New does not recognize.
var ErrUnknownProvider = errors.New("unknown provider")

// Provider generates one reply given the conversation so far.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// Request is a single completion call.
type Request struct {
	Model     string
	System    string
	Messages  []Message
	MaxTokens int
}

// Message is one prior exchange in the conversation.
type Message struct {
	Role    string
	Content string
}

// Response is the model's reply.
type Response struct {
	Content      string
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// New builds a provider by name. xai and openrouter expose OpenAI-compatible
// endpoints and are reached through the same client.
func New(name, apiKey string) (Provider, error) {
	switch name {
	case "anthropic":
		return NewAnthropic(apiKey), nil
	case "openai":
		return NewOpenAI(apiKey), nil
	case "xai":
		return NewOpenAICompatible("xai", apiKey, "https://api.x.ai/v1"), nil
	case "openrouter":
		return NewOpenAICompatible("openrouter", apiKey, "https://openrouter.ai/api/v1"), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
}

// DefaultKeyEnv names the environment variable a provider's API key is
// conventionally read from.
func DefaultKeyEnv(name string) string {
	switch name {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "xai":
		return "XAI_API_KEY"
	case "openrouter":
		return "OPENROUTER_API_KEY"
	}
	return ""
}

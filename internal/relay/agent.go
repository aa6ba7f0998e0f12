package relay

import (
	"context"
	"fmt"
	"strings"

	"github.com/starfall-labs/relay-memory/internal/provider"
)

// ParticipantAgent backs a session participant with a completion provider.
type ParticipantAgent struct {
	name      string
	scope     string
	persona   string
	model     string
	maxTokens int
	provider  provider.Provider
}

// NewParticipantAgent builds an agent that answers as name using the given
// provider and model. maxTokens caps each reply; zero or negative falls back
// to 1024.
func NewParticipantAgent(name, scope, persona, model string, maxTokens int, p provider.Provider) *ParticipantAgent {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &ParticipantAgent{
		name:      name,
		scope:     scope,
		persona:   persona,
		model:     model,
		maxTokens: maxTokens,
		provider:  p,
	}
}

func (a *ParticipantAgent) Name() string  { return a.name }
func (a *ParticipantAgent) Scope() string { return a.scope }

// Respond turns the session history into a chat completion. The agent's own
// turns become assistant messages; everyone else's become user messages
// prefixed with the speaker's name.
func (a *ParticipantAgent) Respond(ctx context.Context, history []Message, system string) (string, error) {
	msgs := make([]provider.Message, 0, len(history)+1)
	for _, m := range history {
		if m.Speaker == a.name {
			msgs = append(msgs, provider.Message{Role: provider.RoleAssistant, Content: m.Content})
		} else {
			msgs = append(msgs, provider.Message{
				Role:    provider.RoleUser,
				Content: fmt.Sprintf("%s: %s", m.Speaker, m.Content),
			})
		}
	}
	msgs = mergeRoles(msgs)

	// Completion APIs expect the conversation to open with a user turn.
	if len(msgs) == 0 || msgs[0].Role != provider.RoleUser {
		msgs = append([]provider.Message{{Role: provider.RoleUser, Content: "Begin the conversation."}}, msgs...)
	}

	sys := a.persona
	if system != "" {
		if sys != "" {
			sys += "\n\n"
		}
		sys += system
	}

	resp, err := a.provider.Complete(ctx, &provider.Request{
		Model:     a.model,
		System:    sys,
		Messages:  msgs,
		MaxTokens: a.maxTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// mergeRoles folds consecutive same-role messages into one. With more than
// two participants, back-to-back turns by others would otherwise produce
// adjacent user messages, which completion APIs reject.
func mergeRoles(msgs []provider.Message) []provider.Message {
	if len(msgs) < 2 {
		return msgs
	}
	merged := msgs[:1]
	for _, m := range msgs[1:] {
		last := &merged[len(merged)-1]
		if m.Role == last.Role {
			last.Content += "\n\n" + m.Content
			continue
		}
		merged = append(merged, m)
	}
	return merged
}

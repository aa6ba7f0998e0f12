package relay

import (
	"fmt"
	"os"

	"github.com/starfall-labs/relay-memory/internal/hydrate"
	"github.com/starfall-labs/relay-memory/internal/policy"
	"github.com/starfall-labs/relay-memory/internal/provider"
)

// retryAttempts bounds provider retries beyond the first call.
const retryAttempts = 4

// FromSession wires a relay from a parsed session file. API keys are
// resolved from the participant's api_key_env or the provider's
// conventional variable; a missing key fails construction, not the run.
func FromSession(sess *policy.Session, st Store, eng *hydrate.Engine, opts ...Option) (*Relay, error) {
	agents := make([]Agent, 0, len(sess.Participants))
	identities := make(map[string]string)

	for _, p := range sess.Participants {
		keyEnv := p.APIKeyEnv
		if keyEnv == "" {
			keyEnv = provider.DefaultKeyEnv(p.Provider)
		}
		key := os.Getenv(keyEnv)
		if key == "" {
			return nil, fmt.Errorf("participant %s: %s is not set", p.Name, keyEnv)
		}

		prov, err := provider.New(p.Provider, key)
		if err != nil {
			return nil, fmt.Errorf("participant %s: %w", p.Name, err)
		}

		agents = append(agents, NewParticipantAgent(
			p.Name, p.Scope, p.Persona, p.Model, sess.MaxTokens,
			provider.WithRetry(prov, retryAttempts),
		))
		if p.Identity != "" {
			identities[p.Name] = p.Identity
		}
	}

	base := []Option{
		WithMaxExchanges(sess.MaxExchanges),
		WithPace(sess.PaceEvery),
		WithIdentities(identities),
		WithSessionName(sess.Name),
	}
	return New(st, eng, agents, append(base, opts...)...), nil
}

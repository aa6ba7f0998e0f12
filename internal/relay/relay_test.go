package relay

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starfall-labs/relay-memory/internal/extract"
	"github.com/starfall-labs/relay-memory/internal/model"
	"github.com/starfall-labs/relay-memory/internal/policy"
	"github.com/starfall-labs/relay-memory/internal/provider"
)

type memStore struct {
	entry   *model.ArchiveEntry
	turns   []model.Turn
	sealed  bool
	summary string
	topic   string
}

func (m *memStore) OpenEntry(_ context.Context, participants []string) (*model.ArchiveEntry, error) {
	m.entry = &model.ArchiveEntry{ID: "conv_test", Participants: participants, OpenedAt: time.Now().UTC()}
	return m.entry, nil
}

func (m *memStore) AppendTurn(_ context.Context, entryID, speaker, content string) (*model.Turn, error) {
	t := model.Turn{EntryID: entryID, Seq: len(m.turns) + 1, Speaker: speaker, Content: content}
	m.turns = append(m.turns, t)
	return &t, nil
}

func (m *memStore) SealEntry(_ context.Context, _ string) (*model.ArchiveEntry, error) {
	m.sealed = true
	now := time.Now().UTC()
	m.entry.SealedAt = &now
	return m.entry, nil
}

func (m *memStore) AnnotateEntry(_ context.Context, _, summary, topic string, _ []string) error {
	m.summary, m.topic = summary, topic
	return nil
}

type scriptedAgent struct {
	name    string
	reply   string
	err     error
	respond func(ctx context.Context, history []Message) (string, error)
	calls   int
}

func (a *scriptedAgent) Name() string  { return a.name }
func (a *scriptedAgent) Scope() string { return strings.ToLower(a.name) }

func (a *scriptedAgent) Respond(ctx context.Context, history []Message, _ string) (string, error) {
	a.calls++
	if a.respond != nil {
		return a.respond(ctx, history)
	}
	if a.err != nil {
		return "", a.err
	}
	return a.reply, nil
}

type fakeExtractor struct {
	params extract.Params
	err    error
}

func (f *fakeExtractor) ExtractSession(_ context.Context, p extract.Params) (*extract.Report, error) {
	f.params = p
	if f.err != nil {
		return nil, f.err
	}
	return &extract.Report{EntryID: p.EntryID, Records: 7}, nil
}

func TestRunArchivesEveryTurn(t *testing.T) {
	st := &memStore{}
	alice := &scriptedAgent{name: "alice", reply: "the beds are ready"}
	bob := &scriptedAgent{name: "bob", reply: "then let's plant"}

	var emitted []Message
	r := New(st, nil, []Agent{alice, bob},
		WithMaxExchanges(1),
		WithSessionName("garden-club"),
		WithOnMessage(func(m Message) { emitted = append(emitted, m) }),
	)

	res, err := r.Run(context.Background(), "Shall we start?")
	require.NoError(t, err)

	assert.Equal(t, "conv_test", res.EntryID)
	assert.Equal(t, 3, res.Turns)
	assert.False(t, res.Cancelled)

	require.Len(t, st.turns, 3)
	assert.Equal(t, "moderator", st.turns[0].Speaker)
	assert.Equal(t, "Shall we start?", st.turns[0].Content)
	assert.Equal(t, "alice", st.turns[1].Speaker)
	assert.Equal(t, "bob", st.turns[2].Speaker)

	// Every archived turn is also emitted, in order
	require.Len(t, emitted, 3)
	assert.Equal(t, "moderator", emitted[0].Speaker)
	assert.Equal(t, "bob", emitted[2].Speaker)

	assert.True(t, st.sealed)
	assert.Equal(t, "3 turns between alice, bob", st.summary)
	assert.Equal(t, "garden-club", st.topic)
}

func TestRunSkipsEmptyReplies(t *testing.T) {
	st := &memStore{}
	alice := &scriptedAgent{name: "alice", reply: "something"}
	bob := &scriptedAgent{name: "bob", reply: "   "}

	r := New(st, nil, []Agent{alice, bob}, WithMaxExchanges(2))
	res, err := r.Run(context.Background(), "")
	require.NoError(t, err)

	// bob was asked twice but contributed nothing
	assert.Equal(t, 2, bob.calls)
	assert.Equal(t, 2, res.Turns)
	for _, turn := range st.turns {
		assert.Equal(t, "alice", turn.Speaker)
	}
}

func TestRunHonorsMaxExchanges(t *testing.T) {
	st := &memStore{}
	alice := &scriptedAgent{name: "alice", reply: "more"}
	bob := &scriptedAgent{name: "bob", reply: "again"}

	r := New(st, nil, []Agent{alice, bob}, WithMaxExchanges(3))
	res, err := r.Run(context.Background(), "go")
	require.NoError(t, err)

	assert.Equal(t, 3, alice.calls)
	assert.Equal(t, 3, bob.calls)
	assert.Equal(t, 7, res.Turns)
}

func TestRunCancelledSessionStillSeals(t *testing.T) {
	st := &memStore{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice := &scriptedAgent{name: "alice", respond: func(context.Context, []Message) (string, error) {
		cancel()
		return "parting words", nil
	}}
	bob := &scriptedAgent{name: "bob", reply: "never spoken"}

	r := New(st, nil, []Agent{alice, bob}, WithMaxExchanges(5))
	res, err := r.Run(ctx, "begin")
	require.NoError(t, err)

	assert.True(t, res.Cancelled)
	assert.Equal(t, 2, res.Turns)
	assert.Zero(t, bob.calls)

	// The partial archive survives and is sealed
	assert.True(t, st.sealed)
	require.Len(t, st.turns, 2)
	assert.Equal(t, "parting words", st.turns[1].Content)
}

func TestRunAgentFailureNamesTheAgent(t *testing.T) {
	st := &memStore{}
	alice := &scriptedAgent{name: "alice", reply: "hello"}
	bob := &scriptedAgent{name: "bob", err: errors.New("model overloaded")}

	r := New(st, nil, []Agent{alice, bob}, WithMaxExchanges(3))
	res, err := r.Run(context.Background(), "go")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bob: model overloaded")

	// The result still points at the sealed partial entry
	assert.Equal(t, "conv_test", res.EntryID)
	assert.True(t, st.sealed)
}

func TestRunExtractsAfterSeal(t *testing.T) {
	st := &memStore{}
	x := &fakeExtractor{}
	alice := &scriptedAgent{name: "alice", reply: "hi"}
	bob := &scriptedAgent{name: "bob", reply: "hello"}

	r := New(st, nil, []Agent{alice, bob},
		WithMaxExchanges(1),
		WithExtractor(x),
		WithIdentities(map[string]string{"alice": "alice-prime"}),
	)
	res, err := r.Run(context.Background(), "go")
	require.NoError(t, err)

	require.NotNil(t, res.Extract)
	assert.Equal(t, 7, res.Extract.Records)
	assert.Equal(t, "conv_test", x.params.EntryID)
	assert.Equal(t, "alice-prime", x.params.Identities["alice"])
}

func TestRunExtractionFailureDoesNotFailTheSession(t *testing.T) {
	st := &memStore{}
	x := &fakeExtractor{err: errors.New("distillation broke")}
	alice := &scriptedAgent{name: "alice", reply: "hi"}
	bob := &scriptedAgent{name: "bob", reply: "hello"}

	r := New(st, nil, []Agent{alice, bob}, WithMaxExchanges(1), WithExtractor(x))
	res, err := r.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Nil(t, res.Extract)
	assert.True(t, st.sealed)
}

type captureProvider struct {
	req   *provider.Request
	reply string
}

func (c *captureProvider) Name() string { return "capture" }

func (c *captureProvider) Complete(_ context.Context, req *provider.Request) (*provider.Response, error) {
	c.req = req
	return &provider.Response{Content: c.reply, StopReason: "end_turn"}, nil
}

func TestRespondMapsHistoryToRoles(t *testing.T) {
	cp := &captureProvider{reply: "  sure  "}
	a := NewParticipantAgent("alice", "alice", "Be concise.", "model-x", 0, cp)

	history := []Message{
		{Speaker: "moderator", Content: "hi"},
		{Speaker: "alice", Content: "yo"},
		{Speaker: "bob", Content: "hey"},
	}
	reply, err := a.Respond(context.Background(), history, "=== Context ===")
	require.NoError(t, err)
	assert.Equal(t, "sure", reply)

	require.Len(t, cp.req.Messages, 3)
	assert.Equal(t, provider.RoleUser, cp.req.Messages[0].Role)
	assert.Equal(t, "moderator: hi", cp.req.Messages[0].Content)
	assert.Equal(t, provider.RoleAssistant, cp.req.Messages[1].Role)
	assert.Equal(t, "yo", cp.req.Messages[1].Content)
	assert.Equal(t, "bob: hey", cp.req.Messages[2].Content)

	assert.Equal(t, "Be concise.\n\n=== Context ===", cp.req.System)
	assert.Equal(t, 1024, cp.req.MaxTokens)
	assert.Equal(t, "model-x", cp.req.Model)
}

func TestRespondMergesAdjacentSameRoleTurns(t *testing.T) {
	cp := &captureProvider{reply: "ok"}
	a := NewParticipantAgent("alice", "alice", "", "model-x", 0, cp)

	history := []Message{
		{Speaker: "bob", Content: "first"},
		{Speaker: "carol", Content: "second"},
	}
	_, err := a.Respond(context.Background(), history, "")
	require.NoError(t, err)

	require.Len(t, cp.req.Messages, 1)
	assert.Equal(t, provider.RoleUser, cp.req.Messages[0].Role)
	assert.Equal(t, "bob: first\n\ncarol: second", cp.req.Messages[0].Content)
}

func TestRespondOpensWithUserTurn(t *testing.T) {
	cp := &captureProvider{reply: "ok"}
	a := NewParticipantAgent("alice", "alice", "", "model-x", 0, cp)

	// The agent spoke first, so its own turn leads the history
	history := []Message{{Speaker: "alice", Content: "earlier"}}
	_, err := a.Respond(context.Background(), history, "")
	require.NoError(t, err)

	require.Len(t, cp.req.Messages, 2)
	assert.Equal(t, provider.RoleUser, cp.req.Messages[0].Role)
	assert.Equal(t, "Begin the conversation.", cp.req.Messages[0].Content)
	assert.Equal(t, provider.RoleAssistant, cp.req.Messages[1].Role)

	// Empty history also opens with a user turn
	_, err = a.Respond(context.Background(), nil, "")
	require.NoError(t, err)
	require.Len(t, cp.req.Messages, 1)
	assert.Equal(t, provider.RoleUser, cp.req.Messages[0].Role)
}

func TestRespondUsesConfiguredMaxTokens(t *testing.T) {
	cp := &captureProvider{reply: "ok"}
	a := NewParticipantAgent("alice", "alice", "", "model-x", 2048, cp)

	_, err := a.Respond(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Equal(t, 2048, cp.req.MaxTokens)
}

func TestFromSession(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key-a")
	t.Setenv("OPENAI_API_KEY", "test-key-b")

	sess := &policy.Session{
		Name:         "garden-club",
		MaxExchanges: 4,
		MaxTokens:    2048,
		Participants: []policy.Participant{
			{Name: "Alice", Provider: "anthropic", Model: "claude-sonnet-4-5", Scope: "alice", Identity: "alice-prime"},
			{Name: "Bob", Provider: "openai", Model: "gpt-4o", Scope: "bob"},
		},
	}
	r, err := FromSession(sess, &memStore{}, nil)
	require.NoError(t, err)

	assert.Len(t, r.agents, 2)
	assert.Equal(t, "Alice", r.agents[0].Name())
	assert.Equal(t, "alice", r.agents[0].Scope())
	assert.Equal(t, 4, r.maxExchanges)
	assert.Equal(t, "garden-club", r.sessionName)
	assert.Equal(t, "alice-prime", r.identities["Alice"])
}

func TestFromSessionMissingKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	sess := &policy.Session{
		Name: "chat",
		Participants: []policy.Participant{
			{Name: "Alice", Provider: "anthropic", Model: "claude-sonnet-4-5", Scope: "alice"},
			{Name: "Bob", Provider: "openai", Model: "gpt-4o", Scope: "bob"},
		},
	}
	_, err := FromSession(sess, &memStore{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY is not set")
}

func TestFromSessionCustomKeyEnv(t *testing.T) {
	t.Setenv("MY_SPECIAL_KEY", "abc")
	t.Setenv("OPENAI_API_KEY", "test-key-b")

	sess := &policy.Session{
		Name: "chat",
		Participants: []policy.Participant{
			{Name: "Alice", Provider: "anthropic", Model: "claude-sonnet-4-5", Scope: "alice", APIKeyEnv: "MY_SPECIAL_KEY"},
			{Name: "Bob", Provider: "openai", Model: "gpt-4o", Scope: "bob"},
		},
	}
	_, err := FromSession(sess, &memStore{}, nil)
	require.NoError(t, err)
}

package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
	statex "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/state"
	anthropicx "github.com/tanpawarit/omnichannel-retail-orchestrator/pkg/anthropic"
	openrouterx "github.com/tanpawarit/omnichannel-retail-orchestrator/pkg/openrouter"
)

type fakeReasoner struct {
	reply string
	err   error
	calls int
}

func (f *fakeReasoner) Compose(context.Context, contractx.ReasoningRequest) (string, error) {
	f.calls++
	return f.reply, f.err
}

type fakeChatModel struct {
	reply string
	seen  []*schema.Message
}

func (m *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.seen = input
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

func TestResolveProvider(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		provider  string
		anthropic bool
		router    bool
		want      string
	}{
		{name: "auto prefers anthropic", provider: "auto", anthropic: true, router: true, want: ProviderAnthropic},
		{name: "auto uses openrouter", provider: "", router: true, want: ProviderOpenRouter},
		{name: "auto without keys", provider: "auto", want: ProviderOffline},
		{name: "explicit wins", provider: "OpenAI", anthropic: true, want: ProviderOpenAI},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Config{Provider: tc.provider}.resolveProvider(tc.anthropic, tc.router)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestConfigValidateRejectsUnknownProvider(t *testing.T) {
	t.Parallel()

	err := Config{Provider: "gemini"}.Validate()
	require.ErrorIs(t, err, contractx.ErrValidation)
}

func TestNewWithoutKeysIsOffline(t *testing.T) {
	t.Parallel()

	r, err := New(context.Background(), Config{Provider: ProviderAuto, Fallback: true}, openrouterx.Config{}, anthropicx.Config{})
	require.NoError(t, err)
	assert.IsType(t, &OfflineReasoner{}, r)
}

func TestNewExplicitProviderNeedsKey(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Provider: ProviderAnthropic}, openrouterx.Config{}, anthropicx.Config{})
	require.ErrorIs(t, err, contractx.ErrValidation)
}

func TestRenderInput(t *testing.T) {
	t.Parallel()

	got := renderInput(contractx.ReasoningRequest{
		Message: "  can I return this?  ",
		History: []statex.Turn{{Role: statex.RoleCustomer, Channel: statex.ChannelMobile, Text: "hi"}},
		Facts:   []string{"Returns are accepted within 30 days"},
	})

	assert.Contains(t, got, "- customer (mobile): hi")
	assert.Contains(t, got, "- Returns are accepted within 30 days")
	assert.True(t, strings.HasSuffix(got, "Customer message: can I return this?"))
}

func TestOfflineReasonerJoinsFacts(t *testing.T) {
	t.Parallel()

	got, err := NewOfflineReasoner().Compose(context.Background(), contractx.ReasoningRequest{
		Facts: []string{"Your cart has 2 items", "", "Pickup is ready today!"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Your cart has 2 items. Pickup is ready today!", got)
}

func TestOfflineReasonerWithoutFacts(t *testing.T) {
	t.Parallel()

	got, err := NewOfflineReasoner().Compose(context.Background(), contractx.ReasoningRequest{})
	require.NoError(t, err)
	assert.Contains(t, got, "returns")
}

func TestFallbackReasoner(t *testing.T) {
	t.Parallel()

	t.Run("primary succeeds", func(t *testing.T) {
		t.Parallel()
		primary := &fakeReasoner{reply: "from model"}
		backup := &fakeReasoner{reply: "offline"}

		got, err := NewFallbackReasoner(primary, backup).Compose(context.Background(), contractx.ReasoningRequest{})
		require.NoError(t, err)
		assert.Equal(t, "from model", got)
		assert.Equal(t, 0, backup.calls)
	})

	t.Run("primary fails", func(t *testing.T) {
		t.Parallel()
		primary := &fakeReasoner{err: contractx.ErrModelInvoke}
		backup := &fakeReasoner{reply: "offline"}

		got, err := NewFallbackReasoner(primary, backup).Compose(context.Background(), contractx.ReasoningRequest{})
		require.NoError(t, err)
		assert.Equal(t, "offline", got)
	})

	t.Run("cancelled context is not masked", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
		defer cancel()
		<-ctx.Done()

		primary := &fakeReasoner{err: ctx.Err()}
		backup := &fakeReasoner{reply: "offline"}

		_, err := NewFallbackReasoner(primary, backup).Compose(ctx, contractx.ReasoningRequest{})
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 0, backup.calls)
	})
}

func TestEinoReasonerRendersPrompt(t *testing.T) {
	t.Parallel()

	chatModel := &fakeChatModel{reply: " Try the navy tie. "}
	r, err := NewEinoReasoner(context.Background(), chatModel)
	require.NoError(t, err)

	got, err := r.Compose(context.Background(), contractx.ReasoningRequest{
		Instructions: "You are a stylist.",
		Message:      "what goes with VH001?",
	})
	require.NoError(t, err)
	assert.Equal(t, "Try the navy tie.", got)

	require.Len(t, chatModel.seen, 2)
	assert.Equal(t, schema.System, chatModel.seen[0].Role)
	assert.Equal(t, "You are a stylist.", chatModel.seen[0].Content)
	assert.Contains(t, chatModel.seen[1].Content, "what goes with VH001?")
}

func TestEinoReasonerRequiresInstructions(t *testing.T) {
	t.Parallel()

	r, err := NewEinoReasoner(context.Background(), &fakeChatModel{reply: "x"})
	require.NoError(t, err)

	_, err = r.Compose(context.Background(), contractx.ReasoningRequest{Message: "hi"})
	require.ErrorIs(t, err, contractx.ErrPromptMissing)
}

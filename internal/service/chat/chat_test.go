package chat

import (
	"context"
	"errors"
	"testing"

	"anima/internal/config"
	"anima/internal/logger"
	"anima/internal/service"
	"anima/internal/textgen"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	output string
	err    error
	calls  []textgen.Options
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string, opts textgen.Options) (string, error) {
	f.calls = append(f.calls, opts)
	if f.err != nil {
		return "", f.err
	}
	return prompt + f.output, nil
}

func newTestService(t *testing.T, gen textgen.Generator) *ChatService {
	t.Helper()
	cfg := config.Default()
	cfg.LogDirectory = t.TempDir()
	log := logger.NewLogger(cfg)
	t.Cleanup(func() { log.Close() })
	return NewChatService(gen, log)
}

func TestHistory_Seeded(t *testing.T) {
	s := newTestService(t, &fakeGenerator{})

	tr := s.History("fresh")
	require.Len(t, tr.History, 1)
	assert.Equal(t, Exchange{User: Greeting, Assistant: Welcome}, tr.History[0])
	assert.Empty(t, tr.InitialQuery)
}

func TestAsk_TrimsAndRecords(t *testing.T) {
	gen := &fakeGenerator{output: " Drink water. Rest in a dark ro"}
	s := newTestService(t, gen)

	reply, err := s.Ask(context.Background(), "s1", "What helps a migraine?")
	require.NoError(t, err)

	assert.Equal(t, "What helps a migraine? Drink water.", reply.Response)
	assert.Equal(t, "What helps a migraine?", reply.InitialQuery)
	require.Len(t, reply.History, 2)
	assert.Equal(t, "What helps a migraine?", reply.History[1].User)
	assert.Equal(t, MaxLength, gen.calls[0].MaxLength)

	_, err = s.Ask(context.Background(), "s1", "And for nausea?")
	require.NoError(t, err)
	tr := s.History("s1")
	assert.Len(t, tr.History, 3)
	assert.Equal(t, "What helps a migraine?", tr.InitialQuery, "initial query is kept")
}

func TestAsk_EmptyQuery(t *testing.T) {
	gen := &fakeGenerator{}
	s := newTestService(t, gen)

	_, err := s.Ask(context.Background(), "s1", "")
	assert.ErrorIs(t, err, service.ErrEmptyPrompt)
	assert.Empty(t, gen.calls)

	// any non-empty query reaches the model, even blank-looking ones
	_, err = s.Ask(context.Background(), "s1", "   ")
	require.NoError(t, err)
	assert.Len(t, gen.calls, 1)
}

func TestAsk_GeneratorErrorLeavesHistory(t *testing.T) {
	boom := errors.New("boom")
	s := newTestService(t, &fakeGenerator{err: boom})

	_, err := s.Ask(context.Background(), "s1", "hello")
	assert.ErrorIs(t, err, boom)
	assert.Len(t, s.History("s1").History, 1)
	assert.Empty(t, s.History("s1").InitialQuery)
}

func TestSearchLink(t *testing.T) {
	assert.Equal(t, "https://www.google.com/search?q=chest+pain+at+night", SearchLink("chest pain at night"))
}

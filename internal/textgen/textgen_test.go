package textgen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrimToLastSentence(t *testing.T) {
	cases := map[string]string{
		"Drink water. Rest well. Then":  "Drink water. Rest well.",
		"No period here":                "No period here",
		"Ends cleanly.":                 "Ends cleanly.",
		"":                              "",
		"Take 2.5 mg daily and see a d": "Take 2.",
	}
	for in, want := range cases {
		assert.Equal(t, want, TrimToLastSentence(in), in)
	}
}

func TestPromptContinuation(t *testing.T) {
	assert.Equal(t, "a chest x-ray", PromptContinuation("describe the image a chest x-ray", "describe the image"))
	assert.Equal(t, "unrelated", PromptContinuation("unrelated", "describe"))
}

func TestRemoteGenerator_Generate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"choices":[{"message":{"content":" Rest and hydrate."}}]}`))
	}))
	defer srv.Close()

	g := NewRemoteGenerator(srv.URL+"/", "secret", "mockingmonkey/MedGemma2", time.Second)
	out, err := g.Generate(context.Background(), "I have a headache.", Options{MaxLength: 100})
	require.NoError(t, err)

	assert.Equal(t, "I have a headache. Rest and hydrate.", out)
	assert.Equal(t, "mockingmonkey/MedGemma2", got.Model)
	// 100 total minus an estimated 5 prompt tokens
	assert.Equal(t, 95, got.MaxTokens)
	assert.Zero(t, got.Temperature)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "I have a headache.", got.Messages[0].Content[0].Text)
}

func TestRemoteGenerator_SeparatesPromptFromCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"Rest and hydrate."}}]}`))
	}))
	defer srv.Close()

	g := NewRemoteGenerator(srv.URL, "", "m", time.Second)
	out, err := g.Generate(context.Background(), "I have a headache", Options{MaxLength: 100})
	require.NoError(t, err)
	assert.Equal(t, "I have a headache Rest and hydrate.", out)

	out, err = g.GenerateFromImage(context.Background(), []byte{1}, "image/png", "describe", Options{MaxNewTokens: 10})
	require.NoError(t, err)
	assert.Equal(t, "Rest and hydrate.", PromptContinuation(out, "describe"))
}

func TestBudget(t *testing.T) {
	assert.Equal(t, 300, budget("anything", Options{MaxNewTokens: 300}))
	assert.Equal(t, 0, budget("anything", Options{}))
	assert.Equal(t, 1, budget(strings.Repeat("word ", 200), Options{MaxLength: 100}))
	assert.Equal(t, 99, budget("hi", Options{MaxLength: 100}))
}

func TestJoinCompletion(t *testing.T) {
	assert.Equal(t, "a b", joinCompletion("a", "b"))
	assert.Equal(t, "a b", joinCompletion("a ", "b"))
	assert.Equal(t, "a\nb", joinCompletion("a\n", "b"))
	assert.Equal(t, "b", joinCompletion("", "b"))
	assert.Equal(t, "a", joinCompletion("a", ""))
}

func TestRemoteGenerator_GenerateFromImage(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"choices":[{"message":{"content":" lungs are clear"}}]}`))
	}))
	defer srv.Close()

	g := NewRemoteGenerator(srv.URL, "", "mockingmonkey/MedPali", time.Second)
	out, err := g.GenerateFromImage(context.Background(), []byte{1, 2, 3}, "image/png", "describe", Options{MaxNewTokens: 100})
	require.NoError(t, err)

	assert.Equal(t, "lungs are clear", PromptContinuation(out, "describe"))
	parts := got.Messages[0].Content
	require.Len(t, parts, 2)
	require.NotNil(t, parts[0].ImageURL)
	assert.True(t, strings.HasPrefix(parts[0].ImageURL.URL, "data:image/png;base64,AQID"))
	assert.Equal(t, 100, got.MaxTokens)
}

func TestRemoteGenerator_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"model loading"}}`))
	}))
	defer srv.Close()

	g := NewRemoteGenerator(srv.URL, "", "m", time.Second)
	_, err := g.Generate(context.Background(), "hi", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model loading")
}

func TestUnavailable(t *testing.T) {
	_, err := unavailable{}.Generate(context.Background(), "x", Options{})
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

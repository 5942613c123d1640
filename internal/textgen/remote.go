package textgen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// RemoteGenerator talks to an OpenAI-compatible chat completions endpoint.
type RemoteGenerator struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewRemoteGenerator creates a client for baseURL serving model.
func NewRemoteGenerator(baseURL, apiKey, model string, timeout time.Duration) *RemoteGenerator {
	return &RemoteGenerator{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate returns the prompt followed by the model's completion.
func (g *RemoteGenerator) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	parts := []contentPart{{Type: "text", Text: prompt}}
	completion, err := g.complete(ctx, parts, budget(prompt, opts))
	if err != nil {
		return "", err
	}
	return joinCompletion(prompt, completion), nil
}

// GenerateFromImage sends the image as a data URL next to the prompt.
func (g *RemoteGenerator) GenerateFromImage(ctx context.Context, image []byte, mime, prompt string, opts Options) (string, error) {
	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image)
	parts := []contentPart{
		{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
		{Type: "text", Text: prompt},
	}
	completion, err := g.complete(ctx, parts, budget(prompt, opts))
	if err != nil {
		return "", err
	}
	return joinCompletion(prompt, completion), nil
}

// budget converts options into a max_tokens value. MaxLength includes the
// prompt, whose length is estimated since the server tokenizes remotely.
func budget(prompt string, opts Options) int {
	if opts.MaxNewTokens > 0 {
		return opts.MaxNewTokens
	}
	if opts.MaxLength <= 0 {
		return 0
	}
	n := opts.MaxLength - EstimateTokens(prompt)
	if n < 1 {
		n = 1
	}
	return n
}

// EstimateTokens approximates a prompt's token count as the larger of its
// word count and a quarter of its characters.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	chars := (utf8.RuneCountInString(text) + 3) / 4
	if words > chars {
		return words
	}
	return chars
}

// joinCompletion appends completion to prompt with a space between them
// unless one side already carries whitespace.
func joinCompletion(prompt, completion string) string {
	if prompt == "" || completion == "" {
		return prompt + completion
	}
	last, _ := utf8.DecodeLastRuneInString(prompt)
	first, _ := utf8.DecodeRuneInString(completion)
	if unicode.IsSpace(last) || unicode.IsSpace(first) {
		return prompt + completion
	}
	return prompt + " " + completion
}

func (g *RemoteGenerator) complete(ctx context.Context, parts []contentPart, maxTokens int) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       g.model,
		Messages:    []chatMessage{{Role: "user", Content: parts}},
		Temperature: 0,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call %s: %w", g.model, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Error != nil && out.Error.Message != "" {
			return "", fmt.Errorf("%s returned %d: %s", g.model, resp.StatusCode, out.Error.Message)
		}
		return "", fmt.Errorf("%s returned %d", g.model, resp.StatusCode)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", g.model)
	}
	return out.Choices[0].Message.Content, nil
}

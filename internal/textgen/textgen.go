// Package textgen provides the text generation backends behind the chat,
// image analysis and recommendation pages.
package textgen

import (
	"context"
	"fmt"
	"strings"

	"anima/internal/config"
	"anima/internal/logger"
	"anima/internal/service"
)

// ErrModelUnavailable is returned when a backend could not be initialized.
var ErrModelUnavailable = fmt.Errorf("text generation: %w", service.ErrModelUnavailable)

// Options bound the length of a generation. MaxLength counts prompt tokens,
// MaxNewTokens does not. Zero leaves a bound unset.
type Options struct {
	MaxLength    int
	MaxNewTokens int
}

// Generator produces a text continuation. The returned text starts with the
// prompt, the way a causal language model decodes its full output sequence.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

// VisionGenerator answers a prompt about an image.
type VisionGenerator interface {
	GenerateFromImage(ctx context.Context, image []byte, mime, prompt string, opts Options) (string, error)
}

// TrimToLastSentence cuts text after its last period. Text without a period
// is returned unchanged.
func TrimToLastSentence(text string) string {
	if i := strings.LastIndex(text, "."); i >= 0 {
		return text[:i+1]
	}
	return text
}

// PromptContinuation strips the echoed prompt from a generation.
func PromptContinuation(full, prompt string) string {
	return strings.TrimSpace(strings.TrimPrefix(full, prompt))
}

// Backend describes one configured text model.
type Backend struct {
	Kind          string // local | remote
	ModelID       string
	ModelPath     string
	TokenizerPath string
}

// New builds the generator a page uses. A local backend that fails to load
// is logged and replaced by one that reports ErrModelUnavailable.
func New(cfg *config.Config, b Backend, logger *logger.Logger) Generator {
	if b.Kind == "local" {
		gen, err := NewONNXGenerator(cfg.ONNXRuntimeLibrary, b.ModelPath, b.TokenizerPath, int64(cfg.EOSTokenID))
		if err != nil {
			logger.Warning("Could not load local model %s: %v", b.ModelID, err)
			return unavailable{}
		}
		logger.Info("Loaded local model %s from %s", b.ModelID, b.ModelPath)
		return gen
	}
	logger.Info("Using remote model %s at %s", b.ModelID, cfg.RemoteBaseURL)
	return NewRemoteGenerator(cfg.RemoteBaseURL, cfg.RemoteAPIKey, b.ModelID, cfg.RemoteTimeout())
}

type unavailable struct{}

func (unavailable) Generate(context.Context, string, Options) (string, error) {
	return "", ErrModelUnavailable
}

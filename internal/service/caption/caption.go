// Package caption answers prompts about an uploaded medical image.
package caption

import (
	"context"
	"fmt"
	"strings"
	"time"

	"anima/internal/logger"
	"anima/internal/service"
	"anima/internal/service/session"
	"anima/internal/textgen"
)

const (
	// MaxNewTokens bounds each answer.
	MaxNewTokens = 100

	// MaxSessions caps how many sessions hold an image at once.
	MaxSessions = 64
	// SessionIdleTimeout drops an untouched image session.
	SessionIdleTimeout = time.Hour
)

// Exchange is one prompt about the image and the model's answer.
type Exchange struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}

// State is the per-session image and conversation about it.
type State struct {
	Image        []byte
	MIME         string
	Conversation []Exchange
}

func newState() *State {
	return &State{}
}

// CaptionService runs the image-text model over the session's image.
type CaptionService struct {
	generator textgen.VisionGenerator
	sessions  *session.Store[State]
	logger    *logger.Logger
}

// NewCaptionService creates a caption service backed by generator.
func NewCaptionService(generator textgen.VisionGenerator, logger *logger.Logger) *CaptionService {
	return &CaptionService{
		generator: generator,
		sessions:  session.NewStore(newState).Limit(MaxSessions, SessionIdleTimeout),
		logger:    logger,
	}
}

// Sessions exposes the store so the app can sweep idle sessions.
func (s *CaptionService) Sessions() *session.Store[State] {
	return s.sessions
}

// SetImage validates and stores the session's image. A new image keeps the
// conversation so follow-up questions can continue.
func (s *CaptionService) SetImage(sessionID, filename string, data []byte) error {
	mime, err := service.ImageMIME(filename, data)
	if err != nil {
		return err
	}
	return s.sessions.With(sessionID, func(st *State) error {
		st.Image = data
		st.MIME = mime
		return nil
	})
}

// Analyze answers prompt about the session's image and records the exchange.
// When the model fails the exchange is recorded with an empty response and
// the error is returned.
func (s *CaptionService) Analyze(ctx context.Context, sessionID, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", service.ErrEmptyPrompt
	}

	var answer string
	err := s.sessions.With(sessionID, func(st *State) error {
		if st.Image == nil {
			return service.ErrNoImage
		}

		output, err := s.generator.GenerateFromImage(ctx, st.Image, st.MIME, prompt, textgen.Options{MaxNewTokens: MaxNewTokens})
		if err != nil {
			st.Conversation = append(st.Conversation, Exchange{Prompt: prompt})
			return fmt.Errorf("model prediction: %w", err)
		}

		answer = textgen.PromptContinuation(output, prompt)
		st.Conversation = append(st.Conversation, Exchange{Prompt: prompt, Response: answer})
		return nil
	})
	if err != nil {
		s.logger.Error("Image analysis failed: %v", err)
		return "", err
	}
	return answer, nil
}

// Conversation returns the session's exchanges and whether an image is set.
func (s *CaptionService) Conversation(sessionID string) ([]Exchange, bool) {
	var out []Exchange
	var hasImage bool
	s.sessions.With(sessionID, func(st *State) error {
		out = append([]Exchange{}, st.Conversation...)
		hasImage = st.Image != nil
		return nil
	})
	return out, hasImage
}

// Package chat implements the medical chatbot conversation.
package chat

import (
	"context"
	"fmt"
	"strings"

	"anima/internal/logger"
	"anima/internal/service"
	"anima/internal/service/session"
	"anima/internal/textgen"
)

const (
	// Greeting and Welcome open every conversation.
	Greeting = "Hey! 👋"
	Welcome  = "Hello! 👋 Feel free to ask me any questions about medical issues."

	// MaxLength bounds prompt plus reply tokens.
	MaxLength = 100

	searchURL = "https://www.google.com/search?q="
)

// Exchange is one user message and the assistant's reply.
type Exchange struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// State is the per-session conversation. Past and Generated are parallel;
// index 0 holds the seeded greeting.
type State struct {
	Past         []string
	Generated    []string
	InitialQuery string
}

func newState() *State {
	return &State{
		Past:      []string{Greeting},
		Generated: []string{Welcome},
	}
}

// Transcript is the conversation as shown on the page.
type Transcript struct {
	History      []Exchange `json:"history"`
	InitialQuery string     `json:"initialQuery"`
}

// Reply is the answer to one query.
type Reply struct {
	Response string `json:"response"`
	Transcript
}

// ChatService answers medical questions with a causal language model.
type ChatService struct {
	generator textgen.Generator
	sessions  *session.Store[State]
	logger    *logger.Logger
}

// NewChatService creates a chat service backed by generator.
func NewChatService(generator textgen.Generator, logger *logger.Logger) *ChatService {
	return &ChatService{
		generator: generator,
		sessions:  session.NewStore(newState),
		logger:    logger,
	}
}

// Sessions exposes the store so the app can sweep idle conversations.
func (s *ChatService) Sessions() *session.Store[State] {
	return s.sessions
}

// Ask generates a reply to query and appends the exchange to the session.
func (s *ChatService) Ask(ctx context.Context, sessionID, query string) (*Reply, error) {
	if query == "" {
		return nil, service.ErrEmptyPrompt
	}

	var reply Reply
	err := s.sessions.With(sessionID, func(st *State) error {
		output, err := s.generator.Generate(ctx, query, textgen.Options{MaxLength: MaxLength})
		if err != nil {
			return fmt.Errorf("generate reply: %w", err)
		}
		response := textgen.TrimToLastSentence(output)

		if st.InitialQuery == "" {
			st.InitialQuery = query
		}
		st.Past = append(st.Past, query)
		st.Generated = append(st.Generated, response)

		reply.Response = response
		reply.Transcript = transcript(st)
		return nil
	})
	if err != nil {
		s.logger.Error("Chat generation failed: %v", err)
		return nil, err
	}

	s.logger.Info("Chat session %s answered query of %d chars", sessionID, len(query))
	return &reply, nil
}

// History returns the session's conversation, seeding it if new.
func (s *ChatService) History(sessionID string) Transcript {
	var t Transcript
	s.sessions.With(sessionID, func(st *State) error {
		t = transcript(st)
		return nil
	})
	return t
}

func transcript(st *State) Transcript {
	history := make([]Exchange, len(st.Generated))
	for i := range st.Generated {
		history[i] = Exchange{User: st.Past[i], Assistant: st.Generated[i]}
	}
	return Transcript{History: history, InitialQuery: st.InitialQuery}
}

// SearchLink builds the Google search URL used to compare answers.
func SearchLink(query string) string {
	return searchURL + strings.ReplaceAll(query, " ", "+")
}

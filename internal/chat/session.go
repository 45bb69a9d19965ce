package chat

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/talkinghead/internal/bus"
	"github.com/normanking/talkinghead/internal/errs"
)

// DefaultSystemPrompt is used until a personality supplies one.
const DefaultSystemPrompt = "You are a helpful, friendly assistant."

// Generator produces a model reply.
type Generator interface {
	Generate(ctx context.Context, prompt, system string) (string, error)
}

// Session is one conversation: a generator, its history and the current
// system prompt. Only one message is processed at a time.
type Session struct {
	logger    zerolog.Logger
	generator Generator
	history   *History
	bus       *bus.Bus

	mu     sync.RWMutex
	system string

	processing atomic.Bool
}

// NewSession creates a conversation. b may be nil.
func NewSession(logger zerolog.Logger, generator Generator, history *History, b *bus.Bus) *Session {
	if history == nil {
		history = NewHistory(DefaultMaxMessages)
	}
	return &Session{
		logger:    logger.With().Str("component", "chat").Logger(),
		generator: generator,
		history:   history,
		bus:       b,
		system:    DefaultSystemPrompt,
	}
}

// SetSystemPrompt replaces the system prompt for later messages.
func (s *Session) SetSystemPrompt(prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.system = prompt
}

// SystemPrompt returns the current system prompt.
func (s *Session) SystemPrompt() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.system
}

// History returns the conversation history.
func (s *Session) History() *History {
	return s.history
}

// Processing reports whether a message is in flight.
func (s *Session) Processing() bool {
	return s.processing.Load()
}

// Send asks the model about text and returns its reply. It rejects empty text
// and returns ErrBusy while another message is being processed.
func (s *Session) Send(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errs.ErrInvalidInput
	}
	if !s.processing.CompareAndSwap(false, true) {
		s.logger.Warn().Msg("Already processing a message, ignoring new request")
		return "", ErrBusy
	}
	defer s.processing.Store(false)

	start := time.Now()
	reply, err := s.generator.Generate(ctx, s.history.Prompt(text), s.SystemPrompt())
	if err != nil {
		s.logger.Error().Err(err).Msg("Chat request failed")
		if s.bus != nil {
			s.bus.Publish(bus.ErrorOccurred("", err))
		}
		return "", err
	}
	reply = strings.TrimSpace(reply)

	s.history.AddUser(text)
	s.history.AddAssistant(reply)

	s.logger.Info().
		Dur("latency", time.Since(start)).
		Int("history", s.history.Len()).
		Msg("Response received")

	if s.bus != nil {
		s.bus.Publish(bus.ChatResponse(reply))
	}
	return reply, nil
}

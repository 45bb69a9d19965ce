package engine

import (
	"context"
	"sync"
	"time"

	"github.com/normanking/talkinghead/internal/emotion"
	"github.com/normanking/talkinghead/internal/timeline"
	"github.com/normanking/talkinghead/internal/tts"
)

// Session is one speak request. ID, Text and Emotion are fixed at creation;
// the timeline and asset appear once synthesis succeeds.
type Session struct {
	ID      string
	Text    string
	Emotion emotion.Label
	Started time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	timeline *timeline.Timeline
	asset    *tts.Asset
	err      error

	done     chan struct{}
	doneOnce sync.Once
}

func newSession(parent context.Context, id, text string, label emotion.Label) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		ID:      id,
		Text:    text,
		Emotion: label,
		Started: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Timeline returns the session timeline, or nil before synthesis completes.
func (s *Session) Timeline() *timeline.Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline
}

// Asset returns the synthesized audio, or nil before synthesis completes.
func (s *Session) Asset() *tts.Asset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.asset
}

// Err returns the failure that ended the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed when the session finishes, fails or is stopped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) attach(tl *timeline.Timeline, asset *tts.Asset) {
	s.mu.Lock()
	s.timeline = tl
	s.asset = asset
	s.mu.Unlock()
}

func (s *Session) finish(err error) {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		s.cancel()
		close(s.done)
	})
}

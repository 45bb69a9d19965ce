package playback

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/talkinghead/internal/bus"
	"github.com/normanking/talkinghead/internal/metrics"
	"github.com/normanking/talkinghead/internal/timeline"
)

var (
	ErrInvalidTransition = errors.New("invalid playback transition")
	ErrStaleSession      = errors.New("session is no longer current")
)

// Synchronizer follows the playback clock of one session at a time and
// publishes PlaybackStarted, PhonemeChanged and PlaybackFinished.
//
// Every transition and publication happens under one mutex and is checked
// against the session ID carried by the clock callback. Once Stop returns,
// no event for the stopped session can be published, even by callbacks
// that were already in flight.
type Synchronizer struct {
	logger zerolog.Logger
	bus    *bus.Bus

	mu       sync.Mutex
	state    State
	session  string
	timeline *timeline.Timeline
	active   int
	release  func()
}

// NewSynchronizer creates an idle synchronizer publishing to b.
func NewSynchronizer(logger zerolog.Logger, b *bus.Bus) *Synchronizer {
	return &Synchronizer{
		logger: logger.With().Str("component", "playback").Logger(),
		bus:    b,
		active: -1,
	}
}

// Begin accepts a new session: Idle or Finished to Loading.
func (s *Synchronizer) Begin(session string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !canTransition(s.state, StateLoading) {
		return fmt.Errorf("%w: begin from %s", ErrInvalidTransition, s.state)
	}
	s.session = session
	s.timeline = nil
	s.active = -1
	s.setState(StateLoading)
	return nil
}

// Load attaches the session's timeline and the hook that releases its audio.
// The synchronizer owns release from here on and calls it exactly once, on
// finish or stop. When Load fails the caller keeps ownership.
func (s *Synchronizer) Load(session string, tl *timeline.Timeline, release func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != session || s.state != StateLoading {
		return ErrStaleSession
	}
	s.timeline = tl
	s.release = release
	return nil
}

// MediaReady moves Loading to Playing and publishes PlaybackStarted.
func (s *Synchronizer) MediaReady(session string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != session || s.state != StateLoading {
		return
	}
	s.setState(StatePlaying)
	s.logger.Debug().Str("session", session).Int("phonemes", s.timeline.Len()).Msg("Playback started")
	s.bus.Publish(bus.PlaybackStarted(session, s.timeline))
}

// Position maps a clock position in seconds to a timeline entry and
// publishes PhonemeChanged when the entry differs from the previous one.
// Positions outside the timeline are ignored.
func (s *Synchronizer) Position(session string, seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != session || s.state != StatePlaying {
		return
	}
	index := s.timeline.Find(seconds)
	if index < 0 || index == s.active {
		return
	}
	s.active = index
	metrics.PhonemeChanges.Inc()
	s.bus.Publish(bus.PhonemeChanged(session, s.timeline.Entries[index], index))
}

// EndOfMedia moves Playing to Finished, releases the audio and publishes
// PlaybackFinished.
func (s *Synchronizer) EndOfMedia(session string) {
	s.mu.Lock()
	if s.session != session || s.state != StatePlaying {
		s.mu.Unlock()
		return
	}
	s.active = -1
	s.setState(StateFinished)
	release := s.takeRelease()
	s.logger.Debug().Str("session", session).Msg("Playback finished")
	s.bus.Publish(bus.PlaybackFinished(session))
	s.mu.Unlock()

	if release != nil {
		release()
	}
}

// Stop cancels the current session from any state and returns to Idle.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	stopped := s.session
	wasActive := s.state.Active()
	s.session = ""
	s.timeline = nil
	s.active = -1
	s.setState(StateIdle)
	release := s.takeRelease()
	s.mu.Unlock()

	if release != nil {
		release()
	}
	if wasActive {
		s.logger.Debug().Str("session", stopped).Msg("Playback stopped")
	}
}

// State returns the current state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Session returns the current session ID, empty when idle.
func (s *Synchronizer) Session() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// ActiveIndex returns the index of the current entry, or -1.
func (s *Synchronizer) ActiveIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Timeline returns the current session's timeline, if loaded.
func (s *Synchronizer) Timeline() *timeline.Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline
}

func (s *Synchronizer) setState(state State) {
	s.state = state
	if state.Active() {
		metrics.ActiveSession.Set(1)
	} else {
		metrics.ActiveSession.Set(0)
	}
}

func (s *Synchronizer) takeRelease() func() {
	release := s.release
	s.release = nil
	return release
}

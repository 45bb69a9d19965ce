// Package engine runs speak sessions: phoneme extraction and synthesis in
// parallel, timeline construction, then synchronized playback.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/normanking/talkinghead/internal/bus"
	"github.com/normanking/talkinghead/internal/emotion"
	"github.com/normanking/talkinghead/internal/errs"
	"github.com/normanking/talkinghead/internal/metrics"
	"github.com/normanking/talkinghead/internal/phoneme"
	"github.com/normanking/talkinghead/internal/playback"
	"github.com/normanking/talkinghead/internal/timeline"
	"github.com/normanking/talkinghead/internal/tts"
)

// Extractor produces the phoneme sequence for text.
type Extractor interface {
	Extract(ctx context.Context, text, language string) ([]phoneme.Symbol, error)
}

// Synthesizer renders text to a WAV asset.
type Synthesizer interface {
	Synthesize(ctx context.Context, sessionID, text string, voice tts.VoiceConfig) (*tts.Asset, error)
}

// Player plays an asset and reports its clock to the synchronizer.
type Player interface {
	Play(session string, asset *tts.Asset) error
	Stop()
}

// Emoter receives the emotion detected for each utterance.
type Emoter interface {
	SetEmotion(label emotion.Label)
}

// Config holds per-utterance settings.
type Config struct {
	Language string
	Voice    tts.VoiceConfig
	// RestingEmotion replaces Neutral when nothing stronger is detected.
	RestingEmotion emotion.Label
	// ClassifyEmotion enables keyword emotion detection on each utterance.
	ClassifyEmotion bool
}

// DefaultConfig returns engine defaults.
func DefaultConfig() *Config {
	return &Config{
		Language:        "en-us",
		Voice:           tts.VoiceConfig{Speed: 1.0},
		RestingEmotion:  emotion.Neutral,
		ClassifyEmotion: true,
	}
}

// Engine owns at most one live session. A new Speak preempts the previous
// one; Stop is the only way a session is cancelled.
type Engine struct {
	logger     zerolog.Logger
	config     *Config
	bus        *bus.Bus
	sync       *playback.Synchronizer
	extractor  Extractor
	synth      Synthesizer
	player     Player
	classifier *emotion.Classifier
	emoter     Emoter

	mu      sync.Mutex
	current atomic.Pointer[Session]

	unsubscribe func()
}

// Option customizes an Engine.
type Option func(*Engine)

// WithEmoter forwards detected emotions to e, typically the animator.
func WithEmoter(e Emoter) Option {
	return func(eng *Engine) { eng.emoter = e }
}

// New creates an engine. The player must report its clock to synchronizer.
func New(
	logger zerolog.Logger,
	config *Config,
	b *bus.Bus,
	synchronizer *playback.Synchronizer,
	extractor Extractor,
	synth Synthesizer,
	player Player,
	opts ...Option,
) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	e := &Engine{
		logger:     logger.With().Str("component", "engine").Logger(),
		config:     config,
		bus:        b,
		sync:       synchronizer,
		extractor:  extractor,
		synth:      synth,
		player:     player,
		classifier: emotion.NewClassifier(),
	}
	for _, opt := range opts {
		opt(e)
	}

	// Runs under the synchronizer lock: only touches the session's once.
	e.unsubscribe = b.Subscribe(bus.EventTypePlaybackFinished, func(ev bus.Event) {
		if s := e.current.Load(); s != nil && s.ID == ev.Session {
			s.finish(nil)
		}
	})
	return e
}

// Speak starts a new session for text and returns its ID. Any session still
// synthesizing or playing is stopped first. The session outlives ctx; only
// its values are inherited.
func (e *Engine) Speak(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		e.logger.Warn().Msg("Rejected empty speak request")
		metrics.SessionErrors.WithLabelValues(errs.Kind(errs.ErrInvalidInput)).Inc()
		e.bus.Publish(bus.ErrorOccurred("", errs.ErrInvalidInput))
		return "", errs.ErrInvalidInput
	}

	label := e.detectEmotion(text)

	e.mu.Lock()
	if prev := e.current.Load(); prev != nil && e.sync.State().Active() {
		e.logger.Info().Str("session", prev.ID).Msg("Preempting session")
		metrics.SessionsPreempted.Inc()
	}
	e.stopLocked()

	s := newSession(context.WithoutCancel(ctx), uuid.NewString(), text, label)
	if err := e.sync.Begin(s.ID); err != nil {
		e.mu.Unlock()
		s.finish(err)
		return "", fmt.Errorf("begin session: %w", err)
	}
	e.current.Store(s)
	metrics.SessionsStarted.Inc()
	e.bus.Publish(bus.SynthesisStarted(s.ID, text))
	e.mu.Unlock()

	e.logger.Info().
		Str("session", s.ID).
		Int("chars", len(text)).
		Str("emotion", string(label)).
		Msg("Session started")

	if e.emoter != nil {
		e.emoter.SetEmotion(label)
	}

	go e.run(s)
	return s.ID, nil
}

func (e *Engine) detectEmotion(text string) emotion.Label {
	label := emotion.Neutral
	if e.config.ClassifyEmotion {
		label, _ = e.classifier.Classify(text)
	}
	if label == emotion.Neutral && e.config.RestingEmotion != "" {
		label = e.config.RestingEmotion
	}
	return label
}

func (e *Engine) run(s *Session) {
	var (
		symbols []phoneme.Symbol
		asset   *tts.Asset
	)

	g, ctx := errgroup.WithContext(s.ctx)
	g.Go(func() error {
		out, err := e.extractor.Extract(ctx, s.Text, e.config.Language)
		if err != nil {
			return err
		}
		symbols = out
		return nil
	})
	g.Go(func() error {
		out, err := e.synth.Synthesize(ctx, s.ID, s.Text, e.config.Voice)
		// A late success after the sibling failed still has to be released.
		asset = out
		return err
	})
	err := g.Wait()

	e.complete(s, symbols, asset, err)
}

// complete is the single hand-off point from the worker back to the engine.
func (e *Engine) complete(s *Session, symbols []phoneme.Symbol, asset *tts.Asset, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current.Load() != s || s.ctx.Err() != nil {
		e.release(asset)
		e.logger.Debug().Str("session", s.ID).Msg("Discarded result of stopped session")
		return
	}
	if err != nil {
		e.release(asset)
		e.failLocked(s, err)
		return
	}

	tl := timeline.Build(symbols, asset.Duration, s.Text)
	if err := e.sync.Load(s.ID, tl, func() { e.release(asset) }); err != nil {
		e.release(asset)
		e.failLocked(s, err)
		return
	}
	s.attach(tl, asset)

	e.logger.Info().
		Str("session", s.ID).
		Int("phonemes", tl.Len()).
		Float64("seconds", tl.Total).
		Dur("prepare", time.Since(s.Started)).
		Msg("Session ready")

	// From here on the synchronizer owns the asset.
	if err := e.player.Play(s.ID, asset); err != nil {
		e.failLocked(s, err)
	}
}

func (e *Engine) failLocked(s *Session, err error) {
	kind := errs.Kind(err)
	e.logger.Error().Err(err).Str("session", s.ID).Str("kind", kind).Msg("Session failed")
	metrics.SessionErrors.WithLabelValues(kind).Inc()

	e.player.Stop()
	e.sync.Stop()
	e.bus.Publish(bus.ErrorOccurred(s.ID, err))
	s.finish(err)
}

func (e *Engine) release(asset *tts.Asset) {
	if asset == nil {
		return
	}
	if err := asset.Release(); err != nil {
		e.logger.Warn().Err(err).Str("path", asset.Path).Msg("Failed to remove audio file")
	}
}

// Stop cancels the current session, killing any running processes,
// halting audio and releasing its file. It is safe to call when idle.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	s := e.current.Load()
	if s == nil {
		return
	}
	s.cancel()
	e.player.Stop()
	e.sync.Stop()
	s.finish(nil)
}

// Wait blocks until the current session ends and returns its error.
func (e *Engine) Wait(ctx context.Context) error {
	s := e.current.Load()
	if s == nil {
		return nil
	}
	select {
	case <-s.Done():
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Busy reports whether a session is synthesizing or playing.
func (e *Engine) Busy() bool {
	return e.sync.State().Active()
}

// Current returns the latest session, or nil before the first Speak.
func (e *Engine) Current() *Session {
	return e.current.Load()
}

// Close stops the current session and detaches from the bus.
func (e *Engine) Close() {
	e.Stop()
	e.unsubscribe()
}

// Package audio plays synthesized speech and reports the playback clock.
package audio

import (
	"bytes"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog"

	"github.com/normanking/talkinghead/internal/tts"
)

// Clock receives playback progress for a session.
type Clock interface {
	MediaReady(session string)
	Position(session string, seconds float64)
	EndOfMedia(session string)
}

// drainGrace bounds how long playback may run past the computed duration
// while the device drains its buffer.
const drainGrace = 2 * time.Second

// Config holds playback settings.
type Config struct {
	Mute             bool          `json:"mute"`              // drive the clock without an audio device
	Volume           float64       `json:"volume"`            // 0.0 - 1.0
	PositionInterval time.Duration `json:"position_interval"` // clock callback period
	BufferSize       time.Duration `json:"buffer_size"`       // device buffer
}

// DefaultConfig returns playback defaults.
func DefaultConfig() *Config {
	return &Config{
		Volume:           1.0,
		PositionInterval: 30 * time.Millisecond,
		BufferSize:       100 * time.Millisecond,
	}
}

// Player plays one WAV asset at a time through oto and reports its clock.
// When muted, or when no audio device is available, it keeps time without
// producing sound.
type Player struct {
	logger zerolog.Logger
	config *Config
	clock  Clock
	ctx    *oto.Context

	mu      sync.Mutex
	current *track
}

// track is one playback in progress.
type track struct {
	session  string
	pcm      []byte // referenced until playback ends
	player   *oto.Player
	duration float64
	stop     chan struct{}
	stopOnce sync.Once
}

func (t *track) halt() {
	t.stopOnce.Do(func() {
		close(t.stop)
		if t.player != nil {
			t.player.Pause()
			t.player.Close()
		}
	})
}

// NewPlayer creates a player reporting to clock. oto allows one context per
// process, so create a single Player.
func NewPlayer(logger zerolog.Logger, config *Config, clock Clock) *Player {
	if config == nil {
		config = DefaultConfig()
	}
	if config.PositionInterval <= 0 {
		config.PositionInterval = DefaultConfig().PositionInterval
	}

	p := &Player{
		logger: logger.With().Str("component", "audio").Logger(),
		config: config,
		clock:  clock,
	}

	if !config.Mute {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   tts.SampleRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   config.BufferSize,
		})
		if err != nil {
			p.logger.Warn().Err(err).Msg("Audio device unavailable, playing silently")
		} else {
			<-ready
			p.ctx = ctx
		}
	}

	return p
}

// Silent reports whether playback produces no sound.
func (p *Player) Silent() bool {
	return p.ctx == nil
}

// Play stops any current playback and starts asset for session. Clock
// callbacks arrive on a separate goroutine.
func (p *Player) Play(session string, asset *tts.Asset) error {
	data, err := os.ReadFile(asset.Path)
	if err != nil {
		return fmt.Errorf("read audio %s: %w", asset.Path, err)
	}
	var pcm []byte
	if len(data) > tts.HeaderSize {
		pcm = data[tts.HeaderSize:]
	}

	t := &track{
		session:  session,
		pcm:      pcm,
		duration: asset.Duration,
		stop:     make(chan struct{}),
	}

	p.mu.Lock()
	if p.current != nil {
		p.current.halt()
	}
	p.current = t
	if p.ctx != nil {
		t.player = p.ctx.NewPlayer(bytes.NewReader(t.pcm))
		t.player.SetVolume(p.config.Volume)
		t.player.Play()
	}
	p.mu.Unlock()

	p.logger.Debug().
		Str("session", session).
		Float64("seconds", t.duration).
		Bool("silent", t.player == nil).
		Msg("Playback started")

	go p.run(t)
	return nil
}

func (p *Player) run(t *track) {
	select {
	case <-t.stop:
		return
	default:
	}
	p.clock.MediaReady(t.session)

	start := time.Now()
	ticker := time.NewTicker(p.config.PositionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			elapsed := time.Since(start)
			position := elapsed.Seconds()
			if position < t.duration {
				p.clock.Position(t.session, position)
				continue
			}
			draining := t.player != nil && t.player.IsPlaying()
			if draining && elapsed < time.Duration(t.duration*float64(time.Second))+drainGrace {
				continue
			}
			p.finish(t)
			p.clock.EndOfMedia(t.session)
			return
		}
	}
}

func (p *Player) finish(t *track) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == t {
		p.current = nil
	}
	t.halt()
}

// Stop halts the current playback. No further callbacks are made for it
// except ones already in progress.
func (p *Player) Stop() {
	p.mu.Lock()
	t := p.current
	p.current = nil
	p.mu.Unlock()

	if t != nil {
		t.halt()
		p.logger.Debug().Str("session", t.session).Msg("Playback stopped")
	}
}

// Playing returns the session currently playing, if any.
func (p *Player) Playing() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return "", false
	}
	return p.current.session, true
}

// Package animator turns phoneme cues and emotions into blended face poses.
//
// The animator owns two independent layers: the mouth follows visemes and
// the brows follow the current emotion. Both advance in Tick and are combined
// only when the frame is written out.
package animator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/talkinghead/internal/bus"
	"github.com/normanking/talkinghead/internal/emotion"
	"github.com/normanking/talkinghead/internal/viseme"
)

// Immediate is the blend factor that snaps a layer to its target.
const Immediate = 1.0

// Config holds animation timing.
type Config struct {
	VisemeBlend        time.Duration `json:"viseme_blend"`
	EmotionBlend       time.Duration `json:"emotion_blend"`
	PhonemeBlendFactor float64       `json:"phoneme_blend_factor"`
	FPS                int           `json:"fps"`
	IdleMotion         bool          `json:"idle_motion"`
}

// DefaultConfig returns animation defaults.
func DefaultConfig() *Config {
	return &Config{
		VisemeBlend:        50 * time.Millisecond,
		EmotionBlend:       300 * time.Millisecond,
		PhonemeBlendFactor: 0.5,
		FPS:                60,
		IdleMotion:         true,
	}
}

// PoseWriter receives every frame. It is called from the tick loop and must
// not block.
type PoseWriter interface {
	WritePose(Pose)
}

// Animator blends the mouth and brow layers and writes poses.
type Animator struct {
	logger  zerolog.Logger
	config  *Config
	visemes *viseme.Store
	bus     *bus.Bus
	out     PoseWriter

	mu      sync.Mutex
	mouth   *Layer[MouthPose]
	brow    *Layer[BrowPose]
	idle     idleMotion
	head     HeadPose
	speaking bool // idle motion holds between SynthesisStarted and the end of playback
	viseme   string
	emotion  emotion.Label
	last     Pose
}

// New creates an animator at rest. out may be nil.
func New(logger zerolog.Logger, config *Config, visemes *viseme.Store, b *bus.Bus, out PoseWriter) *Animator {
	if config == nil {
		config = DefaultConfig()
	}
	silence := visemes.Table().Silence()
	a := &Animator{
		logger:  logger.With().Str("component", "animator").Logger(),
		config:  config,
		visemes: visemes,
		bus:     b,
		out:     out,
		mouth:   NewLayer(MouthFromViseme(silence), config.VisemeBlend),
		brow:    NewLayer(BrowFor(emotion.Neutral), config.EmotionBlend),
		idle:    newIdleMotion(config.IdleMotion),
		viseme:  silence.Name,
		emotion: emotion.Neutral,
	}
	a.last = a.composeLocked(HeadPose{})
	return a
}

// Attach subscribes the animator to playback events and returns a function
// that detaches it.
func (a *Animator) Attach() (detach func()) {
	return a.bus.SubscribeMultiple([]bus.EventType{
		bus.EventTypePhonemeChanged,
		bus.EventTypeSynthesisStarted,
		bus.EventTypePlaybackFinished,
		bus.EventTypeError,
	}, func(e bus.Event) {
		switch e.Type {
		case bus.EventTypePhonemeChanged:
			a.ApplyPhoneme(e.Entry.Symbol)
		case bus.EventTypeSynthesisStarted:
			a.setSpeaking(true)
			a.Rest()
		case bus.EventTypePlaybackFinished, bus.EventTypeError:
			a.setSpeaking(false)
			a.Rest()
		}
	})
}

// ApplyViseme sets v as the mouth target. A blend factor of Immediate snaps
// to it, anything else blends over the configured viseme duration.
func (a *Animator) ApplyViseme(v viseme.Viseme, blendFactor float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.viseme = v.Name
	target := MouthFromViseme(v)
	if blendFactor >= Immediate {
		a.mouth.Snap(target)
		return
	}
	a.mouth.BlendTo(target)
}

// ApplyPhoneme resolves symbol to a viseme and blends to it.
func (a *Animator) ApplyPhoneme(symbol string) {
	v := a.visemes.VisemeFor(symbol)
	a.logger.Debug().Str("phoneme", symbol).Str("viseme", v.Name).Msg("Applying phoneme")
	a.ApplyViseme(v, a.config.PhonemeBlendFactor)
}

func (a *Animator) setSpeaking(speaking bool) {
	a.mu.Lock()
	a.speaking = speaking
	a.mu.Unlock()
}

// Speaking reports whether an utterance is in progress.
func (a *Animator) Speaking() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.speaking
}

// Rest blends the mouth back to silence.
func (a *Animator) Rest() {
	a.ApplyViseme(a.visemes.Table().Silence(), a.config.PhonemeBlendFactor)
}

// SetEmotion blends the brows to label and publishes EmotionApplied.
func (a *Animator) SetEmotion(label emotion.Label) {
	a.mu.Lock()
	a.emotion = label
	a.brow.BlendTo(BrowFor(label))
	a.mu.Unlock()

	a.logger.Debug().Str("emotion", string(label)).Msg("Emotion applied")
	a.bus.Publish(bus.EmotionApplied(label))
}

// Reset snaps both layers to rest between utterances.
func (a *Animator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	silence := a.visemes.Table().Silence()
	a.viseme = silence.Name
	a.emotion = emotion.Neutral
	a.mouth.Snap(MouthFromViseme(silence))
	a.brow.Snap(BrowFor(emotion.Neutral))
}

// Tick advances both layers by dt, writes the frame and returns it. Idle
// motion only advances while nothing is being spoken; otherwise the head
// holds its last offset.
func (a *Animator) Tick(dt time.Duration) Pose {
	a.mu.Lock()
	a.mouth.Tick(dt)
	a.brow.Tick(dt)
	if !a.speaking {
		a.head = a.idle.update(dt.Seconds())
	}
	pose := a.composeLocked(a.head)
	a.last = pose
	a.mu.Unlock()

	if a.out != nil {
		a.out.WritePose(pose)
	}
	return pose
}

func (a *Animator) composeLocked(head HeadPose) Pose {
	mouth := a.mouth.Current()
	brow := a.brow.Current()
	return Pose{
		Viseme:     a.viseme,
		Emotion:    a.emotion,
		Mouth:      mouth,
		Brow:       brow,
		Head:       head,
		Transforms: computeTransforms(mouth, brow, head),
	}
}

// Pose returns the last frame.
func (a *Animator) Pose() Pose {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// LayerStates reports the mouth and brow layer states.
func (a *Animator) LayerStates() (mouth, brow LayerState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mouth.State(), a.brow.State()
}

// Run ticks at the configured frame rate until ctx is done.
func (a *Animator) Run(ctx context.Context) error {
	fps := a.config.FPS
	if fps <= 0 {
		fps = DefaultConfig().FPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			// Long stalls (suspend, debugger) would otherwise skip whole blends.
			if dt > 100*time.Millisecond {
				dt = 100 * time.Millisecond
			}
			a.Tick(dt)
		}
	}
}

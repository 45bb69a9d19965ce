package animator

import "time"

// LayerState is the state of one blend layer.
type LayerState int

const (
	LayerIdle LayerState = iota
	LayerBlending
)

func (s LayerState) String() string {
	if s == LayerBlending {
		return "blending"
	}
	return "idle"
}

// Blendable is a pose that can be linearly interpolated.
type Blendable[P any] interface {
	Lerp(to P, t float64) P
}

// Layer interpolates from its previous pose to a target over a fixed
// duration. All interpolation happens in Tick.
type Layer[P Blendable[P]] struct {
	state    LayerState
	from     P
	current  P
	target   P
	elapsed  time.Duration
	duration time.Duration
}

// NewLayer creates an idle layer resting at initial.
func NewLayer[P Blendable[P]](initial P, duration time.Duration) *Layer[P] {
	return &Layer[P]{
		from:     initial,
		current:  initial,
		target:   initial,
		duration: duration,
	}
}

// Snap jumps straight to target and goes idle.
func (l *Layer[P]) Snap(target P) {
	l.from = target
	l.current = target
	l.target = target
	l.elapsed = 0
	l.state = LayerIdle
}

// BlendTo starts blending from the current pose to target.
func (l *Layer[P]) BlendTo(target P) {
	if l.duration <= 0 {
		l.Snap(target)
		return
	}
	l.from = l.current
	l.target = target
	l.elapsed = 0
	l.state = LayerBlending
}

// Tick advances the blend by dt and returns the current pose.
func (l *Layer[P]) Tick(dt time.Duration) P {
	if l.state != LayerBlending {
		return l.current
	}
	l.elapsed += dt
	if l.elapsed >= l.duration {
		l.current = l.target
		l.state = LayerIdle
		return l.current
	}
	l.current = l.from.Lerp(l.target, float64(l.elapsed)/float64(l.duration))
	return l.current
}

// State returns the layer state.
func (l *Layer[P]) State() LayerState { return l.state }

// Current returns the pose produced by the last Tick.
func (l *Layer[P]) Current() P { return l.current }

// Target returns the pose being blended to.
func (l *Layer[P]) Target() P { return l.target }

// Elapsed returns the time spent in the current blend.
func (l *Layer[P]) Elapsed() time.Duration { return l.elapsed }

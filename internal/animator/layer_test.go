package animator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLayerBlendsOverDuration(t *testing.T) {
	l := NewLayer(MouthPose{}, 100*time.Millisecond)
	l.BlendTo(MouthPose{Width: 1, Height: 0.5})
	assert.Equal(t, LayerBlending, l.State())

	half := l.Tick(50 * time.Millisecond)
	assert.InDelta(t, 0.5, half.Width, 1e-9)
	assert.InDelta(t, 0.25, half.Height, 1e-9)
	assert.Equal(t, LayerBlending, l.State())

	done := l.Tick(60 * time.Millisecond)
	assert.Equal(t, MouthPose{Width: 1, Height: 0.5}, done)
	assert.Equal(t, LayerIdle, l.State())
	assert.Equal(t, "idle", l.State().String())
}

func TestLayerRetargetStartsFromCurrent(t *testing.T) {
	l := NewLayer(MouthPose{}, 100*time.Millisecond)
	l.BlendTo(MouthPose{Width: 1})
	l.Tick(50 * time.Millisecond)

	l.BlendTo(MouthPose{})
	assert.Equal(t, time.Duration(0), l.Elapsed())
	p := l.Tick(50 * time.Millisecond)
	assert.InDelta(t, 0.25, p.Width, 1e-9)
}

func TestLayerSnap(t *testing.T) {
	l := NewLayer(BrowPose{}, time.Second)
	l.BlendTo(BrowPose{LeftLift: 1})
	l.Snap(BrowPose{RightLift: 1})

	assert.Equal(t, LayerIdle, l.State())
	assert.Equal(t, BrowPose{RightLift: 1}, l.Current())
	assert.Equal(t, BrowPose{RightLift: 1}, l.Tick(time.Second))
}

func TestLayerZeroDurationSnaps(t *testing.T) {
	l := NewLayer(MouthPose{}, 0)
	l.BlendTo(MouthPose{Width: 1})
	assert.Equal(t, LayerIdle, l.State())
	assert.Equal(t, MouthPose{Width: 1}, l.Current())
}

func TestIdleMotion(t *testing.T) {
	off := newIdleMotion(false)
	assert.Equal(t, HeadPose{}, off.update(0.25))

	on := newIdleMotion(true)
	head := on.update(0.25)
	assert.InDelta(t, 0.03, head.Bob, 1e-9, "quarter period of a 1Hz bob is its peak")
	assert.Greater(t, head.Nod, 0.0)
}

package animator

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/normanking/talkinghead/internal/emotion"
	"github.com/normanking/talkinghead/internal/viseme"
)

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// jawScale converts a viseme's jaw opening into a vertical mouth offset.
const jawScale = 0.1

// MouthPose is the output of the viseme layer.
type MouthPose struct {
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	JawOffset float64 `json:"jaw_offset"`
}

// MouthFromViseme derives the mouth pose for v.
func MouthFromViseme(v viseme.Viseme) MouthPose {
	return MouthPose{
		Width:     v.MouthWidth,
		Height:    v.MouthHeight,
		JawOffset: v.JawOpen * jawScale,
	}
}

func (m MouthPose) Lerp(to MouthPose, t float64) MouthPose {
	return MouthPose{
		Width:     lerp(m.Width, to.Width, t),
		Height:    lerp(m.Height, to.Height, t),
		JawOffset: lerp(m.JawOffset, to.JawOffset, t),
	}
}

// BrowPose is the output of the emotion layer: lift above the neutral brow
// height and rotation in degrees.
type BrowPose struct {
	LeftLift      float64 `json:"left_lift"`
	RightLift     float64 `json:"right_lift"`
	LeftRotation  float64 `json:"left_rotation"`
	RightRotation float64 `json:"right_rotation"`
}

func (b BrowPose) Lerp(to BrowPose, t float64) BrowPose {
	return BrowPose{
		LeftLift:      lerp(b.LeftLift, to.LeftLift, t),
		RightLift:     lerp(b.RightLift, to.RightLift, t),
		LeftRotation:  lerp(b.LeftRotation, to.LeftRotation, t),
		RightRotation: lerp(b.RightRotation, to.RightRotation, t),
	}
}

// browPoses is the brow target for each emotion. Neutral is the rest pose.
var browPoses = map[emotion.Label]BrowPose{
	emotion.Neutral:    {},
	emotion.Happy:      {LeftLift: 0.02, RightLift: 0.02},
	emotion.Sad:        {LeftLift: -0.02, RightLift: -0.02, LeftRotation: -10, RightRotation: 10},
	emotion.Surprised:  {LeftLift: 0.08, RightLift: 0.08},
	emotion.Worried:    {LeftLift: 0.03, RightLift: 0.03, LeftRotation: 15, RightRotation: -15},
	emotion.Thoughtful: {LeftLift: 0.02},
}

// BrowFor returns the brow pose for label; unknown labels get the rest pose.
func BrowFor(label emotion.Label) BrowPose {
	return browPoses[label]
}

// HeadPose is the idle motion added to every frame.
type HeadPose struct {
	Bob float64 `json:"bob"` // vertical offset
	Nod float64 `json:"nod"` // degrees about the x axis
}

// Face geometry in model space.
var (
	mouthBase     = mgl32.Vec3{0, -0.1, 0.45}
	leftBrowBase  = mgl32.Vec3{-0.15, 0.2, 0.43}
	rightBrowBase = mgl32.Vec3{0.15, 0.2, 0.43}
	browBaseAngle = float32(90)
	unitScale     = mgl32.Vec3{1, 1, 1}
)

// Transforms are the renderer-ready placements derived from a Pose.
type Transforms struct {
	MouthPosition     mgl32.Vec3 `json:"mouth_position"`
	MouthScale        mgl32.Vec3 `json:"mouth_scale"`
	LeftBrowPosition  mgl32.Vec3 `json:"left_brow_position"`
	RightBrowPosition mgl32.Vec3 `json:"right_brow_position"`
	LeftBrowAngle     float32    `json:"left_brow_angle"`
	RightBrowAngle    float32    `json:"right_brow_angle"`
	HeadPosition      mgl32.Vec3 `json:"head_position"`
	HeadRotation      mgl32.Quat `json:"head_rotation"`
}

// Pose is one animation frame handed to the renderer.
type Pose struct {
	Viseme     string        `json:"viseme"`
	Emotion    emotion.Label `json:"emotion"`
	Mouth      MouthPose     `json:"mouth"`
	Brow       BrowPose      `json:"brow"`
	Head       HeadPose      `json:"head"`
	Transforms Transforms    `json:"transforms"`
}

func computeTransforms(mouth MouthPose, brow BrowPose, head HeadPose) Transforms {
	return Transforms{
		MouthPosition: mouthBase.Sub(mgl32.Vec3{0, float32(mouth.JawOffset), 0}),
		MouthScale: unitScale.Add(mgl32.Vec3{
			float32(mouth.Width) * 2,
			float32(mouth.Height) * 2,
			0,
		}),
		LeftBrowPosition:  leftBrowBase.Add(mgl32.Vec3{0, float32(brow.LeftLift), 0}),
		RightBrowPosition: rightBrowBase.Add(mgl32.Vec3{0, float32(brow.RightLift), 0}),
		LeftBrowAngle:     browBaseAngle + float32(brow.LeftRotation),
		RightBrowAngle:    browBaseAngle + float32(brow.RightRotation),
		HeadPosition:      mgl32.Vec3{0, float32(head.Bob), 0},
		HeadRotation:      mgl32.QuatRotate(mgl32.DegToRad(float32(head.Nod)), mgl32.Vec3{1, 0, 0}),
	}
}

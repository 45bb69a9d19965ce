package animator

import "math"

// idleMotion is a slow head bob and nod that keeps the face alive between
// utterances.
type idleMotion struct {
	enabled bool
	time    float64

	bobAmplitude float64
	bobRate      float64 // Hz
	nodAmplitude float64 // degrees
	nodRate      float64 // Hz
}

func newIdleMotion(enabled bool) idleMotion {
	return idleMotion{
		enabled:      enabled,
		bobAmplitude: 0.03,
		bobRate:      1.0,
		nodAmplitude: 8,
		nodRate:      0.6,
	}
}

func (m *idleMotion) update(seconds float64) HeadPose {
	if !m.enabled {
		return HeadPose{}
	}
	m.time += seconds
	return HeadPose{
		Bob: m.bobAmplitude * math.Sin(2*math.Pi*m.bobRate*m.time),
		Nod: m.nodAmplitude * math.Sin(2*math.Pi*m.nodRate*m.time),
	}
}

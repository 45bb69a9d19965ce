// Package playback turns an audio position clock into phoneme cues.
package playback

// State is the synchronizer's lifecycle state.
type State int

const (
	// StateIdle has no session.
	StateIdle State = iota
	// StateLoading has accepted a session and waits for media.
	StateLoading
	// StatePlaying maps clock positions to timeline entries.
	StatePlaying
	// StateFinished has played a session to its end.
	StateFinished
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Active reports whether a session is loading or playing.
func (s State) Active() bool {
	return s == StateLoading || s == StatePlaying
}

// transitions lists the moves allowed other than Stop, which is valid from
// every state.
var transitions = map[State][]State{
	StateIdle:     {StateLoading},
	StateLoading:  {StatePlaying},
	StatePlaying:  {StateFinished},
	StateFinished: {StateLoading},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

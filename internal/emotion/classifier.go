// Package emotion guesses the emotional tone of a sentence from keywords.
package emotion

import (
	"math"
	"strings"
	"sync/atomic"
)

// Label is a detected emotion.
type Label string

const (
	Neutral    Label = "neutral"
	Happy      Label = "happy"
	Sad        Label = "sad"
	Surprised  Label = "surprised"
	Thoughtful Label = "thoughtful"
	Worried    Label = "worried"
)

// Labels lists every label in enumeration order.
var Labels = []Label{Neutral, Happy, Sad, Surprised, Thoughtful, Worried}

// Parse converts a name to a label, case-insensitively.
func Parse(name string) (Label, bool) {
	l := Label(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Labels {
		if l == known {
			return l, true
		}
	}
	return Neutral, false
}

const (
	weightPerMatch = 0.3
	minConfidence  = 0.2
)

// keywords are scanned in this order; earlier labels win ties.
var keywords = []struct {
	label Label
	words []string
}{
	{Happy, []string{
		"happy", "great", "wonderful", "excellent", "fantastic", "amazing",
		"glad", "joy", "delighted", "pleased", "excited", "love", "awesome",
		"perfect", "brilliant", "congratulations", "celebrate", "fun", "enjoy",
		"smile", "laugh", "nice", "good",
	}},
	{Sad, []string{
		"sad", "sorry", "unfortunate", "regret", "disappointed", "miss", "loss",
		"difficult", "hard", "tough", "struggle", "pain", "hurt", "cry",
		"unhappy", "depressed", "down", "blue", "terrible", "awful", "bad", "poor",
	}},
	{Surprised, []string{
		"wow", "amazing", "incredible", "unbelievable", "shocking", "unexpected",
		"surprise", "astonish", "remarkable", "extraordinary", "stunning", "whoa",
		"really", "seriously", "no way", "can't believe",
	}},
	{Thoughtful, []string{
		"think", "consider", "perhaps", "maybe", "possibly", "might", "could",
		"wonder", "question", "curious", "interesting", "hmm", "let me",
		"analyze", "examine", "ponder", "reflect", "contemplate", "understand",
		"learn", "explore", "investigate",
	}},
	{Worried, []string{
		"worried", "concern", "afraid", "fear", "anxious", "nervous", "stress",
		"trouble", "problem", "issue", "danger", "risk", "careful", "caution",
		"warning", "alert", "uncertain", "unsure", "doubt", "hesitant", "worry",
	}},
}

// Result is the full outcome of one classification.
type Result struct {
	Label      Label         `json:"label"`
	Confidence float64       `json:"confidence"`
	Count      int           `json:"count"` // matches for the winning label
	Scores     map[Label]int `json:"scores"`
}

// Classifier scores text against fixed keyword lists.
type Classifier struct {
	lastConfidence atomic.Uint64
}

// NewClassifier creates a classifier.
func NewClassifier() *Classifier {
	c := &Classifier{}
	c.lastConfidence.Store(math.Float64bits(1.0))
	return c
}

// Classify returns the dominant emotion of text and a confidence in [0, 1].
func (c *Classifier) Classify(text string) (Label, float64) {
	r := c.Analyze(text)
	return r.Label, r.Confidence
}

// Analyze classifies text and reports per-label keyword counts.
//
// Matching is case-insensitive substring counting; a match resumes the scan
// after its end. The label with the strictly highest count wins, so ties go
// to the earlier label. Fewer than one match in total reads as Neutral.
func (c *Classifier) Analyze(text string) Result {
	lower := strings.ToLower(text)

	r := Result{Label: Neutral, Scores: make(map[Label]int, len(keywords))}
	best := 0
	for _, k := range keywords {
		count := 0
		for _, word := range k.words {
			count += strings.Count(lower, word)
		}
		r.Scores[k.label] = count
		if count > best {
			best = count
			r.Label = k.label
		}
	}

	r.Count = best
	r.Confidence = math.Min(1.0, float64(best)*weightPerMatch)
	if r.Confidence < minConfidence {
		r.Label = Neutral
		r.Confidence = 1.0
	}

	c.lastConfidence.Store(math.Float64bits(r.Confidence))
	return r
}

// LastConfidence returns the confidence of the most recent classification.
func (c *Classifier) LastConfidence() float64 {
	return math.Float64frombits(c.lastConfidence.Load())
}

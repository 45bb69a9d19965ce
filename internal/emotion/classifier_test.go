package emotion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyHappy(t *testing.T) {
	c := NewClassifier()
	r := c.Analyze("I am so happy and excited, what wonderful news!")

	assert.Equal(t, Happy, r.Label)
	assert.GreaterOrEqual(t, r.Count, 2)
	assert.Equal(t, 3, r.Scores[Happy])
	assert.Equal(t, 1, r.Scores[Thoughtful], "wonderful contains wonder")
	assert.InDelta(t, 0.9, r.Confidence, 1e-9)
	assert.InDelta(t, 0.9, c.LastConfidence(), 1e-9)
}

func TestClassifyNeutral(t *testing.T) {
	c := NewClassifier()
	label, confidence := c.Classify("The weather is mild today.")

	assert.Equal(t, Neutral, label)
	assert.Equal(t, 1.0, confidence)
	assert.Equal(t, 1.0, c.LastConfidence())
}

func TestClassifyTieGoesToEarlierLabel(t *testing.T) {
	c := NewClassifier()
	// "sad" for Sad, "wow" for Surprised: one each.
	label, confidence := c.Classify("sad wow")
	assert.Equal(t, Sad, label)
	assert.InDelta(t, 0.3, confidence, 1e-9)
}

func TestClassifyCountsRepeats(t *testing.T) {
	c := NewClassifier()
	r := c.Analyze("Worry, WORRY, worry!")

	assert.Equal(t, Worried, r.Label)
	assert.Equal(t, 3, r.Scores[Worried])
	assert.InDelta(t, 0.9, r.Confidence, 1e-9)
}

func TestClassifyConfidenceCapped(t *testing.T) {
	c := NewClassifier()
	_, confidence := c.Classify("great great great great great")
	assert.Equal(t, 1.0, confidence)
}

func TestClassifyMultiWordKeywords(t *testing.T) {
	c := NewClassifier()
	r := c.Analyze("No way! I can't believe it.")
	assert.Equal(t, Surprised, r.Label)
	assert.Equal(t, 2, r.Scores[Surprised])
}

func TestClassifyEmpty(t *testing.T) {
	c := NewClassifier()
	label, confidence := c.Classify("")
	assert.Equal(t, Neutral, label)
	assert.Equal(t, 1.0, confidence)
}

func TestParse(t *testing.T) {
	l, ok := Parse(" Happy ")
	assert.True(t, ok)
	assert.Equal(t, Happy, l)

	l, ok = Parse("furious")
	assert.False(t, ok)
	assert.Equal(t, Neutral, l)
}

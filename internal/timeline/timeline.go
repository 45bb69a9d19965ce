// Package timeline aligns a phoneme sequence to the length of its audio.
//
// Alignment divides the audio evenly between phonemes. There is no acoustic
// model behind it; lip-sync quality is bounded by that approximation.
package timeline

import (
	"sort"

	"github.com/normanking/talkinghead/internal/phoneme"
)

// Entry is one phoneme placed on the audio clock, in seconds.
type Entry struct {
	Symbol   string  `json:"symbol"`
	ID       int     `json:"id"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// End is the exclusive end of the entry's interval.
func (e Entry) End() float64 {
	return e.Start + e.Duration
}

// Contains reports whether t falls within [Start, End).
func (e Entry) Contains(t float64) bool {
	return e.Start <= t && t < e.End()
}

// Timeline is the immutable schedule for one utterance.
type Timeline struct {
	Entries []Entry `json:"entries"`
	Total   float64 `json:"total_duration"`
	Text    string  `json:"text"`
}

// Build spreads phonemes evenly over total seconds.
//
// Each duration is the difference of neighbouring starts, so every entry ends
// exactly where the next begins and the last ends exactly at total. Durations
// may differ from total/n in the last bit.
func Build(phonemes []phoneme.Symbol, total float64, text string) *Timeline {
	tl := &Timeline{Total: total, Text: text}
	n := len(phonemes)
	if n == 0 {
		return tl
	}

	start := func(i int) float64 {
		if i == n {
			return total
		}
		return total * float64(i) / float64(n)
	}
	tl.Entries = make([]Entry, n)
	for i, p := range phonemes {
		begin := start(i)
		tl.Entries[i] = Entry{
			Symbol:   p.Symbol,
			ID:       p.ID,
			Start:    begin,
			Duration: start(i+1) - begin,
		}
	}
	return tl
}

// Len returns the number of entries.
func (t *Timeline) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Entries)
}

// Find returns the index of the entry containing position, or -1 when the
// position lies outside every entry.
func (t *Timeline) Find(position float64) int {
	if t.Len() == 0 {
		return -1
	}
	i := sort.Search(len(t.Entries), func(i int) bool {
		return t.Entries[i].End() > position
	})
	if i < len(t.Entries) && t.Entries[i].Contains(position) {
		return i
	}
	return -1
}

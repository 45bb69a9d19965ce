package timeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/talkinghead/internal/phoneme"
)

func symbols(n int) []phoneme.Symbol {
	out := make([]phoneme.Symbol, n)
	for i := range out {
		out[i] = phoneme.Symbol{Symbol: fmt.Sprintf("p%d", i), ID: i + 1}
	}
	return out
}

func TestBuildFourPhonemes(t *testing.T) {
	tl := Build(symbols(4), 2.0, "test")

	require.Len(t, tl.Entries, 4)
	assert.Equal(t, 1.0, tl.Entries[2].Start)
	assert.Equal(t, 0.5, tl.Entries[2].Duration)
	assert.Equal(t, "p2", tl.Entries[2].Symbol)
	assert.Equal(t, 3, tl.Entries[2].ID)
	assert.Equal(t, 2.0, tl.Total)
	assert.Equal(t, "test", tl.Text)
}

func TestBuildEmpty(t *testing.T) {
	tl := Build(nil, 1.5, "")
	assert.Empty(t, tl.Entries)
	assert.Equal(t, 1.5, tl.Total)
	assert.Equal(t, -1, tl.Find(0.5))
}

func TestBuildPartitionsDuration(t *testing.T) {
	for _, count := range []int{1, 2, 3, 7, 13, 100} {
		for _, total := range []float64{0, 0.37, 1.0, 2.5, 61.3} {
			tl := Build(symbols(count), total, "")
			require.Len(t, tl.Entries, count)

			assert.Equal(t, 0.0, tl.Entries[0].Start)
			for i, e := range tl.Entries {
				assert.InDelta(t, total/float64(count), e.Duration, 1e-12)
				if i+1 < count {
					assert.Equal(t, tl.Entries[i+1].Start, e.End(), "gap after entry %d", i)
				}
			}
			assert.Equal(t, total, tl.Entries[count-1].End())
		}
	}
}

func TestFindResolvesBoundariesToNextEntry(t *testing.T) {
	for count := 1; count <= 60; count++ {
		for _, total := range []float64{0.1, 0.37, 1.0, 1.3, 2.5, 7.77, 61.3} {
			tl := Build(symbols(count), total, "")
			for i, e := range tl.Entries {
				require.Equal(t, i, tl.Find(e.Start), "count %d total %v entry %d", count, total, i)
			}
			require.Equal(t, -1, tl.Find(total), "count %d total %v", count, total)
		}
	}
}

func TestFind(t *testing.T) {
	tl := Build(symbols(4), 2.0, "")

	tests := []struct {
		position float64
		want     int
	}{
		{0, 0},
		{0.49, 0},
		{0.5, 1},
		{1.0, 2},
		{1.99, 3},
		{2.0, -1},
		{-0.1, -1},
		{5, -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tl.Find(tt.position), "position %v", tt.position)
	}
}

func TestNilTimeline(t *testing.T) {
	var tl *Timeline
	assert.Equal(t, 0, tl.Len())
	assert.Equal(t, -1, tl.Find(0))
}

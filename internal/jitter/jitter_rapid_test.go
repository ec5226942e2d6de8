package jitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestRapidScatterGatherSingleOutstanding checks the §3 "at most one
// outstanding pull and one outstanding pop at a time" contract across
// randomized descriptor counts, block sizes, and payloads: every
// Pull/Push pair and Peer/Pop pair must leave both outstanding flags
// clear before the next one begins, and data must come back in push
// order undamaged.
func TestRapidScatterGatherSingleOutstanding(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		count := rapid.IntRange(1, 6).Draw(t, "count")
		blockSize := rapid.IntRange(1, 16).Draw(t, "blockSize")
		words := rapid.SliceOfN(rapid.SliceOfN(rapid.Byte(), 1, blockSize), 1, 8).Draw(t, "words")

		sg := NewScatterGather(Config{Name: "rapid-sg", Count: count, BlockSize: blockSize, Threshold: 1})

		for _, word := range words {
			assert.False(t, sg.pullOutstanding, "no pull may be outstanding before Pull is called")

			buf := sg.Pull()
			require.NotNil(t, buf)
			assert.True(t, sg.pullOutstanding)

			n := copy(buf, word)
			sg.Push(n, nil)
			assert.False(t, sg.pullOutstanding, "Push must clear the outstanding pull")

			assert.False(t, sg.popOutstanding, "no pop may be outstanding before Peer is called")
			data, _ := sg.Peer()
			assert.True(t, sg.popOutstanding)
			assert.Equal(t, word[:n], data)

			sg.Pop(-1)
			assert.False(t, sg.popOutstanding, "Pop must clear the outstanding pop")
		}
	})
}

// TestRapidRingFIFORoundTrip generalizes TestRingWrapAround: for any
// number of blockSize-aligned pushes, Peer must hand back exactly what
// was pushed, in order, regardless of how many times the underlying
// buffer wraps.
func TestRapidRingFIFORoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		blockSize := rapid.IntRange(1, 32).Draw(t, "blockSize")
		words := rapid.SliceOfN(rapid.SliceOfN(rapid.Byte(), blockSize, blockSize), 1, 12).Draw(t, "words")

		r := NewRing(Config{Name: "rapid-ring", Count: 2, BlockSize: blockSize})

		for _, word := range words {
			buf := r.Pull()
			require.NotNil(t, buf)
			copy(buf, word)
			r.Push(len(word), nil)

			data, _ := r.Peer()
			assert.Equal(t, word, data)
			r.Pop(-1)
		}
		assert.Equal(t, 0, r.Length())
	})
}

// TestRapidScatterGatherThresholdGating checks the FILLING->RUNNING
// transition of §4.1 across randomized thresholds: the jitter must stay
// FILLING until exactly `threshold` descriptors are READY, then flip to
// RUNNING on the one that crosses it.
func TestRapidScatterGatherThresholdGating(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		threshold := rapid.IntRange(1, 6).Draw(t, "threshold")
		count := rapid.IntRange(threshold, threshold+4).Draw(t, "count")
		blockSize := rapid.IntRange(1, 8).Draw(t, "blockSize")

		sg := NewScatterGather(Config{Name: "rapid-thresh", Count: count, BlockSize: blockSize, Threshold: threshold})

		for i := 0; i < threshold-1; i++ {
			buf := sg.Pull()
			copy(buf, make([]byte, blockSize))
			sg.Push(blockSize, nil)
			assert.Equal(t, StateFilling, sg.State(), "must not leave FILLING before threshold is reached")
		}

		buf := sg.Pull()
		copy(buf, make([]byte, blockSize))
		sg.Push(blockSize, nil)
		assert.Equal(t, StateRunning, sg.State(), "must enter RUNNING on the push that reaches threshold")
	})
}

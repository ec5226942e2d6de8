package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiocore/audiocore/internal/jitter"
)

func TestProcessMonoUpmixToStereo16LE(t *testing.T) {
	target := jitter.PCM(2, 16, jitter.LittleEndian, 44100)
	f := New(target)

	frame := Frame{Channels: [][]int32{{int32(0x12340000)}}}
	dst := make([]byte, target.BytesPerFrame())

	n := f.Process(frame, dst)

	require.Equal(t, 4, n)
	// both channels duplicate the mono sample, top 16 bits = 0x1234
	assert.Equal(t, []byte{0x34, 0x12, 0x34, 0x12}, dst)
}

func TestProcessStereo16BigEndian(t *testing.T) {
	target := jitter.PCM(2, 16, jitter.BigEndian, 44100)
	f := New(target)

	frame := Frame{Channels: [][]int32{
		{int32(0x11220000)},
		{int32(0x33440000)},
	}}
	dst := make([]byte, target.BytesPerFrame())

	f.Process(frame, dst)

	assert.Equal(t, []byte{0x11, 0x22, 0x33, 0x44}, dst)
}

func TestProcess24Over32ZeroLowByte(t *testing.T) {
	target := jitter.PCM(1, 32, jitter.LittleEndian, 48000)
	f := New(target)

	frame := Frame{Channels: [][]int32{{int32(0x12345678)}}}
	dst := make([]byte, target.BytesPerFrame())

	f.Process(frame, dst)

	// top 24 bits carried, low byte zeroed regardless of source low byte
	assert.Equal(t, []byte{0x00, 0x56, 0x34, 0x12}, dst[:4])
	assert.Equal(t, byte(0), dst[0], "low byte must be zeroed for 24-over-32 packing")
}

func TestProcessDownmixStereoToMono(t *testing.T) {
	target := jitter.PCM(1, 16, jitter.LittleEndian, 44100)
	f := New(target)

	frame := Frame{Channels: [][]int32{
		{int32(0x11220000)},
		{int32(0x33440000)},
	}}
	dst := make([]byte, target.BytesPerFrame())

	f.Process(frame, dst)

	// mono target only reads the first source channel
	assert.Equal(t, []byte{0x22, 0x11}, dst)
}

func TestProcessUpmixStereoToQuadDuplicatesLastChannel(t *testing.T) {
	target := jitter.PCM(4, 16, jitter.LittleEndian, 44100)
	f := New(target)

	frame := Frame{Channels: [][]int32{
		{int32(0x11000000)},
		{int32(0x22000000)},
	}}
	dst := make([]byte, target.BytesPerFrame())

	f.Process(frame, dst)

	assert.Equal(t, []byte{0x00, 0x11, 0x00, 0x22, 0x00, 0x22, 0x00, 0x22}, dst)
}

func TestProcessMultipleSampleFrames(t *testing.T) {
	target := jitter.PCM(1, 16, jitter.LittleEndian, 44100)
	f := New(target)

	frame := Frame{Channels: [][]int32{{int32(0x01000000), int32(0x02000000)}}}
	dst := make([]byte, 2*target.BytesPerFrame())

	n := f.Process(frame, dst)

	require.Equal(t, 4, n)
	assert.Equal(t, []byte{0x00, 0x01, 0x00, 0x02}, dst)
}

func TestProcessEmptyFrameReturnsZero(t *testing.T) {
	f := New(jitter.PCM(2, 16, jitter.LittleEndian, 44100))
	n := f.Process(Frame{}, make([]byte, 16))
	assert.Equal(t, 0, n)
}

func TestProcessDestinationTooSmallReturnsZero(t *testing.T) {
	target := jitter.PCM(2, 16, jitter.LittleEndian, 44100)
	f := New(target)

	frame := Frame{Channels: [][]int32{{1, 2, 3}, {1, 2, 3}}}
	dst := make([]byte, 2) // far too small for 3 stereo frames

	n := f.Process(frame, dst)
	assert.Equal(t, 0, n)
}

func TestTarget(t *testing.T) {
	target := jitter.PCM(2, 16, jitter.LittleEndian, 48000)
	f := New(target)
	assert.Equal(t, target, f.Target())
}

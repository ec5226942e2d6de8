// Package filter implements the PCM normalization step of spec §4.6: a
// pure function with no state beyond its configured target format. Mono
// is upmixed to stereo by duplication; 24-over-32 packing emits a zero
// low byte.
package filter

import "github.com/audiocore/audiocore/internal/jitter"

// Frame is decoded PCM: one []int32 sample slice per channel, each
// sample left-justified to 32 bits regardless of the source bit depth.
type Frame struct {
	Channels []([]int32)
}

// Filter converts Frame samples into interleaved bytes matching target,
// per spec §4.6.
type Filter struct {
	target jitter.Format
}

// New builds a Filter that normalizes to target.
func New(target jitter.Format) *Filter {
	return &Filter{target: target}
}

// Target returns the configured output format.
func (f *Filter) Target() jitter.Format { return f.target }

// Process writes dst with frame's samples converted to f.target's
// channel count, sample width, and endianness. dst must be at least
// len(frame samples) * target.BytesPerFrame() bytes. It returns the
// number of bytes written.
func (f *Filter) Process(frame Frame, dst []byte) int {
	if len(frame.Channels) == 0 {
		return 0
	}
	nSamples := len(frame.Channels[0])
	frameBytes := f.target.BytesPerFrame()
	if frameBytes == 0 || len(dst) < nSamples*frameBytes {
		return 0
	}

	srcChans := len(frame.Channels)
	dstChans := f.target.Channels
	bytesPerSample := f.target.SampleWidth / 8

	off := 0
	for i := 0; i < nSamples; i++ {
		for ch := 0; ch < dstChans; ch++ {
			srcCh := ch
			if srcChans == 1 {
				// mono upmixed to every output channel by duplication
				srcCh = 0
			} else if ch >= srcChans {
				srcCh = srcChans - 1
			}
			sample := frame.Channels[srcCh][i]
			writeSample(dst[off:off+bytesPerSample], sample, f.target)
			off += bytesPerSample
		}
	}
	return off
}

// writeSample packs a left-justified 32-bit sample into width bytes of
// dst per target's endianness. A 24-bit sample packed into a 32-bit slot
// ("24-over-32") gets a zero low byte, per spec §4.6.
func writeSample(dst []byte, sample int32, target jitter.Format) {
	u := uint32(sample)
	width := target.SampleWidth

	switch width {
	case 16:
		v := uint16(u >> 16)
		putU16(dst, v, target.Endian)
	case 24:
		putU24(dst, u>>8, target.Endian)
	case 32:
		// 24-over-32: top 24 bits carry the sample, low byte zero.
		v := u &^ 0xFF
		putU32(dst, v, target.Endian)
	default:
		if len(dst) >= 1 {
			dst[0] = byte(u >> 24)
		}
	}
}

func putU16(dst []byte, v uint16, e jitter.Endian) {
	if e == jitter.BigEndian {
		dst[0] = byte(v >> 8)
		dst[1] = byte(v)
	} else {
		dst[0] = byte(v)
		dst[1] = byte(v >> 8)
	}
}

func putU24(dst []byte, v uint32, e jitter.Endian) {
	if e == jitter.BigEndian {
		dst[0] = byte(v >> 16)
		dst[1] = byte(v >> 8)
		dst[2] = byte(v)
	} else {
		dst[0] = byte(v)
		dst[1] = byte(v >> 8)
		dst[2] = byte(v >> 16)
	}
}

func putU32(dst []byte, v uint32, e jitter.Endian) {
	if e == jitter.BigEndian {
		dst[0] = byte(v >> 24)
		dst[1] = byte(v >> 16)
		dst[2] = byte(v >> 8)
		dst[3] = byte(v)
	} else {
		dst[0] = byte(v)
		dst[1] = byte(v >> 8)
		dst[2] = byte(v >> 16)
		dst[3] = byte(v >> 24)
	}
}

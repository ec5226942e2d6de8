package decoder

import "github.com/audiocore/audiocore/internal/filter"

// Passthrough is the identity decoder of spec §4.7 (mirrored here on the
// decode side): the input jitter already carries interleaved PCM, so
// DecodeFrame only deinterleaves it into per-channel int32 samples,
// left-justified to 32 bits regardless of source width, ready for
// internal/filter.
type Passthrough struct {
	Channels    int
	SampleWidth int // 16 or 24
	BigEndian   bool
	Rate        int
}

func (p *Passthrough) Mime() string    { return "audio/L16" }
func (p *Passthrough) SampleRate() int { return p.Rate }

func (p *Passthrough) DecodeFrame(in []byte) (filter.Frame, int, error) {
	bytesPerSample := p.SampleWidth / 8
	frameBytes := bytesPerSample * p.Channels
	if frameBytes == 0 || len(in) < frameBytes {
		return filter.Frame{}, 0, nil
	}

	n := len(in) / frameBytes
	chans := make([][]int32, p.Channels)
	for c := range chans {
		chans[c] = make([]int32, n)
	}

	off := 0
	for i := 0; i < n; i++ {
		for c := 0; c < p.Channels; c++ {
			chans[c][i] = p.readSample(in[off : off+bytesPerSample])
			off += bytesPerSample
		}
	}
	return filter.Frame{Channels: chans}, n * frameBytes, nil
}

func (p *Passthrough) readSample(b []byte) int32 {
	var u uint32
	switch p.SampleWidth {
	case 16:
		var v uint16
		if p.BigEndian {
			v = uint16(b[0])<<8 | uint16(b[1])
		} else {
			v = uint16(b[1])<<8 | uint16(b[0])
		}
		u = uint32(v) << 16
	case 24:
		var v uint32
		if p.BigEndian {
			v = uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
		} else {
			v = uint32(b[2])<<16 | uint32(b[1])<<8 | uint32(b[0])
		}
		u = v << 8
	default:
		if p.BigEndian {
			u = uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
		} else {
			u = uint32(b[3])<<24 | uint32(b[2])<<16 | uint32(b[1])<<8 | uint32(b[0])
		}
	}
	return int32(u)
}

var _ Codec = (*Passthrough)(nil)

package decoder

import (
	"encoding/binary"

	"github.com/audiocore/audiocore/internal/filter"
)

// StoredFrame is a length-prefixed, uncompressed PCM frame: a stand-in
// wire format for the lossless round-trip property in spec §8 scenario
// 2. Real FLAC encode/decode bodies are out of core scope (spec §1) and
// sit behind a cgo or pure-Go binding (drgolem/go-flac, mewkiz/flac);
// this codec implements the exact same Codec contract those bindings
// would, so the round-trip test exercises the pipeline's plumbing
// (Decoder -> Filter -> Encoder -> Decoder) without requiring a cgo
// toolchain in this environment.
//
// Wire format: [4-byte big-endian frame length][nChannels interleaved
// int32 samples]. This is intentionally uncompressed: its only job is to
// be bit-exact lossless, the property the test checks.
type StoredDecoder struct {
	Channels int
	Rate     int
}

func (s *StoredDecoder) Mime() string    { return "audio/x-stored-pcm" }
func (s *StoredDecoder) SampleRate() int { return s.Rate }

func (s *StoredDecoder) DecodeFrame(in []byte) (filter.Frame, int, error) {
	if len(in) < 4 {
		return filter.Frame{}, 0, nil
	}
	n := int(binary.BigEndian.Uint32(in[:4]))
	need := 4 + n*s.Channels*4
	if len(in) < need {
		return filter.Frame{}, 0, nil
	}

	chans := make([][]int32, s.Channels)
	for c := range chans {
		chans[c] = make([]int32, n)
	}
	off := 4
	for i := 0; i < n; i++ {
		for c := 0; c < s.Channels; c++ {
			chans[c][i] = int32(binary.BigEndian.Uint32(in[off : off+4]))
			off += 4
		}
	}
	return filter.Frame{Channels: chans}, need, nil
}

var _ Codec = (*StoredDecoder)(nil)

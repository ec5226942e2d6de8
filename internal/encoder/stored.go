package encoder

import (
	"encoding/binary"

	"github.com/audiocore/audiocore/internal/filter"
	"github.com/audiocore/audiocore/internal/jitter"
)

// StoredEncoder is the encode side of decoder.StoredDecoder's wire
// format — see that type's doc comment for why this stands in for a
// real FLAC binding in the lossless round-trip test (spec §8 scenario
// 2). Every frame is one block: the spec's block-size/VBR beat
// accounting still applies (one beat per frame, sized in samples), only
// the byte payload itself is uncompressed.
type StoredEncoder struct {
	Channels int
}

func (s *StoredEncoder) Mime() string { return "audio/x-stored-pcm" }
func (s *StoredEncoder) InputFormat() jitter.Format {
	return jitter.PCM(s.Channels, 32, jitter.BigEndian, 0)
}

func (s *StoredEncoder) EncodeFrame(frame filter.Frame) ([][]byte, []jitter.Beat, error) {
	if len(frame.Channels) == 0 {
		return nil, nil, nil
	}
	n := len(frame.Channels[0])
	buf := make([]byte, 4+n*s.Channels*4)
	binary.BigEndian.PutUint32(buf[:4], uint32(n))
	off := 4
	for i := 0; i < n; i++ {
		for c := 0; c < s.Channels; c++ {
			binary.BigEndian.PutUint32(buf[off:off+4], uint32(frame.Channels[c][i]))
			off += 4
		}
	}
	return [][]byte{buf}, []jitter.Beat{{NSamples: uint64(n)}}, nil
}

func (s *StoredEncoder) Flush() ([][]byte, []jitter.Beat, error) { return nil, nil, nil }

var _ Codec = (*StoredEncoder)(nil)

package encoder

import (
	"github.com/audiocore/audiocore/internal/filter"
	"github.com/audiocore/audiocore/internal/jitter"
)

// Passthrough is the identity encoder of spec §4.7: used when the sink
// accepts PCM directly. It re-interleaves the frame back to bytes and
// emits one beat per frame sized in samples.
type Passthrough struct {
	Format jitter.Format
}

func (p *Passthrough) Mime() string            { return "audio/L16" }
func (p *Passthrough) InputFormat() jitter.Format { return p.Format }

func (p *Passthrough) EncodeFrame(frame filter.Frame) ([][]byte, []jitter.Beat, error) {
	if len(frame.Channels) == 0 {
		return nil, nil, nil
	}
	f := filter.New(p.Format)
	n := len(frame.Channels[0])
	dst := make([]byte, n*p.Format.BytesPerFrame())
	written := f.Process(frame, dst)
	return [][]byte{dst[:written]}, []jitter.Beat{{NSamples: uint64(n)}}, nil
}

func (p *Passthrough) Flush() ([][]byte, []jitter.Beat, error) { return nil, nil, nil }

var _ Codec = (*Passthrough)(nil)

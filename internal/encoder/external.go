package encoder

import (
	"errors"

	"github.com/audiocore/audiocore/internal/filter"
	"github.com/audiocore/audiocore/internal/jitter"
)

// ErrCodecUnavailable is returned by the MP3/FLAC/AAC skeletons below:
// the actual codec library is a narrow external collaborator per spec
// §1 and is not vendored into this module. Each skeleton documents the
// real binding it expects to be wired to.
var ErrCodecUnavailable = errors.New("encoder: external codec library not linked")

// MP3Config mirrors spec §4.7's LAME configuration surface.
type MP3Config struct {
	Channels  int
	Rate      int
	VBR       bool
	Bitrate   int // CBR target, kbps
	VBRQuality int
}

// MP3 is the beat-computation and re-init skeleton for a LAME binding.
// A real build links github.com/viert/lame or an equivalent cgo wrapper
// and fills in the encode call; EncodeFrame here reports
// ErrCodecUnavailable so callers fail loudly rather than silently
// emitting garbage frames.
type MP3 struct {
	cfg MP3Config
}

func NewMP3(cfg MP3Config) *MP3 { return &MP3{cfg: cfg} }

func (m *MP3) Mime() string { return "audio/mpeg" }
func (m *MP3) InputFormat() jitter.Format {
	return jitter.PCM(m.cfg.Channels, 16, jitter.LittleEndian, m.cfg.Rate)
}
func (m *MP3) EncodeFrame(filter.Frame) ([][]byte, []jitter.Beat, error) {
	return nil, nil, ErrCodecUnavailable
}
func (m *MP3) Flush() ([][]byte, []jitter.Beat, error) { return nil, nil, nil }

// FLACConfig mirrors spec §4.7's FLAC settings: streamable subset,
// compression level 5, 4608-sample blocks (sized to fit one RTP
// payload), 24-bit input.
type FLACConfig struct {
	Channels         int
	Rate             int
	CompressionLevel int
	BlockSize        int
}

// FLAC is the re-init/block-size skeleton for a real FLAC encoder
// binding (drgolem/go-flac or mewkiz/flac from the retrieval pack).
type FLAC struct {
	cfg FLACConfig
}

func NewFLAC(cfg FLACConfig) *FLAC {
	if cfg.BlockSize == 0 {
		cfg.BlockSize = 4608
	}
	if cfg.CompressionLevel == 0 {
		cfg.CompressionLevel = 5
	}
	return &FLAC{cfg: cfg}
}

func (f *FLAC) Mime() string { return "audio/flac" }
func (f *FLAC) InputFormat() jitter.Format {
	return jitter.PCM(f.cfg.Channels, 24, jitter.LittleEndian, f.cfg.Rate)
}
func (f *FLAC) EncodeFrame(filter.Frame) ([][]byte, []jitter.Beat, error) {
	return nil, nil, ErrCodecUnavailable
}
func (f *FLAC) Flush() ([][]byte, []jitter.Beat, error) { return nil, nil, nil }

// AACConfig mirrors spec §4.7's faac settings.
type AACConfig struct {
	Channels  int
	Rate      int
	Bitrate   int
	Quantizer int
}

// AAC is the re-init-on-rate-change skeleton for a faac binding.
type AAC struct {
	cfg AACConfig
}

func NewAAC(cfg AACConfig) *AAC { return &AAC{cfg: cfg} }

func (a *AAC) Mime() string { return "audio/aac" }
func (a *AAC) InputFormat() jitter.Format {
	return jitter.PCM(a.cfg.Channels, 16, jitter.LittleEndian, a.cfg.Rate)
}
func (a *AAC) EncodeFrame(filter.Frame) ([][]byte, []jitter.Beat, error) {
	return nil, nil, ErrCodecUnavailable
}
func (a *AAC) Flush() ([][]byte, []jitter.Beat, error) { return nil, nil, nil }

var (
	_ Codec = (*MP3)(nil)
	_ Codec = (*FLAC)(nil)
	_ Codec = (*AAC)(nil)
)

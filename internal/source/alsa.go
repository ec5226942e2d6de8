package source

import (
	"context"
	"math/rand"
	"net/url"
	"strconv"
	"time"

	"github.com/audiocore/audiocore/internal/event"
	"github.com/audiocore/audiocore/internal/jitter"
)

func init() {
	Register("alsa", newALSA)
}

func newALSA(u *url.URL, bus *event.Bus) (Source, error) {
	rate := 44100
	channels := 2
	q := u.Query()
	if r := q.Get("rate"); r != "" {
		if v, err := strconv.Atoi(r); err == nil && v > 0 {
			rate = v
		}
	}
	if c := q.Get("channels"); c != "" {
		if v, err := strconv.Atoi(c); err == nil && v > 0 {
			channels = v
		}
	}
	return &ALSA{base: base{bus: bus}, format: jitter.PCM(channels, 16, jitter.LittleEndian, rate)}, nil
}

// ALSA is the software stand-in for spec §4.3's ALSA-capture source: a
// real binding opens PCM capture and reads snd_pcm_readi-equivalent
// frames; here a period's worth of silence (with a trace of generated
// noise, matching the ALSA sink's underrun convention) is produced on
// each period tick so the passthrough decoder downstream has something
// to chew on during development without real hardware.
type ALSA struct {
	base
	format jitter.Format
	period int
}

func (s *ALSA) Prepare(ctx context.Context) ([]ESInfo, error) {
	if s.period == 0 {
		s.period = 1024
	}
	info := ESInfo{PID: 0, Mime: "audio/L16"}
	s.raiseNewES(info.Mime)
	return []ESInfo{info}, nil
}

func (s *ALSA) Run(ctx context.Context) error {
	s.raiseDecodeES()
	in := s.input()
	if in == nil {
		return nil
	}
	periodBytes := s.period * s.format.BytesPerFrame()
	periodDur := time.Duration(s.period) * time.Second / time.Duration(s.format.Frequency)

	ticker := time.NewTicker(periodDur)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.raiseEndES()
			return ctx.Err()
		case <-ticker.C:
			buf := make([]byte, periodBytes)
			for i := range buf {
				buf[i] = byte(rand.Intn(3) - 1)
			}
			pushAll(in, buf)
		}
	}
}

func (s *ALSA) Mime(int) string { return "audio/L16" }
func (s *ALSA) Destroy()        {}

var _ Source = (*ALSA)(nil)

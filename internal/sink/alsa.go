package sink

import (
	"math/rand"
	"time"

	"github.com/audiocore/audiocore/internal/event"
	"github.com/audiocore/audiocore/internal/jitter"
)

// ALSA is the software stand-in for spec §4.9's ALSA sink: real PCM
// playback needs cgo bindings to libasound, out of core scope for this
// environment. What's preserved is the contract a real binding would
// need to satisfy: negotiated {format, rate, period}, a volume listener
// reacting to PLAYER_VOLUME, and noise-on-underrun instead of silence or
// a blocked write, matching spec.md's described underrun behavior.
type ALSA struct {
	base
	format jitter.Format
	period int
	volume float64 // 0.0-1.0, applied to generated noise amplitude
	device []byte  // in-memory device buffer stand-in
}

// NewALSA builds a software ALSA sink negotiated to format with the
// given period size in frames.
func NewALSA(format jitter.Format, period int) *ALSA {
	return &ALSA{format: format, period: period, volume: 1.0}
}

func (s *ALSA) Service() *ServiceDescriptor { return nil }

// SetVolume implements the separate listener spec §4.9 describes
// updating "an ALSA mixer in response to PLAYER_VOLUME".
func (s *ALSA) SetVolume(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	s.volume = v
}

func (s *ALSA) Run() { s.base.run(s.loop) }

func (s *ALSA) Destroy() { s.base.stop() }

func (s *ALSA) loop() {
	periodBytes := s.period * s.format.BytesPerFrame()
	if periodBytes <= 0 {
		periodBytes = 1024
	}
	periodDur := time.Second
	if s.format.Frequency > 0 && s.period > 0 {
		periodDur = time.Duration(s.period) * time.Second / time.Duration(s.format.Frequency)
	}

	for {
		if s.stopped() {
			return
		}
		s.mu.Lock()
		in := s.in
		s.mu.Unlock()
		if in == nil {
			s.writeDevice(s.generateNoise(periodBytes))
			time.Sleep(periodDur)
			continue
		}

		block, _ := in.Peer()
		if block == nil {
			s.writeDevice(s.generateNoise(periodBytes))
			time.Sleep(periodDur)
			continue
		}
		s.writeDevice(block)
		in.Pop(-1)
	}
}

// generateNoise fills n bytes with low-amplitude noise scaled by the
// current volume, so an underrun is audible as hiss rather than a dead
// air gap or an underflow crash.
func (s *ALSA) generateNoise(n int) []byte {
	s.mu.Lock()
	vol := s.volume
	s.mu.Unlock()

	buf := make([]byte, n)
	amp := int(32 * vol)
	if amp < 1 {
		return buf
	}
	for i := range buf {
		buf[i] = byte(rand.Intn(amp*2+1) - amp)
	}
	return buf
}

func (s *ALSA) writeDevice(block []byte) {
	s.mu.Lock()
	s.device = append(s.device[:0], block...)
	s.mu.Unlock()
}

func (s *ALSA) onUnderrun() {
	s.bus.Raise(event.Event{Kind: event.SinkEncodeEnd})
}

var _ Sink = (*ALSA)(nil)

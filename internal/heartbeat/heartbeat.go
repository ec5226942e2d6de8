// Package heartbeat paces output so encoded frames leave at the wall-clock
// rate the stream's format demands, per spec §4.2.
//
// The sleep-until-deadline arithmetic is grounded on the teacher's QoS poll
// interval math in stream/adaptive.go (duration accumulation against a
// monotonic reference instant), generalized from a fixed per-tier interval
// to the three beat-driven formulas spec.md names: samples, bitrate, pulse.
package heartbeat

import (
	"sync"
	"time"

	"github.com/audiocore/audiocore/internal/jitter"
)

// Variant selects which deadline formula a Heartbeat applies.
type Variant int

const (
	VariantSamples Variant = iota
	VariantBitrate
	VariantPulse
)

// Config parameterizes a Heartbeat.
type Config struct {
	Variant    Variant
	SampleRate int           // Hz, VariantSamples
	Bitrate    int           // bits per second, VariantBitrate
	Period     time.Duration // VariantPulse
}

// Heartbeat is a function from a beat descriptor to a sleep-until instant.
// It implements jitter.Pacer so a jitter can gate Peer() on it directly.
type Heartbeat struct {
	mu     sync.Mutex
	cfg    Config
	target time.Time
	// sleepFn is swappable in tests so Wait() doesn't actually block.
	sleepFn func(time.Duration)
	nowFn   func() time.Time
}

// New builds a Heartbeat from cfg.
func New(cfg Config) *Heartbeat {
	return &Heartbeat{
		cfg:     cfg,
		sleepFn: time.Sleep,
		nowFn:   time.Now,
	}
}

// Lock exposes the internal mutex so a jitter can serialise a beat update
// relative to the sleep it gates, per spec §4.2.
func (h *Heartbeat) Lock() { h.mu.Lock() }

// Unlock releases the mutex taken by Lock.
func (h *Heartbeat) Unlock() { h.mu.Unlock() }

// Start samples the current clock into target_time and zeroes the
// accumulator.
func (h *Heartbeat) Start() {
	h.mu.Lock()
	h.target = h.nowFn()
	h.mu.Unlock()
}

// Wait advances the internal deadline per the configured variant and
// sleeps until it, per spec §4.2. Sleeping is interruptible in spirit
// (bounded by sleepFn granularity); if the deadline has already passed,
// Wait reports "too late" by simply returning immediately rather than
// sleeping a negative duration, so a slow consumer never stalls the
// pipeline indefinitely.
func (h *Heartbeat) Wait(beat jitter.Beat) {
	h.mu.Lock()
	if h.target.IsZero() {
		h.target = h.nowFn()
	}

	var advance time.Duration
	switch h.cfg.Variant {
	case VariantSamples:
		if beat.NSamples == 0 || h.cfg.SampleRate <= 0 {
			h.mu.Unlock()
			return
		}
		advance = time.Duration(beat.NSamples) * time.Second / time.Duration(h.cfg.SampleRate)
	case VariantBitrate:
		if beat.Length == 0 || h.cfg.Bitrate <= 0 {
			h.mu.Unlock()
			return
		}
		advance = time.Duration(beat.Length*8) * time.Second / time.Duration(h.cfg.Bitrate)
	case VariantPulse:
		if h.cfg.Period <= 0 {
			h.mu.Unlock()
			return
		}
		advance = h.cfg.Period
	}

	h.target = h.target.Add(advance)
	deadline := h.target
	h.mu.Unlock()

	now := h.nowFn()
	if deadline.After(now) {
		h.sleepFn(deadline.Sub(now))
	}
	// else: deadline already passed ("too late"); return promptly.
}

// TargetTime returns the current absolute deadline, mainly for tests and
// diagnostics.
func (h *Heartbeat) TargetTime() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.target
}

var _ jitter.Pacer = (*Heartbeat)(nil)

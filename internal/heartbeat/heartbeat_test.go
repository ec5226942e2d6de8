package heartbeat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiocore/audiocore/internal/jitter"
)

// fakeClock lets Wait's arithmetic be tested without real sleeping.
type fakeClock struct {
	now    time.Time
	slept  []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Sleep(d time.Duration) {
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
}

func newTestHeartbeat(cfg Config) (*Heartbeat, *fakeClock) {
	h := New(cfg)
	clock := &fakeClock{now: time.Unix(0, 0)}
	h.nowFn = clock.Now
	h.sleepFn = clock.Sleep
	return h, clock
}

func TestHeartbeatSamplesVariantAdvance(t *testing.T) {
	h, clock := newTestHeartbeat(Config{Variant: VariantSamples, SampleRate: 48000})
	h.Start()

	h.Wait(jitter.Beat{NSamples: 48000})

	require.Len(t, clock.slept, 1)
	assert.Equal(t, time.Second, clock.slept[0])
}

func TestHeartbeatBitrateVariantAdvance(t *testing.T) {
	h, clock := newTestHeartbeat(Config{Variant: VariantBitrate, Bitrate: 128000})
	h.Start()

	h.Wait(jitter.Beat{Length: 16000})

	require.Len(t, clock.slept, 1)
	assert.Equal(t, time.Second, clock.slept[0])
}

func TestHeartbeatPulseVariantIgnoresBeat(t *testing.T) {
	h, clock := newTestHeartbeat(Config{Variant: VariantPulse, Period: 20 * time.Millisecond})
	h.Start()

	h.Wait(jitter.Beat{})

	require.Len(t, clock.slept, 1)
	assert.Equal(t, 20*time.Millisecond, clock.slept[0])
}

func TestHeartbeatDeadlineAlreadyPassedDoesNotSleep(t *testing.T) {
	h, clock := newTestHeartbeat(Config{Variant: VariantPulse, Period: 10 * time.Millisecond})
	h.Start()
	// Advance the clock well past the next deadline before calling Wait.
	clock.now = clock.now.Add(time.Hour)

	h.Wait(jitter.Beat{})

	assert.Empty(t, clock.slept, "Wait should not sleep once the deadline has already passed")
}

func TestHeartbeatZeroBeatNoOp(t *testing.T) {
	h, clock := newTestHeartbeat(Config{Variant: VariantSamples, SampleRate: 48000})
	h.Start()

	h.Wait(jitter.Beat{NSamples: 0})

	assert.Empty(t, clock.slept)
}

func TestHeartbeatSatisfiesPacer(t *testing.T) {
	var p jitter.Pacer = New(Config{Variant: VariantPulse, Period: time.Millisecond})
	assert.NotNil(t, p)
}

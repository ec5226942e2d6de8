package player

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiocore/audiocore/internal/decoder"
	"github.com/audiocore/audiocore/internal/encoder"
	"github.com/audiocore/audiocore/internal/event"
	"github.com/audiocore/audiocore/internal/jitter"
	"github.com/audiocore/audiocore/internal/mediadb"
	"github.com/audiocore/audiocore/internal/source"
)

// fakeCatalog is a one-entry mediadb.Catalog stand-in.
type fakeCatalog struct {
	url  string
	mime string
}

func (f *fakeCatalog) Next(current int, opts mediadb.Options) (int, bool) { return 1, true }
func (f *fakeCatalog) Play(id int, cb mediadb.PlayCallback) error {
	cb(f.url, mediadb.Entry{ID: id, URL: f.url}, f.mime)
	return nil
}
func (f *fakeCatalog) Insert(mediadb.Entry) (int, error)         { return 0, nil }
func (f *fakeCatalog) Get(int) (mediadb.Entry, error)            { return mediadb.Entry{}, nil }
func (f *fakeCatalog) SetInfo(int, mediadb.Entry) error          { return nil }
func (f *fakeCatalog) List(int, int) []mediadb.Entry             { return nil }
func (f *fakeCatalog) Filter(mediadb.Options) []mediadb.Entry    { return nil }
func (f *fakeCatalog) Remove(int) error                          { return nil }
func (f *fakeCatalog) Append([]mediadb.Entry) []int              { return nil }
func (f *fakeCatalog) Count() int                                { return 1 }

// fakeSource announces a single elementary stream and otherwise does
// nothing; Run blocks until the context is cancelled.
type fakeSource struct {
	bus *event.Bus
	mu  sync.Mutex
	in  jitter.Jitter
}

func (s *fakeSource) Prepare(ctx context.Context) ([]source.ESInfo, error) {
	s.bus.Raise(event.Event{Kind: event.SrcNewES, Payload: event.NewESPayload{PID: 1, Mime: "audio/L16"}})
	return []source.ESInfo{{PID: 1, Mime: "audio/L16"}}, nil
}
func (s *fakeSource) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
func (s *fakeSource) Attach(pid int, in jitter.Jitter) {
	s.mu.Lock()
	s.in = in
	s.mu.Unlock()
}
func (s *fakeSource) Mime(int) string { return "audio/L16" }
func (s *fakeSource) Destroy()        {}

func registerFakeSourceOnce() {
	source.Register("playertest", func(u *url.URL, bus *event.Bus) (source.Source, error) {
		return &fakeSource{bus: bus}, nil
	})
}

func waitForState(t *testing.T, p *Player, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if p.State() == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for state %s, got %s", want, p.State())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func newTestPlayer(t *testing.T, media mediadb.Catalog) *Player {
	t.Helper()
	p := New(Config{
		Media: media,
		BuildES: func(mime string) (decoder.Codec, jitter.Format, error) {
			return &decoder.Passthrough{Channels: 2, SampleWidth: 16, Rate: 44100},
				jitter.PCM(2, 16, jitter.LittleEndian, 44100), nil
		},
		BuildEncoder: func(outFormat jitter.Format) (*encoder.Encoder, jitter.Jitter, error) {
			out := jitter.NewScatterGather(jitter.Config{Name: "enc-out", Count: 4, BlockSize: 4096, Threshold: 1})
			enc := encoder.New(&encoder.Passthrough{Format: outFormat}, out, out)
			return enc, out, nil
		},
		JitterConfig: jitter.Config{Count: 4, BlockSize: 4096, Threshold: 1},
	})
	t.Cleanup(p.Destroy)
	return p
}

func TestNewPlayerStartsStopped(t *testing.T) {
	p := newTestPlayer(t, &fakeCatalog{})
	assert.Equal(t, StateStop, p.State())
	assert.Equal(t, 100, p.Volume())
}

func TestSetVolumeClampsAndRaisesEvent(t *testing.T) {
	p := newTestPlayer(t, &fakeCatalog{})

	var got int
	p.Bus().Register("test", func(ev event.Event, _ any) {
		if vp, ok := ev.Payload.(event.VolumePayload); ok {
			got = vp.Level
		}
	}, nil)

	p.SetVolume(150)
	assert.Equal(t, 100, p.Volume())
	assert.Equal(t, 100, got)

	p.SetVolume(-5)
	assert.Equal(t, 0, p.Volume())
}

func TestSetNextRecordsPendingID(t *testing.T) {
	p := newTestPlayer(t, &fakeCatalog{})
	p.SetNext(42)

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.True(t, p.hasNext)
	assert.Equal(t, 42, p.nextID)
}

func TestRequestStatePlayBuildsSourceAndDecoder(t *testing.T) {
	registerFakeSourceOnce()
	p := newTestPlayer(t, &fakeCatalog{url: "playertest://x", mime: "audio/L16"})
	p.Run()

	p.RequestState(StatePlay)

	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return len(p.decoded) == 1
	}, 2*time.Second, 5*time.Millisecond, "expected onSrcNewES to register a decoder")
}

func TestDestroyStopsLoopCleanly(t *testing.T) {
	p := newTestPlayer(t, &fakeCatalog{})
	p.Run()
	p.RequestState(StateStop)
	assert.NotPanics(t, p.Destroy)
}

func TestStateStringer(t *testing.T) {
	assert.Equal(t, "stop", StateStop.String())
	assert.Equal(t, "play", StatePlay.String())
	assert.Equal(t, "change", StateChange.String())
	assert.Equal(t, "error", StateError.String())
	assert.Equal(t, "unknown", State(99).String())
}

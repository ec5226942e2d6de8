package source

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiocore/audiocore/internal/event"
	"github.com/audiocore/audiocore/internal/jitter"
)

type stubSource struct {
	base
	scheme string
}

func (s *stubSource) Prepare(ctx context.Context) ([]ESInfo, error) {
	s.raiseNewES("audio/test")
	return []ESInfo{{PID: 1, Mime: "audio/test"}}, nil
}
func (s *stubSource) Run(ctx context.Context) error { return nil }
func (s *stubSource) Destroy()                      {}

func TestRegisterAndOpenDispatchesByScheme(t *testing.T) {
	Register("stubtest", func(u *url.URL, bus *event.Bus) (Source, error) {
		return &stubSource{base: base{bus: bus}, scheme: u.Scheme}, nil
	})

	bus := event.NewBus()
	src, err := Open("stubtest://host/path", bus)
	require.NoError(t, err)

	ss, ok := src.(*stubSource)
	require.True(t, ok)
	assert.Equal(t, "stubtest", ss.scheme)
}

func TestOpenUnknownSchemeReturnsError(t *testing.T) {
	_, err := Open("nosuchscheme://x", event.NewBus())
	assert.Error(t, err)
}

func TestOpenDashIsRewrittenToStdinScheme(t *testing.T) {
	Register("stdin", func(u *url.URL, bus *event.Bus) (Source, error) {
		return &stubSource{base: base{bus: bus}, scheme: u.Scheme}, nil
	})

	src, err := Open("-", event.NewBus())
	require.NoError(t, err)
	ss, ok := src.(*stubSource)
	require.True(t, ok)
	assert.Equal(t, "stdin", ss.scheme)
}

func TestOpenPCMSchemeAliasesToALSA(t *testing.T) {
	Register("alsa", func(u *url.URL, bus *event.Bus) (Source, error) {
		return &stubSource{base: base{bus: bus}, scheme: u.Scheme}, nil
	})

	src, err := Open("pcm://default", event.NewBus())
	require.NoError(t, err)
	ss, ok := src.(*stubSource)
	require.True(t, ok)
	assert.Equal(t, "alsa", ss.scheme)
}

func TestBasePrepareRaisesSrcNewES(t *testing.T) {
	bus := event.NewBus()
	var gotMime string
	bus.Register("test", func(ev event.Event, _ any) {
		if p, ok := ev.Payload.(event.NewESPayload); ok {
			gotMime = p.Mime
		}
	}, nil)

	s := &stubSource{base: base{bus: bus}}
	s.Attach(1, nil)
	_, err := s.Prepare(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "audio/test", gotMime)
}

func TestPushAllFragmentsAcrossBlocks(t *testing.T) {
	in := jitter.NewScatterGather(jitter.Config{Name: "t", Count: 4, BlockSize: 4, Threshold: 1})
	n := pushAll(in, []byte("abcdefgh"))
	assert.Equal(t, 8, n)
}

func TestPushAllStopsWhenJitterStops(t *testing.T) {
	in := jitter.NewScatterGather(jitter.Config{Name: "t", Count: 1, BlockSize: 4, Threshold: 1})
	in.Flush()
	n := pushAll(in, []byte("abcd"))
	assert.Equal(t, 0, n)
}

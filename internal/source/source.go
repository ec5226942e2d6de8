// Package source implements the protocol-keyed input stage of spec
// §4.3: a source is picked by matching a URL scheme to a registered
// protocol, prepares its elementary streams, then runs a production
// loop into a decoder's jitter.
//
// Grounded on the teacher's internal/source/handler.go: its read-loop
// shapes (buffered reads, immediate forward, timeout tolerance) are
// reused here, generalized from "read an Icecast PUT body into a
// mount's ring buffer" to "read bytes into a decoder's jitter".
package source

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/audiocore/audiocore/internal/event"
	"github.com/audiocore/audiocore/internal/jitter"
)

// ESInfo describes one elementary stream a source is about to emit, the
// payload of the SRC_NEW_ES event.
type ESInfo struct {
	PID  int
	Mime string
}

// Source is the contract of spec §4.3, rendered as a Go interface.
type Source interface {
	// Prepare raises SrcNewES for each elementary stream and returns
	// their descriptors.
	Prepare(ctx context.Context) ([]ESInfo, error)
	// Run starts production; it raises SrcDecodeES for pid and either
	// returns once streaming has started (asynchronous sources) or
	// blocks until the stream ends (synchronous/pull sources).
	Run(ctx context.Context) error
	// Attach binds the decoder input jitter that PID pid's bytes should
	// be pushed to.
	Attach(pid int, in jitter.Jitter)
	Mime(pid int) string
	Destroy()
}

// Factory builds a Source for a URL whose scheme this factory claims.
type Factory func(u *url.URL, bus *event.Bus) (Source, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register associates a URL scheme with a Source factory. Called from
// each variant's init().
func Register(scheme string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[scheme] = f
}

// Open parses rawURL, matches its scheme against the registry (treating
// "-" as the stdin scheme), and builds the matching Source.
func Open(rawURL string, bus *event.Bus) (Source, error) {
	if rawURL == "-" {
		rawURL = "stdin://-"
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("source: parse url %q: %w", rawURL, err)
	}

	scheme := u.Scheme
	if scheme == "pcm" {
		scheme = "alsa"
	}

	registryMu.RLock()
	f, ok := registry[scheme]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("source: no registered protocol for scheme %q", scheme)
	}
	return f(u, bus)
}

// base carries the fields every variant shares: a single decoder-jitter
// attachment and an event bus for SRC_NEW_ES/SRC_DECODE_ES/SRC_END_ES.
type base struct {
	mu  sync.Mutex
	in  jitter.Jitter
	bus *event.Bus
	pid int
}

func (b *base) Attach(pid int, in jitter.Jitter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pid = pid
	b.in = in
}

func (b *base) input() jitter.Jitter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.in
}

func (b *base) raiseNewES(mime string) {
	if b.bus != nil {
		b.bus.Raise(event.Event{Kind: event.SrcNewES, Payload: event.NewESPayload{PID: uint32(b.pid), Mime: mime}})
	}
}

func (b *base) raiseDecodeES() {
	if b.bus != nil {
		b.bus.Raise(event.Event{Kind: event.SrcDecodeES, Payload: event.DecodeESPayload{PID: uint32(b.pid)}})
	}
}

func (b *base) raiseEndES() {
	if b.bus != nil {
		b.bus.Raise(event.Event{Kind: event.SrcEndES, Payload: event.EndESPayload{PID: uint32(b.pid)}})
	}
}

// pushAll pushes buf into jitter in, fragmenting across blocks the way
// the demux does (spec §4.4 step 5), returning the number of bytes
// accepted (0 once the jitter stops accepting writes).
func pushAll(in jitter.Jitter, buf []byte) int {
	written := 0
	for len(buf) > 0 {
		dst := in.Pull()
		if dst == nil {
			return written
		}
		n := copy(dst, buf)
		in.Push(n, nil)
		written += n
		buf = buf[n:]
	}
	return written
}

// Package sink implements the push-bytes-out stage of spec §4.9: ALSA,
// File, Unix, and UDP/RTP variants, all driven off a single input jitter
// with one service goroutine each.
package sink

import (
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/audiocore/audiocore/internal/encoder"
	"github.com/audiocore/audiocore/internal/event"
	"github.com/audiocore/audiocore/internal/jitter"
)

// Sink is the contract every variant below implements: init/attach/run
// and the rest of spec §4.9's method list, rendered as a Go interface
// instead of a vtable.
type Sink interface {
	// Attach wires the encoder whose output jitter this sink consumes.
	Attach(enc *encoder.Encoder, in jitter.Jitter)
	// Jitter returns the input jitter at index (sinks with a single
	// input just ignore the index).
	Jitter(index int) jitter.Jitter
	// Run starts the service loop on its own goroutine.
	Run()
	// Service returns an mDNS service descriptor, or nil if this sink
	// isn't advertised.
	Service() *ServiceDescriptor
	// Destroy stops the service loop and releases resources.
	Destroy()
	// EventListener registers cb for this sink's lifecycle events
	// (underrun, client attach/detach).
	EventListener(cb event.Callback) int
}

// ServiceDescriptor is what a sink hands to internal/mdns for
// advertisement (name, type, port, TXT record).
type ServiceDescriptor struct {
	InstanceName string
	Type         string // e.g. "_rtp._udp"
	Port         int
	Text         map[string]string
}

// base holds the fields common to every variant: the attached encoder,
// input jitter, event bus and stop signalling, mirroring the shared
// struct pattern internal/decoder and internal/encoder already use.
type base struct {
	mu      sync.Mutex
	enc     *encoder.Encoder
	in      jitter.Jitter
	bus     event.Bus
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

func (b *base) Attach(enc *encoder.Encoder, in jitter.Jitter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enc = enc
	b.in = in
}

func (b *base) Jitter(int) jitter.Jitter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.in
}

func (b *base) EventListener(cb event.Callback) int {
	return b.bus.Register("sink", cb, nil)
}

func (b *base) stop() {
	b.mu.Lock()
	if b.started {
		close(b.stopCh)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *base) run(loop func()) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.stopCh = make(chan struct{})
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		loop()
	}()
}

func (b *base) stopped() bool {
	select {
	case <-b.stopCh:
		return true
	default:
		return false
	}
}

// Open builds the sink variant named by rawURL's scheme, the output-side
// counterpart of internal/source.Open. format/instance only matter to
// variants that need them (ALSA's negotiated format, RTP's mDNS
// instance name); the rest ignore them.
//
//	file:///path/to/out.pcm, file://- (stdout)
//	unix:///run/audiocore/mon.sock
//	udp://host:port[?group=addr:port]
//	rtp://host:port?instance=name[&group=addr:port]
//	alsa://default?period=N
func Open(rawURL string, format jitter.Format, instance string) (Sink, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("sink: parse %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case "file":
		path := u.Path
		if path == "" || path == "/-" {
			path = "-"
		}
		return NewFile(path)
	case "unix":
		return NewUnix(u.Path)
	case "udp":
		return NewUDP(u.Host, u.Query().Get("group"))
	case "rtp":
		name := u.Query().Get("instance")
		if name == "" {
			name = instance
		}
		return NewRTP(u.Host, u.Query().Get("group"), name)
	case "alsa":
		period := 1024
		if p := u.Query().Get("period"); p != "" {
			if n, err := strconv.Atoi(p); err == nil {
				period = n
			}
		}
		return NewALSA(format, period), nil
	default:
		return nil, fmt.Errorf("sink: unsupported scheme %q", u.Scheme)
	}
}

// Package demux implements the RTP demultiplexer of spec §4.4: a
// (ssrc, payload-type) session table seeded from a payload-type→mime
// profile, elementary-stream discovery, and in-band control routing.
//
// This is also where the REDESIGN FLAG fix from spec §9 lives: the
// original C anchors seqorig from the very first packet ever seen and
// never resets it on ssrc change, so "missing" counts drift once a
// second session appears. Here each session Descriptor owns its own
// sequence origin, set once when the descriptor is allocated.
package demux

import (
	"sync"

	"github.com/audiocore/audiocore/internal/jitter"
	rtpwire "github.com/audiocore/audiocore/internal/rtp"
)

type sessionKey struct {
	ssrc uint32
	pt   uint8
}

// Descriptor is one tracked elementary stream, per spec §4.4.
type Descriptor struct {
	SSRC   uint32
	PT     uint8
	Mime   string
	Jitter jitter.Jitter

	seqOriginSet bool
	lastSeq      uint16
	Missing      uint64
}

// Allocator builds the decoder + input jitter for a newly discovered
// elementary stream. The player supplies this; the demux never builds
// decoders itself (spec §4.4 step 3).
type Allocator func(ssrc uint32, pt uint8, mime string) (jitter.Jitter, error)

// Demux is the RTP demultiplexer.
type Demux struct {
	mu sync.Mutex

	ptMime map[uint8]string

	sessions    map[sessionKey]*Descriptor
	activeKey   sessionKey
	hasActive   bool
	suggestions []sessionKey

	allocate    Allocator
	onControl   func(cmds []rtpwire.Cmd)
	onSuggested func(ssrc uint32, pt uint8, mime string) // media-db advertise hook
}

// New builds a Demux seeded with the default payload-type table
// (14→MP3, 11→PCM, 46→FLAC) plus any overrides, per spec §4.4.
func New(alloc Allocator, overrides map[uint8]string) *Demux {
	d := &Demux{
		ptMime: map[uint8]string{
			rtpwire.PTMP3:  "audio/mpeg",
			rtpwire.PTPCM:  "audio/L16",
			rtpwire.PTFLAC: "audio/flac",
		},
		sessions: make(map[sessionKey]*Descriptor),
		allocate: alloc,
	}
	for pt, mime := range overrides {
		d.ptMime[pt] = mime
	}
	return d
}

// OnControl registers the callback invoked when a pt=99 control
// extension is received, routing decoded commands (state/volume) to the
// player.
func (d *Demux) OnControl(fn func(cmds []rtpwire.Cmd)) {
	d.mu.Lock()
	d.onControl = fn
	d.mu.Unlock()
}

// OnSuggested registers the callback invoked when a non-active ssrc
// appears; used to advertise the candidate session to the media
// database's insert interface, per spec §4.4 step 3.
func (d *Demux) OnSuggested(fn func(ssrc uint32, pt uint8, mime string)) {
	d.mu.Lock()
	d.onSuggested = fn
	d.mu.Unlock()
}

// Feed routes one parsed RTP packet through the demultiplexer, per spec
// §4.4's numbered packet flow.
func (d *Demux) Feed(pkt rtpwire.Packet) error {
	if pkt.PayloadType == rtpwire.PTControl && len(pkt.Extension) > 0 {
		cmds, err := rtpwire.DecodeControlBlock(pkt.Extension)
		if err == nil {
			d.mu.Lock()
			cb := d.onControl
			d.mu.Unlock()
			if cb != nil {
				cb(cmds)
			}
		}
		return nil
	}

	key := sessionKey{ssrc: pkt.SSRC, pt: pkt.PayloadType}

	d.mu.Lock()
	desc, ok := d.sessions[key]
	if !ok {
		if !d.hasActive {
			mime := d.ptMime[pkt.PayloadType]
			alloc := d.allocate
			d.mu.Unlock()

			j, err := alloc(pkt.SSRC, pkt.PayloadType, mime)
			if err != nil {
				return err
			}

			d.mu.Lock()
			desc = &Descriptor{SSRC: pkt.SSRC, PT: pkt.PayloadType, Mime: mime, Jitter: j}
			d.sessions[key] = desc
			d.activeKey = key
			d.hasActive = true
		} else {
			d.suggestions = append(d.suggestions, key)
			cb := d.onSuggested
			mime := d.ptMime[pkt.PayloadType]
			d.mu.Unlock()
			if cb != nil {
				cb(pkt.SSRC, pkt.PayloadType, mime)
			}
			return nil
		}
	}

	if !desc.seqOriginSet {
		desc.seqOriginSet = true
		desc.lastSeq = pkt.SequenceNumber
	} else {
		expected := desc.lastSeq + 1
		if pkt.SequenceNumber != expected {
			desc.Missing += uint64(pkt.SequenceNumber - expected)
		}
		desc.lastSeq = pkt.SequenceNumber
	}
	j := desc.Jitter
	d.mu.Unlock()

	return writeFragmented(j, pkt.Payload)
}

// writeFragmented copies payload into j via pull/push, splitting across
// multiple blocks when the packet is larger than one block (spec §4.4
// step 5).
func writeFragmented(j jitter.Jitter, payload []byte) error {
	off := 0
	for off < len(payload) {
		buf := j.Pull()
		if buf == nil {
			return nil // flushed/stopped mid-write
		}
		n := copy(buf, payload[off:])
		j.Push(n, nil)
		off += n
	}
	if len(payload) == 0 {
		// Nothing to copy but still signal the producer side is alive;
		// callers that need an explicit zero-length marker use EndES.
		return nil
	}
	return nil
}

// EndES releases all descriptors, per spec §4.4 step 6
// (SRC_EVENT_END_ES).
func (d *Demux) EndES() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, desc := range d.sessions {
		desc.Jitter.Flush()
	}
	d.sessions = make(map[sessionKey]*Descriptor)
	d.hasActive = false
	d.suggestions = nil
}

// Descriptors returns a snapshot of tracked sessions, for diagnostics and
// tests.
func (d *Demux) Descriptors() []*Descriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Descriptor, 0, len(d.sessions))
	for _, desc := range d.sessions {
		out = append(out, desc)
	}
	return out
}

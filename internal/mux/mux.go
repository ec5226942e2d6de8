// Package mux implements the RTP multiplexer of spec §4.8: header state,
// per-elementary-stream input jitters peered in round robin, optional
// control/PCM extension injection, and redundant-SSRC duplication.
package mux

import (
	"sync"

	"github.com/audiocore/audiocore/internal/jitter"
	rtpwire "github.com/audiocore/audiocore/internal/rtp"
	"github.com/pion/rtcp"
)

const controlExtensionID uint8 = 1

// Stream is one elementary stream attached to the mux.
type Stream struct {
	Mime           string
	Input          jitter.Jitter
	PT             uint8
	ExtensionBytes []byte // static PCM-descriptor extension, if any
}

// Config parameterizes a Mux.
type Config struct {
	SSRC          uint32
	PulseInterval uint32 // timestamp units advanced per packet
	DoubleSSRC    bool
	SRInterval    int // emit an RTCP sender report every N packets; 0 disables
}

// Mux is the RTP multiplexer.
type Mux struct {
	mu sync.Mutex

	cfg    Config
	seq    uint16
	ts     uint32
	output jitter.Jitter

	streams []*Stream
	rr      int

	pendingControl []rtpwire.Cmd
	packetCount    uint32

	onSenderReport func(rtcp.SenderReport)
}

// New builds a Mux writing framed packets into output.
func New(cfg Config, output jitter.Jitter) *Mux {
	if cfg.SSRC == 0 {
		cfg.SSRC = randSSRC()
	}
	return &Mux{
		cfg:    cfg,
		seq:    randSeq(),
		output: output,
	}
}

// OnSenderReport registers a callback invoked whenever the mux emits a
// periodic RTCP sender report (domain-stack wiring: SINK_ENCODE telemetry
// per SPEC_FULL §2).
func (m *Mux) OnSenderReport(fn func(rtcp.SenderReport)) {
	m.mu.Lock()
	m.onSenderReport = fn
	m.mu.Unlock()
}

// Attach adds an elementary stream to the round-robin rotation.
func (m *Mux) Attach(s *Stream) {
	m.mu.Lock()
	m.streams = append(m.streams, s)
	m.mu.Unlock()
}

// QueueControl arranges for cmds to be embedded as an extension on the
// next outgoing packet, per spec §4.8 step 4 (player state/volume
// change injected in-band).
func (m *Mux) QueueControl(cmds []rtpwire.Cmd) {
	m.mu.Lock()
	m.pendingControl = append(m.pendingControl, cmds...)
	m.mu.Unlock()
}

// Tick peers one encoded block from the next stream in round-robin
// order and pushes a framed packet to the output jitter, per spec §4.8.
// It returns false when there are no attached streams or the chosen
// stream's input jitter is draining (Peer returned nil).
func (m *Mux) Tick() bool {
	m.mu.Lock()
	if len(m.streams) == 0 {
		m.mu.Unlock()
		return false
	}
	idx := m.rr % len(m.streams)
	m.rr++
	s := m.streams[idx]
	m.mu.Unlock()

	payload, _ := s.Input.Peer()
	if payload == nil {
		return false
	}
	defer s.Input.Pop(-1)

	m.mu.Lock()
	m.seq++
	marker := m.seq == 0
	seq := m.seq
	m.ts += m.cfg.PulseInterval
	ts := m.ts

	var ext []byte
	var extID uint8
	switch {
	case len(m.pendingControl) > 0:
		block, err := rtpwire.EncodeControlBlock(m.pendingControl)
		if err == nil {
			ext = block
			extID = controlExtensionID
		}
		m.pendingControl = nil
	case len(s.ExtensionBytes) > 0:
		ext = s.ExtensionBytes
		extID = controlExtensionID
	}
	ssrc := m.cfg.SSRC
	m.mu.Unlock()

	pkt := rtpwire.Packet{
		Marker:         marker,
		PayloadType:    s.PT,
		SequenceNumber: seq,
		Timestamp:      ts,
		SSRC:           ssrc,
		ExtensionID:    extID,
		Extension:      ext,
		Payload:        append([]byte(nil), payload...),
	}
	m.sendFramed(pkt)

	if m.cfg.DoubleSSRC {
		dup := pkt
		dup.SSRC = ssrc + 1
		m.sendFramed(dup)
	}

	m.mu.Lock()
	m.packetCount++
	count := m.packetCount
	srInterval := m.cfg.SRInterval
	cb := m.onSenderReport
	m.mu.Unlock()

	if srInterval > 0 && int(count)%srInterval == 0 && cb != nil {
		cb(rtcp.SenderReport{
			SSRC:        ssrc,
			NTPTime:     0,
			RTPTime:     ts,
			PacketCount: count,
		})
	}

	return true
}

func (m *Mux) sendFramed(pkt rtpwire.Packet) {
	buf, err := rtpwire.Marshal(pkt)
	if err != nil {
		return
	}
	dst := m.output.Pull()
	if dst == nil {
		return
	}
	n := copy(dst, buf)
	beat := jitter.Beat{NSamples: uint64(m.cfg.PulseInterval)}
	m.output.Push(n, &beat)
}

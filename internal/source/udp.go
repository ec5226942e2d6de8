package source

import (
	"context"
	"net"
	"net/url"

	"github.com/audiocore/audiocore/internal/demux"
	"github.com/audiocore/audiocore/internal/event"
	"github.com/audiocore/audiocore/internal/jitter"
	rtpwire "github.com/audiocore/audiocore/internal/rtp"
)

func init() {
	Register("udp", newUDP)
	Register("rtp", newUDP)
}

func newUDP(u *url.URL, bus *event.Bus) (Source, error) {
	return &UDP{base: base{bus: bus}, addr: u.Host, mimes: make(map[int]string)}, nil
}

// UDP is the UDP/RTP source variant of spec §4.3: a receive loop that
// parses each datagram as an RTP packet and feeds it to a demux.Demux,
// which allocates an elementary stream (and its jitter) on first sight
// of a session (spec §4.4 steps 1-3). This source raises SRC_NEW_ES
// lazily, from the demux's allocator callback, rather than up front,
// since the set of elementary streams is not known until packets
// arrive.
type UDP struct {
	base
	addr string
	conn *net.UDPConn
	dmx  *demux.Demux

	nextPID int
	mimes   map[int]string
}

func (s *UDP) Prepare(ctx context.Context) ([]ESInfo, error) {
	laddr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	s.conn = conn

	s.dmx = demux.New(s.allocate, nil)
	s.dmx.OnControl(s.onControl)
	return nil, nil // elementary streams discovered dynamically
}

// allocate satisfies demux.Allocator: it assigns the jitter the source's
// single downstream decoder was Attach()'d with to the first session
// seen, and raises SRC_NEW_ES/SRC_DECODE_ES for it.
func (s *UDP) allocate(ssrc uint32, pt uint8, mime string) (jitter.Jitter, error) {
	pid := s.nextPID
	s.nextPID++
	s.mimes[pid] = mime

	in := s.input()
	b := &s.base
	b.pid = pid
	b.raiseNewES(mime)
	b.raiseDecodeES()
	return in, nil
}

func (s *UDP) onControl(cmds []rtpwire.Cmd) {
	if s.bus == nil {
		return
	}
	for _, c := range cmds {
		switch c.ID {
		case rtpwire.CmdState:
			s.bus.Raise(event.Event{Kind: event.PlayerChange, Payload: c})
		case rtpwire.CmdVolume:
			s.bus.Raise(event.Event{Kind: event.PlayerVolume, Payload: c})
		}
	}
}

func (s *UDP) Run(ctx context.Context) error {
	buf := make([]byte, 65536)
	for {
		select {
		case <-ctx.Done():
			s.raiseEndES()
			s.dmx.EndES()
			return ctx.Err()
		default:
		}
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			s.raiseEndES()
			s.dmx.EndES()
			return err
		}
		pkt, err := rtpwire.Unmarshal(buf[:n])
		if err != nil {
			continue
		}
		s.dmx.Feed(pkt)
	}
}

func (s *UDP) Mime(pid int) string { return s.mimes[pid] }

func (s *UDP) Destroy() {
	if s.conn != nil {
		s.conn.Close()
	}
}

var _ Source = (*UDP)(nil)

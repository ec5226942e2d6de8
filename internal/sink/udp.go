package sink

import (
	"errors"
	"net"
	"sync"
	"syscall"

	"github.com/audiocore/audiocore/internal/event"
)

// UDP is the UDP/RTP sink variant of spec §4.9: it maintains a dynamic
// list of destination addresses (clients subscribe/unsubscribe at
// runtime), sends each block via sendto-equivalent per destination, and
// unregisters a destination whose write fails with a connection-refused
// error (the POSIX EPIPE/ECONNREFUSED case on a connectionless socket).
//
// When a group is set, its address is added to the destination list, so
// one send per block reaches every listener of that group; the socket
// does not join the group, and unicast subscribers are still sent to
// one by one.
type UDP struct {
	base
	conn  *net.UDPConn
	group *net.UDPAddr

	destMu sync.Mutex
	dests  map[string]*net.UDPAddr
}

// NewUDP binds a UDP socket at laddr. If group is non-empty its address
// is added as a destination.
func NewUDP(laddr, group string) (*UDP, error) {
	la, err := net.ResolveUDPAddr("udp", laddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", la)
	if err != nil {
		return nil, err
	}

	u := &UDP{conn: conn, dests: make(map[string]*net.UDPAddr)}
	if group != "" {
		ga, err := net.ResolveUDPAddr("udp", group)
		if err != nil {
			conn.Close()
			return nil, err
		}
		u.group = ga
		u.dests[ga.String()] = ga
	}
	return u, nil
}

func (s *UDP) Service() *ServiceDescriptor { return nil }

// Subscribe adds a unicast destination (a client asking to receive the
// stream). Idempotent.
func (s *UDP) Subscribe(addr *net.UDPAddr) {
	s.destMu.Lock()
	defer s.destMu.Unlock()
	s.dests[addr.String()] = addr
}

// Unsubscribe removes a destination.
func (s *UDP) Unsubscribe(addr *net.UDPAddr) {
	s.destMu.Lock()
	defer s.destMu.Unlock()
	delete(s.dests, addr.String())
}

func (s *UDP) Run() { s.base.run(s.loop) }

func (s *UDP) Destroy() {
	s.base.stop()
	s.conn.Close()
}

func (s *UDP) loop() {
	for {
		if s.stopped() {
			return
		}
		s.mu.Lock()
		in := s.in
		s.mu.Unlock()
		if in == nil {
			return
		}
		block, _ := in.Peer()
		if block == nil {
			return
		}
		s.sendAll(block)
		in.Pop(-1)
	}
}

func (s *UDP) sendAll(block []byte) {
	s.destMu.Lock()
	targets := make([]*net.UDPAddr, 0, len(s.dests))
	for _, a := range s.dests {
		targets = append(targets, a)
	}
	s.destMu.Unlock()

	for _, addr := range targets {
		if _, err := s.conn.WriteToUDP(block, addr); err != nil {
			if isConnRefused(err) {
				s.Unsubscribe(addr)
				s.bus.Raise(event.Event{Kind: event.SinkEncodeEnd, Payload: err})
			}
		}
	}
}

func isConnRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

var _ Sink = (*UDP)(nil)

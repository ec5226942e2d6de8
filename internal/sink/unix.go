package sink

import (
	"net"
	"os"
	"sync"

	"github.com/audiocore/audiocore/internal/event"
)

// Unix is a blocking-write-loop sink that fans a block out to every
// connected client on a Unix domain socket listener, per spec §4.9's
// "File / Unix: blocking write loop" and the UDP variant's
// subscribe-dynamically behavior.
type Unix struct {
	base
	path string
	ln   net.Listener

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
}

// NewUnix listens on a Unix domain socket at path, removing any stale
// socket file first.
func NewUnix(path string) (*Unix, error) {
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	u := &Unix{path: path, ln: ln, conns: make(map[net.Conn]struct{})}
	return u, nil
}

func (s *Unix) Service() *ServiceDescriptor { return nil }

func (s *Unix) Run() {
	s.base.run(s.loop)
	go s.acceptLoop()
}

func (s *Unix) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.connMu.Lock()
		s.conns[conn] = struct{}{}
		s.connMu.Unlock()
	}
}

func (s *Unix) Destroy() {
	s.base.stop()
	s.ln.Close()
	s.connMu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.connMu.Unlock()
}

func (s *Unix) loop() {
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
		s.broadcast(block)
		in.Pop(-1)
	}
}

func (s *Unix) broadcast(block []byte) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	for c := range s.conns {
		if _, err := c.Write(block); err != nil {
			c.Close()
			delete(s.conns, c)
			s.bus.Raise(event.Event{Kind: event.SinkEncodeEnd, Payload: err})
		}
	}
}

var _ Sink = (*Unix)(nil)

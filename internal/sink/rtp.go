package sink

import (
	"net"

	"github.com/audiocore/audiocore/internal/event"
	"github.com/audiocore/audiocore/internal/mdns"
)

// RTP is the UDP sink specialization that advertises itself over mDNS
// and carries a mux.Mux's DOUBLESSRC-duplicated packets, per spec §4.9's
// UDP/RTP variant and §4.8's mux contract (the mux owns header/sequence
// state; this sink is purely the network leg).
type RTP struct {
	*UDP
	instance string
	port     int
}

// NewRTP wraps NewUDP with the bookkeeping an RTP stream needs for mDNS
// advertisement (instance name, service port).
func NewRTP(laddr, group, instance string) (*RTP, error) {
	u, err := NewUDP(laddr, group)
	if err != nil {
		return nil, err
	}
	_, portStr, err := net.SplitHostPort(laddr)
	port := 0
	if err == nil {
		for _, c := range portStr {
			if c < '0' || c > '9' {
				port = 0
				break
			}
			port = port*10 + int(c-'0')
		}
	}
	return &RTP{UDP: u, instance: instance, port: port}, nil
}

func (s *RTP) Service() *ServiceDescriptor {
	return &ServiceDescriptor{
		InstanceName: s.instance,
		Type:         mdns.ServiceType,
		Port:         s.port,
		Text:         map[string]string{"proto": "rtp"},
	}
}

func (s *RTP) onUnderrun() {
	s.bus.Raise(event.Event{Kind: event.SinkEncodeEnd})
}

var _ Sink = (*RTP)(nil)

package sink

import (
	"bufio"
	"os"

	"github.com/audiocore/audiocore/internal/event"
)

// File is a blocking-write-loop sink over an *os.File, grounded on the
// teacher's StreamWriter immediate-flush philosophy (internal/server/
// streaming.go): every Peer'd block is written and flushed before the
// next Peer, no internal buffering.
type File struct {
	base
	path string
	f    *os.File
	w    *bufio.Writer
}

// NewFile opens path for writing (truncating any existing file), or
// wraps os.Stdout when path is "-".
func NewFile(path string) (*File, error) {
	f := &File{path: path}
	if path == "-" {
		f.f = os.Stdout
	} else {
		var err error
		f.f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, err
		}
	}
	f.w = bufio.NewWriterSize(f.f, 4096)
	return f, nil
}

func (s *File) Service() *ServiceDescriptor { return nil }

func (s *File) Run() { s.base.run(s.loop) }

func (s *File) Destroy() {
	s.base.stop()
	s.w.Flush()
	if s.f != os.Stdout {
		s.f.Close()
	}
}

func (s *File) loop() {
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
		if _, err := s.w.Write(block); err != nil {
			s.bus.Raise(event.Event{Kind: event.SinkEncodeEnd, Payload: err})
			in.Pop(-1)
			return
		}
		s.w.Flush()
		in.Pop(-1)
	}
}

var _ Sink = (*File)(nil)

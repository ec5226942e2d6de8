package source

import (
	"context"
	"io"
	"mime"
	"net/url"
	"os"
	"path/filepath"

	"github.com/audiocore/audiocore/internal/event"
)

func init() {
	Register("file", func(u *url.URL, bus *event.Bus) (Source, error) {
		return &File{base: base{bus: bus}, path: u.Path, mime: mimeFor(u.Path)}, nil
	})
	Register("stdin", func(u *url.URL, bus *event.Bus) (Source, error) {
		return &File{base: base{bus: bus}, path: "", mime: "application/octet-stream"}, nil
	})
}

func mimeFor(path string) string {
	if m := mime.TypeByExtension(filepath.Ext(path)); m != "" {
		return m
	}
	return "application/octet-stream"
}

// File is the file/stdin source variant of spec §4.3: a blocking
// select+read loop pushed straight into the decoder's jitter, mirroring
// the teacher's streamFromReader buffered-read shape.
type File struct {
	base
	path string
	mime string
	f    *os.File
}

func (s *File) Prepare(ctx context.Context) ([]ESInfo, error) {
	if s.path == "" {
		s.f = os.Stdin
	} else {
		f, err := os.Open(s.path)
		if err != nil {
			return nil, err
		}
		s.f = f
	}
	info := ESInfo{PID: 0, Mime: s.mime}
	s.raiseNewES(info.Mime)
	return []ESInfo{info}, nil
}

func (s *File) Run(ctx context.Context) error {
	s.raiseDecodeES()
	in := s.input()
	if in == nil {
		return nil
	}
	buf := make([]byte, 8192)
	for {
		select {
		case <-ctx.Done():
			s.raiseEndES()
			return ctx.Err()
		default:
		}
		n, err := s.f.Read(buf)
		if n > 0 {
			pushAll(in, buf[:n])
		}
		if err != nil {
			s.raiseEndES()
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func (s *File) Mime(int) string { return s.mime }

func (s *File) Destroy() {
	if s.f != nil && s.f != os.Stdin {
		s.f.Close()
	}
}

var _ Source = (*File)(nil)

package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/audiocore/audiocore/internal/event"
)

func init() {
	Register("http", newHTTP)
	Register("https", newHTTP)
}

func newHTTP(u *url.URL, bus *event.Bus) (Source, error) {
	return &HTTP{base: base{bus: bus}, url: u.String()}, nil
}

// HTTP pulls a stream over net/http, generalized from the teacher's
// HTTP PUT source ingestion (internal/source/handler.go) turned around
// into a GET client: a long-lived response body read in 8KB chunks,
// each chunk forwarded immediately, matching the "immediate delivery,
// no buffering" principle the teacher applies on the sending side.
type HTTP struct {
	base
	url  string
	mime string
	resp *http.Response
}

func (s *HTTP) Prepare(ctx context.Context) ([]ESInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 0}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source: http get %q: %w", s.url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("source: http get %q: status %s", s.url, resp.Status)
	}
	s.resp = resp
	s.mime = resp.Header.Get("Content-Type")
	if s.mime == "" {
		s.mime = "audio/mpeg"
	}
	info := ESInfo{PID: 0, Mime: s.mime}
	s.raiseNewES(s.mime)
	return []ESInfo{info}, nil
}

func (s *HTTP) Run(ctx context.Context) error {
	s.raiseDecodeES()
	in := s.input()
	if in == nil || s.resp == nil {
		return nil
	}
	defer s.resp.Body.Close()

	buf := make([]byte, 8192)
	for {
		select {
		case <-ctx.Done():
			s.raiseEndES()
			return ctx.Err()
		default:
		}
		n, err := s.resp.Body.Read(buf)
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

func (s *HTTP) Mime(int) string { return s.mime }

func (s *HTTP) Destroy() {
	if s.resp != nil {
		s.resp.Body.Close()
	}
}

var _ Source = (*HTTP)(nil)

// Package decoder implements the compressed-to-PCM stage of spec §4.5.
// Codec bodies (MP3/FLAC/AAC) are out of core scope per spec §1 — they
// sit behind the Codec interface as narrow collaborators. This package
// ships the codecs the core itself needs to be self-testable
// (Passthrough, StoredDecoder) plus the skeleton a real codec binding plugs
// into.
package decoder

import (
	"sync"
	"time"

	"github.com/audiocore/audiocore/internal/event"
	"github.com/audiocore/audiocore/internal/filter"
	"github.com/audiocore/audiocore/internal/jitter"
	"github.com/audiocore/audiocore/internal/perr"
)

// Codec turns compressed bytes into one PCM frame.
type Codec interface {
	// DecodeFrame consumes a prefix of in and returns the decoded PCM
	// frame plus how many bytes were consumed. consumed == 0 with a
	// nil error means "need more data."
	DecodeFrame(in []byte) (pcm filter.Frame, consumed int, err error)
	// Mime identifies the codec for elementary-stream matching.
	Mime() string
	// SampleRate returns the rate the codec is currently producing, 0
	// until the first frame latches it.
	SampleRate() int
}

// Decoder drives a Codec: pull compressed bytes from Input, run them
// through Codec, normalize with a Filter, and write PCM to Output.
type Decoder struct {
	mu     sync.Mutex
	codec  Codec
	input  jitter.Jitter
	output jitter.Jitter
	filt   *filter.Filter
	bus    *event.Bus

	latchedRate int
	position    time.Duration
	duration    time.Duration
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// New builds a Decoder reading from input and, once Prepare is called,
// writing filtered PCM to an output jitter.
func New(codec Codec, input jitter.Jitter, bus *event.Bus) *Decoder {
	return &Decoder{codec: codec, input: input, bus: bus, stopCh: make(chan struct{})}
}

// Jitter returns the decoder's input jitter, per spec §4.5
// "jitter(jitter_level)".
func (d *Decoder) Jitter() jitter.Jitter { return d.input }

// Prepare attaches the output jitter and the PCM filter that will
// normalize decoded frames to it, per spec §4.5 "prepare(filter, info)".
func (d *Decoder) Prepare(output jitter.Jitter, target jitter.Format) {
	d.mu.Lock()
	d.output = output
	d.filt = filter.New(target)
	d.mu.Unlock()
}

// Mime returns the codec's mime type.
func (d *Decoder) Mime() string { return d.codec.Mime() }

// Position returns the current decode position.
func (d *Decoder) Position() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.position
}

// Duration returns the known stream duration, 0 if unknown.
func (d *Decoder) Duration() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.duration
}

// Run starts the decode loop on its own goroutine and returns
// immediately, per spec §4.5 "run(output_jitter)".
func (d *Decoder) Run() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()
}

// Destroy stops the decode loop and flushes its jitters.
func (d *Decoder) Destroy() {
	close(d.stopCh)
	d.input.Flush()
	d.mu.Lock()
	out := d.output
	d.mu.Unlock()
	if out != nil {
		out.Flush()
	}
	d.wg.Wait()
}

func (d *Decoder) loop() {
	var carry []byte
	buf := make([]byte, 0, 64*1024)

	for {
		select {
		case <-d.stopCh:
			return
		default:
		}

		in, _ := d.input.Peer()
		if in == nil {
			return // flushed/stopped
		}
		buf = append(buf[:0], carry...)
		buf = append(buf, in...)
		d.input.Pop(-1)

		consumedTotal := 0
		for {
			frame, consumed, err := d.codec.DecodeFrame(buf[consumedTotal:])
			if err != nil {
				// Malformed compressed data: drop this frame and try
				// to resync on the next Peer() rather than stalling
				// the pipeline (ProtocolError class, per spec §7).
				_ = perr.New(perr.ProtocolError, "decoder.DecodeFrame", err)
				consumedTotal = len(buf)
				break
			}
			if consumed == 0 {
				break // need more bytes
			}
			consumedTotal += consumed

			rate := d.codec.SampleRate()
			d.mu.Lock()
			if d.latchedRate == 0 {
				d.latchedRate = rate
			} else if rate != 0 && rate != d.latchedRate {
				// Sample rate changed underneath us: signal a format
				// mismatch so the player can restart the graph.
				d.mu.Unlock()
				if d.bus != nil {
					d.bus.Raise(event.Event{Kind: event.PlayerChange, Payload: event.ChangePayload{State: "change"}})
				}
				return
			}
			out, filt := d.output, d.filt
			d.mu.Unlock()

			if out != nil && filt != nil && len(frame.Channels) > 0 {
				d.writeFrame(out, filt, frame)
			}
		}
		carry = append(carry[:0], buf[consumedTotal:]...)
	}
}

func (d *Decoder) writeFrame(out jitter.Jitter, filt *filter.Filter, frame filter.Frame) {
	dst := out.Pull()
	if dst == nil {
		return
	}
	n := filt.Process(frame, dst)
	nSamples := uint64(0)
	if len(frame.Channels) > 0 {
		nSamples = uint64(len(frame.Channels[0]))
	}
	beat := jitter.Beat{NSamples: nSamples}
	out.Push(n, &beat)
}

// Package encoder implements the PCM-to-compressed stage of spec §4.7.
// Real MP3/FLAC/AAC codec bodies are out of core scope (spec §1); this
// package defines the Codec contract they would implement and ships the
// variants the core needs to be self-testable (Passthrough, Stored).
package encoder

import (
	"sync"

	"github.com/audiocore/audiocore/internal/filter"
	"github.com/audiocore/audiocore/internal/jitter"
)

// Codec turns one decoded PCM frame into zero or more encoded output
// blocks, each paired with the beat descriptor the sink's heartbeat
// should pace on, per spec §4.7 ("computes a beat descriptor ... passes
// it to push()").
type Codec interface {
	EncodeFrame(frame filter.Frame) (out [][]byte, beats []jitter.Beat, err error)
	// Flush drains any buffered output at stream end (e.g. a FLAC
	// encoder's trailing block). May return nil, nil.
	Flush() ([][]byte, []jitter.Beat, error)
	Mime() string
	// InputFormat is the PCM format this codec expects on its input
	// jitter; the player wires a internal/filter.Filter upstream to
	// match it.
	InputFormat() jitter.Format
}

// Encoder drives a Codec: pull PCM from Input (already filtered to
// InputFormat), run it through Codec, and push each resulting block to
// Output with its beat.
type Encoder struct {
	mu     sync.Mutex
	codec  Codec
	input  jitter.Jitter
	output jitter.Jitter
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds an Encoder reading PCM from input and writing encoded
// blocks to output.
func New(codec Codec, input, output jitter.Jitter) *Encoder {
	return &Encoder{codec: codec, input: input, output: output, stopCh: make(chan struct{})}
}

func (e *Encoder) Mime() string { return e.codec.Mime() }

// Output returns the jitter this encoder pushes encoded blocks to, so
// callers can attach a sink once the encoder is built.
func (e *Encoder) Output() jitter.Jitter { return e.output }

// Run starts the encode loop on its own goroutine.
func (e *Encoder) Run() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.loop()
	}()
}

// Destroy stops the encode loop and flushes its jitters.
func (e *Encoder) Destroy() {
	close(e.stopCh)
	e.input.Flush()
	e.output.Flush()
	e.wg.Wait()
}

func (e *Encoder) loop() {
	for {
		select {
		case <-e.stopCh:
			return
		default:
		}

		in, _ := e.input.Peer()
		if in == nil {
			e.drainFlush()
			return
		}

		frame := bytesToFrame(in, e.codec.InputFormat())
		e.input.Pop(-1)

		blocks, beats, err := e.codec.EncodeFrame(frame)
		if err != nil {
			continue
		}
		e.pushBlocks(blocks, beats)
	}
}

func (e *Encoder) drainFlush() {
	blocks, beats, err := e.codec.Flush()
	if err != nil {
		return
	}
	e.pushBlocks(blocks, beats)
}

func (e *Encoder) pushBlocks(blocks [][]byte, beats []jitter.Beat) {
	for i, b := range blocks {
		dst := e.output.Pull()
		if dst == nil {
			return
		}
		n := copy(dst, b)
		var beat *jitter.Beat
		if i < len(beats) {
			bb := beats[i]
			beat = &bb
		}
		e.output.Push(n, beat)
	}
}

// bytesToFrame deinterleaves a raw PCM block per format into a
// filter.Frame, the inverse of internal/filter.Process, so codecs can
// work with per-channel sample slices.
func bytesToFrame(in []byte, f jitter.Format) filter.Frame {
	frameBytes := f.BytesPerFrame()
	if frameBytes == 0 {
		return filter.Frame{}
	}
	n := len(in) / frameBytes
	bytesPerSample := f.SampleWidth / 8
	chans := make([][]int32, f.Channels)
	for c := range chans {
		chans[c] = make([]int32, n)
	}

	off := 0
	for i := 0; i < n; i++ {
		for c := 0; c < f.Channels; c++ {
			chans[c][i] = readSample(in[off:off+bytesPerSample], f)
			off += bytesPerSample
		}
	}
	return filter.Frame{Channels: chans}
}

func readSample(b []byte, f jitter.Format) int32 {
	var u uint32
	switch f.SampleWidth {
	case 16:
		if f.Endian == jitter.BigEndian {
			u = uint32(b[0])<<8 | uint32(b[1])
		} else {
			u = uint32(b[1])<<8 | uint32(b[0])
		}
		u <<= 16
	case 24:
		var v uint32
		if f.Endian == jitter.BigEndian {
			v = uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
		} else {
			v = uint32(b[2])<<16 | uint32(b[1])<<8 | uint32(b[0])
		}
		u = v << 8
	default:
		if f.Endian == jitter.BigEndian {
			u = uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
		} else {
			u = uint32(b[3])<<24 | uint32(b[2])<<16 | uint32(b[1])<<8 | uint32(b[0])
		}
	}
	return int32(u)
}

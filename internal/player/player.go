// Package player implements spec §4.10: owns the media catalog, current
// and next source, the array of output jitters, the player state, and
// the listener list; runs the single main loop that dispatches state
// transitions through the state-engine table.
//
// Generalized from the teacher's Mount (internal/stream/mount.go): one
// HTTP mount's source-attach/detach and atomic-active-flag bookkeeping
// becomes one pipeline's src/nextsrc bookkeeping, and its ad hoc
// listener map becomes the explicit event.Bus every other package
// already uses.
package player

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/audiocore/audiocore/internal/decoder"
	"github.com/audiocore/audiocore/internal/encoder"
	"github.com/audiocore/audiocore/internal/event"
	"github.com/audiocore/audiocore/internal/jitter"
	"github.com/audiocore/audiocore/internal/mediadb"
	"github.com/audiocore/audiocore/internal/source"
)

// ESBuilder constructs the decoder, filter target, and output jitter for
// one elementary stream a source announces, given its mime type. The
// player calls this from its SrcNewES handler (spec §4.10 PLAY:
// "on SRC_NEW_ES the player builds a decoder").
type ESBuilder func(mime string) (codec decoder.Codec, outFormat jitter.Format, err error)

// SinkAttacher wires a pipeline's encoder into the output stage
// (mux/sink); supplied by cmd/audiocore so internal/player never
// imports internal/sink or internal/mux directly.
type SinkAttacher func(enc *encoder.Encoder)

// Config parameterizes a Player.
type Config struct {
	Media        mediadb.Catalog
	BuildES      ESBuilder
	AttachSink   SinkAttacher
	BuildEncoder func(outFormat jitter.Format) (*encoder.Encoder, jitter.Jitter, error)
	JitterConfig jitter.Config // template for per-ES input/output jitters
	Logger       *slog.Logger
}

// Player is the main pipeline coordinator of spec §4.10.
type Player struct {
	mu   sync.Mutex
	cond *sync.Cond

	media  mediadb.Catalog
	bus    *event.Bus
	logger *slog.Logger

	buildES      ESBuilder
	attachSink   SinkAttacher
	buildEncoder func(jitter.Format) (*encoder.Encoder, jitter.Jitter, error)
	jitterCfg    jitter.Config

	state     State
	lastState State
	paused    bool
	opts      mediadb.Options
	volume    int // 0-100

	currentID int
	nextID    int
	hasNext   bool

	src     source.Source
	srcCtx  context.CancelFunc
	decoded map[int]*decoder.Decoder
	outs    []jitter.Jitter
	encs    []*encoder.Encoder

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Player. Run must be called to start the main loop.
func New(cfg Config) *Player {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Player{
		media:        cfg.Media,
		bus:          event.NewBus(),
		logger:       logger,
		buildES:      cfg.BuildES,
		attachSink:   cfg.AttachSink,
		buildEncoder: cfg.BuildEncoder,
		jitterCfg:    cfg.JitterConfig,
		state:        StateStop,
		lastState:    StateStop,
		volume:       100,
		decoded:      make(map[int]*decoder.Decoder),
		stopCh:       make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	p.bus.Register("player.src_new_es", p.onSrcNewES, nil)
	return p
}

// Bus returns the player's event bus, for the RPC server and sinks to
// register listeners on.
func (p *Player) Bus() *event.Bus { return p.bus }

// RequestState is the single entry point every other thread uses to ask
// for a state transition, per spec §4.10's concurrency note ("all other
// threads request transitions through request_state").
func (p *Player) RequestState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
	p.cond.Broadcast()
}

// SetPause forwards the pause flag without touching the base state.
func (p *Player) SetPause(on bool) {
	p.mu.Lock()
	p.paused = on
	outs := append([]jitter.Jitter(nil), p.outs...)
	p.mu.Unlock()

	for _, o := range outs {
		o.Pause(on)
	}
	p.bus.Raise(event.Event{Kind: event.PlayerChange, Payload: event.ChangePayload{State: "pause"}})
}

// SetNext records the id that should play after the current entry.
func (p *Player) SetNext(id int) {
	p.mu.Lock()
	p.nextID = id
	p.hasNext = true
	p.mu.Unlock()
}

// SetOptions updates random/loop/filter query defaults.
func (p *Player) SetOptions(o mediadb.Options) {
	p.mu.Lock()
	p.opts = o
	p.mu.Unlock()
}

// SetVolume sets 0-100 and raises PLAYER_VOLUME.
func (p *Player) SetVolume(level int) {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	p.mu.Lock()
	p.volume = level
	p.mu.Unlock()
	p.bus.Raise(event.Event{Kind: event.PlayerVolume, Payload: event.VolumePayload{Level: level}})
}

func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Run starts the main loop on its own goroutine, per spec §4.10.
func (p *Player) Run() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.loop()
	}()
}

// Destroy stops the main loop and tears down the current pipeline.
func (p *Player) Destroy() {
	close(p.stopCh)
	p.RequestState(StateStop)
	p.wg.Wait()
}

func (p *Player) loop() {
	for {
		p.mu.Lock()
		for p.state == p.lastState {
			select {
			case <-p.stopCh:
				p.mu.Unlock()
				return
			default:
			}
			p.cond.Wait()
			select {
			case <-p.stopCh:
				p.mu.Unlock()
				return
			default:
			}
		}
		newState := p.state
		p.mu.Unlock()

		p.dispatch(newState)

		p.bus.Raise(event.Event{Kind: event.PlayerChange, Payload: event.ChangePayload{State: newState.String()}})

		p.mu.Lock()
		p.lastState = newState
		p.cond.Broadcast()
		p.mu.Unlock()
	}
}

// dispatch runs the state-engine table of spec §4.10.
func (p *Player) dispatch(s State) {
	switch s {
	case StateStop:
		p.doStop()
	case StatePlay:
		p.doPlay()
	case StateChange:
		p.doChange()
	case StateError:
		p.doStop()
	}
}

func (p *Player) doStop() {
	p.mu.Lock()
	outs := append([]jitter.Jitter(nil), p.outs...)
	p.mu.Unlock()

	for _, o := range outs {
		o.Flush()
	}
	p.destroyPipeline()
	for _, o := range outs {
		o.Reset()
	}
}

func (p *Player) doPlay() {
	if p.media == nil {
		p.logger.Warn("player: play requested with no media catalog")
		return
	}
	p.mu.Lock()
	current := p.currentID
	opts := p.opts
	p.mu.Unlock()

	id, ok := p.media.Next(current, opts)
	if !ok {
		p.logger.Info("player: no next media entry, stopping")
		p.RequestState(StateStop)
		return
	}

	var playErr error
	err := p.media.Play(id, func(url string, info mediadb.Entry, mime string) {
		playErr = p.buildSource(url)
	})
	if err != nil || playErr != nil {
		p.logger.Error("player: play failed", "id", id, "err", err, "buildErr", playErr)
		p.RequestState(StateError)
		return
	}

	p.mu.Lock()
	p.currentID = id
	p.mu.Unlock()
}

func (p *Player) doChange() {
	p.destroyPipeline()

	p.mu.Lock()
	hasNext := p.hasNext
	nextID := p.nextID
	p.hasNext = false
	p.mu.Unlock()

	if !hasNext {
		p.RequestState(StateStop)
		return
	}

	p.mu.Lock()
	p.currentID = nextID
	outs := append([]jitter.Jitter(nil), p.outs...)
	p.mu.Unlock()
	for _, o := range outs {
		o.Pause(false)
	}

	err := p.media.Play(nextID, func(url string, info mediadb.Entry, mime string) {
		if buildErr := p.buildSource(url); buildErr != nil {
			p.logger.Error("player: change build source failed", "err", buildErr)
		}
	})
	if err != nil {
		p.RequestState(StateError)
	}
}

// buildSource opens and prepares a source for url, registering it as
// the current pipeline's producer. Elementary streams are wired up
// asynchronously as SrcNewES events arrive (see onSrcNewES).
func (p *Player) buildSource(url string) error {
	src, err := source.Open(url, p.bus)
	if err != nil {
		return fmt.Errorf("player: open source %q: %w", url, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.src = src
	p.srcCtx = cancel
	p.mu.Unlock()

	if _, err := src.Prepare(ctx); err != nil {
		cancel()
		return fmt.Errorf("player: prepare source %q: %w", url, err)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := src.Run(ctx); err != nil {
			p.logger.Debug("player: source run ended", "err", err)
		}
	}()
	return nil
}

// onSrcNewES builds a decoder for a newly announced elementary stream
// and attaches it to the source, per spec §4.10 PLAY: "on SRC_NEW_ES the
// player builds a decoder".
func (p *Player) onSrcNewES(ev event.Event, _ any) {
	payload, ok := ev.Payload.(event.NewESPayload)
	if !ok || p.buildES == nil {
		return
	}

	codec, outFormat, err := p.buildES(payload.Mime)
	if err != nil {
		p.logger.Error("player: no decoder for mime", "mime", payload.Mime, "err", err)
		return
	}

	cfg := p.jitterCfg
	cfg.Name = fmt.Sprintf("es-%d-in", payload.PID)
	cfg.Format.Tag = jitter.TagBitstream
	in := jitter.NewRing(cfg)

	dec := decoder.New(codec, in, p.bus)

	var out jitter.Jitter
	var enc *encoder.Encoder
	if p.buildEncoder != nil {
		enc, out, err = p.buildEncoder(outFormat)
		if err != nil {
			p.logger.Error("player: build encoder failed", "err", err)
			return
		}
	}
	dec.Prepare(out, outFormat)

	p.mu.Lock()
	p.decoded[int(payload.PID)] = dec
	if out != nil {
		p.outs = append(p.outs, out)
	}
	if enc != nil {
		p.encs = append(p.encs, enc)
	}
	src := p.src
	p.mu.Unlock()

	if src != nil {
		src.Attach(int(payload.PID), in)
	}

	dec.Run()
	if enc != nil {
		enc.Run()
		if p.attachSink != nil {
			p.attachSink(enc)
		}
	}
}

func (p *Player) destroyPipeline() {
	p.mu.Lock()
	src := p.src
	cancel := p.srcCtx
	decs := p.decoded
	encs := p.encs
	p.src = nil
	p.srcCtx = nil
	p.decoded = make(map[int]*decoder.Decoder)
	p.encs = nil
	p.outs = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if src != nil {
		src.Destroy()
	}
	for _, dec := range decs {
		dec.Destroy()
	}
	for _, enc := range encs {
		enc.Destroy()
	}
}

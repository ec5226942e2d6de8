// Command audiocore runs the full pipeline: one configured source feeds
// a decode/encode chain into a set of sinks, fronted by a JSON-RPC
// control listener (spec §4.11).
//
// Generalized from the teacher's cmd/gocast/main.go: flag parsing moves
// from the stdlib flag package to spf13/pflag (grounded on
// doismellburning-samoyed's cmd/* programs), and the zero-config/legacy
// branch collapses to a single config.Load path since there is no admin
// web panel in this control surface. The signal-handling/graceful
// shutdown shape is kept as-is.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/signal"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/pion/rtcp"
	"github.com/spf13/pflag"

	"github.com/audiocore/audiocore/internal/auth"
	"github.com/audiocore/audiocore/internal/config"
	"github.com/audiocore/audiocore/internal/decoder"
	"github.com/audiocore/audiocore/internal/diag"
	"github.com/audiocore/audiocore/internal/encoder"
	"github.com/audiocore/audiocore/internal/event"
	"github.com/audiocore/audiocore/internal/heartbeat"
	"github.com/audiocore/audiocore/internal/jitter"
	"github.com/audiocore/audiocore/internal/mdns"
	"github.com/audiocore/audiocore/internal/mediadb"
	"github.com/audiocore/audiocore/internal/mux"
	"github.com/audiocore/audiocore/internal/player"
	"github.com/audiocore/audiocore/internal/rpcsrv"
	"github.com/audiocore/audiocore/internal/sched"
	"github.com/audiocore/audiocore/internal/sink"
	_ "github.com/audiocore/audiocore/internal/source" // registers file/http/alsa/udp schemes
	"github.com/audiocore/audiocore/internal/stats"
)

// version is injected at build time via -ldflags.
var version = "dev"

func main() {
	configFile := pflag.String("config", "", "path to a vibe configuration file")
	listenOverride := pflag.String("listen", "", "override rpc.listen from the config file")
	logLevel := pflag.String("log-level", "", "override logging.level from the config file")
	showVersion := pflag.Bool("version", false, "print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Printf("audiocore %s\n", version)
		return
	}

	cfg := config.DefaultConfig()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "audiocore: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *listenOverride != "" {
		cfg.RPC.ListenAddress = *listenOverride
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "audiocore: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logBuf := diag.NewBuffer(cfg.Logging.LogBufSize)
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Logging.Level)})
	logger := slog.New(diag.NewHandler(logBuf, textHandler))
	slog.SetDefault(logger)

	logger.Info("audiocore starting", "version", version, "pipelines", len(cfg.Pipelines))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Sched.Enabled {
		runtime.LockOSThread()
		if err := sched.SetCurrentThread(parsePolicy(cfg.Sched.Policy), cfg.Sched.Priority); err != nil {
			logger.Warn("sched: realtime scheduling unavailable", "err", err)
		}
	}

	var advertiser *mdns.Advertiser
	if cfg.MDNS.Enabled {
		var err error
		advertiser, err = mdns.NewAdvertiser()
		if err != nil {
			logger.Warn("mdns: advertiser unavailable", "err", err)
			advertiser = nil
		}
	}

	collector := stats.NewCollector()

	primaryName := choosePrimary(cfg.Pipelines)
	if primaryName == "" {
		logger.Error("no pipelines configured, nothing to run")
		os.Exit(1)
	}
	if len(cfg.Pipelines) > 1 {
		logger.Warn("multiple pipelines configured; only one player runs per process", "running", primaryName)
	}

	pl, err := buildPipeline(ctx, primaryName, cfg.Pipelines[primaryName], cfg, collector, advertiser, logger)
	if err != nil {
		logger.Error("pipeline build failed", "name", primaryName, "err", err)
		os.Exit(1)
	}
	pl.player.Run()
	for _, sk := range pl.sinks {
		sk.Run()
	}
	if cfg.Pipelines[primaryName].AutoStart {
		pl.player.RequestState(player.StatePlay)
	}

	if advertiser != nil {
		advertiser.Start()
	}

	authn := auth.New(cfg.RPC.AuthToken)
	authn.StartCleanup(ctx.Done())

	srv := rpcsrv.NewServer(rpcsrv.NewTable(), logger)
	srv.SetTable(rpcsrv.BuildTable(srv, pl.player, pl.catalog, authn))

	ln, err := listen(cfg.RPC.ListenAddress)
	if err != nil {
		logger.Error("rpc listen failed", "addr", cfg.RPC.ListenAddress, "err", err)
		os.Exit(1)
	}

	if cfg.RPC.TLSEnabled {
		acm, err := rpcsrv.NewACMEManager(rpcsrv.ACMEConfig{
			Hostname: cfg.RPC.TLSHostname,
			Email:    cfg.RPC.TLSEmail,
			CacheDir: cfg.RPC.TLSCacheDir,
		}, logger)
		if err != nil {
			logger.Error("acme manager init failed", "err", err)
			os.Exit(1)
		}
		ln = acm.Listen(ln)
		go acm.RenewalLoop(ctx, 12*time.Hour)
	}

	go func() {
		if err := srv.Serve(ctx, ln); err != nil {
			logger.Error("rpc server stopped", "err", err)
		}
	}()

	logger.Info("rpc listening", "addr", cfg.RPC.ListenAddress, "tls", cfg.RPC.TLSEnabled)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutting down", "signal", sig.String())

	cancel()
	ln.Close()
	pl.player.Destroy()
	for _, sk := range pl.sinks {
		sk.Destroy()
	}
	logger.Info("audiocore shutdown complete")
}

// choosePrimary deterministically picks one pipeline name to run: the
// player's state machine and the RPC control surface both model exactly
// one running pipeline per process, so a config naming several pipeline
// profiles only ever runs the lexicographically first.
func choosePrimary(pipelines map[string]*config.PipelineConfig) string {
	if len(pipelines) == 0 {
		return ""
	}
	names := make([]string, 0, len(pipelines))
	for name := range pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names[0]
}

// pipelineHandle bundles the running objects one pipeline owns, for
// shutdown.
type pipelineHandle struct {
	player  *player.Player
	catalog mediadb.Catalog
	sinks   []sink.Sink
}

// buildPipeline wires decoder/encoder/mux/sink construction into the
// player's builder closures (spec §4.10), per cfg.Pipelines[name].
func buildPipeline(ctx context.Context, name string, pc *config.PipelineConfig, cfg *config.Config, collector *stats.Collector, advertiser *mdns.Advertiser, parent *slog.Logger) (*pipelineHandle, error) {
	logger := parent.With("pipeline", name)

	catalog, err := loadCatalog(pc)
	if err != nil {
		return nil, err
	}
	pstats := collector.Get(name)

	hb := heartbeat.New(heartbeat.Config{Variant: heartbeat.VariantPulse, Period: cfg.Heartbeat.PulseInterval()})
	hb.Start()

	jitterTmpl := jitter.Config{
		Count:     cfg.Jitter.Depth,
		BlockSize: cfg.Jitter.BlockSize,
		Threshold: cfg.Jitter.ThresholdLow,
	}

	var rtpSinks []*sink.RTP
	var rawSinks []sink.Sink
	for _, su := range pc.SinkURLs {
		sk, err := sink.Open(su, jitter.PCM(2, 16, jitter.LittleEndian, 44100), name)
		if err != nil {
			logger.Error("sink open failed", "url", su, "err", err)
			continue
		}
		if rs, ok := sk.(*sink.RTP); ok {
			rtpSinks = append(rtpSinks, rs)
		} else {
			rawSinks = append(rawSinks, sk)
		}
		if svc := sk.Service(); svc != nil && advertiser != nil {
			if err := advertiser.Register(mdns.Descriptor{
				InstanceName: svc.InstanceName,
				Type:         svc.Type,
				Port:         svc.Port,
				Text:         svc.Text,
			}); err != nil {
				logger.Warn("mdns register failed", "instance", svc.InstanceName, "err", err)
			}
		}
	}

	var mx *mux.Mux
	if len(rtpSinks) > 0 {
		muxOutCfg := jitterTmpl
		muxOutCfg.Name = name + "-rtp-out"
		muxOutCfg.Format = jitter.Format{Tag: jitter.TagBitstream}
		muxOutCfg.Pacer = hb
		muxOutJitter := jitter.NewRing(muxOutCfg)

		mx = mux.New(mux.Config{PulseInterval: 160, SRInterval: 100}, muxOutJitter)
		mx.OnSenderReport(func(sr rtcp.SenderReport) {
			logger.Debug("rtp sender report", "packets", sr.PacketCount, "rtptime", sr.RTPTime)
		})
		for _, rs := range rtpSinks {
			rs.Attach(nil, muxOutJitter)
		}

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				if !mx.Tick() {
					time.Sleep(5 * time.Millisecond)
				}
			}
		}()
	}

	buildES := func(mime string) (decoder.Codec, jitter.Format, error) {
		switch mime {
		case "", "audio/L16":
			return &decoder.Passthrough{Channels: 2, SampleWidth: 16, BigEndian: false, Rate: 44100},
				jitter.PCM(2, 16, jitter.LittleEndian, 44100), nil
		default:
			return nil, jitter.Format{}, fmt.Errorf("no decoder registered for mime %q", mime)
		}
	}

	buildEncoder := func(outFormat jitter.Format) (*encoder.Encoder, jitter.Jitter, error) {
		pcmCfg := jitterTmpl
		pcmCfg.Name = name + "-pcm"
		pcmCfg.Format = outFormat
		pcmJitter := jitter.NewRing(pcmCfg)

		encCfg := jitterTmpl
		encCfg.Name = name + "-enc-out"
		encCfg.Format = jitter.Format{Tag: jitter.TagBitstream}
		if mx == nil {
			// no mux downstream: the sinks read this jitter directly, so
			// it carries the pacing gate itself.
			encCfg.Pacer = hb
		}
		encJitter := jitter.NewRing(encCfg)

		codec := &encoder.Passthrough{Format: outFormat}
		return encoder.New(codec, pcmJitter, encJitter), pcmJitter, nil
	}

	attachSink := func(enc *encoder.Encoder) {
		if mx != nil {
			mx.Attach(&mux.Stream{Mime: enc.Mime(), Input: enc.Output(), PT: 96})
		}
		for _, rs := range rawSinks {
			rs.Attach(enc, enc.Output())
		}
	}

	p := player.New(player.Config{
		Media:        catalog,
		BuildES:      buildES,
		AttachSink:   attachSink,
		BuildEncoder: buildEncoder,
		JitterConfig: jitterTmpl,
		Logger:       logger,
	})

	p.Bus().Register(name+".stats", func(ev event.Event, _ any) {
		if vp, ok := ev.Payload.(event.VolumePayload); ok && ev.Kind == event.PlayerVolume {
			pstats.SetVolume(vp.Level)
		}
	}, nil)
	p.SetOptions(mediadb.Options{Loop: pc.Loop, Random: pc.Random})

	sinks := append(append([]sink.Sink(nil), rawSinks...), rtpSinksAsSinks(rtpSinks)...)
	return &pipelineHandle{player: p, catalog: catalog, sinks: sinks}, nil
}

func rtpSinksAsSinks(rs []*sink.RTP) []sink.Sink {
	out := make([]sink.Sink, len(rs))
	for i, s := range rs {
		out[i] = s
	}
	return out
}

// loadCatalog builds the media catalog a pipeline's player consumes. A
// seed file provides a full catalog; otherwise the pipeline's single
// configured source URL is inserted as the only (and always-next) entry.
func loadCatalog(pc *config.PipelineConfig) (mediadb.Catalog, error) {
	if pc.MediaSeed != "" {
		data, err := os.ReadFile(pc.MediaSeed)
		if err != nil {
			return nil, fmt.Errorf("read media seed %q: %w", pc.MediaSeed, err)
		}
		mem, err := mediadb.LoadYAML(data)
		if err != nil {
			return nil, fmt.Errorf("parse media seed %q: %w", pc.MediaSeed, err)
		}
		return mem, nil
	}

	mem := mediadb.NewMemory()
	if pc.SourceURL != "" {
		if _, err := mem.Insert(mediadb.Entry{URL: pc.SourceURL, Mime: "audio/L16", Title: pc.Name}); err != nil {
			return nil, fmt.Errorf("seed catalog: %w", err)
		}
	}
	return mem, nil
}

// listen opens the RPC control listener named by a "unix://" or
// "tcp://" address.
func listen(addr string) (net.Listener, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parse listen address %q: %w", addr, err)
	}
	switch u.Scheme {
	case "unix":
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		os.Remove(path)
		return net.Listen("unix", path)
	case "tcp", "":
		host := u.Host
		if host == "" {
			host = strings.TrimPrefix(addr, "tcp://")
		}
		return net.Listen("tcp", host)
	default:
		return nil, fmt.Errorf("unsupported listen scheme %q", u.Scheme)
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parsePolicy(name string) sched.Policy {
	switch strings.ToLower(name) {
	case "rr", "roundrobin":
		return sched.PolicyRoundRobin
	case "fifo":
		return sched.PolicyFIFO
	default:
		return sched.PolicyOther
	}
}

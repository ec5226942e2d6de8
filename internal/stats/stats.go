// Package stats collects process-wide and per-pipeline counters:
// uptime, bytes moved, and each pipeline's listener count, position, and
// volume, the data behind the `status`/`getposition` RPC methods.
//
// Generalized from the teacher's ServerStats/MountStats/Collector
// (internal/stats/stats.go): one HTTP mount's listener/bitrate counters
// become one pipeline's listener/position/volume counters.
package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Global holds process-wide counters.
type Global struct {
	StartTime        time.Time
	TotalConnections int64
	TotalBytes       int64
	TotalPipelines   int64
}

var global = &Global{StartTime: time.Now()}

// Process returns the global counters instance.
func Process() *Global { return global }

func (g *Global) IncrementConnections() { atomic.AddInt64(&g.TotalConnections, 1) }
func (g *Global) AddBytes(n int64)      { atomic.AddInt64(&g.TotalBytes, n) }
func (g *Global) IncrementPipelines()   { atomic.AddInt64(&g.TotalPipelines, 1) }
func (g *Global) Uptime() time.Duration { return time.Since(g.StartTime) }

// PipelineStats holds live counters for one source→sink pipeline.
type PipelineStats struct {
	Name string

	mu          sync.RWMutex
	listeners   int64
	peak        int64
	bytesOut    int64
	positionMS  int64
	durationMS  int64
	volume      int
	sourceUp    bool
	sourceStart time.Time
}

// NewPipelineStats builds an empty counter set for name.
func NewPipelineStats(name string) *PipelineStats {
	return &PipelineStats{Name: name}
}

func (p *PipelineStats) AddBytesOut(n int64) {
	atomic.AddInt64(&p.bytesOut, n)
	global.AddBytes(n)
}

func (p *PipelineStats) SetListeners(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = n
	if n > p.peak {
		p.peak = n
	}
}

func (p *PipelineStats) Listeners() (current, peak int64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.listeners, p.peak
}

// SetPosition records the current playback position and track duration,
// the payload of PLAYER_POSITION events.
func (p *PipelineStats) SetPosition(positionMS, durationMS int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positionMS, p.durationMS = positionMS, durationMS
}

func (p *PipelineStats) Position() (positionMS, durationMS int64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.positionMS, p.durationMS
}

func (p *PipelineStats) SetVolume(v int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = v
}

func (p *PipelineStats) Volume() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.volume
}

func (p *PipelineStats) SetSourceConnected(up bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sourceUp = up
	if up {
		p.sourceStart = time.Now()
	}
}

func (p *PipelineStats) SourceDuration() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.sourceUp {
		return 0
	}
	return time.Since(p.sourceStart)
}

// Collector aggregates PipelineStats across all running pipelines.
type Collector struct {
	mu        sync.RWMutex
	pipelines map[string]*PipelineStats
}

// NewCollector builds an empty collector.
func NewCollector() *Collector {
	return &Collector{pipelines: make(map[string]*PipelineStats)}
}

// Get returns (creating if needed) the stats for a pipeline name.
func (c *Collector) Get(name string) *PipelineStats {
	c.mu.RLock()
	p, ok := c.pipelines[name]
	c.mu.RUnlock()
	if ok {
		return p
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pipelines[name]; ok {
		return p
	}
	p = NewPipelineStats(name)
	c.pipelines[name] = p
	global.IncrementPipelines()
	return p
}

// Remove drops a pipeline's stats once it's torn down.
func (c *Collector) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pipelines, name)
}

// All returns a snapshot copy of every pipeline's stats.
func (c *Collector) All() map[string]*PipelineStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*PipelineStats, len(c.pipelines))
	for k, v := range c.pipelines {
		out[k] = v
	}
	return out
}

// FormatBytes renders a byte count as a human-readable string, e.g. "4.19 MiB".
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatDuration renders a duration as e.g. "1h 2m 3s".
func FormatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

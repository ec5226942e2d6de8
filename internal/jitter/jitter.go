// Package jitter implements the bounded producer/consumer buffer described
// in spec §4.1: a fixed-size block FIFO with two interchangeable backing
// strategies (scatter-gather and ring), state-machine lifecycle, threshold
// gating, and an optional heartbeat gate on the consumer side.
//
// Both backings share the same blocking contract: pull/push is the
// producer's strict pair, peer/pop is the consumer's strict pair, and
// flush/reset wake every blocked party the way the teacher's ring buffer
// wakes every listener with a single sync.Cond.Broadcast.
package jitter

import (
	"sync"
	"time"
)

// Jitter is the operation set common to both backing strategies.
type Jitter interface {
	// Name identifies the jitter for diagnostics.
	Name() string

	// Pull returns a writable block, or nil if flushing/stopped. Blocks
	// while every descriptor is non-free, unless Flush is called.
	Pull() []byte

	// Push commits a block obtained from Pull. len==0 marks end of
	// stream without releasing downstream consumers. beat, if non-nil,
	// is carried to the consumer and consumed by an attached Pacer.
	Push(n int, beat *Beat)

	// Peer returns a readable block, or nil if flushing or stopped.
	// Blocks while paused, while FILLING, or while no READY descriptor
	// exists.
	Peer() ([]byte, *Beat)

	// Pop releases the block obtained from Peer. n == -1 releases
	// whatever length was recorded at Push time.
	Pop(n int)

	// Flush wakes every blocked party; in-flight Pull/Peer return nil.
	Flush()

	// Reset flushes, then returns every descriptor to FREE and the
	// jitter to FILLING.
	Reset()

	// Pause prevents Peer from returning while on is true.
	Pause(on bool)

	// Length returns the bytes available in the current POP block, or
	// the live fill level for the ring variant.
	Length() int

	// State returns the current lifecycle state.
	State() State

	// SetProducer stores a synchronous producer callback. Neither
	// backing invokes it: Pull/Push still have to be called by a
	// producer of their own.
	SetProducer(fn func([]byte) (int, error))

	// SetConsumer stores a synchronous consumer callback, the mirror
	// image of SetProducer. Neither backing invokes it, so it has no
	// effect on Peer/Pop or on the jitter's state.
	SetConsumer(fn func([]byte) (int, error))

	// SetPacer attaches (or clears, with nil) the heartbeat gate
	// consulted by Peer before returning a block that carries a beat.
	SetPacer(p Pacer)

	// Count returns the number of descriptors/blocks.
	Count() int

	// BlockSize returns the fixed block size in bytes.
	BlockSize() int

	// Format returns the configured payload format.
	Format() Format
}

// Config parameterizes either backing implementation.
type Config struct {
	Name       string
	Count      int
	BlockSize  int
	Threshold  int // READY count required to leave FILLING
	Format     Format
	Pacer      Pacer
}

// common holds the fields and the mutex/condvar pair shared by both
// backings. The ring and scatter-gather implementations embed it and add
// their own descriptor storage.
type common struct {
	mu   sync.Mutex
	cond *sync.Cond

	name      string
	count     int
	blockSize int
	threshold int
	format    Format
	pacer     Pacer

	state   State
	paused  bool
	ready   int // number of READY descriptors/blocks

	producer func([]byte) (int, error)
	consumer func([]byte) (int, error)
}

func newCommon(cfg Config) common {
	if cfg.Count <= 0 {
		cfg.Count = 1
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = 4096
	}
	c := common{
		name:      cfg.Name,
		count:     cfg.Count,
		blockSize: cfg.BlockSize,
		threshold: cfg.Threshold,
		format:    cfg.Format,
		pacer:     cfg.Pacer,
		state:     StateStop,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *common) Name() string    { return c.name }
func (c *common) Count() int      { return c.count }
func (c *common) BlockSize() int  { return c.blockSize }
func (c *common) Format() Format  { return c.format }

func (c *common) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *common) SetProducer(fn func([]byte) (int, error)) {
	c.mu.Lock()
	c.producer = fn
	c.mu.Unlock()
}

func (c *common) SetConsumer(fn func([]byte) (int, error)) {
	c.mu.Lock()
	c.consumer = fn
	c.mu.Unlock()
}

func (c *common) SetPacer(p Pacer) {
	c.mu.Lock()
	c.pacer = p
	c.mu.Unlock()
}

// enterRunningLocked transitions FILLING -> RUNNING once ready reaches
// threshold. Caller holds c.mu.
func (c *common) enterRunningLocked() {
	if c.state == StateFilling && c.ready >= c.threshold {
		c.state = StateRunning
	}
}

// leaveRunningLocked transitions RUNNING -> FILLING when the ready count
// drops below threshold (the ring counts every block holding unread
// bytes as ready). Caller holds c.mu.
func (c *common) leaveRunningLocked() {
	if c.state == StateRunning && c.ready < c.threshold {
		c.state = StateFilling
	}
}

// waitPollSanity is not referenced by either backing: Peer and Pull wait
// on the condition variable without a deadline, like the teacher's
// cond.Wait() loop in Buffer.
const waitPollSanity = 24 * time.Hour

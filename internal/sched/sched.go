// Package sched implements the optional realtime scheduling hook of
// spec §5 ("worker threads run under a realtime FIFO/RR policy at a
// configured priority when privileges allow"). Linux-only via
// golang.org/x/sys/unix; a no-op build is provided for every other GOOS
// so callers never need a build tag of their own.
//
// golang.org/x/sys is already present transitively through the pack's
// audio-hardware repos (doismellburning-samoyed's cm108.go/ptt.go use
// unix.IoctlGetTermios/unix.Syscall for GPIO and serial PTT control);
// this package is the first direct import of it, for the syscall the
// rest of the pack never needed: setting a thread's scheduling policy.
package sched

// Policy selects a realtime scheduling class.
type Policy int

const (
	PolicyOther Policy = iota
	PolicyFIFO
	PolicyRoundRobin
)

// Priority bounds, shared across platforms for config validation even
// where the underlying syscall is unavailable.
const (
	MinPriority = 1
	MaxPriority = 99
)

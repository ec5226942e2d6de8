//go:build linux

package sched

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SetCurrentThread applies policy/priority to the calling OS thread.
// Callers must have run runtime.LockOSThread first, since Linux
// scheduling policy is a per-thread, not per-process, attribute.
func SetCurrentThread(policy Policy, priority int) error {
	if policy == PolicyOther {
		return nil
	}
	if priority < MinPriority || priority > MaxPriority {
		return fmt.Errorf("sched: priority %d out of range [%d,%d]", priority, MinPriority, MaxPriority)
	}

	var p int
	switch policy {
	case PolicyFIFO:
		p = unix.SCHED_FIFO
	case PolicyRoundRobin:
		p = unix.SCHED_RR
	default:
		return fmt.Errorf("sched: unknown policy %d", policy)
	}

	param := &unix.SchedParam{Priority: int32(priority)}
	if err := unix.SchedSetscheduler(0, p, param); err != nil {
		return fmt.Errorf("sched: setscheduler: %w", err)
	}
	return nil
}

// Available reports whether realtime scheduling is supported on this
// platform (always true on Linux; the caller still needs CAP_SYS_NICE
// or RLIMIT_RTPRIO to succeed).
func Available() bool { return true }

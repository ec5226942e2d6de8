//go:build !linux

package sched

// SetCurrentThread is a no-op outside Linux; realtime scheduling is not
// wired for other platforms.
func SetCurrentThread(policy Policy, priority int) error { return nil }

// Available reports whether realtime scheduling is supported on this
// platform.
func Available() bool { return false }

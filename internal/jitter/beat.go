package jitter

// Beat is the token a producer can attach to a pushed block so a Pacer
// (the heartbeat subsystem) can compute its next wake deadline. Exactly
// one of NSamples/Length is meaningful depending on the heartbeat variant
// attached to the jitter; Pulse heartbeats ignore both.
type Beat struct {
	NSamples uint64
	Length   uint64
}

// Empty reports whether the beat carries no pacing information.
func (b Beat) Empty() bool {
	return b.NSamples == 0 && b.Length == 0
}

// Pacer is the gate a jitter consults from peer() before handing a block
// to the consumer. It is satisfied by *heartbeat.Heartbeat; the interface
// lives here (not in package heartbeat) so jitter need not import it and
// heartbeat need not import jitter.
type Pacer interface {
	Wait(beat Beat)
}

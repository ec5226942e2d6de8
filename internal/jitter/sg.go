package jitter

// ScatterGather is the descriptor-array backing of spec §3: count fixed
// blocks, each independently FREE/PULL/POP/READY, rotated by a write
// cursor (producer) and a read cursor (consumer). Blocks are never
// copied on the hot path — Pull/Peer hand back the descriptor's own
// backing array.
type ScatterGather struct {
	common

	descs    []sgDesc
	writeCur int
	readCur  int

	pullOutstanding bool
	pullIdx         int
	popOutstanding  bool
}

type sgDesc struct {
	state  descState
	data   []byte
	length int
	beat   *Beat
}

// NewScatterGather builds an SG-backed jitter with cfg.Count descriptors
// of cfg.BlockSize bytes each.
func NewScatterGather(cfg Config) *ScatterGather {
	sg := &ScatterGather{common: newCommon(cfg)}
	sg.descs = make([]sgDesc, sg.count)
	for i := range sg.descs {
		sg.descs[i].data = make([]byte, sg.blockSize)
	}
	sg.state = StateFilling
	return sg
}

// Pull implements Jitter.
func (sg *ScatterGather) Pull() []byte {
	sg.mu.Lock()
	for {
		if sg.state == StateFlush || sg.state == StateStop {
			sg.mu.Unlock()
			return nil
		}
		if !sg.pullOutstanding && sg.descs[sg.writeCur].state == descFree {
			break
		}
		sg.cond.Wait()
	}
	sg.pullOutstanding = true
	sg.pullIdx = sg.writeCur
	sg.descs[sg.pullIdx].state = descPull
	buf := sg.descs[sg.pullIdx].data
	sg.mu.Unlock()
	return buf
}

// Push implements Jitter.
func (sg *ScatterGather) Push(n int, beat *Beat) {
	sg.mu.Lock()
	if !sg.pullOutstanding || sg.descs[sg.pullIdx].state != descPull {
		// no matching pull outstanding: silently ignore per spec,
		// still wake anyone waiting on a state change.
		sg.cond.Broadcast()
		sg.mu.Unlock()
		return
	}
	idx := sg.pullIdx
	sg.pullOutstanding = false

	if n < 0 {
		n = 0
	}
	sg.descs[idx].length = n
	sg.descs[idx].beat = beat
	sg.descs[idx].state = descReady

	sg.writeCur = (sg.writeCur + 1) % sg.count
	sg.ready++
	sg.enterRunningLocked()
	sg.cond.Broadcast()
	sg.mu.Unlock()
}

// Peer implements Jitter. The descriptor at readCur must become the
// active POP in FIFO order: push order equals peer order.
func (sg *ScatterGather) Peer() ([]byte, *Beat) {
	sg.mu.Lock()
	for {
		if sg.state == StateFlush || sg.state == StateStop {
			sg.mu.Unlock()
			return nil, nil
		}
		if sg.paused {
			sg.cond.Wait()
			continue
		}
		if sg.state == StateFilling {
			sg.cond.Wait()
			continue
		}
		if !sg.popOutstanding && sg.descs[sg.readCur].state == descReady {
			break
		}
		sg.cond.Wait()
	}
	idx := sg.readCur
	sg.popOutstanding = true
	sg.descs[idx].state = descPop
	beat := sg.descs[idx].beat
	sg.descs[idx].beat = nil
	data := sg.descs[idx].data[:sg.descs[idx].length]
	pacer := sg.pacer
	sg.mu.Unlock()

	if pacer != nil && beat != nil && !beat.Empty() {
		pacer.Wait(*beat)
		beat = nil
	}
	return data, beat
}

// Pop implements Jitter.
func (sg *ScatterGather) Pop(n int) {
	sg.mu.Lock()
	if !sg.popOutstanding || sg.descs[sg.readCur].state != descPop {
		sg.cond.Broadcast()
		sg.mu.Unlock()
		return
	}
	idx := sg.readCur
	if n < 0 {
		// keep recorded length, nothing to change
	} else {
		sg.descs[idx].length = n
	}
	sg.descs[idx].state = descFree
	sg.descs[idx].length = 0
	sg.readCur = (sg.readCur + 1) % sg.count
	sg.ready--
	sg.popOutstanding = false
	sg.leaveRunningLocked()
	sg.cond.Broadcast()
	sg.mu.Unlock()
}

// Flush implements Jitter.
func (sg *ScatterGather) Flush() {
	sg.mu.Lock()
	sg.state = StateFlush
	sg.cond.Broadcast()
	sg.mu.Unlock()
}

// Reset implements Jitter.
func (sg *ScatterGather) Reset() {
	sg.mu.Lock()
	sg.state = StateFlush
	sg.cond.Broadcast()
	for i := range sg.descs {
		sg.descs[i].state = descFree
		sg.descs[i].length = 0
		sg.descs[i].beat = nil
	}
	sg.writeCur = 0
	sg.readCur = 0
	sg.pullOutstanding = false
	sg.popOutstanding = false
	sg.ready = 0
	sg.state = StateFilling
	sg.cond.Broadcast()
	sg.mu.Unlock()
}

// Pause implements Jitter.
func (sg *ScatterGather) Pause(on bool) {
	sg.mu.Lock()
	sg.paused = on
	sg.cond.Broadcast()
	sg.mu.Unlock()
}

// Length implements Jitter.
func (sg *ScatterGather) Length() int {
	sg.mu.Lock()
	defer sg.mu.Unlock()
	if sg.popOutstanding {
		return sg.descs[sg.readCur].length
	}
	return 0
}

var _ Jitter = (*ScatterGather)(nil)

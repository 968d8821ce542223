// Package txring implements the sender's Tx staging double-buffer (§3
// "Tx staging ring", §4.3, §9): a small ring of frame-sized buffers that
// decouples the producer (the device I/O thread calling Write) from the
// Tx task that encodes and transmits a frame's datagrams.
//
// The handshake is the classic single-producer/single-consumer ring
// pattern: the producer publishes a filled slot by advancing an atomic
// "current" counter; the Tx task consumes slots and advances a
// "processing" counter. Ownership of each slot's memory is exclusive: the
// producer owns it while current-processing puts it in the unconsumed
// range, the Tx task owns it once it claims it via Next. This mirrors
// internal/transport.AsyncTx's atomic-index idiom, but — unlike AsyncTx's
// drop-on-full semantics — Finalize blocks cooperatively (§4.3 step 3)
// rather than dropping, because frame loss here would desynchronize the
// wire frame index sequence instead of just one datagram.
package txring

import (
	"sync/atomic"
	"time"

	"github.com/sdrfec/gateway/internal/wire"
)

// pollInterval is how often a blocked producer or idle Tx task re-checks
// ring state (§5 "Tx-ring full wait: 100 μs poll").
const pollInterval = 100 * time.Microsecond

// Slot is one frame-sized staging buffer: K+Rmax super-blocks, contiguous,
// plus the parameters pinned at the moment it was marked ready.
type Slot struct {
	Datagrams  []byte // (wire.OriginalBlocks+capacity) * wire.DatagramSize, written directly by the framer
	FrameIndex uint16
	Recovery   int // R for this frame
	TxDelay    time.Duration
}

// Ring is the Tx staging ring. T must be >= 2.
type Ring struct {
	slots      []Slot
	maxR       int
	current    atomic.Uint64 // slots published by the producer so far
	processing atomic.Uint64 // slots fully consumed by the Tx task so far

	// onWaitProducer/onWaitConsumer are invoked on each poll iteration
	// while blocked, letting callers log a warning and check a stop
	// signal without the ring depending on context/logging directly.
	onWaitProducer func()
	onWaitConsumer func()
}

// New builds a ring of n slots (recommended T>=2), each big enough for
// K originals plus up to maxR recovery blocks.
func New(n, maxR int) *Ring {
	if n < 2 {
		n = 2
	}
	r := &Ring{slots: make([]Slot, n), maxR: maxR}
	for i := range r.slots {
		r.slots[i].Datagrams = make([]byte, (wire.OriginalBlocks+maxR)*wire.DatagramSize)
	}
	return r
}

// Len reports the number of slots (T).
func (r *Ring) Len() int { return len(r.slots) }

// OnWaitProducer/OnWaitConsumer register a callback invoked on every poll
// iteration a caller spends blocked in Finalize/Next respectively — used
// to emit the backpressure warning and to observe a cancellation signal.
func (r *Ring) OnWaitProducer(fn func()) { r.onWaitProducer = fn }
func (r *Ring) OnWaitConsumer(fn func()) { r.onWaitConsumer = fn }

// CurrentSlot returns the slot currently being filled by the producer.
func (r *Ring) CurrentSlot() *Slot {
	return &r.slots[int(r.current.Load())%len(r.slots)]
}

// Finalize marks the current slot ready for transmission with the given
// per-frame parameters, then blocks (§4.3 step 3) until there is a free
// slot for the producer to fill next. stop, if non-nil, aborts the wait
// early (shutdown).
func (r *Ring) Finalize(frameIndex uint16, recovery int, txDelay time.Duration, stop <-chan struct{}) {
	cur := r.current.Load()
	slot := &r.slots[int(cur)%len(r.slots)]
	slot.FrameIndex = frameIndex
	slot.Recovery = recovery
	slot.TxDelay = txDelay
	r.current.Store(cur + 1)

	for {
		cur := r.current.Load()
		proc := r.processing.Load()
		if cur-proc < uint64(len(r.slots)) {
			return
		}
		if r.onWaitProducer != nil {
			r.onWaitProducer()
		}
		select {
		case <-stop:
			return
		case <-time.After(pollInterval):
		}
	}
}

// Next blocks until a ready slot is available for the Tx task and returns
// it along with true. It returns (nil, false) if stop fires first.
func (r *Ring) Next(stop <-chan struct{}) (*Slot, bool) {
	for {
		cur := r.current.Load()
		proc := r.processing.Load()
		if proc != cur {
			return &r.slots[int(proc)%len(r.slots)], true
		}
		if r.onWaitConsumer != nil {
			r.onWaitConsumer()
		}
		select {
		case <-stop:
			return nil, false
		case <-time.After(pollInterval):
		}
	}
}

// Done marks the most recently returned Next() slot fully transmitted,
// freeing it for producer reuse.
func (r *Ring) Done() {
	r.processing.Store(r.processing.Load() + 1)
}

// Backlog reports how many slots are ready-but-unconsumed (0..T).
func (r *Ring) Backlog() int {
	return int(r.current.Load() - r.processing.Load())
}

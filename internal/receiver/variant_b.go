package receiver

import (
	"log/slog"
	"sync"

	"github.com/sdrfec/gateway/internal/stats"
	"github.com/sdrfec/gateway/internal/wire"
)

// VariantB is the multi-slot sliding-window reassembler of §4.5,
// tolerant of datagram reordering across frame boundaries. Slot i holds
// whichever wire frame index currently maps to i mod S.
type VariantB struct {
	mu   sync.Mutex
	s    int
	slot []*decoderSlot

	head        uint16
	initialized bool

	codecs *codecCache
	stats  *stats.FrameStats
	log    *slog.Logger

	currentMeta wire.MetaData
	haveMeta    bool

	outputMeta     wire.MetaData
	haveOutputMeta bool

	onDrain      DrainFunc
	onMetaChange MetaChangeFunc
}

// NewVariantB builds an S-slot sliding-window reassembler. S must be
// >= 1; the spec's reference value is 4.
func NewVariantB(s int, st *stats.FrameStats, log *slog.Logger, onDrain DrainFunc, onMetaChange MetaChangeFunc) *VariantB {
	if s < 1 {
		s = 1
	}
	if log == nil {
		log = slog.Default()
	}
	slots := make([]*decoderSlot, s)
	for i := range slots {
		slots[i] = newDecoderSlot()
	}
	return &VariantB{
		s:            s,
		slot:         slots,
		codecs:       newCodecCache(),
		stats:        st,
		log:          log,
		onDrain:      onDrain,
		onMetaChange: onMetaChange,
	}
}

func (r *VariantB) clearAllLocked(head uint16) {
	for _, sl := range r.slot {
		sl.active = false
	}
	r.head = head
}

// WriteAndRead implements §4.5 Variant B's per-datagram processing,
// including the sliding-window head-tracking state machine.
func (r *VariantB) WriteAndRead(hdr wire.Header, block []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f := hdr.FrameIndex

	if !r.initialized {
		r.initialized = true
		r.clearAllLocked(f)
		r.slot[int(f)%r.s].reset(f)
	} else {
		delta := int64(r.head) - int64(f)
		const wrapWindow = int64(1) << 16
		switch {
		// delta<0 means F is numerically ahead of head. A forward step
		// of any size short of wraparound distance evicts and drains
		// whichever physical slot F reuses (§4.5's "new head ahead");
		// spec.md's literal ad<S/ad>=wrapWindow-S split only names the
		// two extremes, but a gap between them would silently drop the
		// evicted slot's contents, so both ends of the forward range
		// drain here and only genuine wraparound clears everything.
		case delta < 0 && -delta < wrapWindow-int64(r.s):
			r.drainSlotLocked(int(f) % r.s)
			r.slot[int(f)%r.s].reset(f)
			r.head = f
		case delta < 0:
			r.clearAllLocked(f)
			r.slot[int(f)%r.s].reset(f)
		case delta > 0 && delta > wrapWindow-int64(r.s):
			r.drainSlotLocked(int(f) % r.s)
			r.slot[int(f)%r.s].reset(f)
			r.head = f
		case delta > 0 && delta >= int64(r.s):
			r.clearAllLocked(f)
			r.slot[int(f)%r.s].reset(f)
		default:
			// falls within the sliding window; accumulate without draining
		}
	}

	sl := r.slot[int(f)%r.s]
	if !sl.active || sl.frameIndex != f {
		sl.reset(f)
	}

	// Block i (1<=i<K) lands at blocks[i] of the shared decoderSlot, as
	// in Variant A; block 0, the MetaData carrier, is stored at index 0
	// and also decoded into the slot's typed metadata.
	switch {
	case hdr.BlockIndex == 0:
		sl.placeOriginal(0, block)
		if meta, err := wire.DecodeMetaData(block[:wire.MetaDataSize]); err == nil {
			sl.metaRetrieved = true
			sl.meta = meta
			r.noteMetaLocked(meta)
		}
	case int(hdr.BlockIndex) < wire.OriginalBlocks:
		sl.placeOriginal(int(hdr.BlockIndex), block)
	default:
		sl.placeRecovery(hdr.BlockIndex, block)
	}

	if err := sl.maybeDecode(r.codecs); err != nil {
		r.log.Warn("receiver: erasure decode failed", "frame", f, "error", err)
	}
}

func (r *VariantB) noteMetaLocked(meta wire.MetaData) {
	if r.haveMeta && r.currentMeta.SameTuning(meta) {
		return
	}
	r.currentMeta = meta
	r.haveMeta = true
	if r.onMetaChange != nil {
		r.onMetaChange(meta)
	}
}

func (r *VariantB) drainSlotLocked(i int) {
	sl := r.slot[i]
	if !sl.active {
		return
	}
	payload := make([]byte, wire.FramePayloadSamples*wire.SampleSize)
	sl.drainPayload(payload)

	if r.stats != nil {
		r.stats.Record(sl.blockCount, sl.recoveryCount)
	}
	if sl.metaRetrieved {
		r.outputMeta = sl.meta
		r.haveOutputMeta = true
	}
	if r.onDrain != nil {
		r.onDrain(payload, r.outputMeta, r.haveOutputMeta)
	}
	sl.active = false
}

// Flush drains every slot still holding data, for shutdown.
func (r *VariantB) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.slot {
		r.drainSlotLocked(i)
	}
}

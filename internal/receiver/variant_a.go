package receiver

import (
	"log/slog"
	"sync"

	"github.com/sdrfec/gateway/internal/stats"
	"github.com/sdrfec/gateway/internal/wire"
)

// DrainFunc receives one fully-drained frame's contiguous payload
// (missing blocks contribute zeros) plus the metadata state at drain
// time.
type DrainFunc func(payload []byte, meta wire.MetaData, metaRetrieved bool)

// MetaChangeFunc is invoked whenever incoming block-0 metadata differs
// from currentMeta on its first 12 bytes (§4.7), for the command
// channel to relay as a notice.
type MetaChangeFunc func(meta wire.MetaData)

// VariantA is the single-slot streaming reassembler of §4.5. A wire
// frame-index change triggers drain-and-reinit; it is the simpler of
// the two variants and matches the observed production form.
type VariantA struct {
	mu   sync.Mutex
	slot *decoderSlot

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

// NewVariantA builds a Variant A reassembler reporting drained frames
// to onDrain and metadata changes to onMetaChange (either may be nil).
func NewVariantA(st *stats.FrameStats, log *slog.Logger, onDrain DrainFunc, onMetaChange MetaChangeFunc) *VariantA {
	if log == nil {
		log = slog.Default()
	}
	return &VariantA{
		slot:         newDecoderSlot(),
		codecs:       newCodecCache(),
		stats:        st,
		log:          log,
		onDrain:      onDrain,
		onMetaChange: onMetaChange,
	}
}

// WriteAndRead implements §4.5's per-datagram processing. hdr/block
// come straight from wire.ParseDatagram; block is not retained beyond
// this call.
func (r *VariantA) WriteAndRead(hdr wire.Header, block []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.slot.active {
		r.slot.reset(hdr.FrameIndex)
	} else if hdr.FrameIndex != r.slot.frameIndex {
		r.drainLocked()
		r.slot.reset(hdr.FrameIndex)
	}

	switch {
	case hdr.BlockIndex == 0:
		r.slot.placeOriginal(0, block)
		if meta, err := wire.DecodeMetaData(block[:wire.MetaDataSize]); err == nil {
			r.slot.metaRetrieved = true
			r.slot.meta = meta
			r.noteMetaLocked(meta)
		}
	case int(hdr.BlockIndex) < wire.OriginalBlocks:
		r.slot.placeOriginal(int(hdr.BlockIndex), block)
	default:
		r.slot.placeRecovery(hdr.BlockIndex, block)
	}

	if err := r.slot.maybeDecode(r.codecs); err != nil {
		r.log.Warn("receiver: erasure decode failed", "frame", hdr.FrameIndex, "error", err)
	}
}

// noteMetaLocked implements §4.7's currentMeta update rule: compare on
// the first 12 bytes, update and notify only on an actual change.
func (r *VariantA) noteMetaLocked(meta wire.MetaData) {
	if r.haveMeta && r.currentMeta.SameTuning(meta) {
		return
	}
	r.currentMeta = meta
	r.haveMeta = true
	if r.onMetaChange != nil {
		r.onMetaChange(meta)
	}
}

// drainLocked implements §4.5 step 1's drain: copy blocks[1:K]
// contiguously (missing blocks are already zero), update statistics,
// and update outputMeta if this frame ever retrieved metadata.
func (r *VariantA) drainLocked() {
	payload := make([]byte, wire.FramePayloadSamples*wire.SampleSize)
	r.slot.drainPayload(payload)

	if r.stats != nil {
		r.stats.Record(r.slot.blockCount, r.slot.recoveryCount)
	}

	if r.slot.metaRetrieved {
		r.outputMeta = r.slot.meta
		r.haveOutputMeta = true
	}

	if r.onDrain != nil {
		r.onDrain(payload, r.outputMeta, r.haveOutputMeta)
	}
}

// Flush forces a drain of whatever the current slot holds, for
// shutdown paths that want the last partial frame delivered.
func (r *VariantA) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slot.active {
		r.drainLocked()
		r.slot.active = false
	}
}

// Accessors implements §4.7's consumer-facing reads of outputMeta, with
// the spec's safe defaults when a field has never been populated.
type Accessors struct{ r *VariantA }

// Accessors returns a read-only view over outputMeta for consumer code.
func (r *VariantA) Accessors() Accessors { return Accessors{r: r} }

const (
	defaultCenterFrequencyHz = 100_000_000 / 1000 * 1000 // 100,000 kHz
	defaultSampleRateHz      = 48000
	defaultSampleBits        = 8
)

// CenterFrequencyHz returns outputMeta's center frequency, or the §4.7
// default (100,000 kHz) if it has never been populated.
func (a Accessors) CenterFrequencyHz() uint32 {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	if !a.r.haveOutputMeta || a.r.outputMeta.CenterFrequencyHz == 0 {
		return defaultCenterFrequencyHz
	}
	return a.r.outputMeta.CenterFrequencyHz
}

// SampleRateHz returns outputMeta's sample rate, or the §4.7 default
// (48,000 Hz).
func (a Accessors) SampleRateHz() uint32 {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	if !a.r.haveOutputMeta || a.r.outputMeta.SampleRateHz == 0 {
		return defaultSampleRateHz
	}
	return a.r.outputMeta.SampleRateHz
}

// SampleBits returns outputMeta's effective sample bits, or the §4.7
// default (8).
func (a Accessors) SampleBits() uint8 {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	if !a.r.haveOutputMeta || a.r.outputMeta.SampleBits == 0 {
		return defaultSampleBits
	}
	return a.r.outputMeta.SampleBits
}

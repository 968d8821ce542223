// Package receiver implements the §4.5 reassembler (Variant A primary,
// Variant B available), the §4.6 residual buffer hookup, and the §4.7
// metadata lifecycle, grounded on the teacher's goroutine+atomic
// concurrency idioms and on
// original_source/gr-sdrdaemonfec/lib/SDRdaemonFECBuffer.cpp /
// original_source/sdmnbase/UDPSinkFEC.cpp for exact drain/placement
// semantics.
package receiver

import (
	"github.com/sdrfec/gateway/internal/erasure"
	"github.com/sdrfec/gateway/internal/wire"
)

// decoderSlot accumulates one frame's worth of super-blocks. Original
// block storage is pre-allocated for all K positions; presence is
// tracked separately so missing blocks can be told apart from blocks
// that happen to be all zero.
type decoderSlot struct {
	frameIndex uint16
	active     bool

	blocks       [][]byte // K entries, wire.BlockSize each; blocks[0] holds the raw MetaData block
	blockPresent []bool   // K entries

	recoveryStorage [][]byte // backing storage, wire.MaxRecoveryBlocks entries
	recoveryBlocks  []erasure.Descriptor
	recoveryCount   int

	blockCount int // total datagrams received this frame (originals + recovery)

	metaRetrieved bool
	meta          wire.MetaData
}

func newDecoderSlot() *decoderSlot {
	s := &decoderSlot{
		blocks:          make([][]byte, wire.OriginalBlocks),
		blockPresent:    make([]bool, wire.OriginalBlocks),
		recoveryStorage: make([][]byte, wire.MaxRecoveryBlocks),
	}
	for i := range s.blocks {
		s.blocks[i] = make([]byte, wire.BlockSize)
	}
	for i := range s.recoveryStorage {
		s.recoveryStorage[i] = make([]byte, wire.BlockSize)
	}
	return s
}

// reset reinitializes the slot for a new wire frame index, per §4.5
// step 1 "Reinitialize: zero payload, counts = 0, flags = false".
func (s *decoderSlot) reset(frameIndex uint16) {
	s.frameIndex = frameIndex
	s.active = true
	for i := range s.blockPresent {
		s.blockPresent[i] = false
		for j := range s.blocks[i] {
			s.blocks[i][j] = 0
		}
	}
	s.blockCount = 0
	s.recoveryCount = 0
	s.recoveryBlocks = s.recoveryBlocks[:0]
	s.metaRetrieved = false
	s.meta = wire.MetaData{}
}

// placeOriginal records the payload at wire block index idx (0..K-1).
// idx==0 is the MetaData block; its CRC is validated separately by the
// caller so a bad CRC can still let the raw bytes participate in
// erasure decoding (wire.ErrMetadataCRC's documented handling).
func (s *decoderSlot) placeOriginal(idx int, payload []byte) {
	copy(s.blocks[idx], payload)
	if !s.blockPresent[idx] {
		s.blockPresent[idx] = true
	}
	s.blockCount++
}

// placeRecovery records a recovery block keyed by its absolute wire
// index (K..K+R-1).
func (s *decoderSlot) placeRecovery(wireIndex uint8, payload []byte) {
	if s.recoveryCount >= len(s.recoveryStorage) {
		return // more recovery blocks than MaxRecoveryBlocks is a malformed stream; ignore extras
	}
	storage := s.recoveryStorage[s.recoveryCount]
	copy(storage, payload)
	s.recoveryBlocks = append(s.recoveryBlocks, erasure.Descriptor{Index: wireIndex, Block: storage})
	s.recoveryCount++
	s.blockCount++
}

// presentOriginalCount reports how many of the K original slots were
// actually received.
func (s *decoderSlot) presentOriginalCount() int {
	n := 0
	for _, p := range s.blockPresent {
		if p {
			n++
		}
	}
	return n
}

// maybeDecode invokes the erasure decoder when §4.5 step 4's trigger
// fires: exactly K datagrams received this frame and at least one of
// them was a recovery block (i.e. at least one original is missing).
func (s *decoderSlot) maybeDecode(codecs *codecCache) error {
	if s.blockCount != wire.OriginalBlocks || s.recoveryCount == 0 {
		return nil
	}
	// The Cauchy matrix depends on the frame's *configured* recovery
	// count (the sender's R, carried in MetaData.FECBlocks), not on how
	// many recovery blocks happened to arrive before the trigger fired
	// — decoding with the wrong matrix would silently corrupt data.
	r := s.recoveryCount
	if s.metaRetrieved && int(s.meta.FECBlocks) > 0 {
		r = int(s.meta.FECBlocks)
	}
	codec, err := codecs.get(r)
	if err != nil {
		return err
	}
	return codec.Decode(s.blocks, s.blockPresent, s.recoveryBlocks)
}

// drainPayload copies blocks[1:K] contiguously into dst (must be at
// least wire.FramePayloadSamples*wire.SampleSize bytes): block 0 is
// metadata and is skipped per §4.5 step 1.
func (s *decoderSlot) drainPayload(dst []byte) {
	for i := 1; i < wire.OriginalBlocks; i++ {
		off := (i - 1) * wire.BlockSize
		copy(dst[off:off+wire.BlockSize], s.blocks[i])
	}
}

// codecCache memoizes erasure.Codec construction per recovery count,
// mirroring internal/erasure's own matrix cache but scoped to one
// reassembler instance so Decode calls don't need global state.
type codecCache struct {
	byR map[int]*erasure.Codec
}

func newCodecCache() *codecCache { return &codecCache{byR: make(map[int]*erasure.Codec)} }

func (c *codecCache) get(r int) (*erasure.Codec, error) {
	if codec, ok := c.byR[r]; ok {
		return codec, nil
	}
	codec, err := erasure.NewCodec(wire.BlockSize, wire.OriginalBlocks, r)
	if err != nil {
		return nil, err
	}
	c.byR[r] = codec
	return codec, nil
}

// Package erasure adapts github.com/klauspost/reedsolomon to the block
// descriptor contract of the FEC framing protocol (§4.2): given K
// original blocks, produce R recovery blocks such that any K of the K+R
// are sufficient to reconstruct the originals.
package erasure

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/reedsolomon"
)

// ErrNoRecovery is returned by NewCodec when recoveryBlocks is 0; callers
// are expected to bypass the FEC path entirely in that case (§4.1).
var ErrNoRecovery = errors.New("erasure: recoveryBlocks must be > 0")

// Descriptor pairs a wire block index with its storage. Index < K means an
// original block; Index >= K means a recovery block.
type Descriptor struct {
	Index uint8
	Block []byte // exactly BlockSize bytes
}

// Codec wraps a Cauchy Reed-Solomon matrix sized for a fixed (K, R) pair.
// Safe for concurrent use: klauspost/reedsolomon encoders are stateless
// beyond the immutable matrix built at construction time.
type Codec struct {
	blockBytes int
	original   int
	recovery   int
	enc        reedsolomon.Encoder
}

// cache avoids rebuilding the Cauchy matrix (non-trivial Vandermonde-free
// construction cost) on every frame when R stays constant, which is the
// common case — R only changes via the command channel.
var (
	cacheMu sync.Mutex
	cache   = map[[2]int]reedsolomon.Encoder{}
)

func buildEncoder(original, recovery int) (reedsolomon.Encoder, error) {
	key := [2]int{original, recovery}
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if enc, ok := cache[key]; ok {
		return enc, nil
	}
	enc, err := reedsolomon.New(original, recovery, reedsolomon.WithCauchyMatrix())
	if err != nil {
		return nil, err
	}
	cache[key] = enc
	return enc, nil
}

// NewCodec builds a codec for the given original/recovery block counts and
// block size. original is always wire.OriginalBlocks (128) in this
// protocol; recovery is the frame's actual R, which may differ frame to
// frame as the command channel reconfigures it.
func NewCodec(blockBytes, original, recovery int) (*Codec, error) {
	if recovery <= 0 {
		return nil, ErrNoRecovery
	}
	enc, err := buildEncoder(original, recovery)
	if err != nil {
		return nil, fmt.Errorf("erasure: build matrix(%d,%d): %w", original, recovery, err)
	}
	return &Codec{blockBytes: blockBytes, original: original, recovery: recovery, enc: enc}, nil
}

// Encode fills each of recoveryBlocks (len == R) with the parity shard
// computed from originalBlocks (len == K). Every slice must be exactly
// blockBytes long. Deterministic: identical inputs always produce
// identical outputs.
func (c *Codec) Encode(originalBlocks, recoveryBlocks [][]byte) error {
	if len(originalBlocks) != c.original {
		return fmt.Errorf("erasure: expected %d original blocks, got %d", c.original, len(originalBlocks))
	}
	if len(recoveryBlocks) != c.recovery {
		return fmt.Errorf("erasure: expected %d recovery blocks, got %d", c.recovery, len(recoveryBlocks))
	}
	shards := make([][]byte, 0, c.original+c.recovery)
	shards = append(shards, originalBlocks...)
	shards = append(shards, recoveryBlocks...)
	return c.enc.Encode(shards)
}

// Decode reconstructs missing original blocks in place.
//
// originalBlocks holds storage for all K original block positions
// (frame.blocks[0..K-1] in the receiver's slot); originalPresent[i]
// reports whether originalBlocks[i] was actually carried by a received
// datagram — slots with originalPresent[i] == false are overwritten with
// the codec's reconstruction. recoveryBlocks carries the descriptors for
// whichever recovery blocks (wire index >= K) were actually received; its
// length plus the count of present originals must equal K for
// reconstruction to succeed (the erasure code's MDS property).
//
// Missing shards are represented as nil before the call into
// ReconstructData, matching klauspost/reedsolomon's own presence
// convention (len(shard) == 0 means absent; see also the pack's
// xtaci/kcp-go fec.go, which nils out missing shards the same way
// before reconstruction) — a zero-filled but full-length placeholder
// would make every shard look "present" and reconstruction would
// silently no-op.
func (c *Codec) Decode(originalBlocks [][]byte, originalPresent []bool, recoveryBlocks []Descriptor) error {
	if len(originalBlocks) != c.original || len(originalPresent) != c.original {
		return fmt.Errorf("erasure: expected %d original slots, got %d", c.original, len(originalBlocks))
	}
	total := c.original + c.recovery
	shards := make([][]byte, total)
	missing := 0
	for i, present := range originalPresent {
		if present {
			shards[i] = originalBlocks[i]
		} else {
			shards[i] = nil
			missing++
		}
	}
	for _, d := range recoveryBlocks {
		idx := int(d.Index)
		if idx < c.original || idx >= total {
			return fmt.Errorf("erasure: recovery descriptor index %d out of range [%d,%d)", idx, c.original, total)
		}
		shards[idx] = d.Block
	}
	if missing > len(recoveryBlocks) {
		return fmt.Errorf("erasure: %d originals missing but only %d recovery blocks available", missing, len(recoveryBlocks))
	}
	if err := c.enc.ReconstructData(shards); err != nil {
		return fmt.Errorf("erasure: reconstruct: %w", err)
	}
	for i, present := range originalPresent {
		if !present {
			copy(originalBlocks[i], shards[i])
		}
	}
	return nil
}

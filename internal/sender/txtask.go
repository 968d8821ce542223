package sender

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sdrfec/gateway/internal/erasure"
	"github.com/sdrfec/gateway/internal/txring"
	"github.com/sdrfec/gateway/internal/udpio"
	"github.com/sdrfec/gateway/internal/wire"
)

// Writer is the subset of *udpio.Conn the Tx task needs, isolated for
// testing with a fake transport.
type Writer interface {
	WriteDatagrams(buf []byte) (int, error)
}

// TxTask implements §4.3's "Tx task": it drains ready slots from the
// staging ring in order, erasure-encodes the recovery blocks when R>0,
// and transmits every super-block with the per-datagram txDelay pacing.
type TxTask struct {
	ring *txring.Ring
	conn Writer
	log  *slog.Logger

	codecCache map[int]*erasure.Codec
}

// NewTxTask builds a Tx task draining ring and writing through conn.
func NewTxTask(ring *txring.Ring, conn Writer, log *slog.Logger) *TxTask {
	if log == nil {
		log = slog.Default()
	}
	return &TxTask{ring: ring, conn: conn, log: log, codecCache: make(map[int]*erasure.Codec)}
}

// Run drains the ring until ctx is cancelled.
func (t *TxTask) Run(ctx context.Context) error {
	stop := ctx.Done()
	for {
		slot, ok := t.ring.Next(stop)
		if !ok {
			return ctx.Err()
		}
		if err := t.transmit(slot); err != nil {
			t.log.Warn("sender: tx task transmit failed", "frame", slot.FrameIndex, "error", err)
		}
		t.ring.Done()
	}
}

func (t *TxTask) transmit(slot *txring.Slot) error {
	r := slot.Recovery
	if r > 0 {
		codec, err := t.codecFor(r)
		if err != nil {
			return err
		}
		if err := t.encodeRecovery(slot, codec, r); err != nil {
			return err
		}
	}

	total := wire.OriginalBlocks + r
	for i := 0; i < total; i++ {
		off := i * wire.DatagramSize
		if _, err := t.conn.WriteDatagrams(slot.Datagrams[off : off+wire.DatagramSize]); err != nil {
			return fmt.Errorf("sender: write datagram %d/%d: %w", i, total, err)
		}
		if slot.TxDelay > 0 && i < total-1 {
			time.Sleep(slot.TxDelay)
		}
	}
	return nil
}

func (t *TxTask) codecFor(r int) (*erasure.Codec, error) {
	if c, ok := t.codecCache[r]; ok {
		return c, nil
	}
	c, err := erasure.NewCodec(wire.BlockSize, wire.OriginalBlocks, r)
	if err != nil {
		return nil, err
	}
	t.codecCache[r] = c
	return c, nil
}

// encodeRecovery zeroes the R recovery super-blocks, stamps their
// headers, and fills their payloads via the erasure codec (§4.3 Tx task
// step 4).
func (t *TxTask) encodeRecovery(slot *txring.Slot, codec *erasure.Codec, r int) error {
	originals := make([][]byte, wire.OriginalBlocks)
	for i := 0; i < wire.OriginalBlocks; i++ {
		off := i * wire.DatagramSize
		originals[i] = slot.Datagrams[off+wire.HeaderSize : off+wire.DatagramSize]
	}

	recovery := make([][]byte, r)
	for i := 0; i < r; i++ {
		idx := wire.OriginalBlocks + i
		off := idx * wire.DatagramSize
		block := slot.Datagrams[off+wire.HeaderSize : off+wire.DatagramSize]
		for j := range block {
			block[j] = 0
		}
		hdr := wire.Header{FrameIndex: slot.FrameIndex, BlockIndex: uint8(idx), Filler: 0}
		hdr.Put(slot.Datagrams[off : off+wire.HeaderSize])
		recovery[i] = block
	}

	return codec.Encode(originals, recovery)
}

package receiver

import (
	"bytes"
	"testing"

	"github.com/sdrfec/gateway/internal/erasure"
	"github.com/sdrfec/gateway/internal/stats"
	"github.com/sdrfec/gateway/internal/wire"
)

// buildFrame constructs K super-block payloads (block 0 = MetaData,
// 1..K-1 = a simple counting pattern) and, if r>0, r recovery blocks
// computed by the real erasure codec — mirroring what the sender's Tx
// task would actually transmit.
func buildFrame(t *testing.T, frameIndex uint16, r int) (blocks [][]byte, recovery [][]byte) {
	t.Helper()
	blocks = make([][]byte, wire.OriginalBlocks)
	for i := range blocks {
		blocks[i] = make([]byte, wire.BlockSize)
	}
	meta := wire.MetaData{
		CenterFrequencyHz: 145000000,
		SampleRateHz:      2000000,
		SampleBytes:       2,
		SampleBits:        16,
		OriginalBlocks:    wire.OriginalBlocks,
		FECBlocks:         uint8(r),
	}
	meta.Encode(blocks[0][:wire.MetaDataSize])

	for i := 1; i < wire.OriginalBlocks; i++ {
		for j := 0; j < wire.SamplesPerBlock; j++ {
			wire.PutSample(blocks[i][j*wire.SampleSize:], wire.Sample{I: int16(i), Q: int16(j)})
		}
	}

	if r > 0 {
		recovery = make([][]byte, r)
		for i := range recovery {
			recovery[i] = make([]byte, wire.BlockSize)
		}
		codec, err := erasure.NewCodec(wire.BlockSize, wire.OriginalBlocks, r)
		if err != nil {
			t.Fatalf("NewCodec: %v", err)
		}
		if err := codec.Encode(blocks, recovery); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}
	return blocks, recovery
}

func TestVariantADrainsCompleteFrameWithoutLoss(t *testing.T) {
	var st stats.FrameStats
	var drained []byte
	var drainedMeta wire.MetaData
	var metaOK bool

	r := NewVariantA(&st, nil, func(payload []byte, meta wire.MetaData, metaRetrieved bool) {
		drained = append([]byte(nil), payload...)
		drainedMeta = meta
		metaOK = metaRetrieved
	}, nil)

	blocks, _ := buildFrame(t, 0, 0)
	for i, b := range blocks {
		r.WriteAndRead(wire.Header{FrameIndex: 0, BlockIndex: uint8(i)}, b)
	}
	// trigger drain with the next frame's first datagram
	next, _ := buildFrame(t, 1, 0)
	r.WriteAndRead(wire.Header{FrameIndex: 1, BlockIndex: 0}, next[0])

	if drained == nil {
		t.Fatalf("expected a drained frame")
	}
	if !metaOK {
		t.Fatalf("expected metaRetrieved=true")
	}
	if drainedMeta.CenterFrequencyHz != 145000000 {
		t.Fatalf("unexpected drained metadata: %+v", drainedMeta)
	}
	want := make([]byte, wire.BlockSize)
	for j := 0; j < wire.SamplesPerBlock; j++ {
		wire.PutSample(want[j*wire.SampleSize:], wire.Sample{I: 1, Q: int16(j)})
	}
	if !bytes.Equal(drained[:wire.BlockSize], want) {
		t.Fatalf("first drained block mismatch")
	}
	blocks_, recovery := st.AvgBlocks.Mean(), st.AvgRecovery.Mean()
	_ = blocks_
	if recovery != 0 {
		t.Fatalf("expected avg recovery 0, got %v", recovery)
	}
}

func TestVariantARecoversFromOneMissingOriginal(t *testing.T) {
	var st stats.FrameStats
	var drained []byte

	r := NewVariantA(&st, nil, func(payload []byte, meta wire.MetaData, metaRetrieved bool) {
		drained = append([]byte(nil), payload...)
	}, nil)

	blocks, recovery := buildFrame(t, 5, 4)
	missing := 7
	for i, b := range blocks {
		if i == missing {
			continue
		}
		r.WriteAndRead(wire.Header{FrameIndex: 5, BlockIndex: uint8(i)}, b)
	}
	for i, b := range recovery {
		r.WriteAndRead(wire.Header{FrameIndex: 5, BlockIndex: uint8(wire.OriginalBlocks + i)}, b)
	}

	next, _ := buildFrame(t, 6, 0)
	r.WriteAndRead(wire.Header{FrameIndex: 6, BlockIndex: 0}, next[0])

	if drained == nil {
		t.Fatalf("expected a drained frame")
	}
	want := make([]byte, wire.BlockSize)
	for j := 0; j < wire.SamplesPerBlock; j++ {
		wire.PutSample(want[j*wire.SampleSize:], wire.Sample{I: int16(missing), Q: int16(j)})
	}
	off := (missing - 1) * wire.BlockSize
	if !bytes.Equal(drained[off:off+wire.BlockSize], want) {
		t.Fatalf("recovered block %d mismatch", missing)
	}
}

func TestVariantAMetaChangeNotification(t *testing.T) {
	var st stats.FrameStats
	var changes int
	r := NewVariantA(&st, nil, nil, func(meta wire.MetaData) { changes++ })

	blocks, _ := buildFrame(t, 0, 0)
	r.WriteAndRead(wire.Header{FrameIndex: 0, BlockIndex: 0}, blocks[0])
	r.WriteAndRead(wire.Header{FrameIndex: 0, BlockIndex: 0}, blocks[0]) // same meta, no change
	if changes != 1 {
		t.Fatalf("changes = %d, want 1", changes)
	}
}

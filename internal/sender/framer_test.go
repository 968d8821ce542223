package sender

import (
	"testing"

	"github.com/sdrfec/gateway/internal/device"
	"github.com/sdrfec/gateway/internal/txring"
	"github.com/sdrfec/gateway/internal/wire"
)

func TestFramerFillsFullFrame(t *testing.T) {
	ring := txring.New(2, 16)
	cfg := NewConfig()
	stop := make(chan struct{})
	defer close(stop)

	f := NewFramer(ring, cfg, stop)
	f.SetTuning(device.Tuning{CenterFrequencyHz: 100000000, SampleRateHz: 2000000, SampleBits: 16})

	samples := make([]wire.Sample, wire.FramePayloadSamples)
	for i := range samples {
		samples[i] = wire.Sample{I: int16(i), Q: int16(-i)}
	}
	f.Write(samples)

	slot, ok := ring.Next(stop)
	if !ok {
		t.Fatalf("expected a finalized frame")
	}
	if slot.FrameIndex != 0 {
		t.Fatalf("frame index = %d, want 0", slot.FrameIndex)
	}

	hdr := wire.ParseHeader(slot.Datagrams[0:wire.HeaderSize])
	if hdr.BlockIndex != 0 {
		t.Fatalf("block 0 header index = %d, want 0", hdr.BlockIndex)
	}
	meta, err := wire.DecodeMetaData(slot.Datagrams[wire.HeaderSize : wire.HeaderSize+wire.MetaDataSize])
	if err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if meta.CenterFrequencyHz != 100000000 || meta.SampleRateHz != 2000000 {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if meta.OriginalBlocks != wire.OriginalBlocks {
		t.Fatalf("metadata K = %d, want %d", meta.OriginalBlocks, wire.OriginalBlocks)
	}

	// spot-check the first sample of block 1.
	block1Off := 1 * wire.DatagramSize
	hdr1 := wire.ParseHeader(slot.Datagrams[block1Off : block1Off+wire.HeaderSize])
	if hdr1.BlockIndex != 1 {
		t.Fatalf("block 1 header index = %d, want 1", hdr1.BlockIndex)
	}
	got := wire.GetSample(slot.Datagrams[block1Off+wire.HeaderSize:])
	if got != (wire.Sample{I: 0, Q: 0}) {
		t.Fatalf("first sample of block 1 = %+v, want {0 0}", got)
	}
}

func TestFramerAdvancesFrameCountAcrossMultipleFrames(t *testing.T) {
	ring := txring.New(4, 16)
	cfg := NewConfig()
	stop := make(chan struct{})
	defer close(stop)

	f := NewFramer(ring, cfg, stop)
	samples := make([]wire.Sample, wire.FramePayloadSamples*2)
	f.Write(samples)

	first, ok := ring.Next(stop)
	if !ok {
		t.Fatalf("expected first frame")
	}
	if first.FrameIndex != 0 {
		t.Fatalf("first frame index = %d, want 0", first.FrameIndex)
	}
	ring.Done()

	second, ok := ring.Next(stop)
	if !ok {
		t.Fatalf("expected second frame")
	}
	if second.FrameIndex != 1 {
		t.Fatalf("second frame index = %d, want 1", second.FrameIndex)
	}
}

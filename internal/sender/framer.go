// Package sender implements the §4.3 sender framer and Tx task: it
// slices an incoming I/Q sample stream into 512-byte super-blocks,
// stamps a MetaData record into block 0 of every frame, hands finished
// frames to a Tx staging ring (internal/txring), and a separate Tx task
// drains that ring, erasure-encodes the optional recovery blocks
// (internal/erasure) and transmits the result over internal/udpio.
//
// Grounded on the teacher's producer/consumer split in
// internal/transport.AsyncTx (atomic handoff, dedicated goroutine) and
// on original_source/gr-sdrdaemonfec/lib/SDRdaemonFECBuffer.cpp for the
// exact write()/finalize_frame() state machine where spec.md's prose is
// terse.
package sender

import (
	"sync/atomic"
	"time"

	"github.com/sdrfec/gateway/internal/device"
	"github.com/sdrfec/gateway/internal/txring"
	"github.com/sdrfec/gateway/internal/wire"
)

// Config holds the framer's atomically-updatable runtime parameters,
// mutated by the command channel (§6) and read at frame boundaries.
type Config struct {
	R       atomic.Int32 // FEC block count, 0..127
	TxDelay atomic.Int64 // nanoseconds between datagram sends
}

// NewConfig returns a Config with R=0 (FEC bypassed) and no delay.
func NewConfig() *Config { return &Config{} }

// Framer implements §4.3's write()/finalize_frame() state machine. It
// is single-writer: only the device I/O goroutine calling Write may
// touch it, except SetTuning, which is safe from any goroutine.
type Framer struct {
	ring *txring.Ring
	cfg  *Config

	frameCount uint16
	blockIndex int // 1..K-1; 0 is the post-rotation sentinel
	sampleIdx  int

	tuning atomic.Pointer[device.Tuning]

	stop <-chan struct{}
}

// NewFramer builds a framer writing into ring, reading R/txDelay from
// cfg, and stamping MetaData with the tuning last passed to SetTuning,
// read when each frame starts. stop aborts a blocked finalize_frame()
// on shutdown.
func NewFramer(ring *txring.Ring, cfg *Config, stop <-chan struct{}) *Framer {
	return &Framer{ring: ring, cfg: cfg, blockIndex: 0, stop: stop}
}

// SetTuning updates the tuning snapshot stamped into future MetaData
// blocks. Called from the command channel's configuration handler.
func (f *Framer) SetTuning(t device.Tuning) { f.tuning.Store(&t) }

// Write implements §4.3 "write(samples)": it slices samples across
// block and frame boundaries, stamping MetaData at the start of each
// frame and finalizing/rotating frames as they fill.
func (f *Framer) Write(samples []wire.Sample) {
	for len(samples) > 0 {
		if f.blockIndex == 0 {
			f.stampMetaData()
			f.blockIndex = 1
		}

		slot := f.ring.CurrentSlot()
		blockOff := f.blockIndex * wire.DatagramSize
		block := slot.Datagrams[blockOff+wire.HeaderSize : blockOff+wire.DatagramSize]
		room := wire.SamplesPerBlock - f.sampleIdx

		n := len(samples)
		if n > room {
			n = room
		}
		for i := 0; i < n; i++ {
			wire.PutSample(block[(f.sampleIdx+i)*wire.SampleSize:], samples[i])
		}
		f.sampleIdx += n
		samples = samples[n:]

		if f.sampleIdx < wire.SamplesPerBlock {
			continue // block not yet full; sampleIndex advanced, nothing more to do
		}

		hdr := wire.Header{FrameIndex: f.frameCount, BlockIndex: uint8(f.blockIndex), Filler: 0}
		hdr.Put(slot.Datagrams[blockOff : blockOff+wire.HeaderSize])
		f.sampleIdx = 0

		if f.blockIndex == wire.OriginalBlocks-1 {
			f.finalizeFrame()
		} else {
			f.blockIndex++
		}
	}
}

func (f *Framer) stampMetaData() {
	slot := f.ring.CurrentSlot()
	now := time.Now()
	var tuning device.Tuning
	if t := f.tuning.Load(); t != nil {
		tuning = *t
	}
	meta := wire.MetaData{
		CenterFrequencyHz: tuning.CenterFrequencyHz,
		SampleRateHz:      tuning.SampleRateHz,
		SampleBytes:       wire.SampleSize / 2, // bytes per I/Q component
		SampleBits:        tuning.SampleBits,
		OriginalBlocks:    wire.OriginalBlocks,
		FECBlocks:         uint8(f.cfg.R.Load()),
		TxTimestampSec:    uint32(now.Unix()),
		TxTimestampUsec:   uint32(now.Nanosecond() / 1000),
	}
	block0 := slot.Datagrams[wire.HeaderSize:wire.DatagramSize]
	for i := range block0 {
		block0[i] = 0
	}
	meta.Encode(block0[:wire.MetaDataSize])
	hdr := wire.Header{FrameIndex: f.frameCount, BlockIndex: 0, Filler: 0}
	hdr.Put(slot.Datagrams[0:wire.HeaderSize])
}

// finalizeFrame implements §4.3 "finalize_frame()": mark the current
// slot ready, rotate, and block cooperatively while the ring is full.
func (f *Framer) finalizeFrame() {
	r := int(f.cfg.R.Load())
	delay := time.Duration(f.cfg.TxDelay.Load())
	f.ring.Finalize(f.frameCount, r, delay, f.stop)
	f.frameCount++
	f.blockIndex = 0
}

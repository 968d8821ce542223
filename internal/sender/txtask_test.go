package sender

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sdrfec/gateway/internal/device"
	"github.com/sdrfec/gateway/internal/txring"
	"github.com/sdrfec/gateway/internal/wire"
)

type recordingWriter struct {
	mu   sync.Mutex
	sent [][]byte
}

func (w *recordingWriter) WriteDatagrams(buf []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	cp := make([]byte, len(buf))
	copy(cp, buf)
	w.sent = append(w.sent, cp)
	return 1, nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.sent)
}

func TestTxTaskTransmitsWithRecovery(t *testing.T) {
	ring := txring.New(2, 8)
	cfg := NewConfig()
	cfg.R.Store(4)
	stop := make(chan struct{})
	defer close(stop)

	f := NewFramer(ring, cfg, stop)
	f.SetTuning(device.Tuning{CenterFrequencyHz: 50000000, SampleRateHz: 1000000, SampleBits: 16})
	f.Write(make([]wire.Sample, wire.FramePayloadSamples))

	w := &recordingWriter{}
	task := NewTxTask(ring, w, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- task.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && w.count() < wire.OriginalBlocks+4 {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	<-done

	if got := w.count(); got != wire.OriginalBlocks+4 {
		t.Fatalf("wrote %d datagrams, want %d", got, wire.OriginalBlocks+4)
	}
}

func TestTxTaskBypassesFECWhenRZero(t *testing.T) {
	ring := txring.New(2, 8)
	cfg := NewConfig()
	stop := make(chan struct{})
	defer close(stop)

	f := NewFramer(ring, cfg, stop)
	f.Write(make([]wire.Sample, wire.FramePayloadSamples))

	w := &recordingWriter{}
	task := NewTxTask(ring, w, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- task.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && w.count() < wire.OriginalBlocks {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	<-done

	if got := w.count(); got != wire.OriginalBlocks {
		t.Fatalf("wrote %d datagrams, want %d", got, wire.OriginalBlocks)
	}
}

package device

import (
	"context"
	"testing"
	"time"

	"github.com/sdrfec/gateway/internal/wire"
)

func TestTestSourceRunProducesSamples(t *testing.T) {
	src := NewTestSource()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	out := make(chan []wire.Sample, 8)
	err := src.Run(ctx, out)
	if err != context.DeadlineExceeded {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	select {
	case block := <-out:
		if len(block) != blockSamples {
			t.Fatalf("expected %d samples, got %d", blockSamples, len(block))
		}
	default:
		t.Fatalf("expected at least one block to have been produced")
	}
}

func TestTestSourceConfigureRejectsBadValues(t *testing.T) {
	src := NewTestSource()
	if _, err := src.Configure(map[string]string{"freq": "1"}); err == nil {
		t.Fatalf("expected error for out-of-range frequency")
	}
	if _, err := src.Configure(map[string]string{"srate": "1"}); err == nil {
		t.Fatalf("expected error for out-of-range sample rate")
	}
	tuning, err := src.Configure(map[string]string{"freq": "100000000", "srate": "2000000"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tuning.CenterFrequencyHz != 100000000 || tuning.SampleRateHz != 2000000 {
		t.Fatalf("unexpected tuning: %+v", tuning)
	}
}

func TestTestSinkAccumulates(t *testing.T) {
	sink := NewTestSink()
	meta := wire.MetaData{SampleRateHz: 2000000}
	if err := sink.Accept(meta, make([]wire.Sample, 100)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sink.Accept(meta, make([]wire.Sample, 50)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	frames, samples, last := sink.Stats()
	if frames != 2 || samples != 150 {
		t.Fatalf("frames=%d samples=%d, want 2,150", frames, samples)
	}
	if last.SampleRateHz != 2000000 {
		t.Fatalf("unexpected last meta: %+v", last)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
}

// Package device defines the sample-stream boundary between the gateway
// and an actual radio or sink: SampleSource feeds the sender its I/Q
// stream, SampleSink receives the reassembled stream at the receiver.
// Real hardware backends are out of scope (§D non-goals); TestSource and
// TestSink are the reference implementations used for development and
// integration tests, grounded on original_source/sdmnbase/TestSource.cpp.
package device

import (
	"context"

	"github.com/sdrfec/gateway/internal/wire"
)

// Tuning describes the parameters a SampleSource is currently configured
// for — the fields that populate a wire.MetaData record minus the
// per-send timestamp.
type Tuning struct {
	CenterFrequencyHz uint32
	SampleRateHz      uint32
	SampleBits        uint8
}

// SampleSource produces a continuous I/Q sample stream and accepts
// runtime retuning from the command channel (§6). Implementations must
// be safe for Configure to be called concurrently with Run.
type SampleSource interface {
	// Run streams samples into out until ctx is cancelled or the source
	// fails irrecoverably. out is owned by the caller; Run must not close
	// it. A returned error other than context.Canceled is a FatalStartup
	// or TransientSocketError-class failure (§7) and is logged by the
	// caller.
	Run(ctx context.Context, out chan<- []wire.Sample) error

	// Configure applies a partial set of key=value parameters (§6) and
	// reports the current tuning after applying them. An error means the
	// settings were
	// rejected outright (ConfigurationReject, §7) and nothing changed.
	Configure(params map[string]string) (Tuning, error)

	// Tuning reports the device's current configuration.
	Tuning() Tuning
}

// SampleSink is the far end of the pipeline: it receives the
// reassembled sample stream (with zero-filled gaps where recovery
// failed) for local use — writing to a file, a SoapySDR-like consumer,
// or (for tests) just counting samples.
type SampleSink interface {
	// Accept is called once per reassembled frame payload, in order.
	// meta reflects the tuning in effect when the frame was produced.
	Accept(meta wire.MetaData, samples []wire.Sample) error

	// Close flushes and releases any resources held by the sink.
	Close() error
}

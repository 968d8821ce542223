package device

import (
	"sync"

	"github.com/sdrfec/gateway/internal/wire"
)

// TestSink is a SampleSink that just counts what it receives, for
// tests. It is the receiver-side analogue of TestSource.
type TestSink struct {
	mu          sync.Mutex
	frames      int
	samples     int
	lastMeta    wire.MetaData
	closed      bool
}

// NewTestSink returns an empty TestSink.
func NewTestSink() *TestSink { return &TestSink{} }

// Accept implements SampleSink.
func (s *TestSink) Accept(meta wire.MetaData, samples []wire.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	s.samples += len(samples)
	s.lastMeta = meta
	return nil
}

// Close implements SampleSink.
func (s *TestSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Stats reports frames accepted, total samples, and the most recently
// observed metadata.
func (s *TestSink) Stats() (frames, samples int, meta wire.MetaData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames, s.samples, s.lastMeta
}

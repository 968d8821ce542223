// Package filesink implements an optional device.SampleSink that
// archives drained I/Q payloads to a file, grounded on
// original_source/sdmnbase/FileSink.cpp's closeAndOpen()/run() — a
// small header (sample rate, center frequency, start timestamp)
// followed by raw interleaved I/Q samples. Writes are funneled through
// internal/transport.AsyncTx so a slow disk never blocks the
// reassembler's drain path.
package filesink

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sdrfec/gateway/internal/transport"
	"github.com/sdrfec/gateway/internal/wire"
)

// FileSink writes drained frames to disk asynchronously.
type FileSink struct {
	f      *os.File
	async  *transport.AsyncTx[[]byte]
	log    *slog.Logger
	closed bool
}

// headerSize is sampleRate(4) + centerFreq(8) + startTimestamp(8).
const headerSize = 20

// New opens path and writes the FileSink-style header: 32-bit sample
// rate, 64-bit center frequency, 64-bit Unix start timestamp, all
// little-endian, followed by raw I/Q samples as they're appended.
func New(path string, meta wire.MetaData, bufDepth int, log *slog.Logger) (*FileSink, error) {
	if log == nil {
		log = slog.Default()
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("filesink: create %s: %w", path, err)
	}
	var hdr [headerSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], meta.SampleRateHz)
	binary.LittleEndian.PutUint64(hdr[4:12], uint64(meta.CenterFrequencyHz))
	binary.LittleEndian.PutUint64(hdr[12:20], uint64(time.Now().Unix()))
	if _, err := f.Write(hdr[:]); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("filesink: write header: %w", err)
	}

	s := &FileSink{f: f, log: log}
	s.async = transport.NewAsyncTx(context.Background(), bufDepth, s.write, transport.Hooks[[]byte]{
		OnError: func(err error) { log.Error("filesink_write_error", "error", err) },
	})
	return s, nil
}

func (s *FileSink) write(payload []byte) error {
	_, err := s.f.Write(payload)
	return err
}

// Accept implements device.SampleSink: it queues the drained payload
// for asynchronous disk write, detaching the reassembler's drain path
// from file I/O latency.
func (s *FileSink) Accept(meta wire.MetaData, samples []wire.Sample) error {
	buf := make([]byte, len(samples)*wire.SampleSize)
	for i, smp := range samples {
		wire.PutSample(buf[i*wire.SampleSize:], smp)
	}
	if err := s.async.SendFrame(buf); err != nil {
		return fmt.Errorf("filesink: enqueue: %w", err)
	}
	return nil
}

// Close drains pending writes and closes the file.
func (s *FileSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.async.Close()
	return s.f.Close()
}

// Package residual implements the §4.6 output residual buffer: the
// byte-oriented handoff between the receiver's network reader (which
// drains whole frames) and the consumer work-loop (which reads at its
// own cadence and its own chunk size).
package residual

import (
	"log/slog"
	"sync"
	"time"
)

// defaultCapacityPayloads is BUF_PAYLOADS from §4.6: the buffer holds up
// to this many drained frame payloads before Append starts dropping.
const defaultCapacityPayloads = 512

// PayloadSize is the size in bytes of one drained frame's contiguous
// I/Q payload: FramePayloadSamples * SampleSize = 16129*4 = 64516.
const PayloadSize = 16129 * 4

// waitPoll is the consumer's bounded wait per §5 ("Consumer wait: 10
// ms") so shutdown stays responsive without a hard condition-variable
// timeout API.
const waitPoll = 10 * time.Millisecond

// Buffer is a mutex-protected byte buffer sized for
// BUF_PAYLOADS frame payloads, with drop-on-overrun semantics.
type Buffer struct {
	mu       sync.Mutex
	data     []byte
	sent     int
	warned   bool
	notify   chan struct{}
	log      *slog.Logger
}

// New returns a Buffer with room for capacityPayloads drained frames (0
// selects the §4.6 default of 512).
func New(capacityPayloads int, log *slog.Logger) *Buffer {
	if capacityPayloads <= 0 {
		capacityPayloads = defaultCapacityPayloads
	}
	if log == nil {
		log = slog.Default()
	}
	return &Buffer{
		data:   make([]byte, 0, capacityPayloads*PayloadSize),
		notify: make(chan struct{}),
		log:    log,
	}
}

// Append adds a drained frame's payload bytes. If doing so would exceed
// capacity, the payload is dropped and a one-time warning logged (§4.6:
// "never overrun").
func (b *Buffer) Append(payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	residual := len(b.data) - b.sent
	if residual+len(payload) > cap(b.data) {
		if !b.warned {
			b.log.Warn("residual buffer overrun, dropping frame payload", "capacity", cap(b.data))
			b.warned = true
		}
		return
	}

	if b.sent > 0 {
		copy(b.data, b.data[b.sent:])
		b.data = b.data[:len(b.data)-b.sent]
		b.sent = 0
	}
	b.data = append(b.data, payload...)

	close(b.notify)
	b.notify = make(chan struct{})
}

// Read copies up to len(dst) bytes starting at the current send offset
// into dst, advancing the offset, and returns the count copied. If no
// data is available it waits up to waitPoll before returning 0 — the
// bounded wait that keeps shutdown responsive (§4.6, §5).
func (b *Buffer) Read(dst []byte) int {
	b.mu.Lock()
	residual := len(b.data) - b.sent
	if residual == 0 {
		notify := b.notify
		b.mu.Unlock()
		select {
		case <-notify:
		case <-time.After(waitPoll):
		}
		b.mu.Lock()
		residual = len(b.data) - b.sent
	}
	defer b.mu.Unlock()

	n := len(dst)
	if n > residual {
		n = residual
	}
	if n == 0 {
		return 0
	}
	copy(dst, b.data[b.sent:b.sent+n])
	b.sent += n
	if b.sent == len(b.data) {
		b.data = b.data[:0]
		b.sent = 0
	}
	return n
}

// Pending reports how many unread bytes are currently buffered.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data) - b.sent
}

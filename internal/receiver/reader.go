package receiver

import (
	"context"
	"log/slog"

	"github.com/sdrfec/gateway/internal/wire"
)

// Reassembler is the per-datagram contract shared by VariantA and
// VariantB, so the network reader loop doesn't need to know which is
// in use.
type Reassembler interface {
	WriteAndRead(hdr wire.Header, block []byte)
	Flush()
}

// RunReadLoop performs the §5 network-reader loop: read one datagram,
// parse it, hand it to the reassembler, and (via the reassembler's own
// onDrain hook, wired at construction) append drained payloads to buf.
// It returns when ctx is cancelled or the connection read fails.
func RunReadLoop(ctx context.Context, read func(buf []byte) (int, error), reasm Reassembler, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	datagram := make([]byte, wire.DatagramSize)
	for {
		select {
		case <-ctx.Done():
			reasm.Flush()
			return ctx.Err()
		default:
		}

		n, err := read(datagram)
		if err != nil {
			return err
		}
		hdr, block, perr := wire.ParseDatagram(datagram[:n])
		if perr != nil {
			log.Warn("receiver: malformed datagram", "size", n, "error", perr)
			continue
		}
		reasm.WriteAndRead(hdr, block)
	}
}

// Package udpio wraps a UDP socket for the fixed-size 512-byte datagram
// traffic described in §3/§5: a batched writer for the sender's Tx task
// and a batched reader for the receiver's Rx loop. Batching is done via
// golang.org/x/net/ipv4's ReadBatch/WriteBatch (recvmmsg/sendmmsg on
// Linux) when the platform supports it, falling back to one
// ReadFrom/WriteTo call per datagram otherwise. On unix platforms the
// socket is additionally tuned with golang.org/x/sys/unix
// (SO_REUSEADDR, SO_RCVBUF) the way internal/socketcan/device.go tunes
// its CAN_RAW socket before use.
package udpio

import (
	"errors"
	"log/slog"
	"net"
	"syscall"

	"github.com/sdrfec/gateway/internal/wire"
	"golang.org/x/net/ipv4"
)

// syscallConn is the subset of syscall.RawConn that setSockOpts needs.
type syscallConn interface {
	Control(f func(fd uintptr)) error
}

var _ syscallConn = (syscall.RawConn)(nil)

// maxBatch bounds how many datagrams a single ReadBatch/WriteBatch call
// handles, keeping the syscall's message array small and fixed-size.
const maxBatch = 64

// Conn is a batched UDP datagram conn sized for wire.DatagramSize
// packets.
type Conn struct {
	pc        *ipv4.PacketConn
	uc        *net.UDPConn
	batchable bool
}

// Listen opens a UDP socket bound to addr for receiving (receiver Rx
// loop, §5).
func Listen(addr string) (*Conn, error) {
	uc, err := net.ListenPacket("udp4", addr)
	if err != nil {
		return nil, err
	}
	return newConn(uc.(*net.UDPConn)), nil
}

// Dial opens a UDP socket connected to addr for sending (sender Tx
// task, §3).
func Dial(addr string) (*Conn, error) {
	raddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, err
	}
	uc, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return nil, err
	}
	return newConn(uc), nil
}

func newConn(uc *net.UDPConn) *Conn {
	if rawConn, err := uc.SyscallConn(); err == nil {
		if err := setSockOpts(rawConn); err != nil {
			slog.Default().Warn("udpio_sockopt_failed", "error", err)
		}
	}
	pc := ipv4.NewPacketConn(uc)
	batchable := pc.SetControlMessage(ipv4.FlagDst, false) == nil
	return &Conn{pc: pc, uc: uc, batchable: batchable}
}

// Close closes the underlying socket.
func (c *Conn) Close() error { return c.uc.Close() }

// LocalAddr returns the socket's bound local address.
func (c *Conn) LocalAddr() net.Addr { return c.uc.LocalAddr() }

// WriteDatagrams sends each wire.DatagramSize-sized slice in buf as one
// UDP packet to the conn's connected peer, using WriteBatch where
// available. buf's length must be a multiple of wire.DatagramSize.
func (c *Conn) WriteDatagrams(buf []byte) (sent int, err error) {
	if len(buf)%wire.DatagramSize != 0 {
		return 0, errors.New("udpio: buffer length not a multiple of datagram size")
	}
	n := len(buf) / wire.DatagramSize
	if !c.batchable {
		for i := 0; i < n; i++ {
			dg := buf[i*wire.DatagramSize : (i+1)*wire.DatagramSize]
			if _, err := c.uc.Write(dg); err != nil {
				return sent, err
			}
			sent++
		}
		return sent, nil
	}

	msgs := make([]ipv4.Message, 0, maxBatch)
	for i := 0; i < n; i++ {
		dg := buf[i*wire.DatagramSize : (i+1)*wire.DatagramSize]
		msgs = append(msgs, ipv4.Message{Buffers: [][]byte{dg}})
		if len(msgs) == maxBatch || i == n-1 {
			written, err := c.pc.WriteBatch(msgs, 0)
			sent += written
			if err != nil {
				return sent, err
			}
			msgs = msgs[:0]
		}
	}
	return sent, nil
}

// ReadDatagram reads a single UDP packet into buf, which must be at
// least wire.DatagramSize bytes, and returns the number of bytes read
// and the sender's address. Oversized or undersized packets are
// returned as-is; the caller (internal/wire.ParseDatagram) rejects
// malformed sizes per §7 MalformedDatagram handling.
func (c *Conn) ReadDatagram(buf []byte) (n int, src net.Addr, err error) {
	return c.uc.ReadFromUDP(buf)
}

// ReadBatch reads up to len(bufs) datagrams in one syscall where
// supported, writing datagram i into bufs[i] (each must be at least
// wire.DatagramSize bytes) and returning the byte count read into each
// of the first n slots.
func (c *Conn) ReadBatch(bufs [][]byte) (sizes []int, err error) {
	if !c.batchable {
		sizes = make([]int, 0, len(bufs))
		for _, b := range bufs {
			n, _, err := c.uc.ReadFromUDP(b)
			if err != nil {
				if len(sizes) > 0 {
					return sizes, nil
				}
				return sizes, err
			}
			sizes = append(sizes, n)
			break // fallback path reads one datagram per call, matching ReadDatagram
		}
		return sizes, nil
	}

	msgs := make([]ipv4.Message, len(bufs))
	for i, b := range bufs {
		msgs[i] = ipv4.Message{Buffers: [][]byte{b}}
	}
	n, err := c.pc.ReadBatch(msgs, 0)
	if err != nil {
		return nil, err
	}
	sizes = make([]int, n)
	for i := 0; i < n; i++ {
		sizes[i] = msgs[i].N
	}
	return sizes, nil
}

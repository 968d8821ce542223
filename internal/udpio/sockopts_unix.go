//go:build !windows

package udpio

import (
	"golang.org/x/sys/unix"
)

// rcvBufBytes sizes the kernel receive buffer generously above the
// default: at line rate a burst of 512-byte datagrams can arrive
// faster than the reassembler drains them, and a too-small SO_RCVBUF
// turns that burst into silent kernel-level drops before
// internal/receiver ever sees a datagram.
const rcvBufBytes = 4 << 20

// setSockOpts tunes SO_REUSEADDR and SO_RCVBUF on the socket backing
// uc, the way internal/socketcan/device.go tunes CAN_RAW_FD_FRAMES via
// golang.org/x/sys/unix before binding. Best-effort: a failure here
// doesn't prevent the conn from working, just from being tuned.
func setSockOpts(rawConn syscallConn) error {
	var sockErr error
	err := rawConn.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			sockErr = err
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, rcvBufBytes)
	})
	if err != nil {
		return err
	}
	return sockErr
}

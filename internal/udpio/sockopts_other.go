//go:build windows

package udpio

// setSockOpts is a no-op on platforms where golang.org/x/sys/unix
// doesn't apply; Windows sizes its UDP receive buffer differently and
// this package doesn't chase that down a second syscall path.
func setSockOpts(rawConn syscallConn) error { return nil }

package control

import (
	"errors"

	"github.com/sdrfec/gateway/internal/metrics"
)

// Sentinel errors used for wrapping so callers can classify via errors.Is.
var (
	ErrListen             = errors.New("listen")
	ErrAccept             = errors.New("accept")
	ErrHandshake          = errors.New("handshake")
	ErrCapabilityMismatch = errors.New("capability_mismatch")
	ErrConnRead           = errors.New("conn_read")
	ErrConnWrite          = errors.New("conn_write")
	ErrContext            = errors.New("context_cancelled")
)

// mapErrToMetric maps wrapped sentinel errors to the §7 error-kind
// metric labels.
func mapErrToMetric(err error) string {
	switch {
	case errors.Is(err, ErrConnRead), errors.Is(err, ErrConnWrite):
		return metrics.ErrTransientSocket
	case errors.Is(err, ErrHandshake), errors.Is(err, ErrCapabilityMismatch):
		return metrics.ErrTransientSocket
	case errors.Is(err, ErrAccept), errors.Is(err, ErrListen):
		return metrics.ErrFatalStartup
	default:
		return metrics.ErrTransientSocket
	}
}

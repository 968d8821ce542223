// Package mdns advertises a running sender or receiver daemon over
// mDNS/DNS-SD, adapted from cmd/can-server/mdns.go's use of
// github.com/grandcat/zeroconf, gated behind -mdns-enable in both
// cmd/sdrdaemon and cmd/sdrdaemontx.
package mdns

import (
	"context"
	"fmt"
	"time"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the fixed DNS-SD service type both daemons advertise;
// the role (sender/receiver) is carried in a TXT record instead of a
// distinct service type, so a single mDNS browser query finds both.
const ServiceType = "_sdrfec-ctl._tcp"

// Register advertises instance on the local domain at port, with txt
// as additional DNS-SD TXT records. It returns a cleanup function that
// unregisters the service; calling Register with enable=false is a
// no-op whose cleanup function does nothing, so call sites don't need
// a separate branch.
func Register(ctx context.Context, enable bool, instance string, port int, txt []string) (func(), error) {
	if !enable {
		return func() {}, nil
	}
	svc, err := zeroconf.Register(instance, ServiceType, "local.", port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		svc.Shutdown()
	}()
	return func() {
		close(done)
		svc.Shutdown()
		time.Sleep(50 * time.Millisecond)
	}, nil
}

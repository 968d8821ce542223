package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sdrfec/gateway/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"frames_sent", snap.FramesSent,
					"datagrams_sent", snap.DatagramsSent,
					"datagrams_recv", snap.DatagramsRecv,
					"frames_drained", snap.FramesDrained,
					"decode_failures", snap.DecodeFailures,
					"residual_overruns", snap.ResidualOverruns,
					"metadata_changes", snap.MetadataChanges,
					"errors", snap.Errors,
					"control_clients", snap.ControlClients,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}

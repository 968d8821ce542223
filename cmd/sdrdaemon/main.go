package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sdrfec/gateway/internal/control"
	"github.com/sdrfec/gateway/internal/device"
	"github.com/sdrfec/gateway/internal/mdns"
	"github.com/sdrfec/gateway/internal/metrics"
	"github.com/sdrfec/gateway/internal/sender"
	"github.com/sdrfec/gateway/internal/txring"
	"github.com/sdrfec/gateway/internal/udpio"
	"github.com/sdrfec/gateway/internal/wire"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("sdrdaemon %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)

	var src device.SampleSource
	switch cfg.devType {
	case "test", "":
		src = device.NewTestSource()
	default:
		l.Error("unsupported_device_type", "type", cfg.devType)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := ctx.Done()

	ring := txring.New(2, 127)
	senderCfg := sender.NewConfig()
	senderCfg.R.Store(int32(cfg.recoveryBlocks))
	senderCfg.TxDelay.Store(int64(cfg.txDelay))

	framer := sender.NewFramer(ring, senderCfg, stop)
	framer.SetTuning(src.Tuning())

	dataAddr := net.JoinHostPort(cfg.dataAddr, strconv.Itoa(cfg.dataPort))
	conn, err := udpio.Dial(dataAddr)
	if err != nil {
		l.Error("udp_dial_error", "error", err, "addr", dataAddr)
		return
	}
	defer conn.Close()

	txTask := sender.NewTxTask(ring, conn, l)
	go func() {
		if err := txTask.Run(ctx); err != nil {
			l.Warn("tx_task_stopped", "error", err)
		}
	}()

	sampleCh := make(chan []wire.Sample, 4)
	go func() {
		if err := src.Run(ctx, sampleCh); err != nil && ctx.Err() == nil {
			l.Error("device_source_error", "error", err)
			cancel()
		}
	}()
	go func() {
		for {
			select {
			case block, ok := <-sampleCh:
				if !ok {
					return
				}
				framer.Write(block)
				metrics.IncFramesSent()
			case <-ctx.Done():
				return
			}
		}
	}()

	handler := control.BuildHandler(senderCfg, framer, src)
	ctlSrv := control.NewServer(
		control.WithListenAddr(cfg.ctlAddr),
		control.WithHandler(handler),
		control.WithLogger(l),
	)
	go func() {
		if err := ctlSrv.Serve(ctx); err != nil {
			l.Error("control_server_error", "error", err)
			cancel()
		}
	}()

	go func() {
		if !cfg.mdnsEnable {
			return
		}
		select {
		case <-ctlSrv.Ready():
		case <-ctx.Done():
			return
		}
		_, port, _ := net.SplitHostPort(ctlSrv.Addr())
		portNum, _ := strconv.Atoi(port)
		instance := cfg.mdnsName
		if instance == "" {
			host, _ := os.Hostname()
			instance = fmt.Sprintf("sdrdaemon-%s", host)
		}
		cleanup, err := mdns.Register(ctx, true, instance, portNum, []string{"role=sender", "version=" + version})
		if err != nil {
			l.Warn("mdns_start_failed", "error", err)
			return
		}
		l.Info("mdns_started", "service", mdns.ServiceType, "name", instance, "port", portNum)
		go func() { <-ctx.Done(); cleanup() }()
	}()

	metrics.SetReadinessFunc(func() bool {
		select {
		case <-ctlSrv.Ready():
		default:
			return false
		}
		return ctx.Err() == nil
	})
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		httpSrv := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = httpSrv.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	_ = ctlSrv.Shutdown(shutdownCtx)
	shutdownCancel()
}

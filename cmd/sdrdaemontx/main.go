package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/sdrfec/gateway/internal/control"
	"github.com/sdrfec/gateway/internal/filesink"
	"github.com/sdrfec/gateway/internal/mdns"
	"github.com/sdrfec/gateway/internal/metrics"
	"github.com/sdrfec/gateway/internal/receiver"
	"github.com/sdrfec/gateway/internal/residual"
	"github.com/sdrfec/gateway/internal/statusws"
	"github.com/sdrfec/gateway/internal/stats"
	"github.com/sdrfec/gateway/internal/udpio"
	"github.com/sdrfec/gateway/internal/wire"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("sdrdaemontx %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	l.Info("build_info", "version", version, "commit", commit, "date", date)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	frameStats := &stats.FrameStats{}
	buf := residual.New(cfg.bufferedPayloads, l)

	ctlHub := control.New()

	var wsHub *statusws.Hub
	if cfg.statusWSAddr != "" {
		wsHub = statusws.NewHub(l)
		go wsHub.Run(ctx)
		mux := http.NewServeMux()
		mux.Handle("/ws", wsHub.Handler())
		wsSrv := &http.Server{Addr: cfg.statusWSAddr, Handler: mux}
		go func() {
			l.Info("statusws_listen", "addr", cfg.statusWSAddr)
			if err := wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				l.Error("statusws_error", "error", err)
			}
		}()
		go func() { <-ctx.Done(); _ = wsSrv.Shutdown(context.Background()) }()
	}

	var sink *filesink.FileSink
	var sinkMu sync.Mutex

	onDrain := func(payload []byte, meta wire.MetaData, metaRetrieved bool) {
		buf.Append(payload)
		metrics.IncFramesDrained()
		sinkMu.Lock()
		s := sink
		sinkMu.Unlock()
		if s != nil {
			samples := make([]wire.Sample, len(payload)/wire.SampleSize)
			for i := range samples {
				samples[i] = wire.GetSample(payload[i*wire.SampleSize:])
			}
			if err := s.Accept(meta, samples); err != nil {
				l.Warn("filesink_accept_error", "error", err)
			}
		}
	}
	onMetaChange := func(meta wire.MetaData) {
		metrics.IncMetadataChange()
		ctlHub.Broadcast(control.MetaChangeNotice(meta))
		if wsHub != nil {
			wsHub.BroadcastMetaChange(meta)
		}
	}

	var reasm receiver.Reassembler
	if cfg.variant == "b" {
		reasm = receiver.NewVariantB(cfg.slots, frameStats, l, onDrain, onMetaChange)
	} else {
		reasm = receiver.NewVariantA(frameStats, l, onDrain, onMetaChange)
	}

	if cfg.devType == "file" && cfg.devConfig != "" {
		s, err := filesink.New(cfg.devConfig, wire.MetaData{}, 64, l)
		if err != nil {
			l.Error("filesink_open_error", "error", err)
			return
		}
		sinkMu.Lock()
		sink = s
		sinkMu.Unlock()
		defer s.Close()
	}

	listenAddr := net.JoinHostPort(cfg.listenAddr, strconv.Itoa(cfg.listenPort))
	conn, err := udpio.Listen(listenAddr)
	if err != nil {
		l.Error("udp_listen_error", "error", err, "addr", listenAddr)
		return
	}
	defer conn.Close()

	read := func(dst []byte) (int, error) {
		n, _, err := conn.ReadDatagram(dst)
		return n, err
	}
	go func() {
		if err := receiver.RunReadLoop(ctx, read, reasm, l); err != nil && ctx.Err() == nil {
			l.Warn("read_loop_stopped", "error", err)
		}
	}()

	handler := func(req control.Request) control.Reply {
		blocks, recovery := frameStats.Current()
		return control.Reply{OK: true, Params: map[string]string{
			"cur_blocks":   strconv.Itoa(blocks),
			"cur_recovery": strconv.Itoa(recovery),
			"pending":      strconv.Itoa(buf.Pending()),
		}}
	}
	ctlSrv := control.NewServer(
		control.WithListenAddr(cfg.ctlAddr),
		control.WithHub(ctlHub),
		control.WithHandler(handler),
		control.WithLogger(l),
		control.WithMaxClients(cfg.maxClients),
		control.WithHandshakeTimeout(cfg.handshakeTO),
		control.WithReadDeadline(cfg.clientReadTO),
	)
	go func() {
		if err := ctlSrv.Serve(ctx); err != nil {
			l.Error("control_server_error", "error", err)
			cancel()
		}
	}()

	statsTicker := time.NewTicker(time.Second)
	defer statsTicker.Stop()
	go func() {
		for {
			select {
			case <-statsTicker.C:
				metrics.SetAvgBlocks(frameStats.AvgBlocks.Mean())
				metrics.SetAvgRecovery(frameStats.AvgRecovery.Mean())
				snap := metrics.Snap()
				ctlHub.Broadcast(control.StatsNotice(snap))
				if wsHub != nil {
					wsHub.BroadcastStats(snap)
				}
			case <-ctx.Done():
				return
			}
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
			instance = fmt.Sprintf("sdrdaemontx-%s", host)
		}
		cleanup, err := mdns.Register(ctx, true, instance, portNum, []string{"role=receiver", "version=" + version})
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
	wg.Wait()
}

package main

import (
	"errors"
	"flag"
	"fmt"
	"time"
)

// appConfig mirrors the teacher's flag-driven appConfig, trimmed and
// renamed to the receiver daemon's §9 CLI surface: -t/-c/-d select the
// output device/sink, -b sizes the buffered residual queue, -I/-D bind
// the incoming UDP socket, -C the command channel.
type appConfig struct {
	devType   string
	devConfig string
	devIndex  int

	bufferedPayloads int
	variant          string
	slots            int

	listenAddr string
	listenPort int
	ctlAddr    string

	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration

	maxClients  int
	handshakeTO time.Duration
	clientReadTO time.Duration

	mdnsEnable bool
	mdnsName   string

	statusWSAddr string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	devType := flag.String("t", "file", "Output sink type: file is the only built-in sink")
	devConfig := flag.String("c", "capture.sdriq", "Output file path (when -t=file)")
	devIndex := flag.Int("d", 0, "Output device index, when a sink type exposes more than one")
	bufferedPayloads := flag.Int("b", 512, "Residual buffer capacity in payloads")
	variant := flag.String("variant", "a", "Reassembler variant: a (single-slot) or b (sliding window)")
	slots := flag.Int("slots", 4, "Variant b slot count (ignored for variant a)")
	listenAddr := flag.String("I", "0.0.0.0", "Bind address for incoming I/Q UDP datagrams")
	listenPort := flag.Int("D", 9090, "Bind UDP port for incoming I/Q datagrams")
	ctlAddr := flag.String("C", ":9091", "Command channel TCP listen address")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g. :9100); empty disables")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters")
	maxClients := flag.Int("max-clients", 0, "Maximum simultaneous command-channel clients (0 = unlimited)")
	handshakeTO := flag.Duration("handshake-timeout", 3*time.Second, "Client handshake timeout")
	clientReadTO := flag.Duration("client-read-timeout", 60*time.Second, "Per-connection read deadline")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS/DNS-SD advertisement")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default sdrdaemontx-<hostname>)")
	statusWSAddr := flag.String("status-ws-addr", "", "WebSocket status push listen address (e.g. :9092); empty disables")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	cfg.devType = *devType
	cfg.devConfig = *devConfig
	cfg.devIndex = *devIndex
	cfg.bufferedPayloads = *bufferedPayloads
	cfg.variant = *variant
	cfg.slots = *slots
	cfg.listenAddr = *listenAddr
	cfg.listenPort = *listenPort
	cfg.ctlAddr = *ctlAddr
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.maxClients = *maxClients
	cfg.handshakeTO = *handshakeTO
	cfg.clientReadTO = *clientReadTO
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName
	cfg.statusWSAddr = *statusWSAddr

	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.variant {
	case "a", "b":
	default:
		return fmt.Errorf("invalid variant: %s", c.variant)
	}
	if c.bufferedPayloads <= 0 {
		return fmt.Errorf("-b must be > 0 (got %d)", c.bufferedPayloads)
	}
	if c.slots <= 0 {
		return fmt.Errorf("-slots must be > 0 (got %d)", c.slots)
	}
	if c.listenPort <= 0 || c.listenPort > 65535 {
		return fmt.Errorf("-D must be a valid port (got %d)", c.listenPort)
	}
	if c.maxClients < 0 {
		return fmt.Errorf("-max-clients must be >= 0")
	}
	if c.handshakeTO <= 0 {
		return fmt.Errorf("-handshake-timeout must be > 0")
	}
	if c.clientReadTO <= 0 {
		return fmt.Errorf("-client-read-timeout must be > 0")
	}
	return nil
}

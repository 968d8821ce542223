package main

import (
	"errors"
	"flag"
	"fmt"
	"time"
)

// appConfig mirrors the teacher's flag/env-driven appConfig, trimmed
// and renamed to the sender daemon's §9 CLI surface (-t/-c/-d/-b/-I/
// -D/-C).
type appConfig struct {
	devType   string
	devConfig string
	devIndex  int

	recoveryBlocks int
	txDelay        time.Duration

	dataAddr string
	dataPort int
	ctlAddr  string

	logFormat   string
	logLevel    string
	metricsAddr string

	mdnsEnable bool
	mdnsName   string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	devType := flag.String("t", "test", "Device type (test is the only built-in source)")
	devConfig := flag.String("c", "", "Device-specific configuration file path")
	devIndex := flag.Int("d", 0, "Device index, when a device type exposes more than one")
	blocks := flag.Int("b", 0, "Number of FEC recovery blocks per frame, 0..127")
	txDelay := flag.Duration("txdelay", 0, "Advisory delay between datagram sends")
	dataAddr := flag.String("I", "127.0.0.1", "Destination address for I/Q UDP datagrams")
	dataPort := flag.Int("D", 9090, "Destination UDP port for I/Q datagrams")
	ctlAddr := flag.String("C", ":9091", "Command channel TCP listen address")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g. :9100); empty disables")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS/DNS-SD advertisement")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default sdrdaemon-<hostname>)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	cfg.devType = *devType
	cfg.devConfig = *devConfig
	cfg.devIndex = *devIndex
	cfg.recoveryBlocks = *blocks
	cfg.txDelay = *txDelay
	cfg.dataAddr = *dataAddr
	cfg.dataPort = *dataPort
	cfg.ctlAddr = *ctlAddr
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName

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
	if c.recoveryBlocks < 0 || c.recoveryBlocks > 127 {
		return fmt.Errorf("-b must be 0..127 (got %d)", c.recoveryBlocks)
	}
	if c.dataPort <= 0 || c.dataPort > 65535 {
		return fmt.Errorf("-D must be a valid port (got %d)", c.dataPort)
	}
	if c.devIndex < 0 {
		return fmt.Errorf("-d must be >= 0")
	}
	return nil
}

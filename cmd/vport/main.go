package main

import (
	"flag"
	"fmt"
	"net/netip"
	"os"

	log "github.com/sirupsen/logrus"

	"udp-vswitch/transport"
	"udp-vswitch/vport"
)

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

var (
	switchSpec = flag.String("switch", getEnvOrDefault("VPORT_SWITCH", "127.0.0.1:9999"), "Switch address as ip:port [env: VPORT_SWITCH]")
	ifname     = flag.String("ifname", getEnvOrDefault("VPORT_IFNAME", ""), "Requested TAP device name (empty for kernel default) [env: VPORT_IFNAME]")
	logLevel   = flag.String("log-level", getEnvOrDefault("VPORT_LOG_LEVEL", "info"), "Log level: trace, debug, info, warn, error [env: VPORT_LOG_LEVEL]")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "VPort: bridges a local TAP interface to a virtual switch over UDP.\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options] [switch_ip switch_port]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -switch 192.168.1.10:9999 -ifname tap0\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s 192.168.1.10 9999\n", os.Args[0])
	}

	flag.Parse()

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Invalid log level %q: %v", *logLevel, err)
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	spec := *switchSpec
	if flag.NArg() == 2 {
		spec = flag.Arg(0) + ":" + flag.Arg(1)
	} else if flag.NArg() != 0 {
		flag.Usage()
		os.Exit(1)
	}

	switchAddr, err := netip.ParseAddrPort(spec)
	if err != nil {
		log.Fatalf("Invalid switch address %q: %v", spec, err)
	}

	tap, err := vport.OpenTAP(*ifname)
	if err != nil {
		log.Fatalf("Failed to create TAP device: %v", err)
	}

	if err := vport.SetLinkUp(tap.Name()); err != nil {
		log.Fatalf("Failed to bring TAP device up: %v", err)
	}

	conn, err := transport.Open()
	if err != nil {
		log.Fatalf("Failed to open transport: %v", err)
	}

	log.WithFields(log.Fields{
		"ifname": tap.Name(),
		"switch": switchAddr.String(),
		"local":  conn.LocalAddrPort().String(),
	}).Info("vport started")

	bridge := vport.NewBridge(tap, conn, switchAddr)
	if err := bridge.Run(); err != nil {
		log.Fatalf("Bridge failed: %v", err)
	}
}

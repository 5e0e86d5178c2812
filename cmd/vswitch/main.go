package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"udp-vswitch/daemon"
	"udp-vswitch/vswitch"
)

const appVersion = "1.0.0"

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault returns environment variable as int or default if not set/invalid
func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBoolOrDefault returns environment variable as bool or default if not set/invalid
func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault returns environment variable as duration or default if not set/invalid
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

var (
	ports        = flag.String("ports", getEnvOrDefault("VSWITCH_PORTS", "9999"), "Comma-separated list of UDP ports (each port = isolated segment) [env: VSWITCH_PORTS]")
	macTableSize = flag.Int("mac-table-size", getEnvIntOrDefault("VSWITCH_MAC_TABLE_SIZE", vswitch.DefaultMACTableSize), "Maximum MAC entries per segment [env: VSWITCH_MAC_TABLE_SIZE]")
	macTimeout   = flag.Duration("mac-timeout", getEnvDurationOrDefault("VSWITCH_MAC_TIMEOUT", vswitch.DefaultMACTimeout), "Idle timeout for learned MAC entries [env: VSWITCH_MAC_TIMEOUT]")
	portTimeout  = flag.Duration("port-timeout", getEnvDurationOrDefault("VSWITCH_PORT_TIMEOUT", vswitch.DefaultPortTimeout), "Idle timeout for registered ports [env: VSWITCH_PORT_TIMEOUT]")
	logLevel     = flag.String("log-level", getEnvOrDefault("VSWITCH_LOG_LEVEL", "info"), "Log level: trace, debug, info, warn, error [env: VSWITCH_LOG_LEVEL]")
	logFile      = flag.String("log-file", getEnvOrDefault("VSWITCH_LOG_FILE", ""), "Log file (empty for stdout) [env: VSWITCH_LOG_FILE]")
	daemonize    = flag.Bool("daemon", getEnvBoolOrDefault("VSWITCH_DAEMON", false), "Run as daemon in background [env: VSWITCH_DAEMON]")
	pidFile      = flag.String("pid-file", getEnvOrDefault("VSWITCH_PID_FILE", "/tmp/vswitch.pid"), "PID file for daemon mode [env: VSWITCH_PID_FILE]")
	stop         = flag.Bool("stop", false, "Stop running daemon")
	status       = flag.Bool("status", false, "Show daemon status")
	version      = flag.Bool("version", false, "Show version information")
)

// setupLogging configures logrus from the CLI settings.
func setupLogging(level, logFile string) error {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(parsed)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		log.SetOutput(f)
	}

	return nil
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Virtual Ethernet switch over UDP v%s\n\n", appVersion)
		fmt.Fprintf(os.Stderr, "Relays Ethernet frames between VPort endpoints with MAC learning.\n")
		fmt.Fprintf(os.Stderr, "Each listed port creates a separate isolated segment.\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -ports 9999\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -daemon -ports 9999,9998\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -stop\n", os.Args[0])
	}

	flag.Parse()

	if *version {
		fmt.Printf("Virtual Ethernet switch over UDP v%s\n", appVersion)
		os.Exit(0)
	}

	dm := daemon.NewManager(*pidFile, *logFile)

	if *stop {
		if err := dm.Stop(); err != nil {
			log.Fatalf("Failed to stop daemon: %v", err)
		}
		fmt.Printf("Daemon stopped\n")
		os.Exit(0)
	}

	if *status {
		if dm.IsRunning() {
			fmt.Printf("Daemon is running (PID: %d)\n", dm.GetPID())
		} else {
			fmt.Printf("Daemon is not running\n")
		}
		os.Exit(0)
	}

	portList, err := parsePorts(*ports)
	if err != nil {
		log.Fatalf("Invalid ports specification: %v", err)
	}

	if len(portList) == 0 {
		log.Fatalf("No ports specified")
	}

	if *daemonize {
		// The child must not try to daemonize again: strip the flag from
		// the re-exec args and override the env fallback.
		os.Setenv("VSWITCH_DAEMON", "false")
		if err := dm.Daemonize(stripDaemonFlag(os.Args)); err != nil {
			log.Fatalf("Failed to start daemon: %v", err)
		}
		fmt.Printf("Daemon started\n")
		os.Exit(0)
	}

	if err := setupLogging(*logLevel, *logFile); err != nil {
		log.Fatalf("Failed to setup logging: %v", err)
	}
	log.Infof("Starting virtual switch v%s", appVersion)
	log.Infof("Configured segments on ports: %v", portList)

	manager := vswitch.NewManager(vswitch.Config{
		MACTableSize: *macTableSize,
		MACTimeout:   *macTimeout,
		PortTimeout:  *portTimeout,
	})
	for _, port := range portList {
		if err := manager.AddSegment(port); err != nil {
			log.Fatalf("Failed to create segment on port %d: %v", port, err)
		}
	}

	if err := manager.StartAll(); err != nil {
		log.Fatalf("Failed to start segments: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go logStatsPeriodically(manager, 60*time.Second)

	log.Infof("Virtual switch started with %d isolated segments", len(portList))

	sig := <-sigChan
	log.Infof("Received signal %s, shutting down", sig)

	manager.StopAll()

	// Only the daemonized child owns the PID file recording its PID.
	if dm.GetPID() == os.Getpid() {
		dm.Cleanup()
	}

	log.Infof("Virtual switch stopped")
}

// parsePorts parses a comma-separated list of port numbers
// stripDaemonFlag removes every spelling of the daemon flag from the
// argument list, including the -daemon=value forms.
func stripDaemonFlag(args []string) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == "-daemon" || arg == "--daemon" ||
			strings.HasPrefix(arg, "-daemon=") || strings.HasPrefix(arg, "--daemon=") {
			continue
		}
		out = append(out, arg)
	}
	return out
}

func parsePorts(portStr string) ([]int, error) {
	if portStr == "" {
		return nil, fmt.Errorf("empty port string")
	}

	portStrs := strings.Split(portStr, ",")
	ports := make([]int, 0, len(portStrs))

	for _, str := range portStrs {
		str = strings.TrimSpace(str)
		if str == "" {
			continue
		}

		port, err := strconv.Atoi(str)
		if err != nil {
			return nil, fmt.Errorf("invalid port '%s': %w", str, err)
		}

		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("port %d out of range (1-65535)", port)
		}

		ports = append(ports, port)
	}

	return ports, nil
}

// logStatsPeriodically logs aggregated switch statistics periodically
func logStatsPeriodically(manager *vswitch.Manager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		stats := manager.GetStats()
		log.WithFields(log.Fields{
			"segments":     stats["segment_count"],
			"ports":        stats["total_ports"],
			"mac_entries":  stats["total_mac_entries"],
			"total_frames": stats["total_frames"],
			"unicast":      stats["unicast_frames"],
			"broadcast":    stats["broadcast_frames"],
			"flooded":      stats["flooded_frames"],
			"dropped":      stats["dropped_frames"],
		}).Info("stats")
	}
}

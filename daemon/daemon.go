// Package daemon handles backgrounding the switch process: PID file
// management, re-execing into the background, and stopping or querying
// a running instance.
package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
)

// Manager handles daemonization and PID file management.
type Manager struct {
	pidFile string
	logFile string
}

// NewManager creates a daemon manager.
func NewManager(pidFile, logFile string) *Manager {
	return &Manager{
		pidFile: pidFile,
		logFile: logFile,
	}
}

// Daemonize re-execs the process in the background and records its PID.
func (m *Manager) Daemonize(args []string) error {
	if m.IsRunning() {
		return fmt.Errorf("daemon already running (PID file: %s)", m.pidFile)
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = os.Environ()

	if m.logFile != "" {
		logDir := filepath.Dir(m.logFile)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		logFile, err := os.OpenFile(m.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}

		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	if err := m.writePIDFile(cmd.Process.Pid); err != nil {
		// The child is useless if its PID cannot be recorded.
		_ = cmd.Process.Kill()
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	log.WithField("pid", cmd.Process.Pid).Info("daemon started")
	return nil
}

// Stop sends SIGTERM to the running daemon and removes its PID file.
func (m *Manager) Stop() error {
	pid, err := m.readPIDFile()
	if err != nil {
		return fmt.Errorf("failed to read PID file: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM to process %d: %w", pid, err)
	}

	if err := os.Remove(m.pidFile); err != nil {
		log.WithError(err).Warn("failed to remove PID file")
	}

	log.WithField("pid", pid).Info("daemon stopped")
	return nil
}

// IsRunning checks if the daemon is currently running.
func (m *Manager) IsRunning() bool {
	pid, err := m.readPIDFile()
	if err != nil {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 tests process existence without disturbing it.
	return process.Signal(syscall.Signal(0)) == nil
}

// GetPID returns the PID of the running daemon, or -1 if not running.
func (m *Manager) GetPID() int {
	pid, err := m.readPIDFile()
	if err != nil {
		return -1
	}
	return pid
}

func (m *Manager) writePIDFile(pid int) error {
	pidDir := filepath.Dir(m.pidFile)
	if err := os.MkdirAll(pidDir, 0755); err != nil {
		return err
	}

	return os.WriteFile(m.pidFile, []byte(strconv.Itoa(pid)), 0644)
}

func (m *Manager) readPIDFile() (int, error) {
	data, err := os.ReadFile(m.pidFile)
	if err != nil {
		return 0, err
	}

	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// Cleanup removes the PID file (called on daemon shutdown).
func (m *Manager) Cleanup() {
	if err := os.Remove(m.pidFile); err != nil {
		log.WithError(err).Warn("failed to remove PID file")
	}
}

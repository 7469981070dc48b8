package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Status is the state of the daemon process.
type Status int

const (
	// StatusRunning indicates the daemon process is alive.
	StatusRunning Status = iota
	// StatusNotRunning indicates no daemon process was found.
	StatusNotRunning
	// StatusStale indicates a PID file points at a dead process.
	StatusStale
)

// String returns a human-readable status description.
func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusNotRunning:
		return "not running"
	case StatusStale:
		return "stale"
	default:
		return "unknown"
	}
}

// StatusInfo describes the daemon process.
type StatusInfo struct {
	Status  Status `json:"-"`
	State   string `json:"status"`
	PID     int    `json:"pid,omitempty"`
	PIDFile string `json:"pid_file"`
	Message string `json:"message"`
}

// PIDFile returns the PID file path inside a data dir.
func PIDFile(dataDir string) string {
	return filepath.Join(dataDir, "daemon.pid")
}

// GetStatusInfo inspects the PID file.
func GetStatusInfo(pidFile string) StatusInfo {
	info := StatusInfo{Status: StatusNotRunning, PIDFile: pidFile}
	pid, err := readPID(pidFile)
	switch {
	case err != nil && os.IsNotExist(err):
		info.Message = "Daemon not running"
	case err != nil:
		info.Message = fmt.Sprintf("PID file invalid: %v", err)
	case !isProcessAlive(pid):
		info.Status = StatusStale
		info.PID = pid
		info.Message = fmt.Sprintf("Process %d is not running (stale PID file)", pid)
	default:
		info.Status = StatusRunning
		info.PID = pid
		info.Message = fmt.Sprintf("Daemon running with PID %d", pid)
	}
	info.State = info.Status.String()
	return info
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create pid dir: %w", err)
	}
	if info := GetStatusInfo(path); info.Status == StatusRunning && info.PID != os.Getpid() {
		return fmt.Errorf("daemon already running with PID %d", info.PID)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0600)
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %w", err)
	}
	return pid, nil
}

// isProcessAlive checks if a process is alive using signal 0.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

package monitor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	ps "github.com/mitchellh/go-ps"

	"github.com/oshokin/alarm-monitor/internal/config"
)

// ErrAlreadyRunning is returned when another watcher owns the lock file.
var ErrAlreadyRunning = errors.New("another alarm-monitor watch is already running")

// instanceLock is a pid file guarding against two watchers on one token file.
type instanceLock struct {
	path string
}

// acquireInstanceLock claims path for the current process. A lock left by a
// process that no longer runs the same executable is taken over.
func acquireInstanceLock(path string) (*instanceLock, error) {
	path = filepath.Clean(path)

	if pid, ok := readPID(path); ok && pid != os.Getpid() {
		running, err := sameExecutableRunning(pid)
		if err != nil {
			return nil, err
		}

		if running {
			return nil, fmt.Errorf("%w (pid %d, lock %s)", ErrAlreadyRunning, pid, path)
		}
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), config.DefaultFilePermissions); err != nil {
		return nil, fmt.Errorf("write lock file: %w", err)
	}

	return &instanceLock{path: path}, nil
}

// Release removes the lock file if it still belongs to this process.
func (l *instanceLock) Release() {
	if l == nil {
		return
	}

	if pid, ok := readPID(l.path); ok && pid == os.Getpid() {
		_ = os.Remove(l.path)
	}
}

// readPID parses the pid stored at path.
func readPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}

	return pid, true
}

// sameExecutableRunning reports whether pid is alive and runs our executable.
func sameExecutableRunning(pid int) (bool, error) {
	proc, err := ps.FindProcess(pid)
	if err != nil {
		return false, fmt.Errorf("find process %d: %w", pid, err)
	}

	if proc == nil {
		return false, nil
	}

	self, err := ps.FindProcess(os.Getpid())
	if err != nil || self == nil {
		return true, nil
	}

	return proc.Executable() == self.Executable(), nil
}

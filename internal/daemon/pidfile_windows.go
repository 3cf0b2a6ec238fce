//go:build windows

package daemon

import (
	"fmt"
	"os"
	"syscall"
)

// IsRunning reports the recorded PID and whether that process is alive.
func (p *PIDFile) IsRunning() (int, bool) {
	pid, err := p.Read()
	if err != nil || pid <= 0 {
		return pid, false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return pid, false
	}
	// FindProcess opens a handle; a zero signal checks it is still live.
	return pid, proc.Signal(syscall.Signal(0)) == nil
}

// Signal sends sig to the recorded process. Only a kill is reliable on
// Windows; any other signal terminates the process too.
func (p *PIDFile) Signal(sig syscall.Signal) error {
	pid, err := p.Read()
	if err != nil {
		return fmt.Errorf("read PID file: %w", err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("pid %d: %w", pid, ErrNotRunning)
	}
	if sig == syscall.SIGKILL || sig == syscall.SIGTERM {
		return proc.Kill()
	}
	return proc.Signal(sig)
}

// Package daemon tracks a background API server through a state file.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNotRunning is returned when no live server is recorded.
var ErrNotRunning = errors.New("server is not running")

// ServerInfo is what a running server records about itself.
type ServerInfo struct {
	PID       int       `yaml:"pid"`
	Port      int       `yaml:"port"`
	StartedAt time.Time `yaml:"started_at"`
}

// PIDFile manages the server state file.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Write records the current process as the server listening on port.
func (p *PIDFile) Write(port int) error {
	return p.WriteInfo(ServerInfo{PID: os.Getpid(), Port: port, StartedAt: time.Now().UTC()})
}

// WriteInfo records info, creating the parent directory if needed.
func (p *PIDFile) WriteInfo(info ServerInfo) error {
	if info.PID <= 0 {
		return fmt.Errorf("invalid pid %d", info.PID)
	}
	data, err := yaml.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode server info: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	return os.WriteFile(p.Path, data, 0o644)
}

// Read loads the recorded server info.
func (p *PIDFile) Read() (*ServerInfo, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, err
	}
	var info ServerInfo
	if err := yaml.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("invalid PID file content: %w", err)
	}
	if info.PID <= 0 {
		return nil, fmt.Errorf("invalid PID file content: missing pid")
	}
	return &info, nil
}

// Remove deletes the state file. A missing file is not an error.
func (p *PIDFile) Remove() error {
	if err := os.Remove(p.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Running returns the recorded server when its process is alive. A stale
// file left by a dead process is removed.
func (p *PIDFile) Running() (*ServerInfo, bool) {
	info, err := p.Read()
	if err != nil {
		return nil, false
	}
	if !processAlive(info.PID) {
		_ = p.Remove()
		return info, false
	}
	return info, true
}

// Stop asks the recorded server to shut down and waits up to timeout for it
// to exit before killing it.
func (p *PIDFile) Stop(timeout time.Duration) (*ServerInfo, error) {
	info, running := p.Running()
	if !running {
		return info, ErrNotRunning
	}
	if err := terminate(info.PID); err != nil {
		return info, fmt.Errorf("signal process %d: %w", info.PID, err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !processAlive(info.PID) {
			_ = p.Remove()
			return info, nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := kill(info.PID); err != nil && processAlive(info.PID) {
		return info, fmt.Errorf("kill process %d: %w", info.PID, err)
	}
	_ = p.Remove()
	return info, nil
}

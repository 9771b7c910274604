// Package procmon answers "is this PID still our encoder" without ever
// raising: a vanished, inaccessible or recycled process resolves to false.
package procmon

import (
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// Monitor checks process liveness against an expected executable name.
// The name check guards against a recycled PID being mistaken for the
// tracked encoder.
type Monitor struct {
	expectedName string
}

// New creates a monitor expecting processes of the given executable name
// (e.g. "ffmpeg").
func New(expectedName string) *Monitor {
	return &Monitor{expectedName: strings.ToLower(expectedName)}
}

// IsAlive reports whether pid refers to a live process whose executable
// name contains the expected encoder name.
func (m *Monitor) IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExists(int32(pid))
	if err != nil || !exists {
		return false
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	name, err := p.Name()
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(name), m.expectedName)
}

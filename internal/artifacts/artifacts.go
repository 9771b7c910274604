// Package artifacts manages the per-job transient files: a plain-text status
// marker, a PID record and an append-only encoder log. The marker and PID
// files are the narrow signaling channel between a run and the supervisor;
// they survive supervisor restarts, which is what makes reattachment work.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"restreamd/internal/models"
)

// Marker values written to the status file during a run.
const (
	MarkerStarting  = "starting"
	MarkerStreaming = "streaming"
	MarkerCompleted = "completed"
	MarkerStopped   = "stopped"
	errorPrefix     = "error: "
)

// Files addresses the transient files of one stream job.
type Files struct {
	dir string
	id  int
}

// For returns the artifact set for a job in the given data directory.
func For(dir string, id int) Files {
	return Files{dir: dir, id: id}
}

func (f Files) StatusPath() string { return filepath.Join(f.dir, fmt.Sprintf("stream_%d.status", f.id)) }
func (f Files) PIDPath() string    { return filepath.Join(f.dir, fmt.Sprintf("stream_%d.pid", f.id)) }
func (f Files) LogPath() string    { return filepath.Join(f.dir, fmt.Sprintf("stream_%d.log", f.id)) }

// WriteMarker replaces the status marker.
func (f Files) WriteMarker(marker string) error {
	return os.WriteFile(f.StatusPath(), []byte(marker), 0o644)
}

// WriteErrorMarker records an error condition with its detail.
func (f Files) WriteErrorMarker(detail string) error {
	return f.WriteMarker(errorPrefix + detail)
}

// ReadMarker returns the current marker, if one exists.
func (f Files) ReadMarker() (string, bool) {
	data, err := os.ReadFile(f.StatusPath())
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// WritePID records the encoder process id.
func (f Files) WritePID(pid int) error {
	return os.WriteFile(f.PIDPath(), []byte(strconv.Itoa(pid)), 0o644)
}

// ReadPID returns the recorded process id, if present and parseable.
func (f Files) ReadPID() (int, bool) {
	data, err := os.ReadFile(f.PIDPath())
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return pid, true
}

// AppendLog appends one line to the encoder log, creating it if needed.
func (f Files) AppendLog(line string) error {
	file, err := os.OpenFile(f.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = file.WriteString(line + "\n")
	return err
}

// TailLog returns up to maxLines of the end of the encoder log.
func (f Files) TailLog(maxLines int) []string {
	data, err := os.ReadFile(f.LogPath())
	if err != nil {
		return nil
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return lines
}

// Cleanup removes the status marker and PID record. Missing files are not
// an error; cleanup runs after every terminal transition and must be
// idempotent. The log is retained until the job leaves the catalog.
func (f Files) Cleanup() {
	os.Remove(f.StatusPath())
	os.Remove(f.PIDPath())
}

// RemoveLog deletes the retained encoder log. Called on catalog deletion.
func (f Files) RemoveLog() {
	os.Remove(f.LogPath())
}

// ClassifyMarker maps a stale marker left by a dead process to the job's
// terminal status. No marker, or a non-terminal marker, means the process
// vanished without writing anything classifiable.
func ClassifyMarker(marker string, present bool) models.Status {
	if !present {
		return models.Disconnected()
	}
	switch {
	case marker == MarkerCompleted:
		return models.Finished()
	case marker == MarkerStopped:
		return models.Stopped()
	case strings.HasPrefix(marker, "error:"):
		return models.Errored(strings.TrimSpace(strings.TrimPrefix(marker, "error:")))
	}
	return models.Disconnected()
}

// Package runner launches and supervises one encoder child process per
// stream job. The child runs in its own process group so it outlives
// supervisor restarts; the runner talks back to the rest of the system only
// through the durable store and the per-job artifact files.
package runner

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"restreamd/internal/artifacts"
	"restreamd/internal/logging"
	"restreamd/internal/models"
	"restreamd/internal/store"
)

// fatalPhrases in the encoder's output mean the ingest rejected us; they
// downgrade the status marker immediately instead of waiting for the
// process to die.
var fatalPhrases = []string{
	"Connection refused",
	"Server returned 4",
}

// Runner spawns encoder processes for stream jobs.
type Runner struct {
	store      store.Store
	log        *logging.Logger
	dataDir    string
	ffmpegPath string
	ingestURL  string
}

// New creates a runner. dataDir receives per-job artifacts; ffmpegPath is
// the encoder binary; ingestURL is the RTMP destination base.
func New(st store.Store, log *logging.Logger, dataDir, ffmpegPath, ingestURL string) *Runner {
	return &Runner{
		store:      st,
		log:        log,
		dataDir:    dataDir,
		ffmpegPath: ffmpegPath,
		ingestURL:  ingestURL,
	}
}

// Run is the in-memory handle on one launched encoder process. It exists
// only in the supervisor lifetime that spawned the process; after a restart
// the durable ActiveRecord and artifact files take its place.
type Run struct {
	ID  int
	PID int

	cmd       *exec.Cmd
	arts      artifacts.Files
	logFile   *os.File
	stopping  atomic.Bool
	drainDone chan struct{}
	done      chan struct{}
}

// MarkStopping tells the exit watcher that the coming process death is an
// operator stop, not a natural exit.
func (r *Run) MarkStopping() {
	r.stopping.Store(true)
}

// Done is closed once terminal bookkeeping for the run has finished.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Launch validates the job, spawns the encoder in a fresh process group,
// records the PID and ActiveRecord, and starts the output-drain and
// exit-wait goroutines. Spawn failures are written to the job's marker and
// log and returned; they never crash the supervisor.
func (r *Runner) Launch(job models.StreamJob) (*Run, error) {
	if strings.TrimSpace(job.StreamKey) == "" {
		return nil, fmt.Errorf("stream %d has no stream key", job.ID)
	}
	if _, err := os.Stat(job.VideoPath); err != nil {
		return nil, fmt.Errorf("stream %d input not readable: %w", job.ID, err)
	}

	arts := artifacts.For(r.dataDir, job.ID)
	if err := arts.WriteMarker(artifacts.MarkerStarting); err != nil {
		return nil, fmt.Errorf("stream %d: write start marker: %w", job.ID, err)
	}

	logFile, err := os.OpenFile(arts.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("stream %d: open log: %w", job.ID, err)
	}

	args := BuildArgs(job, r.ingestURL)
	fmt.Fprintf(logFile, "Starting stream for %s at %s\n", job.VideoPath, time.Now().Format(time.RFC3339))
	fmt.Fprintf(logFile, "Quality: %s, vertical: %v\n", job.Quality, job.Vertical)
	fmt.Fprintf(logFile, "Running: %s %s\n", r.ffmpegPath, strings.Join(args, " "))

	cmd := exec.Command(r.ffmpegPath, args...)
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	// Own process group: stopping the encoder targets the whole group, and
	// the encoder survives a supervisor restart.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		detail := fmt.Sprintf("spawn failed: %v", err)
		arts.WriteErrorMarker(detail)
		fmt.Fprintf(logFile, "Error: %s\n", detail)
		logFile.Close()
		return nil, fmt.Errorf("stream %d: %s", job.ID, detail)
	}

	pid := cmd.Process.Pid
	if err := arts.WritePID(pid); err != nil {
		r.log.Warn("failed to write pid record", map[string]interface{}{"stream_id": job.ID, "error": err.Error()})
	}
	arts.WriteMarker(artifacts.MarkerStreaming)
	if err := r.store.PutActive(job.ID, models.ActiveRecord{PID: pid, StartedAt: time.Now()}); err != nil {
		r.log.Warn("failed to persist active record", map[string]interface{}{"stream_id": job.ID, "error": err.Error()})
	}

	run := &Run{
		ID:        job.ID,
		PID:       pid,
		cmd:       cmd,
		arts:      arts,
		logFile:   logFile,
		drainDone: make(chan struct{}),
		done:      make(chan struct{}),
	}

	r.log.Info("encoder started", map[string]interface{}{"stream_id": job.ID, "pid": pid})

	go run.drain(pr)
	go r.watchExit(run, pw)

	return run, nil
}

// maxLineBytes bounds how much of a single output line is kept. Bytes past
// the cap are dropped; the pipe is consumed regardless so the child can
// never block on a full stderr.
const maxLineBytes = 64 * 1024

// drain copies the encoder's combined output into the per-job log and
// watches each line for fatal ingest-rejection phrases. Both \r and \n
// terminate a line: ffmpeg rewrites its periodic stats line with bare \r,
// and error text can arrive the same way.
func (run *Run) drain(pr *io.PipeReader) {
	defer close(run.drainDone)
	reader := bufio.NewReader(pr)
	line := make([]byte, 0, 256)

	flush := func() {
		if len(line) == 0 {
			return
		}
		text := string(line)
		line = line[:0]
		fmt.Fprintln(run.logFile, text)
		for _, phrase := range fatalPhrases {
			if strings.Contains(text, phrase) {
				run.arts.WriteErrorMarker("ingest connection failed: " + strings.TrimSpace(text))
				break
			}
		}
	}

	for {
		b, err := reader.ReadByte()
		if err != nil {
			flush()
			return
		}
		switch b {
		case '\n', '\r':
			flush()
		default:
			if len(line) < maxLineBytes {
				line = append(line, b)
			}
		}
	}
}

// watchExit blocks on the child, then owns the run's terminal transition:
// marker, trailer log line, catalog status, ActiveRecord removal and
// artifact cleanup, in that order. It never signals the reconcile loop
// directly; the durable store is the synchronization point.
func (r *Runner) watchExit(run *Run, pw *io.PipeWriter) {
	waitErr := run.cmd.Wait()
	pw.Close()
	<-run.drainDone

	terminal := models.Stopped()
	if !run.stopping.Load() {
		marker, present := run.arts.ReadMarker()
		if present && strings.HasPrefix(marker, "error:") {
			terminal = artifacts.ClassifyMarker(marker, true)
		} else {
			run.arts.WriteMarker(artifacts.MarkerCompleted)
			terminal = models.Finished()
		}
	}

	fmt.Fprintln(run.logFile, "Streaming finished or stopped.")
	run.logFile.Close()

	if !run.stopping.Load() {
		// Invalid transitions (a concurrent stop won the race) are dropped.
		if err := r.store.UpdateStatus(run.ID, terminal); err != nil {
			r.log.Debug("terminal status not applied", map[string]interface{}{"stream_id": run.ID, "error": err.Error()})
		}
	}
	if err := r.store.DeleteActive(run.ID); err != nil {
		r.log.Warn("failed to drop active record", map[string]interface{}{"stream_id": run.ID, "error": err.Error()})
	}
	run.arts.Cleanup()

	r.log.Info("encoder exited", map[string]interface{}{
		"stream_id": run.ID,
		"pid":       run.PID,
		"status":    terminal.String(),
		"wait_err":  fmt.Sprint(waitErr),
	})
	close(run.done)
}

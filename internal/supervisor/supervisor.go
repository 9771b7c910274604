// Package supervisor owns the stream catalog and every status transition in
// it. A single reconcile pass reattaches to surviving encoder processes,
// sweeps live jobs for dead processes and starts jobs whose scheduled
// minute has arrived. All state lives in the durable store, so a restarted
// supervisor picks up exactly where the previous one left off.
package supervisor

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"restreamd/internal/artifacts"
	"restreamd/internal/logging"
	"restreamd/internal/metrics"
	"restreamd/internal/models"
	"restreamd/internal/runner"
	"restreamd/internal/store"
)

// Monitor answers process liveness for tracked encoder PIDs.
type Monitor interface {
	IsAlive(pid int) bool
}

// Config carries the supervisor's tunables.
type Config struct {
	// DataDir holds the per-job artifact files.
	DataDir string
	// StopGrace bounds the wait between SIGTERM and SIGKILL on stop.
	StopGrace time.Duration
}

// Supervisor coordinates stream jobs: catalog mutations, explicit
// start/stop, and the periodic reconciliation of declared versus observed
// state.
type Supervisor struct {
	mu      sync.Mutex
	store   store.Store
	monitor Monitor
	runner  *runner.Runner
	log     *logging.Logger
	metrics *metrics.Metrics
	cfg     Config

	// runs holds handles for encoders spawned in this supervisor lifetime.
	// Reattached jobs have no handle; the durable record stands in for it.
	runs   map[int]*runner.Run
	nextID int

	// now is swappable so tests can pin the schedule sweep to a minute.
	now func() time.Time
}

// New creates a supervisor. IDs continue after the highest id already in
// the catalog so a deleted job's id is not handed to a newcomer while older
// jobs still reference it.
func New(st store.Store, mon Monitor, r *runner.Runner, log *logging.Logger, m *metrics.Metrics, cfg Config) *Supervisor {
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 2 * time.Second
	}
	nextID := 0
	for _, job := range st.LoadCatalog() {
		if job.ID >= nextID {
			nextID = job.ID + 1
		}
	}
	return &Supervisor{
		store:   st,
		monitor: mon,
		runner:  r,
		log:     log,
		metrics: m,
		cfg:     cfg,
		runs:    make(map[int]*runner.Run),
		nextID:  nextID,
		now:     time.Now,
	}
}

// List returns the catalog in declared order.
func (s *Supervisor) List() []models.StreamJob {
	return s.store.LoadCatalog()
}

// Get returns one catalog entry.
func (s *Supervisor) Get(id int) (models.StreamJob, error) {
	return s.store.GetJob(id)
}

// Add validates and appends a new waiting job, returning its id.
func (s *Supervisor) Add(job models.StreamJob) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job.Status = models.Waiting()
	job.CreatedAt = s.now()
	if err := job.Validate(); err != nil {
		return 0, err
	}
	if _, err := os.Stat(job.VideoPath); err != nil {
		return 0, fmt.Errorf("video %s is not readable: %w", job.VideoPath, err)
	}

	job.ID = s.nextID
	if err := s.store.AppendJob(job); err != nil {
		return 0, err
	}
	s.nextID++

	s.log.Info("stream added", map[string]interface{}{"stream_id": job.ID, "video": job.VideoPath, "quality": string(job.Quality)})
	return job.ID, nil
}

// Remove deletes a terminal job from the catalog, along with its retained
// log.
func (s *Supervisor) Remove(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.store.GetJob(id)
	if err != nil {
		return err
	}
	if !job.Status.IsTerminal() {
		return fmt.Errorf("stream %d is %s; only finished, stopped, disconnected or errored streams can be removed", id, job.Status.Code)
	}
	if err := s.store.RemoveJob(id); err != nil {
		return err
	}
	arts := artifacts.For(s.cfg.DataDir, id)
	arts.Cleanup()
	arts.RemoveLog()
	delete(s.runs, id)

	s.log.Info("stream removed", map[string]interface{}{"stream_id": id})
	return nil
}

// Start transitions a waiting job to live and launches its encoder. The
// live status is persisted before the child has necessarily finished
// initializing; a failed spawn downgrades it to error.
func (s *Supervisor) Start(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(id)
}

func (s *Supervisor) startLocked(id int) error {
	job, err := s.store.GetJob(id)
	if err != nil {
		return err
	}
	if job.Status.Code != models.StatusWaiting {
		return fmt.Errorf("stream %d is %s; only waiting streams can be started", id, job.Status.Code)
	}

	if err := s.store.UpdateStatus(id, models.Live()); err != nil {
		return err
	}

	run, err := s.runner.Launch(job)
	if err != nil {
		detail := err.Error()
		if serr := s.store.UpdateStatus(id, models.Errored(detail)); serr != nil {
			s.log.Warn("failed to record spawn error", map[string]interface{}{"stream_id": id, "error": serr.Error()})
		}
		if s.metrics != nil {
			s.metrics.StreamFailures.Inc()
		}
		return err
	}

	s.runs[id] = run
	if s.metrics != nil {
		s.metrics.StreamStarts.Inc()
	}
	return nil
}

// Stop terminates a live job's process group: SIGTERM, a bounded grace
// wait, then SIGKILL. It is idempotent — with no resolvable live handle it
// still forces the stopped status and clears any residue.
func (s *Supervisor) Stop(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.store.GetJob(id); err != nil {
		return err
	}

	arts := artifacts.For(s.cfg.DataDir, id)
	run := s.runs[id]

	// Prefer the tracked record; fall back to the durable pid file.
	pid := 0
	if run != nil {
		pid = run.PID
	} else if rec, ok := s.store.GetActive(id); ok {
		pid = rec.PID
	} else if p, ok := arts.ReadPID(); ok {
		pid = p
	}

	if pid > 0 && s.monitor.IsAlive(pid) {
		arts.WriteMarker(artifacts.MarkerStopped)
		if run != nil {
			run.MarkStopping()
		}
		s.terminateGroup(id, pid)
	}

	if err := s.store.ForceStatus(id, models.Stopped()); err != nil {
		return err
	}
	if err := s.store.DeleteActive(id); err != nil {
		s.log.Warn("failed to drop active record", map[string]interface{}{"stream_id": id, "error": err.Error()})
	}
	arts.Cleanup()
	delete(s.runs, id)

	s.log.Info("stream stopped", map[string]interface{}{"stream_id": id})
	return nil
}

// terminateGroup signals the whole process group so the encoder and any
// children it forked go down together.
func (s *Supervisor) terminateGroup(id, pid int) {
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		s.log.Debug("sigterm failed", map[string]interface{}{"stream_id": id, "pid": pid, "error": err.Error()})
	}

	deadline := time.Now().Add(s.cfg.StopGrace)
	for time.Now().Before(deadline) {
		if !s.monitor.IsAlive(pid) {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	if s.monitor.IsAlive(pid) {
		s.log.Warn("escalating to sigkill", map[string]interface{}{"stream_id": id, "pid": pid})
		syscall.Kill(-pid, syscall.SIGKILL)
	}
}

// Logs returns up to maxLines of the job's encoder log.
func (s *Supervisor) Logs(id, maxLines int) ([]string, error) {
	if _, err := s.store.GetJob(id); err != nil {
		return nil, err
	}
	if maxLines <= 0 {
		maxLines = 100
	}
	return artifacts.For(s.cfg.DataDir, id).TailLog(maxLines), nil
}

// Active returns the durable record for a running job, if one exists.
func (s *Supervisor) Active(id int) (models.ActiveRecord, bool) {
	return s.store.GetActive(id)
}

// ActiveCount returns the number of tracked running jobs.
func (s *Supervisor) ActiveCount() int {
	return s.store.ActiveCount()
}

// Reconcile runs one pass of the control loop: reattachment, liveness
// sweep, schedule sweep. It is idempotent and never returns an error — a
// failure on one job must not block the others.
func (s *Supervisor) Reconcile() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ReconcileRuns.Inc()
	}
	now := s.now()

	// 1. Reattachment: reconcile every ActiveRecord against the OS.
	for id, rec := range s.store.LoadActive() {
		job, err := s.store.GetJob(id)
		if err != nil {
			// Record for a job no longer in the catalog. The catalog entry
			// that would normally delete the log is already gone, so drop
			// it here along with the transient artifacts.
			s.store.DeleteActive(id)
			arts := artifacts.For(s.cfg.DataDir, id)
			arts.Cleanup()
			arts.RemoveLog()
			continue
		}
		if !s.monitor.IsAlive(rec.PID) {
			s.resolveDead(id)
			continue
		}
		if job.Status.Code != models.StatusLive {
			if err := s.store.ForceStatus(id, models.Live()); err != nil {
				s.log.Warn("failed to restore live status", map[string]interface{}{"stream_id": id, "error": err.Error()})
			} else {
				s.log.Info("reattached to running encoder", map[string]interface{}{"stream_id": id, "pid": rec.PID})
			}
		}
	}

	// 2. Liveness sweep: live jobs whose record disappeared between passes.
	for _, job := range s.store.LoadCatalog() {
		if job.Status.Code != models.StatusLive {
			continue
		}
		if rec, ok := s.store.GetActive(job.ID); ok && s.monitor.IsAlive(rec.PID) {
			continue
		}
		s.resolveDead(job.ID)
	}

	// 3. Schedule sweep: waiting jobs due this exact minute. A minute
	// missed while offline is never started retroactively.
	hhmm := now.Format("15:04")
	for _, job := range s.store.LoadCatalog() {
		if job.Status.Code != models.StatusWaiting || job.ScheduledStart != hhmm {
			continue
		}
		if err := s.startLocked(job.ID); err != nil {
			s.log.Error("scheduled start failed", map[string]interface{}{"stream_id": job.ID, "error": err.Error()})
		}
	}

	if s.metrics != nil {
		s.metrics.ActiveStreams.Set(float64(s.store.ActiveCount()))
	}
}

// resolveDead settles a job whose encoder process is gone: classify the
// exit from the stale marker if one survived, else mark it disconnected,
// then drop the record and transient artifacts.
func (s *Supervisor) resolveDead(id int) {
	arts := artifacts.For(s.cfg.DataDir, id)
	marker, present := arts.ReadMarker()
	status := artifacts.ClassifyMarker(marker, present)

	if err := s.store.ForceStatus(id, status); err != nil {
		s.log.Warn("failed to settle dead stream", map[string]interface{}{"stream_id": id, "error": err.Error()})
	} else {
		s.log.Info("stream settled", map[string]interface{}{"stream_id": id, "status": status.String()})
	}
	if status.Code == models.StatusError && s.metrics != nil {
		s.metrics.StreamFailures.Inc()
	}

	s.store.DeleteActive(id)
	arts.Cleanup()
	delete(s.runs, id)
}

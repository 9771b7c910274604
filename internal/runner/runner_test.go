package runner

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"restreamd/internal/artifacts"
	"restreamd/internal/logging"
	"restreamd/internal/models"
	"restreamd/internal/store"
)

// writeStubEncoder drops a shell script named ffmpeg into dir so launched
// processes carry the expected executable name without a real encoder.
func writeStubEncoder(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "ffmpeg")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("Failed to write stub encoder: %v", err)
	}
	return path
}

func writeSampleVideo(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "sample.mp4")
	if err := os.WriteFile(path, []byte("not really a video"), 0o644); err != nil {
		t.Fatalf("Failed to write sample video: %v", err)
	}
	return path
}

func quietLogger() *logging.Logger {
	l := logging.New(logging.ERROR, false)
	l.SetOutput(io.Discard)
	return l
}

func newRunnerEnv(t *testing.T, encoderBody string) (*Runner, *store.FileStore, models.StreamJob, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewFileStore(dir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	encoder := writeStubEncoder(t, dir, encoderBody)
	video := writeSampleVideo(t, dir)

	job := models.StreamJob{
		ID:             0,
		VideoPath:      video,
		ScheduledStart: "09:00",
		StreamKey:      "abcd1234",
		Quality:        models.QualityMedium,
		Status:         models.Live(),
		CreatedAt:      time.Now(),
	}
	if err := st.AppendJob(job); err != nil {
		t.Fatalf("Failed to append job: %v", err)
	}

	return New(st, quietLogger(), dir, encoder, "rtmp://ingest.example/live"), st, job, dir
}

func waitDone(t *testing.T, run *Run) {
	t.Helper()
	select {
	case <-run.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for run to finish")
	}
}

func TestLaunchPreconditions(t *testing.T) {
	r, _, job, _ := newRunnerEnv(t, "exit 0")

	noKey := job
	noKey.StreamKey = ""
	if _, err := r.Launch(noKey); err == nil {
		t.Error("empty stream key should be rejected")
	}

	noVideo := job
	noVideo.VideoPath = "/nonexistent/video.mp4"
	if _, err := r.Launch(noVideo); err == nil {
		t.Error("missing input should be rejected")
	}
}

func TestLaunchSpawnFailure(t *testing.T) {
	r, _, job, dir := newRunnerEnv(t, "exit 0")
	r.ffmpegPath = filepath.Join(dir, "missing-encoder")

	if _, err := r.Launch(job); err == nil {
		t.Fatal("spawn against a missing binary should fail")
	}

	marker, ok := artifacts.For(dir, job.ID).ReadMarker()
	if !ok || !strings.HasPrefix(marker, "error:") {
		t.Errorf("expected error marker, got %q (present=%v)", marker, ok)
	}
}

func TestLaunchAndNaturalExit(t *testing.T) {
	r, st, job, dir := newRunnerEnv(t, "echo encoding; exit 0")

	run, err := r.Launch(job)
	if err != nil {
		t.Fatalf("Failed to launch: %v", err)
	}
	if run.PID <= 0 {
		t.Fatalf("invalid pid %d", run.PID)
	}
	waitDone(t, run)

	got, err := st.GetJob(job.ID)
	if err != nil {
		t.Fatalf("Failed to get job: %v", err)
	}
	if got.Status.Code != models.StatusFinished {
		t.Errorf("expected finished, got %s", got.Status)
	}
	if _, ok := st.GetActive(job.ID); ok {
		t.Error("active record should be removed after exit")
	}

	arts := artifacts.For(dir, job.ID)
	if _, ok := arts.ReadMarker(); ok {
		t.Error("status marker should be cleaned after exit")
	}
	if _, ok := arts.ReadPID(); ok {
		t.Error("pid record should be cleaned after exit")
	}

	log := strings.Join(arts.TailLog(0), "\n")
	if !strings.Contains(log, "encoding") {
		t.Errorf("encoder output missing from log: %s", log)
	}
	if !strings.Contains(log, "Streaming finished or stopped.") {
		t.Errorf("trailer line missing from log: %s", log)
	}
}

func TestLaunchRegistersActiveRecord(t *testing.T) {
	r, st, job, dir := newRunnerEnv(t, "sleep 30")

	run, err := r.Launch(job)
	if err != nil {
		t.Fatalf("Failed to launch: %v", err)
	}
	defer func() {
		syscall.Kill(-run.PID, syscall.SIGKILL)
		waitDone(t, run)
	}()

	rec, ok := st.GetActive(job.ID)
	if !ok {
		t.Fatal("active record missing after launch")
	}
	if rec.PID != run.PID {
		t.Errorf("active record pid %d does not match run pid %d", rec.PID, run.PID)
	}

	arts := artifacts.For(dir, job.ID)
	if pid, ok := arts.ReadPID(); !ok || pid != run.PID {
		t.Errorf("pid record %d (present=%v) does not match run pid %d", pid, ok, run.PID)
	}
	if marker, _ := arts.ReadMarker(); marker != artifacts.MarkerStreaming {
		t.Errorf("expected streaming marker, got %q", marker)
	}
}

func TestFatalPhraseDowngradesMarkerEarly(t *testing.T) {
	r, st, job, dir := newRunnerEnv(t, `echo "rtmp://ingest.example/live: Connection refused"; sleep 30`)

	run, err := r.Launch(job)
	if err != nil {
		t.Fatalf("Failed to launch: %v", err)
	}

	// The marker must flip to error while the process is still running.
	arts := artifacts.For(dir, job.ID)
	deadline := time.Now().Add(3 * time.Second)
	for {
		if marker, ok := arts.ReadMarker(); ok && strings.HasPrefix(marker, "error:") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("marker never downgraded to error")
		}
		time.Sleep(20 * time.Millisecond)
	}

	syscall.Kill(-run.PID, syscall.SIGKILL)
	waitDone(t, run)

	got, err := st.GetJob(job.ID)
	if err != nil {
		t.Fatalf("Failed to get job: %v", err)
	}
	if got.Status.Code != models.StatusError {
		t.Errorf("expected error status, got %s", got.Status)
	}
	if !strings.Contains(got.Status.Detail, "ingest connection failed") {
		t.Errorf("error detail missing: %s", got.Status.Detail)
	}
}

func TestFatalPhraseCarriageReturnOnly(t *testing.T) {
	// ffmpeg rewrites its stats line with bare \r at -loglevel info, and
	// rejection text can arrive the same way; the drain must split on \r
	// just like on \n.
	r, st, job, dir := newRunnerEnv(t, `printf 'frame=  1\rframe=  2\rrtmp://ingest.example/live: Connection refused\r'; sleep 30`)

	run, err := r.Launch(job)
	if err != nil {
		t.Fatalf("Failed to launch: %v", err)
	}

	arts := artifacts.For(dir, job.ID)
	deadline := time.Now().Add(3 * time.Second)
	for {
		if marker, ok := arts.ReadMarker(); ok && strings.HasPrefix(marker, "error:") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("fatal phrase terminated by \\r was never detected")
		}
		time.Sleep(20 * time.Millisecond)
	}

	syscall.Kill(-run.PID, syscall.SIGKILL)
	waitDone(t, run)

	got, err := st.GetJob(job.ID)
	if err != nil {
		t.Fatalf("Failed to get job: %v", err)
	}
	if got.Status.Code != models.StatusError {
		t.Errorf("expected error status, got %s", got.Status)
	}

	// The \r-separated updates must land as individual log lines.
	log := arts.TailLog(0)
	found := false
	for _, line := range log {
		if line == "frame=  2" {
			found = true
		}
	}
	if !found {
		t.Errorf("carriage-return update missing from log: %v", log)
	}
}

func TestDrainSurvivesOverlongLine(t *testing.T) {
	// A single output burst with no terminator must not kill the drain;
	// the pipe has to stay consumed or the encoder blocks on stderr.
	body := "head -c 300000 /dev/zero | tr '\\0' x; echo; echo after the flood; exit 0"
	r, st, job, dir := newRunnerEnv(t, body)

	run, err := r.Launch(job)
	if err != nil {
		t.Fatalf("Failed to launch: %v", err)
	}
	waitDone(t, run)

	got, err := st.GetJob(job.ID)
	if err != nil {
		t.Fatalf("Failed to get job: %v", err)
	}
	if got.Status.Code != models.StatusFinished {
		t.Errorf("expected finished, got %s", got.Status)
	}

	log := strings.Join(artifacts.For(dir, job.ID).TailLog(0), "\n")
	if !strings.Contains(log, "after the flood") {
		t.Errorf("output after the oversized line missing from log: %s", log)
	}
	if !strings.Contains(log, "Streaming finished or stopped.") {
		t.Errorf("trailer line missing from log: %s", log)
	}
}

func TestStoppedRunKeepsOperatorStatus(t *testing.T) {
	r, st, job, _ := newRunnerEnv(t, "sleep 30")

	run, err := r.Launch(job)
	if err != nil {
		t.Fatalf("Failed to launch: %v", err)
	}

	run.MarkStopping()
	if err := st.ForceStatus(job.ID, models.Stopped()); err != nil {
		t.Fatalf("Failed to force stop status: %v", err)
	}
	syscall.Kill(-run.PID, syscall.SIGTERM)
	waitDone(t, run)

	got, err := st.GetJob(job.ID)
	if err != nil {
		t.Fatalf("Failed to get job: %v", err)
	}
	if got.Status.Code != models.StatusStopped {
		t.Errorf("stop status must survive the exit watcher, got %s", got.Status)
	}
}

// Package store persists the stream catalog and the active-process map as
// flat JSON files. Both tables are rewritten wholesale on every mutation and
// all access serializes around one mutex; writers are the reconcile loop and
// per-run exit goroutines, so contention is rare and short-lived.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"restreamd/internal/models"
)

var ErrJobNotFound = errors.New("stream job not found")

const (
	catalogFile = "streams.json"
	activeFile  = "active.json"
)

// Store defines the persistence operations used by the supervisor and the
// job runner.
type Store interface {
	LoadCatalog() []models.StreamJob
	SaveCatalog(jobs []models.StreamJob) error
	LoadActive() map[int]models.ActiveRecord
	SaveActive(active map[int]models.ActiveRecord) error

	GetJob(id int) (models.StreamJob, error)
	AppendJob(job models.StreamJob) error
	RemoveJob(id int) error
	UpdateStatus(id int, to models.Status) error
	ForceStatus(id int, to models.Status) error

	GetActive(id int) (models.ActiveRecord, bool)
	PutActive(id int, rec models.ActiveRecord) error
	DeleteActive(id int) error
	ActiveCount() int
}

// FileStore is the JSON-file implementation of Store.
type FileStore struct {
	mu          sync.Mutex
	catalogPath string
	activePath  string
}

// NewFileStore creates a store rooted at dir, creating the directory if
// needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{
		catalogPath: filepath.Join(dir, catalogFile),
		activePath:  filepath.Join(dir, activeFile),
	}, nil
}

// LoadCatalog returns the persisted catalog in declared order. A missing or
// unparseable file yields an empty catalog; the supervisor must stay usable
// with corrupted state on disk.
func (s *FileStore) LoadCatalog() []models.StreamJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadCatalogLocked()
}

func (s *FileStore) loadCatalogLocked() []models.StreamJob {
	data, err := os.ReadFile(s.catalogPath)
	if err != nil {
		return nil
	}
	var jobs []models.StreamJob
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil
	}
	return jobs
}

// SaveCatalog rewrites the catalog. Failures are reported but non-fatal:
// the in-memory view stays authoritative and the next write retries.
func (s *FileStore) SaveCatalog(jobs []models.StreamJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveCatalogLocked(jobs)
}

func (s *FileStore) saveCatalogLocked(jobs []models.StreamJob) error {
	if jobs == nil {
		jobs = []models.StreamJob{}
	}
	return writeJSON(s.catalogPath, jobs)
}

// LoadActive returns the persisted job → process map, empty on any read or
// parse failure.
func (s *FileStore) LoadActive() map[int]models.ActiveRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadActiveLocked()
}

func (s *FileStore) loadActiveLocked() map[int]models.ActiveRecord {
	active := make(map[int]models.ActiveRecord)
	data, err := os.ReadFile(s.activePath)
	if err != nil {
		return active
	}
	if err := json.Unmarshal(data, &active); err != nil {
		return make(map[int]models.ActiveRecord)
	}
	return active
}

// SaveActive rewrites the active map.
func (s *FileStore) SaveActive(active map[int]models.ActiveRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveActiveLocked(active)
}

func (s *FileStore) saveActiveLocked(active map[int]models.ActiveRecord) error {
	if active == nil {
		active = map[int]models.ActiveRecord{}
	}
	return writeJSON(s.activePath, active)
}

// GetJob returns a catalog entry by id.
func (s *FileStore) GetJob(id int) (models.StreamJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.loadCatalogLocked() {
		if job.ID == id {
			return job, nil
		}
	}
	return models.StreamJob{}, ErrJobNotFound
}

// AppendJob adds a new job to the end of the catalog.
func (s *FileStore) AppendJob(job models.StreamJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := s.loadCatalogLocked()
	for _, existing := range jobs {
		if existing.ID == job.ID {
			return fmt.Errorf("stream job %d already exists", job.ID)
		}
	}
	return s.saveCatalogLocked(append(jobs, job))
}

// RemoveJob deletes a job from the catalog.
func (s *FileStore) RemoveJob(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := s.loadCatalogLocked()
	kept := jobs[:0]
	found := false
	for _, job := range jobs {
		if job.ID == id {
			found = true
			continue
		}
		kept = append(kept, job)
	}
	if !found {
		return ErrJobNotFound
	}
	return s.saveCatalogLocked(kept)
}

// UpdateStatus applies a validated state transition to one job and persists
// the whole catalog. An invalid transition leaves the catalog untouched;
// this is what keeps a racing exit goroutine from overwriting an operator
// stop with "finished".
func (s *FileStore) UpdateStatus(id int, to models.Status) error {
	return s.setStatus(id, to, true)
}

// ForceStatus sets a status without transition validation. Used only for
// idempotent stop, which must succeed from any state.
func (s *FileStore) ForceStatus(id int, to models.Status) error {
	return s.setStatus(id, to, false)
}

func (s *FileStore) setStatus(id int, to models.Status, validate bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := s.loadCatalogLocked()
	for i := range jobs {
		if jobs[i].ID != id {
			continue
		}
		if validate {
			if err := models.ValidateTransition(jobs[i].Status.Code, to.Code); err != nil {
				return err
			}
		}
		jobs[i].Status = to
		return s.saveCatalogLocked(jobs)
	}
	return ErrJobNotFound
}

// GetActive returns the active record for a job, if any.
func (s *FileStore) GetActive(id int) (models.ActiveRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.loadActiveLocked()[id]
	return rec, ok
}

// PutActive registers a job → process mapping.
func (s *FileStore) PutActive(id int, rec models.ActiveRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := s.loadActiveLocked()
	active[id] = rec
	return s.saveActiveLocked(active)
}

// DeleteActive removes a job → process mapping. Missing entries are not an
// error.
func (s *FileStore) DeleteActive(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := s.loadActiveLocked()
	if _, ok := active[id]; !ok {
		return nil
	}
	delete(active, id)
	return s.saveActiveLocked(active)
}

// ActiveCount returns the number of tracked running jobs.
func (s *FileStore) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.loadActiveLocked())
}

// writeJSON writes indented JSON through a temp file and rename so a partial
// write cannot truncate the previous table.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

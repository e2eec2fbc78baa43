package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/caesarus-droid/audio-ink/internal/domain"
)

// FileStore keeps one JSON file per job under <dir>. Writes go to a staging
// file first and are renamed into place, so a reader never observes a
// partially written record.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

func NewFileStore(baseDir string) (*FileStore, error) {
	dir := filepath.Join(baseDir, "jobs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create jobs directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Create(ctx context.Context, params CreateParams) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	job := domain.Job{
		ID:         uuid.NewString(),
		SourceName: params.SourceName,
		SourceType: params.SourceType,
		Status:     domain.StatusPending,
		Segments:   []domain.Segment{},
		Language:   params.Language,
		AudioPath:  params.AudioPath,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.writeLocked(job); err != nil {
		return domain.Job{}, &domain.PersistenceError{Op: "create", Err: err}
	}
	return job, nil
}

func (s *FileStore) FindByID(ctx context.Context, id string) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(id)
}

func (s *FileStore) List(ctx context.Context, status domain.Status) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list", Err: err}
	}

	jobs := make([]domain.Job, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		job, err := s.readLocked(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if status != "" && job.Status != status {
			continue
		}
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func (s *FileStore) Claim(ctx context.Context, id string) (domain.Job, error) {
	return s.transition(id, "claim", domain.StatusPending, func(job *domain.Job) {
		job.Status = domain.StatusProcessing
	})
}

func (s *FileStore) Complete(ctx context.Context, id string, result domain.TranscriptionResult) (domain.Job, error) {
	return s.transition(id, "complete", domain.StatusProcessing, func(job *domain.Job) {
		job.Status = domain.StatusCompleted
		job.Text = result.Text
		job.Segments = result.Segments
		if job.Segments == nil {
			job.Segments = []domain.Segment{}
		}
		if result.Language != "" {
			job.Language = result.Language
		}
		job.Device = result.Device
		job.ProcessingTimeSeconds = result.ProcessingTimeSeconds
		job.AudioPath = ""
	})
}

func (s *FileStore) Fail(ctx context.Context, id string, message string) (domain.Job, error) {
	return s.transition(id, "fail", domain.StatusProcessing, func(job *domain.Job) {
		job.Status = domain.StatusFailed
		job.Error = message
		job.AudioPath = ""
	})
}

func (s *FileStore) UpdateText(ctx context.Context, id string, text string) (domain.Job, error) {
	return s.transition(id, "update text", domain.StatusCompleted, func(job *domain.Job) {
		job.Text = text
	})
}

// transition applies a mutation after re-checking the required current
// status under the store lock. This is the claim-atomicity point.
func (s *FileStore) transition(id, op string, required domain.Status, apply func(*domain.Job)) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.readLocked(id)
	if err != nil {
		return domain.Job{}, err
	}
	if job.Status != required {
		return domain.Job{}, &domain.StateError{ID: id, Status: job.Status, Op: op}
	}

	apply(&job)
	job.UpdatedAt = time.Now().UTC()

	if err := s.writeLocked(job); err != nil {
		return domain.Job{}, &domain.PersistenceError{Op: op, Err: err}
	}
	return job, nil
}

func (s *FileStore) readLocked(id string) (domain.Job, error) {
	raw, err := os.ReadFile(s.jobPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return domain.Job{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Job{}, &domain.PersistenceError{Op: "read", Err: err}
	}

	var job domain.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return domain.Job{}, &domain.PersistenceError{Op: "decode", Err: err}
	}
	return job, nil
}

func (s *FileStore) writeLocked(job domain.Job) error {
	tmp, err := os.CreateTemp(s.dir, "job-*.staging")
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(job); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("encode job: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close staging file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.jobPath(job.ID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace job file: %w", err)
	}
	return nil
}

func (s *FileStore) jobPath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

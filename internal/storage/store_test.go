package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/caesarus-droid/audio-ink/internal/domain"
)

func storeBackends(t *testing.T) map[string]JobStore {
	t.Helper()

	fileStore, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}

	sqlStore, err := NewSQLStore(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("sql store: %v", err)
	}
	t.Cleanup(func() { sqlStore.Close() })

	return map[string]JobStore{
		"file":   fileStore,
		"sqlite": sqlStore,
	}
}

func createJob(t *testing.T, store JobStore, name string) domain.Job {
	t.Helper()
	job, err := store.Create(context.Background(), CreateParams{
		SourceName: name,
		SourceType: domain.SourceTypeUpload,
		AudioPath:  "/tmp/" + name,
		Language:   "en",
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func TestCreateThenFind(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := createJob(t, store, "lecture.mp3")

			if job.ID == "" {
				t.Fatal("expected non-empty id")
			}
			if job.Status != domain.StatusPending {
				t.Fatalf("expected pending, got %s", job.Status)
			}

			found, err := store.FindByID(ctx, job.ID)
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			if found.ID != job.ID {
				t.Fatalf("expected id %s, got %s", job.ID, found.ID)
			}
			if found.SourceName != "lecture.mp3" {
				t.Fatalf("unexpected source name %q", found.SourceName)
			}
			if found.Language != "en" {
				t.Fatalf("unexpected language %q", found.Language)
			}
		})
	}
}

func TestFindUnknownID(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.FindByID(context.Background(), "missing")
			if !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestClaimTransitionsToProcessing(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := createJob(t, store, "a.wav")

			claimed, err := store.Claim(ctx, job.ID)
			if err != nil {
				t.Fatalf("claim: %v", err)
			}
			if claimed.Status != domain.StatusProcessing {
				t.Fatalf("expected processing, got %s", claimed.Status)
			}
			if !claimed.UpdatedAt.After(job.UpdatedAt) && !claimed.UpdatedAt.Equal(job.UpdatedAt) {
				t.Fatal("expected updated_at to advance")
			}

			_, err = store.Claim(ctx, job.ID)
			var stateErr *domain.StateError
			if !errors.As(err, &stateErr) {
				t.Fatalf("expected StateError on second claim, got %v", err)
			}
			if stateErr.Status != domain.StatusProcessing {
				t.Fatalf("state error should carry current status, got %s", stateErr.Status)
			}
		})
	}
}

func TestClaimUnknownID(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Claim(context.Background(), "missing")
			if !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestConcurrentClaimSingleWinner(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := createJob(t, store, "contested.wav")

			const claimers = 8
			var wg sync.WaitGroup
			wins := make(chan struct{}, claimers)
			losses := make(chan error, claimers)

			for i := 0; i < claimers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := store.Claim(ctx, job.ID); err != nil {
						losses <- err
						return
					}
					wins <- struct{}{}
				}()
			}
			wg.Wait()
			close(wins)
			close(losses)

			if got := len(wins); got != 1 {
				t.Fatalf("expected exactly one winner, got %d", got)
			}
			for err := range losses {
				var stateErr *domain.StateError
				if !errors.As(err, &stateErr) {
					t.Fatalf("loser should observe StateError, got %v", err)
				}
			}
		})
	}
}

func TestCompleteWritesResult(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := createJob(t, store, "talk.mp3")
			if _, err := store.Claim(ctx, job.ID); err != nil {
				t.Fatalf("claim: %v", err)
			}

			result := domain.TranscriptionResult{
				Text: "hello world",
				Segments: []domain.Segment{
					{StartSeconds: 0, EndSeconds: 1.5, Text: "hello"},
					{StartSeconds: 1.5, EndSeconds: 3, Text: "world"},
				},
				Language:              "en",
				Device:                domain.DeviceCPU,
				ProcessingTimeSeconds: 4.2,
			}

			done, err := store.Complete(ctx, job.ID, result)
			if err != nil {
				t.Fatalf("complete: %v", err)
			}
			if done.Status != domain.StatusCompleted {
				t.Fatalf("expected completed, got %s", done.Status)
			}
			if done.Text != "hello world" {
				t.Fatalf("unexpected text %q", done.Text)
			}
			if len(done.Segments) != 2 {
				t.Fatalf("expected 2 segments, got %d", len(done.Segments))
			}
			if done.Device != domain.DeviceCPU {
				t.Fatalf("unexpected device %q", done.Device)
			}
			if done.ProcessingTimeSeconds != 4.2 {
				t.Fatalf("unexpected processing time %v", done.ProcessingTimeSeconds)
			}
			if done.AudioPath != "" {
				t.Fatal("audio path should be cleared after completion")
			}
			if done.Error != "" {
				t.Fatal("completed job must not carry an error")
			}
		})
	}
}

func TestCompleteRequiresProcessing(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := createJob(t, store, "early.mp3")

			_, err := store.Complete(ctx, job.ID, domain.TranscriptionResult{Text: "x"})
			var stateErr *domain.StateError
			if !errors.As(err, &stateErr) {
				t.Fatalf("expected StateError completing a pending job, got %v", err)
			}
		})
	}
}

func TestFailRecordsError(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := createJob(t, store, "broken.mp3")
			if _, err := store.Claim(ctx, job.ID); err != nil {
				t.Fatalf("claim: %v", err)
			}

			failed, err := store.Fail(ctx, job.ID, "inference blew up")
			if err != nil {
				t.Fatalf("fail: %v", err)
			}
			if failed.Status != domain.StatusFailed {
				t.Fatalf("expected failed, got %s", failed.Status)
			}
			if failed.Error != "inference blew up" {
				t.Fatalf("unexpected error message %q", failed.Error)
			}
			if failed.Text != "" {
				t.Fatal("failed job must not carry text")
			}

			// terminal: no transition out
			if _, err := store.Claim(ctx, job.ID); err == nil {
				t.Fatal("expected claim on failed job to be rejected")
			}
			if _, err := store.Fail(ctx, job.ID, "again"); err == nil {
				t.Fatal("expected second fail to be rejected")
			}
		})
	}
}

func TestUpdateTextOnlyWhenCompleted(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := createJob(t, store, "edit.mp3")

			if _, err := store.UpdateText(ctx, job.ID, "nope"); err == nil {
				t.Fatal("expected update on pending job to be rejected")
			}

			if _, err := store.Claim(ctx, job.ID); err != nil {
				t.Fatalf("claim: %v", err)
			}
			if _, err := store.Complete(ctx, job.ID, domain.TranscriptionResult{
				Text: "original", Device: domain.DeviceCPU, ProcessingTimeSeconds: 1,
			}); err != nil {
				t.Fatalf("complete: %v", err)
			}

			updated, err := store.UpdateText(ctx, job.ID, "edited transcript")
			if err != nil {
				t.Fatalf("update text: %v", err)
			}
			if updated.Text != "edited transcript" {
				t.Fatalf("unexpected text %q", updated.Text)
			}
			if updated.Status != domain.StatusCompleted {
				t.Fatalf("status must not change, got %s", updated.Status)
			}
			if updated.Device != domain.DeviceCPU {
				t.Fatal("result fields must survive a text edit")
			}
		})
	}
}

func TestListOrderingAndFilter(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first := createJob(t, store, "first.mp3")
			time.Sleep(2 * time.Millisecond)
			second := createJob(t, store, "second.mp3")
			time.Sleep(2 * time.Millisecond)
			third := createJob(t, store, "third.mp3")

			if _, err := store.Claim(ctx, second.ID); err != nil {
				t.Fatalf("claim: %v", err)
			}
			if _, err := store.Complete(ctx, second.ID, domain.TranscriptionResult{Text: "done"}); err != nil {
				t.Fatalf("complete: %v", err)
			}

			all, err := store.List(ctx, "")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("expected 3 jobs, got %d", len(all))
			}
			if all[0].ID != third.ID || all[2].ID != first.ID {
				t.Fatalf("expected newest-first ordering, got %s %s %s", all[0].SourceName, all[1].SourceName, all[2].SourceName)
			}

			completed, err := store.List(ctx, domain.StatusCompleted)
			if err != nil {
				t.Fatalf("list completed: %v", err)
			}
			if len(completed) != 1 || completed[0].ID != second.ID {
				t.Fatalf("expected only the completed job, got %d entries", len(completed))
			}

			pending, err := store.List(ctx, domain.StatusPending)
			if err != nil {
				t.Fatalf("list pending: %v", err)
			}
			if len(pending) != 2 {
				t.Fatalf("expected 2 pending jobs, got %d", len(pending))
			}
		})
	}
}

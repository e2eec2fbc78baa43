package storage

import (
	"context"

	"github.com/caesarus-droid/audio-ink/internal/domain"
)

// CreateParams carries the intake attributes of a new job.
type CreateParams struct {
	SourceName string
	SourceType string
	AudioPath  string
	Language   string
}

// JobStore persists job records durably and applies lifecycle transitions.
// Every mutating operation re-checks its status precondition, so lost-update
// races are precluded without locking whole records for reads.
// Implementations must be safe for concurrent use.
type JobStore interface {
	// Create allocates a fresh id with status pending and persists the
	// record before returning.
	Create(ctx context.Context, params CreateParams) (domain.Job, error)

	// FindByID is a point lookup. Returns domain.ErrNotFound for unknown ids.
	FindByID(ctx context.Context, id string) (domain.Job, error)

	// List returns jobs matching the status filter ordered by creation time
	// descending. An empty status returns all jobs.
	List(ctx context.Context, status domain.Status) ([]domain.Job, error)

	// Claim atomically transitions pending -> processing. Exactly one of two
	// concurrent claims on the same id wins; the loser gets a StateError.
	Claim(ctx context.Context, id string) (domain.Job, error)

	// Complete transitions processing -> completed and writes the result.
	Complete(ctx context.Context, id string, result domain.TranscriptionResult) (domain.Job, error)

	// Fail transitions processing -> failed and records the reason.
	Fail(ctx context.Context, id string, message string) (domain.Job, error)

	// UpdateText rewrites the transcript of a completed job without touching
	// status or other result fields.
	UpdateText(ctx context.Context, id string, text string) (domain.Job, error)
}

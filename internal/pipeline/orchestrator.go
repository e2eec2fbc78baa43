package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/caesarus-droid/audio-ink/internal/audio"
	"github.com/caesarus-droid/audio-ink/internal/domain"
	"github.com/caesarus-droid/audio-ink/internal/storage"
)

// Transcriber runs full inference on a local audio file.
type Transcriber interface {
	Transcribe(ctx context.Context, path, requestedDevice string) (domain.TranscriptionResult, error)
}

// SourceResolver normalizes uploads and remote URLs into local audio files.
type SourceResolver interface {
	ResolveUpload(src io.Reader, filename string) (audio.Handle, error)
	ResolveRemote(ctx context.Context, url string) (audio.Handle, error)
	Release(h audio.Handle)
}

// Orchestrator drives a job through its lifecycle: intake, claim,
// transcription, result write, and audio cleanup.
type Orchestrator struct {
	store         storage.JobStore
	resolver      SourceResolver
	model         Transcriber
	language      string
	defaultDevice string
}

func New(store storage.JobStore, resolver SourceResolver, model Transcriber, language, defaultDevice string) *Orchestrator {
	return &Orchestrator{
		store:         store,
		resolver:      resolver,
		model:         model,
		language:      language,
		defaultDevice: defaultDevice,
	}
}

// SubmitUpload validates and stores an uploaded audio file, then creates the
// job in pending state. Nothing is persisted when validation rejects the file.
func (o *Orchestrator) SubmitUpload(ctx context.Context, src io.Reader, filename string) (domain.Job, error) {
	handle, err := o.resolver.ResolveUpload(src, filename)
	if err != nil {
		return domain.Job{}, err
	}

	job, err := o.store.Create(ctx, storage.CreateParams{
		SourceName: handle.OriginName,
		SourceType: domain.SourceTypeUpload,
		AudioPath:  handle.LocalPath,
		Language:   o.language,
	})
	if err != nil {
		o.resolver.Release(handle)
		return domain.Job{}, err
	}
	return job, nil
}

// SubmitRemote downloads the audio of a remote video and creates the job in
// pending state. The download runs first, so an ingestion failure leaves no
// job record behind.
func (o *Orchestrator) SubmitRemote(ctx context.Context, url string) (domain.Job, error) {
	handle, err := o.resolver.ResolveRemote(ctx, url)
	if err != nil {
		return domain.Job{}, err
	}

	job, err := o.store.Create(ctx, storage.CreateParams{
		SourceName: handle.OriginName,
		SourceType: domain.SourceTypeURL,
		AudioPath:  handle.LocalPath,
		Language:   o.language,
	})
	if err != nil {
		o.resolver.Release(handle)
		return domain.Job{}, err
	}
	return job, nil
}

// Process claims the job, transcribes its stored audio, and writes the
// result. Ingestion and model failures are recorded into the job rather than
// returned; only claim, lookup, and persistence failures surface as errors.
// The stored audio is released exactly once on every exit path.
func (o *Orchestrator) Process(ctx context.Context, id, requestedDevice string) (domain.Job, error) {
	job, err := o.store.Claim(ctx, id)
	if err != nil {
		return domain.Job{}, err
	}

	handle := audio.Handle{LocalPath: job.AudioPath, OriginName: job.SourceName}
	defer o.resolver.Release(handle)

	if job.AudioPath == "" {
		return o.store.Fail(ctx, id, "stored audio is missing")
	}
	if _, err := os.Stat(job.AudioPath); err != nil {
		return o.store.Fail(ctx, id, fmt.Sprintf("stored audio is missing: %v", err))
	}

	device := requestedDevice
	if device == "" {
		device = o.defaultDevice
	}

	result, err := o.model.Transcribe(ctx, job.AudioPath, device)
	if err != nil {
		return o.store.Fail(ctx, id, err.Error())
	}

	return o.store.Complete(ctx, id, result)
}

func (o *Orchestrator) Get(ctx context.Context, id string) (domain.Job, error) {
	return o.store.FindByID(ctx, id)
}

func (o *Orchestrator) List(ctx context.Context, status domain.Status) ([]domain.Job, error) {
	if status != "" && !status.Valid() {
		return nil, &domain.ValidationError{Reason: fmt.Sprintf("unknown status %q", status)}
	}
	return o.store.List(ctx, status)
}

// UpdateText rewrites the transcript of a completed job, used by the
// edit-before-export flow.
func (o *Orchestrator) UpdateText(ctx context.Context, id, text string) (domain.Job, error) {
	return o.store.UpdateText(ctx, id, text)
}

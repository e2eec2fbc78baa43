package audio

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/caesarus-droid/audio-ink/internal/domain"
)

var allowedExtensions = map[string]struct{}{
	"mp3":  {},
	"wav":  {},
	"ogg":  {},
	"mp4":  {},
	"m4a":  {},
	"mpeg": {},
	"webm": {},
}

// Handle is a transient reference to a locally readable audio file. It is
// owned by exactly one pipeline invocation and released exactly once.
type Handle struct {
	LocalPath  string
	OriginName string
}

// Resolver normalizes uploaded files and remote video URLs into local audio
// files under its audio directory.
type Resolver struct {
	audioDir string
	maxBytes int64
	ytdlpBin string
	runner   commandRunner
}

func NewResolver(baseDir string, maxUploadBytes int64, ytdlpBin string) (*Resolver, error) {
	audioDir := filepath.Join(baseDir, "audio")
	if err := os.MkdirAll(audioDir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio directory: %w", err)
	}
	return &Resolver{
		audioDir: audioDir,
		maxBytes: maxUploadBytes,
		ytdlpBin: ytdlpBin,
		runner:   &execRunner{},
	}, nil
}

// ResolveUpload validates the declared extension before writing anything,
// then copies the upload to a collision-free location.
func (r *Resolver) ResolveUpload(src io.Reader, filename string) (Handle, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if _, ok := allowedExtensions[ext]; !ok {
		return Handle{}, &domain.ValidationError{
			Reason: fmt.Sprintf("file extension %q is not allowed", ext),
		}
	}

	path := filepath.Join(r.audioDir, fmt.Sprintf("%s.%s", uuid.NewString(), ext))
	if err := r.writeWithLimit(path, src); err != nil {
		return Handle{}, err
	}

	return Handle{LocalPath: path, OriginName: filepath.Base(filename)}, nil
}

// ResolveRemote downloads the best audio stream of a remote video via
// yt-dlp, transcoded to mp3, and returns the extracted title as origin name.
// No partial file survives a failure.
func (r *Resolver) ResolveRemote(ctx context.Context, url string) (Handle, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return Handle{}, &domain.ValidationError{Reason: "no URL provided"}
	}

	id := uuid.NewString()
	outPath := filepath.Join(r.audioDir, id+".mp3")
	template := filepath.Join(r.audioDir, id+".%(ext)s")

	args := []string{
		"--no-playlist",
		"--quiet",
		"--no-warnings",
		"-f", "bestaudio/best",
		"-x",
		"--audio-format", "mp3",
		"--audio-quality", "192K",
		"-o", template,
		"--no-simulate",
		"--print", "title",
		url,
	}

	result, err := r.runner.Run(ctx, r.ytdlpBin, args...)
	if err != nil {
		r.removePartial(id)
		reason := strings.TrimSpace(result.Stderr)
		if reason == "" {
			reason = err.Error()
		}
		return Handle{}, &domain.IngestionError{Stage: "download", Err: fmt.Errorf("%s", reason)}
	}

	if _, err := os.Stat(outPath); err != nil {
		r.removePartial(id)
		return Handle{}, &domain.IngestionError{Stage: "transcode", Err: fmt.Errorf("expected audio file missing: %w", err)}
	}

	title := strings.TrimSpace(result.Stdout)
	if title == "" {
		title = "Unknown Title"
	}

	return Handle{LocalPath: outPath, OriginName: title + ".mp3"}, nil
}

// Release removes the underlying file. Best effort: a stray temp file is a
// leak, not a correctness violation.
func (r *Resolver) Release(h Handle) {
	if h.LocalPath == "" {
		return
	}
	if err := os.Remove(h.LocalPath); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: release audio %s: %v", h.LocalPath, err)
	}
}

func (r *Resolver) writeWithLimit(path string, src io.Reader) error {
	out, err := os.Create(path)
	if err != nil {
		return &domain.IngestionError{Stage: "save", Err: err}
	}

	cleanup := func(err error) error {
		out.Close()
		os.Remove(path)
		return err
	}

	reader := src
	if r.maxBytes > 0 {
		reader = io.LimitReader(src, r.maxBytes+1)
	}

	n, err := io.Copy(out, reader)
	if err != nil {
		return cleanup(&domain.IngestionError{Stage: "save", Err: err})
	}
	if r.maxBytes > 0 && n > r.maxBytes {
		return cleanup(&domain.IngestionError{Stage: "save", Err: fmt.Errorf("audio file exceeds maximum size")})
	}

	if err := out.Close(); err != nil {
		os.Remove(path)
		return &domain.IngestionError{Stage: "save", Err: err}
	}
	return nil
}

// NewResolverForTests constructs a resolver with an injectable runner.
func NewResolverForTests(baseDir string, maxUploadBytes int64, ytdlpBin string, runner commandRunner) (*Resolver, error) {
	r, err := NewResolver(baseDir, maxUploadBytes, ytdlpBin)
	if err != nil {
		return nil, err
	}
	r.runner = runner
	return r, nil
}

// removePartial clears any artifact yt-dlp left behind for this download,
// including intermediate files with a different extension.
func (r *Resolver) removePartial(id string) {
	matches, err := filepath.Glob(filepath.Join(r.audioDir, id+".*"))
	if err != nil {
		return
	}
	for _, match := range matches {
		_ = os.Remove(match)
	}
}

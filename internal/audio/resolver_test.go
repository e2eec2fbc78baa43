package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/caesarus-droid/audio-ink/internal/domain"
)

type fakeRunner struct {
	calls  int
	fail   bool
	stderr string
	title  string
	// writeOutput controls whether the fake produces the mp3 yt-dlp would.
	writeOutput bool
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	f.calls++

	if f.fail {
		return commandResult{Stderr: f.stderr, ExitCode: 1}, errors.New("exit status 1")
	}

	if f.writeOutput {
		template := argValue(args, "-o")
		outPath := strings.Replace(template, "%(ext)s", "mp3", 1)
		if err := os.WriteFile(outPath, []byte("fake audio"), 0o644); err != nil {
			return commandResult{}, err
		}
	}

	return commandResult{Stdout: f.title + "\n"}, nil
}

func argValue(args []string, flag string) string {
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestResolveUploadAllowedExtension(t *testing.T) {
	resolver, err := NewResolver(t.TempDir(), 1024, "yt-dlp")
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	handle, err := resolver.ResolveUpload(strings.NewReader("RIFF fake wav"), "sample.wav")
	if err != nil {
		t.Fatalf("resolve upload: %v", err)
	}

	if handle.OriginName != "sample.wav" {
		t.Fatalf("unexpected origin name %q", handle.OriginName)
	}
	content, err := os.ReadFile(handle.LocalPath)
	if err != nil {
		t.Fatalf("read stored audio: %v", err)
	}
	if string(content) != "RIFF fake wav" {
		t.Fatalf("stored content mismatch: %q", content)
	}

	resolver.Release(handle)
	if _, err := os.Stat(handle.LocalPath); !os.IsNotExist(err) {
		t.Fatal("expected audio file removed after release")
	}
}

func TestResolveUploadRejectsExtensionBeforeWrite(t *testing.T) {
	dir := t.TempDir()
	resolver, err := NewResolver(dir, 1024, "yt-dlp")
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	cases := []string{"virus.exe", "document.pdf", "archive.tar.gz", "noext"}
	for _, name := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := resolver.ResolveUpload(strings.NewReader("payload"), name)
			var validationErr *domain.ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}

	entries, err := os.ReadDir(filepath.Join(dir, "audio"))
	if err != nil {
		t.Fatalf("read audio dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("no file may be written for a rejected upload, found %d", len(entries))
	}
}

func TestResolveUploadSizeLimit(t *testing.T) {
	dir := t.TempDir()
	resolver, err := NewResolver(dir, 8, "yt-dlp")
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	_, err = resolver.ResolveUpload(strings.NewReader("way more than eight bytes"), "big.mp3")
	var ingestionErr *domain.IngestionError
	if !errors.As(err, &ingestionErr) {
		t.Fatalf("expected IngestionError, got %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "audio"))
	if err != nil {
		t.Fatalf("read audio dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("oversized upload must not leave a partial file, found %d", len(entries))
	}
}

func TestResolveRemoteSuccess(t *testing.T) {
	runner := &fakeRunner{title: "Conference Keynote", writeOutput: true}
	resolver, err := NewResolverForTests(t.TempDir(), 0, "yt-dlp", runner)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	handle, err := resolver.ResolveRemote(context.Background(), "https://video.example/watch?v=abc")
	if err != nil {
		t.Fatalf("resolve remote: %v", err)
	}

	if handle.OriginName != "Conference Keynote.mp3" {
		t.Fatalf("unexpected origin name %q", handle.OriginName)
	}
	if _, err := os.Stat(handle.LocalPath); err != nil {
		t.Fatalf("expected downloaded audio on disk: %v", err)
	}
	if runner.calls != 1 {
		t.Fatalf("expected one yt-dlp invocation, got %d", runner.calls)
	}
}

func TestResolveRemoteMissingURL(t *testing.T) {
	resolver, err := NewResolverForTests(t.TempDir(), 0, "yt-dlp", &fakeRunner{})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	_, err = resolver.ResolveRemote(context.Background(), "   ")
	var validationErr *domain.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestResolveRemoteDownloadFailure(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{fail: true, stderr: "ERROR: video unavailable"}
	resolver, err := NewResolverForTests(dir, 0, "yt-dlp", runner)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	_, err = resolver.ResolveRemote(context.Background(), "https://video.example/watch?v=gone")
	var ingestionErr *domain.IngestionError
	if !errors.As(err, &ingestionErr) {
		t.Fatalf("expected IngestionError, got %v", err)
	}
	if !strings.Contains(err.Error(), "video unavailable") {
		t.Fatalf("expected downloader stderr in error, got %q", err.Error())
	}

	entries, err := os.ReadDir(filepath.Join(dir, "audio"))
	if err != nil {
		t.Fatalf("read audio dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("failed download must not leave files, found %d", len(entries))
	}
}

func TestResolveRemoteMissingOutput(t *testing.T) {
	// runner succeeds but produces no file, e.g. extraction silently skipped
	runner := &fakeRunner{title: "Empty", writeOutput: false}
	resolver, err := NewResolverForTests(t.TempDir(), 0, "yt-dlp", runner)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	_, err = resolver.ResolveRemote(context.Background(), "https://video.example/watch?v=empty")
	var ingestionErr *domain.IngestionError
	if !errors.As(err, &ingestionErr) {
		t.Fatalf("expected IngestionError, got %v", err)
	}
	if ingestionErr.Stage != "transcode" {
		t.Fatalf("expected transcode stage, got %q", ingestionErr.Stage)
	}
}

func TestReleaseMissingFileIsQuiet(t *testing.T) {
	resolver, err := NewResolver(t.TempDir(), 0, "yt-dlp")
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	// already-removed file and empty handle are both no-ops
	resolver.Release(Handle{LocalPath: fmt.Sprintf("%s/ghost.mp3", t.TempDir())})
	resolver.Release(Handle{})
}

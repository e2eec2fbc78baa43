package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/caesarus-droid/audio-ink/internal/domain"
)

const gpuProbeBinary = "nvidia-smi"

// Manager owns access to the whisper.cpp inference binary. The model file is
// resolved and the compute device probed once per process, on first use; a
// failed load is reported to that caller and retried by a later call.
type Manager struct {
	bin       string
	modelPath string
	language  string
	runner    commandRunner

	initMu        sync.Mutex
	loaded        bool
	resolvedModel string
	gpuAvailable  bool

	// slots bounds concurrent inference calls to protect device memory.
	slots chan struct{}
}

func NewManager(bin, modelPath, language string, maxConcurrent int) *Manager {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Manager{
		bin:       bin,
		modelPath: modelPath,
		language:  language,
		runner:    &execRunner{},
		slots:     make(chan struct{}, maxConcurrent),
	}
}

// NewManagerForTests constructs a manager with an injectable runner.
func NewManagerForTests(bin, modelPath, language string, maxConcurrent int, runner commandRunner) *Manager {
	m := NewManager(bin, modelPath, language, maxConcurrent)
	m.runner = runner
	return m
}

// whisperOutput mirrors the whisper.cpp -oj JSON document.
type whisperOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

// Transcribe runs full inference on the audio at path. A gpu request falls
// back to cpu when no GPU is available; that is a capability probe result,
// not an error.
func (m *Manager) Transcribe(ctx context.Context, path, requestedDevice string) (domain.TranscriptionResult, error) {
	select {
	case m.slots <- struct{}{}:
	case <-ctx.Done():
		return domain.TranscriptionResult{}, ctx.Err()
	}
	defer func() { <-m.slots }()

	model, gpuAvailable, err := m.ensureLoaded(ctx)
	if err != nil {
		return domain.TranscriptionResult{}, err
	}

	device := domain.DeviceCPU
	if requestedDevice == domain.DeviceGPU && gpuAvailable {
		device = domain.DeviceGPU
	}

	outBase := filepath.Join(os.TempDir(), "audio-ink-"+uuid.NewString())
	jsonPath := outBase + ".json"
	defer os.Remove(jsonPath)

	args := []string{
		"-m", model,
		"-f", path,
		"-oj",
		"-of", outBase,
	}
	if lang := normalizeLanguage(m.language); lang != "" {
		args = append(args, "-l", lang)
	}
	if device == domain.DeviceCPU {
		args = append(args, "--no-gpu")
	}

	start := time.Now()
	result, runErr := m.runner.Run(ctx, m.bin, args...)
	elapsed := time.Since(start).Seconds()
	if runErr != nil {
		reason := strings.TrimSpace(result.Stderr)
		if reason == "" {
			reason = runErr.Error()
		}
		return domain.TranscriptionResult{}, &domain.ModelError{Stage: "inference", Err: fmt.Errorf("%s", reason)}
	}

	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		return domain.TranscriptionResult{}, &domain.ModelError{Stage: "inference", Err: fmt.Errorf("transcript output missing: %w", err)}
	}

	var parsed whisperOutput
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return domain.TranscriptionResult{}, &domain.ModelError{Stage: "inference", Err: fmt.Errorf("parse transcript output: %w", err)}
	}

	segments := make([]domain.Segment, 0, len(parsed.Transcription))
	var text strings.Builder
	for _, seg := range parsed.Transcription {
		trimmed := strings.TrimSpace(seg.Text)
		if trimmed == "" {
			continue
		}
		segments = append(segments, domain.Segment{
			StartSeconds: float64(seg.Offsets.From) / 1000,
			EndSeconds:   float64(seg.Offsets.To) / 1000,
			Text:         trimmed,
		})
		if text.Len() > 0 {
			text.WriteByte(' ')
		}
		text.WriteString(trimmed)
	}

	language := parsed.Result.Language
	if language == "" {
		language = m.language
	}

	return domain.TranscriptionResult{
		Text:                  text.String(),
		Segments:              segments,
		Language:              language,
		Device:                device,
		ProcessingTimeSeconds: elapsed,
	}, nil
}

// ensureLoaded performs the one-time model resolution and device probe under
// the initialization lock. Concurrent first callers wait for the winner.
func (m *Manager) ensureLoaded(ctx context.Context) (string, bool, error) {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	if m.loaded {
		return m.resolvedModel, m.gpuAvailable, nil
	}

	model, err := m.resolveModelPath()
	if err != nil {
		return "", false, &domain.ModelError{Stage: "load", Err: err}
	}

	m.resolvedModel = model
	m.gpuAvailable = m.probeGPU(ctx)
	m.loaded = true
	log.Printf("whisper model %s ready (gpu available: %t)", filepath.Base(model), m.gpuAvailable)

	return m.resolvedModel, m.gpuAvailable, nil
}

// probeGPU checks for a usable CUDA device. A failing probe means cpu only.
func (m *Manager) probeGPU(ctx context.Context) bool {
	_, err := m.runner.Run(ctx, gpuProbeBinary, "-L")
	return err == nil
}

// resolveModelPath returns the model file from a file or directory input.
func (m *Manager) resolveModelPath() (string, error) {
	modelPath := strings.TrimSpace(m.modelPath)
	if modelPath == "" {
		return "", fmt.Errorf("model path is required")
	}

	info, err := os.Stat(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot access model path: %s", modelPath)
	}
	if !info.IsDir() {
		return modelPath, nil
	}

	entries, err := os.ReadDir(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot read model directory: %s", modelPath)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".bin" || ext == ".gguf" {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no .bin or .gguf model files found in: %s", modelPath)
	}

	sort.Strings(names)
	return filepath.Join(modelPath, names[0]), nil
}

// normalizeLanguage maps "auto" and empty language to no CLI override.
func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}

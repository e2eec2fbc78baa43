package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	StoreBackendFile   = "file"
	StoreBackendSQLite = "sqlite"
)

type Config struct {
	Port             string
	DataDir          string
	StoreBackend     string
	SQLitePath       string
	MaxUploadBytes   int64
	WhisperBin       string
	WhisperModelPath string
	Language         string
	Device           string
	MaxTranscribers  int
	YTDLPBin         string
}

func LoadConfig() (Config, error) {
	cfg := Config{}

	cfg.Port = envOrDefault("PORT", "8080")
	cfg.DataDir = envOrDefault("DATA_DIR", "data")
	cfg.StoreBackend = envOrDefault("STORE_BACKEND", StoreBackendFile)
	cfg.WhisperBin = envOrDefault("WHISPER_BIN", "whisper.cpp")
	cfg.WhisperModelPath = envOrDefault("WHISPER_MODEL", "models")
	cfg.Language = envOrDefault("WHISPER_LANGUAGE", "en")
	cfg.Device = envOrDefault("WHISPER_DEVICE", "gpu")
	cfg.YTDLPBin = envOrDefault("YTDLP_BIN", "yt-dlp")

	if cfg.StoreBackend != StoreBackendFile && cfg.StoreBackend != StoreBackendSQLite {
		return Config{}, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	maxUploadMB, err := parseIntEnv("MAX_UPLOAD_MB", 16)
	if err != nil {
		return Config{}, fmt.Errorf("parse MAX_UPLOAD_MB: %w", err)
	}
	cfg.MaxUploadBytes = maxUploadMB * 1024 * 1024

	maxTranscribers, err := parseIntEnv("MAX_CONCURRENT_TRANSCRIPTIONS", 1)
	if err != nil {
		return Config{}, fmt.Errorf("parse MAX_CONCURRENT_TRANSCRIPTIONS: %w", err)
	}
	if maxTranscribers < 1 {
		maxTranscribers = 1
	}
	cfg.MaxTranscribers = int(maxTranscribers)

	absDataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return Config{}, fmt.Errorf("resolve data dir: %w", err)
	}
	cfg.DataDir = absDataDir

	cfg.SQLitePath = envOrDefault("SQLITE_PATH", filepath.Join(cfg.DataDir, "jobs.db"))

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func parseIntEnv(key string, fallback int64) (int64, error) {
	value := envOrDefault(key, "")
	if value == "" {
		return fallback, nil
	}

	num, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	return num, nil
}

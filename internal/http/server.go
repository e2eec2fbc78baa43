package http

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/caesarus-droid/audio-ink/internal/audio"
	"github.com/caesarus-droid/audio-ink/internal/config"
	"github.com/caesarus-droid/audio-ink/internal/pipeline"
	"github.com/caesarus-droid/audio-ink/internal/services"
	"github.com/caesarus-droid/audio-ink/internal/storage"
	"github.com/caesarus-droid/audio-ink/internal/whisper"
)

type Server struct {
	engine *gin.Engine
	cfg    config.Config
}

func NewServer(cfg config.Config) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	store, err := newStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("init job store: %w", err)
	}

	resolver, err := audio.NewResolver(cfg.DataDir, cfg.MaxUploadBytes, cfg.YTDLPBin)
	if err != nil {
		return nil, fmt.Errorf("init audio resolver: %w", err)
	}

	manager := whisper.NewManager(cfg.WhisperBin, cfg.WhisperModelPath, cfg.Language, cfg.MaxTranscribers)
	orchestrator := pipeline.New(store, resolver, manager, cfg.Language, cfg.Device)
	exporter := services.NewExporter()

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger())
	engine.Use(MaxBodySize(cfg.MaxUploadBytes))
	engine.Use(CORS())

	api := NewAPI(orchestrator, exporter)
	registerRoutes(engine, api)

	return &Server{engine: engine, cfg: cfg}, nil
}

// newStore selects the persistence backend for this deployment; a job
// population lives in one backend, never both.
func newStore(cfg config.Config) (storage.JobStore, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendSQLite:
		return storage.NewSQLStore(cfg.SQLitePath)
	default:
		return storage.NewFileStore(cfg.DataDir)
	}
}

func (s *Server) Run() error {
	addr := fmt.Sprintf(":%s", s.cfg.Port)
	return s.engine.Run(addr)
}

package application

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/medialens/analysis-service/internal/ai"
	"github.com/medialens/analysis-service/internal/config"
	"github.com/medialens/analysis-service/internal/dashboard"
	"github.com/medialens/analysis-service/internal/database"
	"github.com/medialens/analysis-service/internal/handler"
	"github.com/medialens/analysis-service/internal/media"
	"github.com/medialens/analysis-service/internal/router"
	"github.com/medialens/analysis-service/internal/store"
	"github.com/medialens/analysis-service/internal/stream"
	"github.com/medialens/analysis-service/internal/vision"
	"go.uber.org/zap"
	"gorm.io/gorm"

	queryservice "github.com/medialens/analysis-service/internal/query"
)

// API is the HTTP + WebSocket API application.
type API struct {
	cfg        *config.Config
	srv        *http.Server
	db         *gorm.DB
	hub        *stream.Hub
	mgr        *stream.Manager
	aggregator *media.Aggregator
}

// NewAPI creates the API application: validates config, runs migrations,
// opens the database and wires every collaborator together.
func NewAPI(cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	logger, _ := zap.NewProduction()
	if cfg.AppEnv == "development" {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	st := store.New(db)
	hub := stream.NewHub(cfg.WSReadBufferSize, cfg.WSWriteBufferSize, logger)

	var annotator vision.Annotator
	visionUp := cfg.VisionAPIKey != ""
	if visionUp {
		annotator = vision.NewClient(cfg.VisionEndpoint, cfg.VisionAPIKey, logger)
	} else {
		log.Printf("warning: VISION_API_KEY not set, frame analysis disabled")
		annotator = vision.Disabled{}
	}

	var gen ai.Generator
	if cfg.OpenAIAPIKey != "" {
		gen = ai.NewClient(cfg.OpenAIEndpoint, cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIMaxTok, logger)
	} else {
		log.Printf("warning: OPENAI_API_KEY not set, AI enrichment disabled")
	}

	aggregator := media.NewAggregator(st, logger)
	mgr := stream.NewManager(stream.ManagerConfig{
		Store:            st,
		Hub:              hub,
		Annotator:        annotator,
		Generator:        gen,
		URLs:             cfg,
		SamplingInterval: cfg.SamplingInterval,
		FrameRate:        cfg.FrameRate,
		Prepare: func(frame []byte) ([]byte, error) {
			return media.PrepareFrame(frame, cfg.MaxFrameEdge)
		},
		VisionConfigured: visionUp,
		Log:              logger,
	}, aggregator)

	mediaSvc := media.NewService(st, annotator, gen, media.NewExtractor(logger), media.Config{
		UploadDir:        cfg.UploadDir,
		SamplingInterval: cfg.SamplingInterval,
		MaxFrameEdge:     cfg.MaxFrameEdge,
		FrameRate:        cfg.FrameRate,
	}, logger)
	querySvc := queryservice.NewService(st, gen, logger)
	dashSvc := dashboard.NewService(st, logger)

	mediaHandler := handler.NewMediaHandler(mediaSvc)
	streamHandler := handler.NewStreamHandler(mgr)
	queryHandler := handler.NewQueryHandler(querySvc)
	dashboardHandler := handler.NewDashboardHandler(dashSvc)
	streamWS := handler.NewStreamWSHandler(hub, logger)
	health := handler.NewHealthHandler()

	r := router.New(mediaHandler, streamHandler, queryHandler, dashboardHandler, streamWS, health)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &API{cfg: cfg, srv: srv, db: db, hub: hub, mgr: mgr, aggregator: aggregator}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled; then
// stops live streams, drains the aggregator and shuts down gracefully.
func (a *API) Run(ctx context.Context) error {
	addr := a.srv.Addr
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	log.Printf("HTTP server listening on %s", addr)
	log.Printf("  Health:        %s/health", base)
	log.Printf("  Media API:     %s/api/media", base)
	log.Printf("  Stream API:    %s/api/stream", base)
	log.Printf("  Query API:     %s/api/query", base)
	log.Printf("  Dashboard API: %s/api/dashboard", base)
	log.Printf("  Ingest WS:     ws://%s:%s/ws/ingest/:stream_key", host, a.cfg.HTTPPort)
	log.Printf("  Playback WS:   ws://%s:%s/ws/live/:stream_key", host, a.cfg.HTTPPort)

	go func() {
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	a.mgr.StopAll(shutdownCtx)
	a.aggregator.Close()

	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

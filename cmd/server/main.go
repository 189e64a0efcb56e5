package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/hamori-app/hamori/internal/config"
	"github.com/hamori-app/hamori/internal/middleware"
	"github.com/hamori-app/hamori/internal/openai"
	"github.com/hamori-app/hamori/internal/places"
	"github.com/hamori-app/hamori/internal/presence"
	"github.com/hamori-app/hamori/internal/readiness"
	"github.com/hamori-app/hamori/internal/recommend"
	"github.com/hamori-app/hamori/internal/service"
	"github.com/hamori-app/hamori/internal/storage/sqlite"
	"github.com/hamori-app/hamori/internal/voice"
	"github.com/hamori-app/hamori/pkg/api"
	"github.com/hamori-app/hamori/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logging.Setup(cfg.Logging.Level)

	// Initialize SQLite storage
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.Database.Path)

	// External providers
	ai := openai.New(openai.Config{
		APIKey:             cfg.OpenAI.APIKey,
		BaseURL:            cfg.OpenAI.BaseURL,
		TranscriptionModel: cfg.OpenAI.TranscriptionModel,
		Language:           cfg.OpenAI.Language,
		Timeout:            cfg.OpenAI.Timeout,
	}, nil)
	if !ai.Configured() {
		slog.Warn("OpenAI API key not set, transcription disabled and keyword generation falls back to tag labels")
	}

	maps := places.New(places.Config{
		APIKey:     cfg.Places.APIKey,
		BaseURL:    cfg.Places.BaseURL,
		Language:   cfg.Places.Language,
		RatePerSec: cfg.Places.RatePerSec,
		Burst:      cfg.Places.Burst,
		Timeout:    cfg.Places.Timeout,
	}, nil)
	if cfg.Places.APIKey == "" {
		slog.Warn("Places API key not set, searches return demo restaurants")
	}

	mux := http.NewServeMux()

	source, closePresence, err := presenceSource(cfg, mux)
	if err != nil {
		slog.Error("Failed to initialize presence", "mode", cfg.Presence.Mode, "error", err)
		os.Exit(1)
	}
	defer closePresence()

	// Register Connect services
	opts := connect.WithInterceptors(
		middleware.RequestIDInterceptor(),
		middleware.LoggingInterceptor(),
		middleware.ValidationInterceptor(),
	)

	groupPath, groupHandler := api.NewGroupServiceHandler(service.NewGroupService(store), opts)
	mux.Handle(groupPath, groupHandler)

	readinessSvc := service.NewReadinessService(store, source, readiness.Config{
		CountdownFrom: cfg.Readiness.CountdownFrom,
		CountdownTick: cfg.Readiness.CountdownTick,
	})
	defer readinessSvc.Shutdown()
	readinessPath, readinessHandler := api.NewReadinessServiceHandler(readinessSvc, opts)
	mux.Handle(readinessPath, readinessHandler)

	recommendSvc := service.NewRecommendService(
		store,
		voice.NewPipeline(ai, ai.Completer(cfg.OpenAI.TagModel, true)),
		recommend.NewEngine(ai.Completer(cfg.OpenAI.QueryModel, false), maps, cfg.Places.RadiusMeters),
		maps,
		places.DirectionsURL,
	)
	recommendPath, recommendHandler := api.NewRecommendServiceHandler(recommendSvc, opts)
	mux.Handle(recommendPath, recommendHandler)

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Add logging and CORS middleware
	loggedHandler := loggingMiddleware(corsMiddleware(mux))

	// Wrap with h2c for HTTP/2 without TLS (required for Connect)
	h2cHandler := h2c.NewHandler(loggedHandler, &http2.Server{})

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h2cHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Connect server starting", "address", server.Addr, "presence", cfg.Presence.Mode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
}

// presenceSource builds the peer presence source for the configured mode.
// The WebSocket hub is mounted on mux at /presence.
func presenceSource(cfg *config.Config, mux *http.ServeMux) (readiness.PeerPresenceSource, func(), error) {
	switch cfg.Presence.Mode {
	case config.PresenceWebSocket:
		hub := presence.NewHub()
		mux.Handle("/presence", hub)
		return hub, func() {}, nil

	case config.PresenceMQTT:
		client, err := presence.DialMQTT(cfg.Presence.MQTTBroker, "hamori-"+uuid.NewString())
		if err != nil {
			return nil, nil, err
		}
		return presence.NewMQTT(client, cfg.Presence.MQTTTopicRoot), func() { client.Disconnect(250) }, nil

	default:
		seed := cfg.Presence.Seed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		slog.Info("Using simulated presence", "seed", seed)
		return presence.NewSimulated(cfg.Presence.PeerInterval, cfg.Presence.NotifyLatency, seed), func() {}, nil
	}
}

// loggingMiddleware logs all incoming requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		slog.Debug("Request received",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)

		next.ServeHTTP(w, r)

		slog.Debug("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// corsMiddleware adds CORS headers for browser access
func corsMiddleware(next http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Connect-Protocol-Version", "Connect-Timeout-Ms", middleware.RequestIDHeader},
		ExposedHeaders: []string{"Connect-Protocol-Version", "Connect-Timeout-Ms", middleware.RequestIDHeader},
	})
	return c.Handler(next)
}

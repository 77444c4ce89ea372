// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/prompting-realities/backend/internal/config"
	"github.com/prompting-realities/backend/internal/handler"
	"github.com/prompting-realities/backend/internal/middleware"
	"github.com/prompting-realities/backend/internal/mqtt"
	natsclient "github.com/prompting-realities/backend/internal/nats"
	"github.com/prompting-realities/backend/internal/presence"
	"github.com/prompting-realities/backend/internal/secrets"
	"github.com/prompting-realities/backend/internal/service"
	"github.com/prompting-realities/backend/internal/store"
	"github.com/prompting-realities/backend/pkg/logger"
	"github.com/prompting-realities/backend/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting API server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "prompting-realities", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Error("failed to open database", zap.Error(err))
		os.Exit(1)
	}
	defer st.Close()

	box, err := secrets.NewBox(cfg.EncryptionSecret)
	if err != nil {
		log.Error("failed to initialize secrets", zap.Error(err))
		os.Exit(1)
	}

	// The presence relay is optional. Without it the queue still works,
	// scoped to this instance.
	var nc *natsclient.Client
	var relay presence.Relay
	if cfg.NATSURL != "" {
		nc, err = natsclient.Connect(natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Warn("presence relay unavailable, running single-instance", zap.Error(err))
		} else {
			defer nc.Close()
			relay = natsclient.NewRelay(nc)
		}
	}

	origin := uuid.NewString()
	tracker, err := presence.NewTracker(relay, origin, cfg.PresenceLivenessTimeout, log)
	if err != nil {
		log.Error("failed to initialize presence tracker", zap.Error(err))
		os.Exit(1)
	}
	defer tracker.Close()
	go tracker.Run(ctx)

	publisher := mqtt.NewPublisher(cfg.MQTTTimeout, "prompting-realities-"+origin[:8], log)

	assistantSvc := service.NewAssistantService(st, box, log)
	sessionSvc := service.NewSessionService(st, publisher, log)
	threadSvc := service.NewThreadService(st, log)
	turnSvc := service.NewTurnService(st, threadSvc, publisher, box, nil, cfg.ModelTimeout, log)
	exportSvc := service.NewExportService(st, log)

	healthHandler := handler.NewHealthHandler(st, nc)
	assistantHandler := handler.NewAssistantHandler(assistantSvc, sessionSvc, log)
	sessionHandler := handler.NewSessionHandler(sessionSvc, threadSvc, turnSvc, log)
	presenceHandler := handler.NewPresenceHandler(sessionSvc, tracker, log)
	opsHandler := handler.NewOpsHandler(sessionSvc, log)
	exportHandler := handler.NewExportHandler(exportSvc, log)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Device-ID", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Owner surface: requires a bearer token.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTSecret))
			r.Use(middleware.LimitBody(middleware.MaxBodyBytes))

			r.Route("/assistants", func(r chi.Router) {
				r.Get("/", assistantHandler.List)
				r.Post("/", assistantHandler.Create)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", assistantHandler.Get)
					r.Put("/", assistantHandler.Update)
					r.Patch("/", assistantHandler.Update)
					r.Delete("/", assistantHandler.Delete)
					r.Get("/messages", assistantHandler.Messages)
					r.Get("/mqtt-log", assistantHandler.MQTTLog)
					r.Post("/sessions", assistantHandler.StartSession)
				})
			})

			r.Post("/ops/mqtt/test", opsHandler.TestBroker)
			r.Post("/ops/mqtt/publish", opsHandler.Publish)
			r.Get("/export", exportHandler.Export)
		})

		// Session surface: owner token or share token, guests welcome.
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWTSecret))

			r.Group(func(r chi.Router) {
				r.Use(middleware.LimitBody(middleware.MaxBodyBytes))
				r.Get("/", sessionHandler.Get)
				r.Post("/stop", sessionHandler.Stop)
				r.Post("/reset", sessionHandler.Reset)
				r.Get("/messages", sessionHandler.Messages)
				r.Post("/messages", sessionHandler.Send)
				r.Post("/reaction", sessionHandler.Reaction)
				r.Get("/mqtt-log", sessionHandler.MQTTLog)
				r.Get("/presence", presenceHandler.Stream)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.LimitBody(middleware.MaxAudioBytes))
				r.Post("/transcribe", sessionHandler.Transcribe)
			})
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

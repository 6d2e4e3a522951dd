// Inquiry Tutor - step-by-step science inquiry assistant server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/peaklee4u/inquirytutor/internal/api"
	"github.com/peaklee4u/inquirytutor/internal/chatlog"
	"github.com/peaklee4u/inquirytutor/internal/config"
	"github.com/peaklee4u/inquirytutor/internal/healthsrv"
	"github.com/peaklee4u/inquirytutor/internal/llm"
	"github.com/peaklee4u/inquirytutor/internal/middleware"
	"github.com/peaklee4u/inquirytutor/internal/session"
	"github.com/peaklee4u/inquirytutor/internal/store"
	"github.com/peaklee4u/inquirytutor/internal/tutor"
	"github.com/peaklee4u/inquirytutor/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "profile", cfg.Profile)

	// Initialize dependencies.
	repo, err := store.Open(cfg.DB.Driver, cfg.DB.DataSource())
	if err != nil {
		slog.Error("Failed to initialize database", "driver", cfg.DB.Driver, "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "driver", cfg.DB.Driver)

	profile, err := tutor.LookupProfile(cfg.Profile)
	if err != nil {
		slog.Error("Failed to select assistant profile", "error", err)
		os.Exit(1)
	}
	profile, err = profile.WithPromptFiles(cfg.SystemPromptPath, cfg.SummaryPromptPath)
	if err != nil {
		slog.Error("Failed to load prompt files", "error", err)
		os.Exit(1)
	}

	if cfg.OpenAI.APIKey == "" {
		slog.Warn("OPENAI_API_KEY is not set, chat requests will fail")
	}
	client := llm.NewOpenAI(llm.OpenAIConfig{
		APIKey:   cfg.OpenAI.APIKey,
		BaseURL:  cfg.OpenAI.BaseURL,
		Model:    cfg.OpenAI.Model,
		Timeout:  cfg.OpenAI.Timeout,
		Referrer: cfg.OpenRouter.Referrer,
		Title:    cfg.OpenRouter.Title,
	})
	tutorService := tutor.NewService(client, profile, cfg.DocumentContextLimit, logger)

	conversationLogger, err := chatlog.New(chatlog.Config{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Warn("Failed to close conversation logger", "error", closeErr)
		}
	}()

	pages, err := web.LoadPages()
	if err != nil {
		slog.Error("Failed to load page templates", "error", err)
		os.Exit(1)
	}

	sessions := session.NewManager(session.Options{ChatPerMinute: cfg.ChatRatePerMinute})

	handler := api.NewHandler(tutorService, repo, pages, conversationLogger, api.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		AllowedOrigin:  cfg.FrontendURL,
		IsDev:          cfg.IsDevelopment(),
	})

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(middleware.AllowedOrigins(cfg.FrontendURL)))

	// Static assets do not need a session.
	r.Handle("/static/*", web.StaticHandler())

	r.Group(func(r chi.Router) {
		r.Use(session.Middleware(sessions, cfg.Session.CookieName, cfg.Session.TTL, cfg.IsDevelopment()))
		handler.RegisterRoutes(r)
	})

	// Create server.
	// WriteTimeout must cover a full chat completion.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.OpenAI.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start session sweeper.
	session.StartSweeper(ctx, sessions, cfg.Session.SweepInterval, cfg.Session.TTL)

	// Optional gRPC health endpoint.
	if cfg.HealthGRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.HealthGRPCAddr)
		if err != nil {
			slog.Error("Failed to listen for gRPC health", "addr", cfg.HealthGRPCAddr, "error", err)
			os.Exit(1)
		}
		healthServer := healthsrv.New(repo, 0, logger)
		go func() {
			if err := healthServer.Serve(ctx, lis); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

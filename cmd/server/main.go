// RIATA - voice onboarding session server
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
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ashureev/riata-onboarding/internal/api"
	"github.com/ashureev/riata-onboarding/internal/config"
	"github.com/ashureev/riata-onboarding/internal/events"
	"github.com/ashureev/riata-onboarding/internal/identity"
	"github.com/ashureev/riata-onboarding/internal/mcptool"
	"github.com/ashureev/riata-onboarding/internal/middleware"
	"github.com/ashureev/riata-onboarding/internal/session"
	"github.com/ashureev/riata-onboarding/internal/store"
	"github.com/ashureev/riata-onboarding/internal/telemetry"
	"github.com/ashureev/riata-onboarding/internal/voice"
	"github.com/ashureev/riata-onboarding/internal/voice/elevenlabs"
	"github.com/ashureev/riata-onboarding/internal/voice/relay"
	"github.com/ashureev/riata-onboarding/web"
)

const version = "0.1.0"

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

	if err := run(cfg, logger); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

//nolint:funlen // Startup wiring is intentionally sequential to keep dependency setup explicit.
func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "voice_mode", cfg.Voice.Mode)

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		ServiceName:  cfg.Telemetry.ServiceName,
		Version:      version,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		Insecure:     cfg.Telemetry.Insecure,
		SampleRatio:  cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("Failed to flush traces", "error", err)
		}
	}()

	persona, err := config.LoadPersona(cfg.PersonaFile)
	if err != nil {
		return err
	}

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	if err := repo.Ping(ctx); err != nil {
		return err
	}
	slog.Info("Database connected")

	var bus events.Bus
	if cfg.Events.RedisAddr != "" {
		bus, err = events.NewRedisBus(ctx, cfg.Events.RedisAddr, cfg.Events.RedisChannel, logger)
		if err != nil {
			slog.Warn("Redis unavailable, events stay on this instance", "error", err)
			bus = nil
		}
	}
	broker := events.NewBroker(cfg.Events.QueueSize, bus, logger)
	if err := broker.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := broker.Close(); err != nil {
			slog.Warn("Failed to close event broker", "error", err)
		}
	}()

	// Voice platform.
	el := elevenlabs.NewClient(elevenlabs.Config{APIKey: cfg.Voice.APIKey})
	var (
		factory  session.CollaboratorFactory
		relayMgr *relay.Manager
	)
	switch cfg.Voice.Mode {
	case config.ModeDirect:
		factory = func(string, string) voice.Collaborator { return el.NewConversation() }
	default:
		var signURL relay.SignURLFunc
		if el.HasAPIKey() {
			signURL = el.SignedURL
		}
		relayMgr = relay.NewManager(signURL)
		factory = func(userID, tabID string) voice.Collaborator { return relayMgr.Collaborator(userID, tabID) }
	}

	reg := session.NewRegistry(factory, session.Options{
		Voice: voice.Options{
			AgentID:        cfg.Voice.AgentID,
			ConnectionType: cfg.Voice.ConnectionType,
		},
		Persona:     persona,
		Publisher:   broker,
		Logger:      logger,
		EchoWindow:  cfg.Voice.EchoWindow,
		OpenTimeout: cfg.Voice.OpenTimeout,
	})
	if relayMgr != nil {
		reg.OnUserClosed(relayMgr.CloseUser)
	}

	// Initialize handlers.
	base := api.NewHandler(reg, broker, repo, api.ClientConfig{
		AgentID:        cfg.Voice.AgentID,
		ConnectionType: cfg.Voice.ConnectionType,
		VoiceMode:      cfg.Voice.Mode,
		TextInput:      true,
	}, events.StreamConfig{
		RetryDelay:        cfg.Events.RetryDelay,
		KeepaliveInterval: cfg.Events.KeepaliveEach,
	})
	sessionHandler := api.NewSessionHandler(base)
	healthHandler := api.NewHealthHandler(base)

	limiter := middleware.NewRateLimiter(cfg.ToolRate.PerSecond, cfg.ToolRate.Burst, 10*time.Minute)
	go limiter.Run(ctx)
	toolHandler := api.NewToolHandler(base, limiter)

	mcpServer := mcptool.NewServer(reg, version)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowedOrigins(cfg), identity.SessionHeaderName))

	// Platform-facing routes carry no visitor identity.
	healthHandler.RegisterHealth(r)
	toolHandler.RegisterRoutes(r)
	r.Handle("/mcp", mcptool.Handler(mcpServer))

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))
		sessionHandler.RegisterRoutes(r)
		if relayMgr != nil {
			r.Get("/ws/relay", relay.NewHandler(relayMgr, repo, cfg.FrontendURL, cfg.IsDevelopment()).ServeHTTP)
		}
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Note: SSE connections require long timeouts (no WriteTimeout)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(r, "riata-http"),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	session.StartSweeper(ctx, repo, reg, session.DefaultSweepInterval, cfg.SessionTTL)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.GRPCPort != "" {
		g.Go(func() error {
			lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
			if err != nil {
				return err
			}
			slog.Info("gRPC health listening", "addr", lis.Addr().String())
			return grpcServer.Serve(lis)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		reg.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.IsDevelopment() || cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}

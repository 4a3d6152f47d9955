package main

import (
	"chat-signal/auth"
	"chat-signal/contract"
	"chat-signal/infrastructure/websocket/server"
	"chat-signal/internal"
	"chat-signal/observability"
	"chat-signal/runtime"
	"chat-signal/runtime/workers"
	"chat-signal/sink"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// Returning instead of exiting lets every defer run before the process ends.
func run() (int, error) {
	// 1. Configuration & Logger
	// A missing .env file is fine, the environment wins anyway
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Optional features
	var censor contract.Censor
	if config.ModerationEnabled {
		charReplacement, err := internal.CharacterRune(config.CharReplacement)
		if err != nil {
			return exitConfig, err
		}
		if censor, err = runtime.PrepareModeration(log, charReplacement); err != nil {
			return exitConfig, fmt.Errorf("moderation setup failed: %w", err)
		}
	}
	var verifier *auth.TokenVerifier
	if config.JWTSecret != "" {
		verifier = auth.NewTokenVerifier(config.JWTSecret)
		log.Info("Token binding enabled")
	}

	// 3. Setup Supervision & Orchestration
	monitoring := observability.NewMonitoringManager(log)
	registry := runtime.NewRegistry()
	orchestrator := runtime.NewOrchestrator(
		log,
		workers.NewSupervisor(log, config.RestartInterval),
		registry,
		runtime.NewRouter(log, censor),
		runtime.NewDispatcher(log, config.DeliveryTimeout),
		monitoring,
	).Add(workers.NewHealthMonitoringWorker(log, registry, monitoring, config.MetricInterval))

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Start the Engine
	go func() {
		if err := orchestrator.Start(ctx); err != nil {
			log.Error("Orchestrator failed", "error", err)
		}
	}()

	// 6. HTTP Server Setup
	signalServer := server.NewSignalServer(log, orchestrator, monitoring, verifier, server.Options{
		ConnectionBufferSize: config.ConnectionBufferSize,
		OverflowPolicy:       sink.OverflowPolicy(config.OverflowPolicy),
		WriteWait:            config.WriteWait,
		PongWait:             config.PongWait,
		MaxMessageSize:       config.MaxMessageSize,
		AllowedOrigins:       config.Origins(),
	})
	httpServer := &http.Server{
		Addr:              config.Address(),
		Handler:           signalServer.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Use an error channel to capture ListenAndServe() issues
	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting signaling server", "address", httpServer.Addr, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 8. Final Cleanup
	// Hijacked sockets are not tracked by Shutdown, the orchestrator closes them
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown incomplete", "error", err)
	}
	orchestrator.Stop()
	if err := orchestrator.WaitDrained(shutdownCtx); err != nil {
		log.Warn("Connections not drained before exit", "error", err)
	}
	log.Info("Program stopped cleanly")

	return code, runErr
}

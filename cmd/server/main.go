package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campus-chat/ai"
	"campus-chat/auth"
	"campus-chat/contract"
	"campus-chat/domain/event"
	"campus-chat/infrastructure/grpc/server"
	"campus-chat/infrastructure/queue"
	"campus-chat/infrastructure/realtime"
	"campus-chat/infrastructure/storage"
	"campus-chat/internal"
	"campus-chat/runtime"
	"campus-chat/runtime/workers"
	"campus-chat/services"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
)

// Exit codes reported to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal or a fatal error.
// Deferred closes run before the exit code reaches main.
func run() (int, error) {
	// 1. Configuration & Logger
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return exitConfig, fmt.Errorf("reading .env: %w", err)
	}
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	runtimeConfig, err := config.Runtime()
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Storage (BadgerDB + Bluge)
	db, err := badger.Open(storage.BadgerOptions(ctx, config.BadgerFilepath, logger))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
		database.StartDebugServer(db, config.DebugPort, endpoint, storage.InspectMapper)
	}

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	// 3. Notification queue
	notificationQueue, err := buildQueue(config, logger)
	if err != nil {
		return exitRuntime, err
	}
	defer func() { _ = notificationQueue.Close() }()

	// 4. Supervision & Orchestration
	telemetryChan := make(chan event.Event, config.BufferSize)
	sup := workers.NewSupervisor(logger, telemetryChan, config.RestartInterval)
	orchestrator := runtime.NewOrchestrator(
		logger, runtimeConfig, sup, runtime.NewRegistry(),
		storage.NewRepositories(db, logger, config.HistoryLimit),
		storage.NewSearchIndex(blugeWriter, logger),
		ai.NewDefaultScorer(),
		notificationQueue,
		telemetryChan,
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	errChan := make(chan error, 3)

	go func() {
		logger.Info("Starting orchestrator...")
		if err := orchestrator.Start(ctx); err != nil {
			errChan <- fmt.Errorf("orchestrator error: %w", err)
		}
	}()

	tokens := auth.NewTokenIssuer(config.JWTSecret, config.JWTIssuer)
	chatService := services.NewChatService(logger, orchestrator, config.ConnectionBufferSize, config.DeliveryTimeout)

	// 5. gRPC
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	grpcServer := server.NewGRPCServer(logger, tokens, server.NewChatServer(logger, chatService, config.ConnectionBufferSize))
	go func() {
		logger.Info("Starting gRPC server", "address", address, "at", time.Now().UTC())
		for serviceName := range grpcServer.GetServiceInfo() {
			logger.Debug("gRPC exposed service", "name", serviceName)
		}
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 6. Websocket
	wsServer := &http.Server{
		Addr: fmt.Sprintf("%s:%d", config.Host, config.WebsocketPort),
		Handler: realtime.NewServer(logger, chatService, tokens, realtime.Config{
			BufferSize:  config.ConnectionBufferSize,
			ReadTimeout: config.ReadTimeout,
			WriteWait:   config.WriteWait,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Starting websocket server", "address", wsServer.Addr, "path", realtime.Path)
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("websocket server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 8. Graceful shutdown
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = wsServer.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
	orchestrator.Stop()
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

// buildQueue uses Redis through asynq when REDIS_URL is set, and logs the
// notification tasks otherwise.
func buildQueue(config internal.Config, logger *slog.Logger) (contract.NotificationQueue, error) {
	if config.RedisURL == "" {
		logger.Warn("REDIS_URL is empty, notification tasks are only logged")
		return queue.NewLogQueue(logger, 1000), nil
	}
	q, err := queue.NewAsynqQueue(config.RedisURL, logger)
	if err != nil {
		return nil, fmt.Errorf("notification queue: %w", err)
	}
	return q, nil
}

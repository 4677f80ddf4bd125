package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"salon-chat/auth"
	"salon-chat/httpapi"
	"salon-chat/internal"
	"salon-chat/moderation"
	"salon-chat/observability"
	"salon-chat/repositories"
	"salon-chat/services"
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
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting, so 'defer' cleanups (database close, index
// flush) execute before the process exits.
func run() (int, error) {
	// 1. Configuration & logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	logger := internal.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Full-text index (Bluge)
	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	// 4. Moderation (optional, driven by the configured word list)
	var filter services.ContentFilter
	if words := config.CensoredWordList(); len(words) > 0 {
		mask, err := config.CensorRune()
		if err != nil {
			return exitConfig, err
		}
		censor, err := moderation.NewCensor(words, mask)
		if err != nil {
			return exitConfig, fmt.Errorf("moderation setup failed: %w", err)
		}
		filter = censor
		logger.Info("Moderation enabled", "words", len(words))
	}

	// 5. Repositories & service
	messageRepository := repositories.NewMessageRepository(db, logger, config.StorageRetryAttempts, config.StorageRetryDelay)
	conversationRepository := repositories.NewConversationRepository(db, logger)
	searchIndex := repositories.NewSearchIndex(blugeWriter, logger)
	messageService := services.NewMessageService(
		messageRepository, searchIndex, conversationRepository,
		filter, logger, config.MaxContentLength, config.SearchLimit,
	)

	monitor, err := observability.NewMonitor(logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("monitor setup failed: %w", err)
	}
	go monitor.Run(ctx, config.StatsInterval)

	// 6. HTTP server
	tokens := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration)
	handler := httpapi.NewHandler(messageService, conversationRepository, monitor, logger, config.RequestTimeout)
	router := httpapi.NewRouter(handler, tokens)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: router}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for stop or error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 8. Graceful shutdown, letting in-flight requests finish
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Forced shutdown", "error", err)
	}
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}
	return options
}

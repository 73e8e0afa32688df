package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"cipher-scan/internal/cfg"
	"cipher-scan/internal/common"
	"cipher-scan/internal/metrics"
	"cipher-scan/internal/ml"
	"cipher-scan/internal/scan"
	"cipher-scan/internal/server"
	"cipher-scan/internal/storage"

	"github.com/rs/zerolog/log"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	logFile, err := common.SetupLogging(common.LogOptions{
		Level:  c.LogLevel,
		Format: c.LogFormat,
		File:   c.LogFile,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("logging setup failed")
	}
	defer logFile.Close()

	// Initialize components
	m := metrics.New()
	mw := metrics.NewWrapper(m)
	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	// A failed load leaves the engine unavailable; the server still starts
	// so /health can report it.
	engine := ml.Load(ml.Config{
		ModelPath:  c.ModelPath,
		Labels:     c.Labels,
		PythonPath: c.PythonPath,
		Timeout:    c.InferenceTimeout,
	}, mw)
	defer engine.Close()

	svc, err := scan.New(engine, scan.Options{
		IncludeTopK:   c.IncludeTopK,
		TopK:          c.TopK,
		MaxInputBytes: c.MaxInputBytes,
		CacheSize:     c.CacheSize,
	}, mw, recorder(store))
	if err != nil {
		log.Fatal().Err(err).Msg("prediction service init failed")
	}

	srv := server.New(svc, server.Options{
		Addr:           c.Addr(),
		AllowedOrigins: c.AllowedOrigins(),
		RequestTimeout: c.InferenceTimeout + c.InferenceTimeout/2,
		History:        history(store),
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info().
		Str("addr", c.Addr()).
		Str("environment", c.Environment).
		Bool("model_loaded", engine.Available()).
		Bool("storage", store != nil).
		Msg("cipher scan service started")

	waitForShutdown(srv, c, errCh)
}

// initializeStorage initializes storage if DATA_PATH is configured
func initializeStorage(c cfg.Settings) *storage.Store {
	if !c.StorageEnabled() {
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without persistence")
		return nil
	}
	return store
}

// recorder avoids handing the service a typed nil.
func recorder(store *storage.Store) scan.Recorder {
	if store == nil {
		return nil
	}
	return store
}

func history(store *storage.Store) server.History {
	if store == nil {
		return nil
	}
	return store
}

// waitForShutdown waits for shutdown signals and handles graceful shutdown
func waitForShutdown(srv *server.Server, c cfg.Settings, errCh <-chan error) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("server failed")
	}

	log.Info().Msg("shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("shutdown timeout, forcing exit")
		return
	}
	log.Info().Msg("server stopped")
}

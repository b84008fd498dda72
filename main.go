package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"imgbatch/api"
	"imgbatch/config"
	"imgbatch/convert"
	"imgbatch/scan"
	"imgbatch/task"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, keeping info")
	}

	defaults, err := convert.ParseOptions(cfg.DefaultOptions)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid DEFAULT_OPTIONS")
	}

	conv := convert.NewImage(cfg.JPEGQuality, cfg.MaxInputSize)

	var guard task.Guard
	if cfg.ThrottleCPU > 0 || cfg.ThrottleMem > 0 || cfg.ThrottleDisk > 0 {
		guard = &convert.Guard{
			MaxCPUPercent: cfg.ThrottleCPU,
			MinFreeMemory: cfg.ThrottleMem,
			MinFreeDisk:   cfg.ThrottleDisk,
			Path:          ".",
		}
	}

	batch := task.NewBatch(conv, task.Options{
		MaxWorkers:   cfg.MaxWorkers,
		PollInterval: cfg.PollInterval,
		Expand:       expandFolder,
		Guard:        guard,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	batch.SetBaseContext(ctx)

	router := api.SetupRouter(batch, conv, cfg, defaults)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen failed")
		}
	}()

	<-ctx.Done()
	stop()
	log.Info().Msg("shutting down gracefully, press Ctrl+C again to force")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exiting")
}

// expandFolder maps a folder submission onto the filesystem walker. An empty
// outputFormat keeps each file's own extension.
func expandFolder(inputFolder, outputFolder, outputFormat string, recursive bool) ([]task.FilePair, error) {
	outputExt := ""
	if outputFormat != "" {
		ext, ok := convert.OutputExtension(outputFormat)
		if !ok {
			return nil, fmt.Errorf("unsupported output format: %s", outputFormat)
		}
		outputExt = ext
	}

	entries, err := scan.Walk(inputFolder, outputFolder, outputExt, recursive, convert.InputExtensions())
	if err != nil {
		return nil, err
	}

	pairs := make([]task.FilePair, 0, len(entries))
	for _, e := range entries {
		pairs = append(pairs, task.FilePair{Input: e.Input, Output: e.Output})
	}
	return pairs, nil
}

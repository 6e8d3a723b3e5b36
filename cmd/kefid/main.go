// Command kefid is the kefi-notetaker backend process: it wires together
// the note store, note index, note service, transcriber and job engine,
// then serves the thin HTTP admission surface.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/miche1696/kefi-notetaker/internal/httpapi"
	"github.com/miche1696/kefi-notetaker/internal/jobengine"
	"github.com/miche1696/kefi-notetaker/internal/kfsettings"
	"github.com/miche1696/kefi-notetaker/internal/noteindex"
	"github.com/miche1696/kefi-notetaker/internal/noteservice"
	"github.com/miche1696/kefi-notetaker/internal/notestore"
	"github.com/miche1696/kefi-notetaker/internal/transcriber"
)

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "kefid").Logger()

	if env("ENV", "") == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	dataDir := env("KEFI_DATA_DIR", "./data")
	notesDir := filepath.Join(dataDir, "notes")
	uploadsDir := filepath.Join(dataDir, "uploads")
	settingsPath := filepath.Join(dataDir, "settings.json")
	indexPath := filepath.Join(dataDir, "index.json")
	snapshotPath := filepath.Join(dataDir, "jobs.snapshot.json")
	eventsPath := filepath.Join(dataDir, "jobs.events.jsonl")

	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		if err := kfsettings.Save(settingsPath, kfsettings.Defaults()); err != nil {
			log.Fatal().Err(err).Msg("failed to write default settings")
		}
	}

	store, err := notestore.New(notesDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open note store")
	}

	index, err := noteindex.Open(indexPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open note index")
	}

	notes := noteservice.New(store, index)

	var engine jobengine.Transcriber
	if binary := env("WHISPER_CPP_BIN", ""); binary != "" {
		engine = &transcriber.WhisperCPP{
			BinaryPath: binary,
			ModelPath:  env("WHISPER_CPP_MODEL", ""),
			Language:   env("WHISPER_CPP_LANG", ""),
			Timeout:    2 * time.Minute,
		}
		log.Info().Str("binary", binary).Msg("using whisper.cpp transcriber")
	} else {
		engine = &transcriber.Fake{}
		log.Warn().Msg("WHISPER_CPP_BIN not set, falling back to the fake transcriber")
	}

	jobs := jobengine.New(jobengine.Options{
		Notes:        notes,
		Transcriber:  engine,
		SettingsPath: settingsPath,
		SnapshotPath: snapshotPath,
		EventsPath:   eventsPath,
		WorkerSlots:  8,
		IsTransient:  transcriber.IsTransient,
	})

	srv := &httpapi.Server{
		Jobs:      jobs,
		Notes:     notes,
		UploadDir: uploadsDir,
	}

	httpAddr := env("HTTP_ADDR", ":8080")
	httpServer := &http.Server{
		Addr:         httpAddr,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", httpAddr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if err := jobs.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("job engine shutdown error")
	}

	log.Info().Msg("server stopped")
}

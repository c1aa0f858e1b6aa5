package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sjawhar/ghost-interviewer/internal/api"
	"github.com/sjawhar/ghost-interviewer/internal/config"
	"github.com/sjawhar/ghost-interviewer/internal/gdrive"
	"github.com/sjawhar/ghost-interviewer/internal/interview"
	"github.com/sjawhar/ghost-interviewer/internal/llm"
	"github.com/sjawhar/ghost-interviewer/internal/storage"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: load .env: %v", err)
	}

	configPath := flag.String("config", envOrDefault(config.EnvPrefix+"CONFIG", "config.yaml"), "path to config file")
	flag.Parse()

	log.Println("ghost-interviewer-api: starting")

	cfg, warnings, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	for _, w := range warnings {
		log.Printf("warning: %s", w)
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var assessor interview.Assessor
	if key := cfg.LLMAPIKey(); key != "" {
		provider, model, err := llm.ParseModel(cfg.LLMModel)
		if err != nil {
			log.Printf("warning: feedback generation disabled: %v", err)
		} else if client, err := llm.NewClient(provider, key, model, llm.WithJSON()); err != nil {
			log.Printf("warning: feedback generation disabled: %v", err)
		} else {
			assessor = interview.NewGenerator(client)
			log.Printf("feedback generation via %s", cfg.LLMModel)
		}
	}

	local := storage.NewTranscriptWriter(cfg.TranscriptDir)
	var archive interview.Archive = local

	if cfg.GDriveFolderID != "" {
		syncer, syncErr := gdrive.NewSyncer(ctx, cfg.GoogleCredentialsFile, cfg.GDriveFolderID)
		if syncErr != nil {
			log.Printf("warning: gdrive sync disabled: %v", syncErr)
		} else {
			archive = gdrive.NewArchive(local, syncer)
			snapshotPath := filepath.Join(filepath.Dir(cfg.DBPath), "backup", "ghost-interviewer.db")
			go gdrive.RunBackups(ctx, cfg.ParsedBackupInterval(), store, syncer, snapshotPath)
			log.Printf("gdrive sync enabled, backups every %s", cfg.ParsedBackupInterval())
		}
	}

	svc := interview.NewService(store, assessor, archive)

	httpServer := &http.Server{Addr: cfg.APIListenAddr, Handler: api.Handler(svc, store)}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()

	log.Printf("ghost-interviewer-api: listening on %s", cfg.APIListenAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("ghost-interviewer-api: shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("warning: http shutdown failed: %v", err)
	}
}

func envOrDefault(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

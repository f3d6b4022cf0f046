package main

import (
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/serroba/doc-annotations/internal/acl"
	"github.com/serroba/doc-annotations/internal/api"
	"github.com/serroba/doc-annotations/internal/config"
	"github.com/serroba/doc-annotations/internal/session"
	"github.com/serroba/doc-annotations/internal/storage"
	"github.com/serroba/doc-annotations/internal/ws"
)

func main() {
	configPath := flag.String("config", "annotations.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	// Initialize stores
	store, cleanup, err := openStore(cfg)
	if err != nil {
		log.Fatalf("store error: %v", err)
	}
	defer cleanup()

	permStore := acl.NewMemoryStore()

	// Dev-mode retention cleanup
	if cfg.RetentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -cfg.RetentionDays)

		removed, err := store.DeleteAnnotationsBefore(cutoff)
		if err != nil {
			logger.Warn("retention cleanup failed", "error", err)
		} else if removed > 0 {
			logger.Info("retention cleanup", "removed", removed)
		}
	}

	// Initialize WebSocket hub
	hub := ws.NewHub()

	// Initialize session manager
	manager := session.NewManager(session.ManagerConfig{
		Store:     store,
		PermStore: permStore,
		Hub:       hub,
		Debounce:  cfg.ReconcileDebounce,
		Logger:    logger,
	})

	// Initialize API server
	server := api.NewServer(api.ServerConfig{
		Manager:   manager,
		Store:     store,
		PermStore: permStore,
		Hub:       hub,
		Logger:    logger,
	})

	// Configure HTTP server with timeouts
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("Starting server on %s", cfg.Addr)

	if err := httpServer.ListenAndServe(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// openStore selects the SQLite store when a path is configured, the
// in-memory store otherwise.
func openStore(cfg *config.Config) (storage.Store, func(), error) {
	if cfg.DBPath == "" {
		return storage.NewMemoryStore(), func() {}, nil
	}

	s, err := storage.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}

	return s, func() { _ = s.Close() }, nil
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"quadrant/api/internal/app"
	"quadrant/api/internal/authpw"
	"quadrant/api/internal/config"
	"quadrant/api/internal/export"
	"quadrant/api/internal/files"
	"quadrant/api/internal/history"
	"quadrant/api/internal/lock"
	"quadrant/api/internal/search"
	"quadrant/api/internal/session"
	"quadrant/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.HistoryDir, 0o755); err != nil {
		log.Fatalf("failed to create history dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	historyService := history.New(cfg.HistoryDir)

	lockService, err := lock.NewRedisService(cfg.RedisURL, cfg.LockTTL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer lockService.Close()

	refreshStore, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer refreshStore.Close()

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliAPIKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)

	// Empty endpoint disables attachment storage.
	var fileService *files.Service
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		fileService, err = files.New(files.Options{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("minio connection failed: %v", err)
		}
		if err := fileService.EnsureBucket(ctx); err != nil {
			log.Fatalf("minio bucket init failed: %v", err)
		}
	}

	service := app.New(cfg, app.Deps{
		Store:   dataStore,
		AuthPW:  authpw.NewService(dataStore),
		Refresh: refreshStore,
		Locks:   lockService,
		History: historyService,
		Search:  searchService,
		Files:   fileService,
		Export:  export.NewService(exportStore{dataStore}),
	})
	if err := service.Bootstrap(ctx); err != nil {
		log.Printf("WARNING: bootstrap error (will retry on next restart): %v", err)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Quadrant API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// exportStore adapts the Postgres store to the export service's read model.
type exportStore struct {
	store *store.PostgresStore
}

func (e exportStore) GetProject(ctx context.Context, projectID string) (export.ProjectInfo, error) {
	project, err := e.store.GetProject(ctx, projectID)
	if err != nil {
		return export.ProjectInfo{}, err
	}
	return export.ProjectInfo{
		ID:          project.ID,
		Name:        project.Name,
		Description: project.Description,
	}, nil
}

func (e exportStore) ListIdeas(ctx context.Context, projectID string) ([]export.IdeaInfo, error) {
	ideas, err := e.store.ListIdeas(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]export.IdeaInfo, 0, len(ideas))
	for _, idea := range ideas {
		out = append(out, export.IdeaInfo{
			ID:       idea.ID,
			Title:    idea.Title,
			Category: idea.Category,
			Status:   idea.Status,
			X:        idea.X,
			Y:        idea.Y,
		})
	}
	return out, nil
}

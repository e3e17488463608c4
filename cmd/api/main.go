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

	"shoplab/api/internal/app"
	"shoplab/api/internal/auditlog"
	"shoplab/api/internal/catalog"
	"shoplab/api/internal/config"
	"shoplab/api/internal/forms"
	"shoplab/api/internal/session"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	var sessions session.Store
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for session storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		sessions = redisStore
	} else {
		log.Printf("Using in-memory session storage")
		sessions = session.NewMemoryStore()
	}
	defer sessions.Close()

	var audit auditlog.Sink
	switch {
	case strings.TrimSpace(cfg.DatabaseURL) != "":
		log.Printf("Using Postgres for the audit log")
		db, err := auditlog.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer db.Close()
		pg := auditlog.NewPostgresSink(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatalf("audit schema failed: %v", err)
		}
		audit = pg
	case strings.TrimSpace(cfg.AuditURL) != "":
		log.Printf("Posting audit events to %s", cfg.AuditURL)
		audit = auditlog.NewHTTPSink(cfg.AuditURL)
	default:
		log.Printf("No audit sink configured, logging events to stdout")
		audit = auditlog.LogSink{}
	}

	service := app.New(cfg, sessions, catalog.NewFileStore(cfg.CatalogPath), audit, forms.NewLedger())
	httpServer := app.NewHTTPServer(service)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Shoplab API listening on %s", cfg.Addr)
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

package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"referral-triage-go/internal/config"
	"referral-triage-go/internal/db"
	"referral-triage-go/internal/entity"
	"referral-triage-go/internal/handlers"
	"referral-triage-go/internal/mailbox"
	"referral-triage-go/internal/metrics"
	"referral-triage-go/internal/pipeline"
	"referral-triage-go/internal/poller"
	"referral-triage-go/internal/priority"
	"referral-triage-go/internal/progress"
	"referral-triage-go/internal/server"
	"referral-triage-go/internal/store"
	"referral-triage-go/internal/textextract"
)

// Run initializes and starts the application
func Run() error {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	logrus.Info("Starting Referral Triage Service")

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	dbConn, err := db.Init(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	m := metrics.NewMetrics()
	st := store.New(dbConn)
	hub := progress.NewHub()

	mbox, err := mailbox.New(&cfg.Mailbox)
	if err != nil {
		return fmt.Errorf("failed to create mailbox: %w", err)
	}
	if cfg.Mailbox.UseIMAP {
		logrus.Info("Using IMAP for mailbox access")
	} else {
		logrus.Info("Using Gmail API for mailbox access")
	}

	texts := textextract.New(cfg.OCR, cfg.Pipeline)
	entities := entity.NewExtractor()
	classifier := priority.NewClassifier()

	orchestrator := pipeline.NewOrchestrator(cfg, mbox, texts, entities, classifier, st, hub, m)
	p := poller.NewPoller(&cfg.Pipeline, orchestrator)

	h := handlers.NewHandlers(dbConn, st, p, hub)
	router := server.SetupRouter(h)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if err := p.Start(); err != nil {
		return fmt.Errorf("failed to start poller: %w", err)
	}

	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := p.Stop(); err != nil {
		logrus.Errorf("Failed to stop poller: %v", err)
	}
	// In-flight messages drain before the process exits so persistence
	// transactions are never interrupted.
	p.Wait()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	hub.Close()

	if err := mbox.Close(); err != nil {
		logrus.Errorf("Failed to close mailbox: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return nil
}

package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	contentguard "github.com/ypk/contentguard"
	"github.com/ypk/contentguard/internal/analytics"
	"github.com/ypk/contentguard/internal/cleanup"
	"github.com/ypk/contentguard/internal/config"
	"github.com/ypk/contentguard/internal/db"
	"github.com/ypk/contentguard/internal/detect"
	"github.com/ypk/contentguard/internal/gateway"
	"github.com/ypk/contentguard/internal/handler"
	"github.com/ypk/contentguard/internal/ledger"
	"github.com/ypk/contentguard/internal/notify"
	"github.com/ypk/contentguard/internal/storage"
	"github.com/ypk/contentguard/internal/token"
	"github.com/ypk/contentguard/internal/watermark"
	"github.com/ypk/contentguard/internal/webhook"
)

func Run(ctx context.Context, cfg *config.Config) error {
	// Ensure data directories exist
	for _, dir := range []string{cfg.DataDir, filepath.Join(cfg.DataDir, "objects"), filepath.Join(cfg.DataDir, "stamped")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	// Open database
	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer database.Close()

	// Run migrations
	if err := db.Migrate(database, contentguard.MigrationFS); err != nil {
		return err
	}
	slog.Info("database ready")

	// Event pipeline: appender persists, hub fans out to consumers.
	hub := ledger.NewHub()
	appender := ledger.NewAppender(database, hub, slog.Default(), 1024)

	// Analytics: rebuild the rollup from the persisted ledger before
	// live events start flowing, then consume the hub.
	aggregator := analytics.NewAggregator(slog.Default(), cfg.RecentActivitySize)
	if err := aggregator.RebuildFrom(database); err != nil {
		return err
	}
	aggregator.Start(ctx, hub)

	// Grant signer and gateway
	signer := token.NewSigner(cfg.TokenSecret, time.Duration(cfg.GrantTTLMins)*time.Minute)
	gw := gateway.New(database, signer, appender, slog.Default(),
		cfg.PolicyCacheSize, time.Duration(cfg.PolicyCacheTTLSecs)*time.Second)

	// Alert channels
	webhookDispatcher := &webhook.Dispatcher{DB: database}
	mailer := &notify.Mailer{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
		From: cfg.SMTPFrom,
		To:   cfg.AlertEmail,
	}
	if mailer.Enabled() {
		slog.Info("alert email enabled", "host", cfg.SMTPHost, "to", cfg.AlertEmail)
	}

	// Violation detector
	detector := detect.New(appender, gw.Policy,
		detect.Alerters{webhookDispatcher, mailer}, slog.Default(),
		cfg.BurstContexts, time.Duration(cfg.BurstWindowMins)*time.Minute)
	detector.Start(ctx, hub)

	// Both hub consumers are subscribed; the appender may now publish.
	appender.Start()
	defer appender.Stop()

	// Webhook retrier
	retrier := &webhook.Retrier{DB: database}
	retrier.Start(ctx)

	// Compositor pool
	pool := watermark.NewPool(cfg.CompositorWorkers, cfg.CompositorQueueDepth,
		time.Duration(cfg.CompositorWaitMS)*time.Millisecond)
	pool.Start(ctx)
	defer pool.Stop()

	compositor := &watermark.Compositor{
		Pool:     pool,
		DB:       database,
		DataDir:  cfg.DataDir,
		FontPath: cfg.FontPath,
	}

	// Object store with a circuit breaker in front
	store := storage.NewBreakerStore(
		storage.NewLocalStore(filepath.Join(cfg.DataDir, "objects")), slog.Default())

	// Cleanup scheduler
	cleaner := &cleanup.Cleaner{
		DB:            database,
		DataDir:       cfg.DataDir,
		Interval:      time.Duration(cfg.CleanupIntervalMins) * time.Minute,
		RetentionDays: cfg.RetentionDays,
	}
	cleaner.Start(ctx)
	defer cleaner.Stop()

	// Content path absorbs viewer traffic; the admin API is a trickle.
	contentRL := handler.NewRateLimiter(20, 100)
	defer contentRL.Stop()
	adminRL := handler.NewRateLimiter(2, 60)
	defer adminRL.Stop()

	h := &handler.Handler{
		DB:         database,
		Cfg:        cfg,
		Gateway:    gw,
		Compositor: compositor,
		Store:      store,
		Events:     appender,
		Hub:        hub,
		Analytics:  aggregator,
		Detector:   detector,
		Webhook:    webhookDispatcher,
	}
	router := h.Routes(contentRL, adminRL)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		slog.Info("shutting down server")
		srv.Shutdown(context.Background())
	}()

	slog.Info("server starting", "addr", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

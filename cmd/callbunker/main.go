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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/callbunker/callbunker/internal/api"
	"github.com/callbunker/callbunker/internal/api/middleware"
	"github.com/callbunker/callbunker/internal/cache"
	"github.com/callbunker/callbunker/internal/config"
	"github.com/callbunker/callbunker/internal/database"
	"github.com/callbunker/callbunker/internal/database/models"
	"github.com/callbunker/callbunker/internal/metrics"
	"github.com/callbunker/callbunker/internal/notify"
	"github.com/callbunker/callbunker/internal/screening"
	"github.com/callbunker/callbunker/internal/voice"
)

const cleanupInterval = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("callbunker exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	startTime := time.Now()

	slog.Info("starting callbunker",
		"http_port", cfg.HTTPPort,
		"data_dir", cfg.DataDir,
		"postgres", cfg.DatabaseURL != "",
		"signature_validation", cfg.TwilioAuthToken != "",
	)

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// Application context for background goroutines.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	jwtSecret, err := cfg.JWTSecretBytes()
	if err != nil {
		return err
	}

	admins := database.NewAdminUserRepository(db)
	if err := bootstrapAdmin(appCtx, admins, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return err
	}

	var tenants database.TenantRepository = database.NewTenantRepository(db)
	if cfg.RedisURL != "" {
		client, err := cache.Connect(appCtx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		tenants = cache.NewTenantRepository(tenants, client, cfg.CacheTTL, logger)
		slog.Info("tenant cache enabled", "ttl", cfg.CacheTTL)
	}
	pool := database.NewNumberPoolRepository(db)
	trust := database.NewTrustRepository(db)
	ledger := database.NewLedgerRepository(db)
	callLogs := database.NewCallLogRepository(db)
	voicemails := database.NewVoicemailRepository(db)

	dispatcher := newDispatcher(appCtx, cfg, logger)
	dispatcher.Start(appCtx)

	engine := screening.NewEngine(screening.Config{
		Router:             screening.NewRouter(tenants, pool, logger),
		Trust:              trust,
		Ledger:             ledger,
		CallLogs:           callLogs,
		Notifier:           dispatcher,
		SystemNumbers:      cfg.SystemNumberList(),
		PassThroughCallers: cfg.PassThroughList(),
		RingTimeout:        time.Duration(cfg.RingTimeout) * time.Second,
		RecordMaxLength:    time.Duration(cfg.RecordMaxLength) * time.Second,
		Logger:             logger,
	})
	screening.StartCleanupTicker(appCtx, ledger, cleanupInterval, cfg.FailureRetention, logger)

	webhookLimiter := middleware.NewIPRateLimiter(middleware.WebhookRateLimitConfig())
	defer webhookLimiter.Stop()

	voiceHandler := voice.NewHandler(voice.Config{
		Engine:         engine,
		Voicemails:     voicemails,
		Tenants:        tenants,
		Notifier:       dispatcher,
		PublicURL:      cfg.PublicURL,
		AuthToken:      cfg.TwilioAuthToken,
		SayVoice:       cfg.SayVoice,
		GatherTimeout:  time.Duration(cfg.GatherTimeout) * time.Second,
		WebhookTimeout: cfg.WebhookTimeout,
		RateLimiter:    webhookLimiter,
		Logger:         logger,
	})

	outcomes := make([]string, len(screening.Outcomes))
	for i, o := range screening.Outcomes {
		outcomes[i] = string(o)
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewCollector(metrics.Providers{
			Outcomes:      callLogs,
			Blocks:        ledger,
			Tenants:       tenants,
			Trust:         trust,
			Notifications: dispatcher,
		}, outcomes, startTime, logger),
	)

	handler := api.NewServer(api.Config{
		Tenants:    tenants,
		Pool:       pool,
		Trust:      trust,
		Ledger:     ledger,
		CallLogs:   callLogs,
		Voicemails: voicemails,
		Admins:     admins,
		Notifier:   dispatcher,
		Voice:      voiceHandler,
		Metrics:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		JWTSecret:  jwtSecret,
		TLSEnabled: cfg.TLSEnabled(),
		StartTime:  startTime,
	})
	defer handler.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr, "tls", cfg.TLSEnabled())
		var err error
		if cfg.TLSEnabled() {
			err = srv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt or server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case serveErr = <-errCh:
		slog.Error("http server error", "error", serveErr)
	}

	// Graceful shutdown with timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	// Stop workers after in-flight webhooks have queued their notifications.
	appCancel()
	dispatcher.Wait()

	slog.Info("callbunker stopped")
	return serveErr
}

// openDatabase opens PostgreSQL when a URL is configured and the embedded
// SQLite store otherwise.
func openDatabase(cfg *config.Config) (*database.DB, error) {
	if cfg.DatabaseURL != "" {
		db, err := database.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		return db, nil
	}
	db, err := database.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	return db, nil
}

// bootstrapAdmin creates the configured operator account on first start.
// An existing account is left untouched, so rotating the configured
// password does not silently reset it.
func bootstrapAdmin(ctx context.Context, admins database.AdminUserRepository, username, password string) error {
	if username == "" {
		n, err := admins.Count(ctx)
		if err != nil {
			return fmt.Errorf("counting admin users: %w", err)
		}
		if n == 0 {
			slog.Warn("no admin account exists; set admin-username and admin-password to create one")
		}
		return nil
	}

	existing, err := admins.GetByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("looking up admin user: %w", err)
	}
	if existing != nil {
		return nil
	}

	hash, err := database.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing admin password: %w", err)
	}
	if err := admins.Create(ctx, &models.AdminUser{Username: username, PasswordHash: hash}); err != nil {
		return fmt.Errorf("creating admin user: %w", err)
	}
	slog.Info("admin account created", "username", username)
	return nil
}

// newDispatcher wires the notification channels that are configured.
func newDispatcher(ctx context.Context, cfg *config.Config, logger *slog.Logger) *notify.Dispatcher {
	ncfg := notify.Config{
		OperatorEmail: cfg.OperatorEmail,
		Logger:        logger,
	}

	smtp := notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		From:     cfg.SMTPFrom,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		TLS:      cfg.SMTPTLS,
	}
	if smtp.Valid() {
		ncfg.Mailer = notify.NewEmailSender(smtp, logger)
		slog.Info("email notifications enabled", "smtp_host", smtp.Host)
	}

	if cfg.FCMCredentialsFile != "" {
		fcm, err := notify.NewFCMSender(ctx, cfg.FCMCredentialsFile, logger)
		if err != nil {
			slog.Error("push notifications disabled", "error", err)
		} else {
			ncfg.Pusher = fcm
			slog.Info("push notifications enabled")
		}
	}

	return notify.NewDispatcher(ncfg)
}

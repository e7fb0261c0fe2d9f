package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"onereply/api/internal/app"
	"onereply/api/internal/approval"
	"onereply/api/internal/config"
	"onereply/api/internal/departments"
	"onereply/api/internal/export"
	"onereply/api/internal/gitrepo"
	"onereply/api/internal/lock"
	"onereply/api/internal/notify"
	"onereply/api/internal/search"
	"onereply/api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped", zap.Error(err))
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.IsDevelopment() {
		zapCfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	registry := departments.Default()
	if cfg.DepartmentsFile != "" {
		loaded, err := departments.LoadFile(cfg.DepartmentsFile)
		if err != nil {
			return fmt.Errorf("load departments: %w", err)
		}
		registry = loaded
	}

	deps := app.Deps{
		Departments:    registry,
		Policy:         &cfg.Policy,
		AllowedSenders: cfg.AllowedSenderDomains,
		Logger:         logger,
	}

	var pgfts *search.PgFTS
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		pg, err := store.Connect(ctx, cfg.DatabaseURL, cfg.MigrationsDir)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer pg.DB().Close()
		deps.Store = pg
		pgfts = search.NewPgFTS(pg.DB())
		logger.Info("using postgres store")
	} else {
		deps.Store = store.NewMemoryStore()
		logger.Warn("DATABASE_URL not set, using in-memory store")
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		return fmt.Errorf("create repos dir: %w", err)
	}
	deps.Git = gitrepo.New(cfg.ReposDir)

	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisLocker, err := lock.NewRedisLocker(cfg.RedisURL, cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer redisLocker.Close()
		deps.Locker = redisLocker
		logger.Info("using redis ticket locks")
	} else {
		deps.Locker = approval.NewLocalLocker()
	}

	var meili *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
	}
	deps.Search = search.NewService(meili, pgfts, logger)
	defer deps.Search.Close()

	var mail notify.MailSender
	smtpSender := notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if smtpSender.IsConfigured() {
		mail = smtpSender
	}
	dispatcher := notify.NewDispatcher(notify.Config{
		Origin:     cfg.Origin,
		Webhooks:   cfg.TeamsWebhooks,
		Recipients: cfg.NotifyTo,
	}, deps.Store, registry, notify.NewTeamsClient(nil), mail, logger)
	defer dispatcher.Close()
	deps.Publisher = dispatcher

	if cfg.MinioEndpoint != "" {
		archive, err := export.NewMinioArchive(ctx, export.ArchiveConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			logger.Warn("export archive disabled", zap.Error(err))
		} else {
			deps.ExportOptions = append(deps.ExportOptions, export.WithArchive(archive))
		}
	}

	service := app.New(deps)
	go deps.Search.ReindexAllFromPG(ctx)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("onereply api listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-sigCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	return nil
}

// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"photovault-import/internal/config"
	"photovault-import/internal/domain/ports/adapter"
	"photovault-import/internal/domain/ports/repository"
	pg "photovault-import/internal/infra/db/postgres"
	"photovault-import/internal/infra/credentials"
	"photovault-import/internal/infra/logging"
	"photovault-import/internal/infra/metrics"
	"photovault-import/internal/infra/provision"
	red "photovault-import/internal/infra/redis"
	"photovault-import/internal/infra/sched"
	"photovault-import/internal/infra/security"
	"photovault-import/internal/infra/web"
	"photovault-import/internal/infra/worker"
	"photovault-import/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("developer mode enabled")
	}

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisClient.Close()

	// ---- Job store ----
	var jobs repository.ImportJobRepository
	if cfg.Database.URL != "" {
		pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		jobs = pg.NewImportJobStore(pool)
		logger.Info().Msg("job store: postgres")
	} else {
		jobs = red.NewJobStore(redisClient, cfg.Importer.Retention)
		logger.Info().Msg("job store: redis")
	}

	var enc *security.EncryptionService
	if cfg.Importer.TokenEncryptionKey != "" {
		enc, err = security.NewEncryptionService(cfg.Importer.TokenEncryptionKey)
		if err != nil {
			log.Fatalf("token encryption: %v", err)
		}
	}
	tokens := red.NewTokenStore(redisClient, enc)
	locker := red.NewLocker(redisClient)
	issuer := credentials.NewIssuer(cfg.Importer.CredentialKey, cfg.Importer.CredentialTTL, redisClient)

	// ---- Provisioning ----
	prov, err := provision.NewFlyClient(provision.Config{
		APIToken: cfg.Fly.APIToken,
		BaseURL:  cfg.Fly.BaseURL,
		App:      cfg.Fly.App,
		Region:   cfg.Fly.Region,
		Image:    cfg.Fly.Image,
		Sizing: provision.VolumeSizing{
			MinGB:    cfg.Fly.VolumeMinGB,
			MaxGB:    cfg.Fly.VolumeMaxGB,
			BufferGB: cfg.Fly.VolumeBufferGB,
		},
	}, logger)
	if err != nil {
		log.Fatalf("fly client: %v", err)
	}

	// ---- Cleanup pool ----
	pool := worker.NewPool(cfg.Importer.CleanupWorkers, logger)
	pool.Start(ctx)

	// ---- Orchestrator ----
	importUC := usecase.NewImportUseCase(
		jobs,
		locker,
		tokens,
		prov,
		issuer,
		pool,
		cfg.Server.PublicURL,
		adapter.MachineResources{CPUs: cfg.Fly.MachineCPUs, MemoryMB: cfg.Fly.MachineMemoryMB},
		cfg.Importer.SettleDelay,
		logger,
	)

	// ---- Metrics ----
	metrics.MustRegister()

	// ---- HTTP ----
	srv := web.NewServer(importUC, cfg.Server.APIKey, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Router(),
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Orphan reaper ----
	reaper := sched.NewReaper(jobs, prov, cfg.Importer.ReaperCron, cfg.Importer.ReaperMinAge, logger)
	if err := reaper.Start(ctx); err != nil {
		log.Fatalf("reaper: %v", err)
	}

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	reaper.Stop()
	pool.Stop()
	cancel()
}

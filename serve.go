package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mailscout/config"
	"mailscout/metrics"
	"mailscout/middleware"
	"mailscout/research"
	"mailscout/routes"
	"mailscout/store"
	"mailscout/verifier"
	"mailscout/worker"
)

func serveCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the API server and the batch worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logrus.WithField("component", "server")
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set to serve the API")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	backends, resolver, _ := newEngine(cfg, m)
	runner := verifier.NewRunner(cfg.BatchWidth, cfg.TaskTimeout, m)

	services := routes.Services{
		JWTSecret:       cfg.JWTSecret,
		RateLimitVerify: cfg.RateLimitVerify,
		Gatherer:        reg,
		Backends:        backends,
		Runner:          runner,
		Resolver:        resolver,
		Batches:         store.NewMemoryBatchStore(),
	}

	if cfg.Redis.Enabled {
		client, err := config.ConnectRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		services.Batches = store.NewRedisBatchStore(client, cfg.BatchTTL)
		services.RateLimitStorage = middleware.NewRedisStorage(client)
		log.WithField("address", cfg.Redis.Address).Info("Using Redis for batches and rate limits")
	}

	if cfg.DB.Enabled {
		db, err := config.ConnectDB(cfg.DB)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		services.Profiles = store.NewProfileStore(db)
	}

	if client, err := research.NewClient(research.Config{
		APIKey: cfg.Research.APIKey,
		APIURL: cfg.Research.APIURL,
	}, nil); err == nil {
		services.Research = client
	} else {
		log.WithError(err).Info("Research lookup disabled")
	}

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()
	services.Worker = worker.NewBatchWorker(services.Batches, runner, 0)
	go services.Worker.Start(workerCtx)

	app := fiber.New(fiber.Config{
		AppName:      "mailscout",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	})
	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: middleware.ParseOrigins(cfg.CORSOrigins),
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposedHeaders: []string{"Content-Length"},
		MaxAge:         3600,
	}))
	routes.SetupRoutes(app, services)

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.ServerPort).Info("Server starting")
		errCh <- app.Listen(":" + cfg.ServerPort)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down...")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		log.WithError(err).Warn("server shutdown incomplete")
	}
	cancelWorker()
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pixelforge/imagegen-backend/config"
	"github.com/pixelforge/imagegen-backend/internal/bootstrap"
	imghttp "github.com/pixelforge/imagegen-backend/internal/image_generation/http"
	"github.com/pixelforge/imagegen-backend/internal/image_generation/provider"
	"github.com/pixelforge/imagegen-backend/internal/image_generation/repository"
	"github.com/pixelforge/imagegen-backend/internal/image_generation/service"
	"github.com/pixelforge/imagegen-backend/internal/platform/logger"
	"github.com/pixelforge/imagegen-backend/internal/storage/objectstore"
)

const serviceName = "imagegen-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.App.Environment, cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	for _, w := range cfg.Warnings {
		log.Warn(w)
	}

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	bootstrap.SetGinMode(cfg.App.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := bootstrap.OpenDB(ctx, &cfg.Database, log)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb, err := bootstrap.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	objects, err := objectstore.NewS3Store(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	repo := repository.NewRequestRepository(db.SQL)
	feed := repository.NewChangeFeed(rdb, cfg.Redis.Channel, log)
	trigger := service.NewTriggerService(repo, feed, provider.NewClient(cfg.Provider), objects, log, cfg.Provider.Timeout)

	sweeper := service.NewStaleSweeper(repo, feed, cfg.Sweeper.StaleAfter, log)
	if err := sweeper.Start(cfg.Sweeper.Schedule); err != nil {
		return err
	}

	images := imghttp.New(trigger, imghttp.FeedSubscriber(feed), log)
	router := bootstrap.BuildRouter(bootstrap.RouterDeps{
		ServiceName: serviceName,
		Version:     cfg.App.Version,
		CORSOrigins: cfg.Server.CORSOrigins,
		DB:          db.Pool,
		Redis:       rdb,
		Log:         log,
		Images:      images,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Shutdown waits for active requests; change streams never finish on their own.
	srv.RegisterOnShutdown(images.CloseStreams)

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", srv.Addr, "env", cfg.App.Environment)
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	<-sweeper.Stop().Done()
	if err := trigger.Shutdown(shutdownCtx); err != nil {
		log.Warn("generation jobs cancelled at shutdown", "error", err)
	}

	return serveErr
}

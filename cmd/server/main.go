package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"lexplain/backend/internal/api"
	"lexplain/backend/internal/app"
	"lexplain/backend/internal/config"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load(os.Getenv("LEXPLAIN_CONFIG"))
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	cfg.Log.ConfigureLogging()

	services, err := app.New(cfg, app.Options{})
	if err != nil {
		logrus.Fatalf("build services: %v", err)
	}
	defer services.Close()

	server, err := api.NewServer(api.Config{
		DB:             services.DB,
		Pipeline:       services.Pipeline,
		Extractor:      services.Extractor,
		Guard:          services.Guard,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		AIEnabled:      services.AIEnabled,
		CacheKind:      services.CacheKind,
	})
	if err != nil {
		logrus.Fatalf("create server: %v", err)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logrus.Infof("starting lexplain backend on :%s", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("server exited: %v", err)
		}
	}()

	<-ctx.Done()
	logrus.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("http shutdown")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("jobs did not finish before shutdown")
	}
}

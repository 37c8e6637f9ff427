package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"retailledger/internal/app"
	"retailledger/internal/config"
	"retailledger/internal/httpapi"
)

func main() {
	bootLog := logrus.New()
	if err := config.LoadDotEnv(); err != nil {
		bootLog.WithError(err).Fatal("load .env")
	}
	cfg := config.Load()
	log := config.NewLogger(cfg)
	gin.SetMode(ginMode(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ledger, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("ledger unavailable; refusing to start")
	}

	api := httpapi.New(ledger.Service, httpapi.Options{AllowedOrigin: cfg.AllowedOrigin, Logger: log})
	server := newServer(cfg, api.Handler())

	go func() {
		log.WithFields(logrus.Fields{"addr": cfg.Address(), "driver": ledger.Driver}).Info("retail ledger listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown error")
	}
	if err := ledger.Close(); err != nil {
		log.WithError(err).Warn("close error")
	}

	log.Info("server stopped")
}

func newServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Address(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// ginMode keeps gin's debug route dump for debug logging only.
func ginMode(cfg config.Config) string {
	if cfg.LogLevel == "debug" || cfg.LogLevel == "trace" {
		return gin.DebugMode
	}
	return gin.ReleaseMode
}

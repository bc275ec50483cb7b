package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"reflect"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/park285/cubetimer/internal/appbuilder"
	appcfg "github.com/park285/cubetimer/internal/config"
	"github.com/park285/cubetimer/internal/jsonx"
	"github.com/park285/cubetimer/internal/obslog"
	"github.com/park285/cubetimer/pkg/solvedto"
	"go.uber.org/zap"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	gin.SetMode(gin.ReleaseMode)
	jsonx.Pretouch(
		reflect.TypeOf(solvedto.ServerFrame{}),
		reflect.TypeOf(solvedto.ClientFrame{}),
		reflect.TypeOf(solvedto.HistoryPage{}),
	)

	app, err := appbuilder.New(cfg, logger)
	if err != nil {
		logger.Fatal("app_init_failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if app.Announcer != nil {
		go app.Announcer.Run(ctx)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           app.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http_listening", zap.String("addr", cfg.ListenAddr), zap.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_serve_failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown_started")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http_shutdown_failed", zap.Error(err))
	}
	if err := app.Close(); err != nil {
		logger.Warn("app_close_failed", zap.Error(err))
	}
	logger.Info("shutdown_complete")
}

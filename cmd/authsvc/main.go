package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/you/phoneauth/internal/app"
	"github.com/you/phoneauth/internal/config"
	"github.com/you/phoneauth/internal/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yml", "path to the YAML config file")
	flag.Parse()

	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zl, err := logger.New(cfg.Log.Level, cfg.App.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zl.Sync()
	zap.ReplaceGlobals(zl)

	if cfg.App.GinMode != "" {
		gin.SetMode(cfg.App.GinMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zl.Info("starting phone auth service", zap.String("env", cfg.App.Env))
	if err := app.Run(ctx, cfg, zl); err != nil {
		zl.Fatal("app", zap.Error(err))
	}
}

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/birdielabs/waveportal/internal/api"
	"github.com/birdielabs/waveportal/internal/config"
	"github.com/birdielabs/waveportal/internal/database"
	"github.com/birdielabs/waveportal/internal/invoices"
	"github.com/birdielabs/waveportal/internal/notify"
	"github.com/birdielabs/waveportal/internal/scheduler"
	"github.com/birdielabs/waveportal/internal/store"
	"github.com/birdielabs/waveportal/internal/sync"
	"github.com/birdielabs/waveportal/internal/tokens"
	"github.com/birdielabs/waveportal/internal/wave"
)

func main() {
	app := fx.New(
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
		fx.Provide(
			config.Load,
			initLogger,
			database.Open,
			tokens.NewStore,
			store.NewAccountStore,
			wave.NewClient,
			wave.NewOAuthClient,
			tokens.NewManager,
			invoices.NewService,
			func(cfg *config.Config, logger *zap.Logger) notify.Mailer {
				return notify.NewSMTPMailer(cfg, logger)
			},
			notify.NewNotifier,
			notify.NewDispatcher,
			sync.NewEngine,
			scheduler.New,
			api.NewHandlers,
		),
		fx.Invoke(startServer, startScheduler),
		fx.StopTimeout(30*time.Second),
	)

	if err := app.Start(context.Background()); err != nil {
		log.Fatal("failed to start server: ", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	if err := app.Stop(context.Background()); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	var level zap.AtomicLevel
	switch cfg.Log.Level {
	case "debug":
		level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	logCfg := zap.NewProductionConfig()
	logCfg.Level = level
	return logCfg.Build()
}

func startServer(lc fx.Lifecycle, cfg *config.Config, handlers *api.Handlers, logger *zap.Logger) {
	router := gin.New()
	router.Use(gin.Recovery())
	api.RegisterRoutes(router, handlers)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting http server", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping http server")
			return srv.Shutdown(ctx)
		},
	})
}

func startScheduler(lc fx.Lifecycle, sched *scheduler.Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			sched.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			sched.Stop()
			return nil
		},
	})
}

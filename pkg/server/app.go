package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"OptionsFlow/internal/handler/api"
	mid "OptionsFlow/internal/middleware"
	"OptionsFlow/internal/usecase"
	pkgcache "OptionsFlow/pkg/cache"
	pkgch "OptionsFlow/pkg/clickhouse"
	"OptionsFlow/pkg/config"
	xhttp "OptionsFlow/pkg/http"
	pkgkafka "OptionsFlow/pkg/kafka"
	applogger "OptionsFlow/pkg/logger"
)

// Components is everything the app owns. Optional adapters are nil when
// disabled in config.
type Components struct {
	Engine    *usecase.Engine
	Pipeline  *mid.ShardedPipeline
	Handler   *api.FlowEchoHandler
	Collector *usecase.TradeCollector
	Consumer  *pkgkafka.Consumer
	Trades    pkgkafka.MessageHandler
	Archiver  *usecase.AlertArchiver
	Producer  *pkgkafka.Producer
	CHClient  *pkgch.Client
	Redis     *pkgcache.RedisCache
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	c          Components
	httpServer *xhttp.Server

	stopIngest context.CancelFunc
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, log *applogger.Logger, c Components) *App {
	a := &App{cfg: cfg, log: log.Component("app"), c: c}
	a.httpServer = xhttp.NewServer(c.Handler,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath(cfg)),
		xhttp.WithLogger(log),
	)
	return a
}

func metricsPath(cfg *config.Config) string {
	if !cfg.Metrics.Enabled {
		return ""
	}
	return cfg.Metrics.Path
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.Shutdown(context.Background())
}

// Start brings components up from the core outwards so nothing can submit
// into a stopped stage.
func (a *App) Start(ctx context.Context) error {
	a.c.Engine.Start(ctx)
	a.c.Pipeline.Start(ctx)

	if a.c.Archiver != nil {
		a.c.Archiver.Start(ctx)
		a.log.Info("alert archiver started")
	}

	ingestCtx, stopIngest := context.WithCancel(ctx)
	a.stopIngest = stopIngest

	if a.c.Collector != nil {
		if err := a.c.Collector.Start(ingestCtx); err != nil {
			// the collector's reconnect loop only runs after a first connect
			a.log.Error("collector start error", applogger.Error(err))
		} else {
			a.log.Info("collector started", applogger.Strings("underlyings", a.cfg.Ingestion.Feed.Underlyings))
		}
	}

	if a.c.Consumer != nil && a.c.Trades != nil {
		a.c.Consumer.RegisterHandler(a.c.Trades)
		if err := a.c.Consumer.Start(); err != nil {
			a.log.Error("kafka consumer error", applogger.Error(err))
			return err
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.c.Trades.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	return nil
}

// Shutdown stops ingress first, then drains the pipeline and the alert
// path, then closes infrastructure clients.
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Info("shutting down...")

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.stopIngest != nil {
		a.stopIngest()
	}
	if a.c.Collector != nil {
		if err := a.c.Collector.Shutdown(ctx); err != nil {
			a.log.Warn("collector stop error", applogger.Error(err))
		}
	}

	if a.c.Consumer != nil {
		stopCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
		if err := a.c.Consumer.Stop(stopCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
		cancel()
	}

	a.c.Pipeline.Stop()
	a.c.Engine.Stop()

	if a.c.Archiver != nil {
		a.c.Archiver.Stop()
	}

	if a.c.Producer != nil {
		if err := a.c.Producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.c.CHClient != nil {
		if err := a.c.CHClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.c.Redis != nil {
		if err := a.c.Redis.Close(); err != nil {
			a.log.Warn("redis close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}

package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	domrepo "IPHForecast/internal/domain/repository"
	"IPHForecast/internal/service/cache"
	"IPHForecast/internal/usecase"
	pkgch "IPHForecast/pkg/clickhouse"
	"IPHForecast/pkg/config"
	xhttp "IPHForecast/pkg/http"
	pkgkafka "IPHForecast/pkg/kafka"
	applogger "IPHForecast/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	httpServer *xhttp.Server

	// optional components; nil means disabled
	collector *usecase.ObservationCollector
	consumer  *pkgkafka.Consumer
	kh        pkgkafka.MessageHandler
	job       *usecase.SnapshotJob

	// resources closed on shutdown
	processor *usecase.ObservationProcessor
	store     domrepo.SeriesStore
	journal   domrepo.ForecastJournal
	cache     cache.BytesCache
	chClient  *pkgch.Client
}

// Components groups what DI hands to the App.
type Components struct {
	Collector *usecase.ObservationCollector
	Consumer  *pkgkafka.Consumer
	Handler   pkgkafka.MessageHandler
	Job       *usecase.SnapshotJob
	Processor *usecase.ObservationProcessor
	Store     domrepo.SeriesStore
	Journal   domrepo.ForecastJournal
	Cache     cache.BytesCache
	CH        *pkgch.Client
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, h xhttp.Handler, c Components) *App {
	if l == nil {
		l = applogger.NewNop()
	}
	srv := xhttp.NewServer(h,
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithSlowRequest(cfg.Server.SlowRequest),
		xhttp.WithBodyLimit(cfg.Server.BodyLimit),
		xhttp.WithLogger(l.With("http")),
	)
	return &App{
		cfg:        cfg,
		l:          l,
		httpServer: srv,
		collector:  c.Collector,
		consumer:   c.Consumer,
		kh:         c.Handler,
		job:        c.Job,
		processor:  c.Processor,
		store:      c.Store,
		journal:    c.Journal,
		cache:      c.Cache,
		chClient:   c.CH,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.start(ctx); err != nil {
		_ = a.shutdown(context.Background())
		return err
	}

	select {
	case <-ctx.Done():
		a.l.Info("shutdown signal received")
	case err := <-a.httpServer.Errors():
		if err != nil {
			_ = a.shutdown(context.Background())
			return err
		}
	}
	return a.shutdown(context.Background())
}

func (a *App) start(ctx context.Context) error {
	if a.collector != nil {
		if err := a.collector.Start(ctx); err != nil {
			return err
		}
		a.l.Info("indicator feed collector started", applogger.String("url", a.cfg.Ingestion.FeedURL))
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if a.job != nil {
		if err := a.job.Register(a.cfg.Scheduler.WeeklyCron); err != nil {
			return err
		}
		a.job.Start()
		a.l.Info("snapshot job scheduled", applogger.String("cron", a.cfg.Scheduler.WeeklyCron))
		if a.cfg.Scheduler.RunOnStart {
			go a.job.RunNow(ctx)
		}
	}

	return a.httpServer.Start()
}

// shutdown stops producers of work first, then closes the resources they write to.
func (a *App) shutdown(ctx context.Context) error {
	a.l.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		errs = append(errs, err)
		a.l.Error("http shutdown error", applogger.Error(err))
	}
	if a.collector != nil {
		if err := a.collector.Shutdown(shutdownCtx); err != nil {
			a.l.Warn("collector stop error", applogger.Error(err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.job != nil {
		a.job.Stop(shutdownCtx)
	}
	// flush shipped logs before the producer goes away
	a.l.RemoveCollector()
	if a.processor != nil {
		// closes the publisher
		a.processor.Close()
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.l.Warn("journal close error", applogger.Error(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.l.Warn("cache close error", applogger.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.l.Warn("series store close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return errors.Join(errs...)
}

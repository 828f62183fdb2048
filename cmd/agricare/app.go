package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/pribylovaa/agricare-client/internal/clients"
	"github.com/pribylovaa/agricare-client/internal/config"
	"github.com/pribylovaa/agricare-client/internal/service"
	"github.com/pribylovaa/agricare-client/internal/storage/s3"
	"github.com/pribylovaa/agricare-client/internal/storage/sqlite"
)

// app - зависимости одного запуска CLI. Всё, кроме конфигурации, создаётся лениво:
// команда weather не открывает SQLite, а S3 нужен только sync.
type app struct {
	configPath string
	output     string

	stderr  io.Writer
	cfg     *config.Config
	log     *slog.Logger
	reg     *prometheus.Registry
	metrics *metricsServer
	clients *clients.Clients
	storage *sqlite.Storage
}

// setup загружает конфигурацию, логгер и, если задан порт, поднимает /metrics.
func (a *app) setup(ctx context.Context) error {
	const op = "agricare.init"

	if err := validateOutput(a.output); err != nil {
		return err
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.log = setupLogger(cfg.Env, a.stderr)
	slog.SetDefault(a.log)

	a.reg = prometheus.NewRegistry()
	a.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if cfg.Metrics.Port != "" {
		srv, err := startMetrics(cfg.Metrics.Addr(), a.reg, a.log)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		a.metrics = srv
	}

	return nil
}

func (a *app) api(ctx context.Context) (*clients.Clients, error) {
	if a.clients != nil {
		return a.clients, nil
	}

	cl, err := clients.New(ctx, *a.cfg, a.log, a.reg)
	if err != nil {
		return nil, err
	}
	a.log.Debug("clients_initialized", slog.String("credentials", a.cfg.Credentials.Backend))

	a.clients = cl

	return cl, nil
}

// service собирает прикладной слой; withArchive подключает S3 (fail-fast проверка бакета).
func (a *app) service(ctx context.Context, withArchive bool) (*service.Service, error) {
	cl, err := a.api(ctx)
	if err != nil {
		return nil, err
	}

	if a.storage == nil {
		st, err := sqlite.New(ctx, a.cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.storage = st
	}

	opts := []service.Option{service.WithLogger(a.log)}

	if withArchive && a.cfg.S3.Enabled() {
		archive, err := s3.New(ctx, a.cfg.S3)
		if err != nil {
			return nil, err
		}
		opts = append(opts, service.WithArchive(archive))
	}

	return service.New(cl.API, a.storage, opts...), nil
}

// close освобождает ресурсы в обратном порядке создания.
func (a *app) close() {
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.log.Warn("storage_close_failed", slog.String("err", err.Error()))
		}
	}

	if a.clients != nil {
		if err := a.clients.Close(); err != nil {
			a.log.Warn("clients_close_failed", slog.String("err", err.Error()))
		}
	}

	if a.metrics != nil {
		a.metrics.stop()
	}
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/uptrace/bun"

	"sessionbook/backend/internal/clock"
	"sessionbook/backend/internal/config"
	"sessionbook/backend/internal/domain"
	"sessionbook/backend/internal/effects"
	"sessionbook/backend/internal/identity"
	"sessionbook/backend/internal/metrics"
	"sessionbook/backend/internal/notify"
	"sessionbook/backend/internal/payment"
	"sessionbook/backend/internal/service/appointments"
	"sessionbook/backend/internal/store"
	"sessionbook/backend/internal/store/memory"
	"sessionbook/backend/internal/store/postgres"
	"sessionbook/backend/internal/sweeper"
)

// app holds the wired engine shared by the serve and sweep commands.
type app struct {
	repo     store.AppointmentRepository
	svc      *appointments.Service
	sweeper  *sweeper.Sweeper
	registry *prometheus.Registry
	closers  []func() error
}

func (a *app) Close(log *slog.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn("close failed", slog.Any("err", err))
		}
	}
}

func buildApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.registry)

	defaultLoc, err := domain.ParseUTCOffset(cfg.Scheduling.DefaultUTCOffset)
	if err != nil {
		return nil, fmt.Errorf("scheduling.default_utc_offset: %w", err)
	}

	var directory identity.Directory
	switch cfg.StorageDriver {
	case "memory":
		log.Warn("using in-memory storage; appointments are lost on restart and the participant directory starts empty")
		a.repo = memory.NewAppointmentRepo()
		directory = identity.NewStatic()
	default:
		db, err := openDB(cfg, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { return postgres.Close(db) })
		a.repo = postgres.NewAppointmentRepo(db)
		directory = identity.NewCached(postgres.NewParticipantRepo(db, defaultLoc), cfg.IdentityTTL)
	}

	notifier, err := buildNotifier(ctx, cfg, log, a)
	if err != nil {
		a.Close(log)
		return nil, err
	}
	refunder := buildRefunder(cfg, log)

	clk := clock.Real{}
	runner := effects.NewRunner(effects.RunnerConfig{
		Notifier: notifier,
		Refunder: refunder,
		Timeout:  cfg.EffectsTimeout,
		Logger:   log,
		Metrics:  m,
	})
	a.svc = appointments.NewService(appointments.Deps{
		Repo:      a.repo,
		Directory: directory,
		Effects:   runner,
		Clock:     clk,
		Logger:    log,
		Metrics:   m,
	}, appointments.Config{
		SlotStep:          cfg.Scheduling.SlotStep,
		PaymentWindow:     cfg.Scheduling.PaymentWindow,
		NearTermWindow:    cfg.Scheduling.NearTermWindow,
		ConfirmationGrace: cfg.Scheduling.ConfirmationGrace,
		DefaultLocation:   defaultLoc,
	})
	a.sweeper = sweeper.New(a.repo, a.svc, clk, log, m, sweeper.Config{
		BatchSize:     cfg.Sweeper.BatchSize,
		PaymentWindow: cfg.Scheduling.PaymentWindow,
	})
	return a, nil
}

func openDB(cfg config.Config, log *slog.Logger) (*bun.DB, error) {
	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		return nil, err
	}
	return db, nil
}

func buildNotifier(ctx context.Context, cfg config.Config, log *slog.Logger, a *app) (effects.Notifier, error) {
	switch cfg.Notify.Driver {
	case "redis":
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		client, err := notify.DialRedis(dialCtx, cfg.Notify.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("notify redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		log.Info("notifications go to redis", slog.String("channel", cfg.Notify.RedisChannel))
		return notify.NewRedisNotifier(client, cfg.Notify.RedisChannel, log), nil
	case "kafka":
		w := notify.NewKafkaWriter(notify.SplitBrokers(cfg.Notify.KafkaBrokers))
		a.closers = append(a.closers, w.Close)
		log.Info("notifications go to kafka", slog.String("topic", cfg.Notify.KafkaTopic))
		return notify.NewKafkaNotifier(w, cfg.Notify.KafkaTopic), nil
	}
	return notify.NewLogNotifier(log), nil
}

func buildRefunder(cfg config.Config, log *slog.Logger) effects.Refunder {
	if cfg.Payment.Driver == "stripe" {
		return payment.NewStripeRefunder(cfg.Payment.StripeSecretKey, log)
	}
	return payment.NewLogRefunder(log)
}

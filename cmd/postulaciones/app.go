package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"sociosflow/auth"
	"sociosflow/config"
	"sociosflow/db"
	"sociosflow/listing"
	"sociosflow/notify"
	"sociosflow/postulacion"
	"sociosflow/reviewer"
	"sociosflow/socio"
)

// app holds the wired services for one process run.
type app struct {
	cfg          config.Config
	logger       *slog.Logger
	pool         *pgxpool.Pool
	redis        *redis.Client
	dispatcher   *notify.Dispatcher
	applied      []int
	postulacions *postulacion.Service
	reviewers    *reviewer.Service
	listing      *listing.Service
}

// newApp connects to PostgreSQL, brings the schema up to date and wires the
// services. Migrations run on every start; an up-to-date schema is a no-op.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnIdleTime: cfg.DBMaxConnIdle,
	})
	if err != nil {
		return nil, err
	}

	migrator, err := db.NewMigrator(pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	applied, err := migrator.Up(ctx)
	if err != nil {
		pool.Close()
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, pool: pool, applied: applied}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		a.redis = redis.NewClient(opts)
	}

	var mailer notify.Mailer = notify.NewLogMailer(logger)
	if cfg.SMTPEnabled() {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	}
	a.dispatcher = notify.NewDispatcher(mailer, a.redis, cfg.NotifyTimeout, logger)

	postulacionRepo := postulacion.NewRepository()
	reviewerRepo := reviewer.NewRepository()

	a.postulacions = postulacion.NewService(pool, postulacionRepo, socio.NewProvisioner(socio.NewRepository(), logger), logger).
		WithMaxElapsed(cfg.TxMaxElapsed)
	a.reviewers = reviewer.NewService(pool, reviewerRepo, auth.NewRepository(), a.dispatcher, logger).
		WithSiteURL(cfg.SiteURL).
		WithMaxElapsed(cfg.TxMaxElapsed)
	a.listing = listing.NewService(pool, postulacionRepo, reviewerRepo, logger)

	return a, nil
}

// Close waits for submitted notifications before releasing connections.
func (a *app) Close() {
	if a.dispatcher != nil {
		a.dispatcher.Wait()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.pool.Close()
}

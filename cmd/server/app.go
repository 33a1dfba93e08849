package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"perp-autotrader/internal/config"
	"perp-autotrader/internal/domain"
	"perp-autotrader/internal/infrastructure/advisory"
	"perp-autotrader/internal/infrastructure/bybit"
	"perp-autotrader/internal/infrastructure/db"
	"perp-autotrader/internal/infrastructure/fcm"
	"perp-autotrader/internal/infrastructure/logger"
	"perp-autotrader/internal/infrastructure/metrics"
	"perp-autotrader/internal/infrastructure/notify"
	"perp-autotrader/internal/infrastructure/redisclient"
	"perp-autotrader/internal/repository"
	"perp-autotrader/internal/usecase"
)

// app holds the wired engine and everything that must be closed on shutdown.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	engine   *usecase.Engine
	exchange *bybit.TradingClient
	tokens   *repository.TokenRepository
	registry *prometheus.Registry

	pool   *pgxpool.Pool
	redis  *redis.Client
	closer []func() error
}

func loadApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	log = log.With().Str("bot", cfg.BotName).Logger()

	a := &app{cfg: cfg, log: log, tokens: repository.NewTokenRepository(), registry: prometheus.NewRegistry()}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg, log := a.cfg, a.log

	if cfg.Bybit.APIKey == "" || cfg.Bybit.APISecret == "" {
		return fmt.Errorf("BYBIT_API_KEY and BYBIT_API_SECRET are required")
	}
	exchange := bybit.NewTradingClient(cfg.Bybit.APIKey, cfg.Bybit.APISecret, cfg.Bybit.Testnet, cfg.Bybit.Timeout, log)
	if cfg.Bybit.BaseURL != "" {
		exchange = exchange.WithBaseURL(cfg.Bybit.BaseURL)
	}

	a.exchange = exchange
	deps := usecase.EngineDeps{Exchange: exchange}

	a.registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	deps.Metrics = metrics.New(a.registry)

	if cfg.Database.URL != "" {
		pool, err := db.NewPool(ctx, cfg.Database.URL, cfg.Database.Pool)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		a.pool = pool
		if err := db.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		deps.Audit = repository.NewPostgresAuditRepository(pool, cfg.BotName)
		log.Info().Msg("✅ Postgres audit store ready")
	} else {
		deps.Audit = repository.NewInMemoryAuditRepository()
		log.Warn().Msg("DATABASE_URL not set, audit kept in memory")
	}

	if cfg.Redis.Enabled() {
		client, err := redisclient.New(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.redis = client
		deps.QuarantineStore = repository.NewRedisQuarantineRepository(client, cfg.Redis.Prefix, log)
		deps.Cache = repository.NewRedisMarketCache(client, cfg.Redis.Prefix)
		log.Info().Msg("✅ Redis quarantine store and market cache ready")
	} else {
		deps.Cache = repository.NewInMemoryMarketCache()
		if a.pool != nil {
			deps.QuarantineStore = repository.NewPostgresQuarantineRepository(a.pool)
		} else {
			deps.QuarantineStore = repository.NewInMemoryQuarantineRepository()
			log.Warn().Msg("no Redis or Postgres configured, quarantine is lost on restart")
		}
	}

	if cfg.Advisory.Enabled() {
		deps.Advisor = advisory.NewClient(cfg.Advisory, log)
	} else {
		log.Warn().Msg("advisory API key not set, trading on own signals only")
	}

	senders, err := a.senders(ctx)
	if err != nil {
		return err
	}
	deps.Senders = senders

	a.engine = usecase.NewEngine(cfg.Engine(), deps, log)
	return nil
}

func (a *app) senders(ctx context.Context) ([]domain.Sender, error) {
	cfg, log := a.cfg, a.log
	var out []domain.Sender

	if cfg.Telegram.Enabled() {
		out = append(out, notify.NewTelegramSender(cfg.Telegram.BotToken, cfg.Telegram.ChatIDs))
	}

	push, err := fcm.NewClient(ctx, cfg.FCM, a.tokens, log)
	if err != nil {
		return nil, err
	}
	if push.IsEnabled() {
		out = append(out, push)
	}

	if cfg.Kafka.Enabled() {
		k, err := notify.NewKafkaSender(cfg.Kafka, cfg.BotName)
		if err != nil {
			return nil, err
		}
		a.closer = append(a.closer, k.Close)
		out = append(out, k)
	}

	if len(out) == 0 {
		log.Warn().Msg("no notification channel configured")
	}
	return out, nil
}

func (a *app) Close() {
	for _, c := range a.closer {
		if err := c(); err != nil {
			a.log.Warn().Err(err).Msg("close failed")
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sendgrid/sendgrid-go"
	"github.com/twilio/twilio-go"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/config"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/engine"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/ledger"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/metrics"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/notify"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/store"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

const (
	maxRetries     = 5
	connectTimeout = 5 * time.Second
	initialBackoff = 500 * time.Millisecond
)

// App holds the connected backends and the engine built on top of them.
type App struct {
	Config  *config.Config
	DB      *pgxpool.Pool
	Redis   *redis.Client
	Store   store.Store
	Ledger  ledger.Ledger
	Staff   store.StaffRepository
	Channel notify.Channel
	Metrics *metrics.Collector
	Engine  *engine.Engine
}

/*
Connect opens every backend the config asks for and returns a ready App.
Nothing connects lazily afterwards. reg may be nil for the default registry.
*/
func Connect(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*App, error) {
	a := &App{Config: cfg, Metrics: metrics.NewCollector(reg)}

	if cfg.LDFlag_UsePostgresStore {
		pool, err := ConnectDB(ctx, cfg.DBUrl)
		if err != nil {
			return nil, err
		}
		a.DB = pool
		if err := store.Migrate(ctx, pool); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		a.Store = store.NewPostgresStore(pool)
		a.Staff = store.NewStaffRepository(pool)
	} else {
		utils.Logger.Warn("Postgres store disabled; jobs are kept in memory")
		a.Store = store.NewMemoryStore()
		a.Staff = store.NewMemoryStaffRepository()
	}

	if cfg.LDFlag_UseRedisLedger {
		rc := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		err := rc.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = rc.Close()
			a.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		a.Redis = rc
		a.Ledger = ledger.NewRedisLedger(rc, "")
		utils.Logger.Infof("Idempotency ledger using Redis at %s", cfg.RedisAddr)
	} else {
		utils.Logger.Warn("Redis ledger disabled; dedupe is local to this replica")
		a.Ledger = ledger.NewMemoryLedger(utils.SystemClock)
	}

	a.Channel = newChannel(cfg, a.Staff)

	a.Engine = engine.New(a.Store, a.Ledger, a.Channel, a.Staff, utils.SystemClock, a.Metrics, engine.Options{
		NotificationWindow: cfg.NotificationWindow,
		FeedDedupeWindow:   cfg.FeedDedupeWindow,
		DefaultOfferTTL:    cfg.OfferTTL,
	})

	if cfg.LDFlag_SeedDbWithTestData {
		if err := SeedTestData(ctx, a.Store, a.Staff); err != nil {
			a.Close()
			return nil, fmt.Errorf("seed test data: %w", err)
		}
	}
	return a, nil
}

func newChannel(cfg *config.Config, dir notify.StaffDirectory) notify.Channel {
	if !cfg.MessagingEnabled() {
		utils.Logger.Warn("Twilio/SendGrid credentials missing; notifications go to the log")
		return notify.LogChannel{}
	}
	twClient := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.TwilioAccountSID,
		Password: cfg.TwilioAuthToken,
	})
	sgClient := sendgrid.NewSendClient(cfg.SendGridAPIKey)
	messaging := notify.NewMessagingChannel(notify.MessagingConfig{
		OrganizationName: cfg.OrganizationName,
		FromPhone:        cfg.LDFlag_TwilioFromPhone,
		FromEmail:        cfg.LDFlag_SendgridFromEmail,
		SandboxMode:      cfg.LDFlag_SendgridSandboxMode,
	}, dir, twClient.Api, sgClient)
	if cfg.Env != utils.ProdEnvironment {
		// outside prod every notification is also echoed to the log
		return notify.Fanout{messaging, notify.LogChannel{}}
	}
	return messaging
}

// Ping checks the store and, when shared, the ledger.
func (a *App) Ping(ctx context.Context) error {
	if err := a.Store.Ping(ctx); err != nil {
		return err
	}
	if rl, ok := a.Ledger.(*ledger.RedisLedger); ok {
		return rl.Ping(ctx)
	}
	return nil
}

func (a *App) Close() {
	if ps, ok := a.Store.(*store.PostgresStore); ok {
		ps.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
		utils.Logger.Info("jobsync-service Redis connection closed.")
	}
	if a.DB != nil {
		a.DB.Close()
		utils.Logger.Info("jobsync-service DB connection closed.")
	}
}

// ConnectDB opens a pgx pool, retrying with exponential backoff.
func ConnectDB(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	var (
		pool    *pgxpool.Pool
		err     error
		backoff = initialBackoff
	)
	for i := 1; i <= maxRetries; i++ {
		attemptCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		pool, err = newDBPool(attemptCtx, databaseURL)
		cancel()
		if err == nil {
			utils.Logger.Infof("jobsync-service connected to DB on attempt %d", i)
			return pool, nil
		}

		utils.Logger.WithError(err).Warnf(
			"Failed DB connect on attempt %d/%d. Retrying in %v...",
			i, maxRetries, backoff,
		)
		if i == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("unable to connect after %d attempts: %w", maxRetries, err)
}

func newDBPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConnIdleTime = 2 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second
	return pgxpool.ConnectConfig(ctx, cfg)
}

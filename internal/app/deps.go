// Package app wires configuration into the services used by the securebank commands.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"

	accountrepo "securebank/internal/account/repository"
	accountservice "securebank/internal/account/service"
	"securebank/internal/audit"
	auditrepo "securebank/internal/audit/repository"
	"securebank/internal/config"
	"securebank/internal/db"
	"securebank/internal/devotp"
	"securebank/internal/events"
	identityservice "securebank/internal/identity/service"
	"securebank/internal/mfa"
	mfarepo "securebank/internal/mfa/repository"
	"securebank/internal/mfa/notify"
	"securebank/internal/security"
	telemetryotel "securebank/internal/telemetry/otel"
)

// ServiceName is the OTel service.name of the console program.
const ServiceName = "securebank"

// Deps holds the wired services and the connections behind them.
type Deps struct {
	// DB is the Postgres handle. Nil when DATABASE_URL is unset; accounts then live in memory.
	DB *sql.DB
	// Redis is set when REDIS_URL is configured. It backs the event stream and, optionally, challenges.
	Redis redis.UniversalClient
	// Accounts is the account repository (Postgres or in-memory).
	Accounts accountrepo.Repository
	// DevOTP receives delivered codes when OTP_NOTIFIER=capture. Nil otherwise.
	DevOTP devotp.Store
	// Auth is the registration and login service.
	Auth *identityservice.AuthService
	// Engine applies deposits and withdrawals.
	Engine *accountservice.Engine
	// Telemetry holds the OTel providers; Close shuts them down.
	Telemetry *telemetryotel.Providers

	closers []func(context.Context) error
}

// Build connects to the configured backends and constructs the services. Console output of the
// console notifier goes to out. A returned error wrapping security.ErrCryptoConfiguration means
// the password derivation settings are unusable and the process must not start.
func Build(ctx context.Context, cfg *config.Config, out io.Writer) (*Deps, error) {
	d := &Deps{}
	built := false
	defer func() {
		if !built {
			_ = d.Close(ctx)
		}
	}()

	deriver, err := security.NewDeriver(security.DeriverConfig{
		Hash:       cfg.PBKDF2Hash,
		Iterations: cfg.PBKDF2Iterations,
		KeyLength:  cfg.PBKDF2KeyLength,
		SaltLength: cfg.PBKDF2SaltLength,
	})
	if err != nil {
		return nil, err
	}

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, ServiceName, cfg.OTLPInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()
	d.Telemetry = providers
	d.closers = append(d.closers, providers.Shutdown)

	var audits auditrepo.Repository = auditrepo.NewMemoryRepository()
	d.Accounts = accountrepo.NewMemoryRepository()
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db: %w", err)
		}
		d.DB = conn
		d.closers = append(d.closers, func(context.Context) error { return conn.Close() })
		d.Accounts = accountrepo.NewPostgresRepository(conn)
		audits = auditrepo.NewPostgresRepository(conn)
	}

	publisher := events.Publisher(events.NopPublisher{})
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		client := redis.NewClient(opts)
		d.Redis = client
		d.closers = append(d.closers, func(context.Context) error { return client.Close() })

		pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: client}, watermill.NewStdLogger(false, false))
		if err != nil {
			return nil, fmt.Errorf("event publisher: %w", err)
		}
		d.closers = append(d.closers, func(context.Context) error { return pub.Close() })
		publisher = events.NewWatermillPublisher(pub, cfg.EventsTopic)
	}

	challengeRepo, err := d.challengeRepository(cfg)
	if err != nil {
		return nil, err
	}
	challenges := mfa.NewService(challengeRepo, cfg.ChallengeTTL())
	notifier, err := d.notifier(cfg, out, challenges.TTL())
	if err != nil {
		return nil, err
	}

	auditLogger := audit.NewLogger(audits, providers.LoggerProvider)
	d.Engine = accountservice.NewEngine(d.Accounts, auditLogger, publisher)
	d.Auth = identityservice.NewAuthService(
		d.Accounts,
		deriver,
		challenges,
		notifier,
		auditLogger,
		publisher,
		identityservice.Options{UniformErrors: cfg.UniformLoginErrors, MaxAmount: cfg.MaxAmount()},
	)
	built = true
	return d, nil
}

func (d *Deps) challengeRepository(cfg *config.Config) (mfarepo.Repository, error) {
	switch cfg.ChallengeStore {
	case config.ChallengeStoreRedis:
		if d.Redis == nil {
			return nil, errors.New("challenge store: redis selected but REDIS_URL is not set")
		}
		return mfarepo.NewRedisRepository(d.Redis, ""), nil
	case config.ChallengeStorePostgres:
		if d.DB == nil {
			return nil, errors.New("challenge store: postgres selected but DATABASE_URL is not set")
		}
		return mfarepo.NewPostgresRepository(d.DB), nil
	default:
		return mfarepo.NewMemoryRepository(), nil
	}
}

// notifier builds the code delivery channel; validFor is the challenge lifetime it reports.
func (d *Deps) notifier(cfg *config.Config, out io.Writer, validFor time.Duration) (notify.Notifier, error) {
	switch cfg.OTPNotifier {
	case config.NotifierWebhook:
		return notify.NewWebhookNotifier(cfg.OTPWebhookURL), nil
	case config.NotifierCapture:
		if cfg.Env == "production" {
			return nil, errors.New("notifier: capture must not be used in production")
		}
		store := devotp.NewMemoryStore()
		d.DevOTP = store
		log.Println("notifier: capturing one-time codes in memory (development only)")
		return notify.NewCaptureNotifier(store, validFor), nil
	default:
		return notify.NewConsoleNotifier(out, validFor), nil
	}
}

// Close releases everything Build opened, newest first.
func (d *Deps) Close(ctx context.Context) error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

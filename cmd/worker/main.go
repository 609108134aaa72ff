// Worker consumes account events from the Redis stream and logs them. With DATABASE_URL set it
// also purges expired login challenges from Postgres. Set REDIS_URL and optionally EVENTS_TOPIC.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"

	"securebank/internal/config"
	"securebank/internal/db"
	"securebank/internal/events"
	mfarepo "securebank/internal/mfa/repository"
)

const (
	consumerGroup = "securebank-worker"
	purgeInterval = time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.RedisURL == "" {
		log.Fatal("worker: REDIS_URL is required")
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("worker: REDIS_URL: %v", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:        client,
		ConsumerGroup: consumerGroup,
	}, watermill.NewStdLogger(false, false))
	if err != nil {
		log.Fatalf("worker: subscriber: %v", err)
	}
	defer subscriber.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL != "" {
		conn, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("worker: db: %v", err)
		}
		defer conn.Close()
		go purgeChallenges(ctx, mfarepo.NewPostgresRepository(conn))
	}

	messages, err := subscriber.Subscribe(ctx, cfg.EventsTopic)
	if err != nil {
		log.Fatalf("worker: subscribe %s: %v", cfg.EventsTopic, err)
	}
	log.Printf("worker: consuming %s as %s", cfg.EventsTopic, consumerGroup)

	for msg := range messages {
		e, err := events.Decode(msg)
		if err != nil {
			log.Printf("worker: %v", err)
			msg.Ack()
			continue
		}
		switch e.Type {
		case events.TypeBalanceChanged:
			log.Printf("worker: %s account=%s amount=%s balance=%s at=%s",
				e.Type, e.AccountID, e.Amount, e.Balance, e.OccurredAt.Format(time.RFC3339))
		default:
			log.Printf("worker: %s account=%s session=%s at=%s",
				e.Type, e.AccountID, e.SessionID, e.OccurredAt.Format(time.RFC3339))
		}
		msg.Ack()
	}
	log.Println("worker: stopped")
}

func purgeChallenges(ctx context.Context, repo *mfarepo.PostgresRepository) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.DeleteExpired(ctx)
			if err != nil {
				log.Printf("worker: purge challenges: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("worker: purged %d expired challenges", n)
			}
		}
	}
}

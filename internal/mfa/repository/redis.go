package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"securebank/internal/mfa/domain"
)

// ErrChallengeBackend wraps Redis failures.
var ErrChallengeBackend = errors.New("mfa challenge backend unavailable")

type redisRecord struct {
	AccountID string    `json:"account_id"`
	CodeHash  string    `json:"code_hash"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RedisRepository keeps challenges in Redis with a TTL matching their expiry. Consume uses
// GETDEL so a challenge is handed out at most once across processes.
type RedisRepository struct {
	client redis.UniversalClient
	prefix string
	nowF   func() time.Time
}

// NewRedisRepository returns a Redis-backed challenge repository. An empty prefix defaults
// to "securebank:mfa".
func NewRedisRepository(client redis.UniversalClient, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "securebank:mfa"
	}
	return &RedisRepository{client: client, prefix: prefix, nowF: time.Now}
}

func (r *RedisRepository) key(id string) string {
	return r.prefix + ":" + id
}

// Create stores c with a TTL of its remaining lifetime. An already expired challenge is not stored.
func (r *RedisRepository) Create(ctx context.Context, c *domain.Challenge) error {
	ttl := c.ExpiresAt.Sub(r.nowF())
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(redisRecord{
		AccountID: c.AccountID,
		CodeHash:  c.CodeHash,
		IssuedAt:  c.IssuedAt,
		ExpiresAt: c.ExpiresAt,
	})
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(c.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return nil
}

// Consume fetches and deletes the challenge in one round trip.
func (r *RedisRepository) Consume(ctx context.Context, id string) (*domain.Challenge, error) {
	data, err := r.client.GetDel(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	var rec redisRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode challenge %s: %w", id, err)
	}
	return &domain.Challenge{
		ID:        id,
		AccountID: rec.AccountID,
		CodeHash:  rec.CodeHash,
		IssuedAt:  rec.IssuedAt,
		ExpiresAt: rec.ExpiresAt,
		State:     domain.StateIssued,
	}, nil
}

// Package redisstore keeps OTP challenges and session revocations in Redis
// so that any instance behind a load balancer sees state written by another.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/securebank-go/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "securebank:otp:"

// ChallengeStore implements port.ChallengeStore on Redis. Keys expire a
// minute after the OTP TTL; expiry itself is decided by the manager.
type ChallengeStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewClient opens a client that the stores in this package can share.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewChallengeStore connects to Redis at addr.
func NewChallengeStore(addr, password string, db int, logger *zap.Logger) *ChallengeStore {
	return NewChallengeStoreWithClient(NewClient(addr, password, db), logger)
}

// NewChallengeStoreWithClient wraps an existing client.
func NewChallengeStoreWithClient(client *redis.Client, logger *zap.Logger) *ChallengeStore {
	return &ChallengeStore{client: client, ttl: domain.OTPTTL + time.Minute, logger: logger}
}

func (s *ChallengeStore) key(sessionID string) string {
	return keyPrefix + sessionID
}

func (s *ChallengeStore) Get(ctx context.Context, sessionID string) (*domain.Challenge, bool, error) {
	val, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get challenge: %w", err)
	}

	var c domain.Challenge
	if err := json.Unmarshal(val, &c); err != nil {
		s.logger.Warn("dropping unreadable challenge", zap.Error(err))
		_ = s.client.Del(ctx, s.key(sessionID)).Err()
		return nil, false, nil
	}
	return &c, true, nil
}

func (s *ChallengeStore) Put(ctx context.Context, c *domain.Challenge) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode challenge: %w", err)
	}
	if err := s.client.Set(ctx, s.key(c.SessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set challenge: %w", err)
	}
	return nil
}

func (s *ChallengeStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis del challenge: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable. Used by /readyz.
func (s *ChallengeStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (s *ChallengeStore) Close() error {
	return s.client.Close()
}

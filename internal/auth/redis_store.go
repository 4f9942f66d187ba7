package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	revokedTokenPrefix  = "revoked:jti:"
	revokedFamilyPrefix = "revoked:family:"
	minRevocationTTL    = time.Second
)

// RedisRevocationStore shares the revocation set across API instances. Keys
// expire with the tokens they name.
type RedisRevocationStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisRevocationStore constructs a Redis-backed store.
func NewRedisRevocationStore(client *redis.Client) *RedisRevocationStore {
	return &RedisRevocationStore{client: client, now: time.Now}
}

// Consume implements RevocationStore using SET NX.
func (s *RedisRevocationStore) Consume(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	ok, err := s.client.SetNX(ctx, revokedTokenPrefix+jti, "1", s.ttl(expiresAt)).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx revoked token: %w", err)
	}
	return ok, nil
}

// RevokeFamily implements RevocationStore. An existing entry is kept when it already outlives expiresAt.
func (s *RedisRevocationStore) RevokeFamily(ctx context.Context, family string, expiresAt time.Time) error {
	key := revokedFamilyPrefix + family
	ttl := s.ttl(expiresAt)
	current, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis ttl revoked family: %w", err)
	}
	if current >= ttl {
		return nil
	}
	if err := s.client.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis set revoked family: %w", err)
	}
	return nil
}

// IsRevoked implements RevocationStore.
func (s *RedisRevocationStore) IsRevoked(ctx context.Context, jti, family string) (bool, error) {
	keys := make([]string, 0, 2)
	if jti != "" {
		keys = append(keys, revokedTokenPrefix+jti)
	}
	if family != "" {
		keys = append(keys, revokedFamilyPrefix+family)
	}
	if len(keys) == 0 {
		return false, nil
	}
	n, err := s.client.Exists(ctx, keys...).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists revoked: %w", err)
	}
	return n > 0, nil
}

func (s *RedisRevocationStore) ttl(expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(s.now())
	if ttl < minRevocationTTL {
		return minRevocationTTL
	}
	return ttl
}

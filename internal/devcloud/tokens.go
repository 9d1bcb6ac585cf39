package devcloud

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrTokenNotFound = errors.New("access token not found or expired")

// TokenStore keeps issued access tokens until they expire.
type TokenStore interface {
	Put(ctx context.Context, token, appID string, ttl time.Duration) error
	Lookup(ctx context.Context, token string) (appID string, err error)
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

const redisTokenPrefix = "devcloud:token:"

// RedisTokens stores tokens as expiring redis keys.
type RedisTokens struct {
	rdb *redis.Client
}

func NewRedisTokens(rdb *redis.Client) *RedisTokens {
	return &RedisTokens{rdb: rdb}
}

func (s *RedisTokens) Put(ctx context.Context, token, appID string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, redisTokenPrefix+token, appID, ttl).Err(); err != nil {
		return fmt.Errorf("storing token: %w", err)
	}
	return nil
}

func (s *RedisTokens) Lookup(ctx context.Context, token string) (string, error) {
	appID, err := s.rdb.Get(ctx, redisTokenPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrTokenNotFound
	}
	if err != nil {
		return "", fmt.Errorf("looking up token: %w", err)
	}
	return appID, nil
}

// MemoryTokens is a TokenStore for runs without redis.
type MemoryTokens struct {
	mu     sync.Mutex
	now    func() time.Time
	tokens map[string]memoryToken
}

type memoryToken struct {
	appID   string
	expires time.Time
}

func NewMemoryTokens() *MemoryTokens {
	return &MemoryTokens{now: time.Now, tokens: make(map[string]memoryToken)}
}

func (s *MemoryTokens) Put(_ context.Context, token, appID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, t := range s.tokens {
		if !now.Before(t.expires) {
			delete(s.tokens, k)
		}
	}
	s.tokens[token] = memoryToken{appID: appID, expires: now.Add(ttl)}
	return nil
}

func (s *MemoryTokens) Lookup(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok || !s.now().Before(t.expires) {
		return "", ErrTokenNotFound
	}
	return t.appID, nil
}

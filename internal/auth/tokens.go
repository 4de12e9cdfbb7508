package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenStore maps session tokens to usernames with expiry. Get returns
// ErrUnauthorized for unknown or expired tokens.
type TokenStore interface {
	Put(ctx context.Context, token, username string, ttl time.Duration) error
	Get(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
}

type memEntry struct {
	username string
	expires  time.Time
}

// MemoryTokens keeps tokens in process. Tokens do not survive a restart.
type MemoryTokens struct {
	mu  sync.Mutex
	m   map[string]memEntry
	now func() time.Time
}

func NewMemoryTokens() *MemoryTokens {
	return &MemoryTokens{m: make(map[string]memEntry), now: time.Now}
}

func (t *MemoryTokens) Put(_ context.Context, token, username string, ttl time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	// sweep expired entries
	for k, e := range t.m {
		if now.After(e.expires) {
			delete(t.m, k)
		}
	}
	t.m[token] = memEntry{username: username, expires: now.Add(ttl)}
	return nil
}

func (t *MemoryTokens) Get(_ context.Context, token string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.m[token]
	if !ok {
		return "", ErrUnauthorized
	}
	if t.now().After(e.expires) {
		delete(t.m, token)
		return "", ErrUnauthorized
	}
	return e.username, nil
}

func (t *MemoryTokens) Delete(_ context.Context, token string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, token)
	return nil
}

// RedisTokens stores tokens as expiring keys so several server processes
// share sessions.
type RedisTokens struct {
	client *redis.Client
	prefix string
}

// NewRedisTokens uses client; keys are "visionchat:token:<token>".
func NewRedisTokens(client *redis.Client) *RedisTokens {
	return &RedisTokens{client: client, prefix: "visionchat:token:"}
}

// DialRedis connects and pings.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func (t *RedisTokens) Put(ctx context.Context, token, username string, ttl time.Duration) error {
	return t.client.Set(ctx, t.prefix+token, username, ttl).Err()
}

func (t *RedisTokens) Get(ctx context.Context, token string) (string, error) {
	v, err := t.client.Get(ctx, t.prefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrUnauthorized
	}
	return v, err
}

func (t *RedisTokens) Delete(ctx context.Context, token string) error {
	return t.client.Del(ctx, t.prefix+token).Err()
}

// Close closes the underlying client.
func (t *RedisTokens) Close() error { return t.client.Close() }

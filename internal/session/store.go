package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store errors.
var (
	ErrNotFound         = errors.New("session not found")
	ErrInvalidConfig    = errors.New("invalid store configuration")
	ErrInvalidStoreType = errors.New("invalid store type")
)

// Store defines durable session storage. Implementations must make
// GetOrCreate safe under concurrent duplicate delivery of the same id: the
// second creator observes the first's record, never a duplicate.
type Store interface {
	// GetOrCreate returns the session for id, creating it atomically if
	// absent. The bool reports whether a new session was created. Sessions
	// whose ExpiresAt has passed are marked expired before being returned.
	GetOrCreate(ctx context.Context, id, msisdn, network string) (*Session, bool, error)

	// Save persists the session.
	Save(ctx context.Context, s *Session) error

	// Extend refreshes ExpiresAt and persists; called on every successful turn.
	Extend(ctx context.Context, s *Session, d time.Duration) error

	// AcquireTurnLock takes the per-session mutual-exclusion lock for one
	// turn. Returns false if another turn for the same id is in flight.
	AcquireTurnLock(ctx context.Context, id string) (bool, error)

	// ReleaseTurnLock releases the per-session lock.
	ReleaseTurnLock(ctx context.Context, id string) error

	// Close releases store resources.
	Close() error
}

// StoreType selects the session store driver.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

// StoreOption is a functional option for configuring a session store.
type StoreOption func(*storeConfig)

type storeConfig struct {
	redisClient *redis.Client
	ttl         time.Duration // session lifetime (ExpiresAt window)
	recordTTL   time.Duration // how long a terminal session record stays readable
	lockTTL     time.Duration
	nowFunc     func() time.Time
}

// WithRedisClient sets the Redis client for the redis driver.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) { c.redisClient = client }
}

// WithSessionTTL sets the sliding session lifetime.
func WithSessionTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) { c.ttl = ttl }
}

// WithLockTTL bounds how long a turn may hold the per-session lock.
func WithLockTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) { c.lockTTL = ttl }
}

// WithNowFunc overrides the clock, for tests.
func WithNowFunc(now func() time.Time) StoreOption {
	return func(c *storeConfig) { c.nowFunc = now }
}

// NewStore creates a session Store of the given driver type.
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	cfg := &storeConfig{
		ttl:       3 * time.Minute,
		recordTTL: 24 * time.Hour,
		lockTTL:   30 * time.Second,
		nowFunc:   time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	switch storeType {
	case StoreTypeMemory:
		return newMemoryStore(cfg), nil
	case StoreTypeRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return &redisStore{cfg: cfg, client: cfg.redisClient}, nil
	default:
		return nil, ErrInvalidStoreType
	}
}

func newSession(id, msisdn, network string, now time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:          id,
		MSISDN:      msisdn,
		Network:     network,
		CurrentMenu: "main",
		Data:        map[string]string{},
		Language:    "en",
		State:       StateActive,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

// expireIfStale flips an overdue active session to expired. Lazy
// check-on-read; there is no background sweeper.
func expireIfStale(s *Session, now time.Time) bool {
	if s.State == StateActive && !now.Before(s.ExpiresAt) {
		s.State = StateExpired
		s.UpdatedAt = now
		return true
	}
	return false
}

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "ussd:session:"
	lockKeyPrefix    = "ussd:lock:"
)

// redisStore implements Store on Redis. Atomic insert-if-absent is SETNX on
// the session key, so two concurrent creators for the same gateway session id
// converge on a single record.
type redisStore struct {
	cfg    *storeConfig
	client *redis.Client
}

func (r *redisStore) GetOrCreate(ctx context.Context, id, msisdn, network string) (*Session, bool, error) {
	key := sessionKeyPrefix + id
	now := r.cfg.nowFunc()

	fresh := newSession(id, msisdn, network, now, r.cfg.ttl)
	raw, err := json.Marshal(fresh)
	if err != nil {
		return nil, false, err
	}

	created, err := r.client.SetNX(ctx, key, raw, r.cfg.recordTTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("setnx session: %w", err)
	}
	if created {
		return fresh, true, nil
	}

	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Record evicted between SETNX and GET; treat as not found
			// rather than racing a second create.
			return nil, false, ErrNotFound
		}
		return nil, false, fmt.Errorf("get session: %w", err)
	}

	var s Session
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, false, fmt.Errorf("decode session: %w", err)
	}
	if expireIfStale(&s, now) {
		if err := r.Save(ctx, &s); err != nil {
			return nil, false, err
		}
	}
	return &s, false, nil
}

func (r *redisStore) Save(ctx context.Context, s *Session) error {
	s.UpdatedAt = r.cfg.nowFunc()
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	// KeepTTL preserves the record TTL set at creation; terminal sessions
	// stay readable so a replayed turn can be refused instead of recreated.
	if err := r.client.Set(ctx, sessionKeyPrefix+s.ID, raw, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *redisStore) Extend(ctx context.Context, s *Session, d time.Duration) error {
	s.ExpiresAt = r.cfg.nowFunc().Add(d)
	return r.Save(ctx, s)
}

func (r *redisStore) AcquireTurnLock(ctx context.Context, id string) (bool, error) {
	ok, err := r.client.SetNX(ctx, lockKeyPrefix+id, "1", r.cfg.lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquire turn lock: %w", err)
	}
	return ok, nil
}

func (r *redisStore) ReleaseTurnLock(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, lockKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("release turn lock: %w", err)
	}
	return nil
}

func (r *redisStore) Close() error {
	return r.client.Close()
}

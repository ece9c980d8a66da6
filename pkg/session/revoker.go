package session

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revoker tracks revoked access tokens by jti, and per-user cutoffs so that
// a password change invalidates everything issued before it.
type Revoker interface {
	Revoke(jti string, ttl time.Duration) error
	IsRevoked(jti string) (bool, error)
	RevokeUser(subject string, since time.Time) error
	RevokedAfter(subject string) (time.Time, error)
}

const (
	revokedKeyPrefix = "cropadviser:session:revoked:"
	cutoffKeyPrefix  = "cropadviser:session:cutoff:"
	// Cutoffs only matter while tokens issued before them can still be
	// alive, but keeping them for a week is cheap and simple.
	cutoffTTL = 7 * 24 * time.Hour

	redisTimeout = 3 * time.Second
)

// RedisRevoker stores revocations in Redis with TTLs.
type RedisRevoker struct {
	client *redis.Client
}

func NewRedisRevoker(addr, password string) *RedisRevoker {
	return &RedisRevoker{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
	}
}

func (r *RedisRevoker) Revoke(jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	return r.client.Set(ctx, revokedKeyPrefix+jti, "1", ttl).Err()
}

func (r *RedisRevoker) IsRevoked(jti string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	n, err := r.client.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisRevoker) RevokeUser(subject string, since time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	return r.client.Set(ctx, cutoffKeyPrefix+subject, strconv.FormatInt(since.UTC().UnixNano(), 10), cutoffTTL).Err()
}

func (r *RedisRevoker) RevokedAfter(subject string) (time.Time, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	raw, err := r.client.Get(ctx, cutoffKeyPrefix+subject).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, nil
	}
	return time.Unix(0, nanos).UTC(), nil
}

// MemoryRevoker is an in-process Revoker for tests.
type MemoryRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	cutoffs map[string]time.Time
}

func NewMemoryRevoker() *MemoryRevoker {
	return &MemoryRevoker{
		revoked: make(map[string]time.Time),
		cutoffs: make(map[string]time.Time),
	}
}

func (r *MemoryRevoker) Revoke(jti string, ttl time.Duration) error {
	r.mu.Lock()
	r.revoked[jti] = time.Now().Add(ttl)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRevoker) IsRevoked(jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	expiry, ok := r.revoked[jti]
	if !ok {
		return false, nil
	}
	if time.Now().After(expiry) {
		delete(r.revoked, jti)
		return false, nil
	}
	return true, nil
}

func (r *MemoryRevoker) RevokeUser(subject string, since time.Time) error {
	r.mu.Lock()
	r.cutoffs[subject] = since.UTC()
	r.mu.Unlock()
	return nil
}

func (r *MemoryRevoker) RevokedAfter(subject string) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cutoffs[subject], nil
}

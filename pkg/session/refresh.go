package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrRefreshInvalid = errors.New("invalid refresh token")
	ErrRefreshReplay  = errors.New("refresh token reuse detected")
)

// RefreshStore persists refresh tokens grouped into families. Rotation keeps
// the family alive; presenting an already-rotated token revokes the whole
// family (replay detection).
type RefreshStore interface {
	Issue(userID uint, ttl time.Duration) (string, error)
	Rotate(token string, ttl time.Duration) (userID uint, newToken string, err error)
	Revoke(token string) error
	RevokeUser(userID uint) error
}

const refreshPrefix = "cropadviser:refresh"

// rotateScript swaps the family's current token hash atomically. A mismatch
// means the presented token was already rotated, so the family is torn down.
var rotateScript = redis.NewScript(`
local prefix = ARGV[1]
local oldHash = ARGV[2]
local newHash = ARGV[3]
local ttlMs = tonumber(ARGV[4])
local familyID = redis.call("GET", prefix .. ":token:" .. oldHash)
if not familyID then
  return {"invalid", ""}
end
local famKey = prefix .. ":family:" .. familyID
local current = redis.call("HGET", famKey, "current")
local userID = redis.call("HGET", famKey, "user_id")
if not current or not userID or current ~= oldHash then
  local tokens = redis.call("SMEMBERS", famKey .. ":tokens")
  for _, h in ipairs(tokens) do
    redis.call("DEL", prefix .. ":token:" .. h)
  end
  redis.call("DEL", famKey .. ":tokens")
  redis.call("DEL", famKey)
  if userID then
    redis.call("SREM", prefix .. ":user:" .. userID, familyID)
  end
  return {"replay", ""}
end
redis.call("SET", prefix .. ":token:" .. newHash, familyID, "PX", ttlMs)
redis.call("HSET", famKey, "current", newHash)
redis.call("PEXPIRE", famKey, ttlMs)
redis.call("SADD", famKey .. ":tokens", newHash)
redis.call("PEXPIRE", famKey .. ":tokens", ttlMs)
return {"ok", userID}
`)

// RedisRefreshStore keeps refresh token families in Redis.
type RedisRefreshStore struct {
	client *redis.Client
}

func NewRedisRefreshStore(addr, password string) *RedisRefreshStore {
	return &RedisRefreshStore{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
	}
}

func (s *RedisRefreshStore) Issue(userID uint, ttl time.Duration) (string, error) {
	token := newRefreshToken()
	familyID := uuid.NewString()
	hash := tokenHash(token)
	subject := formatUserID(userID)

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, refreshPrefix+":token:"+hash, familyID, ttl)
	pipe.HSet(ctx, familyKey(familyID), map[string]any{"user_id": subject, "current": hash})
	pipe.Expire(ctx, familyKey(familyID), ttl)
	pipe.SAdd(ctx, familyKey(familyID)+":tokens", hash)
	pipe.Expire(ctx, familyKey(familyID)+":tokens", ttl)
	pipe.SAdd(ctx, userFamiliesKey(subject), familyID)
	pipe.Expire(ctx, userFamiliesKey(subject), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}
	return token, nil
}

func (s *RedisRefreshStore) Rotate(token string, ttl time.Duration) (uint, string, error) {
	newToken := newRefreshToken()
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	res, err := rotateScript.Run(ctx, s.client, []string{},
		refreshPrefix, tokenHash(token), tokenHash(newToken), ttl.Milliseconds()).StringSlice()
	if err != nil {
		return 0, "", err
	}
	if len(res) != 2 {
		return 0, "", fmt.Errorf("unexpected rotate reply: %v", res)
	}
	switch res[0] {
	case "ok":
		userID, err := parseUserID(res[1])
		if err != nil {
			return 0, "", ErrRefreshInvalid
		}
		return userID, newToken, nil
	case "replay":
		return 0, "", ErrRefreshReplay
	default:
		return 0, "", ErrRefreshInvalid
	}
}

func (s *RedisRefreshStore) Revoke(token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	familyID, err := s.client.Get(ctx, refreshPrefix+":token:"+tokenHash(token)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	return s.revokeFamily(ctx, familyID)
}

func (s *RedisRefreshStore) RevokeUser(userID uint) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	subject := formatUserID(userID)
	familyIDs, err := s.client.SMembers(ctx, userFamiliesKey(subject)).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	for _, familyID := range familyIDs {
		if err := s.revokeFamily(ctx, familyID); err != nil {
			return err
		}
	}
	if err := s.client.Del(ctx, userFamiliesKey(subject)).Err(); err != nil && err != redis.Nil {
		return err
	}
	return nil
}

func (s *RedisRefreshStore) revokeFamily(ctx context.Context, familyID string) error {
	subject, err := s.client.HGet(ctx, familyKey(familyID), "user_id").Result()
	if err != nil && err != redis.Nil {
		return err
	}
	hashes, err := s.client.SMembers(ctx, familyKey(familyID)+":tokens").Result()
	if err != nil && err != redis.Nil {
		return err
	}
	pipe := s.client.TxPipeline()
	for _, hash := range hashes {
		pipe.Del(ctx, refreshPrefix+":token:"+hash)
	}
	pipe.Del(ctx, familyKey(familyID)+":tokens")
	pipe.Del(ctx, familyKey(familyID))
	if subject != "" {
		pipe.SRem(ctx, userFamiliesKey(subject), familyID)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return err
	}
	return nil
}

// MemoryRefreshStore is an in-process RefreshStore for tests.
type MemoryRefreshStore struct {
	mu       sync.Mutex
	families map[string]*memoryFamily
	byHash   map[string]string // token hash -> family id
}

type memoryFamily struct {
	userID  uint
	current string
	expiry  time.Time
	hashes  []string
}

func NewMemoryRefreshStore() *MemoryRefreshStore {
	return &MemoryRefreshStore{
		families: make(map[string]*memoryFamily),
		byHash:   make(map[string]string),
	}
}

func (s *MemoryRefreshStore) Issue(userID uint, ttl time.Duration) (string, error) {
	token := newRefreshToken()
	hash := tokenHash(token)
	familyID := uuid.NewString()

	s.mu.Lock()
	s.families[familyID] = &memoryFamily{
		userID:  userID,
		current: hash,
		expiry:  time.Now().Add(ttl),
		hashes:  []string{hash},
	}
	s.byHash[hash] = familyID
	s.mu.Unlock()
	return token, nil
}

func (s *MemoryRefreshStore) Rotate(token string, ttl time.Duration) (uint, string, error) {
	hash := tokenHash(token)

	s.mu.Lock()
	defer s.mu.Unlock()

	familyID, ok := s.byHash[hash]
	if !ok {
		return 0, "", ErrRefreshInvalid
	}
	family := s.families[familyID]
	if family == nil || time.Now().After(family.expiry) {
		s.dropFamilyLocked(familyID)
		return 0, "", ErrRefreshInvalid
	}
	if family.current != hash {
		s.dropFamilyLocked(familyID)
		return 0, "", ErrRefreshReplay
	}

	newToken := newRefreshToken()
	newHash := tokenHash(newToken)
	family.current = newHash
	family.expiry = time.Now().Add(ttl)
	family.hashes = append(family.hashes, newHash)
	s.byHash[newHash] = familyID
	return family.userID, newToken, nil
}

func (s *MemoryRefreshStore) Revoke(token string) error {
	s.mu.Lock()
	if familyID, ok := s.byHash[tokenHash(token)]; ok {
		s.dropFamilyLocked(familyID)
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryRefreshStore) RevokeUser(userID uint) error {
	s.mu.Lock()
	for familyID, family := range s.families {
		if family.userID == userID {
			s.dropFamilyLocked(familyID)
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryRefreshStore) dropFamilyLocked(familyID string) {
	family := s.families[familyID]
	if family != nil {
		for _, h := range family.hashes {
			delete(s.byHash, h)
		}
	}
	delete(s.families, familyID)
}

func newRefreshToken() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func tokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func familyKey(familyID string) string {
	return refreshPrefix + ":family:" + familyID
}

func userFamiliesKey(subject string) string {
	return refreshPrefix + ":user:" + subject
}

func formatUserID(userID uint) string {
	return strconv.FormatUint(uint64(userID), 10)
}

func parseUserID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("bad user id %q", raw)
	}
	return uint(id), nil
}

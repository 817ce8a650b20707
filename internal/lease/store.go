package lease

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ledgerdesk/engine/internal/common/redis"
)

// acquireScript performs the atomic conditional upsert: succeed when no record
// exists for the name, or when the stored expiry has already passed. Contention
// (an unexpired record held by someone else) returns 0 without touching state.
const acquireScript = `
local exp = redis.call('HGET', KEYS[1], 'expires_at_ms')
if exp and tonumber(exp) > tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'owner', ARGV[2], 'acquired_at_ms', ARGV[1], 'expires_at_ms', ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`

// releaseScript deletes the record only when the stored owner matches the
// caller. A mismatch means the lease expired and was re-acquired; the new
// owner's record must survive.
const releaseScript = `
local owner = redis.call('HGET', KEYS[1], 'owner')
if owner == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return 1
end
return 0
`

// sweepScript deletes a record whose stored expiry has passed
const sweepScript = `
local exp = redis.call('HGET', KEYS[1], 'expires_at_ms')
if exp and tonumber(exp) <= tonumber(ARGV[1]) then
  redis.call('DEL', KEYS[1])
  return 1
end
return 0
`

// Store is the Redis-backed lease store. All mutation goes through single
// round-trip Lua scripts; no in-process lock spans a network call.
type Store struct {
	redis  *redis.Client
	keys   *redis.KeyGenerator
	grace  time.Duration
	logger *zap.Logger
}

// NewStore creates a lease store. Grace extends the key TTL beyond the lease
// expiry so a crashed owner's record is garbage-collected by Redis even if no
// replica ever sweeps it.
func NewStore(redisClient *redis.Client, grace time.Duration, logger *zap.Logger) *Store {
	return &Store{
		redis:  redisClient,
		keys:   redis.NewKeyGenerator(),
		grace:  grace,
		logger: logger,
	}
}

// Acquire attempts to take the named lease for ttl. Returns the granted lease,
// or nil when another owner holds an unexpired lease. A nil result is the
// expected outcome for all but one competing replica, not an error.
//
// Expiry is compared against the calling replica's clock, so the exclusivity
// window can shift by up to the clock skew between replicas. Replicas are
// expected to run synchronized clocks, and the configured ttl must cover the
// worst-case task duration plus that skew.
func (s *Store) Acquire(ctx context.Context, name string, ttl time.Duration, owner string) (*Lease, error) {
	if name == "" || owner == "" {
		return nil, fmt.Errorf("lease name and owner are required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("lease ttl must be positive, got %v", ttl)
	}

	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	keyTTL := ttl + s.grace

	result, err := s.redis.Eval(ctx, acquireScript,
		[]string{s.keys.LeaseKey(name)},
		now.UnixMilli(),
		owner,
		expiresAt.UnixMilli(),
		keyTTL.Milliseconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("lease acquire failed: %w", err)
	}

	granted, ok := result.(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected acquire script result: %v", result)
	}

	if granted == 0 {
		s.logger.Debug("Lease held by another owner",
			zap.String("lease", name),
			zap.String("owner", owner))
		return nil, nil
	}

	s.logger.Debug("Lease acquired",
		zap.String("lease", name),
		zap.String("owner", owner),
		zap.Time("expires_at", expiresAt))

	return &Lease{
		Name:       name,
		Owner:      owner,
		AcquiredAt: now,
		ExpiresAt:  expiresAt,
	}, nil
}

// Release deletes the lease only if the stored owner matches the caller.
// Returns whether a record was actually deleted. False means the lease
// already expired and was re-acquired by someone else.
func (s *Store) Release(ctx context.Context, name, owner string) (bool, error) {
	if name == "" || owner == "" {
		return false, fmt.Errorf("lease name and owner are required")
	}

	result, err := s.redis.Eval(ctx, releaseScript,
		[]string{s.keys.LeaseKey(name)},
		owner,
	)
	if err != nil {
		return false, fmt.Errorf("lease release failed: %w", err)
	}

	deleted, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected release script result: %v", result)
	}

	if deleted == 0 {
		s.logger.Warn("Lease release skipped, owner mismatch",
			zap.String("lease", name),
			zap.String("owner", owner))
		return false, nil
	}

	s.logger.Debug("Lease released",
		zap.String("lease", name),
		zap.String("owner", owner))
	return true, nil
}

// Get returns the current lease record for a name, or nil if none exists.
// Read-only; intended for observability.
func (s *Store) Get(ctx context.Context, name string) (*Lease, error) {
	fields, err := s.redis.HGetAll(ctx, s.keys.LeaseKey(name))
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	return parseLease(name, fields)
}

// Sweep deletes every expired lease record. The per-key TTL already garbage
// collects abandoned records; this is the explicit safety net for deployments
// where keys were written without one.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	keys, err := s.redis.Keys(ctx, "lease:*")
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC().UnixMilli()
	swept := 0
	for _, key := range keys {
		result, err := s.redis.Eval(ctx, sweepScript, []string{key}, now)
		if err != nil {
			s.logger.Error("Lease sweep failed for key",
				zap.String("key", key),
				zap.Error(err))
			continue
		}
		if deleted, ok := result.(int64); ok && deleted == 1 {
			swept++
		}
	}

	if swept > 0 {
		s.logger.Info("Swept expired leases", zap.Int("count", swept))
	}
	return swept, nil
}

func parseLease(name string, fields map[string]string) (*Lease, error) {
	owner := fields["owner"]

	acquiredMs, err := strconv.ParseInt(fields["acquired_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid lease record for %q: bad acquired_at_ms: %w", name, err)
	}
	expiresMs, err := strconv.ParseInt(fields["expires_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid lease record for %q: bad expires_at_ms: %w", name, err)
	}

	return &Lease{
		Name:       name,
		Owner:      owner,
		AcquiredAt: time.UnixMilli(acquiredMs).UTC(),
		ExpiresAt:  time.UnixMilli(expiresMs).UTC(),
	}, nil
}

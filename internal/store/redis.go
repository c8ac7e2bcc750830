package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sentinel/mpc-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for ciphertext records. Job state is never cached: the at-most-once
// check must always hit the primary. Cache entries are versioned hashes and
// only ever move forward.
//
// The cache serves API reads. The cluster reads the primary directly, since
// a circuit must never run against a record older than the last write.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, refresh cache) ---

func (s *CachedStore) FinishJob(ctx context.Context, key model.JobKey, fin model.Finish) (*model.Record, error) {
	rec, err := s.primary.FinishJob(ctx, key, fin)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		s.fill(ctx, rec)
	}
	return rec, nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetRecord(ctx context.Context, ref model.RecordRef) (*model.Record, error) {
	data, err := s.rdb.HGet(ctx, recordKey(ref), "data").Bytes()
	if err == nil {
		var r model.Record
		if json.Unmarshal(data, &r) == nil {
			return &r, nil
		}
	}

	// Cache miss: read from primary.
	r, err := s.primary.GetRecord(ctx, ref)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, r)
	return r, nil
}

// fillScript caches a record unless the entry already holds the same or a
// newer version, so a slow read-through can never replace a fresher write.
var fillScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'version')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
if tonumber(ARGV[3]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

func (s *CachedStore) fill(ctx context.Context, r *model.Record) {
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	key := recordKey(r.Ref())
	if err := fillScript.Run(ctx, s.rdb, []string{key}, r.Version, data, s.ttl.Milliseconds()).Err(); err != nil {
		slog.Warn("record cache fill failed", "ref", r.Ref().String(), "version", r.Version, "err", err)
		s.rdb.Del(ctx, key)
	}
}

// --- Passthrough (not cached) ---

func (s *CachedStore) CreateJob(ctx context.Context, job *model.Job) error {
	return s.primary.CreateJob(ctx, job)
}

func (s *CachedStore) GetJob(ctx context.Context, key model.JobKey) (*model.Job, error) {
	return s.primary.GetJob(ctx, key)
}

func (s *CachedStore) ListJobs(ctx context.Context, state model.JobState) ([]model.Job, error) {
	return s.primary.ListJobs(ctx, state)
}

func (s *CachedStore) MarkExecuting(ctx context.Context, key model.JobKey) error {
	return s.primary.MarkExecuting(ctx, key)
}

func recordKey(ref model.RecordRef) string { return fmt.Sprintf("record:v:%s", ref) }

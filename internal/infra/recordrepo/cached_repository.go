package recordrepo

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/yanqian/support-copilot/internal/domain/support"
)

const snapshotKeySuffix = "records:snapshot"

// SnapshotCache stores serialized record snapshots.
type SnapshotCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CachedRepository serves ListAll from a cached snapshot of the backing repository.
// Cache failures are logged and the backing repository answers instead.
type CachedRepository struct {
	backing support.Repository
	cache   SnapshotCache
	ttl     time.Duration
	key     string
	logger  *slog.Logger
}

// NewCachedRepository decorates backing with a snapshot cache.
func NewCachedRepository(backing support.Repository, cache SnapshotCache, prefix string, ttl time.Duration, logger *slog.Logger) *CachedRepository {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "support"
	}
	return &CachedRepository{
		backing: backing,
		cache:   cache,
		ttl:     ttl,
		key:     prefix + ":" + snapshotKeySuffix,
		logger:  logger.With("component", "recordrepo.cache"),
	}
}

// ListAll implements support.RecordLister.
func (r *CachedRepository) ListAll(ctx context.Context) ([]support.Record, error) {
	payload, ok, err := r.cache.Get(ctx, r.key)
	switch {
	case err != nil:
		r.logger.Warn("record snapshot lookup failed", "error", err)
	case ok:
		var records []support.Record
		decodeErr := json.Unmarshal([]byte(payload), &records)
		if decodeErr == nil {
			return records, nil
		}
		r.logger.Warn("record snapshot corrupted", "error", decodeErr)
	}

	records, err := r.backing.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(records)
	if err != nil {
		r.logger.Warn("encode record snapshot", "error", err)
		return records, nil
	}
	if err := r.cache.Set(ctx, r.key, string(encoded), r.ttl); err != nil {
		r.logger.Warn("store record snapshot failed", "error", err)
	}
	return records, nil
}

// Upsert writes through to the backing repository and drops the cached snapshot.
func (r *CachedRepository) Upsert(ctx context.Context, record support.Record) (support.Record, error) {
	saved, err := r.backing.Upsert(ctx, record)
	if err != nil {
		return support.Record{}, err
	}
	if err := r.cache.Delete(ctx, r.key); err != nil {
		r.logger.Warn("invalidate record snapshot failed", "error", err)
	}
	return saved, nil
}

var _ support.Repository = (*CachedRepository)(nil)

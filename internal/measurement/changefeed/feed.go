package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rhq-project/rhq-sub002/internal/measurement/schedule"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxEntries = 100
	DefaultTTL        = 7 * 24 * time.Hour
)

// RedisFeed keeps a capped list of the most recent changes per target in Redis, newest
// first. A feed without a client records nothing and lists nothing.
type RedisFeed struct {
	redis      *redis.Client
	maxEntries int64
	ttl        time.Duration
}

// NewRedisFeed creates a feed; non-positive limits fall back to the defaults.
func NewRedisFeed(rdb *redis.Client, maxEntries int, ttl time.Duration) *RedisFeed {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisFeed{redis: rdb, maxEntries: int64(maxEntries), ttl: ttl}
}

// Key is the list holding changes for one target.
func Key(kind schedule.Context, targetID int) string {
	return fmt.Sprintf("schedsync:changes:%s:%d", kind, targetID)
}

func (f *RedisFeed) RecordChange(ctx context.Context, c schedule.Change) error {
	if f == nil || f.redis == nil {
		return nil
	}
	data, err := json.Marshal(c.Entry())
	if err != nil {
		return fmt.Errorf("failed to marshal change: %w", err)
	}
	key := Key(c.Context, c.TargetID)
	pipe := f.redis.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, f.maxEntries-1)
	pipe.Expire(ctx, key, f.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push change: %w", err)
	}
	return nil
}

// ListChanges returns up to limit of the newest changes. Entries that no longer decode
// are skipped.
func (f *RedisFeed) ListChanges(ctx context.Context, kind schedule.Context, targetID, limit int) ([]schedule.ChangeEntry, error) {
	if f == nil || f.redis == nil {
		return nil, nil
	}
	if limit <= 0 || int64(limit) > f.maxEntries {
		limit = int(f.maxEntries)
	}
	key := Key(kind, targetID)
	raw, err := f.redis.LRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read changes: %w", err)
	}
	res := make([]schedule.ChangeEntry, 0, len(raw))
	for _, item := range raw {
		var e schedule.ChangeEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("skip undecodable change entry")
			continue
		}
		res = append(res, e)
	}
	return res, nil
}

var (
	_ schedule.ChangeRecorder = (*RedisFeed)(nil)
	_ schedule.ChangeLister   = (*RedisFeed)(nil)
)

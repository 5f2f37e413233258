// Package dedup remembers which tweet ids the monitor has already looked at,
// so repeated timeline fetches do not pay for a second LLM call.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "xparser:seen:"
	DefaultTTL = 7 * 24 * time.Hour
)

// Deduplicator is a Redis-backed seen-set. A nil *Deduplicator treats every
// id as unseen and ignores marks.
type Deduplicator struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Deduplicator{rdb: rdb, ttl: ttl}
}

// Open connects to addr and verifies the connection. An empty addr disables
// deduplication and returns nil.
func Open(ctx context.Context, addr string, ttl time.Duration) (*Deduplicator, error) {
	if addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return New(rdb, ttl), nil
}

func key(id string) string {
	return keyPrefix + id
}

// IsSeen reports whether id was marked within the TTL.
func (d *Deduplicator) IsSeen(ctx context.Context, id string) (bool, error) {
	if d == nil {
		return false, nil
	}
	n, err := d.rdb.Exists(ctx, key(id)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FilterUnseen returns the ids that are not in the seen-set, in input order.
func (d *Deduplicator) FilterUnseen(ctx context.Context, ids []string) ([]string, error) {
	if d == nil || len(ids) == 0 {
		return ids, nil
	}

	pipe := d.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Exists(ctx, key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("dedup lookup: %w", err)
	}

	unseen := make([]string, 0, len(ids))
	for i, cmd := range cmds {
		if cmd.Val() == 0 {
			unseen = append(unseen, ids[i])
		}
	}
	return unseen, nil
}

// MarkSeen adds ids to the seen-set, refreshing their TTL.
func (d *Deduplicator) MarkSeen(ctx context.Context, ids ...string) error {
	if d == nil || len(ids) == 0 {
		return nil
	}
	pipe := d.rdb.Pipeline()
	for _, id := range ids {
		pipe.Set(ctx, key(id), "1", d.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dedup mark: %w", err)
	}
	return nil
}

func (d *Deduplicator) Close() error {
	if d == nil {
		return nil
	}
	return d.rdb.Close()
}

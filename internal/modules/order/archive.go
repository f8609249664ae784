// README: Redis-backed archive of terminal orders, keyed per partner.
package order

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"milkrun/internal/types"
)

const (
	historyKeyPrefix = "partner:%s:order_history"
	historyMaxLen    = 200
	// History survives restarts but is not a ledger; the backend owns the
	// real record.
	historyTTL = 30 * 24 * time.Hour
)

type RedisArchive struct {
	redis     *redis.Client
	partnerID types.ID
}

func NewRedisArchive(client *redis.Client, partnerID types.ID) *RedisArchive {
	return &RedisArchive{redis: client, partnerID: partnerID}
}

func (a *RedisArchive) ArchiveOrder(ctx context.Context, o Order) error {
	buf, err := json.Marshal(o)
	if err != nil {
		return err
	}
	key := a.key()
	pipe := a.redis.Pipeline()
	pipe.LPush(ctx, key, buf)
	pipe.LTrim(ctx, key, 0, historyMaxLen-1)
	pipe.Expire(ctx, key, historyTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// Recent returns up to n most recently archived orders, newest first.
func (a *RedisArchive) Recent(ctx context.Context, n int) ([]Order, error) {
	vals, err := a.redis.LRange(ctx, a.key(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Order, 0, len(vals))
	for _, v := range vals {
		var o Order
		if err := json.Unmarshal([]byte(v), &o); err != nil {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (a *RedisArchive) key() string {
	return fmt.Sprintf(historyKeyPrefix, string(a.partnerID))
}

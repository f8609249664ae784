// README: Redis mirror of the partner's last accepted position.
package location

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"milkrun/internal/types"
)

const (
	positionKeyPrefix = "partner:%s:last_location"
	positionTTL       = 10 * time.Minute
)

type RedisMirror struct {
	redis     *redis.Client
	partnerID types.ID
}

func NewRedisMirror(client *redis.Client, partnerID types.ID) *RedisMirror {
	return &RedisMirror{redis: client, partnerID: partnerID}
}

type positionRecord struct {
	Position   types.Point `json:"position"`
	RecordedAt time.Time   `json:"recordedAt"`
}

func (m *RedisMirror) MirrorPosition(ctx context.Context, p types.Point) error {
	buf, err := json.Marshal(positionRecord{Position: p, RecordedAt: time.Now()})
	if err != nil {
		return err
	}
	return m.redis.Set(ctx, m.key(), buf, positionTTL).Err()
}

// LastPosition returns the most recently mirrored position, if one exists.
func (m *RedisMirror) LastPosition(ctx context.Context) (types.Point, bool, error) {
	val, err := m.redis.Get(ctx, m.key()).Result()
	if err == redis.Nil {
		return types.Point{}, false, nil
	}
	if err != nil {
		return types.Point{}, false, err
	}
	var rec positionRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return types.Point{}, false, err
	}
	return rec.Position, true, nil
}

func (m *RedisMirror) key() string {
	return fmt.Sprintf(positionKeyPrefix, string(m.partnerID))
}

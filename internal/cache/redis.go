// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list that carries room actions to the historian.
const DefaultQueueName = "threes_actions"

// ActionRecord is one broadcast room event, as queued for the historian.
type ActionRecord struct {
	RoomCode    string          `json:"room_code"`
	ActionIndex int             `json:"action_index"`
	ActorID     string          `json:"actor_id,omitempty"`
	ActionType  string          `json:"action_type"`
	Payload     json.RawMessage `json:"payload"`
	Timestamp   int64           `json:"timestamp"`
}

// SetPayload encodes v as the record's payload.
func (r *ActionRecord) SetPayload(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal action payload: %w", err)
	}
	r.Payload = data
	return nil
}

// ConnectRedis dials Redis and verifies the connection with a ping.
func ConnectRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// ActionQueue is a FIFO of ActionRecords backed by a Redis list.
type ActionQueue struct {
	rdb  *redis.Client
	name string
}

// NewActionQueue uses the list called name, or DefaultQueueName if name is empty.
func NewActionQueue(rdb *redis.Client, name string) *ActionQueue {
	if name == "" {
		name = DefaultQueueName
	}
	return &ActionQueue{rdb: rdb, name: name}
}

// Name returns the underlying list key.
func (q *ActionQueue) Name() string {
	return q.name
}

// Publish serializes rec and appends it to the queue.
func (q *ActionQueue) Publish(ctx context.Context, rec ActionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal ActionRecord: %w", err)
	}
	if err := q.rdb.RPush(ctx, q.name, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", q.name, err)
	}
	return nil
}

// Pop waits up to timeout for the oldest record. It returns nil, nil when the
// queue stayed empty.
func (q *ActionQueue) Pop(ctx context.Context, timeout time.Duration) (*ActionRecord, error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("BLPop %s: %w", q.name, err)
	}
	// res[0] is the list name, res[1] the value.
	if len(res) < 2 {
		return nil, nil
	}
	var rec ActionRecord
	if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
		return nil, fmt.Errorf("invalid action record: %w", err)
	}
	return &rec, nil
}

// Len reports how many records are waiting.
func (q *ActionQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.name).Result()
}

package spool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"callq/internal/ports"
)

var _ ports.Queue = (*Client)(nil)

// Submit appends the message to its spooler's stream. The call id is
// the payload; workers re-fetch state from the store.
func (c *Client) Submit(ctx context.Context, m ports.Message) (err error) {
	b, _ := json.Marshal(m)
	return c.Rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: c.streamKey(m.Spooler),
		Values: map[string]interface{}{"message": b},
	}).Err()
}

// SubmitDelayed parks the message in the scheduled zset until runAt;
// the mover shifts it into its stream once due.
func (c *Client) SubmitDelayed(ctx context.Context, m ports.Message, runAt time.Time) error {
	b, _ := json.Marshal(m)
	return c.Rdb.ZAdd(ctx, c.Cfg.ScheduledZSet, redis.Z{
		Score:  float64(runAt.UnixMilli()),
		Member: b,
	}).Err()
}

// Claim blocks for up to block waiting for one message on the stream
// this client consumes. A nil message means nothing was pending.
func (c *Client) Claim(ctx context.Context, consumer string, block time.Duration) (*ports.Message, string, error) {
	res, err := c.Rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.Cfg.Group,
		Consumer: consumer,
		Streams:  []string{c.streamKey(c.ConsumeSpooler), ">"},
		Count:    1,
		Block:    block,
	}).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, "", nil
		}
		return nil, "", err
	}

	if len(res) == 0 || len(res[0].Messages) == 0 {
		return nil, "", nil
	}

	msg := res[0].Messages[0]
	raw := msg.Values["message"]
	var m ports.Message
	switch v := raw.(type) {
	case string:
		_ = json.Unmarshal([]byte(v), &m)
	case []byte:
		_ = json.Unmarshal(v, &m)
	default:
		return nil, "", fmt.Errorf("unexpected message type: %T", v)
	}
	return &m, msg.ID, nil
}

func (c *Client) Ack(ctx context.Context, streamID string) error {
	return c.Rdb.XAck(ctx, c.streamKey(c.ConsumeSpooler), c.Cfg.Group, streamID).Err()
}

package spool

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"callq/internal/ports"
)

var _ ports.Mover = (*Mover)(nil)

// Mover shifts due delayed messages from the scheduled zset back into
// their spooler streams.
type Mover struct {
	C        *Client
	Interval time.Duration
}

func NewMover(c *Client, interval time.Duration) *Mover {
	return &Mover{C: c, Interval: interval}
}

func (s *Mover) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		if err := s.moveDue(ctx); err != nil {
			log.Ctx(ctx).Err(err).Msgf("delayed move failed: %s", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Mover) moveDue(ctx context.Context) error {
	now := nowMs()
	members, err := s.C.Rdb.ZRangeByScore(ctx, s.C.Cfg.ScheduledZSet, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmtFloat(now),
		Offset: 0,
		Count:  128,
	}).Result()
	if err != nil || len(members) == 0 {
		return err
	}

	for _, member := range members {
		var m ports.Message
		if err := json.Unmarshal([]byte(member), &m); err != nil {
			// Undecodable members would loop forever; drop them.
			_ = s.C.Rdb.ZRem(ctx, s.C.Cfg.ScheduledZSet, member).Err()
			continue
		}
		if err := s.C.Submit(ctx, m); err == nil {
			_ = s.C.Rdb.ZRem(ctx, s.C.Cfg.ScheduledZSet, member).Err()
		}
	}
	return nil
}

func fmtFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

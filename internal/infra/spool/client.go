// Package spool is the Redis-streams spooling engine: spooled call
// ids travel through a stream per spooler name, with a sorted set
// parking delayed redeliveries.
package spool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"callq/internal/config"
)

type Client struct {
	Cfg config.Redis
	Rdb *redis.Client
	// ConsumeSpooler names the spooler stream this process claims
	// from; empty means the default stream. Submission always routes
	// by the message's own spooler name.
	ConsumeSpooler string
}

func New(cfg config.Redis) *Client {
	log.Info().Msgf("connecting to redis at %s", cfg.Addr)
	c := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Client{Cfg: cfg, Rdb: c}
}

func (c *Client) Connect(ctx context.Context) error {
	if err := c.Rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	log.Ctx(ctx).Info().Msg("connected to redis")
	return nil
}

// Init ensures stream and consumer group exist for the default
// spooler and any named ones this process consumes.
func (c *Client) Init(ctx context.Context, spoolers ...string) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}

	streams := []string{c.Cfg.StreamKey}
	for _, name := range spoolers {
		if name != "" {
			streams = append(streams, c.streamKey(name))
		}
	}
	for _, stream := range streams {
		err := c.Rdb.XGroupCreateMkStream(ctx, stream, c.Cfg.Group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP Consumer Group name already exists") {
			return fmt.Errorf("failed to create consumer group on %s: %w", stream, err)
		}
	}

	log.Ctx(ctx).Info().
		Strs("streams", streams).
		Str("group", c.Cfg.Group).
		Msg("redis streams and consumer group ready")

	return nil
}

// streamKey maps a spooler name to its stream; empty means default.
func (c *Client) streamKey(spooler string) string {
	if spooler == "" {
		return c.Cfg.StreamKey
	}
	return c.Cfg.StreamKey + ":" + spooler
}

func nowMs() float64 { return float64(time.Now().UnixMilli()) }

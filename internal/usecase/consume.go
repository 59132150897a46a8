package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"callq/internal/ports"
	"callq/pkg/backoff"
)

// Consumer drains spooled attempts from the engine queue and executes
// them through the bridge, redelivering retryable failures with
// exponential-jitter backoff.
type Consumer struct {
	Q            ports.Queue
	Runner       *Runner
	ConsumerName string
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
}

func (c Consumer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		m, streamID, err := c.Q.Claim(ctx, c.ConsumerName, 5*time.Second)
		if err != nil {
			continue
		}
		if m == nil {
			continue
		}

		stop, err := c.Runner.HandleSpooled(ctx, m.CallID)
		if stop {
			if err != nil {
				log.Ctx(ctx).Error().Err(err).
					Str("call", m.CallID).
					Msg("attempt failed terminally")
			}
			_ = c.Q.Ack(ctx, streamID)
			continue
		}
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).
				Str("call", m.CallID).
				Int("deliveries", m.Deliveries).
				Msg("attempt failed, redelivering")
		}

		// Park a delayed redelivery, then ack the claimed delivery.
		// Acking first could lose the message with attempts remaining
		// if the delayed write fails.
		m.Deliveries++
		delay := backoff.ExponentialJitter(c.BaseBackoff, c.MaxBackoff, m.Deliveries)
		if err := c.Q.SubmitDelayed(ctx, *m, time.Now().Add(delay)); err != nil {
			log.Ctx(ctx).Error().Err(err).
				Str("call", m.CallID).
				Msg("delayed requeue failed, leaving delivery pending")
			continue
		}
		_ = c.Q.Ack(ctx, streamID)
	}
}

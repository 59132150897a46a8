package ports

import (
	"context"
	"time"

	"callq/internal/domain"
)

// Message is one spooled attempt in flight through the engine. The
// worker re-fetches the Call from the store before executing; the
// message only routes it.
type Message struct {
	CallID   string `json:"call"`
	Spooler  string `json:"spooler,omitempty"`
	Priority int    `json:"priority,omitempty"`
	// Deliveries counts engine-level redeliveries of this message.
	Deliveries int `json:"deliveries,omitempty"`
}

// Spooler hands a persisted attempt to the asynchronous execution
// engine. Implementations must not run the attempt inline.
type Spooler interface {
	Submit(ctx context.Context, m Message) error
}

// Queue is the engine-side message channel: Spooler submission plus
// the worker's claim/ack loop and delayed redelivery.
type Queue interface {
	Spooler
	SubmitDelayed(ctx context.Context, m Message, runAt time.Time) error
	Claim(ctx context.Context, consumer string, block time.Duration) (*Message, string /*streamID*/, error)
	Ack(ctx context.Context, streamID string) error
}

// Mover shifts due delayed messages back into the live stream.
type Mover interface {
	Run(ctx context.Context) error
}

// Scheduler is the external cron engine. It raises the handler bound
// to a signal at wall-clock ticks matching any registered schedule.
type Scheduler interface {
	RegisterSignal(signal int, handler func(signal int)) error
	AddSchedule(signal int, s domain.Schedule) error
}

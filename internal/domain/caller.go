package domain

import (
	"fmt"
	"strings"
	"time"
)

// Caller is the durable description of what to run: a callback path,
// its arguments and the retry/scheduling policy. One Caller owns many
// Call attempts and zero or more Cron entries.
type Caller struct {
	Metadata
	Callback string `json:"callback"`
	Kwargs   Kwargs `json:"kwargs"`
	// MaxAttempts caps the total attempts; 0 means unlimited retries.
	MaxAttempts int `json:"max_attempts"`
	// Spooler selects which queue spooled attempts are submitted to.
	// Empty means the default queue.
	Spooler  string `json:"spooler,omitempty"`
	Priority *int   `json:"priority,omitempty"`
	// Signal is the cron dispatch channel assigned at registration
	// time; 0 means no cron signal has been assigned.
	Signal int `json:"signal_number,omitempty"`
}

// NewCaller builds an unsaved Caller with Created stamped and kwargs
// never nil.
func NewCaller(callback string, kwargs Kwargs) *Caller {
	if kwargs == nil {
		kwargs = Kwargs{}
	}
	return &Caller{
		Metadata: Metadata{Created: time.Now()},
		Callback: callback,
		Kwargs:   kwargs,
	}
}

// String renders the invocation the caller describes, e.g.
// "pkg.fn(a=1, b=2)". Kwarg order is insertion order.
func (c *Caller) String() string {
	var b strings.Builder
	b.WriteString(c.Callback)
	b.WriteByte('(')
	for i, kw := range c.Kwargs {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", kw.Name, kw.Value)
	}
	b.WriteByte(')')
	return b.String()
}

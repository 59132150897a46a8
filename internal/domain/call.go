package domain

import (
	"encoding/json"
	"time"
)

// Call is one execution attempt of a Caller. Attempts spawned inside
// another attempt's callback point at it via ParentID, forming a tree.
type Call struct {
	Metadata
	CallerID string `json:"caller"`
	// Result is the JSON-encoded return value of a successful
	// invocation; nil until success.
	Result json.RawMessage `json:"result,omitempty"`
	// Exception holds the formatted failure trace; empty until a
	// failure occurs.
	Exception string `json:"exception"`
}

// NewCall builds an unsaved attempt for the given caller.
func NewCall(callerID string) *Call {
	return &Call{
		Metadata: Metadata{Created: time.Now()},
		CallerID: callerID,
	}
}

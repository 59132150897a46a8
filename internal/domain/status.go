package domain

import "time"

// Status of a Caller or Call. The zero value is Created.
type Status int

const (
	StatusCreated Status = iota
	StatusSpooled
	StatusStarted
	StatusSuccess
	StatusRetrying
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusSpooled:
		return "spooled"
	case StatusStarted:
		return "started"
	case StatusSuccess:
		return "success"
	case StatusRetrying:
		return "retrying"
	case StatusFailure:
		return "failure"
	}
	return "unknown"
}

// Terminal reports whether no further transition is expected.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// Metadata is the bookkeeping embedded in both Caller and Call:
// the status machine plus one timestamp per lifecycle stage.
type Metadata struct {
	ID       string     `json:"id"`
	Status   Status     `json:"status"`
	Created  time.Time  `json:"created"`
	Spooled  *time.Time `json:"spooled,omitempty"`
	Started  *time.Time `json:"started,omitempty"`
	Ended    *time.Time `json:"ended,omitempty"`
	ParentID string     `json:"parent,omitempty"`
}

// Transition moves the entity into status and stamps the matching
// timestamp. Spooled and started are written at most once; ended is
// restamped on every terminal transition, so a recurring caller's
// ended tracks its latest completion. All fields stamped by one
// transition share the single now value, so
// created <= spooled <= started <= ended always holds.
func (m *Metadata) Transition(status Status, now time.Time) {
	m.Status = status
	switch status {
	case StatusSpooled:
		if m.Spooled == nil {
			t := now
			m.Spooled = &t
		}
	case StatusStarted:
		if m.Started == nil {
			t := now
			m.Started = &t
		}
	case StatusSuccess, StatusFailure:
		t := now
		m.Ended = &t
	}
}

// Propagate mirrors an attempt's transition onto its caller. A failed
// attempt degrades the caller to Retrying while further attempts are
// permitted; the caller only reads Failure once attempts are exhausted.
func Propagate(call *Call, caller *Caller, now time.Time, exhausted bool) {
	status := call.Status
	if status == StatusFailure && !exhausted {
		status = StatusRetrying
	}
	caller.Transition(status, now)
}

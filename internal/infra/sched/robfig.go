// Package sched implements the external cron engine on robfig/cron:
// signals map to handlers, schedule tuples map to five-field specs.
package sched

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"callq/internal/domain"
	"callq/internal/ports"
)

var _ ports.Scheduler = (*Cron)(nil)

// Cron raises registered signals at matching wall-clock ticks.
// Handlers and schedules may be re-registered at any time; adding the
// same (signal, schedule) pair again is a no-op.
type Cron struct {
	mu       sync.Mutex
	c        *cron.Cron
	handlers map[int]func(int)
	entries  map[int]map[domain.Schedule]cron.EntryID
}

func New(timezone string) (*Cron, error) {
	loc := time.Local
	if timezone != "" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("sched: timezone %q: %w", timezone, err)
		}
		loc = l
	}
	return &Cron{
		c:        cron.New(cron.WithLocation(loc)),
		handlers: make(map[int]func(int)),
		entries:  make(map[int]map[domain.Schedule]cron.EntryID),
	}, nil
}

func (s *Cron) Start() { s.c.Start() }

func (s *Cron) Stop() {
	<-s.c.Stop().Done()
}

// RegisterSignal binds handler to signal, replacing any previous
// binding, so repeated registration passes stay idempotent.
func (s *Cron) RegisterSignal(signal int, handler func(signal int)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[signal] = handler
	return nil
}

// AddSchedule raises the signal at ticks matching the tuple.
func (s *Cron) AddSchedule(signal int, sc domain.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[signal]; !ok {
		s.entries[signal] = make(map[domain.Schedule]cron.EntryID)
	}
	if _, ok := s.entries[signal][sc]; ok {
		return nil
	}

	id, err := s.c.AddFunc(specString(sc), func() { s.raise(signal) })
	if err != nil {
		return fmt.Errorf("sched: signal %d schedule %v: %w", signal, sc, err)
	}
	s.entries[signal][sc] = id
	return nil
}

func (s *Cron) raise(signal int) {
	s.mu.Lock()
	handler := s.handlers[signal]
	s.mu.Unlock()
	if handler == nil {
		log.Warn().Int("signal", signal).Msg("tick for unbound signal")
		return
	}
	handler(signal)
}

// specString renders a tuple as a five-field cron spec, wildcarding
// Any slots.
func specString(sc domain.Schedule) string {
	fields := make([]string, len(sc))
	for i, v := range sc {
		if v == domain.Any {
			fields[i] = "*"
		} else {
			fields[i] = strconv.Itoa(v)
		}
	}
	return strings.Join(fields, " ")
}

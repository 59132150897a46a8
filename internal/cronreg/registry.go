// Package cronreg binds callers owning calendar entries to dispatch
// signals on the external scheduler.
package cronreg

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"callq/internal/domain"
	"callq/internal/ports"
	"callq/internal/store"
	"callq/internal/usecase"
)

// Registry wires callers with cron entries to the scheduler. A nil
// Sched makes every operation a no-op: cron dispatch is opt-in on the
// runtime environment.
type Registry struct {
	Store  *store.DB
	Runner *usecase.Runner
	Sched  ports.Scheduler
}

// RegisterSignals assigns sequential signals (from 1, reassigned from
// scratch on every pass) to each caller owning at least one cron
// entry, persists the assignment, and binds a handler that re-loads
// the caller from the store and runs it.
func (g *Registry) RegisterSignals(ctx context.Context) error {
	if g.Sched == nil {
		return nil
	}

	tx, err := g.Store.Begin(ctx)
	if err != nil {
		return err
	}
	fail := func(err error) error {
		_ = tx.Rollback()
		return err
	}

	// Stale assignments from callers that left the cron set would
	// otherwise collide with the fresh sequence and route their
	// signals to the wrong caller.
	if err := store.ClearSignals(ctx, tx.Q()); err != nil {
		return fail(err)
	}

	callers, err := store.ListCallersWithCrons(ctx, tx.Q())
	if err != nil {
		return fail(err)
	}

	signal := 1
	for _, caller := range callers {
		caller.Signal = signal
		if err := store.SaveCaller(ctx, tx.Q(), caller); err != nil {
			return fail(fmt.Errorf("cronreg: persist signal %d: %w", signal, err))
		}
		if err := g.Sched.RegisterSignal(signal, g.dispatch); err != nil {
			return fail(err)
		}
		log.Ctx(ctx).Info().
			Int("signal", signal).
			Str("caller", caller.ID).
			Str("callback", caller.Callback).
			Msg("cron signal registered")
		signal++
	}
	return tx.Commit()
}

// AddCrons expands every calendar entry of every signal-bound caller
// and registers each tuple against the caller's signal. Safe to
// re-run at every process start. A malformed entry fails that
// caller's registration loudly; remaining callers still register.
func (g *Registry) AddCrons(ctx context.Context) error {
	if g.Sched == nil {
		return nil
	}

	callers, err := store.ListCallersWithCrons(ctx, g.Store.Q())
	if err != nil {
		return err
	}

	var errs []error
	for _, caller := range callers {
		if caller.Signal == 0 {
			continue
		}
		crons, err := store.CronsByCaller(ctx, g.Store.Q(), caller.ID)
		if err != nil {
			return err
		}
		for _, cron := range crons {
			matrix, err := cron.Matrix()
			if err != nil {
				log.Ctx(ctx).Error().Err(err).
					Str("caller", caller.ID).
					Str("cron", cron.ID).
					Msg("cron entry rejected")
				errs = append(errs, fmt.Errorf("caller %s: %w", caller.ID, err))
				continue
			}
			for _, schedule := range matrix {
				if err := g.Sched.AddSchedule(caller.Signal, schedule); err != nil {
					errs = append(errs, err)
				}
			}
		}
	}
	return errors.Join(errs...)
}

// dispatch re-loads the caller bound to signal and runs it; the
// re-fetch keeps the same contract as the spooling bridge.
func (g *Registry) dispatch(signal int) {
	ctx := context.Background()
	caller, err := store.GetCallerBySignal(ctx, g.Store.Q(), signal)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn().Int("signal", signal).Msg("tick for unassigned signal")
		return
	}
	if err != nil {
		log.Error().Err(err).Int("signal", signal).Msg("load caller for signal")
		return
	}

	if _, err := g.Runner.Call(ctx, caller); err != nil {
		log.Error().Err(err).
			Int("signal", signal).
			Str("caller", caller.ID).
			Msg("cron run failed")
	}
}

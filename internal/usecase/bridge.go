package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"callq/internal/domain"
	"callq/internal/store"
)

// HandleSpooled is the engine-side callback for one spooled attempt.
// It re-fetches the call from the store (message payloads are routing
// only, never state), runs it, and reports whether the engine should
// stop redelivering:
//
//   - success, or failure with attempts exhausted → stop true
//   - unknown call id → stop true (permanently undeliverable)
//   - retryable failure → stop false with the callback's error, so
//     the engine schedules a redelivery
func (r *Runner) HandleSpooled(ctx context.Context, callID string) (stop bool, err error) {
	call, err := store.GetCall(ctx, r.Store.Q(), callID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Ctx(ctx).Warn().Str("call", callID).Msg("spooled call not found, dropping")
		return true, nil
	}
	if err != nil {
		return false, err
	}

	caller, err := store.GetCaller(ctx, r.Store.Q(), call.CallerID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Ctx(ctx).Warn().Str("call", callID).Msg("caller gone, dropping")
		return true, nil
	}
	if err != nil {
		return false, err
	}

	runErr := r.redeliver(ctx, caller, call)
	if runErr == nil {
		return true, nil
	}
	if r.Exhausted(ctx, r.Store.Q(), caller) {
		return true, runErr
	}
	return false, runErr
}

// redeliver runs the delivered attempt, or, when it already reached a
// terminal status (an engine retry of a failed delivery), records and
// runs a fresh attempt so the caller's attempt count keeps meaning
// "calls recorded".
func (r *Runner) redeliver(ctx context.Context, caller *domain.Caller, call *domain.Call) error {
	if !call.Status.Terminal() {
		return r.Run(ctx, caller, call)
	}

	ctx, tx, owned, err := r.transaction(ctx)
	if err != nil {
		return err
	}
	next := domain.NewCall(caller.ID)
	next.ParentID = call.ParentID
	if err := store.CreateCall(ctx, tx.Q(), next); err != nil {
		if owned {
			_ = tx.Rollback()
		}
		return err
	}
	runErr := r.run(ctx, tx, caller, next)
	if owned {
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return runErr
}

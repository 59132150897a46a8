// Package usecase orchestrates caller execution: synchronous calls,
// spooling to the engine, retry exhaustion and the engine-side bridge.
package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"

	"callq/internal/callback"
	"callq/internal/domain"
	"callq/internal/ports"
	"callq/internal/store"
)

// Runner executes callers against the store. Spooler may be nil: with
// no engine configured, spooled work runs synchronously instead.
type Runner struct {
	Store    *store.DB
	Registry *callback.Registry
	Spooler  ports.Spooler
}

// Call persists the caller when new, records a fresh attempt and runs
// it synchronously. The attempt is returned even when it failed; the
// callback's error propagates unchanged.
func (r *Runner) Call(ctx context.Context, caller *domain.Caller) (*domain.Call, error) {
	ctx, tx, owned, err := r.transaction(ctx)
	if err != nil {
		return nil, err
	}

	call, err := r.newAttempt(ctx, tx, caller)
	if err != nil {
		if owned {
			_ = tx.Rollback()
		}
		return nil, err
	}

	runErr := r.run(ctx, tx, caller, call)
	// The attempt's bookkeeping must commit even when it failed.
	if owned {
		if err := tx.Commit(); err != nil {
			return call, err
		}
	}
	return call, runErr
}

// Spool marks the caller spooled, records a pending attempt and hands
// it to the engine once the enclosing transaction commits. With no
// engine configured the attempt runs synchronously instead, so the
// operation still completes (and still surfaces the callback's error).
func (r *Runner) Spool(ctx context.Context, caller *domain.Caller, spoolerOverride string) (*domain.Call, error) {
	ctx, tx, owned, err := r.transaction(ctx)
	if err != nil {
		return nil, err
	}

	fail := func(err error) (*domain.Call, error) {
		if owned {
			_ = tx.Rollback()
		}
		return nil, err
	}

	if caller.ID == "" {
		if err := store.CreateCaller(ctx, tx.Q(), caller); err != nil {
			return fail(err)
		}
	}

	now := time.Now()
	caller.Transition(domain.StatusSpooled, now)
	if err := store.SaveCaller(ctx, tx.Q(), caller); err != nil {
		return fail(err)
	}

	call := domain.NewCall(caller.ID)
	if parent := CurrentCall(ctx); parent != nil {
		call.ParentID = parent.ID
	}
	call.Transition(domain.StatusSpooled, now)
	if err := store.CreateCall(ctx, tx.Q(), call); err != nil {
		return fail(err)
	}

	if r.Spooler != nil {
		m := ports.Message{CallID: call.ID, Spooler: caller.Spooler}
		if spoolerOverride != "" {
			m.Spooler = spoolerOverride
		}
		if caller.Priority != nil {
			m.Priority = *caller.Priority
		}
		// Submission is deferred until the state it refers to is
		// durable, so the engine cannot race ahead of the store.
		tx.AfterCommit(func() {
			if err := r.Spooler.Submit(context.WithoutCancel(ctx), m); err != nil {
				log.Ctx(ctx).Error().Err(err).
					Str("call", call.ID).
					Msg("spool submission failed")
			}
		})
		if owned {
			if err := tx.Commit(); err != nil {
				return call, err
			}
		}
		return call, nil
	}

	runErr := r.run(ctx, tx, caller, call)
	if owned {
		if err := tx.Commit(); err != nil {
			return call, err
		}
	}
	return call, runErr
}

// Run executes an existing pending attempt (the engine bridge path).
func (r *Runner) Run(ctx context.Context, caller *domain.Caller, call *domain.Call) error {
	ctx, tx, owned, err := r.transaction(ctx)
	if err != nil {
		return err
	}
	runErr := r.run(ctx, tx, caller, call)
	if owned {
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return runErr
}

// run is one attempt: Started, savepoint, invoke, then Success with
// the result stored, or rollback to the savepoint plus Failure with
// the trace recorded. The callback's error is always re-raised.
func (r *Runner) run(ctx context.Context, tx *store.Tx, caller *domain.Caller, call *domain.Call) error {
	now := time.Now()
	call.Transition(domain.StatusStarted, now)
	domain.Propagate(call, caller, now, false)
	if err := store.SaveCall(ctx, tx.Q(), call); err != nil {
		return err
	}
	if err := store.SaveCaller(ctx, tx.Q(), caller); err != nil {
		return err
	}

	cp, err := tx.Savepoint(ctx)
	if err != nil {
		return err
	}

	result, cbErr := r.invoke(ctx, caller, call)
	now = time.Now()

	if cbErr != nil {
		// Partial writes from the failed callback are discarded;
		// only the attempt bookkeeping below survives.
		if err := cp.Rollback(ctx); err != nil {
			return err
		}
		call.Exception = formatTrace(caller, cbErr)
		call.Transition(domain.StatusFailure, now)
		domain.Propagate(call, caller, now, r.Exhausted(ctx, tx.Q(), caller))
		if err := store.SaveCall(ctx, tx.Q(), call); err != nil {
			return err
		}
		if err := store.SaveCaller(ctx, tx.Q(), caller); err != nil {
			return err
		}
		return cbErr
	}

	if err := cp.Release(ctx); err != nil {
		return err
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result of %s: %w", caller, err)
	}
	call.Result = raw
	call.Transition(domain.StatusSuccess, now)
	domain.Propagate(call, caller, now, false)
	if err := store.SaveCall(ctx, tx.Q(), call); err != nil {
		return err
	}
	return store.SaveCaller(ctx, tx.Q(), caller)
}

// invoke resolves and runs the callback. Panics surface as errors so
// a panicking callback fails its attempt like any other error.
func (r *Runner) invoke(ctx context.Context, caller *domain.Caller, call *domain.Call) (result any, err error) {
	fn, err := callback.Resolve(r.Registry.Lookup, caller.Callback)
	if err != nil {
		return nil, err
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("callback panic: %v", p)
		}
	}()

	ctx = withCurrent(ctx, r, call)
	return fn(ctx, caller.Kwargs)
}

// Exhausted reports whether the caller's recorded attempts have
// reached max_attempts. Zero max_attempts never exhausts.
func (r *Runner) Exhausted(ctx context.Context, q store.Querier, caller *domain.Caller) bool {
	if caller.MaxAttempts <= 0 {
		return false
	}
	n, err := store.CountCalls(ctx, q, caller.ID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("caller", caller.ID).Msg("count attempts")
		return false
	}
	return n >= caller.MaxAttempts
}

// newAttempt persists the caller when new and records a fresh attempt
// bound to it, parented to the attempt running in ctx, if any.
func (r *Runner) newAttempt(ctx context.Context, tx *store.Tx, caller *domain.Caller) (*domain.Call, error) {
	if caller.ID == "" {
		if err := store.CreateCaller(ctx, tx.Q(), caller); err != nil {
			return nil, err
		}
	}
	call := domain.NewCall(caller.ID)
	if parent := CurrentCall(ctx); parent != nil {
		call.ParentID = parent.ID
	}
	if err := store.CreateCall(ctx, tx.Q(), call); err != nil {
		return nil, err
	}
	return call, nil
}

// transaction joins the enclosing transaction when ctx carries one;
// otherwise it opens its own and reports ownership.
func (r *Runner) transaction(ctx context.Context) (context.Context, *store.Tx, bool, error) {
	if tx, ok := store.TxFrom(ctx); ok {
		return ctx, tx, false, nil
	}
	tx, err := r.Store.Begin(ctx)
	if err != nil {
		return ctx, nil, false, err
	}
	return store.WithTx(ctx, tx), tx, true, nil
}

// formatTrace renders the failure recorded on the attempt: header
// naming the invocation, the error, then the goroutine stack.
func formatTrace(caller *domain.Caller, err error) string {
	return fmt.Sprintf("traceback from %s:\n%v\n\n%s", caller, err, debug.Stack())
}

type currentKey struct{}

type current struct {
	runner *Runner
	call   *domain.Call
}

func withCurrent(ctx context.Context, r *Runner, call *domain.Call) context.Context {
	return context.WithValue(ctx, currentKey{}, current{runner: r, call: call})
}

// CurrentCall returns the attempt whose callback is running in ctx,
// if any. Sub-callers launched from a callback parent to it.
func CurrentCall(ctx context.Context) *domain.Call {
	if c, ok := ctx.Value(currentKey{}).(current); ok {
		return c.call
	}
	return nil
}

// RunnerFrom returns the Runner executing the callback in ctx, so
// callbacks can spawn sub-calls without importing wiring.
func RunnerFrom(ctx context.Context) *Runner {
	if c, ok := ctx.Value(currentKey{}).(current); ok {
		return c.runner
	}
	return nil
}

// Package retention keeps the call table bounded: only the most
// recently created attempts survive pruning.
package retention

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"callq/internal/callback"
	"callq/internal/domain"
	"callq/internal/store"
)

// DefaultKeep is how many calls survive a prune unless overridden.
const DefaultKeep = 10000

// CallbackPath is where the self-hosted prune callback registers.
const CallbackPath = "callq.prune"

// Prune deletes every call except the keep most recently created.
func Prune(ctx context.Context, db *store.DB, keep int) (int64, error) {
	n, err := store.PruneCalls(ctx, db.Q(), keep)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Ctx(ctx).Info().Int64("pruned", n).Int("keep", keep).Msg("calls pruned")
	}
	return n, nil
}

// Callback adapts Prune to the callback registry so pruning runs as a
// cron-driven caller like any other job. Accepts an optional "keep"
// kwarg.
func Callback(db *store.DB) callback.Func {
	return func(ctx context.Context, kwargs domain.Kwargs) (any, error) {
		keep := DefaultKeep
		if v, ok := kwargs.Get("keep"); ok {
			switch n := v.(type) {
			case int:
				keep = n
			case int64:
				keep = int(n)
			case float64:
				keep = int(n)
			default:
				return nil, fmt.Errorf("retention: keep kwarg: unexpected %T", v)
			}
		}
		n, err := Prune(ctx, db, keep)
		if err != nil {
			return nil, err
		}
		return map[string]any{"pruned": n, "keep": keep}, nil
	}
}

// EnsureJob seeds the self-hosting prune caller and its nightly cron
// entry when absent. Idempotent across process starts.
func EnsureJob(ctx context.Context, db *store.DB, keep int) error {
	if keep <= 0 {
		keep = DefaultKeep
	}
	_, err := store.FindCallerByCallback(ctx, db.Q(), CallbackPath)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	caller := domain.NewCaller(CallbackPath, domain.Kwargs{domain.KV("keep", keep)})
	caller.MaxAttempts = 1
	if err := store.CreateCaller(ctx, db.Q(), caller); err != nil {
		return err
	}
	cron := &domain.Cron{CallerID: caller.ID, Minute: "0", Hour: "4"}
	if err := store.CreateCron(ctx, db.Q(), cron); err != nil {
		return err
	}
	log.Ctx(ctx).Info().Str("caller", caller.ID).Int("keep", keep).Msg("prune job seeded")
	return nil
}

package worker

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"callq/internal/callback"
	"callq/internal/config"
	"callq/internal/cronreg"
	"callq/internal/domain"
	"callq/internal/infra/sched"
	"callq/internal/infra/spool"
	"callq/internal/retention"
	"callq/internal/store"
	"callq/internal/usecase"
)

type Config struct {
	ConsumerName string
	Spooler      string
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
}

// Run starts one worker process: the spool consumer, the delayed
// mover, and the cron dispatcher. Without a Redis address the worker
// only serves cron ticks (spooled work ran synchronously at the
// producer already).
func Run(cfg Config) error {
	appCfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(appCfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	registry := callback.NewRegistry()
	registry.Register(retention.CallbackPath, retention.Callback(db))
	registerDemo(registry)

	runner := &usecase.Runner{Store: db, Registry: registry}

	if appCfg.Redis.Addr != "" {
		cli := spool.New(appCfg.Redis)
		cli.ConsumeSpooler = cfg.Spooler
		if err := cli.Init(ctx, cfg.Spooler); err != nil {
			return err
		}
		runner.Spooler = cli

		mover := spool.NewMover(cli, 1*time.Second)
		go func() {
			if err := mover.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Ctx(ctx).Error().Err(err).Msg("mover stopped with error")
			}
		}()

		consumer := usecase.Consumer{
			Q:            cli,
			Runner:       runner,
			ConsumerName: cfg.ConsumerName,
			BaseBackoff:  cfg.BaseBackoff,
			MaxBackoff:   cfg.MaxBackoff,
		}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Ctx(ctx).Error().Err(err).Msg("consumer stopped with error")
			}
		}()
	}

	if err := retention.EnsureJob(ctx, db, appCfg.Retention.Keep); err != nil {
		return err
	}

	if appCfg.Cron.Enabled {
		cronSched, err := sched.New(appCfg.Cron.Timezone)
		if err != nil {
			return err
		}
		reg := cronreg.Registry{Store: db, Runner: runner, Sched: cronSched}
		if err := reg.RegisterSignals(ctx); err != nil {
			return err
		}
		if err := reg.AddCrons(ctx); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("some cron entries were rejected")
		}
		cronSched.Start()
		defer cronSched.Stop()
	}

	<-ctx.Done()
	log.Ctx(ctx).Info().Msg("worker stopped")
	return nil
}

// registerDemo provides exercisable callbacks for manual testing.
func registerDemo(registry *callback.Registry) {
	registry.Register("demo.echo", callback.Func(
		func(ctx context.Context, kwargs domain.Kwargs) (any, error) {
			out := map[string]any{}
			for _, kw := range kwargs {
				out[kw.Name] = kw.Value
			}
			return out, nil
		}))
	registry.Register("demo.fail", callback.Func(
		func(ctx context.Context, kwargs domain.Kwargs) (any, error) {
			return nil, errors.New("simulated failure")
		}))
}

package cronreg

import (
	"context"
	"sync"
	"testing"

	"callq/internal/callback"
	"callq/internal/config"
	"callq/internal/domain"
	"callq/internal/ports"
	"callq/internal/store"
	"callq/internal/usecase"
)

type fakeScheduler struct {
	mu        sync.Mutex
	handlers  map[int]func(int)
	schedules map[int][]domain.Schedule
}

var _ ports.Scheduler = (*fakeScheduler)(nil)

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{
		handlers:  make(map[int]func(int)),
		schedules: make(map[int][]domain.Schedule),
	}
}

func (f *fakeScheduler) RegisterSignal(signal int, handler func(int)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[signal] = handler
	return nil
}

func (f *fakeScheduler) AddSchedule(signal int, s domain.Schedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schedules[signal] = append(f.schedules[signal], s)
	return nil
}

func (f *fakeScheduler) raise(signal int) {
	f.mu.Lock()
	handler := f.handlers[signal]
	f.mu.Unlock()
	if handler != nil {
		handler(signal)
	}
}

func newTestRegistry(t *testing.T) (*Registry, *fakeScheduler) {
	t.Helper()
	db, err := store.Open(config.Database{Path: ":memory:"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	reg := callback.NewRegistry()
	reg.Register("jobs.tick", callback.Func(
		func(ctx context.Context, kwargs domain.Kwargs) (any, error) {
			return "tock", nil
		}))

	sched := newFakeScheduler()
	return &Registry{
		Store:  db,
		Runner: &usecase.Runner{Store: db, Registry: reg},
		Sched:  sched,
	}, sched
}

func seedCronCaller(t *testing.T, db *store.DB, callback string, crons ...*domain.Cron) *domain.Caller {
	t.Helper()
	ctx := context.Background()
	caller := domain.NewCaller(callback, nil)
	if err := store.CreateCaller(ctx, db.Q(), caller); err != nil {
		t.Fatalf("create caller: %v", err)
	}
	for _, c := range crons {
		c.CallerID = caller.ID
		if err := store.CreateCron(ctx, db.Q(), c); err != nil {
			t.Fatalf("create cron: %v", err)
		}
	}
	return caller
}

func TestRegisterSignalsAssignsSequentially(t *testing.T) {
	g, sched := newTestRegistry(t)
	ctx := context.Background()

	first := seedCronCaller(t, g.Store, "jobs.tick", &domain.Cron{Minute: "0"})
	second := seedCronCaller(t, g.Store, "jobs.tick", &domain.Cron{Minute: "30"})
	// Callers without cron entries get no signal.
	plain := seedCronCaller(t, g.Store, "jobs.tick")

	if err := g.RegisterSignals(ctx); err != nil {
		t.Fatalf("RegisterSignals: %v", err)
	}

	got, err := store.GetCaller(ctx, g.Store.Q(), first.ID)
	if err != nil || got.Signal != 1 {
		t.Fatalf("first signal = %d, %v; want 1", got.Signal, err)
	}
	got, err = store.GetCaller(ctx, g.Store.Q(), second.ID)
	if err != nil || got.Signal != 2 {
		t.Fatalf("second signal = %d, %v; want 2", got.Signal, err)
	}
	got, err = store.GetCaller(ctx, g.Store.Q(), plain.ID)
	if err != nil || got.Signal != 0 {
		t.Fatalf("plain signal = %d, %v; want 0", got.Signal, err)
	}

	if len(sched.handlers) != 2 {
		t.Fatalf("handlers = %d, want 2", len(sched.handlers))
	}
}

func TestRegisterSignalsIdempotent(t *testing.T) {
	g, sched := newTestRegistry(t)
	ctx := context.Background()

	caller := seedCronCaller(t, g.Store, "jobs.tick", &domain.Cron{Minute: "0"})

	if err := g.RegisterSignals(ctx); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if err := g.RegisterSignals(ctx); err != nil {
		t.Fatalf("second pass: %v", err)
	}

	got, err := store.GetCaller(ctx, g.Store.Q(), caller.ID)
	if err != nil || got.Signal != 1 {
		t.Fatalf("signal = %d, %v; want stable 1", got.Signal, err)
	}
	if len(sched.handlers) != 1 {
		t.Fatalf("handlers = %d, want 1", len(sched.handlers))
	}
}

func TestRegisterSignalsClearsStaleAssignments(t *testing.T) {
	g, _ := newTestRegistry(t)
	ctx := context.Background()

	dropped := seedCronCaller(t, g.Store, "jobs.tick", &domain.Cron{Minute: "0"})
	survivor := seedCronCaller(t, g.Store, "jobs.tick", &domain.Cron{Minute: "30"})

	if err := g.RegisterSignals(ctx); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	// The first caller leaves the cron set between passes.
	crons, err := store.CronsByCaller(ctx, g.Store.Q(), dropped.ID)
	if err != nil {
		t.Fatalf("crons: %v", err)
	}
	for _, c := range crons {
		if err := store.DeleteCron(ctx, g.Store.Q(), c.ID); err != nil {
			t.Fatalf("delete cron: %v", err)
		}
	}

	if err := g.RegisterSignals(ctx); err != nil {
		t.Fatalf("second pass: %v", err)
	}

	got, err := store.GetCaller(ctx, g.Store.Q(), dropped.ID)
	if err != nil || got.Signal != 0 {
		t.Fatalf("dropped caller signal = %d, %v; want cleared", got.Signal, err)
	}
	bySignal, err := store.GetCallerBySignal(ctx, g.Store.Q(), 1)
	if err != nil {
		t.Fatalf("get by signal: %v", err)
	}
	if bySignal.ID != survivor.ID {
		t.Fatalf("signal 1 resolves to %s, want %s", bySignal.ID, survivor.ID)
	}
}

func TestAddCronsRegistersMatrix(t *testing.T) {
	g, sched := newTestRegistry(t)
	ctx := context.Background()

	seedCronCaller(t, g.Store, "jobs.tick",
		&domain.Cron{Minute: "1-2", Hour: "1", Day: "1"})

	if err := g.RegisterSignals(ctx); err != nil {
		t.Fatalf("RegisterSignals: %v", err)
	}
	if err := g.AddCrons(ctx); err != nil {
		t.Fatalf("AddCrons: %v", err)
	}

	want := []domain.Schedule{{1, 1, 1, -1, -1}, {2, 1, 1, -1, -1}}
	got := sched.schedules[1]
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("schedules = %v, want %v", got, want)
	}
}

func TestAddCronsRejectsMalformedLoudly(t *testing.T) {
	g, sched := newTestRegistry(t)
	ctx := context.Background()

	seedCronCaller(t, g.Store, "jobs.tick", &domain.Cron{Minute: "lol"})
	healthy := seedCronCaller(t, g.Store, "jobs.tick", &domain.Cron{Minute: "5"})

	if err := g.RegisterSignals(ctx); err != nil {
		t.Fatalf("RegisterSignals: %v", err)
	}
	err := g.AddCrons(ctx)
	if err == nil {
		t.Fatal("malformed cron accepted silently")
	}

	// The healthy caller still registered.
	got, err2 := store.GetCaller(ctx, g.Store.Q(), healthy.ID)
	if err2 != nil {
		t.Fatalf("healthy caller: %v", err2)
	}
	if len(sched.schedules[got.Signal]) != 1 {
		t.Fatalf("healthy schedules = %v", sched.schedules[got.Signal])
	}
}

func TestDispatchRunsCaller(t *testing.T) {
	g, sched := newTestRegistry(t)
	ctx := context.Background()

	caller := seedCronCaller(t, g.Store, "jobs.tick", &domain.Cron{Minute: "0"})
	if err := g.RegisterSignals(ctx); err != nil {
		t.Fatalf("RegisterSignals: %v", err)
	}

	sched.raise(1)

	calls, err := store.ListCallsByCaller(ctx, g.Store.Q(), caller.ID, 0)
	if err != nil || len(calls) != 1 {
		t.Fatalf("calls = %v, %v; want one run", calls, err)
	}
	if calls[0].Status != domain.StatusSuccess {
		t.Fatalf("status = %v", calls[0].Status)
	}
}

func TestNoSchedulerIsNoop(t *testing.T) {
	g, _ := newTestRegistry(t)
	g.Sched = nil
	ctx := context.Background()

	caller := seedCronCaller(t, g.Store, "jobs.tick", &domain.Cron{Minute: "0"})

	if err := g.RegisterSignals(ctx); err != nil {
		t.Fatalf("RegisterSignals: %v", err)
	}
	if err := g.AddCrons(ctx); err != nil {
		t.Fatalf("AddCrons: %v", err)
	}
	got, err := store.GetCaller(ctx, g.Store.Q(), caller.ID)
	if err != nil || got.Signal != 0 {
		t.Fatalf("signal = %d, %v; want untouched", got.Signal, err)
	}
}

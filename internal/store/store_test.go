package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"callq/internal/config"
	"callq/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(config.Database{Path: ":memory:"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCallerRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	prio := 7
	caller := domain.NewCaller("jobs.echo", domain.Kwargs{domain.KV("id", int64(1))})
	caller.MaxAttempts = 3
	caller.Spooler = "mail"
	caller.Priority = &prio

	if err := CreateCaller(ctx, db.Q(), caller); err != nil {
		t.Fatalf("create: %v", err)
	}
	if caller.ID == "" {
		t.Fatal("id not assigned")
	}

	got, err := GetCaller(ctx, db.Q(), caller.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Callback != "jobs.echo" || got.MaxAttempts != 3 || got.Spooler != "mail" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Priority == nil || *got.Priority != 7 {
		t.Fatalf("priority = %v", got.Priority)
	}
	if v, _ := got.Kwargs.Get("id"); v != int64(1) {
		t.Fatalf("kwargs = %v", got.Kwargs)
	}

	got.Signal = 4
	got.Transition(domain.StatusSpooled, time.Now())
	if err := SaveCaller(ctx, db.Q(), got); err != nil {
		t.Fatalf("save: %v", err)
	}

	bySignal, err := GetCallerBySignal(ctx, db.Q(), 4)
	if err != nil {
		t.Fatalf("get by signal: %v", err)
	}
	if bySignal.ID != caller.ID || bySignal.Status != domain.StatusSpooled {
		t.Fatalf("by signal mismatch: %+v", bySignal)
	}
	if bySignal.Spooled == nil {
		t.Fatal("spooled timestamp lost")
	}
}

func TestGetCallerNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := GetCaller(context.Background(), db.Q(), "nope")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := SaveCaller(context.Background(), db.Q(), domain.NewCaller("x", nil)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("save err = %v, want ErrNotFound", err)
	}
}

func TestFindCallerByCallback(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := FindCallerByCallback(ctx, db.Q(), "jobs.echo"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	caller := domain.NewCaller("jobs.echo", nil)
	if err := CreateCaller(ctx, db.Q(), caller); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := FindCallerByCallback(ctx, db.Q(), "jobs.echo")
	if err != nil || got.ID != caller.ID {
		t.Fatalf("find = %v, %v", got, err)
	}
}

func TestCallRoundTripAndCount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	caller := domain.NewCaller("jobs.echo", nil)
	if err := CreateCaller(ctx, db.Q(), caller); err != nil {
		t.Fatalf("create caller: %v", err)
	}

	call := domain.NewCall(caller.ID)
	if err := CreateCall(ctx, db.Q(), call); err != nil {
		t.Fatalf("create call: %v", err)
	}

	call.Result = []byte(`{"ok":true}`)
	call.Exception = ""
	call.Transition(domain.StatusStarted, time.Now())
	call.Transition(domain.StatusSuccess, time.Now())
	if err := SaveCall(ctx, db.Q(), call); err != nil {
		t.Fatalf("save call: %v", err)
	}

	got, err := GetCall(ctx, db.Q(), call.ID)
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if string(got.Result) != `{"ok":true}` || got.Status != domain.StatusSuccess {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Started == nil || got.Ended == nil {
		t.Fatal("timestamps lost")
	}

	n, err := CountCalls(ctx, db.Q(), caller.ID)
	if err != nil || n != 1 {
		t.Fatalf("count = %d, %v", n, err)
	}
}

func TestListCallsNewestFirst(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	caller := domain.NewCaller("jobs.echo", nil)
	if err := CreateCaller(ctx, db.Q(), caller); err != nil {
		t.Fatalf("create caller: %v", err)
	}

	base := time.Now().Truncate(time.Second)
	var ids []string
	for i := 0; i < 3; i++ {
		call := domain.NewCall(caller.ID)
		call.Created = base.Add(time.Duration(i) * time.Second)
		if err := CreateCall(ctx, db.Q(), call); err != nil {
			t.Fatalf("create call: %v", err)
		}
		ids = append(ids, call.ID)
	}

	calls, err := ListCallsByCaller(ctx, db.Q(), caller.ID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(calls) != 3 || calls[0].ID != ids[2] || calls[2].ID != ids[0] {
		t.Fatalf("order wrong: %v", calls)
	}
}

func TestPruneCallsKeepsMostRecent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	caller := domain.NewCaller("jobs.echo", nil)
	if err := CreateCaller(ctx, db.Q(), caller); err != nil {
		t.Fatalf("create caller: %v", err)
	}

	base := time.Now()
	var ids []string
	for i := 0; i < 5; i++ {
		call := domain.NewCall(caller.ID)
		// Sub-second spacing: text ordering must still be right.
		call.Created = base.Add(time.Duration(i) * 250 * time.Millisecond)
		if err := CreateCall(ctx, db.Q(), call); err != nil {
			t.Fatalf("create call: %v", err)
		}
		ids = append(ids, call.ID)
	}

	pruned, err := PruneCalls(ctx, db.Q(), 2)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 3 {
		t.Fatalf("pruned = %d, want 3", pruned)
	}

	calls, err := ListCallsByCaller(ctx, db.Q(), caller.ID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(calls) != 2 || calls[0].ID != ids[4] || calls[1].ID != ids[3] {
		t.Fatalf("survivors wrong: %v", calls)
	}
}

func TestPruneNullsDanglingParents(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	caller := domain.NewCaller("jobs.echo", nil)
	if err := CreateCaller(ctx, db.Q(), caller); err != nil {
		t.Fatalf("create caller: %v", err)
	}

	base := time.Now()
	parent := domain.NewCall(caller.ID)
	parent.Created = base
	if err := CreateCall(ctx, db.Q(), parent); err != nil {
		t.Fatalf("create parent: %v", err)
	}
	child := domain.NewCall(caller.ID)
	child.Created = base.Add(time.Second)
	child.ParentID = parent.ID
	if err := CreateCall(ctx, db.Q(), child); err != nil {
		t.Fatalf("create child: %v", err)
	}

	if _, err := PruneCalls(ctx, db.Q(), 1); err != nil {
		t.Fatalf("prune: %v", err)
	}

	got, err := GetCall(ctx, db.Q(), child.ID)
	if err != nil {
		t.Fatalf("child pruned: %v", err)
	}
	if got.ParentID != "" {
		t.Fatalf("dangling parent reference kept: %q", got.ParentID)
	}
}

func TestSavepointRollback(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	tx, err := db.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	kept := domain.NewCaller("kept", nil)
	if err := CreateCaller(ctx, tx.Q(), kept); err != nil {
		t.Fatalf("create kept: %v", err)
	}

	cp, err := tx.Savepoint(ctx)
	if err != nil {
		t.Fatalf("savepoint: %v", err)
	}
	discarded := domain.NewCaller("discarded", nil)
	if err := CreateCaller(ctx, tx.Q(), discarded); err != nil {
		t.Fatalf("create discarded: %v", err)
	}
	if err := cp.Rollback(ctx); err != nil {
		t.Fatalf("rollback to savepoint: %v", err)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if _, err := GetCaller(ctx, db.Q(), kept.ID); err != nil {
		t.Fatalf("kept caller lost: %v", err)
	}
	if _, err := GetCaller(ctx, db.Q(), discarded.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("discarded caller survived: %v", err)
	}
}

func TestNestedSavepoints(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	tx, err := db.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	var ids []string
	for i := 0; i < 3; i++ {
		cp, err := tx.Savepoint(ctx)
		if err != nil {
			t.Fatalf("savepoint %d: %v", i, err)
		}
		c := domain.NewCaller(fmt.Sprintf("cb%d", i), nil)
		if err := CreateCaller(ctx, tx.Q(), c); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		ids = append(ids, c.ID)
		if i == 1 {
			if err := cp.Rollback(ctx); err != nil {
				t.Fatalf("rollback %d: %v", i, err)
			}
		} else {
			if err := cp.Release(ctx); err != nil {
				t.Fatalf("release %d: %v", i, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	for i, id := range ids {
		_, err := GetCaller(ctx, db.Q(), id)
		if i == 1 {
			if !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("caller %d survived rollback", i)
			}
		} else if err != nil {
			t.Fatalf("caller %d lost: %v", i, err)
		}
	}
}

func TestAfterCommitHooks(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	tx, err := db.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	ran := false
	tx.AfterCommit(func() { ran = true })
	if ran {
		t.Fatal("hook ran before commit")
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !ran {
		t.Fatal("hook did not run on commit")
	}

	tx, err = db.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	ran = false
	tx.AfterCommit(func() { ran = true })
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if ran {
		t.Fatal("hook ran on rollback")
	}
}

func TestCronCRUD(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	caller := domain.NewCaller("jobs.echo", nil)
	if err := CreateCaller(ctx, db.Q(), caller); err != nil {
		t.Fatalf("create caller: %v", err)
	}

	cron := &domain.Cron{CallerID: caller.ID, Minute: "0", Hour: "4"}
	if err := CreateCron(ctx, db.Q(), cron); err != nil {
		t.Fatalf("create cron: %v", err)
	}
	if cron.Day != "*" || cron.Month != "*" || cron.Weekday != "*" {
		t.Fatalf("empty fields not defaulted: %+v", cron)
	}

	crons, err := CronsByCaller(ctx, db.Q(), caller.ID)
	if err != nil || len(crons) != 1 {
		t.Fatalf("crons = %v, %v", crons, err)
	}
	if crons[0].Minute != "0" || crons[0].Hour != "4" {
		t.Fatalf("cron mismatch: %+v", crons[0])
	}

	if err := DeleteCron(ctx, db.Q(), cron.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := DeleteCron(ctx, db.Q(), cron.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
}

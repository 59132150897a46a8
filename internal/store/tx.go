package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Tx is an open transaction with savepoint checkpoints and deferred
// after-commit hooks (used to hand work to external engines only once
// the state it refers to is durable).
type Tx struct {
	tx    *sql.Tx
	seq   int
	hooks []func()
}

// Begin opens a transaction.
func (d *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Q exposes the transaction as a Querier.
func (t *Tx) Q() Querier { return t.tx }

// AfterCommit defers fn until Commit succeeds. Hooks never run on
// rollback or commit failure.
func (t *Tx) AfterCommit(fn func()) {
	t.hooks = append(t.hooks, fn)
}

func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	for _, fn := range t.hooks {
		fn()
	}
	t.hooks = nil
	return nil
}

func (t *Tx) Rollback() error {
	t.hooks = nil
	return t.tx.Rollback()
}

// Checkpoint is a nested rollback point inside a transaction.
type Checkpoint struct {
	tx   *Tx
	name string
}

// Savepoint opens a checkpoint. Rolling it back undoes everything
// written since, without aborting the enclosing transaction.
func (t *Tx) Savepoint(ctx context.Context) (*Checkpoint, error) {
	t.seq++
	name := fmt.Sprintf("cp_%d", t.seq)
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return nil, fmt.Errorf("store: savepoint %s: %w", name, err)
	}
	return &Checkpoint{tx: t, name: name}, nil
}

// Release commits the checkpoint into the enclosing transaction.
func (c *Checkpoint) Release(ctx context.Context) error {
	if _, err := c.tx.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+c.name); err != nil {
		return fmt.Errorf("store: release %s: %w", c.name, err)
	}
	return nil
}

// Rollback discards everything written since the checkpoint.
func (c *Checkpoint) Rollback(ctx context.Context) error {
	if _, err := c.tx.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+c.name); err != nil {
		return fmt.Errorf("store: rollback to %s: %w", c.name, err)
	}
	_, err := c.tx.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+c.name)
	return err
}

type txKey struct{}

// WithTx carries an open transaction in the context so nested
// operations join it instead of opening their own.
func WithTx(ctx context.Context, tx *Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFrom returns the enclosing transaction, if any.
func TxFrom(ctx context.Context) (*Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*Tx)
	return tx, ok
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"callq/internal/domain"
)

const callerColumns = `id, callback, kwargs, max_attempts, spooler, priority,
	signal_number, status, created, spooled, started, ended, parent_id`

// CreateCaller persists a new caller, assigning an id when unset.
func CreateCaller(ctx context.Context, q Querier, c *domain.Caller) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Kwargs == nil {
		c.Kwargs = domain.Kwargs{}
	}
	kwargs, err := json.Marshal(c.Kwargs)
	if err != nil {
		return fmt.Errorf("store: caller kwargs: %w", err)
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO callers (`+callerColumns+`)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.Callback, string(kwargs), c.MaxAttempts, c.Spooler,
		nullIntArg(c.Priority), c.Signal, int(c.Status), timeStr(c.Created),
		nullTimeArg(c.Spooled), nullTimeArg(c.Started), nullTimeArg(c.Ended),
		nullStrArg(c.ParentID),
	)
	if err != nil {
		return fmt.Errorf("store: create caller: %w", err)
	}
	return nil
}

// SaveCaller writes back a caller's mutable state.
func SaveCaller(ctx context.Context, q Querier, c *domain.Caller) error {
	kwargs, err := json.Marshal(c.Kwargs)
	if err != nil {
		return fmt.Errorf("store: caller kwargs: %w", err)
	}
	res, err := q.ExecContext(ctx,
		`UPDATE callers SET callback=?, kwargs=?, max_attempts=?, spooler=?,
		 priority=?, signal_number=?, status=?, spooled=?, started=?, ended=?
		 WHERE id=?`,
		c.Callback, string(kwargs), c.MaxAttempts, c.Spooler,
		nullIntArg(c.Priority), c.Signal, int(c.Status),
		nullTimeArg(c.Spooled), nullTimeArg(c.Started), nullTimeArg(c.Ended),
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("store: save caller: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetCaller loads one caller by id.
func GetCaller(ctx context.Context, q Querier, id string) (*domain.Caller, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+callerColumns+` FROM callers WHERE id = ?`, id)
	return scanCaller(row)
}

// GetCallerBySignal loads the caller holding a cron dispatch signal.
func GetCallerBySignal(ctx context.Context, q Querier, signal int) (*domain.Caller, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+callerColumns+` FROM callers WHERE signal_number = ?`, signal)
	return scanCaller(row)
}

// ClearSignals drops every cron signal assignment. A registration
// pass starts from this clean slate so stale assignments from callers
// that left the cron set cannot collide with the fresh sequence.
func ClearSignals(ctx context.Context, q Querier) error {
	_, err := q.ExecContext(ctx,
		`UPDATE callers SET signal_number = 0 WHERE signal_number != 0`)
	if err != nil {
		return fmt.Errorf("store: clear signals: %w", err)
	}
	return nil
}

// FindCallerByCallback returns the first caller registered for a
// callback path, or ErrNotFound.
func FindCallerByCallback(ctx context.Context, q Querier, callback string) (*domain.Caller, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+callerColumns+` FROM callers WHERE callback = ?
		 ORDER BY created ASC, id ASC LIMIT 1`, callback)
	return scanCaller(row)
}

// ListCallers returns callers newest first.
func ListCallers(ctx context.Context, q Querier, limit int) ([]*domain.Caller, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.QueryContext(ctx,
		`SELECT `+callerColumns+` FROM callers
		 ORDER BY created DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list callers: %w", err)
	}
	defer rows.Close()
	return scanCallers(rows)
}

// ListCallersWithCrons returns every caller owning at least one cron
// entry, oldest first so signal assignment is stable across passes.
func ListCallersWithCrons(ctx context.Context, q Querier) ([]*domain.Caller, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+callerColumns+` FROM callers
		 WHERE id IN (SELECT DISTINCT caller_id FROM crons)
		 ORDER BY created ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list callers with crons: %w", err)
	}
	defer rows.Close()
	return scanCallers(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCaller(row rowScanner) (*domain.Caller, error) {
	var (
		c        domain.Caller
		kwargs   string
		priority sql.NullInt64
		status   int
		created  string
		spooled  sql.NullString
		started  sql.NullString
		ended    sql.NullString
		parent   sql.NullString
	)
	err := row.Scan(&c.ID, &c.Callback, &kwargs, &c.MaxAttempts, &c.Spooler,
		&priority, &c.Signal, &status, &created, &spooled, &started, &ended,
		&parent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan caller: %w", err)
	}
	if err := json.Unmarshal([]byte(kwargs), &c.Kwargs); err != nil {
		return nil, fmt.Errorf("store: caller kwargs: %w", err)
	}
	if priority.Valid {
		p := int(priority.Int64)
		c.Priority = &p
	}
	c.Status = domain.Status(status)
	c.Created = parseTime(created)
	c.Spooled = timeFromNull(spooled)
	c.Started = timeFromNull(started)
	c.Ended = timeFromNull(ended)
	c.ParentID = parent.String
	return &c, nil
}

func scanCallers(rows *sql.Rows) ([]*domain.Caller, error) {
	var out []*domain.Caller
	for rows.Next() {
		c, err := scanCaller(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

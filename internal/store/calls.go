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

const callColumns = `id, caller_id, result, exception, status, created,
	spooled, started, ended, parent_id`

// CreateCall persists a new attempt, assigning an id when unset.
func CreateCall(ctx context.Context, q Querier, c *domain.Call) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	var result any
	if c.Result != nil {
		result = string(c.Result)
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO calls (`+callColumns+`)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.CallerID, result, c.Exception, int(c.Status),
		timeStr(c.Created), nullTimeArg(c.Spooled), nullTimeArg(c.Started),
		nullTimeArg(c.Ended), nullStrArg(c.ParentID),
	)
	if err != nil {
		return fmt.Errorf("store: create call: %w", err)
	}
	return nil
}

// SaveCall writes back an attempt's mutable state.
func SaveCall(ctx context.Context, q Querier, c *domain.Call) error {
	var result any
	if c.Result != nil {
		result = string(c.Result)
	}
	res, err := q.ExecContext(ctx,
		`UPDATE calls SET result=?, exception=?, status=?, spooled=?,
		 started=?, ended=? WHERE id=?`,
		result, c.Exception, int(c.Status), nullTimeArg(c.Spooled),
		nullTimeArg(c.Started), nullTimeArg(c.Ended), c.ID,
	)
	if err != nil {
		return fmt.Errorf("store: save call: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetCall loads one attempt by id.
func GetCall(ctx context.Context, q Querier, id string) (*domain.Call, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+callColumns+` FROM calls WHERE id = ?`, id)
	return scanCall(row)
}

// ListCallsByCaller returns a caller's attempts, newest first.
func ListCallsByCaller(ctx context.Context, q Querier, callerID string, limit int) ([]*domain.Call, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.QueryContext(ctx,
		`SELECT `+callColumns+` FROM calls WHERE caller_id = ?
		 ORDER BY created DESC, id DESC LIMIT ?`, callerID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list calls: %w", err)
	}
	defer rows.Close()

	var out []*domain.Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountCalls counts the attempts recorded for a caller.
func CountCalls(ctx context.Context, q Querier, callerID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM calls WHERE caller_id = ?`, callerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count calls: %w", err)
	}
	return n, nil
}

// PruneCalls deletes every attempt except the keep most recently
// created (ties broken by id). Parent references held by survivors
// are nulled by the schema's ON DELETE SET NULL.
func PruneCalls(ctx context.Context, q Querier, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := q.ExecContext(ctx,
		`DELETE FROM calls WHERE id NOT IN (
		     SELECT id FROM calls ORDER BY created DESC, id DESC LIMIT ?
		 )`, keep)
	if err != nil {
		return 0, fmt.Errorf("store: prune calls: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func scanCall(row rowScanner) (*domain.Call, error) {
	var (
		c       domain.Call
		result  sql.NullString
		status  int
		created string
		spooled sql.NullString
		started sql.NullString
		ended   sql.NullString
		parent  sql.NullString
	)
	err := row.Scan(&c.ID, &c.CallerID, &result, &c.Exception, &status,
		&created, &spooled, &started, &ended, &parent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan call: %w", err)
	}
	if result.Valid {
		c.Result = json.RawMessage(result.String)
	}
	c.Status = domain.Status(status)
	c.Created = parseTime(created)
	c.Spooled = timeFromNull(spooled)
	c.Started = timeFromNull(started)
	c.Ended = timeFromNull(ended)
	c.ParentID = parent.String
	return &c, nil
}

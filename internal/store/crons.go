package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"callq/internal/domain"
)

// CreateCron persists a calendar entry, assigning an id when unset
// and defaulting empty fields to the wildcard.
func CreateCron(ctx context.Context, q Querier, c *domain.Cron) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	for _, f := range []*string{&c.Minute, &c.Hour, &c.Day, &c.Month, &c.Weekday} {
		if *f == "" {
			*f = "*"
		}
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO crons (id, caller_id, minute, hour, day, month, weekday)
		 VALUES (?,?,?,?,?,?,?)`,
		c.ID, c.CallerID, c.Minute, c.Hour, c.Day, c.Month, c.Weekday,
	)
	if err != nil {
		return fmt.Errorf("store: create cron: %w", err)
	}
	return nil
}

// DeleteCron removes one calendar entry; the owning caller and its
// calls are untouched.
func DeleteCron(ctx context.Context, q Querier, id string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM crons WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete cron: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CronsByCaller returns a caller's calendar entries in creation order.
func CronsByCaller(ctx context.Context, q Querier, callerID string) ([]*domain.Cron, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, caller_id, minute, hour, day, month, weekday
		 FROM crons WHERE caller_id = ? ORDER BY rowid ASC`, callerID)
	if err != nil {
		return nil, fmt.Errorf("store: crons by caller: %w", err)
	}
	defer rows.Close()

	var out []*domain.Cron
	for rows.Next() {
		var c domain.Cron
		if err := rows.Scan(&c.ID, &c.CallerID, &c.Minute, &c.Hour, &c.Day,
			&c.Month, &c.Weekday); err != nil {
			return nil, fmt.Errorf("store: scan cron: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

package store

import (
	"database/sql"
	"time"
)

// Timestamps are stored as fixed-width RFC3339 text in UTC. The
// fraction is zero-padded (unlike RFC3339Nano) so lexicographic order
// in SQL matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func timeStr(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTimeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeStr(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func timeFromNull(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func nullStrArg(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIntArg(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

// Package eventlog records attempt lifecycle events in an append-only
// audit table. Writes are best-effort from the attempt engine; readers
// page through by offset.
package eventlog

import (
	"context"
	"database/sql"
	"time"
)

const (
	TypeAttemptStarted       = "AttemptStarted"
	TypeAttemptSubmitted     = "AttemptSubmitted"
	TypeAttemptAutoSubmitted = "AttemptAutoSubmitted"
)

type Event struct {
	Offset    int64  `json:"offset"`
	Type      string `json:"type"`
	Key       string `json:"key"` // natural key: submission ID
	DataJSON  string `json:"data"`
	CreatedAt int64  `json:"created_at"`
}

type Repo struct{ db *sql.DB }

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Append(ctx context.Context, typ, key, dataJSON string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (typ, key, data, created_at) VALUES ($1,$2,$3,$4)`,
		typ, key, dataJSON, time.Now().Unix())
	return err
}

func (r *Repo) ListAfter(ctx context.Context, offset int64, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT offs, typ, key, data, created_at FROM event_log WHERE offs > $1 ORDER BY offs LIMIT $2`,
		offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Offset, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

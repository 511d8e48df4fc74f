package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo writes to call_events. The table is INSERT-only by convention.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO call_events (id, call_pk, call_id, type, from_status, to_status, step, message, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`
	_, err := r.db.ExecContext(ctx, q, e.ID, e.CallPK, e.CallID, string(e.Type), e.FromStatus, e.ToStatus, e.Step, e.Message, e.CreatedAt)
	return err
}

func (r *PostgresRepo) ListByCall(ctx context.Context, callPK int64) ([]Event, error) {
	const q = `
SELECT id, call_pk, call_id, type, from_status, to_status, step, message, created_at
FROM call_events
WHERE call_pk = $1
ORDER BY created_at, id
`
	rows, err := r.db.QueryContext(ctx, q, callPK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.CallPK, &e.CallID, &e.Type, &e.FromStatus, &e.ToStatus, &e.Step, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

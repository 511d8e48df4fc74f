package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"call-automation/pkg/utils"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresRepo stores call records in the calls table (see internal/store).
//
// call_id is guarded by a partial unique index over non-terminal rows, so a
// correlation id can be reused only after the previous record finished.
type PostgresRepo struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, clock: time.Now}
}

const callColumns = `id, call_id, provider_session_id, phone_number, language, tts_provider, voice,
greeting_message, prompt, funnel_goal, stability, speed, similarity_boost, status, duration,
transcript, disposition, summary, followup_message, customer_interest, funnel_achieved,
crm_status, telegram_link_sent, created_at, updated_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(s rowScanner) (Call, error) {
	var (
		c           Call
		session     sql.NullString
		stability   sql.NullFloat64
		speed       sql.NullFloat64
		similarity  sql.NullFloat64
		duration    sql.NullFloat64
		transcript  sql.NullString
		disposition sql.NullString
		summary     sql.NullString
		followup    sql.NullString
		interest    sql.NullString
		funnel      sql.NullBool
		updatedAt   sql.NullTime
		completedAt sql.NullTime
	)
	if err := s.Scan(
		&c.ID, &c.CallID, &session, &c.PhoneNumber, &c.Language, &c.TTSProvider, &c.Voice,
		&c.GreetingMessage, &c.Prompt, &c.FunnelGoal, &stability, &speed, &similarity, &c.Status, &duration,
		&transcript, &disposition, &summary, &followup, &interest, &funnel,
		&c.CRMStatus, &c.TelegramLinkSent, &c.CreatedAt, &updatedAt, &completedAt,
	); err != nil {
		return Call{}, err
	}
	c.ProviderSessionID = utils.StringPtr(session)
	c.Stability = utils.FloatPtr(stability)
	c.Speed = utils.FloatPtr(speed)
	c.SimilarityBoost = utils.FloatPtr(similarity)
	c.Duration = utils.FloatPtr(duration)
	c.Transcript = utils.StringPtr(transcript)
	if disposition.Valid {
		d := Disposition(disposition.String)
		c.Disposition = &d
	}
	c.Summary = utils.StringPtr(summary)
	c.FollowupMessage = utils.StringPtr(followup)
	c.CustomerInterest = utils.StringPtr(interest)
	c.FunnelAchieved = utils.BoolPtr(funnel)
	c.UpdatedAt = utils.TimePtr(updatedAt)
	c.CompletedAt = utils.TimePtr(completedAt)
	return c, nil
}

func (r *PostgresRepo) Create(ctx context.Context, c Call) (Call, error) {
	if c.CRMStatus == "" {
		c.CRMStatus = CRMStatusPending
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.clock().UTC()
	}
	const q = `
INSERT INTO calls (call_id, phone_number, language, tts_provider, voice, greeting_message, prompt,
	funnel_goal, stability, speed, similarity_boost, status, crm_status, telegram_link_sent, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
RETURNING ` + callColumns

	row := r.db.QueryRowContext(ctx, q,
		c.CallID, c.PhoneNumber, c.Language, c.TTSProvider, c.Voice, c.GreetingMessage, c.Prompt,
		c.FunnelGoal, utils.NullFloat(c.Stability), utils.NullFloat(c.Speed), utils.NullFloat(c.SimilarityBoost),
		string(c.Status), string(c.CRMStatus), c.TelegramLinkSent, c.CreatedAt,
	)
	out, err := scanCall(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Call{}, ErrDuplicateCallID
		}
		return Call{}, err
	}
	return out, nil
}

func (r *PostgresRepo) Get(ctx context.Context, id int64) (Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE id = $1`
	c, err := scanCall(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	return c, err
}

func (r *PostgresRepo) FindActiveByCallID(ctx context.Context, callID string) (Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE call_id = $1 ORDER BY id DESC LIMIT 1`
	c, err := scanCall(r.db.QueryRowContext(ctx, q, callID))
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	return c, err
}

func (r *PostgresRepo) List(ctx context.Context, skip, limit int) ([]ListItem, error) {
	const q = `
SELECT id, phone_number, status, disposition, duration, created_at, crm_status
FROM calls
ORDER BY created_at DESC, id DESC
OFFSET $1 LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, skip, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ListItem, 0)
	for rows.Next() {
		var (
			it          ListItem
			disposition sql.NullString
			duration    sql.NullFloat64
		)
		if err := rows.Scan(&it.ID, &it.PhoneNumber, &it.Status, &disposition, &duration, &it.CreatedAt, &it.CRMStatus); err != nil {
			return nil, err
		}
		if disposition.Valid {
			d := Disposition(disposition.String)
			it.Disposition = &d
		}
		it.Duration = utils.FloatPtr(duration)
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Apply(ctx context.Context, id int64, expect Status, p Patch) (Call, error) {
	if expect == "" && p.Status != "" {
		return Call{}, fmt.Errorf("%w: status change without expected status", ErrInvalidTransition)
	}
	q, args := buildUpdate(id, expect, p, r.clock().UTC())

	c, err := scanCall(r.db.QueryRowContext(ctx, q, args...))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Call{}, err
	}
	// Zero rows: either the id is unknown or the status guard did not match.
	if _, gerr := r.Get(ctx, id); gerr != nil {
		return Call{}, gerr
	}
	return Call{}, ErrStaleState
}

// buildUpdate renders the compare-and-set UPDATE for p. Only non-nil fields are
// written; updated_at is always refreshed.
func buildUpdate(id int64, expect Status, p Patch, now time.Time) (string, []any) {
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if p.Status != "" {
		set("status", string(p.Status))
	}
	if p.ProviderSessionID != nil {
		set("provider_session_id", *p.ProviderSessionID)
	}
	if p.Transcript != nil {
		set("transcript", *p.Transcript)
	}
	if p.Duration != nil {
		set("duration", *p.Duration)
	}
	if p.Disposition != nil {
		set("disposition", string(*p.Disposition))
	}
	if p.Summary != nil {
		set("summary", *p.Summary)
	}
	if p.FollowupMessage != nil {
		set("followup_message", *p.FollowupMessage)
	}
	if p.CustomerInterest != nil {
		set("customer_interest", *p.CustomerInterest)
	}
	if p.FunnelAchieved != nil {
		set("funnel_achieved", *p.FunnelAchieved)
	}
	if p.CRMStatus != nil {
		set("crm_status", string(*p.CRMStatus))
	}
	if p.TelegramLinkSent != nil {
		set("telegram_link_sent", *p.TelegramLinkSent)
	}
	if p.CompletedAt != nil {
		set("completed_at", *p.CompletedAt)
	}
	set("updated_at", now)

	args = append(args, id)
	where := fmt.Sprintf("id = $%d", len(args))
	if expect != "" {
		args = append(args, string(expect))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	q := "UPDATE calls SET " + strings.Join(sets, ", ") + " WHERE " + where + " RETURNING " + callColumns
	return q, args
}

func (r *PostgresRepo) ListStale(ctx context.Context, statuses []Status, before time.Time) ([]Call, error) {
	if len(statuses) == 0 {
		return []Call{}, nil
	}
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}
	q := `SELECT ` + callColumns + ` FROM calls WHERE status = ANY($1) AND COALESCE(updated_at, created_at) < $2 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, names, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Call, 0)
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListOutcomes(ctx context.Context) ([]Outcome, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT disposition, crm_status, duration FROM calls`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Outcome, 0)
	for rows.Next() {
		var (
			o           Outcome
			disposition sql.NullString
			duration    sql.NullFloat64
		)
		if err := rows.Scan(&disposition, &o.CRMStatus, &duration); err != nil {
			return nil, err
		}
		if disposition.Valid {
			d := Disposition(disposition.String)
			o.Disposition = &d
		}
		o.Duration = utils.FloatPtr(duration)
		out = append(out, o)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

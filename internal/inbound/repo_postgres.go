package inbound

import (
	"context"
	"database/sql"
	"errors"

	"call-automation/pkg/utils"
)

const inboundColumns = `id, language, voice, greeting_message, prompt, funnel_goal, is_active, created_at, updated_at`

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(s rowScanner) (Config, error) {
	var (
		c         Config
		updatedAt sql.NullTime
	)
	if err := s.Scan(&c.ID, &c.Language, &c.Voice, &c.GreetingMessage, &c.Prompt, &c.FunnelGoal, &c.IsActive, &c.CreatedAt, &updatedAt); err != nil {
		return Config{}, err
	}
	c.UpdatedAt = utils.TimePtr(updatedAt)
	return c, nil
}

func (r *PostgresRepo) GetOrCreate(ctx context.Context, def Config) (Config, error) {
	var out Config
	err := utils.WithTx(ctx, r.db, utils.ReadCommitted, func(ctx context.Context, tx *sql.Tx) error {
		c, err := firstOrInsert(ctx, tx, def, false)
		out = c
		return err
	})
	return out, err
}

func (r *PostgresRepo) Update(ctx context.Context, def Config, u Update) (Config, error) {
	var out Config
	err := utils.WithTx(ctx, r.db, utils.ReadCommitted, func(ctx context.Context, tx *sql.Tx) error {
		c, err := firstOrInsert(ctx, tx, def, true)
		if err != nil {
			return err
		}
		u.apply(&c)

		const q = `
UPDATE inbound_configs
SET language = $1, voice = $2, greeting_message = $3, prompt = $4, funnel_goal = $5, is_active = $6, updated_at = now()
WHERE id = $7
RETURNING ` + inboundColumns
		out, err = scanConfig(tx.QueryRowContext(ctx, q, c.Language, c.Voice, c.GreetingMessage, c.Prompt, c.FunnelGoal, c.IsActive, c.ID))
		return err
	})
	return out, err
}

func (r *PostgresRepo) FirstActive(ctx context.Context) (Config, error) {
	const q = `SELECT ` + inboundColumns + ` FROM inbound_configs WHERE is_active ORDER BY id LIMIT 1`
	c, err := scanConfig(r.db.QueryRowContext(ctx, q))
	if errors.Is(err, sql.ErrNoRows) {
		return Config{}, ErrNotFound
	}
	return c, err
}

// firstOrInsert serializes lazy creation with a transaction-scoped advisory
// lock so concurrent first reads do not create two rows.
func firstOrInsert(ctx context.Context, tx *sql.Tx, def Config, forUpdate bool) (Config, error) {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext('inbound_configs'))`); err != nil {
		return Config{}, err
	}

	q := `SELECT ` + inboundColumns + ` FROM inbound_configs ORDER BY id LIMIT 1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	c, err := scanConfig(tx.QueryRowContext(ctx, q))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Config{}, err
	}

	const ins = `
INSERT INTO inbound_configs (language, voice, greeting_message, prompt, funnel_goal, is_active)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING ` + inboundColumns
	return scanConfig(tx.QueryRowContext(ctx, ins, def.Language, def.Voice, def.GreetingMessage, def.Prompt, def.FunnelGoal, def.IsActive))
}

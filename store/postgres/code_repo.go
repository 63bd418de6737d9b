package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jrsteele09/go-school-auth/otp"
	"github.com/pkg/errors"
)

var _ otp.Repo = (*CodeRepo)(nil)

// CodeRepo stores one-time-code records. Consumption and attempt counting are
// conditional single-statement updates, which is what gives the service its
// at-most-once guarantee under concurrent verification.
type CodeRepo struct {
	db *sqlx.DB
}

func NewCodeRepo(db *sqlx.DB) *CodeRepo { return &CodeRepo{db: db} }

type codeRow struct {
	ID         string    `db:"id"`
	Identifier string    `db:"identifier"`
	SchoolID   string    `db:"school_id"`
	CodeHash   string    `db:"code_hash"`
	ExpiresAt  time.Time `db:"expires_at"`
	Attempts   int       `db:"attempts"`
	Used       bool      `db:"used"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r *CodeRepo) Create(ctx context.Context, code *otp.Code) error {
	const q = `INSERT INTO one_time_codes (id, identifier, school_id, code_hash, expires_at, attempts, used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(ctx, q,
		code.ID, code.Identifier, code.SchoolID, code.CodeHash, code.ExpiresAt, code.Attempts, code.Used, code.CreatedAt)
	return errors.Wrap(err, "[CodeRepo.Create]")
}

func (r *CodeRepo) GetLatest(ctx context.Context, identifier string, now time.Time) (*otp.Code, error) {
	var row codeRow
	const q = `SELECT id, identifier, school_id, code_hash, expires_at, attempts, used, created_at
		FROM one_time_codes
		WHERE identifier = $1 AND expires_at > $2
		ORDER BY created_at DESC LIMIT 1`
	err := r.db.GetContext(ctx, &row, q, identifier, now)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[CodeRepo.GetLatest]")
	}
	return &otp.Code{
		ID:         row.ID,
		Identifier: row.Identifier,
		SchoolID:   row.SchoolID,
		CodeHash:   row.CodeHash,
		ExpiresAt:  row.ExpiresAt,
		Attempts:   row.Attempts,
		Used:       row.Used,
		CreatedAt:  row.CreatedAt,
	}, nil
}

func (r *CodeRepo) ConsumeIfUnused(ctx context.Context, id string) (bool, error) {
	// The used=false predicate makes the check-and-mark a single atomic step.
	res, err := r.db.ExecContext(ctx, `UPDATE one_time_codes SET used = true WHERE id = $1 AND used = false`, id)
	if err != nil {
		return false, errors.Wrap(err, "[CodeRepo.ConsumeIfUnused]")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "[CodeRepo.ConsumeIfUnused] RowsAffected")
	}
	return affected == 1, nil
}

func (r *CodeRepo) IncrementAttempts(ctx context.Context, id string) (int, error) {
	var attempts int
	const q = `UPDATE one_time_codes SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts`
	if err := r.db.GetContext(ctx, &attempts, q, id); err != nil {
		return 0, errors.Wrap(err, "[CodeRepo.IncrementAttempts]")
	}
	return attempts, nil
}

func (r *CodeRepo) PurgeExpired(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM one_time_codes WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "[CodeRepo.PurgeExpired]")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "[CodeRepo.PurgeExpired] RowsAffected")
	}
	return int(affected), nil
}

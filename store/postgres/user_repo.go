package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jrsteele09/go-school-auth/users"
	"github.com/pkg/errors"
)

var _ users.UserRepo = (*UserRepo)(nil)

type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

type userRow struct {
	ID              string         `db:"id"`
	Email           sql.NullString `db:"email"`
	Mobile          sql.NullString `db:"mobile"`
	PasswordHash    string         `db:"password_hash"`
	FirstName       string         `db:"first_name"`
	LastName        string         `db:"last_name"`
	SystemRole      string         `db:"system_role"`
	TwoFactorSecret string         `db:"two_factor_secret"`
	RecoveryCodes   []byte         `db:"recovery_codes"`
	Active          bool           `db:"active"`
	EmailVerified   bool           `db:"email_verified"`
	DateJoined      time.Time      `db:"date_joined"`
	LastLogin       sql.NullTime   `db:"last_login"`
}

func (r userRow) toUser() *users.User {
	u := &users.User{
		ID:              r.ID,
		Email:           r.Email.String,
		Mobile:          r.Mobile.String,
		PasswordHash:    r.PasswordHash,
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		SystemRole:      users.SystemRole(r.SystemRole),
		TwoFactorSecret: r.TwoFactorSecret,
		RecoveryCodes:   r.RecoveryCodes,
		Active:          r.Active,
		EmailVerified:   r.EmailVerified,
		DateJoined:      r.DateJoined,
	}
	if r.LastLogin.Valid {
		u.LastLogin = r.LastLogin.Time
	}
	return u
}

const userColumns = `id, email, mobile, password_hash, first_name, last_name, system_role,
	two_factor_secret, recovery_codes, active, email_verified, date_joined, last_login`

func (r *UserRepo) Upsert(ctx context.Context, user *users.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	const q = `INSERT INTO users (id, email, mobile, password_hash, first_name, last_name, system_role,
			two_factor_secret, recovery_codes, active, email_verified, date_joined)
		VALUES ($1, NULLIF($2,''), NULLIF($3,''), $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email, mobile = EXCLUDED.mobile,
			password_hash = EXCLUDED.password_hash,
			first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name,
			system_role = EXCLUDED.system_role,
			two_factor_secret = EXCLUDED.two_factor_secret,
			recovery_codes = EXCLUDED.recovery_codes,
			active = EXCLUDED.active, email_verified = EXCLUDED.email_verified`
	_, err := r.db.ExecContext(ctx, q,
		user.ID, user.Email, user.Mobile, user.PasswordHash, user.FirstName, user.LastName,
		user.SystemRole, user.TwoFactorSecret, user.RecoveryCodes, user.Active, user.EmailVerified)
	return errors.Wrap(err, "[UserRepo.Upsert]")
}

func (r *UserRepo) GetByIdentifier(ctx context.Context, identifier string) (*users.User, error) {
	var row userRow
	const q = `SELECT ` + userColumns + ` FROM users WHERE email = $1 OR mobile = $1`
	if err := r.db.GetContext(ctx, &row, q, identifier); err != nil {
		return nil, errors.Wrap(err, "[UserRepo.GetByIdentifier]")
	}
	return row.toUser(), nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*users.User, error) {
	var row userRow
	const q = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, q, id); err != nil {
		return nil, errors.Wrap(err, "[UserRepo.GetByID]")
	}
	return row.toUser(), nil
}

func (r *UserRepo) ReplaceRecoveryCodes(ctx context.Context, userID string, prev, next []byte) (bool, error) {
	// The recovery_codes predicate makes the check-and-swap a single atomic step.
	res, err := r.db.ExecContext(ctx, `UPDATE users SET recovery_codes = $2 WHERE id = $1 AND recovery_codes = $3`, userID, next, prev)
	if err != nil {
		return false, errors.Wrap(err, "[UserRepo.ReplaceRecoveryCodes]")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "[UserRepo.ReplaceRecoveryCodes] RowsAffected")
	}
	return affected == 1, nil
}

func (r *UserRepo) SetLastLogin(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_login = NOW() WHERE id = $1`, userID)
	return errors.Wrap(err, "[UserRepo.SetLastLogin]")
}

package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/jrsteele09/go-school-auth/users"
	"github.com/pkg/errors"
)

var (
	_ users.MembershipRepo = (*MembershipRepo)(nil)
	_ users.DependentRepo  = (*DependentRepo)(nil)
)

type MembershipRepo struct {
	db *sqlx.DB
}

func NewMembershipRepo(db *sqlx.DB) *MembershipRepo { return &MembershipRepo{db: db} }

type membershipRow struct {
	UserID   string `db:"user_id"`
	SchoolID string `db:"school_id"`
	Role     string `db:"role"`
	Active   bool   `db:"active"`
}

func (r membershipRow) toMembership() *users.Membership {
	return &users.Membership{
		UserID:   r.UserID,
		SchoolID: r.SchoolID,
		Role:     users.SchoolRole(r.Role),
		Active:   r.Active,
	}
}

func (r *MembershipRepo) Upsert(ctx context.Context, m *users.Membership) error {
	const q = `INSERT INTO memberships (user_id, school_id, role, active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, school_id) DO UPDATE SET role = EXCLUDED.role, active = EXCLUDED.active`
	_, err := r.db.ExecContext(ctx, q, m.UserID, m.SchoolID, m.Role, m.Active)
	return errors.Wrap(err, "[MembershipRepo.Upsert]")
}

func (r *MembershipRepo) GetActive(ctx context.Context, userID, schoolID string) (*users.Membership, error) {
	var row membershipRow
	const q = `SELECT user_id, school_id, role, active FROM memberships
		WHERE user_id = $1 AND school_id = $2 AND active = true`
	if err := r.db.GetContext(ctx, &row, q, userID, schoolID); err != nil {
		return nil, errors.Wrap(err, "[MembershipRepo.GetActive]")
	}
	return row.toMembership(), nil
}

func (r *MembershipRepo) ListActiveForUser(ctx context.Context, userID string) ([]*users.Membership, error) {
	var rows []membershipRow
	const q = `SELECT user_id, school_id, role, active FROM memberships
		WHERE user_id = $1 AND active = true`
	if err := r.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "[MembershipRepo.ListActiveForUser]")
	}
	memberships := make([]*users.Membership, 0, len(rows))
	for _, row := range rows {
		memberships = append(memberships, row.toMembership())
	}
	return memberships, nil
}

type DependentRepo struct {
	db *sqlx.DB
}

func NewDependentRepo(db *sqlx.DB) *DependentRepo { return &DependentRepo{db: db} }

type dependentRow struct {
	GuardianID    string `db:"guardian_id"`
	DependentID   string `db:"dependent_id"`
	SchoolID      string `db:"school_id"`
	DependentName string `db:"dependent_name"`
}

func (r *DependentRepo) Upsert(ctx context.Context, link *users.DependentLink) error {
	const q = `INSERT INTO dependent_links (guardian_id, dependent_id, school_id, dependent_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (guardian_id, dependent_id, school_id) DO UPDATE SET dependent_name = EXCLUDED.dependent_name`
	_, err := r.db.ExecContext(ctx, q, link.GuardianID, link.DependentID, link.SchoolID, link.DependentName)
	return errors.Wrap(err, "[DependentRepo.Upsert]")
}

func (r *DependentRepo) ListForGuardian(ctx context.Context, guardianID, schoolID string) ([]*users.DependentLink, error) {
	var rows []dependentRow
	const q = `SELECT guardian_id, dependent_id, school_id, dependent_name FROM dependent_links
		WHERE guardian_id = $1 AND school_id = $2`
	if err := r.db.SelectContext(ctx, &rows, q, guardianID, schoolID); err != nil {
		return nil, errors.Wrap(err, "[DependentRepo.ListForGuardian]")
	}
	links := make([]*users.DependentLink, 0, len(rows))
	for _, row := range rows {
		links = append(links, &users.DependentLink{
			GuardianID:    row.GuardianID,
			DependentID:   row.DependentID,
			SchoolID:      row.SchoolID,
			DependentName: row.DependentName,
		})
	}
	return links, nil
}

func (r *DependentRepo) IsLinked(ctx context.Context, guardianID, dependentID, schoolID string) (bool, error) {
	var linked bool
	const q = `SELECT EXISTS (SELECT 1 FROM dependent_links
		WHERE guardian_id = $1 AND dependent_id = $2 AND school_id = $3)`
	if err := r.db.GetContext(ctx, &linked, q, guardianID, dependentID, schoolID); err != nil {
		return false, errors.Wrap(err, "[DependentRepo.IsLinked]")
	}
	return linked, nil
}

package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jrsteele09/go-school-auth/tenants"
	"github.com/pkg/errors"
)

var _ tenants.Repo = (*SchoolRepo)(nil)

type SchoolRepo struct {
	db *sqlx.DB
}

func NewSchoolRepo(db *sqlx.DB) *SchoolRepo { return &SchoolRepo{db: db} }

func (r *SchoolRepo) Upsert(ctx context.Context, school *tenants.School) error {
	if school.ID == "" {
		school.ID = uuid.New().String()
	}
	const q = `INSERT INTO schools (id, code, name, active) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, name = EXCLUDED.name, active = EXCLUDED.active`
	_, err := r.db.ExecContext(ctx, q, school.ID, school.Code, school.Name, school.Active)
	return errors.Wrap(err, "[SchoolRepo.Upsert]")
}

func (r *SchoolRepo) GetByID(ctx context.Context, id string) (*tenants.School, error) {
	var school tenants.School
	if err := r.db.GetContext(ctx, &school, `SELECT id, code, name, active FROM schools WHERE id = $1`, id); err != nil {
		return nil, errors.Wrap(err, "[SchoolRepo.GetByID]")
	}
	return &school, nil
}

func (r *SchoolRepo) GetByCode(ctx context.Context, code string) (*tenants.School, error) {
	var school tenants.School
	if err := r.db.GetContext(ctx, &school, `SELECT id, code, name, active FROM schools WHERE code = $1`, code); err != nil {
		return nil, errors.Wrap(err, "[SchoolRepo.GetByCode]")
	}
	return &school, nil
}

func (r *SchoolRepo) List(ctx context.Context, offset, limit int) ([]*tenants.School, error) {
	var schools []*tenants.School
	const q = `SELECT id, code, name, active FROM schools ORDER BY code OFFSET $1 LIMIT $2`
	if err := r.db.SelectContext(ctx, &schools, q, offset, limit); err != nil {
		return nil, errors.Wrap(err, "[SchoolRepo.List]")
	}
	return schools, nil
}

package postgres

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/jrsteele09/go-school-auth/audit"
	"github.com/pkg/errors"
)

var _ audit.Repo = (*AuditRepo)(nil)

// AuditRepo appends entries to an insert-only table. The core never updates
// or deletes rows here.
type AuditRepo struct {
	db *sqlx.DB
}

func NewAuditRepo(db *sqlx.DB) *AuditRepo { return &AuditRepo{db: db} }

func (r *AuditRepo) Append(ctx context.Context, entry *audit.Entry) error {
	detail, err := json.Marshal(entry.Detail)
	if err != nil {
		return errors.Wrap(err, "[AuditRepo.Append] marshal detail")
	}
	const q = `INSERT INTO audit_entries (id, actor_id, school_id, action, resource, detail, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = r.db.ExecContext(ctx, q,
		entry.ID, entry.ActorID, entry.SchoolID, entry.Action, entry.Resource, detail, entry.IP, entry.UserAgent, entry.CreatedAt)
	return errors.Wrap(err, "[AuditRepo.Append]")
}

package tenants

import "context"

type Repo interface {
	Upsert(ctx context.Context, school *School) error
	GetByID(ctx context.Context, id string) (*School, error)
	GetByCode(ctx context.Context, code string) (*School, error)
	List(ctx context.Context, offset, limit int) ([]*School, error)
}

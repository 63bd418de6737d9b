package tenantrepofakes

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-school-auth/tenants"
)

var _ tenants.Repo = (*FakeSchoolRepo)(nil)

type FakeSchoolRepo struct {
	schools map[string]*tenants.School
	codes   map[string]string // school code to id
	lock    sync.RWMutex
}

func NewFakeSchoolRepo() *FakeSchoolRepo {
	return &FakeSchoolRepo{
		schools: make(map[string]*tenants.School),
		codes:   make(map[string]string),
	}
}

func (sr *FakeSchoolRepo) Upsert(_ context.Context, school *tenants.School) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	if school.ID == "" {
		school.ID = uuid.New().String()
	}
	sr.schools[school.ID] = school
	sr.codes[school.Code] = school.ID
	return nil
}

func (sr *FakeSchoolRepo) GetByID(_ context.Context, id string) (*tenants.School, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	school, ok := sr.schools[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return school, nil
}

func (sr *FakeSchoolRepo) GetByCode(_ context.Context, code string) (*tenants.School, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	id, ok := sr.codes[code]
	if !ok {
		return nil, errors.New("not found")
	}
	return sr.schools[id], nil
}

func (sr *FakeSchoolRepo) List(_ context.Context, offset, limit int) ([]*tenants.School, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	all := make([]*tenants.School, 0, len(sr.schools))
	for _, s := range sr.schools {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Code < all[j].Code })

	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

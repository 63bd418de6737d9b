package fakeuserrepo

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-school-auth/users"
)

var _ users.DependentRepo = (*FakeDependentRepo)(nil)

type FakeDependentRepo struct {
	links []*users.DependentLink
	lock  sync.RWMutex
}

func NewFakeDependentRepo() *FakeDependentRepo {
	return &FakeDependentRepo{}
}

func (dr *FakeDependentRepo) Upsert(_ context.Context, link *users.DependentLink) error {
	dr.lock.Lock()
	defer dr.lock.Unlock()

	for i, l := range dr.links {
		if l.GuardianID == link.GuardianID && l.DependentID == link.DependentID && l.SchoolID == link.SchoolID {
			dr.links[i] = link
			return nil
		}
	}
	dr.links = append(dr.links, link)
	return nil
}

func (dr *FakeDependentRepo) ListForGuardian(_ context.Context, guardianID, schoolID string) ([]*users.DependentLink, error) {
	dr.lock.RLock()
	defer dr.lock.RUnlock()

	var result []*users.DependentLink
	for _, l := range dr.links {
		if l.GuardianID == guardianID && l.SchoolID == schoolID {
			result = append(result, l)
		}
	}
	return result, nil
}

func (dr *FakeDependentRepo) IsLinked(_ context.Context, guardianID, dependentID, schoolID string) (bool, error) {
	dr.lock.RLock()
	defer dr.lock.RUnlock()

	for _, l := range dr.links {
		if l.GuardianID == guardianID && l.DependentID == dependentID && l.SchoolID == schoolID {
			return true, nil
		}
	}
	return false, nil
}

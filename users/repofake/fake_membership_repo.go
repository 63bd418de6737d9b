package fakeuserrepo

import (
	"context"
	"errors"
	"sync"

	"github.com/jrsteele09/go-school-auth/users"
)

var _ users.MembershipRepo = (*FakeMembershipRepo)(nil)

type FakeMembershipRepo struct {
	memberships map[string]*users.Membership // key: userID + "/" + schoolID
	lock        sync.RWMutex
}

func NewFakeMembershipRepo() *FakeMembershipRepo {
	return &FakeMembershipRepo{
		memberships: make(map[string]*users.Membership),
	}
}

func membershipKey(userID, schoolID string) string {
	return userID + "/" + schoolID
}

func (mr *FakeMembershipRepo) Upsert(_ context.Context, m *users.Membership) error {
	mr.lock.Lock()
	defer mr.lock.Unlock()

	mr.memberships[membershipKey(m.UserID, m.SchoolID)] = m
	return nil
}

func (mr *FakeMembershipRepo) GetActive(_ context.Context, userID, schoolID string) (*users.Membership, error) {
	mr.lock.RLock()
	defer mr.lock.RUnlock()

	m, ok := mr.memberships[membershipKey(userID, schoolID)]
	if !ok || !m.Active {
		return nil, errors.New("not found")
	}
	return m, nil
}

func (mr *FakeMembershipRepo) ListActiveForUser(_ context.Context, userID string) ([]*users.Membership, error) {
	mr.lock.RLock()
	defer mr.lock.RUnlock()

	var result []*users.Membership
	for _, m := range mr.memberships {
		if m.UserID == userID && m.Active {
			result = append(result, m)
		}
	}
	return result, nil
}

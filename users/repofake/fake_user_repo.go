package fakeuserrepo

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-school-auth/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users       map[string]*users.User
	identifiers map[string]string // email or mobile to user id
	lock        sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users:       make(map[string]*users.User),
		identifiers: make(map[string]string),
	}
}

func (ur *FakeUserRepo) Upsert(_ context.Context, user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	ur.users[user.ID] = user
	if user.Email != "" {
		ur.identifiers[user.Email] = user.ID
	}
	if user.Mobile != "" {
		ur.identifiers[user.Mobile] = user.ID
	}
	return nil
}

func (ur *FakeUserRepo) GetByIdentifier(_ context.Context, identifier string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.identifiers[identifier]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *ur.users[id]
	return &copied, nil
}

func (ur *FakeUserRepo) GetByID(_ context.Context, id string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	user, ok := ur.users[id]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *user
	return &copied, nil
}

// ReplaceRecoveryCodes compares and swaps under the repo lock, matching the
// atomicity the postgres implementation gets from its conditional UPDATE.
func (ur *FakeUserRepo) ReplaceRecoveryCodes(_ context.Context, userID string, prev, next []byte) (bool, error) {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user, ok := ur.users[userID]
	if !ok {
		return false, errors.New("not found")
	}
	if !bytes.Equal(user.RecoveryCodes, prev) {
		return false, nil
	}
	user.RecoveryCodes = next
	return true, nil
}

func (ur *FakeUserRepo) SetLastLogin(_ context.Context, userID string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user, ok := ur.users[userID]
	if !ok {
		return errors.New("not found")
	}
	user.LastLogin = time.Now()
	return nil
}

package fakecoderepo

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-school-auth/otp"
	"github.com/pkg/errors"
)

var _ otp.Repo = (*FakeCodeRepo)(nil)

// FakeCodeRepo is an in-memory Repo whose conditional updates are serialized
// under one mutex, matching the atomicity the postgres implementation gets
// from conditional UPDATEs.
type FakeCodeRepo struct {
	codes map[string]*otp.Code
	lock  sync.Mutex
}

func NewFakeCodeRepo() *FakeCodeRepo {
	return &FakeCodeRepo{
		codes: make(map[string]*otp.Code),
	}
}

func (cr *FakeCodeRepo) Create(_ context.Context, code *otp.Code) error {
	cr.lock.Lock()
	defer cr.lock.Unlock()

	copied := *code
	cr.codes[code.ID] = &copied
	return nil
}

func (cr *FakeCodeRepo) GetLatest(_ context.Context, identifier string, now time.Time) (*otp.Code, error) {
	cr.lock.Lock()
	defer cr.lock.Unlock()

	var latest *otp.Code
	for _, c := range cr.codes {
		if c.Identifier != identifier || c.Expired(now) {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (cr *FakeCodeRepo) ConsumeIfUnused(_ context.Context, id string) (bool, error) {
	cr.lock.Lock()
	defer cr.lock.Unlock()

	code, ok := cr.codes[id]
	if !ok {
		return false, errors.New("not found")
	}
	if code.Used {
		return false, nil
	}
	code.Used = true
	return true, nil
}

func (cr *FakeCodeRepo) IncrementAttempts(_ context.Context, id string) (int, error) {
	cr.lock.Lock()
	defer cr.lock.Unlock()

	code, ok := cr.codes[id]
	if !ok {
		return 0, errors.New("not found")
	}
	code.Attempts++
	return code.Attempts, nil
}

func (cr *FakeCodeRepo) PurgeExpired(_ context.Context, cutoff time.Time) (int, error) {
	cr.lock.Lock()
	defer cr.lock.Unlock()

	purged := 0
	for id, c := range cr.codes {
		if c.ExpiresAt.Before(cutoff) {
			delete(cr.codes, id)
			purged++
		}
	}
	return purged, nil
}

package fakeauditrepo

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-school-auth/audit"
	"github.com/pkg/errors"
)

var _ audit.Repo = (*FakeAuditRepo)(nil)

type FakeAuditRepo struct {
	entries []audit.Entry
	failing bool
	lock    sync.Mutex
}

func NewFakeAuditRepo() *FakeAuditRepo {
	return &FakeAuditRepo{}
}

// SetFailing makes every Append return an error, for exercising the
// swallow-and-continue path.
func (ar *FakeAuditRepo) SetFailing(failing bool) {
	ar.lock.Lock()
	defer ar.lock.Unlock()
	ar.failing = failing
}

func (ar *FakeAuditRepo) Append(_ context.Context, entry *audit.Entry) error {
	ar.lock.Lock()
	defer ar.lock.Unlock()

	if ar.failing {
		return errors.New("append failed")
	}
	ar.entries = append(ar.entries, *entry)
	return nil
}

// Entries returns a snapshot of everything appended so far.
func (ar *FakeAuditRepo) Entries() []audit.Entry {
	ar.lock.Lock()
	defer ar.lock.Unlock()

	out := make([]audit.Entry, len(ar.entries))
	copy(out, ar.entries)
	return out
}

// ByAction filters the appended entries by action.
func (ar *FakeAuditRepo) ByAction(action audit.Action) []audit.Entry {
	var out []audit.Entry
	for _, e := range ar.Entries() {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-school-auth/audit"
	fakeauditrepo "github.com/jrsteele09/go-school-auth/audit/repofake"
)

func TestLog_StampsIDAndTime(t *testing.T) {
	repo := fakeauditrepo.NewFakeAuditRepo()
	now := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)
	logger := audit.NewLogger(repo, zerolog.Nop(), audit.WithNowFunc(func() time.Time { return now }))

	logger.Log(context.Background(), audit.Entry{
		ActorID:  "user-1",
		SchoolID: "school-1",
		Action:   audit.ActionLoginSuccess,
		Resource: "login",
		Detail:   map[string]any{"role": "teacher"},
	})

	entries := repo.Entries()
	require.Len(t, entries, 1)
	require.NotEmpty(t, entries[0].ID)
	require.Equal(t, now, entries[0].CreatedAt)
	require.Equal(t, audit.ActionLoginSuccess, entries[0].Action)
	require.Equal(t, "teacher", entries[0].Detail["role"])
}

func TestLog_UniqueIDs(t *testing.T) {
	repo := fakeauditrepo.NewFakeAuditRepo()
	logger := audit.NewLogger(repo, zerolog.Nop())

	for i := 0; i < 10; i++ {
		logger.Log(context.Background(), audit.Entry{Action: audit.ActionLoginFailed, Resource: "login"})
	}

	seen := map[string]bool{}
	for _, e := range repo.Entries() {
		require.False(t, seen[e.ID])
		seen[e.ID] = true
	}
}

// TestLog_SwallowsRepoFailure verifies a broken audit store never surfaces to
// the caller.
func TestLog_SwallowsRepoFailure(t *testing.T) {
	repo := fakeauditrepo.NewFakeAuditRepo()
	repo.SetFailing(true)
	logger := audit.NewLogger(repo, zerolog.Nop())

	require.NotPanics(t, func() {
		logger.Log(context.Background(), audit.Entry{Action: audit.ActionLoginFailed, Resource: "login"})
	})
	require.Empty(t, repo.Entries())
}

// TestLog_SurvivesCancelledContext verifies the write proceeds even when the
// request context is already cancelled.
func TestLog_SurvivesCancelledContext(t *testing.T) {
	repo := fakeauditrepo.NewFakeAuditRepo()
	logger := audit.NewLogger(repo, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	logger.Log(ctx, audit.Entry{Action: audit.ActionLoginSuccess, Resource: "login"})
	require.Len(t, repo.Entries(), 1)
}

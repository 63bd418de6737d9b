// Package audit records authentication-relevant events to an append-only log.
// Writes are best-effort: a failed audit write never blocks or reverts the
// caller's primary operation.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
)

// Action is a machine-readable audit action value.
type Action string

const (
	ActionLoginSuccess    Action = "LOGIN_SUCCESS"
	ActionLoginFailed     Action = "LOGIN_FAILED"
	ActionCodeIssued      Action = "OTP_ISSUED"
	ActionCodeRejected    Action = "OTP_REJECTED"
	ActionContextUpdate   Action = "UPDATE"
	ActionContextReject   Action = "REJECT"
	ActionRecoveryUsed    Action = "RECOVERY_CODE_USED"
	ActionSessionsRevoked Action = "SESSIONS_REVOKED"
)

// Entry is an immutable audit record. ActorID and SchoolID are empty for
// anonymous or context-free events.
type Entry struct {
	ID        string         `json:"id"`
	ActorID   string         `json:"actor_id,omitempty"`
	SchoolID  string         `json:"school_id,omitempty"`
	Action    Action         `json:"action"`
	Resource  string         `json:"resource"`
	Detail    map[string]any `json:"detail,omitempty"`
	IP        string         `json:"ip,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Logger appends entries through a Repo, swallowing persistence failures.
type Logger struct {
	repo         Repo
	log          zerolog.Logger
	writeTimeout time.Duration
	nowFunc      func() time.Time
}

type LoggerOption func(*Logger)

func WithNowFunc(now func() time.Time) LoggerOption {
	return func(l *Logger) {
		l.nowFunc = now
	}
}

func WithWriteTimeout(timeout time.Duration) LoggerOption {
	return func(l *Logger) {
		l.writeTimeout = timeout
	}
}

func NewLogger(repo Repo, log zerolog.Logger, options ...LoggerOption) *Logger {
	l := &Logger{
		repo:         repo,
		log:          log,
		writeTimeout: 2 * time.Second,
		nowFunc:      time.Now,
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// Log stamps and appends the entry. It never returns an error: persistence
// failures are logged locally and swallowed so the primary authentication
// decision is unaffected.
func (l *Logger) Log(ctx context.Context, entry Entry) {
	entry.ID = ksuid.New().String()
	entry.CreatedAt = l.nowFunc()

	// Detach from the caller's cancellation; the write still gets its own bound.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.writeTimeout)
	defer cancel()

	if err := l.repo.Append(writeCtx, &entry); err != nil {
		l.log.Error().Err(err).
			Str("action", string(entry.Action)).
			Str("actor_id", entry.ActorID).
			Msg("audit append failed")
	}
}

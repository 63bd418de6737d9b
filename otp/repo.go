package otp

import (
	"context"
	"time"
)

// Repo persists one-time-code records. ConsumeIfUnused and IncrementAttempts
// are the at-most-once primitives: both must be conditional, atomic updates
// so two concurrent verifications cannot both succeed.
type Repo interface {
	Create(ctx context.Context, code *Code) error

	// GetLatest returns the most recent unexpired record for the identifier,
	// used or not. Returns nil (no error) when nothing qualifies.
	GetLatest(ctx context.Context, identifier string, now time.Time) (*Code, error)

	// ConsumeIfUnused marks the record used only if it was still unused,
	// reporting whether this call won the update.
	ConsumeIfUnused(ctx context.Context, id string) (bool, error)

	// IncrementAttempts bumps the attempt counter and returns the new count.
	IncrementAttempts(ctx context.Context, id string) (int, error)

	// PurgeExpired deletes records expired before the cutoff. Idempotent.
	PurgeExpired(ctx context.Context, cutoff time.Time) (int, error)
}

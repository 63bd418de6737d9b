package users

import "context"

type UserRepo interface {
	Upsert(ctx context.Context, user *User) error
	GetByIdentifier(ctx context.Context, identifier string) (*User, error) // matches email or mobile
	GetByID(ctx context.Context, id string) (*User, error)
	// ReplaceRecoveryCodes swaps the stored bundle only while it still equals
	// prev, reporting whether this call won the update. The conditional write
	// is the at-most-once guard for recovery-code consumption.
	ReplaceRecoveryCodes(ctx context.Context, userID string, prev, next []byte) (bool, error)
	SetLastLogin(ctx context.Context, userID string) error
}

type MembershipRepo interface {
	Upsert(ctx context.Context, m *Membership) error
	// GetActive returns the membership only when its own active flag is set.
	// School-level suspension is checked by the caller against the school record.
	GetActive(ctx context.Context, userID, schoolID string) (*Membership, error)
	ListActiveForUser(ctx context.Context, userID string) ([]*Membership, error)
}

type DependentRepo interface {
	Upsert(ctx context.Context, link *DependentLink) error
	ListForGuardian(ctx context.Context, guardianID, schoolID string) ([]*DependentLink, error)
	IsLinked(ctx context.Context, guardianID, dependentID, schoolID string) (bool, error)
}

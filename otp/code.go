package otp

import "time"

// Code is a stored one-time-code record. The plaintext code is never stored;
// only its SHA-256 digest. A record is spent either by successful
// verification (Used=true) or by exceeding the mismatch attempt cap.
type Code struct {
	ID         string    `json:"id"`
	Identifier string    `json:"identifier"` // Email or mobile the code was issued for
	SchoolID   string    `json:"school_id,omitempty"`
	CodeHash   string    `json:"-"`
	ExpiresAt  time.Time `json:"expires_at"`
	Attempts   int       `json:"attempts"`
	Used       bool      `json:"used"`
	CreatedAt  time.Time `json:"created_at"`
}

// Expired reports whether the code can no longer be verified at the given time.
func (c *Code) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

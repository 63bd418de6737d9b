package users

import "time"

// Membership links a user to a school with a school-scoped role. The Active
// flag is independent of the school's own activation status: a user is
// authorized for a school only when both the membership and the school are
// active.
type Membership struct {
	UserID   string     `json:"user_id"`
	SchoolID string     `json:"school_id"`
	Role     SchoolRole `json:"role"`
	Active   bool       `json:"active"`
	JoinedAt time.Time  `json:"joined_at"`
}

// DependentLink ties a guardian to a dependent (a student) within one school.
// Guardians may only switch their active-child context to linked dependents.
type DependentLink struct {
	GuardianID    string `json:"guardian_id"`
	DependentID   string `json:"dependent_id"`
	SchoolID      string `json:"school_id"`
	DependentName string `json:"dependent_name,omitempty"`
}

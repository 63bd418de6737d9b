package token

import (
	"time"

	"github.com/jrsteele09/go-school-auth/users"
	"github.com/pkg/errors"
)

// Claims is the structured payload embedded in a session token. It carries
// everything authorization decisions downstream need, so requests are stateless.
//
// Invariant: when ActiveSchoolID is set it must be a member of SchoolIDs,
// unless the role is super_admin (who is implicitly authorized everywhere).
type Claims struct {
	UserID            string    `json:"sub"`
	Role              string    `json:"role"`             // Effective role for this session
	ActiveSchoolID    string    `json:"school,omitempty"` // Empty until a school context is resolved
	ActiveDependentID string    `json:"child,omitempty"`  // Guardians only: the active dependent
	SchoolIDs         []string  `json:"schools,omitempty"`
	Permissions       []string  `json:"perms,omitempty"`
	IssuedAt          time.Time `json:"-"`
	ExpiresAt         time.Time `json:"-"`
	JTI               string    `json:"-"`
}

// HasSchool reports whether schoolID is in the authorized school list.
func (c *Claims) HasSchool(schoolID string) bool {
	for _, id := range c.SchoolIDs {
		if id == schoolID {
			return true
		}
	}
	return false
}

// Validate checks the active-school membership invariant.
func (c *Claims) Validate() error {
	if c.UserID == "" {
		return errors.New("[Claims.Validate] missing user id")
	}
	if c.ActiveSchoolID == "" || c.Role == string(users.RoleSuperAdmin) {
		return nil
	}
	if !c.HasSchool(c.ActiveSchoolID) {
		return errors.Errorf("[Claims.Validate] active school %q not in authorized list", c.ActiveSchoolID)
	}
	return nil
}

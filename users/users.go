package users

import (
	"fmt"
	"time"

	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// SystemRole is a platform-wide role, independent of any school membership.
type SystemRole string

const (
	RoleOrdinary   SystemRole = "user"        // Regular user, roles come from school memberships
	RoleSuperAdmin SystemRole = "super_admin" // Can manage all schools and system configuration
)

// SchoolRole represents a user's role within a specific school.
type SchoolRole string

const (
	RoleSchoolAdmin SchoolRole = "school_admin" // Can manage users and settings within a school
	RoleTeacher     SchoolRole = "teacher"      // Staff member with academic record access
	RoleBursar      SchoolRole = "bursar"       // Fees and billing access
	RoleGuardian    SchoolRole = "guardian"     // Parent/guardian, scoped to linked dependents
	RoleStudent     SchoolRole = "student"      // Read-only access to own records
)

type User struct {
	ID           string `json:"id,omitempty"`     // Unique identifier for the user
	Email        string `json:"email,omitempty"`  // User's email address
	Mobile       string `json:"mobile,omitempty"` // User's mobile number (alternative identifier)
	PasswordHash string `json:"-"`                // Hashed version of the user's password - never serialize
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`

	SystemRole SystemRole `json:"system_role,omitempty"` // Platform-wide role

	TwoFactorSecret string `json:"-"` // TOTP secret, sealed at rest - never serialize
	RecoveryCodes   []byte `json:"-"` // Encrypted recovery-code bundle - never serialize

	Active        bool `json:"active,omitempty"`         // Soft-deactivation flag; users are never hard-deleted
	EmailVerified bool `json:"email_verified,omitempty"` // Has the user verified their email address

	DateJoined time.Time `json:"date_joined,omitempty"`
	LastLogin  time.Time `json:"last_login,omitempty"`
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPasswordHash compares a plaintext password against a bcrypt digest.
// bcrypt's comparison is constant-time over the digest.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// IsSuperAdmin returns true if the user has super admin privileges
func (u *User) IsSuperAdmin() bool {
	return u.SystemRole == RoleSuperAdmin
}

// TwoFactorEnabled reports whether the user has enrolled a TOTP secret.
func (u *User) TwoFactorEnabled() bool {
	return u.TwoFactorSecret != ""
}

// HasRecoveryCodes reports whether the user still holds an unexhausted recovery bundle.
func (u *User) HasRecoveryCodes() bool {
	return len(u.RecoveryCodes) > 0
}

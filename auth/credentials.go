package auth

import (
	"github.com/jrsteele09/go-school-auth/tenants"
	"github.com/jrsteele09/go-school-auth/users"
)

// Credentials is a closed sum type with exactly two variants: password and
// one-time-code. Each variant carries only its relevant field.
type Credentials interface {
	credentials()
}

type PasswordCredentials struct {
	Password string
}

type OneTimeCodeCredentials struct {
	Code string
}

func (PasswordCredentials) credentials()    {}
func (OneTimeCodeCredentials) credentials() {}

// LoginRequest is the input to the login protocol. Identifier is an email or
// mobile number; SchoolCode optionally pins the login to one school.
type LoginRequest struct {
	Identifier  string
	SchoolCode  string
	Credentials Credentials
	TOTPCode    string // TOTP or recovery code when two-factor is enabled

	IP        string
	UserAgent string
}

// SchoolOption is a selectable school candidate returned when the user must
// pick a context explicitly.
type SchoolOption struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// ChildOption is a selectable dependent candidate for guardians.
type ChildOption struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// LoginResult is the successful outcome of a login. Exactly one of Token,
// RequiresSchoolSelection, or RequiresChildSelection is meaningful.
type LoginResult struct {
	User  *users.User
	Token string

	RequiresSchoolSelection bool
	AvailableSchools        []SchoolOption

	RequiresChildSelection bool
	AvailableChildren      []ChildOption

	EffectiveRole  string
	ActiveSchoolID string
	RedirectURL    string
}

// SwitchRequest asks to change the active school and/or dependent context of
// an existing session.
type SwitchRequest struct {
	Token          string
	NewSchoolID    string
	NewDependentID string

	IP        string
	UserAgent string
}

// SwitchResult is the outcome of a successful context switch.
type SwitchResult struct {
	Token          string
	ActiveSchoolID string
	ActiveChildID  string
	EffectiveRole  string
	RedirectURL    string
}

// Redirector picks a landing destination for a resolved session context.
// Routing is owned by the surrounding platform; the zero value of its answer
// is acceptable.
type Redirector interface {
	RedirectURL(userID, effectiveRole, schoolID string) string
}

// Sender delivers a one-time code out-of-band. Transport (email/SMS) is an
// external concern.
type Sender interface {
	SendOneTimeCode(identifier, plaintext string, school *tenants.School) error
}

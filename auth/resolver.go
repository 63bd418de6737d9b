package auth

import (
	"context"

	"github.com/jrsteele09/go-school-auth/tenants"
	"github.com/jrsteele09/go-school-auth/users"
	"github.com/pkg/errors"
)

// ResolveEffectiveRole is the single place super-admin precedence is decided.
// A super-administrator's effective role is always the global role, regardless
// of any per-school membership; everyone else derives their role from the
// membership for the active school. Components downstream consume only the
// resolved role and never re-derive it.
func ResolveEffectiveRole(user *users.User, membership *users.Membership) string {
	if user.IsSuperAdmin() {
		return string(users.RoleSuperAdmin)
	}
	if membership == nil {
		return string(users.RoleOrdinary)
	}
	return string(membership.Role)
}

var rolePermissions = map[string][]string{
	string(users.RoleSuperAdmin):  {"platform:manage", "school:manage", "records:write", "fees:write", "messages:send", "reports:run"},
	string(users.RoleSchoolAdmin): {"school:manage", "records:write", "fees:write", "messages:send", "reports:run"},
	string(users.RoleTeacher):     {"records:write", "messages:send", "reports:run"},
	string(users.RoleBursar):      {"fees:write", "reports:run"},
	string(users.RoleGuardian):    {"records:read", "fees:read", "messages:read"},
	string(users.RoleStudent):     {"records:read"},
}

// PermissionsForRole returns the permission list embedded in session claims.
func PermissionsForRole(role string) []string {
	return rolePermissions[role]
}

// schoolContext pairs an authorized school with the membership that grants it.
type schoolContext struct {
	school     *tenants.School
	membership *users.Membership
}

// authorizedSchools returns the schools the user may start a session in: the
// membership is active and the school itself is active. Super-admins are
// authorized everywhere implicitly, so this list is only meaningful for
// ordinary users.
func (s *Service) authorizedSchools(ctx context.Context, user *users.User) ([]schoolContext, error) {
	lookupCtx, cancel := s.boundCtx(ctx)
	defer cancel()

	memberships, err := s.repos.Memberships.ListActiveForUser(lookupCtx, user.ID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.authorizedSchools] ListActiveForUser")
	}

	contexts := make([]schoolContext, 0, len(memberships))
	for _, m := range memberships {
		school, err := s.repos.Schools.GetByID(lookupCtx, m.SchoolID)
		if err != nil || !school.Active {
			continue // Suspended or missing schools never yield a session context
		}
		contexts = append(contexts, schoolContext{school: school, membership: m})
	}
	return contexts, nil
}

// activeMembership loads the active association between user and school, or
// nil for super-admins (who need none).
func (s *Service) activeMembership(ctx context.Context, user *users.User, schoolID string) (*users.Membership, error) {
	if user.IsSuperAdmin() {
		return nil, nil
	}
	lookupCtx, cancel := s.boundCtx(ctx)
	defer cancel()

	membership, err := s.repos.Memberships.GetActive(lookupCtx, user.ID, schoolID)
	if err != nil {
		return nil, Reject(CodeUnauthorizedAccess, "no active membership for school")
	}
	return membership, nil
}

package auth

import (
	"context"

	"github.com/jrsteele09/go-school-auth/audit"
	"github.com/jrsteele09/go-school-auth/token"
	"github.com/jrsteele09/go-school-auth/users"
	"github.com/pkg/errors"
)

// SwitchContext verifies the presented token and moves the session to a new
// school and/or dependent context, issuing an updated token on success.
//
// A request that changes nothing is rejected as "no context switch requested"
// before any authorization check or audit write.
func (s *Service) SwitchContext(ctx context.Context, req SwitchRequest) (*SwitchResult, error) {
	claims, err := s.tokens.Verify(req.Token)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, Reject(CodeTokenExpired, "token expired")
		}
		return nil, Reject(CodeTokenInvalid, "token invalid")
	}

	wantSchool := req.NewSchoolID != "" && req.NewSchoolID != claims.ActiveSchoolID
	wantChild := req.NewDependentID != "" && req.NewDependentID != claims.ActiveDependentID
	if wantChild && claims.Role != string(users.RoleGuardian) {
		// Dependent context only exists for guardians; for anyone else the
		// request is treated as no switch requested, not a distinct error.
		wantChild = false
	}
	if !wantSchool && !wantChild {
		return nil, Reject(CodeNoContextSwitch, "no context switch requested")
	}

	lookupCtx, cancel := s.boundCtx(ctx)
	user, err := s.repos.Users.GetByID(lookupCtx, claims.UserID)
	cancel()
	if err != nil || !user.Active {
		rejection := Reject(CodeUnauthorizedAccess, "user no longer active")
		return nil, s.rejectSwitch(ctx, req, claims, rejection, map[string]any{"reason": reasonUserInactive})
	}

	if wantSchool {
		if err := s.switchSchool(ctx, req, claims, user); err != nil {
			return nil, err
		}
	}
	if wantChild {
		if err := s.switchDependent(ctx, req, claims, user); err != nil {
			return nil, err
		}
	}

	signed, err := s.tokens.Issue(*claims)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.SwitchContext] tokens.Issue")
	}

	s.auditor.Log(ctx, audit.Entry{
		ActorID:  claims.UserID,
		SchoolID: claims.ActiveSchoolID,
		Action:   audit.ActionContextUpdate,
		Resource: "session_context",
		Detail: map[string]any{
			"active_school": claims.ActiveSchoolID,
			"active_child":  claims.ActiveDependentID,
		},
		IP:        req.IP,
		UserAgent: req.UserAgent,
	})

	redirectURL := ""
	if s.redirector != nil {
		redirectURL = s.redirector.RedirectURL(claims.UserID, claims.Role, claims.ActiveSchoolID)
	}

	return &SwitchResult{
		Token:          signed,
		ActiveSchoolID: claims.ActiveSchoolID,
		ActiveChildID:  claims.ActiveDependentID,
		EffectiveRole:  claims.Role,
		RedirectURL:    redirectURL,
	}, nil
}

// switchSchool authorizes the requested school against the session's
// authorized list (super-admins may switch anywhere) and mutates the claims
// in place. Changing schools resets any dependent context.
func (s *Service) switchSchool(ctx context.Context, req SwitchRequest, claims *token.Claims, user *users.User) error {
	superAdmin := claims.Role == string(users.RoleSuperAdmin)
	if !superAdmin && !claims.HasSchool(req.NewSchoolID) {
		rejection := Reject(CodeUnauthorizedAccess, "school not in authorized list")
		return s.rejectSwitch(ctx, req, claims, rejection, map[string]any{
			"attempted_school": req.NewSchoolID,
			"reason":           CodeUnauthorizedAccess,
		})
	}

	lookupCtx, cancel := s.boundCtx(ctx)
	defer cancel()

	school, err := s.repos.Schools.GetByID(lookupCtx, req.NewSchoolID)
	if err != nil {
		rejection := Reject(CodeTenantNotFound, "unknown school")
		return s.rejectSwitch(ctx, req, claims, rejection, map[string]any{
			"attempted_school": req.NewSchoolID,
			"reason":           CodeTenantNotFound,
		})
	}
	if !school.Active {
		rejection := Reject(CodeTenantInactive, "school is suspended")
		return s.rejectSwitch(ctx, req, claims, rejection, map[string]any{
			"attempted_school": req.NewSchoolID,
			"reason":           CodeTenantInactive,
		})
	}

	membership, err := s.activeMembership(ctx, user, school.ID)
	if err != nil {
		return s.rejectSwitch(ctx, req, claims, err, map[string]any{
			"attempted_school": req.NewSchoolID,
			"reason":           CodeUnauthorizedAccess,
		})
	}

	role := ResolveEffectiveRole(user, membership)
	claims.ActiveSchoolID = school.ID
	claims.Role = role
	claims.Permissions = PermissionsForRole(role)
	claims.ActiveDependentID = ""
	return nil
}

// switchDependent validates the guardian-dependent link within the active
// school and mutates the claims in place.
func (s *Service) switchDependent(ctx context.Context, req SwitchRequest, claims *token.Claims, user *users.User) error {
	if claims.ActiveSchoolID == "" {
		rejection := Reject(CodeUnauthorizedAccess, "no active school context")
		return s.rejectSwitch(ctx, req, claims, rejection, map[string]any{
			"attempted_child": req.NewDependentID,
			"reason":          CodeUnauthorizedAccess,
		})
	}

	lookupCtx, cancel := s.boundCtx(ctx)
	defer cancel()

	linked, err := s.repos.Dependents.IsLinked(lookupCtx, user.ID, req.NewDependentID, claims.ActiveSchoolID)
	if err != nil {
		return errors.Wrap(err, "[Service.switchDependent] IsLinked")
	}
	if !linked {
		rejection := Reject(CodeUnauthorizedAccess, "dependent not linked to guardian")
		return s.rejectSwitch(ctx, req, claims, rejection, map[string]any{
			"attempted_child": req.NewDependentID,
			"reason":          CodeUnauthorizedAccess,
		})
	}

	claims.ActiveDependentID = req.NewDependentID
	return nil
}

func (s *Service) rejectSwitch(ctx context.Context, req SwitchRequest, claims *token.Claims, rejection error, detail map[string]any) error {
	s.auditor.Log(ctx, audit.Entry{
		ActorID:   claims.UserID,
		SchoolID:  claims.ActiveSchoolID,
		Action:    audit.ActionContextReject,
		Resource:  "session_context",
		Detail:    detail,
		IP:        req.IP,
		UserAgent: req.UserAgent,
	})
	return rejection
}

// RevokeSessions invalidates every outstanding session for a user, e.g. after
// a password reset.
func (s *Service) RevokeSessions(ctx context.Context, userID string) error {
	if err := s.tokens.RevokeAllForUser(userID); err != nil {
		return errors.Wrap(err, "[Service.RevokeSessions] RevokeAllForUser")
	}
	s.auditor.Log(ctx, audit.Entry{
		ActorID:  userID,
		Action:   audit.ActionSessionsRevoked,
		Resource: "sessions",
	})
	return nil
}

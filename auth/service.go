package auth

import (
	"context"
	"time"

	"github.com/jrsteele09/go-school-auth/audit"
	"github.com/jrsteele09/go-school-auth/mfa"
	"github.com/jrsteele09/go-school-auth/otp"
	"github.com/jrsteele09/go-school-auth/ratelimit"
	"github.com/jrsteele09/go-school-auth/tenants"
	"github.com/jrsteele09/go-school-auth/token"
	"github.com/jrsteele09/go-school-auth/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const defaultLookupTimeout = 5 * time.Second

// Repos holds all repository dependencies for the Service
type Repos struct {
	Users       users.UserRepo
	Memberships users.MembershipRepo
	Dependents  users.DependentRepo
	Schools     tenants.Repo
}

// Service composes the credential verifier, two-factor authenticator, token
// service, rate limiter, context resolver, and audit logger into the login
// and context-switch protocols exposed at the boundary.
type Service struct {
	repos         Repos
	tokens        *token.Service
	codes         *otp.Service
	limiter       *ratelimit.Limiter
	auditor       *audit.Logger
	sender        Sender
	redirector    Redirector
	sealKey       []byte // AES key for TOTP secrets and recovery bundles
	lookupTimeout time.Duration
	nowFunc       func() time.Time
	log           zerolog.Logger
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowFunc = nowFunc
	}
}

// WithRedirector sets the role-based routing collaborator.
func WithRedirector(r Redirector) ServiceOption {
	return func(s *Service) {
		s.redirector = r
	}
}

// WithSender sets the out-of-band one-time-code delivery collaborator.
func WithSender(sender Sender) ServiceOption {
	return func(s *Service) {
		s.sender = sender
	}
}

// WithLogger sets the logger used for best-effort write failures.
func WithLogger(log zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.log = log
	}
}

// WithLookupTimeout bounds every external store lookup so a slow dependency
// cannot stall a request indefinitely.
func WithLookupTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		s.lookupTimeout = timeout
	}
}

// NewService initializes the orchestrator with its required dependencies.
func NewService(
	repos Repos,
	tokens *token.Service,
	codes *otp.Service,
	limiter *ratelimit.Limiter,
	auditor *audit.Logger,
	sealKey []byte,
	options ...ServiceOption,
) (*Service, error) {
	if repos.Users == nil {
		return nil, errors.New("[NewService] Users repo is required")
	}
	if repos.Memberships == nil {
		return nil, errors.New("[NewService] Memberships repo is required")
	}
	if repos.Dependents == nil {
		return nil, errors.New("[NewService] Dependents repo is required")
	}
	if repos.Schools == nil {
		return nil, errors.New("[NewService] Schools repo is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewService] token service is required")
	}
	if codes == nil {
		return nil, errors.New("[NewService] otp service is required")
	}
	if limiter == nil {
		return nil, errors.New("[NewService] rate limiter is required")
	}
	if auditor == nil {
		return nil, errors.New("[NewService] audit logger is required")
	}
	if len(sealKey) != 32 {
		return nil, errors.New("[NewService] sealKey must be 32 bytes")
	}

	service := &Service{
		repos:         repos,
		tokens:        tokens,
		codes:         codes,
		limiter:       limiter,
		auditor:       auditor,
		sealKey:       sealKey,
		lookupTimeout: defaultLookupTimeout,
		nowFunc:       time.Now,
		log:           zerolog.Nop(),
	}

	for _, opt := range options {
		opt(service)
	}

	return service, nil
}

func (s *Service) boundCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.lookupTimeout)
}

// Login runs the full login protocol: input validation, school resolution,
// user lookup, rate limiting, credential verification, two-factor, context
// resolution, and token issuance. Every rejection after input validation is
// audited with its specific reason before returning.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	// Input validation failures short-circuit before any side effect or audit write.
	if err := validateLoginRequest(req); err != nil {
		return nil, err
	}

	// Resolve the requested school, when one was supplied.
	school, err := s.resolveRequestedSchool(ctx, req)
	if err != nil {
		return nil, err
	}

	// Look up the user among active users. Not-found and wrong-credential are
	// indistinguishable externally; the audit entry keeps the real reason.
	user, err := s.lookupActiveUser(ctx, req, school)
	if err != nil {
		return nil, err
	}

	// A supplied school context requires an active association.
	var membership *users.Membership
	if school != nil {
		membership, err = s.activeMembership(ctx, user, school.ID)
		if err != nil {
			return nil, s.rejectLogin(ctx, req, user.ID, school.ID, err, CodeUnauthorizedAccess)
		}
	}

	// Verify the submitted credential (rate limiting applies to the code path).
	if err := s.verifyCredentials(ctx, req, user, school); err != nil {
		return nil, err
	}

	schoolID := ""
	if school != nil {
		schoolID = school.ID
	}

	if user.Email != "" && !user.EmailVerified && !user.IsSuperAdmin() {
		rejection := Reject(CodeEmailNotVerified, "email address not verified")
		return nil, s.rejectLogin(ctx, req, user.ID, schoolID, rejection, CodeEmailNotVerified)
	}

	if user.TwoFactorEnabled() {
		if err := s.verifyTwoFactor(ctx, req, user, schoolID); err != nil {
			if IsRejection(err) {
				return nil, s.rejectLogin(ctx, req, user.ID, schoolID, err, CodeOf(err))
			}
			return nil, err
		}
	}

	return s.resolveContextAndIssue(ctx, req, user, school, membership)
}

func validateLoginRequest(req LoginRequest) error {
	if req.Identifier == "" {
		return Reject(CodeInputInvalid, "identifier is required")
	}
	switch c := req.Credentials.(type) {
	case PasswordCredentials:
		if c.Password == "" {
			return Reject(CodeInputInvalid, "password is required")
		}
	case OneTimeCodeCredentials:
		if c.Code == "" {
			return Reject(CodeInputInvalid, "code is required")
		}
	default:
		return Reject(CodeInputInvalid, "credentials are required")
	}
	return nil
}

func (s *Service) resolveRequestedSchool(ctx context.Context, req LoginRequest) (*tenants.School, error) {
	if req.SchoolCode == "" {
		return nil, nil
	}
	lookupCtx, cancel := s.boundCtx(ctx)
	defer cancel()

	school, err := s.repos.Schools.GetByCode(lookupCtx, req.SchoolCode)
	if err != nil {
		rejection := Reject(CodeTenantNotFound, "unknown school code")
		return nil, s.rejectLogin(ctx, req, "", "", rejection, CodeTenantNotFound)
	}
	if !school.Active {
		rejection := Reject(CodeTenantInactive, "school is suspended")
		return nil, s.rejectLogin(ctx, req, "", school.ID, rejection, CodeTenantInactive)
	}
	return school, nil
}

func (s *Service) lookupActiveUser(ctx context.Context, req LoginRequest, school *tenants.School) (*users.User, error) {
	schoolID := ""
	if school != nil {
		schoolID = school.ID
	}

	lookupCtx, cancel := s.boundCtx(ctx)
	defer cancel()

	user, err := s.repos.Users.GetByIdentifier(lookupCtx, req.Identifier)
	if err != nil {
		rejection := Reject(CodeInvalidCredentials, "invalid credentials")
		return nil, s.rejectLoginReason(ctx, req, "", schoolID, rejection, reasonUserNotFound)
	}
	if !user.Active {
		rejection := Reject(CodeInvalidCredentials, "invalid credentials")
		return nil, s.rejectLoginReason(ctx, req, user.ID, schoolID, rejection, reasonUserInactive)
	}
	return user, nil
}

func (s *Service) verifyCredentials(ctx context.Context, req LoginRequest, user *users.User, school *tenants.School) error {
	schoolID := ""
	if school != nil {
		schoolID = school.ID
	}

	switch c := req.Credentials.(type) {
	case PasswordCredentials:
		if user.PasswordHash == "" {
			rejection := Reject(CodeInvalidCredentials, "invalid credentials")
			return s.rejectLoginReason(ctx, req, user.ID, schoolID, rejection, reasonNoPasswordSet)
		}
		if !users.CheckPasswordHash(c.Password, user.PasswordHash) {
			rejection := Reject(CodeInvalidCredentials, "invalid credentials")
			return s.rejectLoginReason(ctx, req, user.ID, schoolID, rejection, reasonInvalidPassword)
		}
		return nil

	case OneTimeCodeCredentials:
		decision := s.limiter.CheckAndRecord(req.Identifier, ratelimit.ActionCodeVerify)
		if !decision.Allowed {
			rejection := Reject(CodeRateLimited, "too many verification attempts")
			return s.rejectLogin(ctx, req, user.ID, schoolID, rejection, CodeRateLimited)
		}

		err := s.codes.Verify(ctx, req.Identifier, c.Code)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, otp.ErrNoRecord):
			rejection := Reject(CodeInvalidCredentials, "invalid credentials")
			return s.rejectLoginReason(ctx, req, user.ID, schoolID, rejection, reasonCodeNoRecord)
		case errors.Is(err, otp.ErrMismatch):
			rejection := Reject(CodeInvalidCredentials, "invalid credentials")
			return s.rejectLoginReason(ctx, req, user.ID, schoolID, rejection, reasonCodeMismatch)
		case errors.Is(err, otp.ErrAlreadyUsed):
			rejection := Reject(CodeInvalidCredentials, "invalid credentials")
			return s.rejectLoginReason(ctx, req, user.ID, schoolID, rejection, reasonCodeAlreadyUsed)
		default:
			return errors.Wrap(err, "[Service.verifyCredentials] codes.Verify")
		}
	}
	return Reject(CodeInputInvalid, "credentials are required")
}

// verifyTwoFactor applies the two-factor policy: TOTP first when a secret
// exists, recovery-code fallback otherwise. A successful recovery use
// persists the reduced bundle and audits the remaining count.
func (s *Service) verifyTwoFactor(ctx context.Context, req LoginRequest, user *users.User, schoolID string) error {
	if req.TOTPCode == "" {
		return Reject(CodeTwoFactorRequired, "two-factor code required")
	}

	secret, err := mfa.OpenString(s.sealKey, user.TwoFactorSecret)
	if err != nil {
		return errors.Wrap(err, "[Service.verifyTwoFactor] unseal secret")
	}
	if mfa.VerifyTOTP(secret, req.TOTPCode, s.nowFunc()) {
		return nil
	}

	if user.HasRecoveryCodes() {
		err := s.consumeRecoveryCode(ctx, req, user, schoolID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, mfa.ErrRecoveryCodeNotFound) {
			return errors.Wrap(err, "[Service.verifyTwoFactor] consumeRecoveryCode")
		}
	}
	return Reject(CodeInvalidTwoFactor, "two-factor code invalid")
}

// Bounds the reload-and-retry loop when a concurrent consume wins the swap.
const recoveryConsumeAttempts = 3

// consumeRecoveryCode burns req.TOTPCode out of the user's recovery bundle
// via a conditional replace, so two simultaneous attempts on the same code
// cannot both succeed. Losing the swap means another attempt changed the
// bundle first: the fresh bundle is reloaded and the match retried, and a
// code the winner already burned then reports ErrRecoveryCodeNotFound.
func (s *Service) consumeRecoveryCode(ctx context.Context, req LoginRequest, user *users.User, schoolID string) error {
	bundle := user.RecoveryCodes
	for attempt := 0; attempt < recoveryConsumeAttempts; attempt++ {
		remaining, count, err := mfa.ConsumeRecoveryCode(s.sealKey, bundle, req.TOTPCode)
		if err != nil {
			if errors.Is(err, mfa.ErrRecoveryCodeNotFound) {
				return err
			}
			return errors.Wrap(err, "[Service.consumeRecoveryCode] ConsumeRecoveryCode")
		}

		lookupCtx, cancel := s.boundCtx(ctx)
		won, err := s.repos.Users.ReplaceRecoveryCodes(lookupCtx, user.ID, bundle, remaining)
		cancel()
		if err != nil {
			return errors.Wrap(err, "[Service.consumeRecoveryCode] ReplaceRecoveryCodes")
		}
		if !won {
			lookupCtx, cancel := s.boundCtx(ctx)
			fresh, err := s.repos.Users.GetByID(lookupCtx, user.ID)
			cancel()
			if err != nil {
				return errors.Wrap(err, "[Service.consumeRecoveryCode] GetByID")
			}
			bundle = fresh.RecoveryCodes
			continue
		}

		user.RecoveryCodes = remaining
		s.auditor.Log(ctx, audit.Entry{
			ActorID:  user.ID,
			SchoolID: schoolID,
			Action:   audit.ActionRecoveryUsed,
			Resource: "login",
			Detail:   map[string]any{"remaining": count},
			IP:       req.IP, UserAgent: req.UserAgent,
		})
		return nil
	}
	return mfa.ErrRecoveryCodeNotFound
}

// resolveContextAndIssue determines the initial school (and, for guardians,
// dependent) context, then assembles claims and issues the session token.
func (s *Service) resolveContextAndIssue(ctx context.Context, req LoginRequest, user *users.User, school *tenants.School, membership *users.Membership) (*LoginResult, error) {
	var (
		contexts  []schoolContext
		schoolIDs []string
		err       error
	)
	if !user.IsSuperAdmin() {
		contexts, err = s.authorizedSchools(ctx, user)
		if err != nil {
			return nil, err
		}
		if len(contexts) == 0 {
			rejection := Reject(CodeUnauthorizedAccess, "no authorized schools")
			return nil, s.rejectLogin(ctx, req, user.ID, "", rejection, CodeUnauthorizedAccess)
		}
		for _, c := range contexts {
			schoolIDs = append(schoolIDs, c.school.ID)
		}
	}

	active, result := s.pickInitialSchool(user, school, membership, contexts)
	if result != nil {
		s.auditLoginSuccess(ctx, req, user.ID, "", map[string]any{"requires_school_selection": true})
		result.User = user
		return result, nil
	}

	activeSchoolID, activeChildID := "", ""
	var activeMembership *users.Membership
	if active != nil {
		activeSchoolID = active.school.ID
		activeMembership = active.membership
	}
	role := ResolveEffectiveRole(user, activeMembership)

	// Guardians with several linked children must pick one explicitly.
	if role == string(users.RoleGuardian) && activeSchoolID != "" {
		childID, childResult, err := s.pickInitialChild(ctx, user, activeSchoolID)
		if err != nil {
			return nil, err
		}
		if childResult != nil {
			s.auditLoginSuccess(ctx, req, user.ID, activeSchoolID, map[string]any{"requires_child_selection": true})
			childResult.User = user
			return childResult, nil
		}
		activeChildID = childID
	}

	claims := token.Claims{
		UserID:            user.ID,
		Role:              role,
		ActiveSchoolID:    activeSchoolID,
		ActiveDependentID: activeChildID,
		SchoolIDs:         schoolIDs,
		Permissions:       PermissionsForRole(role),
	}
	signed, err := s.tokens.Issue(claims)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Login] tokens.Issue")
	}

	lookupCtx, cancel := s.boundCtx(ctx)
	defer cancel()
	if err := s.repos.Users.SetLastLogin(lookupCtx, user.ID); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("last_login update failed")
	}

	s.auditLoginSuccess(ctx, req, user.ID, activeSchoolID, map[string]any{
		"role":       role,
		"credential": credentialType(req.Credentials),
	})

	redirectURL := ""
	if s.redirector != nil {
		redirectURL = s.redirector.RedirectURL(user.ID, role, activeSchoolID)
	}

	return &LoginResult{
		User:           user,
		Token:          signed,
		EffectiveRole:  role,
		ActiveSchoolID: activeSchoolID,
		RedirectURL:    redirectURL,
	}, nil
}

// pickInitialSchool applies the initial-context rule: a supplied school wins;
// otherwise exactly one authorized school is auto-selected, and more than one
// requires explicit selection rather than guessing.
func (s *Service) pickInitialSchool(user *users.User, school *tenants.School, membership *users.Membership, contexts []schoolContext) (*schoolContext, *LoginResult) {
	if school != nil {
		return &schoolContext{school: school, membership: membership}, nil
	}
	if user.IsSuperAdmin() {
		return nil, nil // Authenticated without a school context; switch later
	}
	if len(contexts) == 1 {
		return &contexts[0], nil
	}

	options := make([]SchoolOption, 0, len(contexts))
	for _, c := range contexts {
		options = append(options, SchoolOption{ID: c.school.ID, Code: c.school.Code, Name: c.school.Name})
	}
	return nil, &LoginResult{
		RequiresSchoolSelection: true,
		AvailableSchools:        options,
	}
}

func (s *Service) pickInitialChild(ctx context.Context, user *users.User, schoolID string) (string, *LoginResult, error) {
	lookupCtx, cancel := s.boundCtx(ctx)
	defer cancel()

	links, err := s.repos.Dependents.ListForGuardian(lookupCtx, user.ID, schoolID)
	if err != nil {
		return "", nil, errors.Wrap(err, "[Service.pickInitialChild] ListForGuardian")
	}
	switch len(links) {
	case 0:
		return "", nil, nil
	case 1:
		return links[0].DependentID, nil, nil
	}

	options := make([]ChildOption, 0, len(links))
	for _, l := range links {
		options = append(options, ChildOption{ID: l.DependentID, Name: l.DependentName})
	}
	return "", &LoginResult{
		RequiresChildSelection: true,
		AvailableChildren:      options,
	}, nil
}

func credentialType(c Credentials) string {
	switch c.(type) {
	case PasswordCredentials:
		return "password"
	case OneTimeCodeCredentials:
		return "otp"
	}
	return "unknown"
}

func (s *Service) auditLoginSuccess(ctx context.Context, req LoginRequest, actorID, schoolID string, detail map[string]any) {
	s.auditor.Log(ctx, audit.Entry{
		ActorID:   actorID,
		SchoolID:  schoolID,
		Action:    audit.ActionLoginSuccess,
		Resource:  "login",
		Detail:    detail,
		IP:        req.IP,
		UserAgent: req.UserAgent,
	})
}

// rejectLogin audits a login rejection using the external code as the reason.
func (s *Service) rejectLogin(ctx context.Context, req LoginRequest, actorID, schoolID string, rejection error, reason Code) error {
	return s.rejectLoginReason(ctx, req, actorID, schoolID, rejection, string(reason))
}

// rejectLoginReason audits a login rejection with an internal reason that may
// be more specific than the externally returned code.
func (s *Service) rejectLoginReason(ctx context.Context, req LoginRequest, actorID, schoolID string, rejection error, reason string) error {
	s.auditor.Log(ctx, audit.Entry{
		ActorID:   actorID,
		SchoolID:  schoolID,
		Action:    audit.ActionLoginFailed,
		Resource:  "login",
		Detail:    map[string]any{"identifier": req.Identifier, "reason": reason},
		IP:        req.IP,
		UserAgent: req.UserAgent,
	})
	return rejection
}

package auth_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-school-auth/audit"
	fakeauditrepo "github.com/jrsteele09/go-school-auth/audit/repofake"
	"github.com/jrsteele09/go-school-auth/auth"
	"github.com/jrsteele09/go-school-auth/mfa"
	"github.com/jrsteele09/go-school-auth/otp"
	fakecoderepo "github.com/jrsteele09/go-school-auth/otp/repofake"
	"github.com/jrsteele09/go-school-auth/ratelimit"
	"github.com/jrsteele09/go-school-auth/tenants"
	tenantrepofakes "github.com/jrsteele09/go-school-auth/tenants/repofakes"
	"github.com/jrsteele09/go-school-auth/token"
	"github.com/jrsteele09/go-school-auth/users"
	fakeuserrepo "github.com/jrsteele09/go-school-auth/users/repofake"
)

const (
	testSchoolID   = "school-1"
	testSchoolCode = "GHS"
	testUserID     = "user-1"
	testUserEmail  = "amara.okafor@example.com"
	testPassword   = "Password123"
	rateWindow     = 5 * time.Minute
	rateMax        = 3
)

// 32 bytes, AES-256.
var testSealKey = []byte("0123456789abcdef0123456789abcdef")

// testFixture holds all test dependencies
type testFixture struct {
	userRepo       *fakeuserrepo.FakeUserRepo
	membershipRepo *fakeuserrepo.FakeMembershipRepo
	dependentRepo  *fakeuserrepo.FakeDependentRepo
	schoolRepo     *tenantrepofakes.FakeSchoolRepo
	auditRepo      *fakeauditrepo.FakeAuditRepo
	codeRepo       *fakecoderepo.FakeCodeRepo
	tokens         *token.Service
	codes          *otp.Service
	limiter        *ratelimit.Limiter
	service        *auth.Service
	sender         *captureSender

	now time.Time
}

// captureSender records delivered one-time codes instead of sending them
type captureSender struct {
	identifiers []string
	plaintexts  []string
}

func (cs *captureSender) SendOneTimeCode(identifier, plaintext string, _ *tenants.School) error {
	cs.identifiers = append(cs.identifiers, identifier)
	cs.plaintexts = append(cs.plaintexts, plaintext)
	return nil
}

// setupTestFixture creates a new test fixture with all dependencies on a
// fixed clock
func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{
		userRepo:       fakeuserrepo.NewFakeUserRepo(),
		membershipRepo: fakeuserrepo.NewFakeMembershipRepo(),
		dependentRepo:  fakeuserrepo.NewFakeDependentRepo(),
		schoolRepo:     tenantrepofakes.NewFakeSchoolRepo(),
		auditRepo:      fakeauditrepo.NewFakeAuditRepo(),
		codeRepo:       fakecoderepo.NewFakeCodeRepo(),
		sender:         &captureSender{},
		now:            time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC),
	}
	nowFunc := func() time.Time { return f.now }

	f.tokens = token.NewService(token.NewHMACSigner("test-secret"), token.WithNowFunc(nowFunc))

	var err error
	f.codes, err = otp.NewService(f.codeRepo, otp.WithNowFunc(nowFunc))
	require.NoError(t, err)

	f.limiter = ratelimit.New(rateWindow, rateMax, ratelimit.WithNowFunc(nowFunc))
	auditor := audit.NewLogger(f.auditRepo, zerolog.Nop(), audit.WithNowFunc(nowFunc))

	f.service, err = auth.NewService(
		auth.Repos{
			Users:       f.userRepo,
			Memberships: f.membershipRepo,
			Dependents:  f.dependentRepo,
			Schools:     f.schoolRepo,
		},
		f.tokens,
		f.codes,
		f.limiter,
		auditor,
		testSealKey,
		auth.WithNowTime(nowFunc),
		auth.WithSender(f.sender),
	)
	require.NoError(t, err)

	return f
}

// createTestSchool creates and stores an active school
func (f *testFixture) createTestSchool(t *testing.T, id, code, name string) {
	t.Helper()

	err := f.schoolRepo.Upsert(context.Background(), &tenants.School{
		ID:     id,
		Code:   code,
		Name:   name,
		Active: true,
	})
	require.NoError(t, err)
}

// createTestUser creates and stores a user with a hashed password
func (f *testFixture) createTestUser(t *testing.T, user users.User) *users.User {
	t.Helper()

	if user.PasswordHash == "" && testPassword != "" {
		hash, err := users.HashPassword(testPassword)
		require.NoError(t, err)
		user.PasswordHash = hash
	}
	err := f.userRepo.Upsert(context.Background(), &user)
	require.NoError(t, err)
	return &user
}

// createMembership creates an active school membership
func (f *testFixture) createMembership(t *testing.T, userID, schoolID string, role users.SchoolRole) {
	t.Helper()

	err := f.membershipRepo.Upsert(context.Background(), &users.Membership{
		UserID:   userID,
		SchoolID: schoolID,
		Role:     role,
		Active:   true,
		JoinedAt: f.now,
	})
	require.NoError(t, err)
}

// defaultTestUser returns an active, verified teacher candidate
func defaultTestUser() users.User {
	return users.User{
		ID:            testUserID,
		Email:         testUserEmail,
		SystemRole:    users.RoleOrdinary,
		Active:        true,
		EmailVerified: true,
	}
}

func passwordLogin() auth.LoginRequest {
	return auth.LoginRequest{
		Identifier:  testUserEmail,
		Credentials: auth.PasswordCredentials{Password: testPassword},
		IP:          "203.0.113.10",
		UserAgent:   "test-agent",
	}
}

// TestLogin_SoleSchoolAutoSelected covers the common case: a teacher with one
// membership logs in without naming a school and lands directly in it.
func TestLogin_SoleSchoolAutoSelected(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestSchool(t, testSchoolID, testSchoolCode, "Greenwood High")
	f.createTestUser(t, defaultTestUser())
	f.createMembership(t, testUserID, testSchoolID, users.RoleTeacher)

	result, err := f.service.Login(context.Background(), passwordLogin())

	require.NoError(t, err)
	require.False(t, result.RequiresSchoolSelection)
	require.NotEmpty(t, result.Token)
	require.Equal(t, string(users.RoleTeacher), result.EffectiveRole)
	require.Equal(t, testSchoolID, result.ActiveSchoolID)

	claims, err := f.tokens.Verify(result.Token)
	require.NoError(t, err)
	require.Equal(t, testUserID, claims.UserID)
	require.Equal(t, testSchoolID, claims.ActiveSchoolID)
	require.Equal(t, []string{testSchoolID}, claims.SchoolIDs)
	require.Contains(t, claims.Permissions, "records:write")

	successes := f.auditRepo.ByAction(audit.ActionLoginSuccess)
	require.Len(t, successes, 1)
	require.Equal(t, testUserID, successes[0].ActorID)
	require.Equal(t, testSchoolID, successes[0].SchoolID)
}

// TestLogin_MultipleSchoolsRequiresSelection verifies no school is guessed
// when several qualify.
func TestLogin_MultipleSchoolsRequiresSelection(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestSchool(t, "school-1", "GHS", "Greenwood High")
	f.createTestSchool(t, "school-2", "STM", "St. Mary's")
	f.createTestUser(t, defaultTestUser())
	f.createMembership(t, testUserID, "school-1", users.RoleTeacher)
	f.createMembership(t, testUserID, "school-2", users.RoleBursar)

	result, err := f.service.Login(context.Background(), passwordLogin())

	require.NoError(t, err)
	require.True(t, result.RequiresSchoolSelection)
	require.Empty(t, result.Token)
	require.Len(t, result.AvailableSchools, 2)
}

// TestLogin_SuppliedSchoolWins verifies an explicit school code pins the
// session context even when other memberships exist.
func TestLogin_SuppliedSchoolWins(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestSchool(t, "school-1", "GHS", "Greenwood High")
	f.createTestSchool(t, "school-2", "STM", "St. Mary's")
	f.createTestUser(t, defaultTestUser())
	f.createMembership(t, testUserID, "school-1", users.RoleTeacher)
	f.createMembership(t, testUserID, "school-2", users.RoleBursar)

	req := passwordLogin()
	req.SchoolCode = "STM"
	result, err := f.service.Login(context.Background(), req)

	require.NoError(t, err)
	require.False(t, result.RequiresSchoolSelection)
	require.Equal(t, "school-2", result.ActiveSchoolID)
	require.Equal(t, string(users.RoleBursar), result.EffectiveRole)
}

// TestLogin_InactiveSchoolRejected verifies logins into a suspended school
// are refused before credential verification.
func TestLogin_InactiveSchoolRejected(t *testing.T) {
	f := setupTestFixture(t)
	err := f.schoolRepo.Upsert(context.Background(), &tenants.School{
		ID: testSchoolID, Code: testSchoolCode, Name: "Greenwood High", Active: false,
	})
	require.NoError(t, err)
	f.createTestUser(t, defaultTestUser())

	req := passwordLogin()
	req.SchoolCode = testSchoolCode
	_, err = f.service.Login(context.Background(), req)

	require.Error(t, err)
	require.Equal(t, auth.CodeTenantInactive, auth.CodeOf(err))
}

// TestLogin_UnknownSchoolRejected tests login against a school code that
// doesn't exist.
func TestLogin_UnknownSchoolRejected(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestUser(t, defaultTestUser())

	req := passwordLogin()
	req.SchoolCode = "NOPE"
	_, err := f.service.Login(context.Background(), req)

	require.Error(t, err)
	require.Equal(t, auth.CodeTenantNotFound, auth.CodeOf(err))
}

// TestLogin_WrongPassword verifies rejection plus the audit trail for a bad
// password.
func TestLogin_WrongPassword(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestSchool(t, testSchoolID, testSchoolCode, "Greenwood High")
	f.createTestUser(t, defaultTestUser())
	f.createMembership(t, testUserID, testSchoolID, users.RoleTeacher)

	req := passwordLogin()
	req.Credentials = auth.PasswordCredentials{Password: "wrong-password"}
	_, err := f.service.Login(context.Background(), req)

	require.Error(t, err)
	require.Equal(t, auth.CodeInvalidCredentials, auth.CodeOf(err))

	failures := f.auditRepo.ByAction(audit.ActionLoginFailed)
	require.Len(t, failures, 1)
	require.Equal(t, "INVALID_PASSWORD", failures[0].Detail["reason"])
}

// TestLogin_UnknownUserIndistinguishable asserts an unknown identifier and a
// wrong password yield the identical external code, while the audit entries
// keep the real reasons apart.
func TestLogin_UnknownUserIndistinguishable(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestSchool(t, testSchoolID, testSchoolCode, "Greenwood High")
	f.createTestUser(t, defaultTestUser())
	f.createMembership(t, testUserID, testSchoolID, users.RoleTeacher)

	req := passwordLogin()
	req.Identifier = "nobody@example.com"
	_, unknownErr := f.service.Login(context.Background(), req)

	req = passwordLogin()
	req.Credentials = auth.PasswordCredentials{Password: "wrong-password"}
	_, wrongErr := f.service.Login(context.Background(), req)

	require.Equal(t, auth.CodeInvalidCredentials, auth.CodeOf(unknownErr))
	require.Equal(t, auth.CodeInvalidCredentials, auth.CodeOf(wrongErr))
	require.Equal(t, unknownErr.Error(), wrongErr.Error())

	failures := f.auditRepo.ByAction(audit.ActionLoginFailed)
	require.Len(t, failures, 2)
	require.Equal(t, "USER_NOT_FOUND", failures[0].Detail["reason"])
	require.Equal(t, "INVALID_PASSWORD", failures[1].Detail["reason"])
}

// TestLogin_InactiveUserRejected tests a deactivated account.
func TestLogin_InactiveUserRejected(t *testing.T) {
	f := setupTestFixture(t)
	user := defaultTestUser()
	user.Active = false
	f.createTestUser(t, user)

	_, err := f.service.Login(context.Background(), passwordLogin())

	require.Error(t, err)
	require.Equal(t, auth.CodeInvalidCredentials, auth.CodeOf(err))

	failures := f.auditRepo.ByAction(audit.ActionLoginFailed)
	require.Len(t, failures, 1)
	require.Equal(t, "USER_INACTIVE", failures[0].Detail["reason"])
}

// TestLogin_UnverifiedEmailRejected tests the email-verification gate.
func TestLogin_UnverifiedEmailRejected(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestSchool(t, testSchoolID, testSchoolCode, "Greenwood High")
	user := defaultTestUser()
	user.EmailVerified = false
	f.createTestUser(t, user)
	f.createMembership(t, testUserID, testSchoolID, users.RoleTeacher)

	_, err := f.service.Login(context.Background(), passwordLogin())

	require.Error(t, err)
	require.Equal(t, auth.CodeEmailNotVerified, auth.CodeOf(err))
}

// TestLogin_NoAuthorizedSchools tests a credentialed user with no active
// membership anywhere.
func TestLogin_NoAuthorizedSchools(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestUser(t, defaultTestUser())

	_, err := f.service.Login(context.Background(), passwordLogin())

	require.Error(t, err)
	require.Equal(t, auth.CodeUnauthorizedAccess, auth.CodeOf(err))
}

// TestLogin_MissingInputNotAudited verifies validation failures produce no
// audit entries.
func TestLogin_MissingInputNotAudited(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.service.Login(context.Background(), auth.LoginRequest{})
	require.Error(t, err)
	require.Equal(t, auth.CodeInputInvalid, auth.CodeOf(err))

	_, err = f.service.Login(context.Background(), auth.LoginRequest{
		Identifier:  testUserEmail,
		Credentials: auth.PasswordCredentials{},
	})
	require.Error(t, err)
	require.Equal(t, auth.CodeInputInvalid, auth.CodeOf(err))

	require.Empty(t, f.auditRepo.Entries())
}

// TestLogin_SuperAdminWithoutSchoolContext verifies a super-admin
// authenticates without any membership and gets a context-free session.
func TestLogin_SuperAdminWithoutSchoolContext(t *testing.T) {
	f := setupTestFixture(t)
	user := defaultTestUser()
	user.SystemRole = users.RoleSuperAdmin
	f.createTestUser(t, user)

	result, err := f.service.Login(context.Background(), passwordLogin())

	require.NoError(t, err)
	require.NotEmpty(t, result.Token)
	require.Equal(t, string(users.RoleSuperAdmin), result.EffectiveRole)
	require.Empty(t, result.ActiveSchoolID)
}

// TestLogin_SuperAdminRoleOverridesMembership verifies super-admin precedence
// over any per-school role.
func TestLogin_SuperAdminRoleOverridesMembership(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestSchool(t, testSchoolID, testSchoolCode, "Greenwood High")
	user := defaultTestUser()
	user.SystemRole = users.RoleSuperAdmin
	f.createTestUser(t, user)
	f.createMembership(t, testUserID, testSchoolID, users.RoleStudent)

	req := passwordLogin()
	req.SchoolCode = testSchoolCode
	result, err := f.service.Login(context.Background(), req)

	require.NoError(t, err)
	require.Equal(t, string(users.RoleSuperAdmin), result.EffectiveRole)
	require.Equal(t, testSchoolID, result.ActiveSchoolID)
}

// twoFactorUser enrolls a TOTP secret (sealed) and a recovery bundle,
// returning the raw secret and the plaintext recovery codes.
func (f *testFixture) twoFactorUser(t *testing.T) (string, []string) {
	t.Helper()

	secret, err := mfa.GenerateTOTPSecret("school-auth-test", testUserEmail)
	require.NoError(t, err)
	sealed, err := mfa.SealString(testSealKey, secret)
	require.NoError(t, err)
	recovery, bundle, err := mfa.GenerateRecoveryCodes(testSealKey)
	require.NoError(t, err)

	user := defaultTestUser()
	user.TwoFactorSecret = sealed
	user.RecoveryCodes = bundle
	f.createTestUser(t, user)
	return secret, recovery
}

// TestLogin_TwoFactorRequired verifies password-only login halts at the 2FA
// gate when a secret is enrolled.
func TestLogin_TwoFactorRequired(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestSchool(t, testSchoolID, testSchoolCode, "Greenwood High")
	f.twoFactorUser(t)
	f.createMembership(t, testUserID, testSchoolID, users.RoleTeacher)

	_, err := f.service.Login(context.Background(), passwordLogin())

	require.Error(t, err)
	require.Equal(t, auth.CodeTwoFactorRequired, auth.CodeOf(err))
}

// TestLogin_TwoFactorTOTP tests the happy path with a current TOTP code.
func TestLogin_TwoFactorTOTP(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestSchool(t, testSchoolID, testSchoolCode, "Greenwood High")
	secret, _ := f.twoFactorUser(t)
	f.createMembership(t, testUserID, testSchoolID, users.RoleTeacher)

	code, err := totp.GenerateCode(secret, f.now)
	require.NoError(t, err)

	req := passwordLogin()
	req.TOTPCode = code
	result, err := f.service.Login(context.Background(), req)

	require.NoError(t, err)
	require.NotEmpty(t, result.Token)
}

// TestLogin_TwoFactorWrongCode tests rejection of a code that is neither a
// valid TOTP nor a recovery code.
func TestLogin_TwoFactorWrongCode(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestSchool(t, testSchoolID, testSchoolCode, "Greenwood High")
	f.twoFactorUser(t)
	f.createMembership(t, testUserID, testSchoolID, users.RoleTeacher)

	req := passwordLogin()
	req.TOTPCode = "000000"
	_, err := f.service.Login(context.Background(), req)

	require.Error(t, err)
	require.Equal(t, auth.CodeInvalidTwoFactor, auth.CodeOf(err))
}

// TestLogin_RecoveryCodeConsumed covers the lost-device flow: a recovery
// code logs the user in, is burned, and the remaining count is audited.
func TestLogin_RecoveryCodeConsumed(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestSchool(t, testSchoolID, testSchoolCode, "Greenwood High")
	_, recovery := f.twoFactorUser(t)
	f.createMembership(t, testUserID, testSchoolID, users.RoleTeacher)

	req := passwordLogin()
	req.TOTPCode = recovery[0]
	result, err := f.service.Login(context.Background(), req)

	require.NoError(t, err)
	require.NotEmpty(t, result.Token)

	used := f.auditRepo.ByAction(audit.ActionRecoveryUsed)
	require.Len(t, used, 1)
	require.Equal(t, len(recovery)-1, used[0].Detail["remaining"])

	stored, err := f.userRepo.GetByID(context.Background(), testUserID)
	require.NoError(t, err)
	remaining, err := mfa.RemainingRecoveryCodes(testSealKey, stored.RecoveryCodes)
	require.NoError(t, err)
	require.Equal(t, len(recovery)-1, remaining)

	// The same code can never work twice.
	_, err = f.service.Login(context.Background(), req)
	require.Error(t, err)
	require.Equal(t, auth.CodeInvalidTwoFactor, auth.CodeOf(err))
}

// TestLogin_RecoveryCodeConcurrentSingleUse races several logins presenting
// the same recovery code: exactly one may win, the rest must be rejected and
// the bundle must shrink by exactly one.
func TestLogin_RecoveryCodeConcurrentSingleUse(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestSchool(t, testSchoolID, testSchoolCode, "Greenwood High")
	_, recovery := f.twoFactorUser(t)
	f.createMembership(t, testUserID, testSchoolID, users.RoleTeacher)

	req := passwordLogin()
	req.TOTPCode = recovery[0]

	const racers = 8
	results := make([]error, racers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func(i int) {
			defer wg.Done()
			<-start
			_, results[i] = f.service.Login(context.Background(), req)
		}(i)
	}
	close(start)
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		require.Equal(t, auth.CodeInvalidTwoFactor, auth.CodeOf(err))
	}
	require.Equal(t, 1, successes)

	require.Len(t, f.auditRepo.ByAction(audit.ActionRecoveryUsed), 1)

	stored, err := f.userRepo.GetByID(context.Background(), testUserID)
	require.NoError(t, err)
	remaining, err := mfa.RemainingRecoveryCodes(testSealKey, stored.RecoveryCodes)
	require.NoError(t, err)
	require.Equal(t, len(recovery)-1, remaining)
}

// failingLastLoginRepo makes every last-login write fail.
type failingLastLoginRepo struct {
	users.UserRepo
}

func (failingLastLoginRepo) SetLastLogin(context.Context, string) error {
	return errors.New("store offline")
}

// TestLogin_LastLoginFailureLoggedNotFatal verifies a failed last-login write
// is logged but never fails the login itself.
func TestLogin_LastLoginFailureLoggedNotFatal(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestSchool(t, testSchoolID, testSchoolCode, "Greenwood High")
	f.createTestUser(t, defaultTestUser())
	f.createMembership(t, testUserID, testSchoolID, users.RoleTeacher)

	var logBuf bytes.Buffer
	nowFunc := func() time.Time { return f.now }
	service, err := auth.NewService(
		auth.Repos{
			Users:       failingLastLoginRepo{f.userRepo},
			Memberships: f.membershipRepo,
			Dependents:  f.dependentRepo,
			Schools:     f.schoolRepo,
		},
		f.tokens,
		f.codes,
		f.limiter,
		audit.NewLogger(f.auditRepo, zerolog.Nop(), audit.WithNowFunc(nowFunc)),
		testSealKey,
		auth.WithNowTime(nowFunc),
		auth.WithLogger(zerolog.New(&logBuf)),
	)
	require.NoError(t, err)

	result, err := service.Login(context.Background(), passwordLogin())

	require.NoError(t, err)
	require.NotEmpty(t, result.Token)
	require.Contains(t, logBuf.String(), "last_login update failed")
}

// TestLogin_OneTimeCode tests the full code-credential path: request a code,
// then log in with it.
func TestLogin_OneTimeCode(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestSchool(t, testSchoolID, testSchoolCode, "Greenwood High")
	f.createTestUser(t, defaultTestUser())
	f.createMembership(t, testUserID, testSchoolID, users.RoleTeacher)

	issued, err := f.service.RequestOneTimeCode(context.Background(), testUserEmail, "", "203.0.113.10", "test-agent")
	require.NoError(t, err)
	require.Equal(t, f.now.Add(f.codes.TTL()), issued.ExpiresAt)
	require.Len(t, f.sender.plaintexts, 1)

	req := passwordLogin()
	req.Credentials = auth.OneTimeCodeCredentials{Code: f.sender.plaintexts[0]}
	result, err := f.service.Login(context.Background(), req)

	require.NoError(t, err)
	require.NotEmpty(t, result.Token)

	// Replaying the consumed code fails.
	_, err = f.service.Login(context.Background(), req)
	require.Error(t, err)
	require.Equal(t, auth.CodeInvalidCredentials, auth.CodeOf(err))
}

// TestRequestOneTimeCode_RateLimitBoundary covers the issuance window:
// three requests succeed, the fourth is refused with the retry time.
func TestRequestOneTimeCode_RateLimitBoundary(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestUser(t, defaultTestUser())

	firstAttempt := f.now
	for i := 0; i < rateMax; i++ {
		_, err := f.service.RequestOneTimeCode(context.Background(), testUserEmail, "", "", "")
		require.NoError(t, err)
	}

	result, err := f.service.RequestOneTimeCode(context.Background(), testUserEmail, "", "", "")
	require.Error(t, err)
	require.Equal(t, auth.CodeRateLimited, auth.CodeOf(err))
	require.Equal(t, firstAttempt.Add(rateWindow), result.NextAttemptAt)

	rejected := f.auditRepo.ByAction(audit.ActionCodeRejected)
	require.Len(t, rejected, 1)

	// Once the window has passed, issuance works again.
	f.now = f.now.Add(rateWindow + time.Second)
	_, err = f.service.RequestOneTimeCode(context.Background(), testUserEmail, "", "", "")
	require.NoError(t, err)
}

// TestRequestOneTimeCode_UnknownIdentifier verifies the response shape does
// not reveal whether an account exists: no code is generated or delivered,
// but the caller sees a normal-looking result.
func TestRequestOneTimeCode_UnknownIdentifier(t *testing.T) {
	f := setupTestFixture(t)

	result, err := f.service.RequestOneTimeCode(context.Background(), "nobody@example.com", "", "", "")

	require.NoError(t, err)
	require.Equal(t, f.now.Add(f.codes.TTL()), result.ExpiresAt)
	require.Empty(t, f.sender.plaintexts)

	rejected := f.auditRepo.ByAction(audit.ActionCodeRejected)
	require.Len(t, rejected, 1)
	require.Equal(t, "USER_NOT_FOUND", rejected[0].Detail["reason"])
	require.Empty(t, f.auditRepo.ByAction(audit.ActionCodeIssued))
}

// TestNewService_MissingDependencies tests constructor validation
func TestNewService_MissingDependencies(t *testing.T) {
	f := setupTestFixture(t)
	repos := auth.Repos{
		Users:       f.userRepo,
		Memberships: f.membershipRepo,
		Dependents:  f.dependentRepo,
		Schools:     f.schoolRepo,
	}
	auditor := audit.NewLogger(f.auditRepo, zerolog.Nop())

	tests := []struct {
		name      string
		mutate    func(r *auth.Repos)
		sealKey   []byte
		expectErr string
	}{
		{name: "missing users repo", mutate: func(r *auth.Repos) { r.Users = nil }, sealKey: testSealKey, expectErr: "Users repo is required"},
		{name: "missing memberships repo", mutate: func(r *auth.Repos) { r.Memberships = nil }, sealKey: testSealKey, expectErr: "Memberships repo is required"},
		{name: "missing dependents repo", mutate: func(r *auth.Repos) { r.Dependents = nil }, sealKey: testSealKey, expectErr: "Dependents repo is required"},
		{name: "missing schools repo", mutate: func(r *auth.Repos) { r.Schools = nil }, sealKey: testSealKey, expectErr: "Schools repo is required"},
		{name: "short seal key", mutate: func(r *auth.Repos) {}, sealKey: []byte("short"), expectErr: "sealKey must be 32 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := repos
			tt.mutate(&r)
			_, err := auth.NewService(r, f.tokens, f.codes, f.limiter, auditor, tt.sealKey)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.expectErr)
		})
	}
}

// TestResolveEffectiveRole tests super-admin precedence and membership
// derivation in one place.
func TestResolveEffectiveRole(t *testing.T) {
	superAdmin := &users.User{SystemRole: users.RoleSuperAdmin}
	ordinary := &users.User{SystemRole: users.RoleOrdinary}
	membership := &users.Membership{Role: users.RoleBursar}

	require.Equal(t, string(users.RoleSuperAdmin), auth.ResolveEffectiveRole(superAdmin, membership))
	require.Equal(t, string(users.RoleSuperAdmin), auth.ResolveEffectiveRole(superAdmin, nil))
	require.Equal(t, string(users.RoleBursar), auth.ResolveEffectiveRole(ordinary, membership))
	require.Equal(t, string(users.RoleOrdinary), auth.ResolveEffectiveRole(ordinary, nil))
}

package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrExpired = errors.New("token expired")
	ErrInvalid = errors.New("token invalid")
)

// Service issues and verifies signed session tokens. Tokens are opaque to
// callers beyond the Claims schema; re-issuing always produces a new token
// with a fresh expiry and jti.
type Service struct {
	signer     Signer
	issuer     string
	expiry     time.Duration
	revocation RevocationList
	nowFunc    func() time.Time
}

type ServiceOption func(*Service)

func WithExpiry(expiry time.Duration) ServiceOption {
	return func(s *Service) {
		s.expiry = expiry
	}
}

func WithNowFunc(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowFunc = now
	}
}

func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) {
		s.issuer = issuer
	}
}

func WithRevocationList(list RevocationList) ServiceOption {
	return func(s *Service) {
		s.revocation = list
	}
}

func NewService(signer Signer, options ...ServiceOption) *Service {
	s := &Service{
		signer:     signer,
		issuer:     "go-school-auth",
		revocation: NewInMemoryRevocationList(), // Default implementation
		nowFunc:    time.Now,
	}

	for _, opt := range options {
		opt(s)
	}

	if s.expiry == 0 {
		s.expiry = time.Hour
	}
	return s
}

// Expiry returns the configured token lifetime.
func (s *Service) Expiry() time.Duration {
	return s.expiry
}

// Issue signs the claims into a session token, stamping iat/exp/jti.
func (s *Service) Issue(claims Claims) (string, error) {
	if err := claims.Validate(); err != nil {
		return "", errors.Wrap(err, "[Service.Issue] invalid claims")
	}

	now := s.nowFunc()
	mapClaims := jwt.MapClaims{
		"iss":  s.issuer,
		"sub":  claims.UserID,
		"role": claims.Role,
		"iat":  now.Unix(),
		"exp":  now.Add(s.expiry).Unix(),
		"jti":  uuid.New().String(),
	}
	if claims.ActiveSchoolID != "" {
		mapClaims["school"] = claims.ActiveSchoolID
	}
	if claims.ActiveDependentID != "" {
		mapClaims["child"] = claims.ActiveDependentID
	}
	if len(claims.SchoolIDs) > 0 {
		mapClaims["schools"] = claims.SchoolIDs
	}
	if len(claims.Permissions) > 0 {
		mapClaims["perms"] = claims.Permissions
	}

	signed, err := s.signer.Sign(mapClaims)
	if err != nil {
		return "", errors.Wrap(err, "[Service.Issue] signer.Sign")
	}
	return signed, nil
}

// Verify parses and validates a session token, returning its claims.
// Expired tokens return ErrExpired; any other failure (bad signature,
// malformed payload, revoked session) returns ErrInvalid.
func (s *Service) Verify(rawToken string) (*Claims, error) {
	parsed, err := jwt.NewParser(jwt.WithTimeFunc(s.nowFunc)).Parse(rawToken, s.signer.GetVerificationKey)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}
	if !parsed.Valid {
		return nil, ErrInvalid
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalid
	}

	sub, _ := mapClaims["sub"].(string)
	role, _ := mapClaims["role"].(string)
	school, _ := mapClaims["school"].(string)
	child, _ := mapClaims["child"].(string)
	jti, _ := mapClaims["jti"].(string)
	iat, _ := mapClaims["iat"].(float64)
	exp, _ := mapClaims["exp"].(float64)

	if sub == "" {
		return nil, ErrInvalid
	}

	issuedAt := time.Unix(int64(iat), 0)
	if s.revocation.IsRevoked(sub, issuedAt) {
		return nil, ErrInvalid
	}

	claims := &Claims{
		UserID:            sub,
		Role:              role,
		ActiveSchoolID:    school,
		ActiveDependentID: child,
		IssuedAt:          issuedAt,
		ExpiresAt:         time.Unix(int64(exp), 0),
		JTI:               jti,
	}
	if raw, ok := mapClaims["schools"]; ok {
		claims.SchoolIDs = interfaceArrayToString(raw)
	}
	if raw, ok := mapClaims["perms"]; ok {
		claims.Permissions = interfaceArrayToString(raw)
	}
	return claims, nil
}

// RevokeAllForUser invalidates every session token issued to the user up to
// now. Hook for password resets and administrative lockouts.
func (s *Service) RevokeAllForUser(userID string) error {
	return s.revocation.RevokeUser(userID, s.nowFunc())
}

// CleanupRevocations removes revocation marks that can no longer match a live token.
func (s *Service) CleanupRevocations() {
	s.revocation.Cleanup(s.expiry)
}

func interfaceArrayToString(raw any) []string {
	iArray, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	stringSlice := make([]string, 0)
	for _, v := range iArray {
		if s, ok := v.(string); ok {
			stringSlice = append(stringSlice, s)
		}
	}
	return stringSlice
}

package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Verification failure modes, each externally distinct so the caller can
// audit the precise reason.
var (
	ErrNoRecord    = errors.New("no valid code record")
	ErrMismatch    = errors.New("code mismatch")
	ErrAlreadyUsed = errors.New("code already used")
)

const (
	defaultTTL         = 10 * time.Minute
	defaultDigits      = 6
	defaultMaxAttempts = 5
)

// Service issues and verifies short-lived numeric one-time codes.
type Service struct {
	repo        Repo
	ttl         time.Duration
	digits      int
	maxAttempts int
	nowFunc     func() time.Time
}

type ServiceOption func(*Service)

func WithTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.ttl = ttl
	}
}

func WithMaxAttempts(max int) ServiceOption {
	return func(s *Service) {
		s.maxAttempts = max
	}
}

func WithNowFunc(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowFunc = now
	}
}

func NewService(repo Repo, options ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("[otp.NewService] repo is required")
	}
	s := &Service{
		repo:        repo,
		ttl:         defaultTTL,
		digits:      defaultDigits,
		maxAttempts: defaultMaxAttempts,
		nowFunc:     time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Generate creates a new code for the identifier and stores its hash.
// The plaintext is returned once, for out-of-band delivery, and never kept.
func (s *Service) Generate(ctx context.Context, identifier, schoolID string) (string, *Code, error) {
	plaintext, err := randomDigits(s.digits)
	if err != nil {
		return "", nil, errors.Wrap(err, "[Service.Generate] randomDigits")
	}

	now := s.nowFunc()
	code := &Code{
		ID:         uuid.New().String(),
		Identifier: identifier,
		SchoolID:   schoolID,
		CodeHash:   HashCode(plaintext),
		ExpiresAt:  now.Add(s.ttl),
		CreatedAt:  now,
	}
	if err := s.repo.Create(ctx, code); err != nil {
		return "", nil, errors.Wrap(err, "[Service.Generate] repo.Create")
	}
	return plaintext, code, nil
}

// Verify checks a submitted code against the identifier's most recent
// unexpired record and consumes it on success. The success determination and
// the used-mark are a single conditional update, so racing verifications of
// the same code yield exactly one success.
func (s *Service) Verify(ctx context.Context, identifier, submitted string) error {
	record, err := s.repo.GetLatest(ctx, identifier, s.nowFunc())
	if err != nil {
		return errors.Wrap(err, "[Service.Verify] repo.GetLatest")
	}
	if record == nil {
		return ErrNoRecord
	}
	if record.Used {
		return ErrAlreadyUsed
	}
	if record.Attempts >= s.maxAttempts {
		// Attempt cap exceeded: the record is burned.
		return ErrNoRecord
	}

	if HashCode(submitted) != record.CodeHash {
		if _, err := s.repo.IncrementAttempts(ctx, record.ID); err != nil {
			return errors.Wrap(err, "[Service.Verify] repo.IncrementAttempts")
		}
		return ErrMismatch
	}

	consumed, err := s.repo.ConsumeIfUnused(ctx, record.ID)
	if err != nil {
		return errors.Wrap(err, "[Service.Verify] repo.ConsumeIfUnused")
	}
	if !consumed {
		// A concurrent verification won the conditional update.
		return ErrAlreadyUsed
	}
	return nil
}

// PurgeExpired removes expired records. Run from the maintenance worker.
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	return s.repo.PurgeExpired(ctx, s.nowFunc())
}

// TTL returns the configured code lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// HashCode returns the hex SHA-256 digest of a plaintext code. Codes are
// short-lived 6-digit values, so a fast hash is deliberate here; a slow hash
// would add nothing against a 10^6 space while costing ~100ms per verify.
func HashCode(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

func randomDigits(n int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < n; i++ {
		max.Mul(max, big.NewInt(10))
	}
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", n, v), nil
}

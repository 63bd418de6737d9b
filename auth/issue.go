package auth

import (
	"context"
	"time"

	"github.com/jrsteele09/go-school-auth/audit"
	"github.com/jrsteele09/go-school-auth/ratelimit"
	"github.com/jrsteele09/go-school-auth/tenants"
	"github.com/pkg/errors"
)

// IssueResult is the outcome of a one-time-code issuance request. When the
// request was throttled, NextAttemptAt says when a retry can succeed.
type IssueResult struct {
	ExpiresAt     time.Time
	NextAttemptAt time.Time
}

// RequestOneTimeCode issues a fresh code for the identifier, subject to the
// sliding-window rate limit. The response does not reveal whether the
// identifier matches a known user; a code is only actually generated and
// delivered when it does.
func (s *Service) RequestOneTimeCode(ctx context.Context, identifier, schoolID, ip, userAgent string) (*IssueResult, error) {
	if identifier == "" {
		return nil, Reject(CodeInputInvalid, "identifier is required")
	}

	decision := s.limiter.CheckAndRecord(identifier, ratelimit.ActionCodeIssue)
	if !decision.Allowed {
		s.auditor.Log(ctx, audit.Entry{
			SchoolID:  schoolID,
			Action:    audit.ActionCodeRejected,
			Resource:  "one_time_code",
			Detail:    map[string]any{"identifier": identifier, "reason": CodeRateLimited},
			IP:        ip,
			UserAgent: userAgent,
		})
		return &IssueResult{NextAttemptAt: decision.NextAttemptAt},
			Reject(CodeRateLimited, "too many code requests")
	}

	var school *tenants.School
	if schoolID != "" {
		lookupCtx, cancel := s.boundCtx(ctx)
		resolved, err := s.repos.Schools.GetByID(lookupCtx, schoolID)
		cancel()
		if err == nil {
			school = resolved
		}
	}

	expiresAt := s.nowFunc().Add(s.codes.TTL())

	lookupCtx, cancel := s.boundCtx(ctx)
	user, err := s.repos.Users.GetByIdentifier(lookupCtx, identifier)
	cancel()
	if err != nil || !user.Active {
		// Identical response shape for unknown identifiers; the audit entry
		// records that nothing was issued.
		s.auditor.Log(ctx, audit.Entry{
			SchoolID:  schoolID,
			Action:    audit.ActionCodeRejected,
			Resource:  "one_time_code",
			Detail:    map[string]any{"identifier": identifier, "reason": reasonUserNotFound},
			IP:        ip,
			UserAgent: userAgent,
		})
		return &IssueResult{ExpiresAt: expiresAt}, nil
	}

	plaintext, code, err := s.codes.Generate(ctx, identifier, schoolID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.RequestOneTimeCode] codes.Generate")
	}

	if s.sender != nil {
		if err := s.sender.SendOneTimeCode(identifier, plaintext, school); err != nil {
			return nil, errors.Wrap(err, "[Service.RequestOneTimeCode] SendOneTimeCode")
		}
	}

	s.auditor.Log(ctx, audit.Entry{
		ActorID:   user.ID,
		SchoolID:  schoolID,
		Action:    audit.ActionCodeIssued,
		Resource:  "one_time_code",
		Detail:    map[string]any{"identifier": identifier, "expires_at": code.ExpiresAt},
		IP:        ip,
		UserAgent: userAgent,
	})
	return &IssueResult{ExpiresAt: code.ExpiresAt}, nil
}

package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-school-auth/auth"
	"github.com/rs/zerolog/log"
)

type credentialsPayload struct {
	Type  string `json:"type"` // "password" or "otp"
	Value string `json:"value"`
}

type loginPayload struct {
	Identifier  string              `json:"identifier"`
	TenantCode  string              `json:"tenantCode,omitempty"`
	Credentials *credentialsPayload `json:"credentials"`
	TOTPCode    string              `json:"totpCode,omitempty"`
}

type contextSwitchPayload struct {
	Token          string `json:"token"`
	NewTenantID    string `json:"newTenantId,omitempty"`
	NewDependentID string `json:"newDependentId,omitempty"`
}

type codeRequestPayload struct {
	Identifier string `json:"identifier"`
	TenantID   string `json:"tenantId,omitempty"`
}

// LoginHandler runs the login protocol and returns either a session token, a
// selection prompt, or a coded rejection.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload loginPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body", string(auth.CodeInputInvalid))
			return
		}

		req := auth.LoginRequest{
			Identifier: strings.TrimSpace(payload.Identifier),
			SchoolCode: payload.TenantCode,
			TOTPCode:   payload.TOTPCode,
			IP:         clientIP(r),
			UserAgent:  r.UserAgent(),
		}
		if payload.Credentials != nil {
			switch payload.Credentials.Type {
			case "password":
				req.Credentials = auth.PasswordCredentials{Password: payload.Credentials.Value}
			case "otp":
				req.Credentials = auth.OneTimeCodeCredentials{Code: payload.Credentials.Value}
			}
		}

		result, err := s.auth.Login(r.Context(), req)
		if err != nil {
			s.writeRejection(w, err, "login failed")
			return
		}

		switch {
		case result.RequiresSchoolSelection:
			writeSuccess(w, map[string]any{
				"requiresSchoolSelection": true,
				"availableSchools":        result.AvailableSchools,
			})
		case result.RequiresChildSelection:
			writeSuccess(w, map[string]any{
				"requiresChildSelection": true,
				"availableChildren":      result.AvailableChildren,
			})
		default:
			body := map[string]any{
				"user":  result.User,
				"token": result.Token,
			}
			if result.RedirectURL != "" {
				body["redirectUrl"] = result.RedirectURL
			}
			writeSuccess(w, body)
		}
	}
}

// ContextSwitchHandler moves an existing session to a new school/dependent context.
func (s *Server) ContextSwitchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload contextSwitchPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body", string(auth.CodeInputInvalid))
			return
		}

		result, err := s.auth.SwitchContext(r.Context(), auth.SwitchRequest{
			Token:          payload.Token,
			NewSchoolID:    payload.NewTenantID,
			NewDependentID: payload.NewDependentID,
			IP:             clientIP(r),
			UserAgent:      r.UserAgent(),
		})
		if err != nil {
			s.writeRejection(w, err, "context switch failed")
			return
		}

		writeSuccess(w, map[string]any{
			"message":     "context updated",
			"token":       result.Token,
			"redirectUrl": result.RedirectURL,
			"newContext": map[string]any{
				"activeTenantId":    result.ActiveSchoolID,
				"activeDependentId": result.ActiveChildID,
				"effectiveRole":     result.EffectiveRole,
			},
		})
	}
}

// CodeRequestHandler issues a one-time login code, subject to rate limiting.
func (s *Server) CodeRequestHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload codeRequestPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body", string(auth.CodeInputInvalid))
			return
		}

		result, err := s.auth.RequestOneTimeCode(r.Context(), strings.TrimSpace(payload.Identifier), payload.TenantID, clientIP(r), r.UserAgent())
		if err != nil {
			if auth.CodeOf(err) == auth.CodeRateLimited && result != nil {
				writeJSON(w, http.StatusTooManyRequests, map[string]any{
					"success":       false,
					"code":          string(auth.CodeRateLimited),
					"error":         "too many code requests",
					"nextAttemptAt": result.NextAttemptAt,
				})
				return
			}
			s.writeRejection(w, err, "code request failed")
			return
		}

		writeSuccess(w, map[string]any{"expiresAt": result.ExpiresAt})
	}
}

// writeRejection maps a service error to the uniform failure envelope.
// Internal errors are logged with full detail and surfaced generically.
func (s *Server) writeRejection(w http.ResponseWriter, err error, logMsg string) {
	code := auth.CodeOf(err)
	if code == auth.CodeInternal {
		log.Error().Err(err).Msg(logMsg)
		writeError(w, http.StatusInternalServerError, "internal error", string(code))
		return
	}
	writeError(w, statusForCode(code), rejectionMessage(err), string(code))
}

func rejectionMessage(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, ": "); idx >= 0 {
		return msg[idx+2:]
	}
	return msg
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx >= 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return fwd
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	return host
}

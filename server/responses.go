package server

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/go-school-auth/auth"
)

const contentTypeJSON = "application/json; charset=utf-8"

// Every response, success or failure, shares the same top-level shape so
// callers can branch uniformly on the success flag.

func writeJSON(w http.ResponseWriter, status int, payload map[string]any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, payload map[string]any) {
	body := map[string]any{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
		"code":    code,
	})
}

// statusForCode maps rejection codes to HTTP statuses.
func statusForCode(code auth.Code) int {
	switch code {
	case auth.CodeInputInvalid, auth.CodeNoContextSwitch:
		return http.StatusBadRequest
	case auth.CodeInvalidCredentials, auth.CodeTokenExpired, auth.CodeTokenInvalid:
		return http.StatusUnauthorized
	case auth.CodeUnauthorizedAccess, auth.CodeTenantInactive,
		auth.CodeTwoFactorRequired, auth.CodeInvalidTwoFactor, auth.CodeEmailNotVerified:
		return http.StatusForbidden
	case auth.CodeTenantNotFound:
		return http.StatusNotFound
	case auth.CodeRateLimited:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

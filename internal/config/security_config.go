package config

import (
	"encoding/hex"
	"strconv"
	"time"
)

type SecurityConfig interface {
	GetTokenSecret() string
	GetTokenExpiry() time.Duration
	GetSealKey() ([]byte, error)
	GetRateLimitWindow() time.Duration
	GetRateLimitMax() int
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetTokenSecret() string {
	return GetEnv("TOKEN_SECRET", "dev-only-token-secret")
}

func (Security) GetTokenExpiry() time.Duration {
	return getDuration("TOKEN_EXPIRY", time.Hour)
}

// GetSealKey returns the 32-byte AES key (hex-encoded in the environment)
// used to seal TOTP secrets and recovery-code bundles at rest.
func (Security) GetSealKey() ([]byte, error) {
	// 32 zero bytes as a dev fallback; production must set SEAL_KEY.
	raw := GetEnv("SEAL_KEY", "0000000000000000000000000000000000000000000000000000000000000000")
	return hex.DecodeString(raw)
}

func (Security) GetRateLimitWindow() time.Duration {
	return getDuration("RATE_LIMIT_WINDOW", 5*time.Minute)
}

func (Security) GetRateLimitMax() int {
	raw := GetEnv("RATE_LIMIT_MAX", "3")
	max, err := strconv.Atoi(raw)
	if err != nil || max <= 0 {
		return 3
	}
	return max
}

func getDuration(envVar string, defaultValue time.Duration) time.Duration {
	raw := GetEnv(envVar, "")
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return d
}

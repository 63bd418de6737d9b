package mfa

import (
	"time"

	otplib "github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// totpSkew tolerates one time step either side of now to absorb clock drift
// between the server and the authenticator device.
const totpSkew = 1

// VerifyTOTP checks a submitted code against the shared secret at the given
// time, accepting codes from the adjacent time steps.
func VerifyTOTP(secret, submitted string, at time.Time) bool {
	if secret == "" || submitted == "" {
		return false
	}
	valid, err := totp.ValidateCustom(submitted, secret, at, totp.ValidateOpts{
		Period:    30,
		Skew:      totpSkew,
		Digits:    otplib.DigitsSix,
		Algorithm: otplib.AlgorithmSHA1,
	})
	return err == nil && valid
}

// GenerateTOTPSecret enrolls a new authenticator secret for a user. The
// returned secret must be sealed before it is persisted.
func GenerateTOTPSecret(issuer, accountName string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
	})
	if err != nil {
		return "", err
	}
	return key.Secret(), nil
}

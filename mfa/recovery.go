package mfa

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/pkg/errors"
)

// Recovery codes are stored as an encrypted bundle of SHA-256 digests.
// The bundle is reversible encryption (not one-way hashing of the whole set)
// so the remaining-count can be shown to the user; the individual codes
// inside are still digests, so decryption does not yield usable codes.
// TODO: revisit whether the displayable count justifies reversible storage.

var ErrRecoveryCodeNotFound = errors.New("recovery code not found")

const (
	recoveryCodeCount  = 8
	recoveryCodeDigits = 10
)

// bundle is the decrypted wire form of a recovery-code set.
type bundle struct {
	Hashes []string `json:"hashes"`
}

// GenerateRecoveryCodes mints a fresh set of single-use recovery codes,
// returning the plaintexts (shown to the user exactly once) and the sealed
// bundle for persistence.
func GenerateRecoveryCodes(key []byte) ([]string, []byte, error) {
	plaintexts := make([]string, 0, recoveryCodeCount)
	hashes := make([]string, 0, recoveryCodeCount)
	for i := 0; i < recoveryCodeCount; i++ {
		code, err := randomRecoveryCode()
		if err != nil {
			return nil, nil, errors.Wrap(err, "[mfa.GenerateRecoveryCodes] randomRecoveryCode")
		}
		plaintexts = append(plaintexts, code)
		hashes = append(hashes, hashRecoveryCode(code))
	}

	sealed, err := sealBundle(key, bundle{Hashes: hashes})
	if err != nil {
		return nil, nil, err
	}
	return plaintexts, sealed, nil
}

// ConsumeRecoveryCode finds the submitted code in the sealed bundle, removes
// it, and returns the re-sealed remainder with the remaining count. Each code
// is single-use: once removed it can never match again.
func ConsumeRecoveryCode(key, sealed []byte, submitted string) ([]byte, int, error) {
	b, err := openBundle(key, sealed)
	if err != nil {
		return nil, 0, err
	}

	target := hashRecoveryCode(submitted)
	idx := -1
	for i, h := range b.Hashes {
		if h == target {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, 0, ErrRecoveryCodeNotFound
	}

	b.Hashes = append(b.Hashes[:idx], b.Hashes[idx+1:]...)
	resealed, err := sealBundle(key, b)
	if err != nil {
		return nil, 0, err
	}
	return resealed, len(b.Hashes), nil
}

// RemainingRecoveryCodes reports how many unused codes the bundle still holds.
func RemainingRecoveryCodes(key, sealed []byte) (int, error) {
	b, err := openBundle(key, sealed)
	if err != nil {
		return 0, err
	}
	return len(b.Hashes), nil
}

func sealBundle(key []byte, b bundle) ([]byte, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, errors.Wrap(err, "[mfa.sealBundle] json.Marshal")
	}
	return Seal(key, raw)
}

func openBundle(key, sealed []byte) (bundle, error) {
	var b bundle
	raw, err := Open(key, sealed)
	if err != nil {
		return b, err
	}
	if err := json.Unmarshal(raw, &b); err != nil {
		return b, errors.Wrap(err, "[mfa.openBundle] json.Unmarshal")
	}
	return b, nil
}

func hashRecoveryCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func randomRecoveryCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < recoveryCodeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", recoveryCodeDigits, v), nil
}

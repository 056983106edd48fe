// Package totp wraps pquerna/otp with the parameters every mainstream
// authenticator app understands: HMAC-SHA1, six digits and a thirty second
// step.
package totp

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	gotp "github.com/pquerna/otp/totp"
)

const (
	// SecretBytes is the raw secret size, 160 bits
	SecretBytes = 20
	// Digits per code
	Digits = 6
	// Period is the step length
	Period = 30 * time.Second
	// DefaultSkew accepts the previous and the next step
	DefaultSkew = 1
)

// ErrInvalidSecret the secret is not valid base32
var ErrInvalidSecret = errors.New("totp: invalid secret")

// Key is a freshly generated secret and the otpauth URI clients scan
type Key struct {
	Secret string
	URI    string
}

// Generate creates a secret labelled with issuer and account
func Generate(issuer, account string) (*Key, error) {
	key, err := gotp.Generate(gotp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      uint(Period / time.Second),
		SecretSize:  SecretBytes,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("totp: generate: %w", err)
	}
	return &Key{Secret: key.Secret(), URI: key.URL()}, nil
}

// Code returns the code for the step containing t
func Code(secret string, t time.Time) (string, error) {
	normalized, err := normalizeSecret(secret)
	if err != nil {
		return "", err
	}
	code, err := gotp.GenerateCodeCustom(normalized, t, opts(0))
	if err != nil {
		return "", mapErr(err)
	}
	return code, nil
}

// Validate reports whether code matches any step within skew steps of t.
func Validate(secret, code string, t time.Time, skew int) (bool, error) {
	code = strings.TrimSpace(code)
	if len(code) != Digits || !numeric(code) {
		return false, nil
	}

	normalized, err := normalizeSecret(secret)
	if err != nil {
		return false, err
	}

	if skew < 0 {
		skew = 0
	}
	ok, err := gotp.ValidateCustom(code, normalized, t, opts(uint(skew)))
	if err != nil {
		return false, mapErr(err)
	}
	return ok, nil
}

func opts(skew uint) gotp.ValidateOpts {
	return gotp.ValidateOpts{
		Period:    uint(Period / time.Second),
		Skew:      skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

func normalizeSecret(secret string) (string, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
	normalized = strings.TrimRight(normalized, "=")
	if normalized == "" {
		return "", ErrInvalidSecret
	}
	return normalized, nil
}

func mapErr(err error) error {
	if errors.Is(err, otp.ErrValidateSecretInvalidBase32) {
		return ErrInvalidSecret
	}
	return err
}

func numeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

package auth

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrMismatchedHashAndPassword the plaintext does not match the stored hash
var ErrMismatchedHashAndPassword = NewAuthError("password_mismatch", "password does not match")

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// HashPassword will generate a password hash
func HashPassword(password string) (string, error) {
	return hashWithCost(password, passwordHashCost())
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return wrapValidation(err, "malformed password hash")
	}
	return nil
}

// DummyHash returns a valid hash of a random value. Logins for unknown
// emails compare against it so both paths cost one bcrypt comparison.
func DummyHash() string {
	dummyHashOnce.Do(func() {
		h, err := HashPassword(uuid.NewString())
		if err != nil {
			panic(err)
		}
		dummyHash = h
	})
	return dummyHash
}

// BcryptHasher implements PasswordAuthenticator with a configurable cost
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher returns a hasher, cost 0 means the build default
func NewBcryptHasher(cost int) *BcryptHasher {
	return &BcryptHasher{Cost: cost}
}

func (b *BcryptHasher) Hash(plaintext string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = passwordHashCost()
	}
	return hashWithCost(plaintext, cost)
}

// Verify never fails loudly, a malformed hash is just a mismatch.
func (b *BcryptHasher) Verify(plaintext, hash string) bool {
	return ComparePasswordAndHash(plaintext, hash) == nil
}

func hashWithCost(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return "", NewValidationError("invalid bcrypt cost").
			WithMetadata(map[string]any{"cost": cost})
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		// passwords over 72 bytes are rejected by bcrypt
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", wrapValidation(err, "password is too long")
		}
		return "", WrapInfrastructure(err, "failed to hash password")
	}
	return string(h), nil
}

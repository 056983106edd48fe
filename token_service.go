package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	accessKey  []byte
	refreshKey []byte
	issuer     string
	audience   jwt.ClaimStrings
	now        func() time.Time
	logger     Logger
}

// NewTokenService creates a new TokenService instance. Access and refresh
// tokens are signed with different keys.
func NewTokenService(accessKey, refreshKey []byte, issuer string, audience jwt.ClaimStrings, logger Logger) *TokenServiceImpl {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenServiceImpl{
		accessKey:  accessKey,
		refreshKey: refreshKey,
		issuer:     issuer,
		audience:   audience,
		now:        time.Now,
		logger:     logger,
	}
}

// NewTokenServiceFromConfig wires the service from Config
func NewTokenServiceFromConfig(cfg Config, logger Logger) *TokenServiceImpl {
	return NewTokenService(
		[]byte(cfg.GetAccessSecret()),
		[]byte(cfg.GetRefreshSecret()),
		cfg.GetIssuer(),
		cfg.GetAudience(),
		logger,
	)
}

// WithClock overrides the time source used to issue and validate tokens
func (ts *TokenServiceImpl) WithClock(now func() time.Time) *TokenServiceImpl {
	if now != nil {
		ts.now = now
	}
	return ts
}

// Issue signs a token for subject with the given purpose and lifetime
func (ts *TokenServiceImpl) Issue(subject string, purpose TokenPurpose, ttl time.Duration) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, NewValidationError("token subject must not be empty")
	}

	key, err := ts.keyFor(purpose)
	if err != nil {
		return "", time.Time{}, err
	}

	if ttl <= 0 {
		return "", time.Time{}, NewValidationError("token ttl must be positive").
			WithMetadata(map[string]any{"ttl": ttl.String()})
	}

	now := ts.now()
	expiresAt := jwt.NewNumericDate(now.Add(ttl))

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   subject,
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: expiresAt,
		},
		UID:     subject,
		Purpose: purpose,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(key)
	if err != nil {
		return "", time.Time{}, WrapInfrastructure(err, "failed to sign JWT")
	}

	return signed, expiresAt.Time, nil
}

// Validate parses and validates a token string. The signing key is picked by
// the expected purpose and the purpose claim must match it as well.
func (ts *TokenServiceImpl) Validate(tokenString string, expected TokenPurpose) (*JWTClaims, error) {
	key, err := ts.keyFor(expected)
	if err != nil {
		return nil, err
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.now),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience[0]))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Warn("TokenService validate encountered unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, wrapSentinel(ErrInvalidToken, err, nil)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Purpose != expected {
		return nil, wrapSentinel(ErrInvalidToken, nil, map[string]any{
			"expected_purpose": string(expected),
		})
	}

	if claims.RegisteredClaims.Subject == "" || claims.RegisteredClaims.ID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (ts *TokenServiceImpl) keyFor(purpose TokenPurpose) ([]byte, error) {
	switch purpose {
	case PurposeAccess:
		return ts.accessKey, nil
	case PurposeRefresh:
		return ts.refreshKey, nil
	default:
		return nil, NewValidationError("unknown token purpose").
			WithMetadata(map[string]any{"purpose": string(purpose)})
	}
}

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuthenticatedIdentity is the caller resolved from a valid access token
type AuthenticatedIdentity struct {
	ID               uuid.UUID `json:"id"`
	Email            string    `json:"email"`
	EmailVerified    bool      `json:"is_email_verified"`
	TwoFactorEnabled bool      `json:"two_factor_enabled"`
	TokenID          string    `json:"-"`
	ExpiresAt        time.Time `json:"-"`
}

// SessionVerifier turns a bearer token into an identity
type SessionVerifier struct {
	tokens   TokenService
	users    Users
	denylist TokenDenylist
	logger   Logger
}

func NewSessionVerifier(tokens TokenService, users Users) *SessionVerifier {
	return &SessionVerifier{
		tokens: tokens,
		users:  users,
		logger: defLogger{},
	}
}

// WithDenylist rejects tokens revoked by logout
func (v *SessionVerifier) WithDenylist(d TokenDenylist) *SessionVerifier {
	v.denylist = d
	return v
}

func (v *SessionVerifier) WithLogger(logger Logger) *SessionVerifier {
	if logger != nil {
		v.logger = logger
	}
	return v
}

// Authenticate validates an access token and re-reads its subject. A token
// whose user no longer exists is indistinguishable from a forged one.
func (v *SessionVerifier) Authenticate(ctx context.Context, bearer string) (*AuthenticatedIdentity, error) {
	token := stripBearer(bearer)
	if token == "" {
		return nil, ErrMissingToken
	}

	claims, err := v.tokens.Validate(token, PurposeAccess)
	if err != nil {
		return nil, err
	}

	if revoked, err := isRevoked(ctx, v.denylist, claims.TokenID()); err != nil {
		return nil, err
	} else if revoked {
		return nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.UserID())
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := v.users.GetByID(ctx, userID)
	if err != nil {
		if IsRecordNotFound(err) {
			return nil, ErrInvalidToken
		}
		v.logger.Error("session verifier failed to load user: %v", err)
		return nil, err
	}

	return &AuthenticatedIdentity{
		ID:               user.ID,
		Email:            user.Email,
		EmailVerified:    user.EmailVerified,
		TwoFactorEnabled: user.TwoFactorEnabled,
		TokenID:          claims.TokenID(),
		ExpiresAt:        claims.Expires(),
	}, nil
}

func stripBearer(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 7 && strings.EqualFold(s[:7], "bearer ") {
		s = strings.TrimSpace(s[7:])
	}
	return s
}

func isRevoked(ctx context.Context, d TokenDenylist, jti string) (bool, error) {
	if d == nil || jti == "" {
		return false, nil
	}
	revoked, err := d.IsRevoked(ctx, jti)
	if err != nil {
		return false, WrapInfrastructure(err, "failed to check token revocation")
	}
	return revoked, nil
}

package auth

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
)

// LoginRequest is the login payload. TOTPCode is only read for accounts
// with 2FA enabled and may also carry a backup code.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// LoginResult holds a fresh token pair
type LoginResult struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
	User             *User     `json:"user"`
}

// RefreshResult holds a new access token. RefreshToken is only set when
// refresh rotation is enabled.
type RefreshResult struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	RefreshExpiresAt time.Time `json:"-"`
}

// Session is what the client needs to render a signed in state
type Session struct {
	User     *AuthenticatedIdentity `json:"user"`
	Settings *SettingsView          `json:"settings"`
	APIKeys  []*APIKey              `json:"api_keys"`
}

// Auther is the session authority: it turns credentials into tokens and
// tokens back into sessions.
type Auther struct {
	repo          RepositoryManager
	provider      *UserProvider
	tokens        TokenService
	twoFactor     *TwoFactorEngine
	verifier      *SessionVerifier
	settings      *SettingsService
	denylist      TokenDenylist
	accessTTL     time.Duration
	refreshTTL    time.Duration
	rotateRefresh bool
	activity      ActivitySink
	logger        Logger
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(repo RepositoryManager, opts Config) *Auther {
	tokens := NewTokenServiceFromConfig(opts, defLogger{})

	return &Auther{
		repo:          repo,
		provider:      NewUserProvider(repo.Users()).WithHasher(NewBcryptHasher(opts.GetBcryptCost())),
		tokens:        tokens,
		twoFactor:     NewTwoFactorEngine(repo, opts.GetTOTPIssuer()),
		verifier:      NewSessionVerifier(tokens, repo.Users()),
		settings:      NewSettingsService(repo),
		accessTTL:     opts.GetAccessTokenTTL(),
		refreshTTL:    opts.GetRefreshTokenTTL(),
		rotateRefresh: opts.GetRotateRefresh(),
		activity:      noopActivitySink{},
		logger:        defLogger{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger == nil {
		return s
	}
	s.logger = logger
	s.provider.WithLogger(logger)
	s.twoFactor.WithLogger(logger)
	s.verifier.WithLogger(logger)
	s.settings.WithLogger(logger)
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activity = normalizeActivitySink(sink)
	s.twoFactor.WithActivitySink(sink)
	return s
}

// WithTokenService replaces the token codec, e.g. one with a test clock
func (s *Auther) WithTokenService(tokens TokenService) *Auther {
	if tokens == nil {
		return s
	}
	s.tokens = tokens
	s.verifier.tokens = tokens
	return s
}

// WithTwoFactorEngine replaces the 2FA engine
func (s *Auther) WithTwoFactorEngine(engine *TwoFactorEngine) *Auther {
	if engine != nil {
		s.twoFactor = engine
	}
	return s
}

// WithDenylist enables token revocation on logout
func (s *Auther) WithDenylist(d TokenDenylist) *Auther {
	s.denylist = d
	s.verifier.WithDenylist(d)
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokens
}

// Verifier returns the session verifier sharing this authority's codec
func (s *Auther) Verifier() *SessionVerifier {
	return s.verifier
}

// TwoFactor returns the 2FA engine
func (s *Auther) TwoFactor() *TwoFactorEngine {
	return s.twoFactor
}

// Settings returns the settings service
func (s *Auther) Settings() *SettingsService {
	return s.settings
}

// AccessTTL is the access token lifetime
func (s *Auther) AccessTTL() time.Duration {
	return s.accessTTL
}

// RefreshTTL is the refresh token lifetime
func (s *Auther) RefreshTTL() time.Duration {
	return s.refreshTTL
}

func (s *Auther) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if err := req.Validate(); err != nil {
		return nil, FromValidation(err)
	}

	email := NormalizeEmail(req.Email)

	user, err := s.provider.VerifyIdentity(ctx, email, req.Password)
	if err != nil {
		s.emitLoginFailure(ctx, "", email, err)
		return nil, err
	}

	if user.HasActiveTwoFactor() {
		code := strings.TrimSpace(req.TOTPCode)
		if code == "" {
			s.emitLoginFailure(ctx, user.ID.String(), email, ErrTOTPRequired)
			return nil, ErrTOTPRequired
		}

		ok, err := s.twoFactor.Challenge(ctx, user, code)
		if err != nil {
			s.logger.Error("Login two factor challenge error: %v", err)
			return nil, err
		}
		if !ok {
			s.emitLoginFailure(ctx, user.ID.String(), email, ErrInvalidTOTP)
			return nil, ErrInvalidTOTP
		}
	}

	access, accessExp, err := s.tokens.Issue(user.ID.String(), PurposeAccess, s.accessTTL)
	if err != nil {
		return nil, err
	}

	refresh, refreshExp, err := s.tokens.Issue(user.ID.String(), PurposeRefresh, s.refreshTTL)
	if err != nil {
		return nil, err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     userActor(user.ID.String()),
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"two_factor": user.HasActiveTwoFactor(),
		},
	})

	return &LoginResult{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		User:             user,
	}, nil
}

// Refresh exchanges a refresh token for a new access token. Every failure
// of the presented token is reported as ErrInvalidRefreshToken.
func (s *Auther) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	refreshToken = stripBearer(refreshToken)
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}

	claims, err := s.tokens.Validate(refreshToken, PurposeRefresh)
	if err != nil {
		if IsCategory(err, CategoryInfrastructure) {
			return nil, err
		}
		return nil, wrapSentinel(ErrInvalidRefreshToken, err, nil)
	}

	revoked, err := isRevoked(ctx, s.denylist, claims.TokenID())
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrInvalidRefreshToken
	}

	userID, err := uuid.Parse(claims.UserID())
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	if _, err := s.repo.Users().GetByID(ctx, userID); err != nil {
		if IsRecordNotFound(err) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	access, accessExp, err := s.tokens.Issue(userID.String(), PurposeAccess, s.accessTTL)
	if err != nil {
		return nil, err
	}

	result := &RefreshResult{
		AccessToken:     access,
		AccessExpiresAt: accessExp,
	}

	if s.rotateRefresh && s.denylist != nil {
		if err := s.denylist.Revoke(ctx, claims.TokenID(), claims.Expires()); err != nil {
			return nil, WrapInfrastructure(err, "failed to revoke rotated refresh token")
		}
		refresh, refreshExp, err := s.tokens.Issue(userID.String(), PurposeRefresh, s.refreshTTL)
		if err != nil {
			return nil, err
		}
		result.RefreshToken = refresh
		result.RefreshExpiresAt = refreshExp
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventTokenRefreshed,
		Actor:     userActor(userID.String()),
		UserID:    userID.String(),
		Metadata: map[string]any{
			"rotated": result.RefreshToken != "",
		},
	})

	return result, nil
}

// Logout always succeeds. With a denylist configured both tokens are
// revoked until their natural expiry, otherwise it is up to the client to
// drop them.
func (s *Auther) Logout(ctx context.Context, accessToken, refreshToken string) {
	var userID string

	revoke := func(raw string, purpose TokenPurpose) {
		raw = stripBearer(raw)
		if raw == "" {
			return
		}
		claims, err := s.tokens.Validate(raw, purpose)
		if err != nil {
			return
		}
		userID = claims.UserID()
		if s.denylist == nil {
			return
		}
		if err := s.denylist.Revoke(ctx, claims.TokenID(), claims.Expires()); err != nil {
			s.logger.Warn("Logout failed to revoke %s token: %v", purpose, err)
		}
	}

	revoke(accessToken, PurposeAccess)
	revoke(refreshToken, PurposeRefresh)

	if userID != "" {
		recordActivity(ctx, s.activity, s.logger, ActivityEvent{
			EventType: ActivityEventLogout,
			Actor:     userActor(userID),
			UserID:    userID,
		})
	}
}

// GetSession resolves the access token and loads settings, creating the
// defaults for accounts that have none.
func (s *Auther) GetSession(ctx context.Context, accessToken string) (*Session, error) {
	identity, err := s.verifier.Authenticate(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return s.SessionFor(ctx, identity)
}

// SessionFor builds the session of an already authenticated identity
func (s *Auther) SessionFor(ctx context.Context, identity *AuthenticatedIdentity) (*Session, error) {
	settings, err := s.settings.View(ctx, identity.ID)
	if err != nil {
		return nil, err
	}

	keys, err := s.repo.APIKeys().ListByUser(ctx, identity.ID)
	if err != nil {
		return nil, err
	}

	return &Session{
		User:     identity,
		Settings: settings,
		APIKeys:  keys,
	}, nil
}

func (s *Auther) emitLoginFailure(ctx context.Context, userID, email string, err error) {
	actor := ActorRef{Type: "unknown"}
	if userID != "" {
		actor = userActor(userID)
	}
	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Actor:     actor,
		UserID:    userID,
		Metadata: map[string]any{
			"email": email,
			"error": err.Error(),
		},
	})
}

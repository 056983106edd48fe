package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"

	"github.com/promptlift/go-auth/middleware/jwtware"
)

const (
	AccessCookieName   = "access_token"
	RefreshCookieName  = "refresh_token"
	RefreshTokenHeader = "X-Refresh-Token"

	environmentDevelopment = "development"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// RouteAuthenticator owns the HTTP side of sessions: cookies, the protected
// route middleware and error rendering.
type RouteAuthenticator struct {
	auth         *Auther
	cfg          Config
	contextKey   string
	Logger       Logger
	ErrorHandler func(c *fiber.Ctx, err error) error
}

func NewHTTPAuthenticator(auther *Auther, cfg Config) *RouteAuthenticator {
	a := &RouteAuthenticator{
		auth:       auther,
		cfg:        cfg,
		contextKey: DefaultContextKey,
		Logger:     defLogger{},
	}
	a.ErrorHandler = a.defaultErrHandler
	return a
}

func (a *RouteAuthenticator) WithLogger(logger Logger) *RouteAuthenticator {
	if logger != nil {
		a.Logger = logger
	}
	return a
}

// ProtectedRoute rejects requests without a valid access token. The access
// cookie is read first, then the Authorization header.
func (a *RouteAuthenticator) ProtectedRoute() fiber.Handler {
	return jwtware.New(jwtware.Config{
		ContextKey:      a.contextKey,
		TokenLookup:     "cookie:" + AccessCookieName + ",header:" + fiber.HeaderAuthorization,
		Authenticate:    authenticateAdapter(a.auth.Verifier()),
		ContextEnricher: ContextEnricherAdapter,
		ErrorHandler:    errorHandlerAdapter(a.ErrorHandler),
	})
}

// Identity returns the caller resolved by ProtectedRoute
func (a *RouteAuthenticator) Identity(c *fiber.Ctx) (*AuthenticatedIdentity, error) {
	identity, ok := IdentityFromFiber(c, a.contextKey)
	if !ok {
		return nil, ErrMissingToken
	}
	return identity, nil
}

// accessToken reads the raw access token from the cookie or the header
func (a *RouteAuthenticator) accessToken(c *fiber.Ctx) string {
	if t := c.Cookies(AccessCookieName); t != "" {
		return t
	}
	return stripBearer(c.Get(fiber.HeaderAuthorization))
}

// refreshToken reads the raw refresh token from the cookie, the dedicated
// header or the Authorization header, in that order.
func (a *RouteAuthenticator) refreshToken(c *fiber.Ctx) string {
	if t := c.Cookies(RefreshCookieName); t != "" {
		return t
	}
	if t := strings.TrimSpace(c.Get(RefreshTokenHeader)); t != "" {
		return t
	}
	return stripBearer(c.Get(fiber.HeaderAuthorization))
}

func (a *RouteAuthenticator) setSessionCookies(c *fiber.Ctx, access string, accessExp time.Time, refresh string, refreshExp time.Time) {
	if access != "" {
		a.setCookieToken(c, AccessCookieName, access, a.auth.AccessTTL(), accessExp)
	}
	if refresh != "" {
		a.setCookieToken(c, RefreshCookieName, refresh, a.auth.RefreshTTL(), refreshExp)
	}
}

func (a *RouteAuthenticator) clearSessionCookies(c *fiber.Ctx) {
	a.cookieDel(c, AccessCookieName)
	a.cookieDel(c, RefreshCookieName)
}

func (a *RouteAuthenticator) setCookieToken(c *fiber.Ctx, name, val string, ttl time.Duration, expires time.Time) {
	if expires.IsZero() {
		expires = time.Now().Add(ttl)
	}
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    val,
		Path:     "/",
		Domain:   a.cfg.GetCookieDomain(),
		MaxAge:   int(ttl.Seconds()),
		Expires:  expires,
		HTTPOnly: true,
		Secure:   a.cfg.GetCookieSecure(),
		SameSite: a.sameSite(),
	})
}

func (a *RouteAuthenticator) cookieDel(c *fiber.Ctx, name string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   a.cfg.GetCookieDomain(),
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   a.cfg.GetCookieSecure(),
		SameSite: a.sameSite(),
	})
}

func (a *RouteAuthenticator) sameSite() string {
	switch strings.ToLower(a.cfg.GetCookieSameSite()) {
	case "strict":
		return fiber.CookieSameSiteStrictMode
	case "none":
		return fiber.CookieSameSiteNoneMode
	default:
		return fiber.CookieSameSiteLaxMode
	}
}

func (a *RouteAuthenticator) defaultErrHandler(c *fiber.Ctx, err error) error {
	return RenderError(c, err, a.cfg.GetEnvironment() == environmentDevelopment, a.Logger)
}

// NewFiberErrorHandler renders errors that escape route handlers, including
// fiber's own (unknown route, body too large).
func NewFiberErrorHandler(cfg Config, logger Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = defLogger{}
	}
	dev := cfg.GetEnvironment() == environmentDevelopment
	return func(c *fiber.Ctx, err error) error {
		return RenderError(c, err, dev, logger)
	}
}

// RenderError writes err as an ErrorResponse. Internals are only exposed
// in development.
func RenderError(c *fiber.Ctx, err error, development bool, logger Logger) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(ErrorResponse{
			Error:   strings.ReplaceAll(strings.ToLower(http.StatusText(fiberErr.Code)), " ", "_"),
			Message: fiberErr.Message,
		})
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, CategoryInfrastructure, "an unexpected server error occurred").
			WithTextCode("internal_error").
			WithCode(goerrors.CodeInternal)
	}

	status := StatusCode(richErr)
	if status >= fiber.StatusInternalServerError {
		logger.Error("request %s %s failed: %v", c.Method(), c.Path(), err)
	} else {
		logger.Debug("request %s %s rejected: %s", c.Method(), c.Path(), richErr.TextCode)
	}

	resp := ErrorResponse{
		Error:   richErr.TextCode,
		Message: richErr.Message,
	}

	if fields := richErr.ValidationMap(); len(fields) > 0 {
		resp.Details = map[string]any{"fields": fields}
	}

	if development {
		if resp.Details == nil {
			resp.Details = map[string]any{}
		}
		resp.Details["category"] = richErr.Category.String()
		if cause := causeOf(richErr); cause != nil {
			resp.Details["cause"] = cause.Error()
		}
	}

	return c.Status(status).JSON(resp)
}

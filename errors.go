package auth

import (
	"errors"
	"net/http"
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

// Categories used by this package. Most are go-errors categories; the two
// extensions keep stale resources and dependency failures apart from the rest.
var (
	CategoryValidation     = goerrors.CategoryValidation
	CategoryConflict       = goerrors.CategoryConflict
	CategoryAuth           = goerrors.CategoryAuth
	CategoryNotFound       = goerrors.CategoryNotFound
	CategoryExpired        = goerrors.CategoryValidation.Extend("expired")
	CategoryInfrastructure = goerrors.CategoryExternal.Extend("infrastructure")
)

var categoryStatus = map[goerrors.Category]int{
	goerrors.CategoryValidation: http.StatusBadRequest,
	goerrors.CategoryBadInput:   http.StatusBadRequest,
	goerrors.CategoryConflict:   http.StatusConflict,
	goerrors.CategoryAuth:       http.StatusUnauthorized,
	goerrors.CategoryAuthz:      http.StatusForbidden,
	goerrors.CategoryNotFound:   http.StatusNotFound,
	goerrors.CategoryRateLimit:  http.StatusTooManyRequests,
	CategoryExpired:             http.StatusBadRequest,
}

// NewValidationError malformed input, 400
func NewValidationError(message string) *goerrors.Error {
	return goerrors.New(message, CategoryValidation).
		WithTextCode("validation_error").
		WithCode(goerrors.CodeBadRequest)
}

// NewConflictError duplicate resource, 409
func NewConflictError(message string) *goerrors.Error {
	return goerrors.New(message, CategoryConflict).
		WithTextCode("conflict").
		WithCode(goerrors.CodeConflict)
}

// NewAuthError credential or token failure, 401
func NewAuthError(textCode, message string) *goerrors.Error {
	return goerrors.New(message, CategoryAuth).
		WithTextCode(textCode).
		WithCode(goerrors.CodeUnauthorized)
}

// NewNotFoundError missing resource, 404
func NewNotFoundError(message string) *goerrors.Error {
	return goerrors.New(message, CategoryNotFound).
		WithTextCode("not_found").
		WithCode(goerrors.CodeNotFound)
}

// NewExpiredError stale resource, 400
func NewExpiredError(message string) *goerrors.Error {
	return goerrors.New(message, CategoryExpired).
		WithTextCode("expired").
		WithCode(goerrors.CodeBadRequest)
}

// WrapInfrastructure marks err as a store or network failure. Errors that
// already are *goerrors.Error pass through untouched.
func WrapInfrastructure(err error, message string) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return err
	}
	return goerrors.Wrap(err, CategoryInfrastructure, message).
		WithTextCode("infrastructure_error").
		WithCode(goerrors.CodeInternal)
}

// wrapValidation is a validation error caused by err
func wrapValidation(err error, message string) *goerrors.Error {
	out := NewValidationError(message)
	out.Source = err
	return out
}

// wrapSentinel clones base with cause as its source and md merged into its
// metadata. base stays in the unwrap chain, so errors.Is keeps matching it.
func wrapSentinel(base *goerrors.Error, cause error, md map[string]any) *goerrors.Error {
	clone := base.Clone()
	clone.Timestamp = time.Now()
	clone.Source = &sentinelCause{base: base, cause: cause}
	if len(md) > 0 {
		clone.WithMetadata(md)
	}
	return clone
}

type sentinelCause struct {
	base  *goerrors.Error
	cause error
}

func (s *sentinelCause) Error() string {
	if s.cause != nil {
		return s.cause.Error()
	}
	return s.base.Message
}

func (s *sentinelCause) Unwrap() []error {
	if s.cause == nil {
		return []error{s.base}
	}
	return []error{s.base, s.cause}
}

// causeOf returns the underlying error of a wrapped sentinel, or the direct
// source for everything else.
func causeOf(e *goerrors.Error) error {
	var sc *sentinelCause
	if errors.As(e.Source, &sc) {
		return sc.cause
	}
	return e.Source
}

// FromValidation converts ozzo validation errors into a validation error
// with one field entry per offending field.
func FromValidation(err error) error {
	if err == nil {
		return nil
	}

	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return goerrors.Wrap(err, CategoryValidation, err.Error()).
			WithTextCode("validation_error").
			WithCode(goerrors.CodeBadRequest)
	}

	fields := make(map[string]string, len(fieldErrs))
	for field, ferr := range fieldErrs {
		if ferr != nil {
			fields[field] = ferr.Error()
		}
	}

	out := goerrors.NewValidationFromMap("invalid request", fields).
		WithTextCode("validation_error").
		WithCode(goerrors.CodeBadRequest)
	sort.Slice(out.ValidationErrors, func(i, j int) bool {
		return out.ValidationErrors[i].Field < out.ValidationErrors[j].Field
	})
	return out
}

// StatusCode returns the HTTP status for e: its explicit code, else the
// status of its category, else 500.
func StatusCode(e *goerrors.Error) int {
	if e == nil {
		return http.StatusInternalServerError
	}
	if e.Code != 0 {
		return e.Code
	}
	if status, ok := categoryStatus[e.Category]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// HTTPStatus maps any error to a status code. Unknown errors are 500.
func HTTPStatus(err error) int {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return StatusCode(richErr)
	}
	return http.StatusInternalServerError
}

// IsCategory reports whether err is a *goerrors.Error of the given category
func IsCategory(err error, category goerrors.Category) bool {
	return goerrors.IsCategory(err, category)
}

// IsRetryable reports whether repeating the same call may succeed.
func IsRetryable(err error) bool {
	return goerrors.IsCategory(err, CategoryInfrastructure)
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	return errors.Is(err, ErrTokenExpired)
}

var (
	// ErrNoEmptyString empty secrets are never hashed
	ErrNoEmptyString = NewValidationError("value must not be empty").WithTextCode("empty_value")

	// ErrInvalidCredentials is returned for unknown emails and wrong passwords alike
	ErrInvalidCredentials = NewAuthError("invalid_credentials", "invalid email or password")
	// ErrTOTPRequired the account has 2FA enabled and no code was sent
	ErrTOTPRequired = NewAuthError("totp_required", "two factor code required")
	// ErrInvalidTOTP the submitted 2FA code did not match
	ErrInvalidTOTP = NewAuthError("invalid_totp", "invalid two factor code")
	// ErrInvalidRefreshToken any refresh token failure
	ErrInvalidRefreshToken = NewAuthError("invalid_refresh_token", "invalid refresh token")
	// ErrMissingToken no bearer token in the request
	ErrMissingToken = NewAuthError("missing_token", "missing authentication token")
	// ErrInvalidToken malformed, badly signed, revoked or orphaned token
	ErrInvalidToken = NewAuthError("invalid_token", "invalid token")
	// ErrTokenExpired token past its expiry
	ErrTokenExpired = NewAuthError("token_expired", "token expired")

	// ErrEmailTaken registration with an existing email
	ErrEmailTaken = NewConflictError("email already registered").WithTextCode("email_taken")
	// ErrAlreadyVerified resend requested for a verified account
	ErrAlreadyVerified = NewValidationError("email already verified").WithTextCode("already_verified")
	// ErrUserNotFound subject does not exist
	ErrUserNotFound = NewNotFoundError("user not found").WithTextCode("user_not_found")

	// ErrInvalid2FAToken enrollment confirmation code did not match
	ErrInvalid2FAToken = NewValidationError("invalid two factor token").WithTextCode("invalid_2fa_token")
	// ErrTwoFactorNotEnrolled confirmation without a pending secret
	ErrTwoFactorNotEnrolled = NewNotFoundError("two factor authentication not set up").
				WithTextCode("2fa_not_enrolled").
				WithCode(goerrors.CodeBadRequest)

	// ErrVerificationTokenInvalid unknown token or wrong purpose
	ErrVerificationTokenInvalid = NewNotFoundError("invalid or expired token").
					WithTextCode("invalid_or_expired").
					WithCode(goerrors.CodeBadRequest)
	// ErrVerificationTokenExpired token found but past expires_at
	ErrVerificationTokenExpired = NewExpiredError("invalid or expired token").
					WithTextCode("invalid_or_expired")

	// ErrAPIKeyNotFound key does not exist or belongs to someone else
	ErrAPIKeyNotFound = NewNotFoundError("api key not found").WithTextCode("api_key_not_found")
)

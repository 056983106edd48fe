package auth

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/promptlift/go-auth/middleware/jwtware"
)

// ContextEnricherAdapter stores the identity resolved by jwtware in the
// request context so services below the HTTP layer can read it with
// FromContext.
func ContextEnricherAdapter(ctx context.Context, identity any) context.Context {
	id, ok := identity.(*AuthenticatedIdentity)
	if !ok || id == nil {
		return ctx
	}
	return WithContext(ctx, id)
}

// authenticateAdapter exposes a SessionVerifier as a jwtware.AuthenticateFunc
func authenticateAdapter(verifier *SessionVerifier) jwtware.AuthenticateFunc {
	return func(ctx context.Context, token string) (any, error) {
		identity, err := verifier.Authenticate(ctx, token)
		if err != nil {
			return nil, err
		}
		return identity, nil
	}
}

// errorHandlerAdapter reports a request without any token as ErrMissingToken
func errorHandlerAdapter(next func(c *fiber.Ctx, err error) error) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if errors.Is(err, jwtware.ErrJWTMissingOrMalformed) {
			err = ErrMissingToken
		}
		return next(c, err)
	}
}

package auth_test

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/promptlift/go-auth"
)

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return out
}

func renderApp(err error, development bool, logger auth.Logger) *fiber.App {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return auth.RenderError(c, err, development, logger)
	})
	return app
}

func TestRenderError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "auth", err: auth.ErrInvalidCredentials, wantStatus: 401, wantCode: "invalid_credentials"},
		{name: "conflict", err: auth.ErrEmailTaken, wantStatus: 409, wantCode: "email_taken"},
		{name: "expired", err: auth.ErrVerificationTokenExpired, wantStatus: 400, wantCode: "invalid_or_expired"},
		{name: "fiber", err: fiber.ErrNotFound, wantStatus: 404, wantCode: "not_found"},
		{name: "fiber payload", err: fiber.ErrRequestEntityTooLarge, wantStatus: 413, wantCode: "request_entity_too_large"},
		{name: "unknown", err: errors.New("boom"), wantStatus: 500, wantCode: "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := renderApp(tt.err, false, &testLogger{}).Test(httptest.NewRequest("GET", "/", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			body := decodeBody(t, resp)
			assert.Equal(t, tt.wantCode, body["error"])
			assert.NotEmpty(t, body["message"])
			assert.NotContains(t, body, "details")
		})
	}
}

func TestRenderErrorDetails(t *testing.T) {
	validationErr := auth.FromValidation(validation.Errors{"email": errors.New("cannot be blank")})

	resp, err := renderApp(validationErr, false, &testLogger{}).Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	body := decodeBody(t, resp)
	details, ok := body["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"email": "cannot be blank"}, details["fields"])
	assert.NotContains(t, details, "category")

	logger := &testLogger{}
	resp, err = renderApp(errors.New("db exploded"), true, logger).Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	body = decodeBody(t, resp)
	details, ok = body["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, auth.CategoryInfrastructure.String(), details["category"])
	assert.Equal(t, "db exploded", details["cause"])
	assert.Contains(t, logger.joined(), "ERR request GET / failed")
}

func TestFiberErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{
		ErrorHandler: auth.NewFiberErrorHandler(newTestConfig(), &testLogger{}),
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return auth.ErrUserNotFound
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "not_found", decodeBody(t, resp)["error"])

	resp, err = app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "user_not_found", decodeBody(t, resp)["error"])
}

func TestProtectedRoute(t *testing.T) {
	f := newAutherFixture(t, nil)
	httpAuth := auth.NewHTTPAuthenticator(f.auther, newTestConfig()).WithLogger(&testLogger{})

	app := fiber.New()
	app.Get("/me", httpAuth.ProtectedRoute(), func(c *fiber.Ctx) error {
		identity, err := httpAuth.Identity(c)
		if err != nil {
			return err
		}
		fromCtx, ok := auth.FromContext(c.UserContext())
		if !ok || fromCtx.ID != identity.ID {
			return c.SendStatus(fiber.StatusTeapot)
		}
		return c.SendString(identity.Email)
	})

	login, err := f.auther.Login(t.Context(), auth.LoginRequest{Email: "alice@example.com", Password: "Sup3rSecret!"})
	require.NoError(t, err)

	t.Run("header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/me", nil)
		req.Header.Set("Authorization", "Bearer "+login.AccessToken)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "alice@example.com", string(body))
	})

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/me", nil)
		req.AddCookie(&http.Cookie{Name: auth.AccessCookieName, Value: login.AccessToken})
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("missing", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/me", nil))
		require.NoError(t, err)
		assert.Equal(t, 401, resp.StatusCode)
		assert.Equal(t, "missing_token", decodeBody(t, resp)["error"])
	})

	t.Run("refresh token is not an access token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/me", nil)
		req.Header.Set("Authorization", "Bearer "+login.RefreshToken)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, 401, resp.StatusCode)
		assert.Equal(t, "invalid_token", decodeBody(t, resp)["error"])
	})
}

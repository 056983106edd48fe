package auth

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// EnhanceRateLimit is the number of enhance calls allowed per IP per window
const (
	EnhanceRateLimit  = 5
	EnhanceRateWindow = time.Minute
)

// PromptEnhancer rewrites a prompt using a text generation provider
type PromptEnhancer interface {
	Enhance(ctx context.Context, apiKey, model, prompt string) (string, error)
}

// EnhanceRequest is the payload of POST /enhance
type EnhanceRequest struct {
	Prompt string `json:"prompt"`
}

func (r EnhanceRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Prompt, validation.Required, validation.Length(1, 10000)),
	)
}

// EnhanceResponse echoes the original prompt next to the rewrite
type EnhanceResponse struct {
	OriginalPrompt string `json:"original_prompt"`
	EnhancedPrompt string `json:"enhanced_prompt"`
}

// ErrNoProviderKey neither the user nor the server has a provider key
var ErrNoProviderKey = NewValidationError("no api key available for prompt enhancement").
	WithTextCode("no_api_key")

// ErrEnhanceFailed wraps provider failures
var ErrEnhanceFailed = goerrors.New("prompt enhancement failed", CategoryInfrastructure).
	WithTextCode("enhance_failed").
	WithCode(fiber.StatusBadGateway)

// RegisterSettingsRoutes mounts settings, key management and prompt
// enhancement, all behind the session middleware.
func RegisterSettingsRoutes(app fiber.Router, controller *SettingsController) {
	protected := controller.HTTP.ProtectedRoute()

	app.Get("/settings", protected, controller.SettingsGet).Name("settings.get")
	app.Put("/settings", protected, controller.SettingsUpdate).Name("settings.put")

	app.Get("/api-keys", protected, controller.APIKeysList).Name("api-keys.get")
	app.Post("/api-keys", protected, controller.APIKeysCreate).Name("api-keys.post")
	app.Delete("/api-keys/:id", protected, controller.APIKeysDelete).Name("api-keys.delete")

	if controller.Enhancer != nil {
		app.Post("/enhance", controller.limiter(), protected, controller.EnhancePost).Name("enhance.post")
	}
}

type SettingsController struct {
	Logger    Logger
	HTTP      *RouteAuthenticator
	Settings  *SettingsService
	APIKeys   *APIKeyService
	Enhancer  PromptEnhancer
	ServerKey string
	RateLimit int
}

func NewSettingsController(httpAuth *RouteAuthenticator, settings *SettingsService, keys *APIKeyService) *SettingsController {
	return &SettingsController{
		Logger:    defLogger{},
		HTTP:      httpAuth,
		Settings:  settings,
		APIKeys:   keys,
		RateLimit: EnhanceRateLimit,
	}
}

func (s *SettingsController) WithLogger(logger Logger) *SettingsController {
	if logger != nil {
		s.Logger = logger
	}
	return s
}

// WithEnhancer enables POST /enhance. serverKey is used when the caller has
// no key of their own selected.
func (s *SettingsController) WithEnhancer(e PromptEnhancer, serverKey string) *SettingsController {
	s.Enhancer = e
	s.ServerKey = strings.TrimSpace(serverKey)
	return s
}

func (s *SettingsController) limiter() fiber.Handler {
	limit := s.RateLimit
	if limit <= 0 {
		limit = EnhanceRateLimit
	}
	return limiter.New(limiter.Config{
		Max:        limit,
		Expiration: EnhanceRateWindow,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(ErrorResponse{
				Error:   "rate_limited",
				Message: "too many requests, try again later",
			})
		},
	})
}

func (s *SettingsController) fail(c *fiber.Ctx, err error) error {
	return s.HTTP.ErrorHandler(c, err)
}

func (s *SettingsController) SettingsGet(c *fiber.Ctx) error {
	identity, err := s.HTTP.Identity(c)
	if err != nil {
		return s.fail(c, err)
	}

	view, err := s.Settings.View(c.UserContext(), identity.ID)
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(view)
}

func (s *SettingsController) SettingsUpdate(c *fiber.Ctx) error {
	identity, err := s.HTTP.Identity(c)
	if err != nil {
		return s.fail(c, err)
	}

	payload := new(SettingsUpdate)
	if err := c.BodyParser(payload); err != nil {
		return s.fail(c, wrapValidation(err, "invalid request body"))
	}

	view, err := s.Settings.Update(c.UserContext(), identity.ID, *payload)
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(view)
}

func (s *SettingsController) APIKeysList(c *fiber.Ctx) error {
	identity, err := s.HTTP.Identity(c)
	if err != nil {
		return s.fail(c, err)
	}

	keys, err := s.APIKeys.List(c.UserContext(), identity.ID)
	if err != nil {
		return s.fail(c, err)
	}

	if keys == nil {
		keys = []*APIKey{}
	}

	return c.JSON(fiber.Map{
		"api_keys": keys,
	})
}

func (s *SettingsController) APIKeysCreate(c *fiber.Ctx) error {
	identity, err := s.HTTP.Identity(c)
	if err != nil {
		return s.fail(c, err)
	}

	payload := new(AddAPIKeyRequest)
	if err := c.BodyParser(payload); err != nil {
		return s.fail(c, wrapValidation(err, "invalid request body"))
	}

	key, err := s.APIKeys.Add(c.UserContext(), identity.ID, *payload)
	if err != nil {
		return s.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"api_key": key,
	})
}

func (s *SettingsController) APIKeysDelete(c *fiber.Ctx) error {
	identity, err := s.HTTP.Identity(c)
	if err != nil {
		return s.fail(c, err)
	}

	keyID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return s.fail(c, ErrAPIKeyNotFound)
	}

	if err := s.APIKeys.Delete(c.UserContext(), identity.ID, keyID); err != nil {
		return s.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "api key deleted",
	})
}

func (s *SettingsController) EnhancePost(c *fiber.Ctx) error {
	identity, err := s.HTTP.Identity(c)
	if err != nil {
		return s.fail(c, err)
	}

	payload := new(EnhanceRequest)
	if err := c.BodyParser(payload); err != nil {
		return s.fail(c, wrapValidation(err, "invalid request body"))
	}

	if err := payload.Validate(); err != nil {
		return s.fail(c, FromValidation(err))
	}

	ctx := c.UserContext()

	settings, err := s.Settings.Get(ctx, identity.ID)
	if err != nil {
		return s.fail(c, err)
	}

	apiKey, err := s.providerKey(ctx, identity.ID, settings)
	if err != nil {
		return s.fail(c, err)
	}

	enhanced, err := s.Enhancer.Enhance(ctx, apiKey, settings.PreferredModel, payload.Prompt)
	if err != nil {
		s.Logger.Error("enhance failed for user %s: %v", identity.ID, err)
		return s.fail(c, wrapSentinel(ErrEnhanceFailed, err, nil))
	}

	return c.JSON(EnhanceResponse{
		OriginalPrompt: payload.Prompt,
		EnhancedPrompt: enhanced,
	})
}

// providerKey picks the caller's selected key when they opted in, else the
// server key.
func (s *SettingsController) providerKey(ctx context.Context, userID uuid.UUID, settings *UserSettings) (string, error) {
	if settings.UseOwnAPI && settings.SelectedKeyID != nil {
		key, err := s.APIKeys.Reveal(ctx, userID, *settings.SelectedKeyID)
		if err == nil {
			return key, nil
		}
		if !IsCategory(err, CategoryNotFound) {
			return "", err
		}
		s.Logger.Warn("selected key for user %s is gone, using server key", userID)
	}

	if s.ServerKey == "" {
		return "", ErrNoProviderKey
	}
	return s.ServerKey, nil
}

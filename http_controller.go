package auth

import (
	"github.com/gofiber/fiber/v2"
)

// RegisterAuthRoutes mounts the account and session endpoints on app
func RegisterAuthRoutes(app fiber.Router, controller *AuthController) {
	protected := controller.HTTP.ProtectedRoute()

	app.Post(controller.Routes.Register, controller.RegistrationCreate).Name("register.post")
	app.Post(controller.Routes.Login, controller.LoginPost).Name("sign-in.post")
	app.Post(controller.Routes.Refresh, controller.RefreshPost).Name("refresh.post")
	app.Post(controller.Routes.Logout, controller.LogOut).Name("sign-out.post")
	app.Get(controller.Routes.Session, protected, controller.SessionGet).Name("session.get")

	app.Post(controller.Routes.TwoFactorSetup, protected, controller.TwoFactorSetup).Name("2fa-setup.post")
	app.Post(controller.Routes.TwoFactorVerify, protected, controller.TwoFactorVerify).Name("2fa-verify.post")

	app.Post(controller.Routes.PasswordReset+"/request", controller.PasswordResetPost).Name("pwd-reset.post")
	app.Post(controller.Routes.PasswordReset+"/confirm", controller.PasswordResetExecute).Name("pwd-reset-do.post")

	app.Get(controller.Routes.VerifyEmail, controller.VerifyEmailGet).Name("verify-email.get")
	app.Post(controller.Routes.VerifyEmail+"/resend", controller.VerifyEmailResend).Name("verify-email-resend.post")
}

type AuthControllerRoutes struct {
	Register        string
	Login           string
	Refresh         string
	Logout          string
	Session         string
	TwoFactorSetup  string
	TwoFactorVerify string
	PasswordReset   string
	VerifyEmail     string
}

type AuthController struct {
	Logger Logger
	Repo   RepositoryManager
	Routes *AuthControllerRoutes
	Auther *Auther
	HTTP   *RouteAuthenticator

	Register             *RegisterUserHandler
	VerifyEmail          *VerifyEmailHandler
	ResendVerification   *ResendVerificationHandler
	RequestPasswordReset *RequestPasswordResetHandler
	ConfirmPasswordReset *ConfirmPasswordResetHandler
}

type AuthControllerOption func(*AuthController) *AuthController

// WithControllerLogger sets the logger on the controller and its handlers
func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger == nil {
			return c
		}
		c.Logger = logger
		c.Register.WithLogger(logger)
		c.VerifyEmail.WithLogger(logger)
		c.ResendVerification.WithLogger(logger)
		c.RequestPasswordReset.WithLogger(logger)
		c.ConfirmPasswordReset.WithLogger(logger)
		return c
	}
}

// WithControllerMailer delivers verification and reset links through m
func WithControllerMailer(m Mailer) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Register.WithMailer(m)
		c.ResendVerification.WithMailer(m)
		c.RequestPasswordReset.WithMailer(m)
		return c
	}
}

// WithControllerActivitySink emits account events to sink
func WithControllerActivitySink(sink ActivitySink) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Register.WithActivitySink(sink)
		c.VerifyEmail.WithActivitySink(sink)
		c.RequestPasswordReset.WithActivitySink(sink)
		c.ConfirmPasswordReset.WithActivitySink(sink)
		return c
	}
}

// WithControllerVerificationManager shares one token manager across handlers
func WithControllerVerificationManager(m *VerificationManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Register.WithVerificationManager(m)
		c.VerifyEmail.WithVerificationManager(m)
		c.ResendVerification.WithVerificationManager(m)
		c.RequestPasswordReset.WithVerificationManager(m)
		c.ConfirmPasswordReset.WithVerificationManager(m)
		return c
	}
}

// WithControllerRoutes overrides the default paths
func WithControllerRoutes(routes *AuthControllerRoutes) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if routes != nil {
			c.Routes = routes
		}
		return c
	}
}

func NewAuthController(repo RepositoryManager, auther *Auther, httpAuth *RouteAuthenticator, cfg Config, opts ...AuthControllerOption) *AuthController {
	if repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if auther == nil || httpAuth == nil {
		panic("Missing Auther in auth controller...")
	}

	hasher := NewBcryptHasher(cfg.GetBcryptCost())

	c := &AuthController{
		Logger: defLogger{},
		Repo:   repo,
		Auther: auther,
		HTTP:   httpAuth,
		Routes: &AuthControllerRoutes{
			Register:        "/register",
			Login:           "/login",
			Refresh:         "/refresh",
			Logout:          "/logout",
			Session:         "/session",
			TwoFactorSetup:  "/2fa/setup",
			TwoFactorVerify: "/2fa/verify",
			PasswordReset:   "/password-reset",
			VerifyEmail:     "/verify-email",
		},
		Register:             NewRegisterUserHandler(repo, cfg).WithHasher(hasher),
		VerifyEmail:          NewVerifyEmailHandler(repo),
		ResendVerification:   NewResendVerificationHandler(repo, cfg),
		RequestPasswordReset: NewRequestPasswordResetHandler(repo, cfg),
		ConfirmPasswordReset: NewConfirmPasswordResetHandler(repo, cfg).WithHasher(hasher),
	}

	for _, opt := range opts {
		c = opt(c)
	}

	return c
}

func (a *AuthController) fail(c *fiber.Ctx, err error) error {
	return a.HTTP.ErrorHandler(c, err)
}

func (a *AuthController) bind(c *fiber.Ctx, payload any) error {
	if err := c.BodyParser(payload); err != nil {
		return wrapValidation(err, "invalid request body")
	}
	return nil
}

func (a *AuthController) RegistrationCreate(c *fiber.Ctx) error {
	payload := new(RegisterUserMessage)
	if err := a.bind(c, payload); err != nil {
		return a.fail(c, err)
	}

	var created *User
	payload.OnResponse = func(user *User) {
		created = user
	}

	if err := a.Register.Execute(c.UserContext(), *payload); err != nil {
		return a.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"user": created,
	})
}

func (a *AuthController) LoginPost(c *fiber.Ctx) error {
	payload := new(LoginRequest)
	if err := a.bind(c, payload); err != nil {
		return a.fail(c, err)
	}

	result, err := a.Auther.Login(c.UserContext(), *payload)
	if err != nil {
		return a.fail(c, err)
	}

	a.HTTP.setSessionCookies(c, result.AccessToken, result.AccessExpiresAt, result.RefreshToken, result.RefreshExpiresAt)

	return c.JSON(result)
}

func (a *AuthController) RefreshPost(c *fiber.Ctx) error {
	result, err := a.Auther.Refresh(c.UserContext(), a.HTTP.refreshToken(c))
	if err != nil {
		return a.fail(c, err)
	}

	a.HTTP.setSessionCookies(c, result.AccessToken, result.AccessExpiresAt, result.RefreshToken, result.RefreshExpiresAt)

	return c.JSON(result)
}

// LogOut never fails: tokens are revoked when possible and cookies cleared
func (a *AuthController) LogOut(c *fiber.Ctx) error {
	a.Auther.Logout(c.UserContext(), a.HTTP.accessToken(c), a.HTTP.refreshToken(c))
	a.HTTP.clearSessionCookies(c)
	return c.JSON(fiber.Map{
		"message": "logged out",
	})
}

func (a *AuthController) SessionGet(c *fiber.Ctx) error {
	identity, err := a.HTTP.Identity(c)
	if err != nil {
		return a.fail(c, err)
	}

	session, err := a.Auther.SessionFor(c.UserContext(), identity)
	if err != nil {
		return a.fail(c, err)
	}

	return c.JSON(session)
}

func (a *AuthController) TwoFactorSetup(c *fiber.Ctx) error {
	user, err := a.currentUser(c)
	if err != nil {
		return a.fail(c, err)
	}

	enrollment, err := a.Auther.TwoFactor().Enroll(c.UserContext(), user)
	if err != nil {
		return a.fail(c, err)
	}

	return c.JSON(enrollment)
}

type twoFactorVerifyRequest struct {
	Code string `json:"code"`
}

func (a *AuthController) TwoFactorVerify(c *fiber.Ctx) error {
	payload := new(twoFactorVerifyRequest)
	if err := a.bind(c, payload); err != nil {
		return a.fail(c, err)
	}

	user, err := a.currentUser(c)
	if err != nil {
		return a.fail(c, err)
	}

	ok, err := a.Auther.TwoFactor().Confirm(c.UserContext(), user, payload.Code)
	if err != nil {
		return a.fail(c, err)
	}
	if !ok {
		return a.fail(c, ErrInvalid2FAToken)
	}

	return c.JSON(fiber.Map{
		"two_factor_enabled": true,
	})
}

func (a *AuthController) PasswordResetPost(c *fiber.Ctx) error {
	payload := new(RequestPasswordResetMessage)
	if err := a.bind(c, payload); err != nil {
		return a.fail(c, err)
	}

	if err := a.RequestPasswordReset.Execute(c.UserContext(), *payload); err != nil {
		return a.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "if the account exists a reset link has been sent",
	})
}

func (a *AuthController) PasswordResetExecute(c *fiber.Ctx) error {
	payload := new(ConfirmPasswordResetMessage)
	if err := a.bind(c, payload); err != nil {
		return a.fail(c, err)
	}

	if err := a.ConfirmPasswordReset.Execute(c.UserContext(), *payload); err != nil {
		return a.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "password updated",
	})
}

func (a *AuthController) VerifyEmailGet(c *fiber.Ctx) error {
	var verified *User
	msg := VerifyEmailMessage{
		Token: c.Query("token"),
		OnResponse: func(user *User) {
			verified = user
		},
	}

	if err := a.VerifyEmail.Execute(c.UserContext(), msg); err != nil {
		return a.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "email verified",
		"user":    verified,
	})
}

func (a *AuthController) VerifyEmailResend(c *fiber.Ctx) error {
	payload := new(ResendVerificationMessage)
	if err := a.bind(c, payload); err != nil {
		return a.fail(c, err)
	}

	if err := a.ResendVerification.Execute(c.UserContext(), *payload); err != nil {
		return a.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "verification email sent",
	})
}

func (a *AuthController) currentUser(c *fiber.Ctx) (*User, error) {
	identity, err := a.HTTP.Identity(c)
	if err != nil {
		return nil, err
	}

	user, err := a.Repo.Users().GetByID(c.UserContext(), identity.ID)
	if err != nil {
		if IsRecordNotFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return user, nil
}

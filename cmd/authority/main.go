package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	auth "github.com/promptlift/go-auth"
	"github.com/promptlift/go-auth/activitymap"
	"github.com/promptlift/go-auth/config"
	"github.com/promptlift/go-auth/enhance"
	"github.com/promptlift/go-auth/keyvault"
	"github.com/promptlift/go-auth/logging"
	"github.com/promptlift/go-auth/mailer"
	"github.com/promptlift/go-auth/revocation"
	"github.com/promptlift/go-auth/storage"
)

const sweepInterval = time.Hour

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to a YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("authority: %v", err)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.New(os.Stdout, cfg.Logging.Format, cfg.Logging.Level).With("service", "authority")

	db, err := storage.Open(cfg.Dialect(), cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		results, err := storage.Migrate(ctx, db, cfg.Dialect())
		if err != nil {
			return err
		}
		logger.Info("applied %d migrations", len(results))
	}

	repo := auth.NewRepositoryManager(db, auth.WithStoreTimeout(cfg.GetStoreTimeout()))
	if err := repo.Validate(); err != nil {
		return err
	}

	vault, err := keyvault.NewFromHex(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("encryption key: %w", err)
	}

	denylist, closeDenylist, err := newDenylist(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDenylist()

	activity := activitymap.NewLogSink(logger, activitymap.WithoutEmail())

	auther := auth.NewAuthenticator(repo, cfg).
		WithLogger(logger).
		WithActivitySink(activity).
		WithDenylist(denylist)
	auther.TwoFactor().WithSealer(vault)

	httpAuth := auth.NewHTTPAuthenticator(auther, cfg).WithLogger(logger)

	verification := auth.NewVerificationManager(repo)

	authController := auth.NewAuthController(repo, auther, httpAuth, cfg,
		auth.WithControllerLogger(logger),
		auth.WithControllerMailer(newMailer(cfg, logger)),
		auth.WithControllerActivitySink(activity),
		auth.WithControllerVerificationManager(verification),
	)

	keys := auth.NewAPIKeyService(repo, vault).WithLogger(logger)
	settingsController := auth.NewSettingsController(httpAuth, auther.Settings(), keys).
		WithLogger(logger).
		WithEnhancer(enhance.NewClient(), cfg.GoogleAPIKey)

	app := fiber.New(fiber.Config{
		AppName:      "authority",
		ErrorHandler: auth.NewFiberErrorHandler(cfg, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: cfg.IsDevelopment()}))
	app.Use(requestid.New())
	app.Use(helmet.New())
	app.Use(cors.New(corsConfig(cfg)))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if err := db.PingContext(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")
	auth.RegisterAuthRoutes(api, authController)
	auth.RegisterSettingsRoutes(api, settingsController)

	go sweepVerificationTokens(ctx, repo, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", cfg.Addr())
		errCh <- app.Listen(cfg.Addr())
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func newDenylist(ctx context.Context, cfg *config.Config, logger auth.Logger) (auth.TokenDenylist, func(), error) {
	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL not set, revoked tokens are kept in memory")
		return revocation.NewMemory(), func() {}, nil
	}

	store, err := revocation.NewRedisFromURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := store.Ping(pingCtx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("redis: %w", err)
	}

	return store, func() { _ = store.Close() }, nil
}

func newMailer(cfg *config.Config, logger auth.Logger) auth.Mailer {
	if cfg.SMTP.Host == "" {
		if !cfg.IsDevelopment() {
			logger.Warn("SMTP_HOST not set, account emails are only logged")
		}
		return mailer.NewLog(logger, cfg.Server.PublicURL)
	}
	return mailer.NewSMTP(mailer.Config{
		Host:      cfg.SMTP.Host,
		Port:      cfg.SMTP.Port,
		Username:  cfg.SMTP.Username,
		Password:  cfg.SMTP.Password,
		From:      cfg.SMTP.From,
		PublicURL: cfg.Server.PublicURL,
	})
}

func corsConfig(cfg *config.Config) cors.Config {
	origins := cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{cfg.Server.PublicURL}
	}
	return cors.Config{
		AllowOrigins:     strings.Join(origins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Refresh-Token",
		AllowCredentials: true,
	}
}

func sweepVerificationTokens(ctx context.Context, repo auth.RepositoryManager, logger auth.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := repo.VerificationTokens().DeleteExpired(ctx, now)
			if err != nil {
				logger.Warn("verification token sweep failed: %v", err)
				continue
			}
			if n > 0 {
				logger.Debug("swept %d expired verification tokens", n)
			}
		}
	}
}

// Package config loads the authority configuration: defaults, then an
// optional YAML file, then environment overrides.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"gopkg.in/yaml.v3"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

type ServerConfig struct {
	Port           int      `yaml:"port"`
	PublicURL      string   `yaml:"public_url"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	URL          string        `yaml:"url"`
	StoreTimeout time.Duration `yaml:"store_timeout"`
	AutoMigrate  bool          `yaml:"auto_migrate"`
}

type JWTConfig struct {
	AccessSecret    string        `yaml:"access_secret"`
	RefreshSecret   string        `yaml:"refresh_secret"`
	Issuer          string        `yaml:"issuer"`
	Audience        []string      `yaml:"audience"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
	RotateRefresh   bool          `yaml:"rotate_refresh"`
}

type CookieConfig struct {
	Domain   string `yaml:"domain"`
	Secure   bool   `yaml:"secure"`
	SameSite string `yaml:"same_site"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Environment      string         `yaml:"environment"`
	Server           ServerConfig   `yaml:"server"`
	Database         DatabaseConfig `yaml:"database"`
	JWT              JWTConfig      `yaml:"jwt"`
	Cookie           CookieConfig   `yaml:"cookie"`
	SMTP             SMTPConfig     `yaml:"smtp"`
	Logging          LoggingConfig  `yaml:"logging"`
	RedisURL         string         `yaml:"redis_url"`
	GoogleAPIKey     string         `yaml:"google_api_key"`
	EncryptionKey    string         `yaml:"encryption_key"`
	EmailVerifyTTL   time.Duration  `yaml:"email_verify_ttl"`
	PasswordResetTTL time.Duration  `yaml:"password_reset_ttl"`
	BcryptCost       int            `yaml:"bcrypt_cost"`
	TOTPIssuer       string         `yaml:"totp_issuer"`
	DeterministicIDs bool           `yaml:"deterministic_ids"`
}

// Defaults returns a configuration that only lacks secrets
func Defaults() *Config {
	return &Config{
		Environment: EnvProduction,
		Server: ServerConfig{
			Port:      8080,
			PublicURL: "http://localhost:8080",
		},
		Database: DatabaseConfig{
			URL:          "file:authority.db?cache=shared",
			StoreTimeout: 5 * time.Second,
			AutoMigrate:  true,
		},
		JWT: JWTConfig{
			Issuer:          "promptlift",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 168 * time.Hour,
		},
		Cookie: CookieConfig{
			Secure:   true,
			SameSite: "Lax",
		},
		SMTP: SMTPConfig{
			Port: 587,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		EmailVerifyTTL:   24 * time.Hour,
		PasswordResetTTL: time.Hour,
		BcryptCost:       12,
		TOTPIssuer:       "PromptLift",
	}
}

// Load reads path (if not empty) and the process environment
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an injectable environment lookup
func LoadWithEnv(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("APP_ENV", &c.Environment)
	str("JWT_SECRET", &c.JWT.AccessSecret)
	str("JWT_REFRESH_SECRET", &c.JWT.RefreshSecret)
	str("ENCRYPTION_KEY", &c.EncryptionKey)
	str("DATABASE_URL", &c.Database.URL)
	str("GOOGLE_API_KEY", &c.GoogleAPIKey)
	str("REDIS_URL", &c.RedisURL)
	str("PUBLIC_URL", &c.Server.PublicURL)
	str("COOKIE_DOMAIN", &c.Cookie.Domain)
	str("SMTP_HOST", &c.SMTP.Host)
	str("SMTP_USER", &c.SMTP.Username)
	str("SMTP_PASSWORD", &c.SMTP.Password)
	str("SMTP_FROM", &c.SMTP.From)
	str("LOG_LEVEL", &c.Logging.Level)

	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}

	ints := map[string]*int{
		"PORT":      &c.Server.Port,
		"SMTP_PORT": &c.SMTP.Port,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = n
	}

	if v, ok := lookup("COOKIE_SECURE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: COOKIE_SECURE: %w", err)
		}
		c.Cookie.Secure = b
	}

	return nil
}

// Validate checks secrets and ranges
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Environment, validation.Required, validation.In(EnvDevelopment, EnvProduction, "test")),
		validation.Field(&c.EncryptionKey, validation.Required, validation.By(hexKey)),
		validation.Field(&c.BcryptCost, validation.Min(4), validation.Max(31)),
		validation.Field(&c.EmailVerifyTTL, validation.Min(time.Minute)),
		validation.Field(&c.PasswordResetTTL, validation.Min(time.Minute)),
	)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	err = validation.ValidateStruct(&c.JWT,
		validation.Field(&c.JWT.AccessSecret, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.JWT.RefreshSecret, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.JWT.AccessTokenTTL, validation.Min(time.Second)),
		validation.Field(&c.JWT.RefreshTokenTTL, validation.Min(time.Second)),
	)
	if err != nil {
		return fmt.Errorf("config: jwt: %w", err)
	}

	if c.JWT.AccessSecret == c.JWT.RefreshSecret {
		return errors.New("config: jwt: access and refresh secrets must differ")
	}

	err = validation.ValidateStruct(&c.Server,
		validation.Field(&c.Server.Port, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.Server.PublicURL, validation.Required, is.URL),
	)
	if err != nil {
		return fmt.Errorf("config: server: %w", err)
	}

	err = validation.ValidateStruct(&c.Cookie,
		validation.Field(&c.Cookie.SameSite, validation.In("Lax", "Strict", "None", "lax", "strict", "none")),
	)
	if err != nil {
		return fmt.Errorf("config: cookie: %w", err)
	}

	if c.Database.URL == "" {
		return errors.New("config: database url is required")
	}

	return nil
}

func hexKey(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return errors.New("must be 64 hex characters")
	}
	return nil
}

// Dialect guesses the SQL dialect from the database URL
func (c *Config) Dialect() string {
	u := strings.ToLower(c.Database.URL)
	if strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func (c *Config) GetAccessSecret() string             { return c.JWT.AccessSecret }
func (c *Config) GetRefreshSecret() string            { return c.JWT.RefreshSecret }
func (c *Config) GetIssuer() string                   { return c.JWT.Issuer }
func (c *Config) GetAudience() []string               { return c.JWT.Audience }
func (c *Config) GetAccessTokenTTL() time.Duration    { return c.JWT.AccessTokenTTL }
func (c *Config) GetRefreshTokenTTL() time.Duration   { return c.JWT.RefreshTokenTTL }
func (c *Config) GetEmailVerifyTTL() time.Duration    { return c.EmailVerifyTTL }
func (c *Config) GetPasswordResetTTL() time.Duration  { return c.PasswordResetTTL }
func (c *Config) GetBcryptCost() int                  { return c.BcryptCost }
func (c *Config) GetTOTPIssuer() string               { return c.TOTPIssuer }
func (c *Config) GetStoreTimeout() time.Duration      { return c.Database.StoreTimeout }
func (c *Config) GetRotateRefresh() bool              { return c.JWT.RotateRefresh }
func (c *Config) GetDeterministicIDs() bool           { return c.DeterministicIDs }
func (c *Config) GetEnvironment() string              { return c.Environment }
func (c *Config) GetCookieDomain() string             { return c.Cookie.Domain }
func (c *Config) GetCookieSecure() bool               { return c.Cookie.Secure }
func (c *Config) GetCookieSameSite() string           { return c.Cookie.SameSite }

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

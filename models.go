package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefaultPreferredModel is assigned to every new settings record
const DefaultPreferredModel = "gemini-1.5-flash"

// User is the user model
type User struct {
	bun.BaseModel    `bun:"table:users,alias:usr"`
	ID               uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Email            string     `bun:"email,notnull,unique" json:"email"`
	PasswordHash     string     `bun:"password_hash,notnull" json:"-"`
	EmailVerified    bool       `bun:"is_email_verified,notnull" json:"is_email_verified"`
	TwoFactorEnabled bool       `bun:"two_factor_enabled,notnull" json:"two_factor_enabled"`
	TwoFactorSecret  *string    `bun:"two_factor_secret" json:"-"`

	// TwoFactorPendingSecret is an enrollment waiting for its first code.
	// It never authenticates a login.
	TwoFactorPendingSecret *string    `bun:"two_factor_pending_secret" json:"-"`
	CreatedAt              *time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt              *time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at,omitempty"`
}

// HasPendingTwoFactor reports whether an enrollment waits for confirmation
func (u *User) HasPendingTwoFactor() bool {
	return u.TwoFactorPendingSecret != nil && *u.TwoFactorPendingSecret != ""
}

// HasActiveTwoFactor reports whether logins must pass a second factor
func (u *User) HasActiveTwoFactor() bool {
	return u.TwoFactorEnabled && u.TwoFactorSecret != nil && *u.TwoFactorSecret != ""
}

// NormalizeEmail lower cases and trims an email so lookups and the unique
// index agree on identity.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// BackupCode is a single use 2FA recovery code, only its hash is stored
type BackupCode struct {
	bun.BaseModel `bun:"table:user_backup_codes,alias:ubc"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id"`
	CodeHash      string     `bun:"code_hash,notnull" json:"-"`
	Pending       bool       `bun:"pending,notnull" json:"pending"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at,omitempty"`
}

// VerificationPurpose binds a verification token to one flow
type VerificationPurpose string

const (
	// PurposeEmailVerify confirms ownership of the registered email
	PurposeEmailVerify VerificationPurpose = "email-verify"
	// PurposePasswordReset authorizes a password change without the old one
	PurposePasswordReset VerificationPurpose = "password-reset"
)

// Valid reports whether p is a known purpose
func (p VerificationPurpose) Valid() bool {
	return p == PurposeEmailVerify || p == PurposePasswordReset
}

// VerificationToken is keyed by the hash of the token sent to the user
type VerificationToken struct {
	bun.BaseModel `bun:"table:verification_tokens,alias:vt"`
	TokenHash     string              `bun:"token_hash,pk" json:"-"`
	UserID        uuid.UUID           `bun:"user_id,notnull,type:uuid" json:"user_id"`
	Purpose       VerificationPurpose `bun:"purpose,notnull" json:"purpose"`
	ExpiresAt     time.Time           `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt     *time.Time          `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at,omitempty"`
}

// UserSettings holds per user preferences
type UserSettings struct {
	bun.BaseModel  `bun:"table:user_settings,alias:ust"`
	UserID         uuid.UUID  `bun:"user_id,pk,type:uuid" json:"user_id"`
	PreferredModel string     `bun:"preferred_model,notnull" json:"preferred_model"`
	UseOwnAPI      bool       `bun:"use_own_api,notnull" json:"use_own_api"`
	SelectedKeyID  *uuid.UUID `bun:"selected_key_id,type:uuid" json:"selected_key_id"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at,omitempty"`
}

// DefaultSettings returns the settings every new account starts with
func DefaultSettings(userID uuid.UUID) *UserSettings {
	return &UserSettings{
		UserID:         userID,
		PreferredModel: DefaultPreferredModel,
		UseOwnAPI:      false,
		SelectedKeyID:  nil,
	}
}

// APIKey is a provider credential owned by a user. EncryptedKey is sealed
// and never serialized.
type APIKey struct {
	bun.BaseModel `bun:"table:api_keys,alias:ak"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"-"`
	Provider      string     `bun:"provider,notnull" json:"provider"`
	Name          string     `bun:"name,notnull" json:"name"`
	EncryptedKey  string     `bun:"encrypted_key,notnull" json:"-"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at,omitempty"`
}

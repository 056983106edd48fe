package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/promptlift/go-auth/totp"
	"github.com/uptrace/bun"
)

const (
	// BackupCodeCount codes issued per enrollment
	BackupCodeCount = 8
	// BackupCodeBytes random bytes per code, rendered as uppercase hex
	BackupCodeBytes = 5
)

// TwoFactorEnrollment is shown to the user exactly once
type TwoFactorEnrollment struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	BackupCodes     []string `json:"backup_codes"`
}

// TwoFactorEngine manages TOTP enrollment and login challenges
type TwoFactorEngine struct {
	repo     RepositoryManager
	sealer   SecretSealer
	issuer   string
	skew     int
	now      func() time.Time
	activity ActivitySink
	logger   Logger
}

// NewTwoFactorEngine creates an engine that labels secrets with issuer
func NewTwoFactorEngine(repo RepositoryManager, issuer string) *TwoFactorEngine {
	return &TwoFactorEngine{
		repo:     repo,
		sealer:   plainSealer{},
		issuer:   issuer,
		skew:     totp.DefaultSkew,
		now:      time.Now,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithSealer encrypts stored secrets
func (e *TwoFactorEngine) WithSealer(s SecretSealer) *TwoFactorEngine {
	if s != nil {
		e.sealer = s
	}
	return e
}

// WithClock overrides the time source used for code validation
func (e *TwoFactorEngine) WithClock(now func() time.Time) *TwoFactorEngine {
	if now != nil {
		e.now = now
	}
	return e
}

func (e *TwoFactorEngine) WithActivitySink(sink ActivitySink) *TwoFactorEngine {
	e.activity = normalizeActivitySink(sink)
	return e
}

func (e *TwoFactorEngine) WithLogger(logger Logger) *TwoFactorEngine {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// Enroll stages a fresh secret and backup codes for user. They replace an
// earlier pending enrollment but leave an active one working until Confirm
// succeeds, so an unconfirmed setup never weakens login.
func (e *TwoFactorEngine) Enroll(ctx context.Context, user *User) (*TwoFactorEnrollment, error) {
	if user == nil {
		return nil, ErrUserNotFound
	}

	key, err := totp.Generate(e.issuer, user.Email)
	if err != nil {
		return nil, WrapInfrastructure(err, "failed to generate two factor secret")
	}

	sealed, err := e.sealer.Seal([]byte(key.Secret))
	if err != nil {
		return nil, WrapInfrastructure(err, "failed to seal two factor secret")
	}

	codes, err := generateBackupCodes(BackupCodeCount)
	if err != nil {
		return nil, WrapInfrastructure(err, "failed to generate backup codes")
	}

	hashes := make([]string, len(codes))
	for i, code := range codes {
		hashes[i] = hashSecret(code)
	}

	err = e.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := e.repo.Users().SetPendingTwoFactorSecretTx(ctx, tx, user.ID, sealed); err != nil {
			return err
		}
		return e.repo.BackupCodes().ReplacePendingTx(ctx, tx, user.ID, hashes)
	})
	if err != nil {
		return nil, err
	}

	user.TwoFactorPendingSecret = &sealed

	recordActivity(ctx, e.activity, e.logger, ActivityEvent{
		EventType: ActivityEventTwoFactorEnrolled,
		Actor:     userActor(user.ID.String()),
		UserID:    user.ID.String(),
		Metadata:  map[string]any{"reenroll": user.HasActiveTwoFactor()},
	})

	return &TwoFactorEnrollment{
		Secret:          key.Secret,
		ProvisioningURI: key.URI,
		BackupCodes:     codes,
	}, nil
}

// Confirm promotes the pending enrollment when code matches its secret.
// The pending secret and codes replace the active ones in one transaction.
// A mismatch returns false and leaves everything as it was.
func (e *TwoFactorEngine) Confirm(ctx context.Context, user *User, code string) (bool, error) {
	if user == nil {
		return false, ErrUserNotFound
	}

	current, err := e.repo.Users().GetByID(ctx, user.ID)
	if err != nil {
		if IsRecordNotFound(err) {
			return false, ErrUserNotFound
		}
		return false, err
	}

	if !current.HasPendingTwoFactor() {
		return false, ErrTwoFactorNotEnrolled
	}
	pending := *current.TwoFactorPendingSecret

	ok, err := e.validateTOTP(pending, code)
	if err != nil || !ok {
		return false, err
	}

	err = e.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := e.repo.Users().ActivateTwoFactorTx(ctx, tx, current.ID, pending); err != nil {
			return err
		}
		return e.repo.BackupCodes().ActivatePendingTx(ctx, tx, current.ID)
	})
	if err != nil {
		if IsRecordNotFound(err) {
			// re-enrolled or confirmed by a concurrent request
			return false, ErrTwoFactorNotEnrolled
		}
		return false, err
	}

	user.TwoFactorSecret = &pending
	user.TwoFactorPendingSecret = nil
	user.TwoFactorEnabled = true

	recordActivity(ctx, e.activity, e.logger, ActivityEvent{
		EventType: ActivityEventTwoFactorEnabled,
		Actor:     userActor(user.ID.String()),
		UserID:    user.ID.String(),
	})

	return true, nil
}

// Challenge checks a login code against the active enrollment. An exact
// backup code match wins and is consumed, otherwise the code is validated
// as TOTP. Pending enrollments are never consulted.
func (e *TwoFactorEngine) Challenge(ctx context.Context, user *User, code string) (bool, error) {
	if user == nil || code == "" || !user.HasActiveTwoFactor() {
		return false, nil
	}

	consumed, err := e.repo.BackupCodes().Consume(ctx, user.ID, hashSecret(code))
	if err != nil {
		return false, err
	}

	if consumed {
		md := map[string]any{}
		if remaining, err := e.repo.BackupCodes().Count(ctx, user.ID); err != nil {
			e.logger.Warn("backup code count failed for user %s: %v", user.ID, err)
		} else {
			md["remaining"] = remaining
		}
		recordActivity(ctx, e.activity, e.logger, ActivityEvent{
			EventType: ActivityEventBackupCodeUsed,
			Actor:     userActor(user.ID.String()),
			UserID:    user.ID.String(),
			Metadata:  md,
		})
		return true, nil
	}

	return e.validateTOTP(*user.TwoFactorSecret, code)
}

// RemainingBackupCodes reports how many unused codes the user still has
func (e *TwoFactorEngine) RemainingBackupCodes(ctx context.Context, user *User) (int, error) {
	return e.repo.BackupCodes().Count(ctx, user.ID)
}

func (e *TwoFactorEngine) validateTOTP(sealed, code string) (bool, error) {
	secret, err := e.sealer.Open(sealed)
	if err != nil {
		e.logger.Error("two factor secret could not be opened: %v", err)
		return false, WrapInfrastructure(err, "failed to open two factor secret")
	}

	ok, err := totp.Validate(string(secret), code, e.now(), e.skew)
	if err != nil {
		return false, WrapInfrastructure(err, "stored two factor secret is invalid")
	}
	return ok, nil
}

func generateBackupCodes(n int) ([]string, error) {
	codes := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for len(codes) < n {
		b := make([]byte, BackupCodeBytes)
		if _, err := rand.Read(b); err != nil {
			return nil, err
		}
		code := strings.ToUpper(hex.EncodeToString(b))
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// Package activitymap turns auth activity events into flat audit records
// with typed fields for the metadata each event carries.
package activitymap

import (
	"strings"
	"time"

	auth "github.com/promptlift/go-auth"
)

// Area groups events by the part of the account they touch
type Area string

const (
	AreaAccount   Area = "account"
	AreaSession   Area = "session"
	AreaTwoFactor Area = "two_factor"
	AreaPassword  Area = "password"
)

var eventAreas = map[auth.ActivityEventType]Area{
	auth.ActivityEventUserRegistered:       AreaAccount,
	auth.ActivityEventEmailVerified:        AreaAccount,
	auth.ActivityEventLoginSuccess:         AreaSession,
	auth.ActivityEventLoginFailure:         AreaSession,
	auth.ActivityEventTokenRefreshed:       AreaSession,
	auth.ActivityEventLogout:               AreaSession,
	auth.ActivityEventTwoFactorEnrolled:    AreaTwoFactor,
	auth.ActivityEventTwoFactorEnabled:     AreaTwoFactor,
	auth.ActivityEventBackupCodeUsed:       AreaTwoFactor,
	auth.ActivityEventPasswordResetRequest: AreaPassword,
	auth.ActivityEventPasswordResetSuccess: AreaPassword,
}

// Record is one audit line. Optional fields are only set for the events
// that report them.
type Record struct {
	Event      string    `json:"event"`
	Area       Area      `json:"area"`
	ActorID    string    `json:"actor_id"`
	ActorType  string    `json:"actor_type,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`

	// login success
	TwoFactor *bool `json:"two_factor,omitempty"`
	// refresh
	Rotated *bool `json:"rotated,omitempty"`
	// enrollment
	Reenroll *bool `json:"reenroll,omitempty"`
	// backup code use
	BackupCodesRemaining *int `json:"backup_codes_remaining,omitempty"`
	// password reset
	ResetAt *time.Time `json:"reset_at,omitempty"`
	// login failure
	Email   string `json:"email,omitempty"`
	Failure string `json:"failure,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// Option customizes Map
type Option func(*options)

type options struct {
	redactEmail bool
}

// WithoutEmail leaves submitted emails out of failure records
func WithoutEmail() Option {
	return func(o *options) {
		o.redactEmail = true
	}
}

// Map converts event into a Record. Metadata keys known for the event type
// become typed fields; anything else ends up in Extra.
func Map(event auth.ActivityEvent, opts ...Option) Record {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	actorID := strings.TrimSpace(event.Actor.ID)
	if actorID == "" {
		actorID = strings.TrimSpace(event.UserID)
	}
	if actorID == "" {
		actorID = "anonymous"
	}

	area, ok := eventAreas[event.EventType]
	if !ok {
		area = AreaAccount
	}

	rec := Record{
		Event:      string(event.EventType),
		Area:       area,
		ActorID:    actorID,
		ActorType:  strings.TrimSpace(event.Actor.Type),
		UserID:     strings.TrimSpace(event.UserID),
		OccurredAt: event.OccurredAt.UTC(),
	}
	if event.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now().UTC()
	}

	for key, value := range event.Metadata {
		if !rec.take(key, value, o) {
			if rec.Extra == nil {
				rec.Extra = map[string]any{}
			}
			rec.Extra[key] = value
		}
	}

	return rec
}

// take stores a known metadata key and reports whether it did
func (r *Record) take(key string, value any, o options) bool {
	switch key {
	case "two_factor":
		if v, ok := value.(bool); ok {
			r.TwoFactor = &v
			return true
		}
	case "rotated":
		if v, ok := value.(bool); ok {
			r.Rotated = &v
			return true
		}
	case "reenroll":
		if v, ok := value.(bool); ok {
			r.Reenroll = &v
			return true
		}
	case "remaining":
		if v, ok := value.(int); ok {
			r.BackupCodesRemaining = &v
			return true
		}
	case "reset_at":
		if v, ok := value.(string); ok {
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				r.ResetAt = &ts
				return true
			}
		}
	case "email":
		if v, ok := value.(string); ok {
			if !o.redactEmail {
				r.Email = v
			}
			return true
		}
	case "error":
		if v, ok := value.(string); ok {
			r.Failure = v
			return true
		}
	}
	return false
}

package auth

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SettingsUpdate is a partial update, nil fields are left unchanged. An
// empty SelectedKeyID clears the selection.
type SettingsUpdate struct {
	PreferredModel *string `json:"preferred_model"`
	UseOwnAPI      *bool   `json:"use_own_api"`
	SelectedKeyID  *string `json:"selected_key_id"`
}

func (u SettingsUpdate) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.PreferredModel, validation.NilOrNotEmpty, validation.Length(1, 100)),
		validation.Field(&u.SelectedKeyID, is.UUID),
	)
}

// SettingsView is settings plus the selected key metadata
type SettingsView struct {
	*UserSettings
	SelectedKey *APIKey `json:"selected_key"`
}

// SettingsService reads and updates per user settings
type SettingsService struct {
	repo   RepositoryManager
	logger Logger
}

func NewSettingsService(repo RepositoryManager) *SettingsService {
	return &SettingsService{
		repo:   repo,
		logger: defLogger{},
	}
}

func (s *SettingsService) WithLogger(logger Logger) *SettingsService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Get returns the user settings, creating the defaults when the row is
// missing.
func (s *SettingsService) Get(ctx context.Context, userID uuid.UUID) (*UserSettings, error) {
	settings, found, err := s.repo.Settings().Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if found {
		return settings, nil
	}

	s.logger.Info("creating default settings for user %s", userID)

	defaults := DefaultSettings(userID)
	if err := s.repo.Settings().Create(ctx, defaults); err != nil {
		if !IsDuplicateRecord(err) {
			return nil, err
		}
		// a concurrent request created the row first
		settings, found, err = s.repo.Settings().Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, infrastructureError("settings_missing", "settings vanished after create", nil, map[string]any{"user_id": userID.String()})
		}
		return settings, nil
	}

	return defaults, nil
}

// View returns the settings together with the selected key, if any
func (s *SettingsService) View(ctx context.Context, userID uuid.UUID) (*SettingsView, error) {
	settings, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	view := &SettingsView{UserSettings: settings}
	if settings.SelectedKeyID == nil {
		return view, nil
	}

	key, err := s.repo.APIKeys().GetForUser(ctx, *settings.SelectedKeyID, userID)
	if err != nil {
		if IsRecordNotFound(err) {
			return view, nil
		}
		return nil, err
	}
	view.SelectedKey = key

	return view, nil
}

// Update applies a partial update. A selected key must belong to the user.
func (s *SettingsService) Update(ctx context.Context, userID uuid.UUID, update SettingsUpdate) (*SettingsView, error) {
	if err := update.Validate(); err != nil {
		return nil, FromValidation(err)
	}

	if _, err := s.Get(ctx, userID); err != nil {
		return nil, err
	}

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		settings, found, err := s.repo.Settings().GetTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !found {
			return ErrRecordNotFound
		}

		if update.PreferredModel != nil {
			settings.PreferredModel = strings.TrimSpace(*update.PreferredModel)
		}

		if update.UseOwnAPI != nil {
			settings.UseOwnAPI = *update.UseOwnAPI
		}

		if update.SelectedKeyID != nil {
			if *update.SelectedKeyID == "" {
				settings.SelectedKeyID = nil
			} else {
				keyID := uuid.MustParse(*update.SelectedKeyID)
				if _, err := s.repo.APIKeys().GetForUserTx(ctx, tx, keyID, userID); err != nil {
					if IsRecordNotFound(err) {
						return ErrAPIKeyNotFound
					}
					return err
				}
				settings.SelectedKeyID = &keyID
			}
		}

		return s.repo.Settings().UpdateTx(ctx, tx, settings)
	})
	if err != nil {
		return nil, err
	}

	return s.View(ctx, userID)
}

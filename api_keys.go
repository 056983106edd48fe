package auth

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SupportedProviders are the text generation providers a key can belong to
var SupportedProviders = []any{"gemini"}

// AddAPIKeyRequest is the payload to store a provider key
type AddAPIKeyRequest struct {
	Provider string `json:"provider"`
	Name     string `json:"name"`
	APIKey   string `json:"api_key"`
}

func (r AddAPIKeyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Provider, validation.Required, validation.In(SupportedProviders...)),
		validation.Field(&r.Name, validation.Length(0, 100)),
		validation.Field(&r.APIKey, validation.Required, validation.Length(8, 512)),
	)
}

// APIKeyService manages sealed provider keys
type APIKeyService struct {
	repo   RepositoryManager
	sealer SecretSealer
	logger Logger
}

func NewAPIKeyService(repo RepositoryManager, sealer SecretSealer) *APIKeyService {
	if sealer == nil {
		sealer = plainSealer{}
	}
	return &APIKeyService{
		repo:   repo,
		sealer: sealer,
		logger: defLogger{},
	}
}

func (s *APIKeyService) WithLogger(logger Logger) *APIKeyService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Add seals and stores a key. The returned record carries no key material.
func (s *APIKeyService) Add(ctx context.Context, userID uuid.UUID, req AddAPIKeyRequest) (*APIKey, error) {
	req.Provider = strings.ToLower(strings.TrimSpace(req.Provider))
	req.Name = strings.TrimSpace(req.Name)
	req.APIKey = strings.TrimSpace(req.APIKey)

	if err := req.Validate(); err != nil {
		return nil, FromValidation(err)
	}

	sealed, err := s.sealer.Seal([]byte(req.APIKey))
	if err != nil {
		return nil, WrapInfrastructure(err, "failed to seal api key")
	}

	name := req.Name
	if name == "" {
		name = req.Provider
	}

	key := &APIKey{
		UserID:       userID,
		Provider:     req.Provider,
		Name:         name,
		EncryptedKey: sealed,
	}

	if err := s.repo.APIKeys().Create(ctx, key); err != nil {
		return nil, err
	}

	s.logger.Info("api key added for user %s provider %s", userID, key.Provider)

	return key, nil
}

// List returns the user's keys without key material
func (s *APIKeyService) List(ctx context.Context, userID uuid.UUID) ([]*APIKey, error) {
	return s.repo.APIKeys().ListByUser(ctx, userID)
}

// Delete removes a key and clears it from the user's settings if selected
func (s *APIKeyService) Delete(ctx context.Context, userID, keyID uuid.UUID) error {
	return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := s.repo.Settings().ClearSelectedKeyTx(ctx, tx, userID, keyID); err != nil {
			return err
		}
		if err := s.repo.APIKeys().DeleteTx(ctx, tx, keyID, userID); err != nil {
			if IsRecordNotFound(err) {
				return ErrAPIKeyNotFound
			}
			return err
		}
		return nil
	})
}

// Reveal opens a stored key for an outbound provider call
func (s *APIKeyService) Reveal(ctx context.Context, userID, keyID uuid.UUID) (string, error) {
	key, err := s.repo.APIKeys().GetForUser(ctx, keyID, userID)
	if err != nil {
		if IsRecordNotFound(err) {
			return "", ErrAPIKeyNotFound
		}
		return "", err
	}

	plain, err := s.sealer.Open(key.EncryptedKey)
	if err != nil {
		s.logger.Error("api key %s could not be opened: %v", keyID, err)
		return "", WrapInfrastructure(err, "failed to open api key")
	}

	return string(plain), nil
}

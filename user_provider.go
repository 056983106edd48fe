package auth

import (
	"context"
)

// UserFinder is a store we can use to retrieve users
type UserFinder interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// UserProvider checks credentials against the store
type UserProvider struct {
	store     UserFinder
	hasher    PasswordAuthenticator
	Validator func(*User) error
	logger    Logger
}

// NewUserProvider will create a new UserProvider
func NewUserProvider(store UserFinder) *UserProvider {
	return &UserProvider{
		store:     store,
		hasher:    NewBcryptHasher(0),
		logger:    defLogger{},
		Validator: defaultValidator,
	}
}

func (u *UserProvider) WithLogger(l Logger) *UserProvider {
	if l != nil {
		u.logger = l
	}
	return u
}

// WithHasher overrides the password hasher
func (u *UserProvider) WithHasher(h PasswordAuthenticator) *UserProvider {
	if h != nil {
		u.hasher = h
	}
	return u
}

func (u *UserProvider) validate(user *User) error {
	if u.Validator != nil {
		return u.Validator(user)
	}
	return defaultValidator(user)
}

// VerifyIdentity will find the user and compare the password. Unknown
// emails and wrong passwords produce the same error and the same amount of
// hashing work.
func (u *UserProvider) VerifyIdentity(ctx context.Context, email, password string) (*User, error) {
	user, err := u.store.GetByEmail(ctx, email)
	if err != nil {
		if IsRecordNotFound(err) {
			u.hasher.Verify(password, DummyHash())
			return nil, ErrInvalidCredentials
		}
		u.logger.Error("VerifyIdentity failed to retrieve user: %v", err)
		return nil, WrapInfrastructure(err, "failed to retrieve user during verification")
	}

	if !u.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if err := u.validate(user); err != nil {
		return nil, err
	}

	return user, nil
}

func defaultValidator(user *User) error {
	if user == nil || user.PasswordHash == "" {
		return ErrInvalidCredentials
	}
	return nil
}

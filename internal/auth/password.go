package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/Imaginaryverse/spending-habits/internal/core"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrEmailExists        = errors.New("email already registered")
)

const MinPasswordLength = 8

// Storage is the slice of the record store the authenticator needs.
type Storage interface {
	CreateUser(ctx context.Context, u core.User) (core.User, error)
	GetUserByEmail(ctx context.Context, email string) (core.User, error)
	SaveProfile(ctx context.Context, p core.UserProfile) (core.UserProfile, error)
}

// PasswordAuthenticator implements email and password authentication using bcrypt.
type PasswordAuthenticator struct {
	storage Storage
	cost    int
}

func NewPasswordAuthenticator(storage Storage) *PasswordAuthenticator {
	return &PasswordAuthenticator{storage: storage, cost: bcrypt.DefaultCost}
}

// WithCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (a *PasswordAuthenticator) WithCost(cost int) *PasswordAuthenticator {
	a.cost = cost
	return a
}

func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	return nil
}

// HashPassword returns the bcrypt hash of password at the given cost.
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Register creates the account and an empty profile (no monthly limit).
func (a *PasswordAuthenticator) Register(ctx context.Context, email, name, password string) (core.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return core.User{}, ErrInvalidEmail
	}
	if err := ValidatePassword(password); err != nil {
		return core.User{}, err
	}

	hash, err := HashPassword(password, a.cost)
	if err != nil {
		return core.User{}, err
	}

	user, err := a.storage.CreateUser(ctx, core.User{Email: email, PasswordHash: hash})
	if errors.Is(err, core.ErrConflict) {
		return core.User{}, ErrEmailExists
	}
	if err != nil {
		return core.User{}, fmt.Errorf("failed to create user: %w", err)
	}

	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	if _, err := a.storage.SaveProfile(ctx, core.UserProfile{UserID: user.ID, Name: name}); err != nil {
		return core.User{}, fmt.Errorf("failed to create profile: %w", err)
	}

	return user, nil
}

// Authenticate verifies the email and password, returning the user if valid.
func (a *PasswordAuthenticator) Authenticate(ctx context.Context, email, password string) (core.User, error) {
	user, err := a.storage.GetUserByEmail(ctx, email)
	if err != nil {
		return core.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return core.User{}, ErrInvalidCredentials
	}
	return user, nil
}

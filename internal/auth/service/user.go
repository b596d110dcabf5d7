package service

import (
	"context"
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/cairnhealth/cairn/internal/auth/domain"
	"github.com/cairnhealth/cairn/internal/auth/store"
	"github.com/cairnhealth/cairn/pkg/cryptox"
	"github.com/cairnhealth/cairn/pkg/idx"
	"github.com/cairnhealth/cairn/pkg/slogx"
)

var (
	ErrInvalidUsername = errors.New("invalid_username")
	ErrInvalidEmail    = errors.New("invalid_email")
	ErrWeakPassword    = errors.New("weak_password")

	usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{2,31}$`)
)

// UserService handles account creation and password changes.
type UserService struct {
	Store store.Store
}

// Register creates a new account. Usernames and emails are stored lowercase
// and matched case-insensitively.
func (s *UserService) Register(ctx context.Context, username, email, password string) (domain.User, error) {
	l := slogx.FromContext(ctx)

	username = strings.ToLower(strings.TrimSpace(username))
	email = strings.ToLower(strings.TrimSpace(email))

	if !usernamePattern.MatchString(username) {
		return domain.User{}, ErrInvalidUsername
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.User{}, ErrInvalidEmail
	}
	if err := validatePassword(password); err != nil {
		return domain.User{}, err
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}

	now := time.Now().UTC()
	u := domain.User{
		ID:           idx.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrUserExists
		}
		return domain.User{}, err
	}

	l.Info("user registered", "user_id", u.ID, "username", u.Username)
	return u, nil
}

// validatePassword enforces the minimum bar for new passwords. Complexity
// classes are deliberately not required; length carries the entropy.
func validatePassword(password string) error {
	if len(password) < 10 || len(password) > 128 {
		return ErrWeakPassword
	}
	return nil
}

package service

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/coinpulse/coinpulse/internal/api/domain"
	"github.com/coinpulse/coinpulse/internal/api/store"
	"github.com/coinpulse/coinpulse/pkg/cryptox"
	"github.com/coinpulse/coinpulse/pkg/idx"
	"github.com/coinpulse/coinpulse/pkg/slogx"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{2,29}$`)

type UserService struct {
	Users    store.Users
	Sessions *SessionService

	StoreTimeout time.Duration
}

type RegisterInput struct {
	FullName string
	Email    string
	Username string
	Password string
}

type LoginInput struct {
	Email    string
	Username string
	Password string
}

// Register creates a password user. Username and email are stored
// lowercased and must both be unique.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))

	if in.FullName == "" || in.Email == "" || in.Username == "" || strings.TrimSpace(in.Password) == "" {
		return domain.User{}, badRequest("all fields are required")
	}
	if fields := validateRegister(in); len(fields) > 0 {
		return domain.User{}, &Error{Kind: KindBadRequest, Message: "validation failed", Details: fields}
	}

	sctx, cancel := withTimeout(ctx, s.StoreTimeout)
	defer cancel()

	_, err := s.Users.GetUserByIdentifier(sctx, in.Username, in.Email)
	switch {
	case err == nil:
		return domain.User{}, badRequest("user with email or username already exists")
	case !errors.Is(err, store.ErrNotFound):
		return domain.User{}, internalError(err)
	}

	hash, err := cryptox.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, internalError(err)
	}

	user := domain.User{
		ID:           idx.New().String(),
		FullName:     in.FullName,
		Email:        in.Email,
		Username:     in.Username,
		PasswordHash: hash,
	}
	if err := s.Users.CreateUser(sctx, user); err != nil {
		// Lost a race with a concurrent registration.
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, badRequest("user with email or username already exists")
		}
		return domain.User{}, internalError(err)
	}

	slogx.FromContext(ctx).Info("user registered", slog.String("user_id", user.ID))
	return s.GetUser(ctx, user.ID)
}

// Login checks a password and opens a session. Unknown users and wrong
// passwords fail the same way.
func (s *UserService) Login(ctx context.Context, in LoginInput) (domain.Session, error) {
	l := slogx.FromContext(ctx)

	username := strings.ToLower(strings.TrimSpace(in.Username))
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if username == "" && email == "" {
		return domain.Session{}, badRequest("username or email required")
	}
	if in.Password == "" {
		return domain.Session{}, badRequest("password is required")
	}

	sctx, cancel := withTimeout(ctx, s.StoreTimeout)
	defer cancel()

	user, err := s.Users.GetUserByIdentifier(sctx, username, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			l.Info("login failed: unknown user")
			return domain.Session{}, unauthorized("invalid user credentials", err)
		}
		return domain.Session{}, internalError(err)
	}

	if !user.HasPassword() {
		l.Info("login failed: federated-only account", slog.String("user_id", user.ID))
		return domain.Session{}, unauthorized("invalid user credentials", nil)
	}
	if err := cryptox.VerifyPassword(in.Password, user.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			l.Error("stored password hash is unreadable", slog.String("user_id", user.ID), slog.Any("error", err))
		}
		return domain.Session{}, unauthorized("invalid user credentials", err)
	}

	pair, err := s.Sessions.Issue(ctx, user)
	if err != nil {
		return domain.Session{}, err
	}

	user.PasswordHash = ""
	user.RefreshTokenHash = ""
	return domain.Session{User: user, Tokens: pair}, nil
}

// GetUser loads a user by id.
func (s *UserService) GetUser(ctx context.Context, id string) (domain.User, error) {
	sctx, cancel := withTimeout(ctx, s.StoreTimeout)
	defer cancel()

	user, err := s.Users.GetUserByID(sctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, invalidToken("invalid access token", err)
		}
		return domain.User{}, internalError(err)
	}
	user.PasswordHash = ""
	user.RefreshTokenHash = ""
	return user, nil
}

func validateRegister(in RegisterInput) []FieldError {
	var out []FieldError

	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		out = append(out, FieldError{Field: "email", Message: "must be a valid email address"})
	}
	if !usernamePattern.MatchString(in.Username) {
		out = append(out, FieldError{Field: "username", Message: "must be 3-30 characters of letters, digits, '.', '_' or '-'"})
	}
	if n := utf8.RuneCountInString(in.Password); n < MinPasswordLength || n > MaxPasswordLength {
		out = append(out, FieldError{Field: "password", Message: "must be between 8 and 128 characters long"})
	}
	if utf8.RuneCountInString(in.FullName) > 100 {
		out = append(out, FieldError{Field: "fullName", Message: "must be at most 100 characters long"})
	}

	return out
}

package accounts

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type Service struct {
	store Store
	cost  int
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, cost: bcrypt.DefaultCost, now: time.Now}
}

// Register validates req and creates the user with a bcrypt password hash.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (User, error) {
	email := strings.TrimSpace(req.Email)
	errs := FieldErrors{}
	if email == "" {
		errs.add("email", "This field is required.")
	} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		errs.add("email", "Enter a valid email address.")
	}
	if req.Password == "" {
		errs.add("password", "This field is required.")
	}
	if req.Password2 == "" {
		errs.add("password2", "This field is required.")
	}
	if len(errs) == 0 && req.Password != req.Password2 {
		errs.add("password", "Password fields didn't match.")
	}
	if len(errs) > 0 {
		return User{}, errs
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	u := User{
		ID:           uuid.NewString(),
		Username:     email,
		Email:        email,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		PasswordHash: hash,
		DateJoined:   s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			errs.add("email", "A user with that email already exists.")
			return User{}, errs
		}
		return User{}, err
	}
	return u, nil
}

// Login checks the password and returns the user's bearer token, issuing one on first login.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	u, err := s.store.UserByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return LoginResponse{}, ErrInvalidCredentials
		}
		return LoginResponse{}, err
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(req.Password)); err != nil {
		return LoginResponse{}, ErrInvalidCredentials
	}
	tok, err := s.store.TokenForUser(ctx, u.ID, newTokenKey(), s.now().UTC())
	if err != nil {
		return LoginResponse{}, err
	}
	return LoginResponse{Token: tok.Key, UserInfo: u.Info()}, nil
}

// Authenticate resolves a bearer token to its user.
func (s *Service) Authenticate(ctx context.Context, key string) (User, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return User{}, ErrInvalidCredentials
	}
	u, err := s.store.UserByToken(ctx, key)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	return u, nil
}

// Logout deletes the token. Unknown or empty tokens are not an error.
func (s *Service) Logout(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	if err := s.store.DeleteToken(ctx, key); err != nil && !errors.Is(err, ErrTokenNotFound) {
		return err
	}
	return nil
}

// newTokenKey returns 40 hex characters, the length of the original token keys.
func newTokenKey() string {
	a, b := uuid.New(), uuid.New()
	return hex.EncodeToString(a[:]) + hex.EncodeToString(b[:4])
}

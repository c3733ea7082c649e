// Package accounts registers users, checks passwords and issues bearer tokens.
package accounts

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("a user with that email already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrTokenNotFound      = errors.New("token not found")
)

// User is a registered account. The username is always the email address.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	PasswordHash []byte    `json:"-"`
	DateJoined   time.Time `json:"date_joined"`
}

// Info is the public view of a user returned by login.
type Info struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (u User) Info() Info {
	return Info{ID: u.ID, Username: u.Username, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName}
}

// Token is a bearer token. Each user holds at most one.
type Token struct {
	Key       string    `json:"key"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token    string `json:"token"`
	UserInfo Info   `json:"user_info"`
}

// FieldErrors maps a request field to its validation messages.
type FieldErrors map[string][]string

func (e FieldErrors) Error() string { return "invalid registration" }

func (e FieldErrors) add(field, msg string) { e[field] = append(e[field], msg) }

// Store persists users and tokens. Emails are compared case-insensitively.
type Store interface {
	CreateUser(ctx context.Context, u User) error
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
	// TokenForUser returns the user's token, creating one with newKey if none exists.
	TokenForUser(ctx context.Context, userID, newKey string, now time.Time) (Token, error)
	UserByToken(ctx context.Context, key string) (User, error)
	DeleteToken(ctx context.Context, key string) error
	Close() error
}

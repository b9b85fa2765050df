// Package auth is the session boundary: accounts, signed session tokens and
// the signed-in user of the local CLI.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/joescharf/issueboard/internal/models"
	"github.com/joescharf/issueboard/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrInvalidEmail       = errors.New("invalid email address")
)

const minPasswordLength = 6

// Authenticator signs users up and in against the account store.
type Authenticator struct {
	store  store.Store
	tokens *Tokens
	cost   int
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(s store.Store, tokens *Tokens) *Authenticator {
	return &Authenticator{store: s, tokens: tokens, cost: bcrypt.DefaultCost}
}

// Tokens returns the token service used to sign sessions.
func (a *Authenticator) Tokens() *Tokens { return a.tokens }

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// SignUp creates an account and returns its identity and a session token.
func (a *Authenticator) SignUp(ctx context.Context, email, password string) (*models.User, string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, "", err
	}
	if len(password) < minPasswordLength {
		return nil, "", ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	account := &models.Account{
		User:         models.User{UID: uuid.NewString(), Email: email},
		PasswordHash: string(hash),
	}
	if err := a.store.CreateUser(ctx, account); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, "", ErrEmailTaken
		}
		return nil, "", err
	}

	user := account.User
	token, _, err := a.tokens.Issue(&user)
	if err != nil {
		return nil, "", err
	}
	return &user, token, nil
}

// SignIn checks credentials and returns the identity and a session token.
func (a *Authenticator) SignIn(ctx context.Context, email, password string) (*models.User, string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, "", ErrInvalidCredentials
	}

	account, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	user := account.User
	token, _, err := a.tokens.Issue(&user)
	if err != nil {
		return nil, "", err
	}
	return &user, token, nil
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/voreskerne/frivillig/pkg/db"
)

// UserLookup finds accounts by email
type UserLookup interface {
	GetUserByEmail(ctx context.Context, email string) (*db.User, error)
}

// Login checks the credentials and issues a session token
func Login(ctx context.Context, users UserLookup, issuer *TokenIssuer, email, password string) (*Issued, *db.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, nil, ErrInvalidCredentials
	}

	user, err := users.GetUserByEmail(ctx, email)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !CheckPassword(user.PasswordHash, password) {
		return nil, nil, ErrInvalidCredentials
	}

	issued, err := issuer.Issue(user)
	if err != nil {
		return nil, nil, err
	}
	return issued, user, nil
}

package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/voreskerne/frivillig/pkg/db"
)

// Issued is a freshly minted session token
type Issued struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// TokenIssuer mints HS256 session tokens
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue mints a token identifying user. The jti claim lets the token be revoked on logout.
func (s *TokenIssuer) Issue(user *db.User) (*Issued, error) {
	now := s.now()
	issued := &Issued{
		ID:        uuid.New().String(),
		ExpiresAt: now.Add(s.ttl),
	}

	claims := jwt.MapClaims{
		"sub":     user.ID,
		"user_id": user.ID,
		"role":    user.RoleID,
		"jti":     issued.ID,
		"exp":     issued.ExpiresAt.Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	issued.Token = signed
	return issued, nil
}

// Package auth verifies bearer access tokens issued by the auth service.
// Users and credentials are owned by that service; here a token is the whole identity.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lalita/wallet/internal/apperrors"
	"github.com/lalita/wallet/internal/models"
)

const (
	defaultSigningMethod = "HS256"
	defaultAccessTTL     = 15 * time.Minute
)

type AccessTokenClaims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"id"`
	Email  string    `json:"email"`
	Name   string    `json:"name"`
	Role   string    `json:"role,omitempty"`
}

type Config struct {
	// Secret key shared with the auth service
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string
}

type Verifier struct {
	key string
	alg jwt.SigningMethod
}

func New(cfg Config) (*Verifier, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}

	alg := jwt.GetSigningMethod(cfg.Alg)
	if _, ok := alg.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unsupported signing method %q", cfg.Alg)
	}

	return &Verifier{key: cfg.SecretKey, alg: alg}, nil
}

// Parse and validate access token
func (v *Verifier) ParseAccess(access string) (models.User, error) {
	claims := &AccessTokenClaims{}

	_, err := jwt.ParseWithClaims(
		access,
		claims,
		func(t *jwt.Token) (any, error) {
			return []byte(v.key), nil
		},
		jwt.WithValidMethods([]string{v.alg.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return models.User{}, fmt.Errorf("error while parsing or validating token. Err: %w", errors.Join(apperrors.ErrUnauthorized, err))
	}

	if claims.UserID == uuid.Nil {
		return models.User{}, fmt.Errorf("token has no user id: %w", apperrors.ErrUnauthorized)
	}

	return models.User{ID: claims.UserID, Email: claims.Email, Name: claims.Name}, nil
}

// Auth authenticates request by 'Authorization: Bearer <token>' header
func (v *Verifier) Auth(_ context.Context, r *http.Request) (models.User, error) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return models.User{}, apperrors.ErrUnauthorized
	}

	return v.ParseAccess(strings.TrimSpace(token))
}

// Issue signs access token for user. The auth service does the same;
// here it serves local tooling and tests
func (v *Verifier) Issue(user models.User, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = defaultAccessTTL
	}
	now := time.Now().Truncate(time.Second)

	token := jwt.NewWithClaims(v.alg, AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
	})

	signed, err := token.SignedString([]byte(v.key))
	if err != nil {
		return "", fmt.Errorf("error while signing access token. Err: %w", err)
	}

	return signed, nil
}

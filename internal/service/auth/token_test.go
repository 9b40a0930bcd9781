package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lalita/wallet/internal/apperrors"
	"github.com/lalita/wallet/internal/models"
)

func TestVerifier(t *testing.T) {
	user := models.User{ID: uuid.New(), Email: "ada@example.com", Name: "Ada"}

	v, err := New(Config{SecretKey: "secret"})
	require.NoError(t, err)

	t.Run("new defaults", func(t *testing.T) {
		require.Equal(t, defaultSigningMethod, v.alg.Alg())

		_, err := New(Config{})
		require.Error(t, err, "secret is required")

		_, err = New(Config{SecretKey: "secret", Alg: "RS256"})
		require.Error(t, err, "only hmac is supported")
	})

	t.Run("issue and parse", func(t *testing.T) {
		token, err := v.Issue(user, time.Minute)
		require.NoError(t, err)

		got, err := v.ParseAccess(token)

		require.NoError(t, err)
		require.Equal(t, user, got)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := v.Issue(user, -time.Minute)
		require.NoError(t, err)

		_, err = v.ParseAccess(token)

		require.ErrorIs(t, err, apperrors.ErrUnauthorized)
		require.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("foreign key", func(t *testing.T) {
		other, err := New(Config{SecretKey: "other"})
		require.NoError(t, err)
		token, err := other.Issue(user, time.Minute)
		require.NoError(t, err)

		_, err = v.ParseAccess(token)

		require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})

	t.Run("alg none rejected", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
			UserID:           user.ID,
		})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = v.ParseAccess(signed)

		require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})

	t.Run("no user id", func(t *testing.T) {
		token, err := v.Issue(models.User{}, time.Minute)
		require.NoError(t, err)

		_, err = v.ParseAccess(token)

		require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})

	t.Run("Auth header", func(t *testing.T) {
		token, err := v.Issue(user, time.Minute)
		require.NoError(t, err)

		tests := []struct {
			name   string
			header string
			ok     bool
		}{
			{"bearer", "Bearer " + token, true},
			{"lowercase scheme", "bearer " + token, true},
			{"empty", "", false},
			{"basic", "Basic " + token, false},
			{"garbage", "Bearer not-a-token", false},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				r := httptest.NewRequest(http.MethodGet, "/", nil)
				if tt.header != "" {
					r.Header.Set("Authorization", tt.header)
				}

				got, err := v.Auth(t.Context(), r)

				if tt.ok {
					require.NoError(t, err)
					require.Equal(t, user.ID, got.ID)
				} else {
					require.ErrorIs(t, err, apperrors.ErrUnauthorized)
				}
			})
		}
	})
}

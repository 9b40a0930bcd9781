package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lalita/wallet/internal/handlers/userctx"
	"github.com/lalita/wallet/internal/models"
	"github.com/lalita/wallet/internal/service/auth"
)

func TestAuthMiddleware(t *testing.T) {
	verifier, err := auth.New(auth.Config{SecretKey: "test-secret"})
	require.NoError(t, err)
	other, err := auth.New(auth.Config{SecretKey: "other-secret"})
	require.NoError(t, err)

	user := models.User{ID: uuid.New(), Email: "ada@example.com", Name: "Ada Obi"}

	valid, err := verifier.Issue(user, time.Minute)
	require.NoError(t, err)
	foreign, err := other.Issue(user, time.Minute)
	require.NoError(t, err)

	// Echo user id from context
	handler := AuthMiddleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := userctx.FromContext(r.Context())
		require.True(t, ok, "user has to be in context")
		_, _ = w.Write([]byte(u.ID.String()))
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid token", "Bearer " + valid, http.StatusOK},
		{"lowercase scheme", "bearer " + valid, http.StatusOK},
		{"no header", "", http.StatusUnauthorized},
		{"basic scheme", "Basic " + valid, http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"signed with other key", "Bearer " + foreign, http.StatusUnauthorized},
		{"garbage", "Bearer not.a.jwt", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/wallet/balance", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, r)

			require.Equal(t, tt.wantStatus, rec.Code, "body: %s", rec.Body.String())
			if tt.wantStatus == http.StatusOK {
				require.Equal(t, user.ID.String(), rec.Body.String())
				return
			}
			require.Equal(t, `Bearer realm="wallet"`, rec.Header().Get("WWW-Authenticate"))
			require.JSONEq(t, `{"error": "service_error", "message": "Unauthorized"}`, rec.Body.String())
		})
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestThrottle(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	throttle := NewThrottle(1, 2)
	throttle.now = func() time.Time { return now }
	h := throttle.Middleware(ok)

	call := func(remoteAddr string) int {
		r := httptest.NewRequest(http.MethodPost, "/hook", nil)
		r.RemoteAddr = remoteAddr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, call("10.0.0.1:1000"))
	require.Equal(t, http.StatusOK, call("10.0.0.1:1001"), "burst of 2")
	require.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:1002"), "burst exhausted, port does not matter")
	require.Equal(t, http.StatusOK, call("10.0.0.2:1000"), "other ip has own bucket")

	now = now.Add(time.Second)
	require.Equal(t, http.StatusOK, call("10.0.0.1:1003"), "token refilled")

	now = now.Add(throttleIdleTTL + time.Second)
	call("10.0.0.3:1000")
	require.Len(t, throttle.visitors, 1, "idle visitors purged")
}

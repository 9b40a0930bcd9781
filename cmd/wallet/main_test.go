package main

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lalita/wallet/internal/testutil"
)

func Test_run(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	port, err := testutil.RandomPort()
	require.NoError(t, err, "failed to get random port to start server")
	listenAddr := fmt.Sprintf("localhost:%d", port)

	// Working directory without .env so the host environment does not leak in
	getwd := func() (string, error) { return t.TempDir(), nil }
	getenv := func(string) string { return "" }

	t.Run("stop with signal", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond) // Half Second
		t.Cleanup(cancel)

		err = run(ctx, getenv, getwd, []string{
			"--address", listenAddr,
			"--log-level", "debug",
			"--database", pg.DSN,
			"--jwt-secret", "secret",
			"--monnify-api-key", "MK_TEST",
			"--monnify-secret-key", "monnify-secret",
			"--monnify-contract-code", "1234567890",
		})

		require.NoError(t, err, "on correct stop should not return error")
	})

	t.Run("stop with config error", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond) // Half Second
		t.Cleanup(cancel)

		// Try to run without secrets. Must fail
		err := run(ctx, getenv, getwd, []string{
			"--address", listenAddr,
			"--database", pg.DSN,
		})

		require.ErrorContains(t, err, "jwt secret is required")
	})

	t.Run("unknown flag", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		t.Cleanup(cancel)

		err := run(ctx, os.Getenv, getwd, []string{"--unknown"})

		require.Error(t, err, "unknown flag must fail before anything starts")
	})
}

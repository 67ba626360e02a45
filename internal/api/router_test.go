package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"veilpay/internal/client"
	"veilpay/internal/retry"
	"veilpay/internal/session"
	"veilpay/internal/store"
	"veilpay/internal/sweep"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	local, err := store.New(t.TempDir())
	require.NoError(t, err)

	registry := session.NewRegistry(session.Deps{
		Local:  local,
		Remote: client.NewMemoryBlobStore(),
		Pool:   client.NewPoolClient("http://pool.invalid"),
		Chain:  client.NewChainClient("http://rpc.invalid"),
		Sweep: sweep.Config{
			Threshold: 1,
			FeeBuffer: 1,
			Deposit:   retry.Policy{MaxAttempts: 1, Delay: time.Millisecond},
			Verify:    retry.Policy{MaxAttempts: 1, Delay: time.Millisecond},
			Transfer:  retry.Policy{MaxAttempts: 1, Delay: time.Millisecond},
			Mode:      sweep.ModeAuto,
		},
		GapLimit: 1,
		Log:      zerolog.Nop(),
	})

	return SetupRouter(registry, "secret-token")
}

func TestRouter_RequiresBearerToken(t *testing.T) {
	router := testRouter(t)

	for _, path := range []string{
		"/session/status",
		"/address/current",
		"/address/stable",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	req := httptest.NewRequest(http.MethodGet, "/session/status", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_AuthorizedWithoutSession(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/session/status", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Authenticated but no session yet.
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_MetricsOpen(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

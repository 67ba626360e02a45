package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInit_Defaults(t *testing.T) {
	t.Setenv("VEILPAY_POOL_SERVICE_URL", "http://pool.local")

	require.NoError(t, Init())
	cfg := Get()

	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "./state", cfg.StateDir)
	require.Equal(t, "http://pool.local", cfg.PoolServiceURL)
	require.Empty(t, cfg.BlobStoreURL)
	require.Equal(t, "auto", cfg.SigningMode)
	require.Equal(t, 10*time.Second, cfg.SettleDelay)
	require.Equal(t, 3, cfg.RetryAttempts)
	require.Equal(t, 5*time.Second, cfg.RetryDelay)
	require.Equal(t, 2*time.Minute, cfg.TransferTimeout)
	require.Equal(t, 10, cfg.RecoveryGapLimit)

	require.Equal(t, uint64(100000000), SettleThresholdLamports())
	require.Equal(t, uint64(5000000), FeeBufferLamports())
}

func TestInit_Overrides(t *testing.T) {
	t.Setenv("VEILPAY_POOL_SERVICE_URL", "http://pool.local")
	t.Setenv("VEILPAY_SIGNING_MODE", "manual")
	t.Setenv("VEILPAY_SETTLE_THRESHOLD_SOL", "0.25")
	t.Setenv("VEILPAY_TRANSFER_TIMEOUT", "30s")

	require.NoError(t, Init())

	require.Equal(t, "manual", Get().SigningMode)
	require.Equal(t, 30*time.Second, Get().TransferTimeout)
	require.Equal(t, uint64(250000000), SettleThresholdLamports())
}

func TestInit_RequiresPoolURL(t *testing.T) {
	// Setenv first so the value is restored after the test, then unset:
	// envconfig treats an empty-but-present variable as provided.
	t.Setenv("VEILPAY_POOL_SERVICE_URL", "placeholder")
	require.NoError(t, os.Unsetenv("VEILPAY_POOL_SERVICE_URL"))

	require.Error(t, Init())
}

func TestInit_RejectsBadValues(t *testing.T) {
	t.Setenv("VEILPAY_POOL_SERVICE_URL", "http://pool.local")

	t.Setenv("VEILPAY_SIGNING_MODE", "yolo")
	require.Error(t, Init())

	t.Setenv("VEILPAY_SIGNING_MODE", "auto")
	t.Setenv("VEILPAY_SETTLE_THRESHOLD_SOL", "not a number")
	require.Error(t, Init())
}

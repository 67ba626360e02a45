// veilpayd is the burner-wallet core service. It derives everything from
// the wallet signature presented at session init: burner keys, the stable
// address and the storage encryption key. Nothing it persists is readable
// without that signature.
package main

import (
	"fmt"
	"net/http"
	"os"

	"veilpay/internal/api"
	"veilpay/internal/client"
	"veilpay/internal/config"
	"veilpay/internal/logging"
	"veilpay/internal/metrics"
	"veilpay/internal/retry"
	"veilpay/internal/session"
	"veilpay/internal/store"
	"veilpay/internal/sweep"
)

// @title        veilpay core API
// @version      1.0
// @description  Burner-address wallet core: deterministic burner derivation, encrypted state storage and pooled settlement.
// @BasePath     /
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.Init(); err != nil {
		return err
	}
	cfg := config.Get()

	log := logging.New(cfg.LogLevel)

	if err := config.PromptForAPIToken(); err != nil {
		return err
	}

	local, err := store.New(cfg.StateDir)
	if err != nil {
		return err
	}

	chain := client.NewChainClient(cfg.SolanaRPCURL)
	pool := client.NewPoolClient(cfg.PoolServiceURL)

	var remote sweep.RemoteStore
	if cfg.BlobStoreURL != "" {
		remote = client.NewBlobClient(cfg.BlobStoreURL)
	} else {
		log.Warn().Msg("no blob store configured, remote records are held in memory and lost on restart")
		remote = client.NewMemoryBlobStore()
	}

	policy := retry.Policy{MaxAttempts: cfg.RetryAttempts, Delay: cfg.RetryDelay}

	registry := session.NewRegistry(session.Deps{
		Local:  local,
		Remote: remote,
		Pool:   pool,
		Chain:  chain,
		Sweep: sweep.Config{
			Threshold:   config.SettleThresholdLamports(),
			FeeBuffer:   config.FeeBufferLamports(),
			SettleDelay: cfg.SettleDelay,
			Deposit:     policy,
			Verify:      policy,
			Transfer: retry.Policy{
				MaxAttempts:  cfg.RetryAttempts,
				Delay:        cfg.RetryDelay,
				TotalTimeout: cfg.TransferTimeout,
			},
			Mode: sweep.SigningMode(cfg.SigningMode),
		},
		GapLimit: cfg.RecoveryGapLimit,
		Metrics:  metrics.New(),
		Log:      log,
	})
	defer registry.DestroyAll()

	router := api.SetupRouter(registry, cfg.APIToken)

	log.Info().Str("port", cfg.Port).Str("mode", cfg.SigningMode).Msg("veilpayd listening")
	return http.ListenAndServe(":"+cfg.Port, router)
}

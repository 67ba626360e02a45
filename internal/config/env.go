package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/term"

	"veilpay/internal/common"
)

// Config contains all configuration parameters for the application.
// The settlement policy values (threshold, fee buffer, delays, retry
// bounds, gap limit) are deliberate defaults carried over from the
// production service; override them only with evidence they are wrong.
type Config struct {
	Port           string `envconfig:"PORT" default:"8080"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	StateDir       string `envconfig:"STATE_DIR" default:"./state"`
	SolanaRPCURL   string `envconfig:"SOLANA_RPC_URL" default:"https://api.mainnet-beta.solana.com"`
	PoolServiceURL string `envconfig:"POOL_SERVICE_URL" required:"true"`
	BlobStoreURL   string `envconfig:"BLOB_STORE_URL"` // empty selects the in-memory store

	SettleThresholdSOL string        `envconfig:"SETTLE_THRESHOLD_SOL" default:"0.1"`
	FeeBufferSOL       string        `envconfig:"FEE_BUFFER_SOL" default:"0.005"`
	SettleDelay        time.Duration `envconfig:"SETTLE_DELAY" default:"10s"`
	RetryAttempts      int           `envconfig:"RETRY_ATTEMPTS" default:"3"`
	RetryDelay         time.Duration `envconfig:"RETRY_DELAY" default:"5s"`
	TransferTimeout    time.Duration `envconfig:"TRANSFER_TIMEOUT" default:"2m"`
	SigningMode        string        `envconfig:"SIGNING_MODE" default:"auto"`
	RecoveryGapLimit   int           `envconfig:"RECOVERY_GAP_LIMIT" default:"10"`

	APIToken string `envconfig:"API_TOKEN"` // prompted at startup when empty
}

// cfg is the global configuration instance
var cfg *Config

// Init loads configuration from environment variables.
func Init() error {
	cfg = &Config{}
	if err := envconfig.Process("VEILPAY", cfg); err != nil {
		return fmt.Errorf("failed to process config: %w", err)
	}
	if cfg.SigningMode != "auto" && cfg.SigningMode != "manual" {
		return fmt.Errorf("VEILPAY_SIGNING_MODE must be auto or manual, got %q", cfg.SigningMode)
	}
	if _, err := common.SOLToLamports(cfg.SettleThresholdSOL); err != nil {
		return fmt.Errorf("invalid VEILPAY_SETTLE_THRESHOLD_SOL: %w", err)
	}
	if _, err := common.SOLToLamports(cfg.FeeBufferSOL); err != nil {
		return fmt.Errorf("invalid VEILPAY_FEE_BUFFER_SOL: %w", err)
	}
	return nil
}

// Get returns the global configuration instance.
// Panics if Init() was not called.
func Get() *Config {
	if cfg == nil {
		panic("config not initialized, call Init() first")
	}
	return cfg
}

// SettleThresholdLamports returns the settlement threshold in lamports.
func SettleThresholdLamports() uint64 {
	v, _ := common.SOLToLamports(Get().SettleThresholdSOL)
	return v
}

// FeeBufferLamports returns the fee buffer in lamports.
func FeeBufferLamports() uint64 {
	v, _ := common.SOLToLamports(Get().FeeBufferSOL)
	return v
}

// PromptForAPIToken prompts for the API bearer token in the terminal when
// it was not provided via environment. The token is read without echoing.
// Call this at startup before the server begins handling requests.
func PromptForAPIToken() error {
	if Get().APIToken != "" {
		return nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("stdin is not a terminal: set VEILPAY_API_TOKEN or run interactively")
	}
	fmt.Fprint(os.Stderr, "Enter API token: ")
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}
	if len(raw) == 0 {
		return errors.New("token cannot be empty")
	}

	cfg.APIToken = string(raw)
	clear(raw)
	return nil
}

package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/mrz1836/go-sanitize"
)

// Environment variable names. Key material and passphrases are accepted from
// the environment ONLY; the yaml file never carries them.
const (
	EnvRPCURL          = "SNAILMARKET_RPC_URL"
	EnvListenAddr      = "SNAILMARKET_LISTEN_ADDR"
	EnvArtifactPath    = "SNAILMARKET_ARTIFACT_PATH"
	EnvNetworkID       = "SNAILMARKET_NETWORK_ID"
	EnvGasStrategy     = "SNAILMARKET_GAS_STRATEGY"
	EnvConfirmTimeout  = "SNAILMARKET_CONFIRM_TIMEOUT"
	EnvLogLevel        = "SNAILMARKET_LOG_LEVEL"
	EnvOwnerKey        = "SNAILMARKET_OWNER_KEY"        // #nosec G101 -- const name, not a credential
	EnvBuyerKey        = "SNAILMARKET_BUYER_KEY"        // #nosec G101 -- const name, not a credential
	EnvOwnerPassphrase = "SNAILMARKET_OWNER_PASSPHRASE" // #nosec G101 -- const name, not a credential
	EnvBuyerPassphrase = "SNAILMARKET_BUYER_PASSPHRASE" // #nosec G101 -- const name, not a credential
	EnvOwnerMnemonic   = "SNAILMARKET_OWNER_MNEMONIC"   // #nosec G101 -- const name, not a credential
	EnvBuyerMnemonic   = "SNAILMARKET_BUYER_MNEMONIC"   // #nosec G101 -- const name, not a credential
)

// ApplyEnvironment applies environment variable overrides to the
// configuration.
//
//nolint:gocognit,gocyclo // Environment variable overrides require sequential checks
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvRPCURL); v != "" {
		cfg.Chain.RPCURL = SanitizeURL(v)
	}

	if v := os.Getenv(EnvListenAddr); v != "" {
		cfg.Server.ListenAddr = v
	}

	if v := os.Getenv(EnvArtifactPath); v != "" {
		cfg.Contract.ArtifactPath = v
	}

	if v := os.Getenv(EnvNetworkID); v != "" {
		cfg.Contract.NetworkID = v
	}

	if v := os.Getenv(EnvGasStrategy); v != "" {
		cfg.Gas.Strategy = strings.ToLower(strings.TrimSpace(v))
	}

	if v := os.Getenv(EnvConfirmTimeout); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.Chain.ConfirmTimeoutSeconds = secs
		}
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	if v := os.Getenv(EnvOwnerKey); v != "" {
		cfg.Credentials.Owner.HexKey = v
	}
	if v := os.Getenv(EnvBuyerKey); v != "" {
		cfg.Credentials.Buyer.HexKey = v
	}
	if v := os.Getenv(EnvOwnerPassphrase); v != "" {
		cfg.Credentials.Owner.Passphrase = v
	}
	if v := os.Getenv(EnvBuyerPassphrase); v != "" {
		cfg.Credentials.Buyer.Passphrase = v
	}
	if v := os.Getenv(EnvOwnerMnemonic); v != "" {
		cfg.Credentials.Owner.Mnemonic = v
	}
	if v := os.Getenv(EnvBuyerMnemonic); v != "" {
		cfg.Credentials.Buyer.Mnemonic = v
	}
}

// SanitizeURL cleans a URL string by removing invalid characters and trimming
// whitespace. Useful for RPC URLs that arrive with copy-paste artifacts.
func SanitizeURL(url string) string {
	return sanitize.URL(strings.TrimSpace(url))
}

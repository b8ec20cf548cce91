// Package config provides configuration management for the snail market
// service: yaml file loading, environment overrides, validation, and the
// service logger.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agnivade/levenshtein"
	"gopkg.in/yaml.v3"

	"github.com/snaillabs/snailmarket/internal/chain/eth"
	"github.com/snaillabs/snailmarket/internal/keystore"
	mkterr "github.com/snaillabs/snailmarket/pkg/errors"
)

// Config represents the application configuration.
type Config struct {
	Version     int               `yaml:"version"`
	Server      ServerConfig      `yaml:"server"`
	Chain       ChainConfig       `yaml:"chain"`
	Contract    ContractConfig    `yaml:"contract"`
	Gas         GasConfig         `yaml:"gas"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig defines HTTP listener settings.
type ServerConfig struct {
	ListenAddr      string `yaml:"listen_addr"`
	ShutdownSeconds int    `yaml:"shutdown_seconds"`
}

// ChainConfig defines node connection settings.
type ChainConfig struct {
	RPCURL string `yaml:"rpc_url"`
	// ChainID pins the EIP-155 chain id; zero means detect from the node.
	ChainID int64 `yaml:"chain_id"`
	// ConfirmTimeoutSeconds bounds the per-transaction receipt wait.
	ConfirmTimeoutSeconds int `yaml:"confirm_timeout_seconds"`
	// ConfirmPollMillis is the receipt polling interval.
	ConfirmPollMillis int `yaml:"confirm_poll_millis"`
}

// ContractConfig locates the deployed contract.
type ContractConfig struct {
	// ArtifactPath points at the Truffle build artifact.
	ArtifactPath string `yaml:"artifact_path"`
	// NetworkID selects the deployment inside the artifact's networks map.
	NetworkID string `yaml:"network_id"`
}

// GasConfig defines gas pricing settings.
type GasConfig struct {
	Strategy string `yaml:"strategy"`
	// PriceWei, when positive, pins the gas price and bypasses eth_gasPrice.
	PriceWei int64 `yaml:"price_wei"`
}

// CredentialsConfig defines the signing identities. Hex keys and passphrases
// never live in the file; they arrive through the environment only.
type CredentialsConfig struct {
	Owner CredentialConfig `yaml:"owner"`
	Buyer CredentialConfig `yaml:"buyer"`
}

// CredentialConfig defines one signing identity's key source.
type CredentialConfig struct {
	KeyFile      string `yaml:"key_file"`
	Mnemonic     string `yaml:"mnemonic,omitempty"`
	AccountIndex uint32 `yaml:"account_index"`

	// Environment-only fields, never serialized.
	HexKey     string `yaml:"-"`
	Passphrase string `yaml:"-"`
}

// Source converts the credential settings to a keystore source.
func (c CredentialConfig) Source() keystore.Source {
	return keystore.Source{
		HexKey:       c.HexKey,
		KeyFile:      c.KeyFile,
		Passphrase:   c.Passphrase,
		Mnemonic:     c.Mnemonic,
		AccountIndex: c.AccountIndex,
	}
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads configuration from the specified file, layering it over the
// defaults. Environment overrides are applied separately by the caller.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, mkterr.WithCause(mkterr.ErrConfigInvalid, err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, mkterr.WithCause(mkterr.ErrConfigInvalid, err)
	}

	return cfg, nil
}

// Save writes configuration to the specified file.
func Save(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks the configuration for startup-blocking problems. A
// misspelled gas strategy gets a did-you-mean suggestion instead of a bare
// rejection.
func (c *Config) Validate() error {
	if c.Chain.RPCURL == "" {
		return missingField("chain.rpc_url")
	}
	if c.Contract.ArtifactPath == "" {
		return missingField("contract.artifact_path")
	}
	if c.Contract.NetworkID == "" {
		return missingField("contract.network_id")
	}
	if c.Server.ListenAddr == "" {
		return missingField("server.listen_addr")
	}
	if c.Chain.ConfirmTimeoutSeconds <= 0 {
		return mkterr.WithDetails(mkterr.ErrConfigInvalid, map[string]string{
			"field":  "chain.confirm_timeout_seconds",
			"reason": "must be positive",
		})
	}

	if _, err := eth.ParseGasStrategy(c.Gas.Strategy); err != nil {
		if hint := closestStrategy(c.Gas.Strategy); hint != "" {
			return mkterr.WithSuggestion(err, fmt.Sprintf("did you mean %q?", hint))
		}
		return err
	}

	return nil
}

// ConfirmTimeout returns the confirmation wait as a duration.
func (c *Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.Chain.ConfirmTimeoutSeconds) * time.Second
}

// ConfirmPollInterval returns the receipt polling interval as a duration.
func (c *Config) ConfirmPollInterval() time.Duration {
	return time.Duration(c.Chain.ConfirmPollMillis) * time.Millisecond
}

// ShutdownTimeout returns the graceful-shutdown window as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownSeconds) * time.Second
}

// closestStrategy returns the accepted strategy nearest to the given input,
// or "" when nothing is plausibly close.
func closestStrategy(input string) string {
	best := ""
	bestDist := 3 // anything further is not a typo
	for _, s := range eth.GasStrategies {
		if d := levenshtein.ComputeDistance(input, s); d < bestDist {
			best = s
			bestDist = d
		}
	}
	return best
}

func missingField(field string) error {
	return mkterr.WithDetails(mkterr.ErrConfigInvalid, map[string]string{
		"field":  field,
		"reason": "must be set",
	})
}

package config

// DefaultRPCURL points at a local development node; production deployments
// override it through the file or environment.
const DefaultRPCURL = "http://127.0.0.1:8545"

// DefaultNetworkID matches the network id Ganache assigns by default, which
// is where the Truffle artifact records its deployment address.
const DefaultNetworkID = "5777"

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Version: 1,
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ShutdownSeconds: 10,
		},
		Chain: ChainConfig{
			RPCURL:                DefaultRPCURL,
			ChainID:               0, // detect from the node
			ConfirmTimeoutSeconds: 60,
			ConfirmPollMillis:     500,
		},
		Contract: ContractConfig{
			ArtifactPath: "build/contracts/SnailMarket.json",
			NetworkID:    DefaultNetworkID,
		},
		Gas: GasConfig{
			Strategy: "medium",
			PriceWei: 0, // use the node's suggestion
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "", // stderr
		},
	}
}

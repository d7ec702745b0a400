// Package network maps contract addresses to their network and static
// contract configuration. The tables are built once at startup and never
// mutated afterwards.
package network

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/prepaid-gas/paymaster-indexer/entities"
)

// FallbackNetwork is used for contract addresses missing from the tables.
const FallbackNetwork = "base-sepolia"

type NetworkConfig struct {
	Name    string
	ChainID *big.Int
}

// ContractConfig is the static configuration of one known deployment. The
// cache enabled family carries full economics here; the pool-scoped variants
// learn joining fees from PoolCreated events instead.
type ContractConfig struct {
	Variant       entities.Variant
	Network       string
	JoiningAmount *big.Int
	Scope         *big.Int
	Verifier      common.Address
}

type Config struct {
	networks  map[string]NetworkConfig
	contracts map[string]ContractConfig
	logger    *zap.SugaredLogger
}

func NewConfig(networks map[string]NetworkConfig, contracts map[string]ContractConfig, logger *zap.SugaredLogger) *Config {
	lowered := make(map[string]ContractConfig, len(contracts))
	for addr, c := range contracts {
		if c.JoiningAmount == nil {
			c.JoiningAmount = new(big.Int)
		}
		lowered[strings.ToLower(addr)] = c
	}
	return &Config{networks: networks, contracts: lowered, logger: logger}
}

// DefaultConfig returns the tables for the currently supported deployments.
func DefaultConfig(logger *zap.SugaredLogger) *Config {
	networks := map[string]NetworkConfig{
		"base-sepolia": {Name: "Base Sepolia", ChainID: big.NewInt(84532)},
		"base":         {Name: "Base", ChainID: big.NewInt(8453)},
		"ethereum":     {Name: "Ethereum Mainnet", ChainID: big.NewInt(1)},
		"sepolia":      {Name: "Sepolia", ChainID: big.NewInt(11155111)},
	}
	contracts := map[string]ContractConfig{
		"0x3BEeC075aC5A77fFE0F9ee4bbb3DCBd07fA93fbf": {
			Variant: entities.VariantGasLimited,
			Network: "base-sepolia",
		},
		"0x243A735115F34BD5c0F23a33a444a8d26e31E2E7": {
			Variant: entities.VariantOneTimeUse,
			Network: "base-sepolia",
		},
	}
	return NewConfig(networks, contracts, logger)
}

// Network returns the network configuration by name. Unknown networks get a
// zero chain id and their own name as display name.
func (c *Config) Network(name string) NetworkConfig {
	if cfg, ok := c.networks[name]; ok {
		return cfg
	}
	return NetworkConfig{Name: name, ChainID: new(big.Int)}
}

// Contract resolves a contract address to its static configuration.
// Unknown addresses fall back to FallbackNetwork with zero economics so a
// misconfigured deployment degrades instead of halting the stream.
func (c *Config) Contract(address common.Address) ContractConfig {
	if cfg, ok := c.contracts[strings.ToLower(address.Hex())]; ok {
		return cfg
	}
	c.logger.Warnw("unknown contract address, using fallback network",
		"address", address.Hex(), "network", FallbackNetwork)
	return ContractConfig{Network: FallbackNetwork, JoiningAmount: new(big.Int)}
}

// NetworkOf is Contract restricted to the network name.
func (c *Config) NetworkOf(address common.Address) string {
	return c.Contract(address).Network
}

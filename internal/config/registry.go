package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quantumpay/gateway/internal/domain/model"
)

// ErrMissingChainConfig is returned when a settlement targets a chain that
// has no registry entry.
var ErrMissingChainConfig = errors.New("no contract registered for chain")

// ChainEntry describes one chain's on-chain settlement parameters.
type ChainEntry struct {
	ChainID         int64  `yaml:"chain_id"`
	RPCURL          string `yaml:"rpc_url"`
	ContractAddress string `yaml:"contract_address"`
	TokenAddress    string `yaml:"token_address"`
	TokenDecimals   int32  `yaml:"token_decimals"`
	GasLimit        uint64 `yaml:"gas_limit"`
	GasPriceGwei    int64  `yaml:"gas_price_gwei"`
}

// ChainRegistry maps chain names to their settlement parameters. Loaded once
// at startup; read-only afterward.
type ChainRegistry struct {
	entries map[model.Chain]ChainEntry
}

type registryFile struct {
	Chains map[string]ChainEntry `yaml:"chains"`
}

// LoadChainRegistry parses the YAML registry at path.
func LoadChainRegistry(path string) (*ChainRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chain registry: %w", err)
	}
	return ParseChainRegistry(data)
}

// ParseChainRegistry parses registry YAML from raw bytes.
func ParseChainRegistry(data []byte) (*ChainRegistry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse chain registry: %w", err)
	}

	entries := make(map[model.Chain]ChainEntry, len(file.Chains))
	for name, entry := range file.Chains {
		if entry.RPCURL == "" {
			return nil, fmt.Errorf("chain %q: rpc_url is required", name)
		}
		if entry.ContractAddress == "" {
			return nil, fmt.Errorf("chain %q: contract_address is required", name)
		}
		if entry.TokenDecimals == 0 {
			entry.TokenDecimals = 6 // USDC-style settlement token
		}
		if entry.GasLimit == 0 {
			entry.GasLimit = 200000
		}
		if entry.GasPriceGwei == 0 {
			entry.GasPriceGwei = 20
		}
		entries[model.Chain(name)] = entry
	}
	return &ChainRegistry{entries: entries}, nil
}

// NewChainRegistry builds a registry from explicit entries (tests, fakes).
func NewChainRegistry(entries map[model.Chain]ChainEntry) *ChainRegistry {
	if entries == nil {
		entries = map[model.Chain]ChainEntry{}
	}
	return &ChainRegistry{entries: entries}
}

// Lookup returns the entry for chain, or ErrMissingChainConfig.
func (r *ChainRegistry) Lookup(chain model.Chain) (ChainEntry, error) {
	entry, ok := r.entries[chain]
	if !ok {
		return ChainEntry{}, fmt.Errorf("%w: %s", ErrMissingChainConfig, chain)
	}
	return entry, nil
}

// Chains lists registered chain names.
func (r *ChainRegistry) Chains() []model.Chain {
	out := make([]model.Chain, 0, len(r.entries))
	for c := range r.entries {
		out = append(out, c)
	}
	return out
}

package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// OriginChain is the identifier of the chain every intent starts from
	OriginChain = "zetachain"

	// BSCChain is the only supported cross-chain destination
	BSCChain = "bsc"
)

// ChainConfig is the static description of a supported chain
type ChainConfig struct {
	Identifier   string `yaml:"-"`
	ChainID      int    `yaml:"chain_id"`
	Name         string `yaml:"name"`
	RPCURL       string `yaml:"rpc_url"`
	ExplorerURL  string `yaml:"explorer_url"`
	NativeSymbol string `yaml:"native_symbol"`
}

// TxURL returns the explorer link for a transaction hash
func (c ChainConfig) TxURL(hash string) string {
	if c.ExplorerURL == "" {
		return ""
	}
	return strings.TrimRight(c.ExplorerURL, "/") + "/tx/" + hash
}

// ChainRegistry looks chains up by identifier. It is never mutated after LoadConfig returns.
type ChainRegistry struct {
	chains       map[string]ChainConfig
	destinations map[string]bool
}

// NewChainRegistry builds a registry; destinations lists identifiers valid as cross-chain targets
func NewChainRegistry(chains []ChainConfig, destinations ...string) *ChainRegistry {
	r := &ChainRegistry{
		chains:       make(map[string]ChainConfig, len(chains)),
		destinations: make(map[string]bool, len(destinations)),
	}
	for _, c := range chains {
		r.chains[c.Identifier] = c
	}
	for _, d := range destinations {
		r.destinations[d] = true
	}
	return r
}

// Lookup returns the chain registered under identifier
func (r *ChainRegistry) Lookup(identifier string) (ChainConfig, bool) {
	c, ok := r.chains[strings.ToLower(strings.TrimSpace(identifier))]
	return c, ok
}

// ByChainID returns the chain with the given numeric id
func (r *ChainRegistry) ByChainID(chainID int) (ChainConfig, bool) {
	for _, c := range r.chains {
		if c.ChainID == chainID {
			return c, true
		}
	}
	return ChainConfig{}, false
}

// IsDestination reports whether identifier is a supported cross-chain target
func (r *ChainRegistry) IsDestination(identifier string) bool {
	return r.destinations[strings.ToLower(strings.TrimSpace(identifier))]
}

// All returns the chains sorted by chain id
func (r *ChainRegistry) All() []ChainConfig {
	out := make([]ChainConfig, 0, len(r.chains))
	for _, c := range r.chains {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// chainsFile mirrors the layout of a CHAINS_FILE document
type chainsFile struct {
	Chains map[string]ChainConfig `yaml:"chains"`
}

// applyChainsFile overlays the chains defined in path on top of defaults.
// Fields left empty in the file keep their default values.
func applyChainsFile(path string, defaults []ChainConfig) ([]ChainConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chains file: %w", err)
	}
	var file chainsFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("failed to parse chains file: %w", err)
	}

	merged := make(map[string]ChainConfig, len(defaults))
	for _, c := range defaults {
		merged[c.Identifier] = c
	}
	for identifier, override := range file.Chains {
		identifier = strings.ToLower(identifier)
		base := merged[identifier]
		base.Identifier = identifier
		if override.ChainID != 0 {
			base.ChainID = override.ChainID
		}
		if override.Name != "" {
			base.Name = override.Name
		}
		if override.RPCURL != "" {
			base.RPCURL = override.RPCURL
		}
		if override.ExplorerURL != "" {
			base.ExplorerURL = override.ExplorerURL
		}
		if override.NativeSymbol != "" {
			base.NativeSymbol = override.NativeSymbol
		}
		if base.ChainID == 0 {
			return nil, fmt.Errorf("chain %s in chains file has no chain_id", identifier)
		}
		merged[identifier] = base
	}

	out := make([]ChainConfig, 0, len(merged))
	for _, c := range merged {
		out = append(out, c)
	}
	return out, nil
}

package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

const (
	EthereumMainnetChainID = 1
)

const (
	ethereumSepoliaChainID  = 11155111
	polygonMainnetChainID   = 137
	polygonAmoyChainID      = 80002
	bscMainnetChainID       = 56
	bscTestnetChainID       = 97
	arbitrumMainnetChainID  = 42161
	baseMainnetChainID      = 8453
	avalancheMainnetChainID = 43114

	ethereumName  = "ETHEREUM"
	polygonName   = "POLYGON"
	bscName       = "BSC"
	arbitrumName  = "ARBITRUM"
	baseName      = "BASE"
	avalancheName = "AVALANCHE"
)

// Environment keys for per-chain escrow overrides. The effective variable is
// <KEY>_<TAG> or <KEY>_<chainID>, the tag form winning.
const (
	EnvFactoryAddress  = "ESCROW_FACTORY_ADDRESS"
	EnvCloneAddress    = "ESCROW_CLONE_ADDRESS"
	EnvDeploymentBlock = "ESCROW_DEPLOYMENT_BLOCK"
)

// Environment keys for protocol-wide contracts. These also accept a bare <KEY>.
const (
	EnvSaleAddress        = "SALE_ADDRESS"
	EnvRewardTokenAddress = "REWARD_TOKEN_ADDRESS"
	EnvRewardPoolAddress  = "REWARD_POOL_ADDRESS"
	EnvGovernorAddress    = "GOVERNOR_ADDRESS"
	EnvTimelockAddress    = "TIMELOCK_ADDRESS"
)

// NetworkProfile describes the escrow deployment on a single chain.
type NetworkProfile struct {
	ChainID           uint64
	DisplayName       string
	NativeAssetSymbol string
	EnvironmentKey    string
	FactoryAddress    string
	CloneAddress      string
	FactoryABI        string
	CloneABI          string
	DeploymentBlock   uint64
}

// CoreAddresses holds the protocol-wide (non-escrow) contracts of a chain.
// Fallback is set when the addresses were borrowed from the Ethereum mainnet
// entry because the chain has none; such addresses are only fit for reads.
type CoreAddresses struct {
	ChainID     uint64
	Sale        string
	RewardToken string
	RewardPool  string
	Governor    string
	Timelock    string
	Fallback    bool
}

var networkProfiles = map[uint64]NetworkProfile{
	EthereumMainnetChainID: {
		DisplayName:       "Ethereum",
		NativeAssetSymbol: "ETH",
		EnvironmentKey:    "MAINNET",
		FactoryAddress:    "0xa4c123b1612dd272d1371c17149d439536b3216f",
		CloneAddress:      "0xdaeeb975729fae923d5a4fd12aabfe228f219e9c",
		DeploymentBlock:   19_204_118,
	},
	ethereumSepoliaChainID: {
		DisplayName:       "Sepolia",
		NativeAssetSymbol: "ETH",
		EnvironmentKey:    "SEPOLIA",
		FactoryAddress:    "0xb0eb53f16947ccf25ec84d8dbc74254770f58904",
		CloneAddress:      "0xdba41ecccc3fc1626e53a13043b026c48bbf33fe",
		DeploymentBlock:   5_311_620,
	},
	polygonMainnetChainID: {
		DisplayName:       "Polygon",
		NativeAssetSymbol: "POL",
		EnvironmentKey:    "POLYGON",
		FactoryAddress:    "0xff9243a8f506b40928b5b7a767c76fb008f86beb",
		CloneAddress:      "0xb2737f6a6f0fb23c6f5da2cec255404e4fb44003",
		DeploymentBlock:   53_472_905,
	},
	polygonAmoyChainID: {
		DisplayName:       "Polygon Amoy",
		NativeAssetSymbol: "POL",
		EnvironmentKey:    "AMOY",
		FactoryAddress:    "0x4d6608697a8d41bed440e50454f31af3176813e0",
		CloneAddress:      "0x2ea68ef786e4d3cea27d26934b484e73cf575dca",
		DeploymentBlock:   6_104_332,
	},
	bscMainnetChainID: {
		DisplayName:       "BNB Smart Chain",
		NativeAssetSymbol: "BNB",
		EnvironmentKey:    "BSC",
		FactoryAddress:    "0xd6ba2b0aee0ca923732881584d8c4fa2815d2802",
		CloneAddress:      "0x827283e0ad84173581569969e58b081006f7e3df",
		DeploymentBlock:   36_118_450,
	},
	bscTestnetChainID: {
		DisplayName:       "BNB Testnet",
		NativeAssetSymbol: "tBNB",
		EnvironmentKey:    "BSC_TESTNET",
		FactoryAddress:    "0xc967a64cb14028d512c9791e558e08baa7196b50",
		CloneAddress:      "0xac2f86702824c1c099724caf4941d4072014b3ce",
		DeploymentBlock:   38_902_114,
	},
	arbitrumMainnetChainID: {
		DisplayName:       "Arbitrum One",
		NativeAssetSymbol: "ETH",
		EnvironmentKey:    "ARBITRUM",
		FactoryAddress:    "0x107f80e222f828767efc2f91624a8940f1f836f9",
		CloneAddress:      "0x9eee3692f09e2e8c662248b483b7ffc050fec94d",
		DeploymentBlock:   184_530_071,
	},
	baseMainnetChainID: {
		DisplayName:       "Base",
		NativeAssetSymbol: "ETH",
		EnvironmentKey:    "BASE",
		FactoryAddress:    "0xbca3a0aac36098b2cc2bd818319478da6bd0c621",
		CloneAddress:      "0xde49f145fda9988c79fc35526f7eaed46725a2a7",
		DeploymentBlock:   10_877_602,
	},
	// escrow factory not yet deployed, addresses come from the environment
	avalancheMainnetChainID: {
		DisplayName:       "Avalanche C-Chain",
		NativeAssetSymbol: "AVAX",
		EnvironmentKey:    "AVALANCHE",
	},
}

var coreAddressesByChain = map[uint64]CoreAddresses{
	EthereumMainnetChainID: {
		Sale:        "0xb860dcd6c8a1f8b46287cced9041dff02cee7374",
		RewardToken: "0x43e210471948d33296c87009e8a7f770d9106fd2",
		RewardPool:  "0x87db7f1adbc60926f6967e7893f57fd14c1604d1",
		Governor:    "0x15cea325a65e19cbae530282bd36cb9d21f6be6a",
		Timelock:    "0xbf0d7c1c1e21862ab8a18a8902073fec8df4f509",
	},
	ethereumSepoliaChainID: {
		Sale:        "0x47aaeb26c57d21fa5d328263dfe574de739988b8",
		RewardToken: "0x86e7577496a2c8773e130f7eb19731662b5e803b",
		RewardPool:  "0x61ba4168160adb59261ff2d3c425c8d99d19bdd0",
		Governor:    "0xb6cc60d5d32cbe54014c2b54b95523cf6941fa1c",
		Timelock:    "0x257c6f561c5cb347611a3ce9d97dcbee500fe7ee",
	},
	polygonMainnetChainID: {
		Sale:        "0x5fc324bdb2e1142a21c402364f9572b85a8e48f6",
		RewardToken: "0x87ab165c58ac5831be38cb8cb4ba2e751989a017",
		RewardPool:  "0x49ddb14f71010b93b7d946bf54074e3248c801be",
		Governor:    "0xf750110c57513064d6d59291f0cde2e5738713a8",
		Timelock:    "0x18d8962058765a6ca7cff00d796c25410335b400",
	},
}

// Registry resolves chain ids to contract deployments, applying environment
// overrides on top of the static tables.
type Registry struct {
	getenv func(string) string
}

// NewRegistry creates a registry reading overrides through getenv.
// A nil getenv falls back to os.Getenv.
func NewRegistry(getenv func(string) string) *Registry {
	if getenv == nil {
		getenv = os.Getenv
	}

	return &Registry{getenv: getenv}
}

// Resolve returns the escrow profile for chainID. Unknown or zero chain ids
// yield false; callers must not substitute a default chain.
func (r *Registry) Resolve(chainID uint64) (*NetworkProfile, bool) {
	if chainID == 0 {
		return nil, false
	}

	entry, ok := networkProfiles[chainID]
	if !ok {
		return nil, false
	}

	profile := entry
	profile.ChainID = chainID
	profile.FactoryABI = EscrowFactoryABI
	profile.CloneABI = EscrowCloneABI

	if v := r.chainOverride(EnvFactoryAddress, chainID, profile.EnvironmentKey); v != "" {
		profile.FactoryAddress = v
	}

	if v := r.chainOverride(EnvCloneAddress, chainID, profile.EnvironmentKey); v != "" {
		profile.CloneAddress = v
	}

	if v := r.chainOverride(EnvDeploymentBlock, chainID, profile.EnvironmentKey); v != "" {
		if block, err := strconv.ParseUint(v, 10, 64); err == nil {
			profile.DeploymentBlock = block
		}
	}

	return &profile, true
}

// ResolveCoreAddresses returns the protocol-wide contracts for chainID.
// When the chain has no table entry the Ethereum mainnet entry is used and
// Fallback is set.
func (r *Registry) ResolveCoreAddresses(chainID uint64) CoreAddresses {
	tag := ""
	if profile, ok := networkProfiles[chainID]; ok {
		tag = profile.EnvironmentKey
	}

	entry, ok := coreAddressesByChain[chainID]
	fallback := false
	if !ok {
		entry = coreAddressesByChain[EthereumMainnetChainID]
		fallback = true
	}

	out := CoreAddresses{
		ChainID:     chainID,
		Sale:        r.coreOverride(EnvSaleAddress, chainID, tag, entry.Sale),
		RewardToken: r.coreOverride(EnvRewardTokenAddress, chainID, tag, entry.RewardToken),
		RewardPool:  r.coreOverride(EnvRewardPoolAddress, chainID, tag, entry.RewardPool),
		Governor:    r.coreOverride(EnvGovernorAddress, chainID, tag, entry.Governor),
		Timelock:    r.coreOverride(EnvTimelockAddress, chainID, tag, entry.Timelock),
		Fallback:    fallback,
	}

	return out
}

// SupportedChains returns the chain ids with an escrow profile, ascending.
func (r *Registry) SupportedChains() []uint64 {
	ids := make([]uint64, 0, len(networkProfiles))
	for id := range networkProfiles {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

func (r *Registry) chainOverride(key string, chainID uint64, tag string) string {
	if tag != "" {
		if v := strings.TrimSpace(r.getenv(key + "_" + tag)); v != "" {
			return v
		}
	}

	return strings.TrimSpace(r.getenv(fmt.Sprintf("%s_%d", key, chainID)))
}

func (r *Registry) coreOverride(key string, chainID uint64, tag, tableValue string) string {
	if v := r.chainOverride(key, chainID, tag); v != "" {
		return v
	}

	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}

	return tableValue
}

// chainNameFromID returns the chain family name based on the chain ID
func chainNameFromID(chainID uint64) (string, error) {
	switch chainID {
	case EthereumMainnetChainID, ethereumSepoliaChainID:
		return ethereumName, nil
	case polygonMainnetChainID, polygonAmoyChainID:
		return polygonName, nil
	case bscMainnetChainID, bscTestnetChainID:
		return bscName, nil
	case arbitrumMainnetChainID:
		return arbitrumName, nil
	case baseMainnetChainID:
		return baseName, nil
	case avalancheMainnetChainID:
		return avalancheName, nil
	}
	return "", fmt.Errorf("unsupported chain ID: %d", chainID)
}

// ChainName returns a lowercase chain family name for labels, or chain_<id>.
func ChainName(chainID uint64) string {
	name, err := chainNameFromID(chainID)
	if err != nil {
		return fmt.Sprintf("chain_%d", chainID)
	}

	return strings.ToLower(name)
}

// Package chains is the registry of CCTP-enabled networks: domain IDs,
// EVM chain IDs, token and contract addresses, and explorer links.
package chains

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Domain is a Circle-assigned CCTP domain identifier. Domains are not
// EVM chain IDs; the mapping between the two is maintained here.
type Domain uint32

const (
	DomainEthereum   Domain = 0
	DomainAvalanche  Domain = 1
	DomainOPMainnet  Domain = 2
	DomainArbitrum   Domain = 3
	DomainNoble      Domain = 4
	DomainSolana     Domain = 5
	DomainBase       Domain = 6
	DomainPolygon    Domain = 7
	DomainUnichain   Domain = 10
	DomainLinea      Domain = 11
	DomainSonic      Domain = 13
	DomainWorldChain Domain = 14
	DomainStarknet   Domain = 25
)

// CCTP V2 contracts share one address across all EVM chains.
var (
	TokenMessengerV2     = common.HexToAddress("0x28b5a0e9C621a5BadaA536219b3a228C8168cf5d")
	MessageTransmitterV2 = common.HexToAddress("0x81D40F21F12A8F0E3252Bccb954D722d4c464B64")
)

// DomainNames maps domain IDs to human-readable names
var DomainNames = map[Domain]string{
	DomainEthereum:   "Ethereum",
	DomainAvalanche:  "Avalanche",
	DomainOPMainnet:  "OP Mainnet",
	DomainArbitrum:   "Arbitrum",
	DomainNoble:      "Noble",
	DomainSolana:     "Solana",
	DomainBase:       "Base",
	DomainPolygon:    "Polygon",
	DomainUnichain:   "Unichain",
	DomainLinea:      "Linea",
	DomainSonic:      "Sonic",
	DomainWorldChain: "World Chain",
	DomainStarknet:   "Starknet",
}

func (d Domain) String() string {
	if name, ok := DomainNames[d]; ok {
		return name
	}
	return fmt.Sprintf("domain-%d", uint32(d))
}

// chainToDomain covers EVM mainnets and their Sepolia-family testnets.
// Non-EVM domains (Noble, Solana, Starknet) have no EVM chain ID and are
// decodable in transfer statuses but not routable by the orchestrator.
var chainToDomain = map[int64]Domain{
	// Mainnets
	1:     DomainEthereum,
	43114: DomainAvalanche,
	10:    DomainOPMainnet,
	42161: DomainArbitrum,
	8453:  DomainBase,
	137:   DomainPolygon,
	130:   DomainUnichain,
	59144: DomainLinea,
	146:   DomainSonic,
	480:   DomainWorldChain,

	// Testnets
	11155111: DomainEthereum,
	43113:    DomainAvalanche,
	11155420: DomainOPMainnet,
	421614:   DomainArbitrum,
	84532:    DomainBase,
	80002:    DomainPolygon,
}

// domainToChain resolves a domain back to its mainnet chain ID.
var domainToChain = map[Domain]int64{
	DomainEthereum:   1,
	DomainAvalanche:  43114,
	DomainOPMainnet:  10,
	DomainArbitrum:   42161,
	DomainBase:       8453,
	DomainPolygon:    137,
	DomainUnichain:   130,
	DomainLinea:      59144,
	DomainSonic:      146,
	DomainWorldChain: 480,
}

// testnetChains drives sandbox vs mainnet Iris API selection.
var testnetChains = map[int64]struct{}{
	11155111: {}, // Ethereum Sepolia
	43113:    {}, // Avalanche Fuji
	11155420: {}, // OP Sepolia
	421614:   {}, // Arbitrum Sepolia
	84532:    {}, // Base Sepolia
	80002:    {}, // Polygon Amoy
}

// usdcAddresses are the native (Circle-issued) USDC deployments.
var usdcAddresses = map[int64]common.Address{
	1:     common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
	43114: common.HexToAddress("0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E"),
	10:    common.HexToAddress("0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85"),
	42161: common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"),
	8453:  common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
	137:   common.HexToAddress("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"),
	130:   common.HexToAddress("0x078D782b760474a361dDA0AF3839290b0EF57AD6"),
	59144: common.HexToAddress("0x176211869cA2b568f2A7D4EE941E073a821EE1ff"),
	146:   common.HexToAddress("0x29219dd400f2Bf60E5a23d13Be72B486D4038894"),
	480:   common.HexToAddress("0x79A02482A880bCE3F13e09Da970dC34db4CD24d1"),

	11155111: common.HexToAddress("0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"),
	43113:    common.HexToAddress("0x5425890298aed601595a70AB815c96711a31Bc65"),
	11155420: common.HexToAddress("0x5fd84259d66Cd46123540766Be93DFE6D43130D7"),
	421614:   common.HexToAddress("0x75faf114eafb1BDbe2F0316DF893fd58CE46AA4d"),
	84532:    common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e"),
	80002:    common.HexToAddress("0x41E94Eb019C0762f9Bfcf9Fb1E58725BfB0e7582"),
}

// DomainForChain resolves an EVM chain ID to its CCTP domain.
func DomainForChain(chainID int64) (Domain, bool) {
	d, ok := chainToDomain[chainID]
	return d, ok
}

// ChainForDomain resolves a CCTP domain to its mainnet EVM chain ID.
// Non-EVM domains resolve to false.
func ChainForDomain(d Domain) (int64, bool) {
	id, ok := domainToChain[d]
	return id, ok
}

// IsTestnet reports whether chainID belongs to a CCTP sandbox network.
func IsTestnet(chainID int64) bool {
	_, ok := testnetChains[chainID]
	return ok
}

// USDCAddress returns the native USDC token address for a chain.
func USDCAddress(chainID int64) (common.Address, bool) {
	addr, ok := usdcAddresses[chainID]
	return addr, ok
}

// ChainName returns a display name for an EVM chain ID, falling back to
// the numeric ID for unknown chains.
func ChainName(chainID int64) string {
	if d, ok := chainToDomain[chainID]; ok {
		if IsTestnet(chainID) {
			return fmt.Sprintf("%s testnet", d)
		}
		return d.String()
	}
	return fmt.Sprintf("chain-%d", chainID)
}

const explorerBaseURL = "https://usdc.range.org/status"

// explorerSlugs covers the chains the Range explorer indexes.
var explorerSlugs = map[Domain]string{
	DomainEthereum: "ethereum",
	DomainArbitrum: "arbitrum",
	DomainBase:     "base",
	DomainPolygon:  "polygon",
}

// BurnExplorerURL builds a Range CCTP explorer link for a burn transaction.
// Returns false for chains the explorer does not index.
func BurnExplorerURL(sourceDomain Domain, txHash string) (string, bool) {
	slug, ok := explorerSlugs[sourceDomain]
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%s?id=%s/%s", explorerBaseURL, slug, txHash), true
}

package onchain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/rail-service/cctp-go/chains"
)

// DefaultGasLimit covers each of the three CCTP primitives on every
// supported chain with headroom.
const DefaultGasLimit = 1_000_000

// minFinalityThresholdFinalized requests a standard transfer, attested
// only after source-chain finality. Fast transfers use 1000 and charge
// a fee.
const minFinalityThresholdFinalized = 2000

const (
	erc20ABI = `[{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}]`

	tokenMessengerABI = `[{"name":"depositForBurn","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"},{"name":"destinationDomain","type":"uint32"},{"name":"mintRecipient","type":"bytes32"},{"name":"burnToken","type":"address"},{"name":"destinationCaller","type":"bytes32"},{"name":"maxFee","type":"uint256"},{"name":"minFinalityThreshold","type":"uint32"}],"outputs":[]}]`

	messageTransmitterABI = `[{"name":"receiveMessage","type":"function","stateMutability":"nonpayable","inputs":[{"name":"message","type":"bytes"},{"name":"attestation","type":"bytes"}],"outputs":[]}]`
)

// Builder crafts calldata for the CCTP V2 primitives: USDC approval,
// depositForBurn on TokenMessengerV2 and receiveMessage on
// MessageTransmitterV2.
type Builder struct {
	gasLimit    uint64
	erc20       abi.ABI
	messenger   abi.ABI
	transmitter abi.ABI
}

// NewBuilder returns a builder whose calls carry the given gas limit,
// or DefaultGasLimit when zero.
func NewBuilder(gasLimit uint64) (*Builder, error) {
	if gasLimit == 0 {
		gasLimit = DefaultGasLimit
	}
	erc20, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	messenger, err := abi.JSON(strings.NewReader(tokenMessengerABI))
	if err != nil {
		return nil, fmt.Errorf("parse token messenger abi: %w", err)
	}
	transmitter, err := abi.JSON(strings.NewReader(messageTransmitterABI))
	if err != nil {
		return nil, fmt.Errorf("parse message transmitter abi: %w", err)
	}
	return &Builder{
		gasLimit:    gasLimit,
		erc20:       erc20,
		messenger:   messenger,
		transmitter: transmitter,
	}, nil
}

// ApproveForBurn approves the token messenger to pull amount USDC on
// chainID.
func (b *Builder) ApproveForBurn(chainID int64, amount *big.Int) (Call, error) {
	usdc, ok := chains.USDCAddress(chainID)
	if !ok {
		return Call{}, fmt.Errorf("no USDC deployment known for chain %d", chainID)
	}
	data, err := b.erc20.Pack("approve", chains.TokenMessengerV2, amount)
	if err != nil {
		return Call{}, fmt.Errorf("pack approve: %w", err)
	}
	return Call{
		ChainID: chainID,
		To:      usdc,
		Data:    data,
		Gas:     b.gasLimit,
		Note:    "approve USDC for burn",
	}, nil
}

// DepositForBurn burns amount USDC on the source chain, minting to
// mintRecipient on the destination chain. The destination caller is
// left open so any account may relay the receive, and a zero max fee
// with the finalized threshold selects the standard fee-free transfer.
func (b *Builder) DepositForBurn(sourceChainID, destChainID int64, amount *big.Int, mintRecipient common.Address) (Call, error) {
	destDomain, ok := chains.DomainForChain(destChainID)
	if !ok {
		return Call{}, fmt.Errorf("chain %d does not support CCTP", destChainID)
	}
	usdc, ok := chains.USDCAddress(sourceChainID)
	if !ok {
		return Call{}, fmt.Errorf("no USDC deployment known for chain %d", sourceChainID)
	}

	var recipientWord, zeroCaller [32]byte
	copy(recipientWord[12:], mintRecipient.Bytes())

	data, err := b.messenger.Pack("depositForBurn",
		amount,
		uint32(destDomain),
		recipientWord,
		usdc,
		zeroCaller,
		big.NewInt(0),
		uint32(minFinalityThresholdFinalized),
	)
	if err != nil {
		return Call{}, fmt.Errorf("pack depositForBurn: %w", err)
	}
	return Call{
		ChainID: sourceChainID,
		To:      chains.TokenMessengerV2,
		Data:    data,
		Gas:     b.gasLimit,
		Note:    fmt.Sprintf("burn USDC for %s", chains.ChainName(destChainID)),
	}, nil
}

// ReceiveMessage relays the attested message on the destination chain.
func (b *Builder) ReceiveMessage(destChainID int64, message, attestation []byte) (Call, error) {
	if len(message) == 0 {
		return Call{}, fmt.Errorf("empty message")
	}
	if len(attestation) == 0 {
		return Call{}, fmt.Errorf("empty attestation")
	}
	data, err := b.transmitter.Pack("receiveMessage", message, attestation)
	if err != nil {
		return Call{}, fmt.Errorf("pack receiveMessage: %w", err)
	}
	return Call{
		ChainID: destChainID,
		To:      chains.MessageTransmitterV2,
		Data:    data,
		Gas:     b.gasLimit,
		Note:    "receive USDC mint",
	}, nil
}

var _ CallBuilder = (*Builder)(nil)

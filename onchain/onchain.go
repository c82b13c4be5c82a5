// Package onchain defines the execution collaborators the bridge
// orchestrator drives: prepared contract calls, the submit-and-confirm
// executor, and per-chain executor construction. Signing mechanics and
// ABI encoding live behind these interfaces, outside this module.
package onchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Call is a prepared contract invocation ready for submission.
type Call struct {
	// ChainID selects the chain the call executes on.
	ChainID int64

	// To is the contract address.
	To common.Address

	// Value in wei, nil for none.
	Value *big.Int

	// Data is the ABI-encoded calldata.
	Data []byte

	// Gas limit for the transaction.
	Gas uint64

	// Note is a short human label carried into logs and errors.
	Note string
}

// Executor submits a transaction and blocks until it is confirmed
// successful, or returns an error. Implementations own signing, gas
// pricing, and nonce management for their account on one chain.
type Executor interface {
	Execute(ctx context.Context, call Call) (common.Hash, error)
}

// Factory builds executors with independent nonce tracking, one per
// destination chain, so concurrent receive submissions never contend
// on a single transaction counter.
type Factory interface {
	NewExecutor(ctx context.Context, chainID int64) (Executor, error)
}

// CallBuilder prepares the CCTP contract calls. Implementations carry
// the ABI encoding; the orchestrator only sequences and submits.
type CallBuilder interface {
	// ApproveForBurn approves USDC spending to TokenMessengerV2.
	ApproveForBurn(chainID int64, amount *big.Int) (Call, error)

	// DepositForBurn burns USDC on the source chain for the recipient
	// on the destination chain.
	DepositForBurn(sourceChainID, destChainID int64, amount *big.Int, mintRecipient common.Address) (Call, error)

	// ReceiveMessage relays the attested message to MessageTransmitterV2
	// on the destination chain, minting the USDC.
	ReceiveMessage(destChainID int64, message, attestation []byte) (Call, error)
}

// Vault routes a call through a vault's execution module, wrapping the
// inner calldata in the module's own transact entrypoint. Source-chain
// burns from a vault-held balance go through this indirection.
type Vault interface {
	Route(call Call) (Call, error)
}

// PassthroughVault routes calls unchanged, for plain EOA execution.
type PassthroughVault struct{}

func (PassthroughVault) Route(call Call) (Call, error) {
	return call, nil
}

// SingleFactory serves one pre-built executor for every chain. Useful
// for single-destination bridges and unlocked test accounts.
type SingleFactory struct {
	Exec Executor
}

func (f SingleFactory) NewExecutor(_ context.Context, _ int64) (Executor, error) {
	if f.Exec == nil {
		return nil, fmt.Errorf("single factory has no executor")
	}
	return f.Exec, nil
}

// ExecutionError reports a transaction that reverted or failed to
// confirm. The orchestrator treats it as fatal for that transfer.
type ExecutionError struct {
	ChainID int64
	TxHash  common.Hash
	Reason  string
	Err     error
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("transaction failed on chain %d: %s", e.ChainID, e.Reason)
	if e.TxHash != (common.Hash{}) {
		msg += fmt.Sprintf(" (tx %s)", e.TxHash.Hex())
	}
	return msg
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

var (
	_ Vault   = PassthroughVault{}
	_ Factory = SingleFactory{}
)

package bridge

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Destination describes one leg of a bridge: how much USDC to deliver
// to which recipient on which chain. Amount is in USDC base units
// (6 decimals).
type Destination struct {
	ChainID   int64
	Recipient common.Address
	Amount    *big.Int
}

// BurnResult captures a confirmed burn on the source chain, the input
// to the attestation and receive stages.
type BurnResult struct {
	BurnTxHash    common.Hash
	Amount        *big.Int
	SourceChainID int64
	DestChainID   int64
	Recipient     common.Address
}

// Result is the terminal record of one completed transfer.
type Result struct {
	BurnTxHash    common.Hash
	ReceiveTxHash common.Hash
	Amount        *big.Int
	SourceChainID int64
	DestChainID   int64
}

// PhaseEvent is pushed to the events channel on every phase transition
// and on every attestation poll. Index is the position of the transfer
// in the original destinations slice. Attempt is the 1-based poll
// attempt during attestation waits, and 0 for transitions the
// orchestrator drives itself.
type PhaseEvent struct {
	Index       int
	Phase       Phase
	DestChainID int64
	Attempt     int
}

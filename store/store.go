// Package store persists bridge run records so operators can find
// stuck or partially completed transfers after the fact. Implementations
// are passive: the orchestrator owns the record and upserts it at phase
// boundaries.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Run lifecycle statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// ErrRunNotFound is returned when no record exists for a run id.
var ErrRunNotFound = errors.New("bridge run not found")

// TransferRecord is the persisted state of one destination leg.
// Amount is in whole USDC, not base units. Tx hashes are empty until
// the corresponding phase confirms.
type TransferRecord struct {
	DestChainID   int64           `json:"dest_chain_id"`
	Recipient     string          `json:"recipient"`
	Amount        decimal.Decimal `json:"amount"`
	BurnTxHash    string          `json:"burn_tx_hash,omitempty"`
	ReceiveTxHash string          `json:"receive_tx_hash,omitempty"`
	Phase         string          `json:"phase"`
	Error         string          `json:"error,omitempty"`
}

// Record is the persisted state of one bridge run.
type Record struct {
	ID            uuid.UUID        `json:"id"`
	SourceChainID int64            `json:"source_chain_id"`
	Status        string           `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	Transfers     []TransferRecord `json:"transfers"`
}

// Store saves and retrieves bridge run records. SaveRun is an upsert:
// saving a record that already exists replaces it and moves it between
// status indexes when the status changed. UpdateTransfer applies a
// targeted mutation to one destination leg of an existing run.
type Store interface {
	SaveRun(ctx context.Context, rec *Record) error
	UpdateTransfer(ctx context.Context, runID uuid.UUID, index int, fn func(*TransferRecord)) error
	GetRun(ctx context.Context, id uuid.UUID) (*Record, error)
	ListRunsByStatus(ctx context.Context, status string) ([]*Record, error)
	Close() error
}

func cloneRecord(rec *Record) *Record {
	out := *rec
	out.Transfers = append([]TransferRecord(nil), rec.Transfers...)
	return &out
}

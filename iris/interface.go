package iris

import (
	"context"

	"github.com/rail-service/cctp-go/chains"
)

// API defines the interface for Iris attestation service operations
type API interface {
	// FetchAttestation blocks until the attestation for a burn is signed
	FetchAttestation(ctx context.Context, sourceDomain chains.Domain, txHash string, opts FetchOptions) (*Attestation, error)

	// IsAttestationComplete is a best-effort one-shot readiness check
	IsAttestationComplete(ctx context.Context, sourceDomain chains.Domain, txHash string) bool

	// FetchTransferStatus is a one-shot structured status check
	FetchTransferStatus(ctx context.Context, sourceDomain chains.Domain, txHash string) (*TransferStatus, error)

	// PollTransferStatus blocks until the transfer completes
	PollTransferStatus(ctx context.Context, sourceDomain chains.Domain, txHash string, opts PollOptions) (*TransferStatus, error)

	// PollTransfersParallel polls multiple transfers concurrently
	PollTransfersParallel(ctx context.Context, queries []TransferQuery, opts PollOptions) ([]*TransferStatus, error)

	// GetFees retrieves current fees for a transfer between domains
	GetFees(ctx context.Context, sourceDomain, destDomain chains.Domain) (*FeesResponse, error)

	// GetPublicKeys retrieves attestation public keys for verification
	GetPublicKeys(ctx context.Context) (*PublicKeysResponse, error)
}

// Ensure Client implements API interface
var _ API = (*Client)(nil)

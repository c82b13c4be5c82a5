package iris

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/rail-service/cctp-go/chains"
)

// DelayReason explains a hold the attestation service has placed on a
// transfer. Empty means no delay.
type DelayReason string

const (
	DelayInsufficientFee       DelayReason = "insufficient_fee"
	DelayAmountAboveMax        DelayReason = "amount_above_max"
	DelayInsufficientAllowance DelayReason = "insufficient_allowance_available"
)

// messagesResponse is the raw /v2/messages payload.
type messagesResponse struct {
	Messages []messageJSON `json:"messages"`
}

type messageJSON struct {
	Status         string             `json:"status"`
	Attestation    string             `json:"attestation"`
	Message        string             `json:"message"`
	EventNonce     string             `json:"eventNonce"`
	DelayReason    string             `json:"delayReason"`
	CCTPVersion    int                `json:"cctpVersion"`
	DecodedMessage decodedMessageJSON `json:"decodedMessage"`
}

type decodedMessageJSON struct {
	DestinationDomain flexUint32 `json:"destinationDomain"`
}

// flexUint32 decodes a JSON number or numeric string. Iris is not
// consistent about which one decodedMessage fields use.
type flexUint32 uint32

func (f *flexUint32) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return fmt.Errorf("parse destination domain %q: %w", s, err)
	}
	*f = flexUint32(v)
	return nil
}

// Attestation is the signed proof of a burn, ready to be relayed to the
// destination chain's MessageTransmitterV2 via receiveMessage().
type Attestation struct {
	// Message is the raw CCTP message bytes.
	Message []byte

	// Attestation is the attestation signature bytes.
	Attestation []byte

	// Status as reported by Iris, "complete" on success.
	Status string
}

// TransferStatus is the parsed state of one cross-chain transfer as
// reported by the /v2/messages/{sourceDomainId} endpoint.
type TransferStatus struct {
	// Status is "complete" or "pending_confirmations".
	Status string

	// SourceDomain is the CCTP domain the burn happened on.
	SourceDomain chains.Domain

	// DestDomain comes from the decoded message, 0 if unavailable.
	DestDomain chains.Domain

	// Attestation bytes, nil until signed.
	Attestation []byte

	// Message bytes, nil until available.
	Message []byte

	// Nonce is the event nonce assigned by the protocol.
	Nonce string

	// DelayReason is set when the service is holding the transfer.
	DelayReason DelayReason

	// TxHash of the depositForBurn() call.
	TxHash string

	// Version is the CCTP protocol version (1 or 2).
	Version int
}

// IsComplete reports whether the attestation is signed and ready for
// receiveMessage(). Status alone is not sufficient; an upstream race can
// report complete before the payload is attached.
func (s *TransferStatus) IsComplete() bool {
	return s.Status == StatusComplete && len(s.Attestation) > 0
}

// IsPending reports whether the transfer is still awaiting finality.
func (s *TransferStatus) IsPending() bool {
	return s.Status == StatusPendingConfirmations
}

// IsDelayed reports whether the service holds the transfer back.
func (s *TransferStatus) IsDelayed() bool {
	return s.DelayReason != ""
}

// parseTransferStatus converts one raw message into a TransferStatus,
// rejecting malformed hex payloads instead of passing them downstream.
func parseTransferStatus(msg messageJSON, sourceDomain chains.Domain, txHash string) (*TransferStatus, error) {
	attestation, err := decodeHexPayload(msg.Attestation)
	if err != nil {
		return nil, fmt.Errorf("decode attestation for tx %s: %w", txHash, err)
	}

	message, err := decodeHexPayload(msg.Message)
	if err != nil {
		return nil, fmt.Errorf("decode message for tx %s: %w", txHash, err)
	}

	return &TransferStatus{
		Status:       msg.Status,
		SourceDomain: sourceDomain,
		DestDomain:   chains.Domain(msg.DecodedMessage.DestinationDomain),
		Attestation:  attestation,
		Message:      message,
		Nonce:        msg.EventNonce,
		DelayReason:  DelayReason(msg.DelayReason),
		TxHash:       txHash,
		Version:      msg.CCTPVersion,
	}, nil
}

// decodeHexPayload decodes an optionally 0x-prefixed hex field. Empty
// strings and the "PENDING" placeholder decode to nil.
func decodeHexPayload(s string) ([]byte, error) {
	if s == "" || s == "0x" || s == AttestationPendingSentinel {
		return nil, nil
	}
	if strings.HasPrefix(s, "0x") {
		return hexutil.Decode(s)
	}
	return hex.DecodeString(s)
}

// FeesResponse represents the fees for a cross-chain transfer
type FeesResponse struct {
	SourceDomain      uint32 `json:"sourceDomain"`
	DestinationDomain uint32 `json:"destinationDomain"`
	FastTransferFee   Fee    `json:"fastTransferFee"`
	StandardFee       Fee    `json:"standardFee"`
}

// Fee represents fee details
type Fee struct {
	MinimumFee uint64 `json:"minimumFee"` // in basis points
}

// PublicKeysResponse represents attestation public keys
type PublicKeysResponse struct {
	Keys []PublicKey `json:"keys"`
}

// PublicKey represents a single attestation public key
type PublicKey struct {
	KeyID     string `json:"keyId"`
	PublicKey string `json:"publicKey"`
	Algorithm string `json:"algorithm"`
}

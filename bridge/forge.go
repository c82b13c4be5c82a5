package bridge

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rail-service/cctp-go/chains"
	"github.com/rail-service/cctp-go/iris"
)

const (
	// messageVersion and messageBodyVersion are the CCTP V2 wire format
	// versions checked by MessageTransmitterV2 and TokenMessengerV2.
	messageVersion     = 1
	messageBodyVersion = 1

	// finalityThresholdFinalized marks a standard (fully finalized)
	// transfer. Fast transfers use 1000; the forge always produces
	// finalized messages so the token messenger takes the
	// no-fee mint path.
	finalityThresholdFinalized = 2000

	// DefaultNonceBase offsets forged nonces far away from anything a
	// real transmitter emits. The destination domain is added on top so
	// nonces stay distinct across the destinations of one run.
	DefaultNonceBase = 999_999_000

	messageHeaderSize = 148
	burnBodySize      = 228

	// ForgedMessageSize is the byte length of every forged message:
	// a V2 header followed by a hookless BurnMessageV2 body.
	ForgedMessageSize = messageHeaderSize + burnBodySize
)

// ForgeRequest describes the burn a forged message should certify.
type ForgeRequest struct {
	SourceDomain  chains.Domain
	DestDomain    chains.Domain
	MintRecipient common.Address
	Amount        *big.Int
	BurnToken     common.Address
}

// Forger builds deterministic CCTP V2 burn messages and signs them with
// a local attester key. It exists for simulate mode: against forked
// chains whose message transmitter has had its attester set replaced
// with this key, a forged message mints real USDC without ever talking
// to the attestation service.
type Forger struct {
	key       *ecdsa.PrivateKey
	nonceBase uint64
}

// NewForger returns a forger signing with the given attester key.
func NewForger(key *ecdsa.PrivateKey) (*Forger, error) {
	if key == nil {
		return nil, errors.New("attester key is required")
	}
	return &Forger{key: key, nonceBase: DefaultNonceBase}, nil
}

// Attester returns the address that verifiers recover from forged
// attestations. Fork setups enable this address as the sole attester.
func (f *Forger) Attester() common.Address {
	return crypto.PubkeyToAddress(f.key.PublicKey)
}

// Forge crafts the message for req and signs it. The nonce is derived
// from the destination domain, so forging the same request twice yields
// identical bytes, and forging for two destinations never collides.
func (f *Forger) Forge(req ForgeRequest) (*iris.Attestation, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, errors.New("forge amount must be positive")
	}
	if req.Amount.BitLen() > 256 {
		return nil, errors.New("forge amount does not fit uint256")
	}

	nonce := f.nonceBase + uint64(req.DestDomain)
	message := craftMessage(req, nonce)

	digest := crypto.Keccak256(message)
	sig, err := crypto.Sign(digest, f.key)
	if err != nil {
		return nil, fmt.Errorf("sign forged message: %w", err)
	}
	// Recovery id to Ethereum convention.
	sig[64] += 27

	return &iris.Attestation{
		Message:     message,
		Attestation: sig,
		Status:      iris.StatusComplete,
	}, nil
}

// craftMessage serializes a V2 message header and BurnMessageV2 body.
//
// Header layout (148 bytes): version, source domain, destination domain
// (uint32 each), then nonce, sender, recipient, destinationCaller
// (bytes32 each), then min and executed finality thresholds (uint32
// each). Body layout (228 bytes): version (uint32), then burnToken,
// mintRecipient, amount, messageSender, maxFee, feeExecuted,
// expirationBlock (bytes32 each) with no hook data.
func craftMessage(req ForgeRequest, nonce uint64) []byte {
	buf := new(bytes.Buffer)

	mustWrite(buf, uint32(messageVersion))
	mustWrite(buf, uint32(req.SourceDomain))
	mustWrite(buf, uint32(req.DestDomain))

	var nonceWord [32]byte
	binary.BigEndian.PutUint64(nonceWord[24:], nonce)
	buf.Write(nonceWord[:])

	// Sender and recipient are the token messengers on each side.
	// The same contract address is deployed on every EVM chain.
	messenger := common.LeftPadBytes(chains.TokenMessengerV2.Bytes(), 32)
	buf.Write(messenger)
	buf.Write(messenger)
	// Zero destinationCaller lets any account submit the receive.
	buf.Write(make([]byte, 32))

	mustWrite(buf, uint32(finalityThresholdFinalized))
	mustWrite(buf, uint32(finalityThresholdFinalized))

	mustWrite(buf, uint32(messageBodyVersion))
	buf.Write(common.LeftPadBytes(req.BurnToken.Bytes(), 32))
	buf.Write(common.LeftPadBytes(req.MintRecipient.Bytes(), 32))
	buf.Write(common.LeftPadBytes(req.Amount.Bytes(), 32))
	// messageSender is informational on the mint path; zero maxFee and
	// feeExecuted take the fee-free branch, zero expirationBlock never
	// expires.
	buf.Write(make([]byte, 4*32))

	return buf.Bytes()
}

func mustWrite(w io.Writer, v any) {
	if err := binary.Write(w, binary.BigEndian, v); err != nil {
		panic(fmt.Sprintf("serialize message field: %v", err))
	}
}

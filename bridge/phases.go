package bridge

import "github.com/rail-service/cctp-go/iris"

// Phase is a stage in the lifecycle of one cross-chain transfer.
//
// Phases are ordered: a transfer moves from burning through attestation
// to receiving and completion. The attestation service can oscillate
// between waiting_for_indexing and pending_confirmations before the
// attestation lands, so observed phase sequences are not strictly
// monotonic even though the canonical order is.
type Phase string

const (
	PhaseBurning              Phase = "burning"
	PhaseWaitingForIndexing   Phase = "waiting_for_indexing"
	PhasePendingConfirmations Phase = "pending_confirmations"
	PhaseAttested             Phase = "attested"
	PhaseReceiving            Phase = "receiving"
	PhaseComplete             Phase = "complete"
)

// phaseOrder defines the canonical progression of a transfer.
var phaseOrder = [...]Phase{
	PhaseBurning,
	PhaseWaitingForIndexing,
	PhasePendingConfirmations,
	PhaseAttested,
	PhaseReceiving,
	PhaseComplete,
}

// NumPhases is the number of distinct lifecycle phases.
const NumPhases = len(phaseOrder)

// Ordinal returns the position of p in the canonical phase order, or -1
// if p is not a known phase.
func (p Phase) Ordinal() int {
	for i, known := range phaseOrder {
		if p == known {
			return i
		}
	}
	return -1
}

// Valid reports whether p is one of the known lifecycle phases.
func (p Phase) Valid() bool {
	return p.Ordinal() >= 0
}

func (p Phase) String() string {
	return string(p)
}

// PhaseFromAttestationStatus maps a raw attestation-service status to
// the lifecycle phase it corresponds to during the attestation stage.
//
// "complete" from the service maps to PhaseAttested, not PhaseComplete:
// the service reporting the attestation as ready only finishes the
// attestation stage, while the receive step on the destination chain is
// still ahead. Unknown statuses return false and should be ignored.
func PhaseFromAttestationStatus(status string) (Phase, bool) {
	switch status {
	case iris.StatusWaitingForIndexing:
		return PhaseWaitingForIndexing, true
	case iris.StatusPendingConfirmations:
		return PhasePendingConfirmations, true
	case iris.StatusComplete:
		return PhaseAttested, true
	}
	return "", false
}

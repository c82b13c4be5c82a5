package bridge

import (
	"fmt"
	"strings"
	"sync"
)

// Snapshot is a consistent copy of tracker state taken under the lock.
type Snapshot struct {
	Phases      []Phase
	PollCounts  []int
	Advanced    int
	Total       int
	Description string
}

// Tracker aggregates per-transfer phase state during a parallel bridge
// run. Sequential burn transitions, concurrent attestation poll
// callbacks, and concurrent receive transitions all funnel into Update;
// every read and write happens under one mutex.
//
// The advancement counter is monotonic. The attestation service can
// report an earlier phase after a later one (confirmation states
// oscillate before the attestation lands), and such updates switch the
// displayed phase without ever decrementing the counter.
type Tracker struct {
	mu       sync.Mutex
	labels   []string
	phases   []Phase
	polls    []int
	advanced int
}

// NewTracker returns a tracker for len(labels) transfers, all starting
// in PhaseBurning. Labels name each transfer in the description string,
// typically the destination chain name.
func NewTracker(labels []string) *Tracker {
	phases := make([]Phase, len(labels))
	for i := range phases {
		phases[i] = PhaseBurning
	}
	return &Tracker{
		labels: append([]string(nil), labels...),
		phases: phases,
		polls:  make([]int, len(labels)),
	}
}

// Update records that the transfer at index is now in phase and returns
// the number of steps this advanced the run, zero for a rewind or a
// repeat. A positive attempt refreshes the transfer's poll counter.
// When phase equals the transfer's current phase only the poll counter
// changes. Unknown phases and out-of-range indexes are ignored.
func (t *Tracker) Update(index int, phase Phase, attempt int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.phases) {
		return 0
	}
	if attempt > 0 {
		t.polls[index] = attempt
	}
	old := t.phases[index]
	if phase == old || !phase.Valid() {
		return 0
	}
	t.phases[index] = phase
	adv := phase.Ordinal() - old.Ordinal()
	if adv <= 0 {
		return 0
	}
	t.advanced += adv
	return adv
}

// Advanced returns the cumulative number of phase steps completed
// across all transfers.
func (t *Tracker) Advanced() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.advanced
}

// Total returns the number of phase steps a fully complete run advances
// through: each transfer walks every step from PhaseBurning to
// PhaseComplete.
func (t *Tracker) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.phases) * (NumPhases - 1)
}

// Snapshot returns a copy of the tracker state suitable for rendering.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		Phases:      append([]Phase(nil), t.phases...),
		PollCounts:  append([]int(nil), t.polls...),
		Advanced:    t.advanced,
		Total:       len(t.phases) * (NumPhases - 1),
		Description: t.describeLocked(),
	}
}

func (t *Tracker) describeLocked() string {
	parts := make([]string, len(t.phases))
	for i, p := range t.phases {
		parts[i] = t.labels[i] + ":" + string(p)
	}
	totalPolls := 0
	for _, n := range t.polls {
		totalPolls += n
	}
	return fmt.Sprintf("CCTP [%s] polls: %d", strings.Join(parts, ", "), totalPolls)
}

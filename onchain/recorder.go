package onchain

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// RecordedCall is one executed call with its timing window.
type RecordedCall struct {
	Call   Call
	TxHash common.Hash
	Start  time.Time
	End    time.Time
}

// Recorder is a scripted in-memory Executor for tests and simulations.
// It confirms every call with a deterministic transaction hash, after
// an optional injected latency, unless a failure is scripted. The
// timestamped call log lets tests assert sequencing: burns must not
// overlap, receives should.
type Recorder struct {
	// Latency is applied to every call.
	Latency time.Duration

	// LatencyFn overrides Latency per call when set.
	LatencyFn func(Call) time.Duration

	// FailFn injects a failure for matching calls.
	FailFn func(Call) error

	mu    sync.Mutex
	seq   uint64
	calls []RecordedCall
}

func (r *Recorder) Execute(ctx context.Context, call Call) (common.Hash, error) {
	start := time.Now()

	delay := r.Latency
	if r.LatencyFn != nil {
		delay = r.LatencyFn(call)
	}
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return common.Hash{}, ctx.Err()
		case <-timer.C:
		}
	}

	if r.FailFn != nil {
		if err := r.FailFn(call); err != nil {
			return common.Hash{}, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	hash := r.txHash(call, r.seq)
	r.calls = append(r.calls, RecordedCall{
		Call:   call,
		TxHash: hash,
		Start:  start,
		End:    time.Now(),
	})
	return hash, nil
}

// txHash derives a stable pseudo transaction hash from the call
// identity and execution sequence.
func (r *Recorder) txHash(call Call, seq uint64) common.Hash {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], uint64(call.ChainID))
	binary.BigEndian.PutUint64(buf[8:], seq)
	return crypto.Keccak256Hash(buf, call.To.Bytes(), call.Data)
}

// Calls returns a copy of the execution log in completion order.
func (r *Recorder) Calls() []RecordedCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecordedCall, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallsFor returns the log entries for one chain.
func (r *Recorder) CallsFor(chainID int64) []RecordedCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []RecordedCall
	for _, c := range r.calls {
		if c.Call.ChainID == chainID {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears the execution log.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
	r.seq = 0
}

var _ Executor = (*Recorder)(nil)

// RecorderFactory hands out one Recorder per chain, mirroring the
// per-destination-chain nonce isolation of production factories.
type RecorderFactory struct {
	// Configure tunes each newly created recorder.
	Configure func(chainID int64, r *Recorder)

	mu        sync.Mutex
	recorders map[int64]*Recorder
}

func (f *RecorderFactory) NewExecutor(_ context.Context, chainID int64) (Executor, error) {
	return f.recorder(chainID), nil
}

// Recorder returns the per-chain recorder, creating it if needed.
func (f *RecorderFactory) Recorder(chainID int64) *Recorder {
	return f.recorder(chainID)
}

func (f *RecorderFactory) recorder(chainID int64) *Recorder {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recorders == nil {
		f.recorders = make(map[int64]*Recorder)
	}
	r, ok := f.recorders[chainID]
	if !ok {
		r = &Recorder{}
		if f.Configure != nil {
			f.Configure(chainID, r)
		}
		f.recorders[chainID] = r
	}
	return r
}

var _ Factory = (*RecorderFactory)(nil)

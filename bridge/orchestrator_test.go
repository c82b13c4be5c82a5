package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rail-service/cctp-go/chains"
	"github.com/rail-service/cctp-go/iris"
	"github.com/rail-service/cctp-go/onchain"
	"github.com/rail-service/cctp-go/store"
)

// scriptedAttestations serves attestations for recorded burns, with
// per-transfer latencies and failures keyed by burn order. Burn order
// equals destination order because burns are sequential.
type scriptedAttestations struct {
	source *onchain.Recorder
	delays []time.Duration
	errs   []error
	calls  atomic.Int32
}

func (s *scriptedAttestations) indexFor(txHash common.Hash) int {
	i := 0
	for _, rc := range s.source.Calls() {
		if rc.Call.To == chains.TokenMessengerV2 {
			if rc.TxHash == txHash {
				return i
			}
			i++
		}
	}
	return -1
}

func (s *scriptedAttestations) FetchAttestation(ctx context.Context, _ chains.Domain, txHash string, opts iris.FetchOptions) (*iris.Attestation, error) {
	s.calls.Add(1)

	idx := s.indexFor(common.HexToHash(txHash))
	if idx < 0 {
		return nil, fmt.Errorf("unknown burn tx %s", txHash)
	}
	notify := func(status string, attempt int) {
		if opts.OnPhaseChange != nil {
			opts.OnPhaseChange(status, attempt)
		}
	}

	notify(iris.StatusWaitingForIndexing, 0)
	if idx < len(s.delays) && s.delays[idx] > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delays[idx]):
		}
	}
	if idx < len(s.errs) && s.errs[idx] != nil {
		return nil, s.errs[idx]
	}
	notify(iris.StatusPendingConfirmations, 1)
	notify(iris.StatusComplete, 2)

	return &iris.Attestation{
		Message:     []byte{0xbe, 0xef},
		Attestation: []byte{0xde, 0xad},
		Status:      iris.StatusComplete,
	}, nil
}

type bridgeHarness struct {
	source    *onchain.Recorder
	receivers *onchain.RecorderFactory
	atts      *scriptedAttestations
	runs      *store.MemoryStore
	events    chan PhaseEvent
	vault     onchain.Vault
	forger    *Forger
}

func newHarness() *bridgeHarness {
	source := &onchain.Recorder{}
	return &bridgeHarness{
		source:    source,
		receivers: &onchain.RecorderFactory{},
		atts:      &scriptedAttestations{source: source},
		runs:      store.NewMemoryStore(),
	}
}

func (h *bridgeHarness) bridger(t *testing.T, cfg Config) *Bridger {
	t.Helper()
	if cfg.SourceChainID == 0 {
		cfg.SourceChainID = 1
	}
	calls, err := onchain.NewBuilder(0)
	require.NoError(t, err)
	b, err := New(cfg, Deps{
		Attestations: h.atts,
		Source:       h.source,
		Receivers:    h.receivers,
		Calls:        calls,
		Vault:        h.vault,
		Forger:       h.forger,
		Runs:         h.runs,
		Events:       h.events,
	}, zap.NewNop())
	require.NoError(t, err)
	return b
}

// Base, Polygon, Arbitrum.
var testDestChains = []int64{8453, 137, 42161}

func testDestinations(n int) []Destination {
	dests := make([]Destination, n)
	for i := 0; i < n; i++ {
		dests[i] = Destination{
			ChainID:   testDestChains[i%len(testDestChains)],
			Recipient: common.HexToAddress(fmt.Sprintf("0x%040x", i+1)),
			Amount:    big.NewInt(int64(i+1) * 1_000_000),
		}
	}
	return dests
}

func (h *bridgeHarness) completedRun(t *testing.T) *store.Record {
	t.Helper()
	recs, err := h.runs.ListRunsByStatus(context.Background(), store.RunStatusCompleted)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	return recs[0]
}

func (h *bridgeHarness) failedRun(t *testing.T) *store.Record {
	t.Helper()
	recs, err := h.runs.ListRunsByStatus(context.Background(), store.RunStatusFailed)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	return recs[0]
}

func TestNewValidation(t *testing.T) {
	calls, err := onchain.NewBuilder(0)
	require.NoError(t, err)
	exec := &onchain.Recorder{}
	factory := &onchain.RecorderFactory{}
	atts := &scriptedAttestations{source: exec}

	tests := []struct {
		name    string
		cfg     Config
		deps    Deps
		wantErr string
	}{
		{
			name:    "unknown source chain",
			cfg:     Config{SourceChainID: 999_999},
			deps:    Deps{Attestations: atts, Source: exec, Receivers: factory, Calls: calls},
			wantErr: "does not support CCTP",
		},
		{
			name:    "missing source executor",
			cfg:     Config{SourceChainID: 1},
			deps:    Deps{Attestations: atts, Receivers: factory, Calls: calls},
			wantErr: "source executor is required",
		},
		{
			name:    "missing receiver factory",
			cfg:     Config{SourceChainID: 1},
			deps:    Deps{Attestations: atts, Source: exec, Calls: calls},
			wantErr: "receiver factory is required",
		},
		{
			name:    "missing call builder",
			cfg:     Config{SourceChainID: 1},
			deps:    Deps{Attestations: atts, Source: exec, Receivers: factory},
			wantErr: "call builder is required",
		},
		{
			name:    "simulate without forger",
			cfg:     Config{SourceChainID: 1, Simulate: true},
			deps:    Deps{Attestations: atts, Source: exec, Receivers: factory, Calls: calls},
			wantErr: "forger is required",
		},
		{
			name:    "production without attestation source",
			cfg:     Config{SourceChainID: 1},
			deps:    Deps{Source: exec, Receivers: factory, Calls: calls},
			wantErr: "attestation source is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, tt.deps, zap.NewNop())
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestBridgeSingleDestination(t *testing.T) {
	h := newHarness()
	b := h.bridger(t, Config{})

	dest := Destination{
		ChainID:   8453,
		Recipient: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Amount:    big.NewInt(1_500_000),
	}
	res, err := b.Bridge(context.Background(), dest)
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.SourceChainID)
	assert.Equal(t, int64(8453), res.DestChainID)
	assert.Equal(t, big.NewInt(1_500_000), res.Amount)

	// Approve then burn on the source chain, in that order.
	sourceCalls := h.source.Calls()
	require.Len(t, sourceCalls, 2)
	usdc, _ := chains.USDCAddress(1)
	assert.Equal(t, usdc, sourceCalls[0].Call.To)
	assert.Equal(t, chains.TokenMessengerV2, sourceCalls[1].Call.To)
	assert.Equal(t, sourceCalls[1].TxHash, res.BurnTxHash)

	// One receive on the destination chain carrying the attested
	// payload.
	destCalls := h.receivers.Recorder(8453).Calls()
	require.Len(t, destCalls, 1)
	assert.Equal(t, chains.MessageTransmitterV2, destCalls[0].Call.To)
	assert.Equal(t, destCalls[0].TxHash, res.ReceiveTxHash)

	rec := h.completedRun(t)
	require.Len(t, rec.Transfers, 1)
	assert.Equal(t, string(PhaseComplete), rec.Transfers[0].Phase)
	assert.Equal(t, res.BurnTxHash.Hex(), rec.Transfers[0].BurnTxHash)
	assert.Equal(t, res.ReceiveTxHash.Hex(), rec.Transfers[0].ReceiveTxHash)
	assert.True(t, rec.Transfers[0].Amount.Equal(decimal.RequireFromString("1.5")),
		"amount should be stored in whole USDC, got %s", rec.Transfers[0].Amount)
}

func TestBridgeSingleSimulate(t *testing.T) {
	h := newHarness()
	key, err := crypto.HexToECDSA(anvilKey0)
	require.NoError(t, err)
	h.forger, err = NewForger(key)
	require.NoError(t, err)

	b := h.bridger(t, Config{Simulate: true})

	dest := testDestinations(1)[0]
	res, err := b.Bridge(context.Background(), dest)
	require.NoError(t, err)

	assert.Zero(t, h.atts.calls.Load(), "simulate mode must not touch the attestation service")

	// The receive call carries the forged message, which is
	// reproducible from the same request.
	usdc, _ := chains.USDCAddress(1)
	destDomain, _ := chains.DomainForChain(dest.ChainID)
	expected, err := h.forger.Forge(ForgeRequest{
		SourceDomain:  chains.DomainEthereum,
		DestDomain:    destDomain,
		MintRecipient: dest.Recipient,
		Amount:        dest.Amount,
		BurnToken:     usdc,
	})
	require.NoError(t, err)

	destCalls := h.receivers.Recorder(dest.ChainID).Calls()
	require.Len(t, destCalls, 1)
	assert.True(t, bytes.Contains(destCalls[0].Call.Data, expected.Message))
	assert.True(t, bytes.Contains(destCalls[0].Call.Data, expected.Attestation))
	assert.Equal(t, destCalls[0].TxHash, res.ReceiveTxHash)
}

func TestBridgeSingleAttestationTimeoutIdentity(t *testing.T) {
	h := newHarness()
	timeoutErr := &iris.TimeoutError{
		SourceDomain: chains.DomainEthereum,
		TxHash:       "0xabc",
		Timeout:      time.Second,
		Elapsed:      time.Second,
		LastStatus:   iris.StatusPendingConfirmations,
	}
	h.atts.errs = []error{timeoutErr}

	b := h.bridger(t, Config{})
	_, err := b.Bridge(context.Background(), testDestinations(1)[0])
	require.Error(t, err)

	var te *iris.TimeoutError
	require.ErrorAs(t, err, &te, "timeout identity must survive wrapping")
	assert.Equal(t, iris.StatusPendingConfirmations, te.LastStatus)

	rec := h.failedRun(t)
	assert.Contains(t, rec.Transfers[0].Error, "attestation for chain")
	assert.NotEmpty(t, rec.Transfers[0].BurnTxHash, "burn happened before the attestation failed")
}

func TestBridgeVaultRouting(t *testing.T) {
	h := newHarness()
	h.vault = noteVault{}
	b := h.bridger(t, Config{})

	_, err := b.Bridge(context.Background(), testDestinations(1)[0])
	require.NoError(t, err)

	sourceCalls := h.source.Calls()
	require.Len(t, sourceCalls, 2)
	assert.Contains(t, sourceCalls[0].Call.Note, "module:", "approve is vault routed")
	assert.Contains(t, sourceCalls[1].Call.Note, "module:", "burn is vault routed")

	destCalls := h.receivers.Recorder(8453).Calls()
	require.Len(t, destCalls, 1)
	assert.NotContains(t, destCalls[0].Call.Note, "module:", "receive is a plain relay")
}

type noteVault struct{}

func (noteVault) Route(c onchain.Call) (onchain.Call, error) {
	c.Note = "module: " + c.Note
	return c, nil
}

func TestBridgeParallelOrderPreservation(t *testing.T) {
	h := newHarness()
	// Stagger both slow phases so the first destination finishes last.
	h.atts.delays = []time.Duration{90 * time.Millisecond, 50 * time.Millisecond, 10 * time.Millisecond}
	receiveLatency := map[int64]time.Duration{8453: 60 * time.Millisecond, 137: 30 * time.Millisecond, 42161: 5 * time.Millisecond}
	h.receivers.Configure = func(chainID int64, r *onchain.Recorder) {
		r.Latency = receiveLatency[chainID]
	}

	b := h.bridger(t, Config{})
	dests := testDestinations(3)

	results, err := b.BridgeParallel(context.Background(), dests)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, res := range results {
		require.NotNil(t, res, "result %d", i)
		assert.Equal(t, dests[i].ChainID, res.DestChainID, "results must follow input order, not completion order")
		assert.Equal(t, dests[i].Amount, res.Amount)
		assert.Equal(t, int64(1), res.SourceChainID)
	}

	// The staggering was real: the last destination finished first.
	endOf := func(chainID int64) time.Time {
		calls := h.receivers.Recorder(chainID).Calls()
		require.Len(t, calls, 1)
		return calls[0].End
	}
	assert.True(t, endOf(42161).Before(endOf(137)))
	assert.True(t, endOf(137).Before(endOf(8453)))

	rec := h.completedRun(t)
	for i, tr := range rec.Transfers {
		assert.Equal(t, string(PhaseComplete), tr.Phase, "transfer %d", i)
		assert.NotEmpty(t, tr.ReceiveTxHash)
	}
}

func TestBridgeParallelSequentialBurnsParallelReceives(t *testing.T) {
	h := newHarness()
	h.source.Latency = 20 * time.Millisecond
	h.receivers.Configure = func(_ int64, r *onchain.Recorder) {
		r.Latency = 40 * time.Millisecond
	}

	b := h.bridger(t, Config{})
	_, err := b.BridgeParallel(context.Background(), testDestinations(3))
	require.NoError(t, err)

	// Burns share the source account, so their windows never overlap.
	sourceCalls := h.source.Calls()
	require.Len(t, sourceCalls, 6)
	for i := 1; i < len(sourceCalls); i++ {
		assert.False(t, sourceCalls[i].Start.Before(sourceCalls[i-1].End),
			"source call %d started before call %d finished", i, i-1)
	}

	// Receives run concurrently: every window overlaps every other.
	var starts, ends []time.Time
	for _, chainID := range testDestChains {
		calls := h.receivers.Recorder(chainID).Calls()
		require.Len(t, calls, 1)
		starts = append(starts, calls[0].Start)
		ends = append(ends, calls[0].End)
	}
	latestStart, earliestEnd := starts[0], ends[0]
	for i := 1; i < 3; i++ {
		if starts[i].After(latestStart) {
			latestStart = starts[i]
		}
		if ends[i].Before(earliestEnd) {
			earliestEnd = ends[i]
		}
	}
	assert.True(t, latestStart.Before(earliestEnd), "receive windows should overlap")
}

func TestBridgeParallelMaxWorkersSerializesReceives(t *testing.T) {
	h := newHarness()
	h.receivers.Configure = func(_ int64, r *onchain.Recorder) {
		r.Latency = 20 * time.Millisecond
	}

	b := h.bridger(t, Config{MaxWorkers: 1})
	_, err := b.BridgeParallel(context.Background(), testDestinations(3))
	require.NoError(t, err)

	var windows []onchain.RecordedCall
	for _, chainID := range testDestChains {
		windows = append(windows, h.receivers.Recorder(chainID).Calls()...)
	}
	require.Len(t, windows, 3)
	for i := range windows {
		for j := range windows {
			if i == j {
				continue
			}
			overlap := windows[i].Start.Before(windows[j].End) && windows[j].Start.Before(windows[i].End)
			assert.False(t, overlap, "receives %d and %d overlap with a single worker", i, j)
		}
	}
}

func TestBridgeParallelReceiveFailurePartialResults(t *testing.T) {
	h := newHarness()
	h.receivers.Configure = func(chainID int64, r *onchain.Recorder) {
		if chainID == 137 {
			r.FailFn = func(onchain.Call) error {
				return errors.New("execution reverted")
			}
		}
	}

	b := h.bridger(t, Config{})
	results, err := b.BridgeParallel(context.Background(), testDestinations(3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "receive 1 on chain 137")
	assert.Contains(t, err.Error(), "execution reverted")

	// Partial completion is terminal and visible.
	require.Len(t, results, 3)
	assert.NotNil(t, results[0])
	assert.Nil(t, results[1])
	assert.NotNil(t, results[2])

	rec := h.failedRun(t)
	assert.Equal(t, string(PhaseComplete), rec.Transfers[0].Phase)
	assert.Contains(t, rec.Transfers[1].Error, "execution reverted")
	assert.Empty(t, rec.Transfers[1].ReceiveTxHash)
	assert.Equal(t, string(PhaseComplete), rec.Transfers[2].Phase)
}

func TestBridgeParallelAttestationFailure(t *testing.T) {
	h := newHarness()
	h.atts.delays = []time.Duration{10 * time.Millisecond, 0, 10 * time.Millisecond}
	h.atts.errs = []error{nil, errors.New("malformed request"), nil}

	b := h.bridger(t, Config{})
	results, err := b.BridgeParallel(context.Background(), testDestinations(3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attestation 1 for chain 137")

	// All burns happened, no receive was attempted anywhere.
	assert.Len(t, h.source.Calls(), 6)
	for _, chainID := range testDestChains {
		assert.Empty(t, h.receivers.Recorder(chainID).Calls())
	}
	for _, res := range results {
		assert.Nil(t, res)
	}

	rec := h.failedRun(t)
	assert.Contains(t, rec.Transfers[1].Error, "malformed request")
}

func TestBridgeParallelBurnFailureStopsRun(t *testing.T) {
	h := newHarness()
	calls := 0
	h.source.FailFn = func(onchain.Call) error {
		calls++
		// Approve and burn for the first destination pass, the second
		// destination's approve fails.
		if calls == 3 {
			return errors.New("insufficient balance")
		}
		return nil
	}

	b := h.bridger(t, Config{})
	results, err := b.BridgeParallel(context.Background(), testDestinations(3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "burn 1 for chain 137")
	assert.Contains(t, err.Error(), "insufficient balance")

	for _, res := range results {
		assert.Nil(t, res)
	}
	assert.Zero(t, h.atts.calls.Load(), "no attestation wait starts after a failed burn")
	for _, chainID := range testDestChains {
		assert.Empty(t, h.receivers.Recorder(chainID).Calls())
	}
}

func TestBridgeParallelValidation(t *testing.T) {
	h := newHarness()
	b := h.bridger(t, Config{})
	ctx := context.Background()

	t.Run("empty destinations", func(t *testing.T) {
		results, err := b.BridgeParallel(ctx, nil)
		require.NoError(t, err)
		assert.Nil(t, results)
	})

	t.Run("zero amount", func(t *testing.T) {
		dests := testDestinations(2)
		dests[1].Amount = big.NewInt(0)
		_, err := b.BridgeParallel(ctx, dests)
		assert.ErrorContains(t, err, "destination 1: amount must be positive")
	})

	t.Run("missing recipient", func(t *testing.T) {
		dests := testDestinations(1)
		dests[0].Recipient = common.Address{}
		_, err := b.BridgeParallel(ctx, dests)
		assert.ErrorContains(t, err, "recipient is required")
	})

	t.Run("unsupported chain", func(t *testing.T) {
		dests := testDestinations(1)
		dests[0].ChainID = 999_999
		_, err := b.BridgeParallel(ctx, dests)
		assert.ErrorContains(t, err, "does not support CCTP")
	})

	assert.Empty(t, h.source.Calls(), "validation failures must precede any on-chain action")
}

func TestBridgeParallelSimulate(t *testing.T) {
	h := newHarness()
	key, err := crypto.HexToECDSA(anvilKey0)
	require.NoError(t, err)
	h.forger, err = NewForger(key)
	require.NoError(t, err)

	b := h.bridger(t, Config{Simulate: true})
	results, err := b.BridgeParallel(context.Background(), testDestinations(3))
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Zero(t, h.atts.calls.Load())

	// Simulated receives run sequentially against local forks.
	var windows []onchain.RecordedCall
	for _, chainID := range testDestChains {
		calls := h.receivers.Recorder(chainID).Calls()
		require.Len(t, calls, 1)
		windows = append(windows, calls...)
	}
	for i := range windows {
		for j := range windows {
			if i == j {
				continue
			}
			overlap := windows[i].Start.Before(windows[j].End) && windows[j].Start.Before(windows[i].End)
			assert.False(t, overlap, "simulated receives %d and %d overlap", i, j)
		}
	}
}

func TestBridgeParallelEvents(t *testing.T) {
	h := newHarness()
	h.events = make(chan PhaseEvent, 256)
	key, err := crypto.HexToECDSA(anvilKey0)
	require.NoError(t, err)
	h.forger, err = NewForger(key)
	require.NoError(t, err)

	b := h.bridger(t, Config{Simulate: true})
	dests := testDestinations(2)
	_, err = b.BridgeParallel(context.Background(), dests)
	require.NoError(t, err)

	var got []PhaseEvent
	for len(h.events) > 0 {
		got = append(got, <-h.events)
	}

	perIndex := map[int][]Phase{}
	for _, ev := range got {
		perIndex[ev.Index] = append(perIndex[ev.Index], ev.Phase)
		assert.Equal(t, dests[ev.Index].ChainID, ev.DestChainID)
	}
	want := []Phase{PhaseBurning, PhaseAttested, PhaseReceiving, PhaseComplete}
	for idx := 0; idx < 2; idx++ {
		assert.Equal(t, want, perIndex[idx], "event sequence for transfer %d", idx)
	}
}

func TestBridgeParallelPollCallbacksReachTracker(t *testing.T) {
	h := newHarness()
	h.events = make(chan PhaseEvent, 256)
	h.atts.delays = []time.Duration{5 * time.Millisecond}

	b := h.bridger(t, Config{})
	_, err := b.BridgeParallel(context.Background(), testDestinations(1))
	require.NoError(t, err)

	var phases []Phase
	attempts := map[Phase]int{}
	for len(h.events) > 0 {
		ev := <-h.events
		phases = append(phases, ev.Phase)
		attempts[ev.Phase] = ev.Attempt
	}

	// The poll callback translates service statuses into phases:
	// "complete" from the service surfaces as attested.
	assert.Equal(t, []Phase{
		PhaseBurning,
		PhaseWaitingForIndexing,
		PhaseWaitingForIndexing,
		PhasePendingConfirmations,
		PhaseAttested,
		PhaseReceiving,
		PhaseComplete,
	}, phases)
	assert.Equal(t, 1, attempts[PhasePendingConfirmations])
	assert.Equal(t, 2, attempts[PhaseAttested])
}

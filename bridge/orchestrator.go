// Package bridge orchestrates CCTP V2 transfers end to end: burn USDC
// on a source chain, wait for the attestation, and mint on one or more
// destination chains.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rail-service/cctp-go/chains"
	"github.com/rail-service/cctp-go/iris"
	"github.com/rail-service/cctp-go/onchain"
	"github.com/rail-service/cctp-go/store"
)

// DefaultParallelTimeout bounds attestation waits during parallel runs.
// Single transfers default to the attestation client's own timeout;
// multi-destination runs wait longer because a slow destination should
// not sink its siblings.
const DefaultParallelTimeout = 40 * time.Minute

// AttestationSource is the slice of the attestation client the
// orchestrator depends on.
type AttestationSource interface {
	FetchAttestation(ctx context.Context, sourceDomain chains.Domain, txHash string, opts iris.FetchOptions) (*iris.Attestation, error)
}

var _ AttestationSource = (*iris.Client)(nil)

// Config tunes a Bridger. Zero durations and counts take defaults.
type Config struct {
	// SourceChainID is the chain USDC is burned on. All transfers of a
	// Bridger share it, and with it the source account nonce sequence.
	SourceChainID int64

	// AttestationTimeout bounds the attestation wait of a single
	// transfer. Defaults to iris.DefaultAttestationTimeout.
	AttestationTimeout time.Duration

	// ParallelTimeout bounds each attestation wait during parallel
	// runs. Defaults to DefaultParallelTimeout.
	ParallelTimeout time.Duration

	// PollInterval between attestation polls. Zero uses the attestation
	// client's default.
	PollInterval time.Duration

	// MaxWorkers caps the attestation and receive pools. Zero sizes
	// them to the destination count.
	MaxWorkers int

	// Simulate forges attestations locally instead of polling the
	// attestation service, for runs against forked chains. Receives run
	// sequentially in this mode since there is no latency to hide.
	Simulate bool
}

// Deps carries the orchestrator's collaborators.
type Deps struct {
	// Attestations provides real attestations. Required unless
	// Simulate is set.
	Attestations AttestationSource

	// Source executes transactions on the source chain.
	Source onchain.Executor

	// Receivers builds one executor per destination chain. Separate
	// executors keep concurrent receives off a shared nonce counter.
	Receivers onchain.Factory

	// Calls crafts the CCTP calldata.
	Calls onchain.CallBuilder

	// Vault routes source-chain calls through the configured execution
	// pathway. Defaults to onchain.PassthroughVault.
	Vault onchain.Vault

	// Forger signs simulated attestations. Required when Simulate.
	Forger *Forger

	// Runs persists run records. Optional; persistence failures are
	// logged and never fail a transfer.
	Runs store.Store

	// Events receives a PhaseEvent per phase transition and poll during
	// parallel runs. Optional. Sends never block; a slow consumer
	// misses events.
	Events chan<- PhaseEvent
}

// Bridger moves USDC between chains over CCTP V2.
type Bridger struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// New validates cfg and deps and returns a Bridger.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Bridger, error) {
	if _, ok := chains.DomainForChain(cfg.SourceChainID); !ok {
		return nil, fmt.Errorf("source chain %d does not support CCTP", cfg.SourceChainID)
	}
	if deps.Source == nil {
		return nil, errors.New("source executor is required")
	}
	if deps.Receivers == nil {
		return nil, errors.New("receiver factory is required")
	}
	if deps.Calls == nil {
		return nil, errors.New("call builder is required")
	}
	if cfg.Simulate && deps.Forger == nil {
		return nil, errors.New("forger is required in simulate mode")
	}
	if !cfg.Simulate && deps.Attestations == nil {
		return nil, errors.New("attestation source is required")
	}
	if deps.Vault == nil {
		deps.Vault = onchain.PassthroughVault{}
	}
	if cfg.AttestationTimeout <= 0 {
		cfg.AttestationTimeout = iris.DefaultAttestationTimeout
	}
	if cfg.ParallelTimeout <= 0 {
		cfg.ParallelTimeout = DefaultParallelTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridger{cfg: cfg, deps: deps, logger: logger}, nil
}

// Bridge moves USDC to a single destination: approve and burn on the
// source chain, obtain the attestation, then mint on the destination.
// Any phase failure aborts the transfer and propagates.
func (b *Bridger) Bridge(ctx context.Context, dest Destination) (*Result, error) {
	if err := b.validateDestinations([]Destination{dest}); err != nil {
		return nil, err
	}

	start := time.Now()
	transfersInFlight.Inc()
	defer transfersInFlight.Dec()

	rec := b.newRunRecord(uuid.New(), []Destination{dest})
	b.persistRun(rec)

	burn, err := b.burn(ctx, dest)
	if err != nil {
		err = fmt.Errorf("burn for chain %d: %w", dest.ChainID, err)
		b.failRun(rec, nil, 0, err)
		return nil, err
	}
	rec.Transfers[0].BurnTxHash = burn.BurnTxHash.Hex()
	b.persistRun(rec)

	att, err := b.attestation(ctx, burn, b.cfg.AttestationTimeout, nil)
	if err != nil {
		err = fmt.Errorf("attestation for chain %d: %w", dest.ChainID, err)
		b.failRun(rec, nil, 0, err)
		return nil, err
	}
	rec.Transfers[0].Phase = string(PhaseAttested)
	b.persistRun(rec)

	exec, err := b.deps.Receivers.NewExecutor(ctx, dest.ChainID)
	if err != nil {
		err = fmt.Errorf("executor for chain %d: %w", dest.ChainID, err)
		b.failRun(rec, nil, 0, err)
		return nil, err
	}
	receiveTx, err := b.receive(ctx, exec, burn, att)
	if err != nil {
		err = fmt.Errorf("receive for chain %d: %w", dest.ChainID, err)
		b.failRun(rec, nil, 0, err)
		return nil, err
	}

	rec.Transfers[0].ReceiveTxHash = receiveTx.Hex()
	rec.Transfers[0].Phase = string(PhaseComplete)
	rec.Status = store.RunStatusCompleted
	b.persistRun(rec)

	runsCompletedTotal.Inc()
	runDuration.Observe(time.Since(start).Seconds())

	return &Result{
		BurnTxHash:    burn.BurnTxHash,
		ReceiveTxHash: receiveTx,
		Amount:        burn.Amount,
		SourceChainID: burn.SourceChainID,
		DestChainID:   burn.DestChainID,
	}, nil
}

// BridgeParallel moves USDC to every destination, overlapping the slow
// parts. Burns run sequentially because they share the source account
// nonce sequence; attestation waits and receives run concurrently.
//
// Results are returned in destination order regardless of completion
// order. On failure the returned error names the first failed transfer
// by input index, and the slice still carries a Result for every
// destination that completed: partial completion is a real terminal
// outcome, nothing is rolled back.
func (b *Bridger) BridgeParallel(ctx context.Context, dests []Destination) ([]*Result, error) {
	if len(dests) == 0 {
		return nil, nil
	}
	if err := b.validateDestinations(dests); err != nil {
		return nil, err
	}

	n := len(dests)
	start := time.Now()
	transfersInFlight.Add(float64(n))
	defer transfersInFlight.Sub(float64(n))

	total := new(big.Int)
	labels := make([]string, n)
	for i, d := range dests {
		labels[i] = chains.ChainName(d.ChainID)
		total.Add(total, d.Amount)
	}

	runID := uuid.New()
	b.logger.Info("Starting parallel bridge run",
		zap.String("run_id", runID.String()),
		zap.Int("destinations", n),
		zap.String("total_amount", total.String()),
		zap.Int64("source_chain_id", b.cfg.SourceChainID),
		zap.Bool("simulate", b.cfg.Simulate))

	tracker := NewTracker(labels)
	rec := b.newRunRecord(runID, dests)
	b.persistRun(rec)

	results := make([]*Result, n)

	// Phase 1: sequential burns.
	burns := make([]*BurnResult, n)
	for idx, dest := range dests {
		b.updatePhase(tracker, idx, dest.ChainID, PhaseBurning, 0)
		burn, err := b.burn(ctx, dest)
		if err != nil {
			err = fmt.Errorf("burn %d for chain %d: %w", idx, dest.ChainID, err)
			b.failRun(rec, tracker, idx, err)
			return results, err
		}
		burns[idx] = burn
		rec.Transfers[idx].BurnTxHash = burn.BurnTxHash.Hex()
		b.persistRun(rec)
	}

	// Phase 2: attestations.
	atts := make([]*iris.Attestation, n)
	if b.cfg.Simulate {
		for idx, burn := range burns {
			b.updatePhase(tracker, idx, burn.DestChainID, PhaseAttested, 0)
			att, err := b.attestation(ctx, burn, b.cfg.ParallelTimeout, nil)
			if err != nil {
				err = fmt.Errorf("attestation %d for chain %d: %w", idx, burn.DestChainID, err)
				b.failRun(rec, tracker, idx, err)
				return results, err
			}
			atts[idx] = att
			rec.Transfers[idx].Phase = string(PhaseAttested)
		}
		b.persistRun(rec)
	} else {
		for idx, burn := range burns {
			b.updatePhase(tracker, idx, burn.DestChainID, PhaseWaitingForIndexing, 0)
			rec.Transfers[idx].Phase = string(PhaseWaitingForIndexing)
		}
		b.persistRun(rec)

		errs := make([]error, n)
		jobs := make(chan int)
		var wg sync.WaitGroup
		workers := b.workerCount(n)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for idx := range jobs {
					burn := burns[idx]
					onPhase := func(status string, attempt int) {
						if phase, ok := PhaseFromAttestationStatus(status); ok {
							b.updatePhase(tracker, idx, burn.DestChainID, phase, attempt)
						}
					}
					atts[idx], errs[idx] = b.attestation(ctx, burn, b.cfg.ParallelTimeout, onPhase)
				}
			}()
		}
		for idx := range burns {
			jobs <- idx
		}
		close(jobs)
		wg.Wait()

		for idx, err := range errs {
			if err != nil {
				err = fmt.Errorf("attestation %d for chain %d: %w", idx, burns[idx].DestChainID, err)
				b.failRun(rec, tracker, idx, err)
				return results, err
			}
		}
		for idx := range burns {
			rec.Transfers[idx].Phase = string(PhaseAttested)
		}
		b.persistRun(rec)
	}

	// Phase 3: receives. One executor per destination chain so
	// concurrent submissions never contend on a shared nonce counter.
	execs := make(map[int64]onchain.Executor, n)
	for idx, burn := range burns {
		if _, ok := execs[burn.DestChainID]; ok {
			continue
		}
		exec, err := b.deps.Receivers.NewExecutor(ctx, burn.DestChainID)
		if err != nil {
			err = fmt.Errorf("executor for chain %d: %w", burn.DestChainID, err)
			b.failRun(rec, tracker, idx, err)
			return results, err
		}
		execs[burn.DestChainID] = exec
	}

	receiveHashes := make([]common.Hash, n)
	errs := make([]error, n)
	if b.cfg.Simulate {
		// Local forks have no latency worth hiding.
		for idx, burn := range burns {
			b.updatePhase(tracker, idx, burn.DestChainID, PhaseReceiving, 0)
			h, err := b.receive(ctx, execs[burn.DestChainID], burn, atts[idx])
			if err != nil {
				errs[idx] = err
				break
			}
			receiveHashes[idx] = h
			b.updatePhase(tracker, idx, burn.DestChainID, PhaseComplete, 0)
		}
	} else {
		jobs := make(chan int)
		var wg sync.WaitGroup
		workers := b.workerCount(n)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for idx := range jobs {
					burn := burns[idx]
					b.updatePhase(tracker, idx, burn.DestChainID, PhaseReceiving, 0)
					h, err := b.receive(ctx, execs[burn.DestChainID], burn, atts[idx])
					if err != nil {
						errs[idx] = err
						continue
					}
					receiveHashes[idx] = h
					b.updatePhase(tracker, idx, burn.DestChainID, PhaseComplete, 0)
				}
			}()
		}
		for idx := range burns {
			jobs <- idx
		}
		close(jobs)
		wg.Wait()
	}

	for idx, burn := range burns {
		if errs[idx] != nil || receiveHashes[idx] == (common.Hash{}) {
			continue
		}
		results[idx] = &Result{
			BurnTxHash:    burn.BurnTxHash,
			ReceiveTxHash: receiveHashes[idx],
			Amount:        burn.Amount,
			SourceChainID: burn.SourceChainID,
			DestChainID:   burn.DestChainID,
		}
		rec.Transfers[idx].ReceiveTxHash = receiveHashes[idx].Hex()
		rec.Transfers[idx].Phase = string(PhaseComplete)
	}
	for idx, err := range errs {
		if err != nil {
			err = fmt.Errorf("receive %d on chain %d: %w", idx, burns[idx].DestChainID, err)
			b.failRun(rec, tracker, idx, err)
			return results, err
		}
	}

	rec.Status = store.RunStatusCompleted
	b.persistRun(rec)

	runsCompletedTotal.Inc()
	runDuration.Observe(time.Since(start).Seconds())
	b.logger.Info("Parallel bridge run complete",
		zap.String("run_id", runID.String()),
		zap.Int("destinations", n),
		zap.Duration("duration", time.Since(start)))

	return results, nil
}

func (b *Bridger) validateDestinations(dests []Destination) error {
	for i, d := range dests {
		if d.Amount == nil || d.Amount.Sign() <= 0 {
			return fmt.Errorf("destination %d: amount must be positive", i)
		}
		if d.Recipient == (common.Address{}) {
			return fmt.Errorf("destination %d: recipient is required", i)
		}
		if _, ok := chains.DomainForChain(d.ChainID); !ok {
			return fmt.Errorf("destination %d: chain %d does not support CCTP", i, d.ChainID)
		}
	}
	return nil
}

// burn approves USDC to the token messenger and burns it, both through
// the vault's execution pathway, each confirmed before the next step.
func (b *Bridger) burn(ctx context.Context, dest Destination) (*BurnResult, error) {
	b.logger.Info("Burning USDC",
		zap.String("amount", dest.Amount.String()),
		zap.Int64("source_chain_id", b.cfg.SourceChainID),
		zap.Int64("dest_chain_id", dest.ChainID),
		zap.String("recipient", dest.Recipient.Hex()))

	approve, err := b.deps.Calls.ApproveForBurn(b.cfg.SourceChainID, dest.Amount)
	if err != nil {
		return nil, fmt.Errorf("build approve call: %w", err)
	}
	approve, err = b.deps.Vault.Route(approve)
	if err != nil {
		return nil, fmt.Errorf("route approve call: %w", err)
	}
	approveTx, err := b.deps.Source.Execute(ctx, approve)
	if err != nil {
		return nil, fmt.Errorf("approve USDC: %w", err)
	}
	b.logger.Info("USDC approval confirmed", zap.String("tx_hash", approveTx.Hex()))

	deposit, err := b.deps.Calls.DepositForBurn(b.cfg.SourceChainID, dest.ChainID, dest.Amount, dest.Recipient)
	if err != nil {
		return nil, fmt.Errorf("build depositForBurn call: %w", err)
	}
	deposit, err = b.deps.Vault.Route(deposit)
	if err != nil {
		return nil, fmt.Errorf("route depositForBurn call: %w", err)
	}
	burnTx, err := b.deps.Source.Execute(ctx, deposit)
	if err != nil {
		return nil, fmt.Errorf("depositForBurn: %w", err)
	}
	b.logger.Info("Burn confirmed",
		zap.String("tx_hash", burnTx.Hex()),
		zap.String("dest_chain", chains.ChainName(dest.ChainID)))

	return &BurnResult{
		BurnTxHash:    burnTx,
		Amount:        new(big.Int).Set(dest.Amount),
		SourceChainID: b.cfg.SourceChainID,
		DestChainID:   dest.ChainID,
		Recipient:     dest.Recipient,
	}, nil
}

// attestation obtains the message and attestation for a burn, forged
// locally in simulate mode, otherwise from the attestation service.
func (b *Bridger) attestation(ctx context.Context, burn *BurnResult, timeout time.Duration, onPhase iris.PhaseCallback) (*iris.Attestation, error) {
	sourceDomain, _ := chains.DomainForChain(burn.SourceChainID)

	if b.cfg.Simulate {
		destDomain, _ := chains.DomainForChain(burn.DestChainID)
		usdc, ok := chains.USDCAddress(burn.SourceChainID)
		if !ok {
			return nil, fmt.Errorf("no USDC deployment known for chain %d", burn.SourceChainID)
		}
		att, err := b.deps.Forger.Forge(ForgeRequest{
			SourceDomain:  sourceDomain,
			DestDomain:    destDomain,
			MintRecipient: burn.Recipient,
			Amount:        burn.Amount,
			BurnToken:     usdc,
		})
		if err != nil {
			return nil, fmt.Errorf("forge attestation: %w", err)
		}
		b.logger.Info("Forged attestation", zap.Int64("dest_chain_id", burn.DestChainID))
		return att, nil
	}

	att, err := b.deps.Attestations.FetchAttestation(ctx, sourceDomain, burn.BurnTxHash.Hex(), iris.FetchOptions{
		Timeout:       timeout,
		PollInterval:  b.cfg.PollInterval,
		OnPhaseChange: onPhase,
	})
	if err != nil {
		return nil, err
	}
	b.logger.Info("Attestation received", zap.Int64("dest_chain_id", burn.DestChainID))
	return att, nil
}

// receive relays the attested message on the destination chain. The
// call is not vault-routed: any funded account may submit a receive.
func (b *Bridger) receive(ctx context.Context, exec onchain.Executor, burn *BurnResult, att *iris.Attestation) (common.Hash, error) {
	call, err := b.deps.Calls.ReceiveMessage(burn.DestChainID, att.Message, att.Attestation)
	if err != nil {
		return common.Hash{}, fmt.Errorf("build receive call: %w", err)
	}
	txHash, err := exec.Execute(ctx, call)
	if err != nil {
		return common.Hash{}, err
	}
	b.logger.Info("Receive confirmed",
		zap.Int64("dest_chain_id", burn.DestChainID),
		zap.String("tx_hash", txHash.Hex()))
	return txHash, nil
}

func (b *Bridger) updatePhase(tr *Tracker, idx int, destChainID int64, phase Phase, attempt int) {
	if tr.Update(idx, phase, attempt) > 0 {
		phaseTransitionsTotal.WithLabelValues(string(phase)).Inc()
	}
	b.emit(PhaseEvent{Index: idx, Phase: phase, DestChainID: destChainID, Attempt: attempt})
	b.logger.Debug("Phase update",
		zap.Int("transfer", idx),
		zap.String("phase", string(phase)),
		zap.Int("attempt", attempt))
}

// emit pushes ev without blocking. A slow or absent consumer misses
// events rather than stalling a transfer.
func (b *Bridger) emit(ev PhaseEvent) {
	if b.deps.Events == nil {
		return
	}
	select {
	case b.deps.Events <- ev:
	default:
	}
}

func (b *Bridger) workerCount(n int) int {
	if b.cfg.MaxWorkers > 0 && b.cfg.MaxWorkers < n {
		return b.cfg.MaxWorkers
	}
	return n
}

func (b *Bridger) newRunRecord(runID uuid.UUID, dests []Destination) *store.Record {
	now := time.Now().UTC()
	rec := &store.Record{
		ID:            runID,
		SourceChainID: b.cfg.SourceChainID,
		Status:        store.RunStatusRunning,
		CreatedAt:     now,
		UpdatedAt:     now,
		Transfers:     make([]store.TransferRecord, len(dests)),
	}
	for i, d := range dests {
		rec.Transfers[i] = store.TransferRecord{
			DestChainID: d.ChainID,
			Recipient:   d.Recipient.Hex(),
			Amount:      decimal.NewFromBigInt(d.Amount, -6),
			Phase:       string(PhaseBurning),
		}
	}
	return rec
}

// persistRun saves rec on its own short deadline, so a canceled run
// still leaves a record behind. Store failures are logged, never fatal.
func (b *Bridger) persistRun(rec *store.Record) {
	if b.deps.Runs == nil {
		return
	}
	rec.UpdatedAt = time.Now().UTC()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.deps.Runs.SaveRun(ctx, rec); err != nil {
		b.logger.Warn("Failed to persist bridge run",
			zap.String("run_id", rec.ID.String()),
			zap.Error(err))
	}
}

func (b *Bridger) failRun(rec *store.Record, tracker *Tracker, idx int, err error) {
	runsFailedTotal.Inc()
	if tracker != nil {
		snap := tracker.Snapshot()
		for i, p := range snap.Phases {
			rec.Transfers[i].Phase = string(p)
		}
	}
	if idx >= 0 && idx < len(rec.Transfers) {
		rec.Transfers[idx].Error = err.Error()
	}
	rec.Status = store.RunStatusFailed
	b.persistRun(rec)
}

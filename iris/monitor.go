package iris

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rail-service/cctp-go/chains"
)

// TransferQuery identifies one transfer to monitor.
type TransferQuery struct {
	SourceDomain chains.Domain
	TxHash       string
}

// PollOptions tune blocking and parallel status polls. Zero values fall
// back to the package defaults; MaxWorkers defaults to the query count.
type PollOptions struct {
	Timeout      time.Duration
	PollInterval time.Duration
	MaxWorkers   int
}

// FetchTransferStatus is a one-shot, non-blocking status check. It
// returns (nil, nil) while the burn is not indexed yet (HTTP 404 or an
// empty message list); any other API failure is an error.
func (c *Client) FetchTransferStatus(ctx context.Context, sourceDomain chains.Domain, txHash string) (*TransferStatus, error) {
	txHash = normalizeTxHash(txHash)

	resp, err := c.fetchMessages(ctx, sourceDomain, txHash)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.IsNotFound() {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch transfer status for tx %s: %w", txHash, err)
	}

	if len(resp.Messages) == 0 {
		return nil, nil
	}

	return parseTransferStatus(resp.Messages[0], sourceDomain, txHash)
}

// PollTransferStatus blocks until the transfer reaches complete status,
// retrying "not indexed" and pending states. Returns *TimeoutError when
// the wall-clock budget runs out first.
func (c *Client) PollTransferStatus(ctx context.Context, sourceDomain chains.Domain, txHash string, opts PollOptions) (*TransferStatus, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultAttestationTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultMonitorPollInterval
	}
	txHash = normalizeTxHash(txHash)

	start := time.Now()
	attempt := 0
	lastStatus := ""

	for {
		elapsed := time.Since(start)
		if elapsed >= opts.Timeout {
			return nil, &TimeoutError{
				SourceDomain: sourceDomain,
				TxHash:       txHash,
				Timeout:      opts.Timeout,
				Elapsed:      elapsed,
				LastStatus:   lastStatus,
			}
		}

		attempt++
		c.logger.Debug("Polling CCTP transfer status",
			zap.Stringer("source_domain", sourceDomain),
			zap.String("tx_hash", txHash),
			zap.Int("attempt", attempt),
			zap.Duration("elapsed", elapsed))

		status, err := c.FetchTransferStatus(ctx, sourceDomain, txHash)
		if err != nil {
			return nil, err
		}

		switch {
		case status == nil:
			lastStatus = StatusWaitingForIndexing
			c.logger.Debug("Transfer not yet indexed, retrying",
				zap.String("tx_hash", txHash),
				zap.Duration("poll_interval", opts.PollInterval))
		case status.IsComplete():
			c.logger.Info("Transfer complete",
				zap.Stringer("source_domain", sourceDomain),
				zap.String("tx_hash", txHash),
				zap.Int("attempts", attempt))
			return status, nil
		default:
			lastStatus = status.Status
			c.logger.Debug("Transfer not complete yet",
				zap.String("tx_hash", txHash),
				zap.String("status", status.Status),
				zap.String("delay_reason", string(status.DelayReason)))
		}

		if err := sleepCtx(ctx, opts.PollInterval); err != nil {
			return nil, err
		}
	}
}

// PollTransfersParallel polls every query until all reach complete
// status. Each transfer is polled independently on a bounded worker
// pool; results come back in input order, never completion order.
//
// The call waits for every worker before returning. On failure it
// returns the error of the lowest-indexed failed query together with
// whatever statuses did complete, so callers can see partial progress.
// Siblings are not cancelled when one query fails; their polls run to
// completion or their own timeout.
func (c *Client) PollTransfersParallel(ctx context.Context, queries []TransferQuery, opts PollOptions) ([]*TransferStatus, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	workers := opts.MaxWorkers
	if workers <= 0 || workers > len(queries) {
		workers = len(queries)
	}

	c.logger.Info("Polling CCTP transfers in parallel",
		zap.Int("transfers", len(queries)),
		zap.Int("workers", workers),
		zap.Duration("timeout", opts.Timeout))

	results := make([]*TransferStatus, len(queries))
	errs := make([]error, len(queries))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				q := queries[idx]
				results[idx], errs[idx] = c.PollTransferStatus(ctx, q.SourceDomain, q.TxHash, opts)
			}
		}()
	}
	for idx := range queries {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	for idx, err := range errs {
		if err != nil {
			return results, fmt.Errorf("transfer %d (tx %s): %w", idx, queries[idx].TxHash, err)
		}
	}
	return results, nil
}

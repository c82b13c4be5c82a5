package iris

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/rail-service/cctp-go/chains"
)

// PhaseCallback receives attestation progress. status is the raw Iris
// status string ("waiting_for_indexing" before the burn is indexed) and
// attempt is the 1-based poll count, 0 for the initial notification
// fired before any network call.
type PhaseCallback func(status string, attempt int)

// FetchOptions tune a single attestation wait. Zero values fall back to
// the package defaults.
type FetchOptions struct {
	Timeout       time.Duration
	PollInterval  time.Duration
	OnPhaseChange PhaseCallback
}

// FetchAttestation blocks until Circle's attestation service signs the
// burn identified by sourceDomain and txHash, then returns the message
// and attestation payloads needed for receiveMessage().
//
// A 404 from the API means the burn is not indexed yet and is retried,
// as is any non-terminal status. Any other API or transport failure
// propagates immediately; masking a real outage as "still pending"
// would hide it until the timeout. Exceeding the wall-clock timeout
// returns a *TimeoutError.
func (c *Client) FetchAttestation(ctx context.Context, sourceDomain chains.Domain, txHash string, opts FetchOptions) (*Attestation, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultAttestationTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	txHash = normalizeTxHash(txHash)

	fields := []zap.Field{
		zap.Stringer("source_domain", sourceDomain),
		zap.String("tx_hash", txHash),
	}
	if url, ok := chains.BurnExplorerURL(sourceDomain, txHash); ok {
		fields = append(fields, zap.String("explorer", url))
	}
	c.logger.Info("Waiting for CCTP attestation", fields...)

	start := time.Now()
	attempt := 0
	lastStatus := ""

	notify := func(status string) {
		lastStatus = status
		if opts.OnPhaseChange != nil {
			opts.OnPhaseChange(status, attempt)
		}
	}

	notify(StatusWaitingForIndexing)

	for {
		elapsed := time.Since(start)
		if elapsed >= opts.Timeout {
			attestationTimeoutsTotal.Inc()
			return nil, &TimeoutError{
				SourceDomain: sourceDomain,
				TxHash:       txHash,
				Timeout:      opts.Timeout,
				Elapsed:      elapsed,
				LastStatus:   lastStatus,
			}
		}

		attempt++
		pollsTotal.WithLabelValues(strconv.FormatUint(uint64(sourceDomain), 10)).Inc()

		// First attempt at Info so the caller sees the poll started,
		// later ones at Debug to keep long waits quiet.
		logPoll := c.logger.Debug
		if attempt == 1 {
			logPoll = c.logger.Info
		}
		logPoll("Polling CCTP attestation",
			zap.Stringer("source_domain", sourceDomain),
			zap.String("tx_hash", txHash),
			zap.Int("attempt", attempt),
			zap.Duration("elapsed", elapsed),
			zap.String("status", lastStatus))

		resp, err := c.fetchMessages(ctx, sourceDomain, txHash)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.IsNotFound() {
				notify(StatusWaitingForIndexing)
				c.logger.Debug("Attestation not yet indexed, retrying",
					zap.Stringer("source_domain", sourceDomain),
					zap.String("tx_hash", txHash))
				if err := sleepCtx(ctx, opts.PollInterval); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("fetch attestation for tx %s: %w", txHash, err)
		}

		if len(resp.Messages) > 0 {
			msg := resp.Messages[0]

			if msg.Status == StatusComplete && msg.Attestation != "" && msg.Attestation != AttestationPendingSentinel {
				notify(StatusComplete)
				attestation, err := decodeHexPayload(msg.Attestation)
				if err != nil {
					return nil, fmt.Errorf("decode attestation for tx %s: %w", txHash, err)
				}
				message, err := decodeHexPayload(msg.Message)
				if err != nil {
					return nil, fmt.Errorf("decode message for tx %s: %w", txHash, err)
				}
				attestationsCompleteTotal.Inc()
				c.logger.Info("Attestation complete",
					zap.Stringer("source_domain", sourceDomain),
					zap.String("tx_hash", txHash),
					zap.Int("attempts", attempt),
					zap.Duration("elapsed", elapsed))
				return &Attestation{
					Message:     message,
					Attestation: attestation,
					Status:      msg.Status,
				}, nil
			}

			notify(msg.Status)
			c.logger.Debug("Attestation not ready",
				zap.Stringer("source_domain", sourceDomain),
				zap.String("status", msg.Status))
		}

		if err := sleepCtx(ctx, opts.PollInterval); err != nil {
			return nil, err
		}
	}
}

// IsAttestationComplete is a one-shot, best-effort readiness check.
// Failures are logged and reported as false; callers that need the
// cause should use FetchTransferStatus instead.
func (c *Client) IsAttestationComplete(ctx context.Context, sourceDomain chains.Domain, txHash string) bool {
	resp, err := c.fetchMessages(ctx, sourceDomain, txHash)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.IsNotFound() {
			c.logger.Debug("Attestation not yet indexed",
				zap.Stringer("source_domain", sourceDomain),
				zap.String("tx_hash", txHash))
			return false
		}
		c.logger.Warn("Failed to check attestation status",
			zap.Stringer("source_domain", sourceDomain),
			zap.String("tx_hash", txHash),
			zap.Error(err))
		return false
	}

	if len(resp.Messages) == 0 {
		return false
	}
	msg := resp.Messages[0]
	return msg.Status == StatusComplete && msg.Attestation != "" && msg.Attestation != AttestationPendingSentinel
}

// sleepCtx sleeps for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Package iris is a client for Circle's Iris attestation API. It covers
// the CCTP V2 message status endpoint used for attestation polling and
// transfer monitoring, plus the fees and public key endpoints.
package iris

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rail-service/cctp-go/chains"
	"github.com/rail-service/cctp-go/pkg/retry"
)

// Config represents Iris client configuration
type Config struct {
	BaseURL     string
	Environment string // "sandbox" or "mainnet"
	Timeout     time.Duration
	RateLimit   int // requests per second, defaults to MaxRequestsPerSecond
}

// Client represents an Iris API client. One Client shares its rate
// limiter and circuit breaker across all concurrent pollers, keeping
// the per-key request budget intact no matter how many transfers are
// monitored at once.
type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	rateLimiter    *rate.Limiter
	retrier        *retry.Retrier
	logger         *zap.Logger
}

// NewClient creates a new Iris API client
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultRequestTimeout
	}
	if config.RateLimit == 0 {
		config.RateLimit = MaxRequestsPerSecond
	}
	if config.BaseURL == "" {
		if config.Environment == "sandbox" {
			config.BaseURL = IrisSandboxURL
		} else {
			config.BaseURL = IrisMainnetURL
		}
	}

	cbSettings := gobreaker.Settings{
		Name:        "IrisAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Iris circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	retryPolicy := retry.DefaultPolicy()
	retryPolicy.RetryableFunc = func(err error) bool {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return apiErr.IsServerError()
		}
		// Transport errors are retryable on auxiliary endpoints.
		return true
	}

	return &Client{
		config:         config,
		httpClient:     &http.Client{Timeout: config.Timeout},
		circuitBreaker: gobreaker.NewCircuitBreaker(cbSettings),
		rateLimiter:    rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		retrier:        retry.NewRetrier(retryPolicy, logger),
		logger:         logger,
	}
}

// BaseURLForChain picks the sandbox host for testnet chains and the
// mainnet host otherwise.
func BaseURLForChain(chainID int64) string {
	if chains.IsTestnet(chainID) {
		return IrisSandboxURL
	}
	return IrisMainnetURL
}

// fetchMessages queries the message status endpoint once. The status
// polling loops own all retry decisions: a 404 comes back as an
// *APIError the callers classify, never as a hidden retry.
func (c *Client) fetchMessages(ctx context.Context, sourceDomain chains.Domain, txHash string) (*messagesResponse, error) {
	endpoint := fmt.Sprintf("/v2/messages/%d?transactionHash=%s", uint32(sourceDomain), normalizeTxHash(txHash))
	var resp messagesResponse
	if err := c.doRequest(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetFees retrieves current fees for a transfer between domains
func (c *Client) GetFees(ctx context.Context, sourceDomain, destDomain chains.Domain) (*FeesResponse, error) {
	endpoint := fmt.Sprintf("/v2/burn/USDC/fees?sourceDomain=%d&destinationDomain=%d", uint32(sourceDomain), uint32(destDomain))
	var resp FeesResponse
	err := c.retrier.Do(ctx, func() error {
		return c.doRequest(ctx, endpoint, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("get fees failed: %w", err)
	}
	return &resp, nil
}

// GetPublicKeys retrieves attestation public keys for verification
func (c *Client) GetPublicKeys(ctx context.Context) (*PublicKeysResponse, error) {
	var resp PublicKeysResponse
	err := c.retrier.Do(ctx, func() error {
		return c.doRequest(ctx, "/v2/publicKeys", &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("get public keys failed: %w", err)
	}
	return &resp, nil
}

func (c *Client) doRequest(ctx context.Context, endpoint string, response interface{}) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	v, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		err := c.doRequestInternal(ctx, endpoint, response)
		// A 404 means the burn is not indexed yet. That is a healthy,
		// meaningful answer from the API, so it must not count toward
		// tripping the breaker.
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.IsNotFound() {
			return apiErr, nil
		}
		return nil, err
	})
	requestDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		apiErrorsTotal.WithLabelValues(errorLabel(err)).Inc()
		return err
	}
	if apiErr, ok := v.(*APIError); ok {
		return apiErr
	}
	return nil
}

func (c *Client) doRequestInternal(ctx context.Context, endpoint string, response interface{}) error {
	fullURL := c.config.BaseURL + endpoint

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{}
		if json.Unmarshal(body, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		apiErr.StatusCode = resp.StatusCode
		if apiErr.IsRateLimited() {
			c.logger.Warn("Iris rate limit exceeded, requests are blocked for five minutes",
				zap.String("endpoint", endpoint))
		}
		return apiErr
	}

	if response != nil && len(body) > 0 {
		if err := json.Unmarshal(body, response); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func normalizeTxHash(txHash string) string {
	// Iris requires 0x-prefixed transaction hashes
	if !strings.HasPrefix(txHash, "0x") {
		return "0x" + txHash
	}
	return txHash
}

func errorLabel(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("http_%d", apiErr.StatusCode)
	}
	return "transport"
}

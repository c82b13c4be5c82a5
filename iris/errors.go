package iris

import (
	"fmt"
	"time"

	"github.com/rail-service/cctp-go/chains"
)

// APIError represents an Iris API error response
type APIError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("iris API error [%d]: %s (code: %s)", e.StatusCode, e.Message, e.Code)
}

func (e *APIError) IsNotFound() bool {
	return e.StatusCode == 404
}

func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsServerError reports 5xx responses, the only HTTP failures worth
// retrying on auxiliary endpoints.
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500
}

// TimeoutError reports an attestation or status wait that exhausted its
// wall-clock budget while the transfer was still in a retryable state.
// It carries enough identity to locate the transfer in the CCTP explorer.
type TimeoutError struct {
	SourceDomain chains.Domain
	TxHash       string
	Timeout      time.Duration
	Elapsed      time.Duration
	LastStatus   string
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("cctp attestation not ready after %s for tx %s on %s (last status: %s)",
		e.Timeout, e.TxHash, e.SourceDomain, e.LastStatus)
	if url, ok := chains.BurnExplorerURL(e.SourceDomain, e.TxHash); ok {
		msg += fmt.Sprintf(", explorer: %s", url)
	}
	return msg
}

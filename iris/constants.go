package iris

import "time"

const (
	// API Hosts
	IrisMainnetURL = "https://iris-api.circle.com"
	IrisSandboxURL = "https://iris-api-sandbox.circle.com"

	// Rate limiting. Iris allows 35 req/s per key/IP and blocks for
	// five minutes on violation, so the budget is enforced client-side
	// and shared by all pollers on one Client.
	MaxRequestsPerSecond = 35

	// Transfer statuses reported by the /v2/messages endpoint
	StatusComplete             = "complete"
	StatusPendingConfirmations = "pending_confirmations"

	// StatusWaitingForIndexing is synthesized for phase callbacks while
	// the API still returns 404 for the burn transaction.
	StatusWaitingForIndexing = "waiting_for_indexing"

	// AttestationPendingSentinel is the placeholder Iris returns in the
	// attestation field before the signature is ready. It is not payload.
	AttestationPendingSentinel = "PENDING"
)

const (
	// DefaultAttestationTimeout bounds a single attestation wait.
	DefaultAttestationTimeout = 300 * time.Second

	// DefaultPollInterval is the sleep between attestation polls.
	DefaultPollInterval = 5 * time.Second

	// DefaultMonitorPollInterval is the sleep between status polls. The
	// longer interval keeps multi-transfer monitoring well inside the
	// API rate limit.
	DefaultMonitorPollInterval = 10 * time.Second

	defaultRequestTimeout = 30 * time.Second
)

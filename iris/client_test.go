package iris

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rail-service/cctp-go/chains"
)

func TestNewClient(t *testing.T) {
	logger := zap.NewNop()

	t.Run("defaults to mainnet URL", func(t *testing.T) {
		client := NewClient(Config{}, logger)
		assert.Equal(t, IrisMainnetURL, client.config.BaseURL)
	})

	t.Run("sandbox environment uses sandbox URL", func(t *testing.T) {
		client := NewClient(Config{Environment: "sandbox"}, logger)
		assert.Equal(t, IrisSandboxURL, client.config.BaseURL)
	})

	t.Run("respects custom base URL", func(t *testing.T) {
		client := NewClient(Config{BaseURL: "https://custom.api"}, logger)
		assert.Equal(t, "https://custom.api", client.config.BaseURL)
	})

	t.Run("applies request timeout default", func(t *testing.T) {
		client := NewClient(Config{}, logger)
		assert.Equal(t, defaultRequestTimeout, client.config.Timeout)
	})
}

func TestBaseURLForChain(t *testing.T) {
	assert.Equal(t, IrisMainnetURL, BaseURLForChain(1))
	assert.Equal(t, IrisMainnetURL, BaseURLForChain(42161))
	assert.Equal(t, IrisSandboxURL, BaseURLForChain(421614))
	assert.Equal(t, IrisSandboxURL, BaseURLForChain(84532))
}

func TestGetFees(t *testing.T) {
	logger := zap.NewNop()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/burn/USDC/fees", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("sourceDomain"))
		assert.Equal(t, "5", r.URL.Query().Get("destinationDomain"))

		resp := FeesResponse{
			SourceDomain:      7,
			DestinationDomain: 5,
			StandardFee:       Fee{MinimumFee: 0},
			FastTransferFee:   Fee{MinimumFee: 1},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, logger)
	resp, err := client.GetFees(context.Background(), chains.DomainPolygon, chains.DomainSolana)

	require.NoError(t, err)
	assert.Equal(t, uint32(7), resp.SourceDomain)
	assert.Equal(t, uint32(5), resp.DestinationDomain)
	assert.Equal(t, uint64(1), resp.FastTransferFee.MinimumFee)
}

func TestGetPublicKeys(t *testing.T) {
	logger := zap.NewNop()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/publicKeys", r.URL.Path)

		resp := PublicKeysResponse{
			Keys: []PublicKey{{KeyID: "key1", PublicKey: "0xpubkey", Algorithm: "ECDSA"}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, logger)
	resp, err := client.GetPublicKeys(context.Background())

	require.NoError(t, err)
	require.Len(t, resp.Keys, 1)
	assert.Equal(t, "key1", resp.Keys[0].KeyID)
}

func TestAPIErrorDecoding(t *testing.T) {
	logger := zap.NewNop()

	t.Run("structured error body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":"invalid_hash","message":"transaction hash is malformed"}`))
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL}, logger)
		_, err := client.fetchMessages(context.Background(), chains.DomainArbitrum, "0xzz")

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 400, apiErr.StatusCode)
		assert.Equal(t, "invalid_hash", apiErr.Code)
		assert.Equal(t, "transaction hash is malformed", apiErr.Message)
	})

	t.Run("plain text error body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("upstream unavailable"))
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL}, logger)
		_, err := client.fetchMessages(context.Background(), chains.DomainArbitrum, "0xabc")

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 503, apiErr.StatusCode)
		assert.Equal(t, "upstream unavailable", apiErr.Message)
		assert.True(t, apiErr.IsServerError())
	})

	t.Run("rate limited", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL}, logger)
		_, err := client.fetchMessages(context.Background(), chains.DomainArbitrum, "0xabc")

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.True(t, apiErr.IsRateLimited())
	})
}

func TestCircuitBreakerIgnoresNotFound(t *testing.T) {
	logger := zap.NewNop()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, RateLimit: 1000}, logger)

	// Far more consecutive 404s than the breaker's trip threshold. Every
	// one must reach the server: "not indexed yet" is a healthy answer.
	for i := 0; i < 20; i++ {
		_, err := client.fetchMessages(context.Background(), chains.DomainArbitrum, "0xabc")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		require.True(t, apiErr.IsNotFound())
	}
	assert.Equal(t, int64(20), calls.Load())
}

func TestNormalizeTxHash(t *testing.T) {
	assert.Equal(t, "0xabc", normalizeTxHash("abc"))
	assert.Equal(t, "0xabc", normalizeTxHash("0xabc"))
}

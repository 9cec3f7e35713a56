package pinet

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumpay/gateway/internal/audit"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newNetworkStub(t *testing.T, completeOK bool) (*httptest.Server, *[]string) {
	t.Helper()
	var paths []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Key server-key", r.Header.Get("Authorization"))
		paths = append(paths, r.URL.Path)

		switch r.URL.Path {
		case "/payments":
			var req struct {
				Amount   float64           `json:"amount"`
				UID      string            `json:"uid"`
				Metadata map[string]string `json:"metadata"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "user-7", req.UID)
			assert.Equal(t, "o1", req.Metadata["orderId"])
			_ = json.NewEncoder(w).Encode(map[string]string{"identifier": "pay-123"})
		case "/payments/pay-123/submit":
			_ = json.NewEncoder(w).Encode(map[string]string{"txid": "tx-abc"})
		case "/payments/pay-123/complete":
			var req struct {
				TxID string `json:"txid"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "tx-abc", req.TxID)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": map[string]bool{"developer_completed": completeOK},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	return srv, &paths
}

func TestPayThreeStepProtocol(t *testing.T) {
	t.Parallel()

	srv, paths := newNetworkStub(t, true)
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "server-key", "Pi Testnet",
		audit.NewWriter(io.Discard, discardLogger()), discardLogger())

	got, err := c.Pay(t.Context(), PaymentRequest{
		OrderID: "o1",
		Amount:  decimal.RequireFromString("31.4"),
		UserUID: "user-7",
	})
	require.NoError(t, err)

	assert.Equal(t, "pay-123", got.PaymentID)
	assert.Equal(t, "tx-abc", got.TxID)
	assert.Equal(t, "Pi Testnet", got.Network)
	assert.Equal(t, []string{
		"/payments",
		"/payments/pay-123/submit",
		"/payments/pay-123/complete",
	}, *paths)
}

func TestPayFailsWhenNetworkDoesNotConfirm(t *testing.T) {
	t.Parallel()

	srv, _ := newNetworkStub(t, false)
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "server-key", "Pi Testnet",
		audit.NewWriter(io.Discard, discardLogger()), discardLogger())

	_, err := c.Pay(t.Context(), PaymentRequest{
		OrderID: "o1",
		Amount:  decimal.NewFromInt(5),
		UserUID: "user-7",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not confirm completion")
}

func TestPayPropagatesCreateFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "server-key", "Pi Testnet",
		audit.NewWriter(io.Discard, discardLogger()), discardLogger())

	_, err := c.Pay(t.Context(), PaymentRequest{OrderID: "o1", Amount: decimal.NewFromInt(5), UserUID: "u"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create payment")
}

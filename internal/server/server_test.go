package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumpay/gateway/internal/audit"
	"github.com/quantumpay/gateway/internal/pipeline"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer wires a server around an orchestrator with no backends;
// these tests only exercise the transport boundary, which never gets past
// validation.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := discardLogger()
	auditLog := audit.NewWriter(io.Discard, logger)
	orch := pipeline.NewOrchestrator(nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, auditLog, logger)
	return New(":0", orch, "test-api-key", "hook-secret", auditLog, logger)
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestProcessPaymentRequiresBearerToken(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic dGVzdA=="},
		{"wrong key", "Bearer wrong-key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/process-payment",
				strings.NewReader(`{"orderId":"o1","amount":100,"asset":"BTC"}`))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := do(s, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestProcessPaymentRejectsBadBody(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/process-payment",
		strings.NewReader(`{not json`))
	req.Header.Set("Authorization", "Bearer test-api-key")

	rec := do(s, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid request body")
}

func TestProcessPaymentValidationError(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing order id", `{"amount":100,"asset":"BTC"}`},
		{"non-positive amount", `{"orderId":"o1","amount":-5,"asset":"BTC"}`},
		{"missing asset", `{"orderId":"o1","amount":100}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/process-payment",
				strings.NewReader(tt.body))
			req.Header.Set("Authorization", "Bearer test-api-key")

			rec := do(s, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Contains(t, resp["error"], "ValidationError")
		})
	}
}

func signBody(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookAcceptsValidSignature(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	body := `{"orderId":"o1","externalRef":"0xabc","status":"CONFIRMED"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("X-Signature", signBody("hook-secret", body))

	rec := do(s, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestWebhookAcceptsPrefixedSignature(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	body := `{"orderId":"o1","status":"CONFIRMED"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("X-Signature", "sha256="+signBody("hook-secret", body))

	rec := do(s, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	body := `{"orderId":"o1","status":"CONFIRMED"}`

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("X-Signature", signBody("other-secret", body))
	assert.Equal(t, http.StatusUnauthorized, do(s, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("X-Signature", "not-hex")
	assert.Equal(t, http.StatusUnauthorized, do(s, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	assert.Equal(t, http.StatusUnauthorized, do(s, req).Code)
}

func TestWebhookTamperedBodyRejected(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	signature := signBody("hook-secret", `{"orderId":"o1","status":"CONFIRMED"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook",
		strings.NewReader(`{"orderId":"o1","status":"FAILED"}`))
	req.Header.Set("X-Signature", signature)

	assert.Equal(t, http.StatusUnauthorized, do(s, req).Code)
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	body := []byte("payload")
	good := signBody("s3cret", "payload")

	assert.True(t, verifySignature("s3cret", body, good))
	assert.True(t, verifySignature("s3cret", body, "sha256="+good))
	assert.False(t, verifySignature("s3cret", body, ""))
	assert.False(t, verifySignature("s3cret", []byte("other"), good))
	assert.False(t, verifySignature("wrong", body, good))
}

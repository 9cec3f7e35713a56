package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/quantumpay/gateway/internal/audit"
	"github.com/quantumpay/gateway/internal/domain/model"
	"github.com/quantumpay/gateway/internal/pipeline"
)

// maxBodyBytes caps request bodies; payment requests are small.
const maxBodyBytes = 1 << 20

// Server is the HTTP boundary of the gateway. It authenticates callers,
// decodes orders, and hands them to the pipeline. Pipeline failures are
// domain outcomes and return 200 with a FAILURE body; only transport-level
// problems map to HTTP error codes.
type Server struct {
	orchestrator  *pipeline.Orchestrator
	apiKey        string
	webhookSecret string
	logger        *slog.Logger
	audit         *audit.Logger
	httpServer    *http.Server
}

func New(addr string, orchestrator *pipeline.Orchestrator, apiKey, webhookSecret string, auditLog *audit.Logger, logger *slog.Logger) *Server {
	s := &Server{
		orchestrator:  orchestrator,
		apiKey:        apiKey,
		webhookSecret: webhookSecret,
		logger:        logger.With("component", "server"),
		audit:         auditLog,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /process-payment", s.requireAPIKey(s.handleProcessPayment))
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Settlement can legitimately take minutes while waiting on a
		// receipt, so the write timeout is generous.
		WriteTimeout: 5 * time.Minute,
	}
	return s
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.apiKey)) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid or missing API key"})
			return
		}
		next(w, r)
	}
}

// paymentRequest is the wire shape of an order. Amount accepts a JSON number
// or a quoted decimal string.
type paymentRequest struct {
	OrderID        string          `json:"orderId"`
	Amount         decimal.Decimal `json:"amount"`
	Asset          string          `json:"asset"`
	Chain          string          `json:"chain,omitempty"`
	UserRef        string          `json:"userRef,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
}

func (s *Server) handleProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	order := model.Order{
		OrderID:        req.OrderID,
		Amount:         req.Amount,
		Asset:          model.Asset(strings.ToUpper(req.Asset)),
		Chain:          model.Chain(strings.ToLower(req.Chain)),
		UserRef:        req.UserRef,
		IdempotencyKey: req.IdempotencyKey,
	}

	result, err := s.orchestrator.Process(r.Context(), order)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// webhookNotification is a settlement confirmation pushed by an exchange or
// chain watcher once funds actually land.
type webhookNotification struct {
	OrderID     string `json:"orderId"`
	ExternalRef string `json:"externalRef"`
	Status      string `json:"status"`
}

// handleWebhook verifies the HMAC-SHA256 signature over the raw body before
// trusting anything in it.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhookSecret == "" {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "webhooks not configured"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unreadable body"})
		return
	}

	if !verifySignature(s.webhookSecret, body, r.Header.Get("X-Signature")) {
		s.logger.Warn("webhook signature rejected", "remote", r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid signature"})
		return
	}

	var note webhookNotification
	if err := json.Unmarshal(body, &note); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid webhook payload"})
		return
	}

	s.audit.Event("Gateway", "settlement confirmation for order %s: %s (%s)",
		note.OrderID, note.Status, note.ExternalRef)
	s.logger.Info("settlement confirmation received",
		"order_id", note.OrderID, "status", note.Status, "ref", note.ExternalRef)
	w.WriteHeader(http.StatusNoContent)
}

// verifySignature checks a hex-encoded HMAC-SHA256 of body in constant time.
func verifySignature(secret string, body []byte, signature string) bool {
	provided, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil || len(provided) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(provided, mac.Sum(nil))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

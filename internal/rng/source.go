package rng

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/quantumpay/gateway/internal/audit"
	"github.com/quantumpay/gateway/internal/circuitbreaker"
	"github.com/quantumpay/gateway/internal/metrics"
)

// Source supplies unpredictable bytes for transaction-ID derivation and
// screener seeding.
type Source interface {
	RandomBytes(ctx context.Context, n int) ([]byte, error)
}

// QuantumSource asks a remote quantum-RNG provider first and falls back
// silently to crypto/rand on any network or protocol error. The fallback
// degrades the randomness pedigree, never availability: RandomBytes does not
// fail unless the local CSPRNG itself is broken.
type QuantumSource struct {
	url        string
	apiKey     string
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
	logger     *slog.Logger
	audit      *audit.Logger
}

func NewQuantumSource(url, apiKey string, timeout time.Duration, auditLog *audit.Logger, logger *slog.Logger) *QuantumSource {
	return &QuantumSource{
		url:    url,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: 3,
			OpenTimeout:      time.Minute,
		}),
		logger: logger.With("component", "rng"),
		audit:  auditLog,
	}
}

var _ Source = (*QuantumSource)(nil)

type rngRequest struct {
	Length int `json:"length"`
}

type rngResponse struct {
	Random string `json:"random"`
}

// RandomBytes returns n unpredictable bytes. Each call audits which source
// actually served it.
func (s *QuantumSource) RandomBytes(ctx context.Context, n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("rng: byte count must be positive, got %d", n)
	}

	var remote []byte
	err := s.breaker.Do(func() error {
		b, err := s.fetchRemote(ctx, n)
		if err != nil {
			return err
		}
		remote = b
		return nil
	})
	if err == nil {
		s.audit.Event("Quantum", "fetched %d random bytes from quantum provider", n)
		return remote, nil
	}

	s.logger.Warn("quantum rng fetch failed, using local fallback", "error", err)
	metrics.RNGFallbacks.Inc()

	local := make([]byte, n)
	if _, err := rand.Read(local); err != nil {
		return nil, fmt.Errorf("rng: local fallback failed: %w", err)
	}
	s.audit.Event("Quantum", "fallback to local CSPRNG for %d bytes: %v", n, err)
	return local, nil
}

func (s *QuantumSource) fetchRemote(ctx context.Context, n int) ([]byte, error) {
	if s.apiKey == "" {
		return nil, errors.New("quantum rng api key missing")
	}

	body, err := json.Marshal(rngRequest{Length: n})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed rngResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	raw, err := hex.DecodeString(parsed.Random)
	if err != nil {
		return nil, fmt.Errorf("decode random hex: %w", err)
	}
	if len(raw) < n {
		return nil, fmt.Errorf("provider returned %d bytes, want %d", len(raw), n)
	}
	return raw[:n], nil
}

// LocalSource always uses the process CSPRNG. Used where no provider is
// configured and in tests.
type LocalSource struct{}

var _ Source = LocalSource{}

func (LocalSource) RandomBytes(_ context.Context, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("rng: %w", err)
	}
	return b, nil
}

// Package payment integrates with mobile-money disbursement providers.
package payment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrMissingPhone is returned when the beneficiary has no registered number.
var ErrMissingPhone = errors.New("beneficiary has no registered phone number")

// ErrGatewayUnavailable is returned by simulated outages.
var ErrGatewayUnavailable = errors.New("gateway unavailable")

// Result is the provider acknowledgement for a successful transfer.
type Result struct {
	Reference string
	Provider  string
	SentAt    time.Time
}

// Gateway moves money to a beneficiary phone. Either a reference is returned or an error is.
type Gateway interface {
	Disburse(ctx context.Context, phone string, amount float64, memo string) (*Result, error)
}

// MockMpesaConfig tunes the simulated B2C gateway.
type MockMpesaConfig struct {
	RatePerSec   float64
	Burst        int
	Timeout      time.Duration
	ForceFailure bool
}

// MockMpesa simulates an M-Pesa B2C call-out and fabricates transaction references.
type MockMpesa struct {
	limiter *rate.Limiter
	timeout time.Duration
	fail    bool
	logger  *zap.Logger
}

// NewMockMpesa constructs the simulated gateway. A non-positive rate disables throttling.
func NewMockMpesa(cfg MockMpesaConfig, logger *zap.Logger) *MockMpesa {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &MockMpesa{
		limiter: rate.NewLimiter(limit, cfg.Burst),
		timeout: cfg.Timeout,
		fail:    cfg.ForceFailure,
		logger:  logger,
	}
}

// Disburse implements Gateway.
func (m *MockMpesa) Disburse(ctx context.Context, phone string, amount float64, memo string) (*Result, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, ErrMissingPhone
	}
	if amount <= 0 {
		return nil, fmt.Errorf("invalid disbursement amount %.2f", amount)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for gateway slot: %w", err)
	}
	if m.fail {
		return nil, ErrGatewayUnavailable
	}

	ref, err := newReference()
	if err != nil {
		return nil, fmt.Errorf("generate reference: %w", err)
	}
	m.logger.Info("mpesa b2c transfer",
		zap.String("phone", phone),
		zap.Float64("amount", amount),
		zap.String("memo", memo),
		zap.String("reference", ref),
	)
	return &Result{Reference: ref, Provider: "mpesa", SentAt: time.Now().UTC()}, nil
}

// newReference returns "MPESA" followed by 8 upper-case hex characters.
func newReference() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "MPESA" + strings.ToUpper(hex.EncodeToString(buf)), nil
}

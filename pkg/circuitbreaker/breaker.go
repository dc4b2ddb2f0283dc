// Package circuitbreaker wraps sony/gobreaker for outbound collaborator
// calls, with logging and OpenTelemetry counters.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// State represents the circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Config holds circuit breaker configuration.
type Config struct {
	// Name identifies the breaker in logs and metrics.
	Name string
	// MaxRequests is max requests allowed in half-open state.
	MaxRequests uint32
	// Interval is the cyclic period for clearing counts in closed state.
	Interval time.Duration
	// Timeout is how long to wait before transitioning from open to half-open.
	Timeout time.Duration
	// FailureThreshold is the consecutive-failure count before opening.
	FailureThreshold uint32
	// FailureRatio opens the breaker once MinRequests have been seen.
	FailureRatio float64
	// MinRequests is minimum requests before the ratio is considered.
	MinRequests uint32
}

// DefaultConfig returns defaults suitable for notification delivery.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		FailureRatio:     0.6,
		MinRequests:      10,
	}
}

// Breaker wraps gobreaker with observability.
type Breaker struct {
	cb     *gobreaker.CircuitBreaker
	name   string
	logger *zap.Logger

	requestCounter metric.Int64Counter
	failureCounter metric.Int64Counter
	rejectCounter  metric.Int64Counter

	stateMu      sync.RWMutex
	currentState State
}

// New creates a circuit breaker.
func New(cfg Config, logger *zap.Logger) (*Breaker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Breaker{
		name:         cfg.Name,
		logger:       logger,
		currentState: StateClosed,
	}

	meter := otel.Meter("circuit-breaker")
	var err error
	b.requestCounter, err = meter.Int64Counter("circuit_breaker_requests_total",
		metric.WithDescription("Total requests through circuit breaker"))
	if err != nil {
		return nil, fmt.Errorf("create request counter: %w", err)
	}
	b.failureCounter, err = meter.Int64Counter("circuit_breaker_failures_total",
		metric.WithDescription("Total failed requests"))
	if err != nil {
		return nil, fmt.Errorf("create failure counter: %w", err)
	}
	b.rejectCounter, err = meter.Int64Counter("circuit_breaker_rejections_total",
		metric.WithDescription("Total requests rejected due to open circuit"))
	if err != nil {
		return nil, fmt.Errorf("create rejection counter: %w", err)
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return counts.ConsecutiveFailures >= cfg.FailureThreshold
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.onStateChange(from, to)
		},
	}
	b.cb = gobreaker.NewCircuitBreaker(settings)

	return b, nil
}

// Execute runs fn through the breaker.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	attrs := metric.WithAttributes(attribute.String("name", b.name))
	b.requestCounter.Add(ctx, 1, attrs)

	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			b.rejectCounter.Add(ctx, 1, attrs)
		} else {
			b.failureCounter.Add(ctx, 1, attrs)
		}
		return err
	}
	return nil
}

// GetState returns the current state.
func (b *Breaker) GetState() State {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.currentState
}

func (b *Breaker) onStateChange(from, to gobreaker.State) {
	toState := mapState(to)

	b.stateMu.Lock()
	b.currentState = toState
	b.stateMu.Unlock()

	b.logger.Warn("circuit breaker state changed",
		zap.String("breaker", b.name),
		zap.String("from", string(mapState(from))),
		zap.String("to", string(toState)))
}

func mapState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

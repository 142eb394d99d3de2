// Package breaker guards the remote cart record store with a circuit breaker
// so a failing store is skipped quickly instead of stalling every sync.
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/tastybites/storefront/internal/domain"
	"github.com/tastybites/storefront/internal/repository"
	apperrors "github.com/tastybites/storefront/pkg/errors"
)

// Config holds the breaker settings.
type Config struct {
	// Name identifies the breaker in metrics and logs.
	Name string

	// MaxFailures is the number of consecutive failures that trips the breaker.
	MaxFailures uint32

	// OpenTimeout is how long the breaker stays open before going half-open.
	OpenTimeout time.Duration

	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests uint32
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		MaxFailures:      5,
		OpenTimeout:      30 * time.Second,
		HalfOpenRequests: 1,
	}
}

var breakerState = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "cart_remote_breaker_state",
		Help: "Current state of the remote cart store breaker (0=closed, 1=half-open, 2=open)",
	},
	[]string{"name"},
)

func init() {
	prometheus.MustRegister(breakerState)
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// CartRecordRepository decorates a repository.CartRecordRepository with a
// circuit breaker. While open, calls fail with an apperrors.Unavailable error
// without reaching the store.
type CartRecordRepository struct {
	next    repository.CartRecordRepository
	breaker *gobreaker.CircuitBreaker[*domain.CartRecord]
	name    string
}

var _ repository.CartRecordRepository = (*CartRecordRepository)(nil)

// New wraps next with a breaker built from cfg.
func New(next repository.CartRecordRepository, cfg Config, logger *slog.Logger) *CartRecordRepository {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("remote cart store breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			breakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	}

	breakerState.WithLabelValues(cfg.Name).Set(0)

	return &CartRecordRepository{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[*domain.CartRecord](settings),
		name:    cfg.Name,
	}
}

// isSuccessful decides which errors count against the store. A missing record
// is a normal answer and a cancelled caller says nothing about store health.
func isSuccessful(err error) bool {
	return err == nil ||
		apperrors.IsNotFound(err) ||
		errors.Is(err, context.Canceled)
}

func (r *CartRecordRepository) Get(ctx context.Context, userID string) (*domain.CartRecord, error) {
	record, err := r.breaker.Execute(func() (*domain.CartRecord, error) {
		return r.next.Get(ctx, userID)
	})
	if err != nil {
		return nil, r.translate(err)
	}
	return record, nil
}

func (r *CartRecordRepository) Upsert(ctx context.Context, record *domain.CartRecord) error {
	_, err := r.breaker.Execute(func() (*domain.CartRecord, error) {
		return nil, r.next.Upsert(ctx, record)
	})
	if err != nil {
		return r.translate(err)
	}
	return nil
}

// State returns the current breaker state.
func (r *CartRecordRepository) State() gobreaker.State {
	return r.breaker.State()
}

func (r *CartRecordRepository) translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.Unavailable(r.name, err)
	}
	return err
}

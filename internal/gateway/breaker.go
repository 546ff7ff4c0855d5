package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/Health-Tracking/Mobile/internal/domain"
	"github.com/Health-Tracking/Mobile/internal/metrics"
)

type BreakerConfig struct {
	Name        string
	MaxFailures uint32
	OpenTimeout time.Duration
}

// Permission and configuration refusals do not count as breaker failures.
type Breaker struct {
	next Gateway
	cb   *gobreaker.CircuitBreaker[domain.Handle]
}

var _ Gateway = (*Breaker)(nil)

func NewBreaker(next Gateway, cfg BreakerConfig, log *slog.Logger) *Breaker {
	if cfg.Name == "" {
		cfg.Name = "notification-gateway"
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "gateway.breaker"))

	maxFailures := cfg.MaxFailures
	st := gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrPermissionDenied) ||
				errors.Is(err, ErrNotConfigured) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			metrics.ObserveBreakerTransition(to.String())
		},
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker[domain.Handle](st)}
}

func (b *Breaker) RequestPermission(ctx context.Context) (bool, error) {
	return b.next.RequestPermission(ctx)
}

func (b *Breaker) Schedule(ctx context.Context, at time.Time, p Payload) (domain.Handle, error) {
	h, err := b.cb.Execute(func() (domain.Handle, error) {
		return b.next.Schedule(ctx, at, p)
	})
	return h, openStateError("schedule", err)
}

func (b *Breaker) Cancel(ctx context.Context, h domain.Handle) error {
	_, err := b.cb.Execute(func() (domain.Handle, error) {
		return "", b.next.Cancel(ctx, h)
	})
	return openStateError("cancel", err)
}

func (b *Breaker) Events() <-chan Event {
	return b.next.Events()
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func openStateError(op string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.SchedulingError{Op: op, Err: err}
	}
	return err
}

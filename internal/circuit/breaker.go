// Package circuit implements a counter-store-backed circuit breaker: one
// state machine per downstream service, shared by every process that talks to
// that service. State lives entirely in the store, so any instance can open a
// circuit and all instances honor it.
//
// Caller contract: call CanExecute before the downstream call, then exactly
// one of RecordSuccess or RecordFailure based on the outcome. The breaker has
// no way to detect skipped bookkeeping.
package circuit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"gatekeeper/internal/counter"
	cbmetrics "gatekeeper/internal/circuit/metrics"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/requestcontext"
)

// Breaker tracks one downstream service's health.
type Breaker struct {
	service string
	cfg     Config
	store   counter.Store
	logger  *slog.Logger
	metrics *cbmetrics.Metrics
}

type Option func(*Breaker)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Breaker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func WithMetrics(m *cbmetrics.Metrics) Option {
	return func(b *Breaker) {
		b.metrics = m
	}
}

// New constructs a breaker for the named downstream service.
func New(service string, store counter.Store, cfg Config, opts ...Option) (*Breaker, error) {
	if service == "" {
		return nil, fmt.Errorf("service name is required")
	}
	if store == nil {
		return nil, fmt.Errorf("counter store is required")
	}
	if cfg.FailureThreshold <= 0 || cfg.SuccessThreshold <= 0 || cfg.Timeout <= 0 || cfg.WindowSize <= 0 {
		return nil, fmt.Errorf("breaker config for %q must be fully positive", service)
	}

	b := &Breaker{
		service: service,
		cfg:     cfg,
		store:   store,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Service returns the downstream service name this breaker guards.
func (b *Breaker) Service() string {
	return b.service
}

func (b *Breaker) stateKey() string    { return "circuit:" + b.service + ":state" }
func (b *Breaker) failuresKey() string { return "circuit:" + b.service + ":failures" }
func (b *Breaker) halfOpenKey() string { return "circuit:" + b.service + ":halfOpenSuccesses" }
func (b *Breaker) openedAtKey() string { return "circuit:" + b.service + ":openedAt" }

// GetState reads the persisted state. A missing or unrecognized value maps
// to CLOSED here and nowhere else; unrecognized values are logged because
// they indicate a corrupted key, not a fresh one.
func (b *Breaker) GetState(ctx context.Context) (State, error) {
	raw, ok, err := b.store.Get(ctx, b.stateKey())
	if err != nil {
		return StateClosed, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read circuit state")
	}
	if !ok {
		return StateClosed, nil
	}
	state, valid := ParseState(raw)
	if !valid {
		b.logger.Warn("unrecognized circuit state in store, treating as CLOSED",
			"service", b.service, "raw_state", raw)
		return StateClosed, nil
	}
	return state, nil
}

// CanExecute reports whether a downstream call may proceed right now. When
// the circuit is OPEN and the timeout has elapsed, the check itself flips the
// circuit to HALF_OPEN and admits the triggering call as the trial.
func (b *Breaker) CanExecute(ctx context.Context) (bool, error) {
	state, err := b.GetState(ctx)
	if err != nil {
		return false, err
	}

	switch state {
	case StateClosed, StateHalfOpen:
		return true, nil
	case StateOpen:
		openedAt, err := b.openedAt(ctx)
		if err != nil {
			return false, err
		}
		if openedAt.IsZero() || requestcontext.Now(ctx).Sub(openedAt) >= b.cfg.Timeout {
			if err := b.transition(ctx, StateHalfOpen); err != nil {
				return false, err
			}
			b.logger.Info("circuit half-open, admitting trial call", "service", b.service)
			return true, nil
		}
		b.metrics.ObserveRejection(b.service)
		return false, nil
	default:
		return true, nil
	}
}

// RecordFailure registers a failed downstream call. While CLOSED it counts
// toward the windowed threshold; while HALF_OPEN a single failure re-opens
// the circuit with a fresh openedAt.
func (b *Breaker) RecordFailure(ctx context.Context) error {
	state, err := b.GetState(ctx)
	if err != nil {
		return err
	}

	switch state {
	case StateClosed:
		n, err := b.store.IncrWindow(ctx, b.failuresKey(), b.cfg.WindowSize)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to increment failure counter")
		}
		if n >= int64(b.cfg.FailureThreshold) {
			if err := b.open(ctx); err != nil {
				return err
			}
			b.logger.Error("circuit opened",
				"service", b.service, "failures", n, "threshold", b.cfg.FailureThreshold)
		}
	case StateHalfOpen:
		// One failure during the trial re-opens immediately, no threshold.
		if err := b.open(ctx); err != nil {
			return err
		}
		b.logger.Error("circuit re-opened after failed trial", "service", b.service)
	case StateOpen:
		// Already rejecting; nothing to count.
	}
	return nil
}

// RecordSuccess registers a successful downstream call. Only HALF_OPEN
// successes count; enough of them close the circuit and reset all counters.
func (b *Breaker) RecordSuccess(ctx context.Context) error {
	state, err := b.GetState(ctx)
	if err != nil {
		return err
	}
	if state != StateHalfOpen {
		return nil
	}

	n, err := b.store.IncrWindow(ctx, b.halfOpenKey(), b.cfg.WindowSize)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to increment success counter")
	}
	if n >= int64(b.cfg.SuccessThreshold) {
		if err := b.close(ctx); err != nil {
			return err
		}
		b.logger.Info("circuit closed after recovery", "service", b.service, "successes", n)
	}
	return nil
}

// SetState is the operator override. Forcing CLOSED resets all counters, so
// repeated calls are equivalent to one.
func (b *Breaker) SetState(ctx context.Context, state State) error {
	if !state.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "invalid circuit state")
	}
	switch state {
	case StateClosed:
		return b.close(ctx)
	case StateOpen:
		return b.open(ctx)
	default:
		return b.transition(ctx, StateHalfOpen)
	}
}

// Status returns the diagnostic view: state, live counters, and openedAt.
func (b *Breaker) Status(ctx context.Context) (*Status, error) {
	state, err := b.GetState(ctx)
	if err != nil {
		return nil, err
	}
	failures, err := b.readCount(ctx, b.failuresKey())
	if err != nil {
		return nil, err
	}
	successes, err := b.readCount(ctx, b.halfOpenKey())
	if err != nil {
		return nil, err
	}

	status := &Status{
		Service:           b.service,
		State:             state,
		Failures:          failures,
		HalfOpenSuccesses: successes,
		FailureThreshold:  b.cfg.FailureThreshold,
		SuccessThreshold:  b.cfg.SuccessThreshold,
		TimeoutSeconds:    int(b.cfg.Timeout.Seconds()),
	}
	if openedAt, err := b.openedAt(ctx); err == nil && !openedAt.IsZero() {
		status.OpenedAt = &openedAt
	}
	return status, nil
}

// open transitions to OPEN with a fresh openedAt and clears the counters so
// the next CLOSED period starts from zero.
func (b *Breaker) open(ctx context.Context) error {
	now := requestcontext.Now(ctx)
	if err := b.store.Set(ctx, b.openedAtKey(), strconv.FormatInt(now.UnixMilli(), 10), 0); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to record circuit open time")
	}
	if err := b.store.Del(ctx, b.failuresKey(), b.halfOpenKey()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to reset circuit counters")
	}
	return b.transition(ctx, StateOpen)
}

// close transitions to CLOSED and clears every auxiliary key.
func (b *Breaker) close(ctx context.Context) error {
	if err := b.store.Del(ctx, b.failuresKey(), b.halfOpenKey(), b.openedAtKey()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to reset circuit counters")
	}
	return b.transition(ctx, StateClosed)
}

func (b *Breaker) transition(ctx context.Context, state State) error {
	if err := b.store.Set(ctx, b.stateKey(), string(state), 0); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to write circuit state")
	}
	b.metrics.ObserveTransition(b.service, string(state))
	return nil
}

func (b *Breaker) openedAt(ctx context.Context) (time.Time, error) {
	raw, ok, err := b.store.Get(ctx, b.openedAtKey())
	if err != nil {
		return time.Time{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read circuit open time")
	}
	if !ok {
		return time.Time{}, nil
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("circuit %q openedAt holds non-numeric value %q", b.service, raw)
	}
	return time.UnixMilli(millis), nil
}

func (b *Breaker) readCount(ctx context.Context, key string) (int64, error) {
	raw, ok, err := b.store.Get(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("circuit counter %q holds non-numeric value %q", key, raw)
	}
	return n, nil
}

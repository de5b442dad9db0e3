package circuit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeeper/internal/counter"
	"gatekeeper/internal/platform/config"
	"gatekeeper/pkg/requestcontext"
)

func testBreaker(t *testing.T) (*Breaker, *counter.InMemoryStore) {
	t.Helper()
	store := counter.NewInMemory()
	b, err := New("whatsapp", store, Config{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Timeout:          30 * time.Second,
		WindowSize:       60 * time.Second,
	})
	require.NoError(t, err)
	return b, store
}

func at(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func TestBreaker_InitialStateClosed(t *testing.T) {
	b, _ := testBreaker(t)
	ctx := context.Background()

	state, err := b.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, state)

	ok, err := b.CanExecute(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBreaker_OpensAtFailureThreshold(t *testing.T) {
	b, _ := testBreaker(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := at(base)

	require.NoError(t, b.RecordFailure(ctx))
	require.NoError(t, b.RecordFailure(ctx))

	state, err := b.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, state, "below threshold stays closed")

	require.NoError(t, b.RecordFailure(ctx))

	state, err = b.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateOpen, state)

	ok, err := b.CanExecute(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "open circuit rejects before timeout")
}

func TestBreaker_FailureWindowExpires(t *testing.T) {
	b, _ := testBreaker(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, b.RecordFailure(at(base)))
	require.NoError(t, b.RecordFailure(at(base)))

	// Past the window the counter is gone; old failures no longer count.
	later := at(base.Add(61 * time.Second))
	require.NoError(t, b.RecordFailure(later))
	require.NoError(t, b.RecordFailure(later))

	state, err := b.GetState(later)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, state)
}

func TestBreaker_HalfOpenTrialAfterTimeout(t *testing.T) {
	b, _ := testBreaker(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := at(base)

	for i := 0; i < 3; i++ {
		require.NoError(t, b.RecordFailure(ctx))
	}

	// Before the timeout: still rejecting, no state change.
	early := at(base.Add(29 * time.Second))
	ok, err := b.CanExecute(early)
	require.NoError(t, err)
	assert.False(t, ok)
	state, _ := b.GetState(early)
	assert.Equal(t, StateOpen, state)

	// After the timeout the check itself flips to HALF_OPEN and admits the
	// triggering call.
	trial := at(base.Add(31 * time.Second))
	ok, err = b.CanExecute(trial)
	require.NoError(t, err)
	assert.True(t, ok)
	state, _ = b.GetState(trial)
	assert.Equal(t, StateHalfOpen, state)
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b, _ := testBreaker(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, b.RecordFailure(at(base)))
	}
	trial := at(base.Add(31 * time.Second))
	_, err := b.CanExecute(trial)
	require.NoError(t, err)

	require.NoError(t, b.RecordSuccess(trial))

	state, err := b.GetState(trial)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, state)

	status, err := b.Status(trial)
	require.NoError(t, err)
	assert.Zero(t, status.Failures, "counters reset on close")
	assert.Zero(t, status.HalfOpenSuccesses)
	assert.Nil(t, status.OpenedAt)
}

func TestBreaker_SingleHalfOpenFailureReopens(t *testing.T) {
	b, _ := testBreaker(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, b.RecordFailure(at(base)))
	}
	trial := at(base.Add(31 * time.Second))
	_, err := b.CanExecute(trial)
	require.NoError(t, err)

	// One failure re-opens with a fresh openedAt, regardless of thresholds.
	require.NoError(t, b.RecordFailure(trial))

	state, err := b.GetState(trial)
	require.NoError(t, err)
	assert.Equal(t, StateOpen, state)

	status, err := b.Status(trial)
	require.NoError(t, err)
	require.NotNil(t, status.OpenedAt)
	assert.Equal(t, base.Add(31*time.Second).UnixMilli(), status.OpenedAt.UnixMilli())

	// The fresh openedAt restarts the full timeout.
	ok, err := b.CanExecute(at(base.Add(45 * time.Second)))
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = b.CanExecute(at(base.Add(62 * time.Second)))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBreaker_MultiSuccessThreshold(t *testing.T) {
	store := counter.NewInMemory()
	b, err := New("google", store, Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		WindowSize:       60 * time.Second,
	})
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, b.RecordFailure(at(base)))

	trial := at(base.Add(31 * time.Second))
	_, err = b.CanExecute(trial)
	require.NoError(t, err)

	require.NoError(t, b.RecordSuccess(trial))
	state, _ := b.GetState(trial)
	assert.Equal(t, StateHalfOpen, state, "one success below threshold stays half-open")

	require.NoError(t, b.RecordSuccess(trial))
	state, _ = b.GetState(trial)
	assert.Equal(t, StateClosed, state)
}

func TestBreaker_SuccessWhileClosedIsNoop(t *testing.T) {
	b, _ := testBreaker(t)
	ctx := at(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	require.NoError(t, b.RecordSuccess(ctx))
	require.NoError(t, b.RecordFailure(ctx))
	require.NoError(t, b.RecordFailure(ctx))
	require.NoError(t, b.RecordSuccess(ctx))

	// Successes while CLOSED do not touch the failure counter.
	require.NoError(t, b.RecordFailure(ctx))
	state, err := b.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateOpen, state)
}

func TestBreaker_SetStateClosedIsIdempotent(t *testing.T) {
	b, store := testBreaker(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := at(base)

	for i := 0; i < 3; i++ {
		require.NoError(t, b.RecordFailure(ctx))
	}

	require.NoError(t, b.SetState(ctx, StateClosed))
	require.NoError(t, b.SetState(ctx, StateClosed))

	status, err := b.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, status.State)
	assert.Zero(t, status.Failures)
	assert.Nil(t, status.OpenedAt)

	// The manual reset really cleared the keys, not just the view.
	_, ok, err := store.Get(ctx, "circuit:whatsapp:openedAt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBreaker_UnrecognizedPersistedStateTreatedAsClosed(t *testing.T) {
	b, store := testBreaker(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "circuit:whatsapp:state", "REOPENED", 0))

	state, err := b.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, state)

	ok, err := b.CanExecute(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegistry_NamedInstances(t *testing.T) {
	store := counter.NewInMemory()
	reg, err := NewRegistry(store, config.DefaultBreakerProfiles(), nil, nil)
	require.NoError(t, err)

	b, ok := reg.Get("whatsapp")
	require.True(t, ok)
	assert.Equal(t, "whatsapp", b.Service())

	_, ok = reg.Get("unknown")
	assert.False(t, ok)

	all := reg.All()
	require.Len(t, all, 3)
	assert.Equal(t, "google", all[0].Service())
	assert.Equal(t, "llm", all[1].Service())
	assert.Equal(t, "whatsapp", all[2].Service())

	// Breakers for different services are independent.
	ctx := at(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	llm, _ := reg.Get("llm")
	for i := 0; i < 3; i++ {
		require.NoError(t, llm.RecordFailure(ctx))
	}
	llmState, _ := llm.GetState(ctx)
	assert.Equal(t, StateOpen, llmState)
	waState, _ := b.GetState(ctx)
	assert.Equal(t, StateClosed, waState)
}

package counter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeeper/pkg/requestcontext"
)

func TestInMemoryStore_IncrWindowAnchorsTTLOnFirstIncrement(t *testing.T) {
	store := NewInMemory()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), base)

	n, err := store.IncrWindow(ctx, "w:k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Second increment must not extend the window.
	later := requestcontext.WithTime(context.Background(), base.Add(30*time.Second))
	n, err = store.IncrWindow(later, "w:k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ttl, ok, err := store.TTL(later, "w:k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, ttl)
}

func TestInMemoryStore_ExpiryResetsCounter(t *testing.T) {
	store := NewInMemory()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), base)

	_, err := store.IncrWindow(ctx, "w:k", time.Minute)
	require.NoError(t, err)

	after := requestcontext.WithTime(context.Background(), base.Add(61*time.Second))
	_, ok, err := store.Get(after, "w:k")
	require.NoError(t, err)
	assert.False(t, ok, "expired key should be gone")

	n, err := store.IncrWindow(after, "w:k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "new window starts from zero")
}

func TestInMemoryStore_SetWithoutTTLNeverExpires(t *testing.T) {
	store := NewInMemory()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), base)

	require.NoError(t, store.Set(ctx, "s:k", "OPEN", 0))

	farFuture := requestcontext.WithTime(context.Background(), base.Add(1000*time.Hour))
	val, ok, err := store.Get(farFuture, "s:k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "OPEN", val)

	ttl, ok, err := store.TTL(farFuture, "s:k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Zero(t, ttl)
}

func TestInMemoryStore_KeysFiltersByPrefix(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "ddos:blocked:ip:1.2.3.4", "1", 0))
	require.NoError(t, store.Set(ctx, "ddos:blocked:phone:555", "1", 0))
	require.NoError(t, store.Set(ctx, "circuit:whatsapp:state", "OPEN", 0))

	keys, err := store.Keys(ctx, "ddos:blocked:ip:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ddos:blocked:ip:1.2.3.4"}, keys)
}

package decision

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/lattice-ai/authcore/internal/policy"
	"github.com/lattice-ai/authcore/internal/registry"
)

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, ttl), mr
}

func allowDecision(id string) policy.Decision {
	return policy.Decision{
		ID:         id,
		Allowed:    true,
		Reason:     policy.ReasonAllowed,
		Permission: "read:conversation:own",
		Scope:      registry.ScopeOwn,
	}
}

func TestCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	_, hit, err := cache.Get(ctx, "fp1")
	require.NoError(t, err)
	assert.False(t, hit)

	want := allowDecision("d1")
	require.NoError(t, cache.Put(ctx, "fp1", want))

	got, hit, err := cache.Get(ctx, "fp1")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, want, got)
}

func TestCacheEntriesExpire(t *testing.T) {
	cache, mr := newTestCache(t, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "fp1", allowDecision("d1")))
	mr.FastForward(31 * time.Second)

	_, hit, err := cache.Get(ctx, "fp1")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestComputeCoalescesConcurrentCallers(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)

	var executions atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	fn := func(ctx context.Context) (policy.Decision, error) {
		executions.Add(1)
		once.Do(func() { close(entered) })
		<-release
		return allowDecision("shared"), nil
	}

	const callers = 16
	results := make([]policy.Decision, callers)
	g := new(errgroup.Group)

	g.Go(func() error {
		dec, _, err := cache.Compute(context.Background(), "same-fp", fn)
		results[0] = dec
		return err
	})

	// Wait until the first computation is in flight, pile the rest onto the
	// same key, then let it finish.
	<-entered
	for i := 1; i < callers; i++ {
		i := i
		g.Go(func() error {
			dec, _, err := cache.Compute(context.Background(), "same-fp", fn)
			results[i] = dec
			return err
		})
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), executions.Load(), "exactly one computation per fingerprint")
	for _, dec := range results {
		assert.Equal(t, "shared", dec.ID)
	}
}

func TestComputeHonoursCancellation(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	block := make(chan struct{})
	defer close(block)

	done := make(chan error, 1)
	go func() {
		_, _, err := cache.Compute(ctx, "slow-fp", func(context.Context) (policy.Decision, error) {
			<-block
			return allowDecision("late"), nil
		})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("caller did not observe cancellation")
	}
}

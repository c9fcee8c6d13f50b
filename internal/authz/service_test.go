package authz

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/lattice-ai/authcore/internal/audit"
	"github.com/lattice-ai/authcore/internal/decision"
	"github.com/lattice-ai/authcore/internal/observability"
	"github.com/lattice-ai/authcore/internal/ownership"
	"github.com/lattice-ai/authcore/internal/policy"
	"github.com/lattice-ai/authcore/internal/registry"
)

type staticLoader struct{ doc registry.Document }

func (l staticLoader) Load(context.Context) (registry.Document, error) { return l.doc, nil }

// testStore builds a registry with the default platform roles: viewer reads
// own conversations, tenant-admin inherits viewer and reads tenant-wide,
// operator reads globally, indexer embeds documents tenant-exempt.
func testStore(t *testing.T) *registry.Store {
	t.Helper()
	store, err := registry.NewStore(context.Background(), staticLoader{doc: registry.Document{
		Version: 7,
		Roles: []registry.Role{
			{Name: "viewer", Permissions: []registry.Permission{
				{Action: "read", ResourceType: "conversation", Scope: registry.ScopeOwn},
			}},
			{Name: "tenant-admin", Parents: []string{"viewer"}, Permissions: []registry.Permission{
				{Action: "read", ResourceType: "conversation", Scope: registry.ScopeTenant},
			}},
			{Name: "operator", Permissions: []registry.Permission{
				{Action: "read", ResourceType: "conversation", Scope: registry.ScopeGlobal},
			}},
			{Name: "indexer", Permissions: []registry.Permission{
				{Action: "embed", ResourceType: "document", Scope: registry.ScopeTenant, TenantExempt: true},
			}},
		},
	}}, discardLogger())
	require.NoError(t, err)
	return store
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingResolver wraps a static table and counts round trips, standing in
// for the owning service.
type countingResolver struct {
	records map[string]ownership.Record
	calls   atomic.Int32
	delay   time.Duration
	err     error
}

func (r *countingResolver) Resolve(ctx context.Context, id string) (ownership.Record, error) {
	r.calls.Add(1)
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return ownership.Record{}, ctx.Err()
		}
	}
	if r.err != nil {
		return ownership.Record{}, r.err
	}
	record, ok := r.records[id]
	if !ok {
		return ownership.Record{}, ownership.ErrResourceNotFound
	}
	return record, nil
}

// captureEmitter records every audit event handed off by the facade.
type captureEmitter struct {
	mu     sync.Mutex
	events []audit.Event
	done   chan struct{}
}

func newCaptureEmitter() *captureEmitter {
	return &captureEmitter{done: make(chan struct{}, 64)}
}

func (e *captureEmitter) Emit(ctx context.Context, event audit.Event) error {
	e.mu.Lock()
	e.events = append(e.events, event)
	e.mu.Unlock()
	e.done <- struct{}{}
	return nil
}

func (e *captureEmitter) all() []audit.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]audit.Event, len(e.events))
	copy(out, e.events)
	return out
}

// waitEvents blocks until n events have been emitted.
func (e *captureEmitter) waitEvents(t *testing.T, n int) []audit.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-e.done:
		case <-deadline:
			t.Fatalf("timed out waiting for %d audit events", n)
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]audit.Event, len(e.events))
	copy(out, e.events)
	return out
}

type fixture struct {
	service  *Service
	emitter  *captureEmitter
	resolver *countingResolver
	redis    *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := testStore(t)

	resolver := &countingResolver{records: map[string]ownership.Record{
		"c1": {TenantID: "t1", OwnerID: "s1", Version: 1},
		"c2": {TenantID: "t1", OwnerID: "s2", Version: 1},
		"c3": {TenantID: "t2", OwnerID: "s9", Version: 1},
	}}
	resolvers := ownership.NewRegistry()
	resolvers.Register("conversation", resolver)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	emitter := newCaptureEmitter()
	service := NewService(store, resolvers, decision.NewCache(client, 30*time.Second), emitter, observability.NewMetrics(), discardLogger())

	return &fixture{service: service, emitter: emitter, resolver: resolver, redis: mr}
}

func readRequest(subject, tenant, resource string, roles ...string) Request {
	return Request{
		SubjectID:    subject,
		TenantID:     tenant,
		Roles:        roles,
		Action:       "read",
		ResourceType: "conversation",
		ResourceID:   resource,
	}
}

func TestAuthorizeOwnerAllows(t *testing.T) {
	f := newFixture(t)

	dec, err := f.service.Authorize(context.Background(), readRequest("s1", "t1", "c1", "viewer"))
	require.NoError(t, err)
	require.True(t, dec.Allowed)
	assert.Equal(t, "read:conversation:own", dec.Permission)
	assert.NotEmpty(t, dec.ID)

	events := f.emitter.waitEvents(t, 1)
	assert.Equal(t, dec.ID, events[0].DecisionID)
	assert.True(t, events[0].Allowed)
	assert.False(t, events[0].CacheHit)
	assert.Equal(t, "own", events[0].Scope)
}

func TestAuthorizeNonOwnerDeniesWithScopeViolation(t *testing.T) {
	f := newFixture(t)

	dec, err := f.service.Authorize(context.Background(), readRequest("s1", "t1", "c2", "viewer"))
	require.NoError(t, err, "deny is a normal outcome, not an error")
	require.False(t, dec.Allowed)
	assert.Equal(t, policy.ReasonScopeViolation, dec.Reason)

	events := f.emitter.waitEvents(t, 1)
	assert.False(t, events[0].Allowed)
	assert.Equal(t, string(policy.ReasonScopeViolation), events[0].Reason)
}

func TestAuthorizeTenantAdminInheritanceAllows(t *testing.T) {
	f := newFixture(t)

	dec, err := f.service.Authorize(context.Background(), readRequest("a1", "t1", "c2", "tenant-admin"))
	require.NoError(t, err)
	require.True(t, dec.Allowed)
	assert.Equal(t, "read:conversation:tenant", dec.Permission)
}

func TestAuthorizeCrossTenantDenies(t *testing.T) {
	f := newFixture(t)

	for _, roles := range [][]string{{"viewer"}, {"tenant-admin"}} {
		dec, err := f.service.Authorize(context.Background(), readRequest("s1", "t1", "c3", roles...))
		require.NoError(t, err)
		assert.False(t, dec.Allowed, "roles %v must not cross tenants", roles)
	}

	dec, err := f.service.Authorize(context.Background(), readRequest("op", "t0", "c3", "operator"))
	require.NoError(t, err)
	assert.True(t, dec.Allowed, "global scope crosses tenants")
}

func TestAuthorizeResourceNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Authorize(context.Background(), readRequest("s1", "t1", "ghost", "viewer"))
	require.ErrorIs(t, err, ownership.ErrResourceNotFound)

	// No decision, no cache entry, no audit event.
	assert.Empty(t, f.redis.Keys())
	assert.Empty(t, f.emitter.all())
}

func TestAuthorizeResolutionTimeout(t *testing.T) {
	f := newFixture(t)
	f.resolver.err = ownership.ErrResolutionTimeout

	_, err := f.service.Authorize(context.Background(), readRequest("s1", "t1", "c1", "viewer"))
	require.ErrorIs(t, err, ownership.ErrResolutionTimeout)
	assert.Empty(t, f.redis.Keys())
}

func TestAuthorizeInvalidRequests(t *testing.T) {
	f := newFixture(t)

	cases := map[string]Request{
		"missing subject":  {TenantID: "t1", Roles: []string{"viewer"}, Action: "read", ResourceType: "conversation", ResourceID: "c1"},
		"missing tenant":   {SubjectID: "s1", Roles: []string{"viewer"}, Action: "read", ResourceType: "conversation", ResourceID: "c1"},
		"no roles":         {SubjectID: "s1", TenantID: "t1", Action: "read", ResourceType: "conversation", ResourceID: "c1"},
		"blank role entry": {SubjectID: "s1", TenantID: "t1", Roles: []string{""}, Action: "read", ResourceType: "conversation", ResourceID: "c1"},
		"missing action":   {SubjectID: "s1", TenantID: "t1", Roles: []string{"viewer"}, ResourceType: "conversation", ResourceID: "c1"},
		"missing resource": {SubjectID: "s1", TenantID: "t1", Roles: []string{"viewer"}, Action: "read"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.service.Authorize(context.Background(), req)
			require.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
	assert.Zero(t, f.resolver.calls.Load(), "malformed requests never reach the resolver")
}

func TestAuthorizeForgedRoleClaim(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Authorize(context.Background(), readRequest("s1", "t1", "c1", "made-up-role"))
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Zero(t, f.resolver.calls.Load())
}

func TestAuthorizeCacheHitSkipsResolution(t *testing.T) {
	f := newFixture(t)
	req := readRequest("s1", "t1", "c1", "viewer")

	first, err := f.service.Authorize(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, int32(1), f.resolver.calls.Load())

	second, err := f.service.Authorize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.resolver.calls.Load(), "hit must not resolve again")
	assert.Equal(t, first, second)

	// Emission is fire-and-forget, so arrival order is not guaranteed.
	events := f.emitter.waitEvents(t, 2)
	hits := 0
	for _, ev := range events {
		if ev.CacheHit {
			hits++
		}
	}
	assert.Equal(t, 1, hits, "one miss event and one hit event")
}

func TestAuthorizeVersionBumpInvalidates(t *testing.T) {
	f := newFixture(t)
	req := readRequest("s1", "t1", "c1", "viewer")

	dec, err := f.service.Authorize(context.Background(), req)
	require.NoError(t, err)
	require.True(t, dec.Allowed)

	// Ownership changes hands; the owning service bumps the version and the
	// caller passes the new stamp. The cached allow must not be served.
	f.resolver.records["c1"] = ownership.Record{TenantID: "t1", OwnerID: "s2", Version: 2}
	req.OwnershipVersion = 2

	dec, err = f.service.Authorize(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, int32(2), f.resolver.calls.Load())

	// Same for a role-set version bump.
	req2 := readRequest("s1", "t1", "c1", "viewer")
	req2.RoleVersion = 1
	_, err = f.service.Authorize(context.Background(), req2)
	require.NoError(t, err)
	assert.Equal(t, int32(3), f.resolver.calls.Load())
}

func TestAuthorizeSingleFlight(t *testing.T) {
	f := newFixture(t)
	f.resolver.delay = 100 * time.Millisecond
	req := readRequest("s1", "t1", "c1", "viewer")

	const callers = 10
	decisions := make([]string, callers)
	g := new(errgroup.Group)
	for i := 0; i < callers; i++ {
		i := i
		g.Go(func() error {
			dec, err := f.service.Authorize(context.Background(), req)
			if err != nil {
				return err
			}
			decisions[i] = dec.ID
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), f.resolver.calls.Load(), "identical fingerprints coalesce onto one resolution")
	for _, id := range decisions {
		assert.Equal(t, decisions[0], id)
	}
}

func TestAuthorizeCancellationReturnsNoDecision(t *testing.T) {
	f := newFixture(t)
	f.resolver.delay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := f.service.Authorize(ctx, readRequest("s1", "t1", "c1", "viewer"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestAuthorizeServiceAccountExemption(t *testing.T) {
	f := newFixture(t)
	f.resolver.records["d1"] = ownership.Record{TenantID: "t2", OwnerID: "s9", Version: 1}
	resolvers := ownership.NewRegistry()
	resolvers.Register("document", f.resolver)
	f.service.resolver = resolvers

	req := Request{
		SubjectID:      "embed-svc",
		TenantID:       "platform",
		Roles:          []string{"indexer"},
		ServiceAccount: true,
		Action:         "embed",
		ResourceType:   "document",
		ResourceID:     "d1",
	}
	dec, err := f.service.Authorize(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)

	req.ServiceAccount = false
	dec, err = f.service.Authorize(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
}

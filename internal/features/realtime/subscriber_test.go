package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"kod-admin/internal/broadcast"
	"kod-admin/internal/features/permission"
	"kod-admin/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var paths = broadcast.NewPaths("development")

// countingStore wraps a MemoryStore and records listener attach/release per
// path. With silent set, subscriptions never deliver anything.
type countingStore struct {
	*broadcast.MemoryStore
	silent bool

	mu         sync.Mutex
	subscribes map[string]int
	closes     map[string]int
}

func newCountingStore(silent bool) *countingStore {
	return &countingStore{
		MemoryStore: broadcast.NewMemoryStore(),
		silent:      silent,
		subscribes:  map[string]int{},
		closes:      map[string]int{},
	}
}

func (c *countingStore) Subscribe(ctx context.Context, path string) (broadcast.Subscription, error) {
	c.mu.Lock()
	c.subscribes[path]++
	c.mu.Unlock()

	if c.silent {
		return &countingSub{Subscription: &silentSub{events: make(chan broadcast.Event)}, store: c, path: path}, nil
	}
	inner, err := c.MemoryStore.Subscribe(ctx, path)
	if err != nil {
		return nil, err
	}
	return &countingSub{Subscription: inner, store: c, path: path}, nil
}

func (c *countingStore) counts(path string) (subscribes, closes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribes[path], c.closes[path]
}

type countingSub struct {
	broadcast.Subscription
	store *countingStore
	path  string
}

func (s *countingSub) Close() error {
	s.store.mu.Lock()
	s.store.closes[s.path]++
	s.store.mu.Unlock()
	return s.Subscription.Close()
}

type silentSub struct {
	events chan broadcast.Event
	once   sync.Once
}

func (s *silentSub) Events() <-chan broadcast.Event { return s.events }

func (s *silentSub) Close() error {
	s.once.Do(func() { close(s.events) })
	return nil
}

func waitForState(t *testing.T, s *Subscriber, state State) View {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.Current().State == state
	}, 2*time.Second, 5*time.Millisecond, "never reached %s, last view %+v", state, s.Current())
	return s.Current()
}

func write(t *testing.T, store broadcast.Store, role string, perms ...string) {
	t.Helper()
	require.NoError(t, store.Write(context.Background(), paths.For(role), broadcast.Snapshot{Permissions: perms, UpdatedAt: time.Now().UnixMilli()}))
}

func TestSubscriber_StartsIdle(t *testing.T) {
	s := NewSubscriber(broadcast.NewMemoryStore(), paths)
	defer s.Close()

	v := s.Current()
	assert.Equal(t, StateIdle, v.State)
	assert.Empty(t, v.Permissions)
	assert.Equal(t, Pending, NewGate(s).Check("employee.read"))
}

func TestSubscriber_FailClosedWhileSubscribing(t *testing.T) {
	store := newCountingStore(true)
	s := NewSubscriber(store, paths, WithTimeout(time.Minute))
	defer s.Close()

	require.NoError(t, s.SetRole(context.Background(), "admin"))

	v := s.Current()
	assert.Equal(t, StateSubscribing, v.State)
	assert.Equal(t, "admin", v.Role)
	assert.Empty(t, v.Permissions)

	gate := NewGate(s)
	assert.Equal(t, Pending, gate.Check("employee.read"))
	assert.False(t, gate.IsAllowed("employee.read"))
}

func TestSubscriber_TimeoutMovesToError(t *testing.T) {
	m := metrics.NewMetrics()
	s := NewSubscriber(newCountingStore(true), paths, WithTimeout(30*time.Millisecond), WithMetrics(m))
	defer s.Close()

	require.NoError(t, s.SetRole(context.Background(), "admin"))

	v := waitForState(t, s, StateError)
	assert.Equal(t, ReasonTimeout, v.Reason)
	assert.Empty(t, v.Permissions)
	assert.Equal(t, Deny, NewGate(s).Check("employee.read"))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SubscriptionErrors.WithLabelValues("timeout")))
}

func TestSubscriber_SameRoleRetriesAfterError(t *testing.T) {
	store := newCountingStore(true)
	s := NewSubscriber(store, paths, WithTimeout(30*time.Millisecond))
	defer s.Close()

	require.NoError(t, s.SetRole(context.Background(), "admin"))
	waitForState(t, s, StateError)

	require.NoError(t, s.SetRole(context.Background(), "admin"))
	require.Eventually(t, func() bool {
		subs, closes := store.counts(paths.For("admin"))
		return subs == 2 && closes == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSubscriber_LiveSnapshotAndReplacement(t *testing.T) {
	store := broadcast.NewMemoryStore()
	write(t, store, "admin", "employee.create", "employee.read")

	s := NewSubscriber(store, paths)
	defer s.Close()
	require.NoError(t, s.SetRole(context.Background(), "admin"))

	v := waitForState(t, s, StateLive)
	assert.Equal(t, []string{"employee.create", "employee.read"}, v.Permissions)

	gate := NewGate(s)
	assert.Equal(t, Allow, gate.Check("employee.create"))
	assert.Equal(t, Deny, gate.Check("payroll.view"))

	write(t, store, "admin", "payroll.view")
	require.Eventually(t, func() bool {
		return gate.IsAllowed("payroll.view")
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, gate.IsAllowed("employee.create"))
}

func TestSubscriber_NoDataAndMissingKey(t *testing.T) {
	store := broadcast.NewMemoryStore()
	s := NewSubscriber(store, paths)
	defer s.Close()

	require.NoError(t, s.SetRole(context.Background(), "employee"))
	v := waitForState(t, s, StateLive)
	assert.Equal(t, ReasonNoData, v.Reason)
	assert.Empty(t, v.Permissions)

	store.SetRaw(paths.For("employee"), []byte(`{"updatedAt":1}`))
	require.Eventually(t, func() bool {
		return s.Current().Reason == ReasonMissingKey
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateLive, s.Current().State)
	assert.Empty(t, s.Current().Permissions)
}

func TestSubscriber_ErrorEventThenHeal(t *testing.T) {
	store := broadcast.NewMemoryStore()
	write(t, store, "hr", "leave.approve")

	s := NewSubscriber(store, paths)
	defer s.Close()
	require.NoError(t, s.SetRole(context.Background(), "hr"))
	waitForState(t, s, StateLive)

	store.SetRaw(paths.For("hr"), []byte(`{{{`))
	v := waitForState(t, s, StateError)
	assert.Empty(t, v.Permissions)
	assert.NotEmpty(t, v.Reason)
	assert.False(t, NewGate(s).IsAllowed("leave.approve"))

	write(t, store, "hr", "leave.approve")
	v = waitForState(t, s, StateLive)
	assert.Equal(t, []string{"leave.approve"}, v.Permissions)
}

func TestSubscriber_RoleChangeReleasesExactlyOnce(t *testing.T) {
	store := newCountingStore(false)
	write(t, store, "admin", "a.read")
	write(t, store, "hr", "h.read")

	s := NewSubscriber(store, paths)
	ctx := context.Background()

	require.NoError(t, s.SetRole(ctx, "admin"))
	waitForState(t, s, StateLive)

	// Same role, different spelling
	require.NoError(t, s.SetRole(ctx, " ADMIN "))
	subs, closes := store.counts(paths.For("admin"))
	assert.Equal(t, 1, subs)
	assert.Equal(t, 0, closes)

	require.NoError(t, s.SetRole(ctx, "hr"))
	_, closes = store.counts(paths.For("admin"))
	assert.Equal(t, 1, closes)
	assert.Equal(t, 0, store.Subscribers(paths.For("admin")))

	v := waitForState(t, s, StateLive)
	assert.Equal(t, "hr", v.Role)
	assert.Equal(t, []string{"h.read"}, v.Permissions)

	// Writes to the old role no longer reach this subscriber.
	write(t, store, "admin", "a.read", "a.write")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"h.read"}, s.Current().Permissions)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, closes = store.counts(paths.For("hr"))
	assert.Equal(t, 1, closes)

	write(t, store, "hr", "h.read", "h.write")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateIdle, s.Current().State)
	assert.Empty(t, s.Current().Permissions)

	assert.ErrorIs(t, s.SetRole(ctx, "admin"), ErrSubscriberClosed)
}

func TestSubscriber_EmptyRoleDetaches(t *testing.T) {
	store := newCountingStore(false)
	s := NewSubscriber(store, paths)
	defer s.Close()

	require.NoError(t, s.SetRole(context.Background(), "admin"))
	waitForState(t, s, StateLive)

	require.NoError(t, s.SetRole(context.Background(), ""))
	assert.Equal(t, StateIdle, s.Current().State)
	_, closes := store.counts(paths.For("admin"))
	assert.Equal(t, 1, closes)
}

func TestSubscriber_ReleasedWhileStillSubscribing(t *testing.T) {
	store := newCountingStore(true)
	s := NewSubscriber(store, paths, WithTimeout(time.Minute))

	require.NoError(t, s.SetRole(context.Background(), "admin"))
	require.Eventually(t, func() bool {
		subs, _ := store.counts(paths.For("admin"))
		return subs == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Close())
	_, closes := store.counts(paths.For("admin"))
	assert.Equal(t, 1, closes)
}

func TestSubscriber_UpdatesFeed(t *testing.T) {
	store := broadcast.NewMemoryStore()
	write(t, store, "admin", "a.read")
	s := NewSubscriber(store, paths)

	require.NoError(t, s.SetRole(context.Background(), "admin"))
	waitForState(t, s, StateLive)

	// Coalesced: only the latest view is pending.
	select {
	case v := <-s.Updates():
		assert.Equal(t, StateLive, v.State)
		assert.Equal(t, []string{"a.read"}, v.Permissions)
	case <-time.After(time.Second):
		t.Fatal("no update")
	}

	require.NoError(t, s.Close())
	for range s.Updates() {
	}
}

func TestSubscriber_FollowsSyncService(t *testing.T) {
	store := broadcast.NewMemoryStore()
	syncSvc := permission.NewSyncService(store, paths, nil, nil)
	ctx := context.Background()

	require.NoError(t, syncSvc.SyncRole(ctx, "admin", []string{"employee.create"}))
	require.NoError(t, syncSvc.SyncRole(ctx, "hr", []string{"leave.approve"}))
	require.NoError(t, syncSvc.SyncSuperAdminAggregate(ctx, []permission.RolePermissions{
		{Role: "admin", Permissions: []string{"employee.create"}},
		{Role: "hr", Permissions: []string{"leave.approve"}},
	}))

	admin := NewSubscriber(store, paths)
	defer admin.Close()
	root := NewSubscriber(store, paths)
	defer root.Close()

	require.NoError(t, admin.SetRole(ctx, "Admin"))
	require.NoError(t, root.SetRole(ctx, "super admin"))
	waitForState(t, admin, StateLive)
	waitForState(t, root, StateLive)

	assert.True(t, NewGate(admin).IsAllowed("employee.create"))
	assert.False(t, NewGate(admin).IsAllowed("leave.approve"))
	assert.True(t, NewGate(root).IsAllowed("leave.approve"))

	require.NoError(t, syncSvc.SyncRole(ctx, "admin", []string{"employee.create", "payroll.view"}))
	require.Eventually(t, func() bool {
		return NewGate(admin).IsAllowed("payroll.view")
	}, 2*time.Second, 5*time.Millisecond)
}

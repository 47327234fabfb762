package realtime

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"kod-admin/internal/broadcast"
	"kod-admin/internal/metrics"

	"go.uber.org/zap"
)

const DefaultTimeout = 10 * time.Second

// Reasons reported alongside an empty permission set.
const (
	ReasonNoData     = "no data at path"
	ReasonMissingKey = "connected, permissions key missing"
	ReasonTimeout    = "timed out waiting for first snapshot"
	ReasonClosed     = "subscription closed"
)

var ErrSubscriberClosed = errors.New("realtime: subscriber closed")

type State int

const (
	StateIdle State = iota
	StateSubscribing
	StateLive
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubscribing:
		return "subscribing"
	case StateLive:
		return "live"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// View is what consumers observe of a subscriber at one instant.
type View struct {
	State       State    `json:"state"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"` // sorted
	Reason      string   `json:"reason,omitempty"`
	UpdatedAt   int64    `json:"updatedAt,omitempty"`
}

// Has reports whether token is in the view's permission set.
func (v View) Has(token string) bool {
	_, found := slices.BinarySearch(v.Permissions, token)
	return found
}

type Option func(*Subscriber)

// WithTimeout bounds the wait for the first snapshot after a role change.
func WithTimeout(d time.Duration) Option {
	return func(s *Subscriber) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Subscriber) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Subscriber) {
		s.metrics = m
	}
}

// Subscriber keeps the permission set of one role in sync with the broadcast
// store. It never reports a permission it has not received: every state other
// than Live exposes an empty set.
type Subscriber struct {
	store   broadcast.Store
	paths   broadcast.Paths
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics

	// serializes SetRole and Close
	changeMu sync.Mutex

	mu      sync.Mutex
	view    View
	gen     uint64
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
	timer   *time.Timer
	updates chan View
}

func NewSubscriber(store broadcast.Store, paths broadcast.Paths, opts ...Option) *Subscriber {
	s := &Subscriber{
		store:   store,
		paths:   paths,
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
		view:    View{State: StateIdle, Permissions: []string{}},
		updates: make(chan View, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetRole binds the subscriber to role. An empty role detaches it. Setting the
// role it already follows is a no-op unless the subscription is in Error, in
// which case it is re-attached.
func (s *Subscriber) SetRole(ctx context.Context, role string) error {
	s.changeMu.Lock()
	defer s.changeMu.Unlock()

	name := broadcast.NormalizeKey(role)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSubscriberClosed
	}
	if name == s.view.Role && (name == "" || (s.view.State != StateIdle && s.view.State != StateError)) {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.teardown()

	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" {
		s.setView(View{State: StateIdle, Permissions: []string{}})
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	gen := s.gen
	s.cancel = cancel
	s.done = done
	s.timer = time.AfterFunc(s.timeout, func() { s.expire(gen) })
	s.setView(View{State: StateSubscribing, Role: name, Permissions: []string{}})

	go s.watch(runCtx, gen, name, done)
	return nil
}

// Current returns a copy of the latest view.
func (s *Subscriber) Current() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneView(s.view)
}

// Updates delivers views as they change. Only the most recent undelivered view
// is kept. The channel is closed by Close.
func (s *Subscriber) Updates() <-chan View {
	return s.updates
}

// Close releases the active listener. The view stops changing once Close
// returns.
func (s *Subscriber) Close() error {
	s.changeMu.Lock()
	defer s.changeMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.teardown()

	s.mu.Lock()
	s.setView(View{State: StateIdle, Permissions: []string{}})
	s.closed = true
	close(s.updates)
	s.mu.Unlock()
	return nil
}

// teardown invalidates the current generation and waits until its listener is
// released. Callers hold changeMu.
func (s *Subscriber) teardown() {
	s.mu.Lock()
	s.gen++
	cancel, done, timer := s.cancel, s.done, s.timer
	s.cancel, s.done, s.timer = nil, nil, nil
	s.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Subscriber) watch(ctx context.Context, gen uint64, role string, done chan struct{}) {
	defer close(done)

	path := s.paths.For(role)
	sub, err := s.store.Subscribe(ctx, path)
	if err != nil {
		if ctx.Err() == nil {
			s.fail(gen, err.Error())
		}
		return
	}
	defer sub.Close()

	if s.metrics != nil {
		s.metrics.SubscriptionsActive.Inc()
		defer s.metrics.SubscriptionsActive.Dec()
	}
	s.logger.Debug("permission listener attached", zap.String("role", role), zap.String("path", path))

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				if ctx.Err() == nil {
					s.fail(gen, ReasonClosed)
				}
				return
			}
			s.apply(gen, role, ev)
		}
	}
}

func (s *Subscriber) apply(gen uint64, role string, ev broadcast.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.closed {
		return
	}

	switch ev.Status {
	case broadcast.EventSnapshot:
		perms := slices.Clone(ev.Snapshot.Permissions)
		slices.Sort(perms)
		s.setView(View{
			State:       StateLive,
			Role:        role,
			Permissions: slices.Compact(perms),
			UpdatedAt:   ev.Snapshot.UpdatedAt,
		})
	case broadcast.EventNoData:
		s.setView(View{State: StateLive, Role: role, Permissions: []string{}, Reason: ReasonNoData})
	case broadcast.EventMissingKey:
		s.setView(View{State: StateLive, Role: role, Permissions: []string{}, Reason: ReasonMissingKey})
	default:
		reason := "broadcast error"
		if ev.Err != nil {
			reason = ev.Err.Error()
		}
		s.toError(role, reason, "event")
	}
}

// expire moves a subscription that never produced an event to Error.
func (s *Subscriber) expire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.closed || s.view.State != StateSubscribing {
		return
	}
	s.toError(s.view.Role, ReasonTimeout, "timeout")
}

func (s *Subscriber) fail(gen uint64, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.closed {
		return
	}
	s.toError(s.view.Role, reason, "subscribe")
}

// toError requires s.mu.
func (s *Subscriber) toError(role, reason, kind string) {
	if s.metrics != nil {
		s.metrics.SubscriptionErrors.WithLabelValues(kind).Inc()
	}
	s.logger.Warn("permission listener failed",
		zap.String("role", role),
		zap.String("reason", reason),
	)
	s.setView(View{State: StateError, Role: role, Permissions: []string{}, Reason: reason})
}

// setView requires s.mu.
func (s *Subscriber) setView(v View) {
	s.view = v
	select {
	case <-s.updates:
	default:
	}
	s.updates <- cloneView(v)
}

func cloneView(v View) View {
	v.Permissions = slices.Clone(v.Permissions)
	if v.Permissions == nil {
		v.Permissions = []string{}
	}
	return v
}

package broadcast

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store for single-instance development and
// tests. Fan-out never blocks the writer; a slow subscriber only misses
// intermediate values, never the latest one.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
	subs   map[string]map[*memorySubscription]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: map[string][]byte{},
		subs:   map[string]map[*memorySubscription]struct{}{},
	}
}

func (s *MemoryStore) Write(ctx context.Context, path string, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.values[path] = payload
	subs := make([]*memorySubscription, 0, len(s.subs[path]))
	for sub := range s.subs[path] {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.notify()
	}
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// SetRaw stores an arbitrary value at path, bypassing snapshot encoding.
func (s *MemoryStore) SetRaw(path string, raw []byte) {
	s.mu.Lock()
	s.values[path] = raw
	subs := make([]*memorySubscription, 0, len(s.subs[path]))
	for sub := range s.subs[path] {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.notify()
	}
}

func (s *MemoryStore) Read(ctx context.Context, path string) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	s.mu.RLock()
	raw, ok := s.values[path]
	s.mu.RUnlock()
	if !ok {
		return Event{Path: path, Status: EventNoData}, nil
	}
	return decodeSnapshot(path, raw), nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, path string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	sub := &memorySubscription{
		store:   s,
		path:    path,
		events:  make(chan Event, 1),
		changed: make(chan struct{}, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	s.mu.Lock()
	if _, ok := s.subs[path]; !ok {
		s.subs[path] = map[*memorySubscription]struct{}{}
	}
	s.subs[path][sub] = struct{}{}
	s.mu.Unlock()

	// The current value is always delivered first.
	sub.notify()
	go sub.run(runCtx)

	return sub, nil
}

// Subscribers reports how many listeners are attached to path.
func (s *MemoryStore) Subscribers(path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs[path])
}

func (s *MemoryStore) detach(sub *memorySubscription) {
	s.mu.Lock()
	if m, ok := s.subs[sub.path]; ok {
		delete(m, sub)
		if len(m) == 0 {
			delete(s.subs, sub.path)
		}
	}
	s.mu.Unlock()
}

type memorySubscription struct {
	store   *MemoryStore
	path    string
	events  chan Event
	changed chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

func (m *memorySubscription) Events() <-chan Event {
	return m.events
}

func (m *memorySubscription) Close() error {
	m.once.Do(func() {
		m.store.detach(m)
		m.cancel()
		<-m.done
	})
	return nil
}

func (m *memorySubscription) notify() {
	select {
	case m.changed <- struct{}{}:
	default:
		// A wake-up is already pending; it will read the latest value.
	}
}

func (m *memorySubscription) run(ctx context.Context) {
	defer close(m.done)
	defer close(m.events)
	defer m.store.detach(m)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.changed:
			ev, err := m.store.Read(ctx, m.path)
			if err != nil {
				return
			}
			select {
			case m.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Package realtime centralizes change subscriptions behind a
// reference-counted registry so only one live store subscription exists
// per path regardless of how many observers watch it.
package realtime

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/curlos/twitter-2.0-sub000/internal/metrics"
	"github.com/curlos/twitter-2.0-sub000/internal/store"
)

const observerBuffer = 16

type observer struct {
	ch chan store.Event
}

type entry struct {
	cancel    store.CancelFunc
	observers map[*observer]struct{}
}

// Manager fans one upstream subscription per path out to any number of
// observers. The last observer to release a path cancels the upstream
// subscription; re-observing afterwards re-subscribes.
type Manager struct {
	mu      sync.Mutex
	store   store.Store
	log     zerolog.Logger
	entries map[string]*entry
}

func NewManager(st store.Store, logger zerolog.Logger) *Manager {
	return &Manager{
		store:   st,
		log:     logger,
		entries: make(map[string]*entry),
	}
}

// Observe attaches to the change stream for path. It returns the update
// channel and a release function; callers must release when the watched
// identity changes or the observer is torn down. The channel is closed on
// release. Slow observers get best-effort delivery: updates that do not
// fit the buffer are dropped and counted, never block the fan-out.
func (m *Manager) Observe(ctx context.Context, path string) (<-chan store.Event, func(), error) {
	obs := &observer{ch: make(chan store.Event, observerBuffer)}

	m.mu.Lock()
	if e, ok := m.entries[path]; ok {
		e.observers[obs] = struct{}{}
		m.mu.Unlock()
		return obs.ch, m.releaseFunc(path, obs), nil
	}
	m.mu.Unlock()

	// First observer for this path: establish the upstream subscription
	// outside the lock, then settle the race against concurrent first
	// observers.
	cancel, err := m.store.Subscribe(ctx, path, func(ev store.Event) {
		m.broadcast(path, ev)
	})
	if err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	if e, ok := m.entries[path]; ok {
		// Lost the race; keep the winner's upstream subscription.
		e.observers[obs] = struct{}{}
		m.mu.Unlock()
		cancel()
		return obs.ch, m.releaseFunc(path, obs), nil
	}
	m.entries[path] = &entry{
		cancel:    cancel,
		observers: map[*observer]struct{}{obs: {}},
	}
	m.mu.Unlock()
	metrics.RealtimeSubscriptions.Inc()
	return obs.ch, m.releaseFunc(path, obs), nil
}

func (m *Manager) releaseFunc(path string, obs *observer) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			e, ok := m.entries[path]
			if !ok {
				m.mu.Unlock()
				return
			}
			delete(e.observers, obs)
			last := len(e.observers) == 0
			if last {
				delete(m.entries, path)
			}
			// Closed under the lock: broadcast sends hold the same lock,
			// so no send can hit a closed channel.
			close(obs.ch)
			m.mu.Unlock()

			if last {
				e.cancel()
				metrics.RealtimeSubscriptions.Dec()
				m.log.Debug().Str("path", path).Msg("released last observer, upstream subscription cancelled")
			}
		})
	}
}

// broadcast fans an event out under the registry lock. The sends are
// non-blocking, so the lock is never held on a full observer buffer.
func (m *Manager) broadcast(path string, ev store.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[path]
	if !ok {
		return
	}
	for o := range e.observers {
		select {
		case o.ch <- ev:
		default:
			metrics.RealtimeDropped.Inc()
		}
	}
}

// ActiveSubscriptions reports the number of live upstream subscriptions.
func (m *Manager) ActiveSubscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Observers reports the observer count on one path.
func (m *Manager) Observers(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[path]
	if !ok {
		return 0
	}
	return len(e.observers)
}

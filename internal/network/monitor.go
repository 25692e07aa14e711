package network

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"erp-offline-sync/internal/config"
	"erp-offline-sync/internal/logger"
)

// Monitor is the single source of truth for "can we reach the backend".
// Reachability is reported in by the platform bridge; the monitor performs
// no probing of its own. Transitions are debounced: a reported flip is
// published only after the link has been stable for the configured period,
// so flaky connectivity does not trigger sync storms.
type Monitor struct {
	mu       sync.Mutex
	online   bool // published, debounced state
	reported bool // last raw report from the platform
	debounce time.Duration
	timer    *time.Timer
	subs     map[int]chan bool
	nextID   int
	closed   bool
}

func NewMonitor(cfg config.NetworkConfig) *Monitor {
	return &Monitor{
		online:   cfg.InitialOnline,
		reported: cfg.InitialOnline,
		debounce: cfg.GetDebounce(),
		subs:     make(map[int]chan bool),
	}
}

// IsOnline returns the current debounced reachability state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Report feeds a raw link-state change from the platform. A change only
// becomes visible through IsOnline and subscribers once it has held for
// the debounce period; a flap back to the published state cancels it.
func (m *Monitor) Report(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.reported = online

	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if online == m.online {
		return
	}

	m.timer = time.AfterFunc(m.debounce, m.settle)
}

func (m *Monitor) settle() {
	m.mu.Lock()
	m.timer = nil
	if m.closed || m.reported == m.online {
		m.mu.Unlock()
		return
	}
	m.online = m.reported
	state := m.online

	// Deliver while holding the lock: Unsubscribe closes channels under
	// the same lock, so a send can never hit a just-closed channel.
	for _, ch := range m.subs {
		select {
		case ch <- state:
		default:
		}
	}
	m.mu.Unlock()

	logger.Log.Info("Network state changed", zap.Bool("online", state))
}

// Subscription delivers one bool per published transition on C.
type Subscription struct {
	C  <-chan bool
	id int
	m  *Monitor
}

func (s *Subscription) Unsubscribe() {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	if ch, ok := s.m.subs[s.id]; ok {
		delete(s.m.subs, s.id)
		close(ch)
	}
}

// Subscribe registers a transition listener. Callers must Unsubscribe
// when done.
func (m *Monitor) Subscribe() *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++

	ch := make(chan bool, 4)
	if m.closed {
		close(ch)
	} else {
		m.subs[id] = ch
	}

	return &Subscription{C: ch, id: id, m: m}
}

func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}

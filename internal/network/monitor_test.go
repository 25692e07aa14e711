package network

import (
	"testing"
	"time"

	"erp-offline-sync/internal/config"
)

func newTestMonitor(online bool) *Monitor {
	return NewMonitor(config.NetworkConfig{
		Debounce:      "20ms",
		InitialOnline: online,
	})
}

func TestDebouncedTransition(t *testing.T) {
	m := newTestMonitor(true)
	defer m.Close()

	sub := m.Subscribe()
	defer sub.Unsubscribe()

	m.Report(false)

	// The flip is not visible before the stable period has passed.
	if !m.IsOnline() {
		t.Error("transition published before debounce elapsed")
	}

	select {
	case online := <-sub.C:
		if online {
			t.Errorf("got transition to online=%v, want offline", online)
		}
	case <-time.After(time.Second):
		t.Fatal("no transition published after debounce")
	}

	if m.IsOnline() {
		t.Error("IsOnline still true after published offline transition")
	}
}

func TestFlapSuppressed(t *testing.T) {
	m := newTestMonitor(true)
	defer m.Close()

	sub := m.Subscribe()
	defer sub.Unsubscribe()

	// Offline blip shorter than the stable period.
	m.Report(false)
	time.Sleep(5 * time.Millisecond)
	m.Report(true)

	time.Sleep(60 * time.Millisecond)

	if !m.IsOnline() {
		t.Error("flap flipped the published state")
	}
	select {
	case online := <-sub.C:
		t.Errorf("flap published a transition (online=%v)", online)
	default:
	}
}

func TestRepeatedReportsCollapse(t *testing.T) {
	m := newTestMonitor(false)
	defer m.Close()

	sub := m.Subscribe()
	defer sub.Unsubscribe()

	m.Report(true)
	m.Report(true)
	m.Report(true)

	select {
	case online := <-sub.C:
		if !online {
			t.Errorf("got offline, want online")
		}
	case <-time.After(time.Second):
		t.Fatal("no transition published")
	}

	// Only one transition for the whole burst.
	select {
	case <-sub.C:
		t.Error("burst of identical reports published more than one transition")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	m := newTestMonitor(true)
	defer m.Close()

	sub := m.Subscribe()
	sub.Unsubscribe()

	if _, ok := <-sub.C; ok {
		t.Error("channel still open after Unsubscribe")
	}

	// Transitions after unsubscribe must not panic.
	m.Report(false)
	time.Sleep(40 * time.Millisecond)
}

// Rapid subscribe/unsubscribe churn while transitions settle must never
// send on a channel that Unsubscribe has already closed.
func TestSubscriberChurnDuringTransitions(t *testing.T) {
	m := NewMonitor(config.NetworkConfig{Debounce: "50us", InitialOnline: true})
	defer m.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			sub := m.Subscribe()
			select {
			case <-sub.C:
			default:
			}
			sub.Unsubscribe()
		}
	}()

	for i := 0; i < 500; i++ {
		m.Report(i%2 == 0)
		time.Sleep(50 * time.Microsecond)
	}
	<-done
}

func TestCloseStopsPublishing(t *testing.T) {
	m := newTestMonitor(true)

	sub := m.Subscribe()
	m.Close()

	if _, ok := <-sub.C; ok {
		t.Error("channel still open after Close")
	}

	// Reports after close are ignored.
	m.Report(false)
	if !m.IsOnline() {
		t.Error("state changed after Close")
	}
}

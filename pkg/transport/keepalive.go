package transport

import (
	"sync"
	"time"
)

// PingInterval is how often each side emits a one-way keepalive ping.
// A var, not a const, so tests can shrink it instead of sleeping 30s.
var PingInterval = 30 * time.Second

// InactivityTimeout is how long a side waits without receiving anything
// from its peer before forcibly aborting the connection. Guarantees
// bounded detection of a dead peer without requiring round-trips.
var InactivityTimeout = 2 * PingInterval

// setPingInterval and setInactivityTimeout exist only for tests, which
// need intervals measured in milliseconds rather than 30s/60s.
func setPingInterval(d time.Duration)      { PingInterval = d }
func setInactivityTimeout(d time.Duration) { InactivityTimeout = d }

// Pinger fires send on every tick of PingInterval until Stop is called.
type Pinger struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

// StartPinger starts a ticker that calls send every PingInterval.
func StartPinger(send func()) *Pinger {
	p := &Pinger{
		ticker: time.NewTicker(PingInterval),
		done:   make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-p.ticker.C:
				send()
			case <-p.done:
				return
			}
		}
	}()
	return p
}

// Stop halts the pinger. Safe to call more than once: a Session can be
// closed both by its own inactivity timeout firing and by its owner's
// explicit shutdown racing against it.
func (p *Pinger) Stop() {
	p.ticker.Stop()
	p.once.Do(func() { close(p.done) })
}

// InactivityMonitor calls onExpire if Reset isn't called again within
// InactivityTimeout. Receipt of any message from the peer should call
// Reset; receipt of nothing for 2*PingInterval means the peer is dead
// even though it should have pinged twice by then.
type InactivityMonitor struct {
	mu    sync.Mutex
	timer *time.Timer
}

// StartInactivityMonitor arms the timer immediately.
func StartInactivityMonitor(onExpire func()) *InactivityMonitor {
	return &InactivityMonitor{timer: time.AfterFunc(InactivityTimeout, onExpire)}
}

// Reset restarts the countdown, called whenever any message arrives from
// the peer (a ping included).
func (m *InactivityMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timer.Reset(InactivityTimeout)
}

// Stop disarms the monitor, called when the connection is torn down
// cleanly and no expiry callback should fire.
func (m *InactivityMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timer.Stop()
}

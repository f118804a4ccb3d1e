// Package ticker implements the periodic wall-clock pulse described in spec
// §4.3: while an interview is in progress, publish {:tick, {ts}} on
// interview:tick every period. Start/Stop are idempotent.
package ticker

import (
	"sync"
	"time"

	"github.com/bookinterview/coordinator/internal/bus"
)

// Ticker publishes a tick on the bus every period while running.
type Ticker struct {
	bus    *bus.Bus
	period time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a Ticker that will publish on bus.TopicTick every period once
// started. It does not start automatically.
func New(b *bus.Bus, period time.Duration) *Ticker {
	return &Ticker{bus: b, period: period}
}

// Start begins the tick loop if it is not already running. Safe to call
// multiple times; subsequent calls while running are no-ops.
func (t *Ticker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.stopCh = make(chan struct{})
	stopCh := t.stopCh

	t.wg.Add(1)
	go t.run(stopCh)
}

// Stop halts the tick loop if running and waits for the loop goroutine to
// exit. Safe to call multiple times or when not running.
func (t *Ticker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.stopCh)
	t.mu.Unlock()

	t.wg.Wait()
}

// Running reports whether the tick loop is currently active.
func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Ticker) run(stopCh chan struct{}) {
	defer t.wg.Done()

	clock := time.NewTicker(t.period)
	defer clock.Stop()

	for {
		select {
		case <-stopCh:
			return
		case now := <-clock.C:
			// The tick carries the firing wall-clock timestamp so agents
			// compute deltas from it directly; drift in the timer itself is
			// tolerated (spec §4.3, §5).
			t.bus.Publish(bus.TopicTick, bus.TickPayload{Timestamp: now})
		}
	}
}

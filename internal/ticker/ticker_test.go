package ticker

import (
	"sync"
	"testing"
	"time"

	"github.com/bookinterview/coordinator/internal/bus"
	"github.com/stretchr/testify/assert"
)

func TestTicker_PublishesTicksWhileRunning(t *testing.T) {
	b := bus.New()
	tk := New(b, 20*time.Millisecond)

	var mu sync.Mutex
	var ticks int
	b.Subscribe(bus.TopicTick, func(msg bus.Message) {
		mu.Lock()
		ticks++
		mu.Unlock()
	})

	tk.Start()
	defer tk.Stop()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ticks >= 2
	}, time.Second, 10*time.Millisecond)
}

func TestTicker_StartIsIdempotent(t *testing.T) {
	b := bus.New()
	tk := New(b, 50*time.Millisecond)

	tk.Start()
	tk.Start()
	assert.True(t, tk.Running())
	tk.Stop()
	assert.False(t, tk.Running())
}

func TestTicker_StopIsIdempotentAndSafeBeforeStart(t *testing.T) {
	b := bus.New()
	tk := New(b, 50*time.Millisecond)

	tk.Stop()
	assert.False(t, tk.Running())

	tk.Start()
	tk.Stop()
	tk.Stop()
	assert.False(t, tk.Running())
}

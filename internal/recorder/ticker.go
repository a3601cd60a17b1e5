package recorder

import (
	"sync"
	"time"
)

// TickInterval is the fixed cadence of the duration counter.
const TickInterval = time.Second

// durationTicker counts fixed-interval ticks while a recording is active.
// Stop is idempotent and blocks until the periodic goroutine has exited, so
// a stopped ticker can never fire into a session that has moved on.
type durationTicker struct {
	mu     sync.Mutex
	ticks  int
	onTick func(int)

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func startDurationTicker(interval time.Duration, onTick func(int)) *durationTicker {
	if interval <= 0 {
		interval = TickInterval
	}
	t := &durationTicker{
		onTick: onTick,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer close(t.doneCh)
		defer ticker.Stop()
		for {
			select {
			case <-t.stopCh:
				return
			case <-ticker.C:
				t.mu.Lock()
				t.ticks++
				n := t.ticks
				cb := t.onTick
				t.mu.Unlock()
				if cb != nil {
					cb(n)
				}
			}
		}
	}()
	return t
}

func (t *durationTicker) Ticks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ticks
}

// Stop cancels the ticker and returns the final tick count.
func (t *durationTicker) Stop() int {
	t.stopOnce.Do(func() { close(t.stopCh) })
	<-t.doneCh
	return t.Ticks()
}

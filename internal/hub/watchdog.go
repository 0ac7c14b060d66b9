package hub

import (
	"sync"
	"time"
)

// watchdog runs fire once if it is not re-armed or disarmed within timeout
type watchdog struct {
	timeout time.Duration
	fire    func()

	mu    sync.Mutex
	timer *time.Timer
}

func newWatchdog(timeout time.Duration, fire func()) *watchdog {
	return &watchdog{timeout: timeout, fire: fire}
}

func (w *watchdog) arm() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.timeout, w.fire)
}

func (w *watchdog) disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *watchdog) armed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.timer != nil
}

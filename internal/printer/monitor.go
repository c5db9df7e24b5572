package printer

import (
	"sync"
	"time"
)

// Monitor polls the driver's link state while connected so drops the driver
// never reports still end the connection
type Monitor struct {
	manager  *Manager
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewMonitor creates a link monitor that checks every interval
func NewMonitor(manager *Manager, interval time.Duration) *Monitor {
	return &Monitor{
		manager:  manager,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins checking. The check itself runs on the manager goroutine.
func (m *Monitor) Start() {
	go func() {
		defer close(m.done)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				if !m.manager.post(m.manager.checkLink) {
					return
				}
			}
		}
	}()
}

// Stop ends monitoring and waits for the loop to exit. Safe to call twice.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

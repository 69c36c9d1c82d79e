package authflow

import "sync"

// dispatcher funnels action completions into the machine's single consumer
// goroutine. It accepts events from any goroutine; ordering within one
// producer is preserved, and the single consumer guarantees no two
// transitions race on attempt state.
type dispatcher struct {
	events chan Event

	closeOnce sync.Once
	quit      chan struct{}
}

func newDispatcher(buffer int) *dispatcher {
	return &dispatcher{
		events: make(chan Event, buffer),
		quit:   make(chan struct{}),
	}
}

// send enqueues the event. Events offered after close are discarded; the
// machine is gone and nothing may consume them.
func (d *dispatcher) send(ev Event) {
	select {
	case <-d.quit:
	case d.events <- ev:
	}
}

func (d *dispatcher) close() {
	d.closeOnce.Do(func() { close(d.quit) })
}

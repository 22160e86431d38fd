// Package dispatch serializes user-facing callbacks onto a single
// goroutine, the way the mobile SDKs marshal them back onto the main
// thread. Host code can therefore update its own state from callbacks
// without further synchronization, and no callback ever runs on one of the
// SDK's network goroutines.
package dispatch

import "sync"

// Dispatcher runs callbacks one at a time in submission order. The queue is
// unbounded, so Do never blocks: a callback may safely call Do itself (an
// auth completion re-delivering its link does exactly that).
type Dispatcher struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	done   chan struct{}
	closed bool
}

func New() *Dispatcher {
	d := &Dispatcher{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) > 0 {
			fn := d.queue[0]
			d.queue = d.queue[1:]
			d.mu.Unlock()
			fn()
			d.mu.Lock()
		}
		closed := d.closed
		d.mu.Unlock()
		if closed {
			return
		}
		<-d.wake
	}
}

// Do enqueues fn. Calls after Close are dropped.
func (d *Dispatcher) Do(fn func()) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Close drains already-enqueued callbacks and stops the dispatcher. It must
// not be called from a callback.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	<-d.done
}

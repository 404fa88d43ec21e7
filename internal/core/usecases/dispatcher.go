package usecases

import (
	"context"
	"sync"
)

// Dispatcher runs posted funcs one at a time, in order, on a single goroutine.
// It is the only context from which sync results reach subscribers.
type Dispatcher struct {
	queue chan func()
	done  chan struct{}
	once  sync.Once
}

// NewDispatcher creates a dispatcher with the given queue depth.
func NewDispatcher(buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	return &Dispatcher{
		queue: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
}

// Run executes posted funcs until ctx is done. Funcs still queued at
// shutdown are dropped.
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.once.Do(func() { close(d.done) })
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-d.queue:
			fn()
		}
	}
}

// Post enqueues fn. It returns false once the dispatcher has stopped.
// Post blocks while the queue is full.
func (d *Dispatcher) Post(fn func()) bool {
	select {
	case <-d.done:
		return false
	default:
	}
	select {
	case d.queue <- fn:
		return true
	case <-d.done:
		return false
	}
}

// Done is closed once Run has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

package pipeline

import (
	"log"
	"time"
)

// ProgressFunc receives checkpoint updates during a discovery run.
// Delivery is best-effort: updates may be dropped under load, and a
// callback that panics or blocks never affects the run itself.
type ProgressFunc func(percent int, message string)

type progressUpdate struct {
	percent int
	message string
}

// notifier decouples progress reporting from the pipeline's hot path.
// Updates are handed to a buffered channel and delivered from a separate
// goroutine; the pipeline never waits on the callback.
type notifier struct {
	ch   chan progressUpdate
	done chan struct{}
}

func newNotifier(fn ProgressFunc) *notifier {
	n := &notifier{
		ch:   make(chan progressUpdate, 16),
		done: make(chan struct{}),
	}
	go n.run(fn)
	return n
}

func (n *notifier) run(fn ProgressFunc) {
	defer close(n.done)
	for u := range n.ch {
		if fn == nil {
			continue
		}
		deliver(fn, u)
	}
}

// deliver invokes the callback, swallowing any panic it raises.
func deliver(fn ProgressFunc, u progressUpdate) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Progress callback panicked at %d%%: %v", u.percent, r)
		}
	}()
	fn(u.percent, u.message)
}

// notify queues an update, dropping it if the buffer is full.
func (n *notifier) notify(percent int, message string) {
	select {
	case n.ch <- progressUpdate{percent: percent, message: message}:
	default:
	}
}

// close stops the notifier, giving queued updates a moment to drain.
func (n *notifier) close() {
	close(n.ch)
	select {
	case <-n.done:
	case <-time.After(time.Second):
	}
}

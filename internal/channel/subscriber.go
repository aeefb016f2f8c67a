// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package channel

import "sync"

// subscriberQueueCapacity bounds how many pending chunks a subscriber can
// fall behind by before fanOut starts dropping it (§4.12/§5: one slow or
// blocked client must not stall delivery to everyone else).
const subscriberQueueCapacity = 256

// subscriberQueue decouples fanOut from a Subscriber's own Write latency.
// fanOut only ever enqueues (non-blocking); a dedicated goroutine per
// subscriber drains the queue and performs the real, possibly-blocking
// Write.
type subscriberQueue struct {
	w  Subscriber
	ch chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newSubscriberQueue(w Subscriber) *subscriberQueue {
	return &subscriberQueue{
		w:    w,
		ch:   make(chan []byte, subscriberQueueCapacity),
		done: make(chan struct{}),
	}
}

// enqueue copies p and offers it to the queue, returning false without
// blocking if the queue is full (the subscriber is too far behind).
func (q *subscriberQueue) enqueue(p []byte) bool {
	buf := make([]byte, len(p))
	copy(buf, p)
	select {
	case q.ch <- buf:
		return true
	default:
		return false
	}
}

// close stops the drain goroutine. Safe to call more than once.
func (q *subscriberQueue) close() {
	q.closeOnce.Do(func() { close(q.done) })
}

// run drains the queue into w.Write until closed or a Write fails, calling
// onFail exactly once in the latter case so the caller can drop this
// subscriber. Must run in its own goroutine.
func (q *subscriberQueue) run(onFail func()) {
	for {
		select {
		case p := <-q.ch:
			if _, err := q.w.Write(p); err != nil {
				onFail()
				return
			}
		case <-q.done:
			return
		}
	}
}

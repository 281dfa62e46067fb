// SPDX-License-Identifier: MIT
// Copyright (c) 2026 DECAR Group

package modem

import (
	"sync"
	"time"
)

// correlator matches issued commands to their asynchronous responses by
// response key. A slot is armed before the command is sent; the reader
// loop delivers parsed frames into armed slots and signals waiters.
//
// Concurrent commands awaiting the same key share one slot and race; the
// wire format carries nothing to tell their responses apart, so the
// engine does not try to.
type correlator struct {
	mu    sync.Mutex
	slots map[string]*responseSlot
}

type responseSlot struct {
	done    chan struct{}
	payload []Value
	filled  bool
}

func newCorrelator() *correlator {
	return &correlator{slots: make(map[string]*responseSlot)}
}

// expect arms the slot for key, clearing any stale payload from a
// previous exchange.
func (c *correlator) expect(key string) {
	c.mu.Lock()
	c.slots[key] = &responseSlot{done: make(chan struct{})}
	c.mu.Unlock()
}

// deliver stores a parsed payload into an armed slot and wakes waiters.
// Payloads for keys nobody is awaiting are dropped here; the frame still
// reaches the event queue independently. Repeat deliveries before the
// waiter reads overwrite the payload (last writer wins).
func (c *correlator) deliver(key string, values []Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot, ok := c.slots[key]
	if !ok {
		return
	}
	slot.payload = values
	if !slot.filled {
		slot.filled = true
		close(slot.done)
	}
}

// await blocks until the slot for key fills or the timeout elapses. The
// boolean result distinguishes a payload from "no response"; a timeout is
// never an error. Once await returns false the slot is disarmed, so a
// late frame cannot retroactively complete the exchange.
func (c *correlator) await(key string, timeout time.Duration) ([]Value, bool) {
	c.mu.Lock()
	slot, ok := c.slots[key]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-slot.done:
		c.mu.Lock()
		payload := slot.payload
		if c.slots[key] == slot {
			delete(c.slots, key)
		}
		c.mu.Unlock()
		return payload, true
	case <-timer.C:
		c.mu.Lock()
		if c.slots[key] == slot {
			delete(c.slots, key)
		}
		// The frame may have landed between the timer firing and the
		// lock; honor it rather than discard a received payload.
		if slot.filled {
			payload := slot.payload
			c.mu.Unlock()
			return payload, true
		}
		c.mu.Unlock()
		return nil, false
	}
}

// take returns the payload if the slot for key has filled, disarming it.
// Used by the cooperative engine, which polls between bounded reads
// instead of blocking.
func (c *correlator) take(key string) ([]Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot, ok := c.slots[key]
	if !ok || !slot.filled {
		return nil, false
	}
	delete(c.slots, key)
	return slot.payload, true
}

// cancel disarms the slot for key without reading it.
func (c *correlator) cancel(key string) {
	c.mu.Lock()
	delete(c.slots, key)
	c.mu.Unlock()
}

// SPDX-License-Identifier: MIT
// Copyright (c) 2026 DECAR Group

package modem

import (
	"reflect"
	"sync"

	"github.com/rs/zerolog"
)

// Callback receives a decoded frame's field values plus the opaque
// argument supplied at registration.
type Callback func(values []Value, arg any)

type registration struct {
	fn  Callback
	arg any
	id  uintptr
}

// registry maps message keys to ordered callback lists. Insertion order
// is preserved and a callback may be registered more than once.
type registry struct {
	mu        sync.Mutex
	callbacks map[string][]registration
	log       zerolog.Logger
}

func newRegistry(log zerolog.Logger) *registry {
	return &registry{callbacks: make(map[string][]registration), log: log}
}

func (r *registry) register(key string, fn Callback, arg any) {
	r.mu.Lock()
	r.callbacks[key] = append(r.callbacks[key], registration{
		fn:  fn,
		arg: arg,
		id:  reflect.ValueOf(fn).Pointer(),
	})
	r.mu.Unlock()
}

// unregister removes the first registration for fn under key, matched by
// function identity. Absent registrations are a logged no-op.
func (r *registry) unregister(key string, fn Callback) {
	id := reflect.ValueOf(fn).Pointer()
	r.mu.Lock()
	defer r.mu.Unlock()
	regs := r.callbacks[key]
	for i, reg := range regs {
		if reg.id == id {
			r.callbacks[key] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
	r.log.Warn().Str("key", key).Msg("unregister: callback not registered")
}

// dispatch invokes every callback registered for the frame's key, in
// registration order, on the caller's goroutine. Frames with no
// registrations are dropped silently.
func (r *registry) dispatch(f Frame) {
	r.mu.Lock()
	regs := make([]registration, len(r.callbacks[f.Key]))
	copy(regs, r.callbacks[f.Key])
	r.mu.Unlock()

	for _, reg := range regs {
		reg.fn(f.Values, reg.arg)
	}
}

// eventQueue is the FIFO between the reader and the dispatcher. A plain
// slice guarded by a condition variable rather than a channel: the
// threaded dispatcher blocks on pop with no busy-waiting, the cooperative
// engine drains synchronously, and neither imposes a capacity.
type eventQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frames []Frame
	closed bool
}

func newEventQueue() *eventQueue {
	q := &eventQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *eventQueue) push(f Frame) {
	q.mu.Lock()
	if !q.closed {
		q.frames = append(q.frames, f)
	}
	q.mu.Unlock()
	q.cond.Signal()
}

// pop blocks until a frame is available or the queue is closed. The
// second result is false only on the close sentinel.
func (q *eventQueue) pop() (Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.frames) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.frames) == 0 {
		return Frame{}, false
	}
	f := q.frames[0]
	q.frames = q.frames[1:]
	return f, true
}

// tryPop returns the next frame without blocking.
func (q *eventQueue) tryPop() (Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.frames) == 0 {
		return Frame{}, false
	}
	f := q.frames[0]
	q.frames = q.frames[1:]
	return f, true
}

// close wakes all blocked consumers; pending frames are still drained
// before pop reports closure.
func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// SPDX-License-Identifier: MIT
// Copyright (c) 2026 DECAR Group

// Package modem implements the protocol engine for serial-attached
// ranging modules: a typed field codec, delimited frame packing, a
// stream scanner tolerant of partial and malformed frames, command and
// response correlation with timeout semantics, ordered spontaneous-event
// dispatch, and fragmentation/reassembly for payloads larger than one
// frame.
//
// The engine transports opaque typed fields; the command catalog and the
// ranging semantics live in the caller's schema tables (see package uwb).
package modem

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// idleReadBackoff is how long a cooperative wait sleeps after a read
// that returned no bytes.
const idleReadBackoff = time.Millisecond

// Config carries the construction-time configuration of an engine. The
// schema tables and delimiters are fixed for the engine's lifetime.
type Config struct {
	// CommandSchemas maps host-to-device keys to their field layouts.
	CommandSchemas map[string][]FieldType
	// ResponseSchemas maps device-to-host keys (solicited responses and
	// spontaneous events alike) to their field layouts.
	ResponseSchemas map[string][]FieldType

	Separator  byte          // default '|'
	Terminator byte          // default CR
	Timeout    time.Duration // default per-command response timeout, 1s

	// Cooperative selects the single-threaded scheduling model: no
	// background goroutines, callbacks run on the caller's stack during
	// SendAndWait or Pump. Default is the threaded model.
	Cooperative bool

	// MaxFrameLength bounds outgoing frames and sizes long-message
	// fragments. Defaults to 128; renegotiate via SetMaxFrameLength.
	MaxFrameLength int

	// FragmentCommand/FragmentResponse name the command round trip that
	// carries one outgoing long-message fragment; FragmentEvent names the
	// spontaneous key delivering incoming fragments. All optional — left
	// empty, Broadcast and long-message callbacks are unavailable.
	FragmentCommand  string
	FragmentResponse string
	FragmentEvent    string

	ReadBufferSize int // transport read chunk size, default 512
	MaxCarryBytes  int // scanner carry-buffer cap, default 4096

	Logger *zerolog.Logger // nil for silent
	Stats  *Stats          // nil to have the engine create its own
}

func (cfg Config) withDefaults() Config {
	if cfg.Separator == 0 {
		cfg.Separator = DefaultSeparator
	}
	if cfg.Terminator == 0 {
		cfg.Terminator = DefaultTerminator
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	if cfg.MaxFrameLength <= 0 {
		cfg.MaxFrameLength = 128
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = 512
	}
	if cfg.MaxCarryBytes <= 0 {
		cfg.MaxCarryBytes = 4096
	}
	return cfg
}

// Modem is one protocol engine bound to one transport. All state is
// in-memory and per connection; nothing persists.
type Modem struct {
	cfg        Config
	transport  Transport
	packer     *Packer
	scanner    *Scanner
	correlator *correlator
	registry   *registry
	queue      *eventQueue
	log        zerolog.Logger
	stats      *Stats

	writeMu     sync.Mutex
	maxFrameLen atomic.Int32
	readBuf     []byte // cooperative mode only; reader goroutine owns its own

	reassembly *Reassembly
	longMsgMu  sync.Mutex
	longMsgCbs []func(msg []byte, valid bool)

	closed         atomic.Bool
	readerDone     chan struct{}
	dispatcherDone chan struct{}
}

// New creates an engine over the transport and, in the threaded model,
// starts its reader and dispatcher tasks. The engine takes exclusive
// ownership of the transport; Close releases it.
func New(t Transport, cfg Config) (*Modem, error) {
	cfg = cfg.withDefaults()
	for key := range cfg.CommandSchemas {
		if len(key) != KeyLength {
			return nil, fmt.Errorf("modem: command key %q is not %d bytes", key, KeyLength)
		}
	}
	for key := range cfg.ResponseSchemas {
		if len(key) != KeyLength {
			return nil, fmt.Errorf("modem: response key %q is not %d bytes", key, KeyLength)
		}
	}

	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	stats := cfg.Stats
	if stats == nil {
		stats = NewStats()
	}

	packer := NewPacker(cfg.Separator, cfg.Terminator)
	m := &Modem{
		cfg:            cfg,
		transport:      t,
		packer:         packer,
		scanner:        NewScanner(packer, cfg.ResponseSchemas, cfg.MaxCarryBytes, log, stats),
		correlator:     newCorrelator(),
		registry:       newRegistry(log),
		queue:          newEventQueue(),
		log:            log,
		stats:          stats,
		reassembly:     NewReassembly(),
		readerDone:     make(chan struct{}),
		dispatcherDone: make(chan struct{}),
	}
	m.maxFrameLen.Store(int32(cfg.MaxFrameLength))

	if cfg.FragmentEvent != "" {
		m.registry.register(cfg.FragmentEvent, m.onFragment, nil)
	}

	if cfg.Cooperative {
		m.readBuf = make([]byte, cfg.ReadBufferSize)
		close(m.readerDone)
		close(m.dispatcherDone)
	} else {
		go m.readLoop()
		go m.dispatchLoop()
	}
	return m, nil
}

// Close stops the engine and closes the transport. In the threaded model
// both background tasks are joined before Close returns.
func (m *Modem) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	err := m.transport.Close()
	if !m.cfg.Cooperative {
		<-m.readerDone
		m.queue.close()
		<-m.dispatcherDone
	}
	return err
}

// Stats returns the engine's counters.
func (m *Modem) Stats() *Stats { return m.stats }

// MaxFrameLength returns the current negotiated maximum frame length.
func (m *Modem) MaxFrameLength() int { return int(m.maxFrameLen.Load()) }

// SetMaxFrameLength updates the maximum frame length, typically after
// querying the device for its limit.
func (m *Modem) SetMaxFrameLength(n int) {
	if n > 0 {
		m.maxFrameLen.Store(int32(n))
	}
}

// readLoop is the threaded model's reader task: bounded transport reads
// feed the scanner, and every parsed frame is correlated and enqueued.
func (m *Modem) readLoop() {
	defer close(m.readerDone)
	buf := make([]byte, m.cfg.ReadBufferSize)
	for !m.closed.Load() {
		n, err := m.transport.Read(buf)
		if err != nil {
			if m.closed.Load() {
				return
			}
			m.log.Debug().Err(err).Msg("transport read error")
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if n > 0 {
			m.ingest(buf[:n])
		}
	}
}

// dispatchLoop is the threaded model's dispatcher task: it blocks on the
// event queue and runs callbacks serially, in arrival order.
func (m *Modem) dispatchLoop() {
	defer close(m.dispatcherDone)
	for {
		f, ok := m.queue.pop()
		if !ok {
			return
		}
		m.registry.dispatch(f)
	}
}

// ingest routes freshly parsed frames: each updates the pending-response
// table and is enqueued for dispatch, regardless of whether a command was
// waiting on it.
func (m *Modem) ingest(chunk []byte) {
	for _, f := range m.scanner.Push(chunk) {
		m.correlator.deliver(f.Key, f.Values)
		m.queue.push(f)
	}
}

// Send encodes and writes one command frame without awaiting a response.
func (m *Modem) Send(cmdKey string, fields ...Value) error {
	if m.closed.Load() {
		return ErrClosed
	}
	schema, ok := m.cfg.CommandSchemas[cmdKey]
	if !ok {
		return fmt.Errorf("modem: unknown command key %q", cmdKey)
	}
	body, err := m.packer.Pack(fields, schema)
	if err != nil {
		return fmt.Errorf("modem: %s: %w", cmdKey, err)
	}
	frame := make([]byte, 0, KeyLength+len(body))
	frame = append(frame, cmdKey...)
	frame = append(frame, body...)

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if _, err := m.transport.Write(frame); err != nil {
		return fmt.Errorf("modem: write %s: %w", cmdKey, err)
	}
	return nil
}

// SendAndWait sends a command and blocks until the response key's frame
// arrives or the configured timeout elapses. A timeout is an expected
// outcome, reported as ok=false, never as an error; errors are reserved
// for programmer mistakes and transport failures.
func (m *Modem) SendAndWait(cmdKey, respKey string, fields ...Value) ([]Value, bool, error) {
	if _, ok := m.cfg.ResponseSchemas[respKey]; !ok {
		return nil, false, fmt.Errorf("modem: unknown response key %q", respKey)
	}
	m.correlator.expect(respKey)
	if err := m.Send(cmdKey, fields...); err != nil {
		m.correlator.cancel(respKey)
		return nil, false, err
	}

	if m.cfg.Cooperative {
		return m.cooperativeAwait(respKey, m.cfg.Timeout)
	}
	payload, ok := m.correlator.await(respKey, m.cfg.Timeout)
	if !ok {
		m.stats.timeout()
	}
	return payload, ok, nil
}

// cooperativeAwait performs bounded read-parse cycles on the caller's
// stack until the response slot fills or the deadline passes, then
// dispatches every queued frame before returning. An idle read backs off
// briefly so a transport whose Read returns immediately does not turn
// the wait into a hot spin.
func (m *Modem) cooperativeAwait(respKey string, timeout time.Duration) ([]Value, bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		n := m.readOnce()
		if payload, ok := m.correlator.take(respKey); ok {
			m.drainEvents()
			return payload, true, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			m.correlator.cancel(respKey)
			m.stats.timeout()
			m.drainEvents()
			return nil, false, nil
		}
		if n == 0 {
			time.Sleep(min(idleReadBackoff, remaining))
		}
	}
}

// Pump performs one read-parse-dispatch cycle in the cooperative model:
// read what the transport has, parse it, then run callbacks for every
// newly queued frame before returning.
func (m *Modem) Pump() error {
	if !m.cfg.Cooperative {
		return fmt.Errorf("modem: Pump is only available in cooperative mode")
	}
	if m.closed.Load() {
		return ErrClosed
	}
	m.readOnce()
	m.drainEvents()
	return nil
}

func (m *Modem) readOnce() int {
	n, err := m.transport.Read(m.readBuf)
	if err != nil {
		if !m.closed.Load() {
			m.log.Debug().Err(err).Msg("transport read error")
		}
		return 0
	}
	if n > 0 {
		m.ingest(m.readBuf[:n])
	}
	return n
}

func (m *Modem) drainEvents() {
	for {
		f, ok := m.queue.tryPop()
		if !ok {
			return
		}
		m.registry.dispatch(f)
	}
}

// Register appends a callback for a message key. Duplicate registrations
// are allowed and fire once each, in registration order.
func (m *Modem) Register(key string, fn Callback, arg any) {
	m.registry.register(key, fn, arg)
}

// Unregister removes the first registration of fn under key, matched by
// function identity.
func (m *Modem) Unregister(key string, fn Callback) {
	m.registry.unregister(key, fn)
}

// Broadcast splits the payload into countdown-prefixed fragments and
// sends each as one fragment-command round trip, oldest first. It
// succeeds only if every fragment is acknowledged; an unacknowledged
// fragment reports ok=false, mirroring SendAndWait.
func (m *Modem) Broadcast(payload []byte) (bool, error) {
	if m.cfg.FragmentCommand == "" || m.cfg.FragmentResponse == "" {
		return false, fmt.Errorf("modem: no fragment command configured")
	}
	chunks, err := SplitPayload(payload, m.MaxFrameLength())
	if err != nil {
		return false, err
	}
	for i, chunk := range chunks {
		_, ok, err := m.SendAndWait(m.cfg.FragmentCommand, m.cfg.FragmentResponse, Bytes(chunk))
		if err != nil {
			return false, fmt.Errorf("modem: fragment %d/%d: %w", i+1, len(chunks), err)
		}
		if !ok {
			m.log.Debug().Int("fragment", i+1).Int("total", len(chunks)).
				Msg("fragment unacknowledged, aborting broadcast")
			return false, nil
		}
	}
	return true, nil
}

// RegisterLongMessageCallback wires fn to the incoming fragment stream:
// it fires once per reassembled long message, with the validity flag
// false when a countdown gap was observed along the way.
func (m *Modem) RegisterLongMessageCallback(fn func(msg []byte, valid bool)) error {
	if m.cfg.FragmentEvent == "" {
		return fmt.Errorf("modem: no fragment event configured")
	}
	m.longMsgMu.Lock()
	m.longMsgCbs = append(m.longMsgCbs, fn)
	m.longMsgMu.Unlock()
	return nil
}

// onFragment is the engine's own callback on the fragment event key. It
// runs on the dispatcher (or the cooperative caller's stack), so the
// reassembly session needs no extra locking.
func (m *Modem) onFragment(values []Value, _ any) {
	if len(values) == 0 {
		return
	}
	frag, err := values[0].Bytes()
	if err != nil {
		m.log.Debug().Err(err).Msg("fragment event without bytes field")
		return
	}
	msg, valid, gap, done := m.reassembly.Absorb(frag)
	m.stats.fragment(gap)
	if !done {
		return
	}

	m.longMsgMu.Lock()
	cbs := make([]func([]byte, bool), len(m.longMsgCbs))
	copy(cbs, m.longMsgCbs)
	m.longMsgMu.Unlock()
	for _, cb := range cbs {
		cb(msg, valid)
	}
}

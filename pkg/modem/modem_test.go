// SPDX-License-Identifier: MIT
// Copyright (c) 2026 DECAR Group

package modem

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// scriptedTransport is an in-memory Transport: tests feed it incoming
// bytes and may auto-respond to writes. Read honors the contract of a
// short-timeout serial read, returning (0, nil) when idle.
type scriptedTransport struct {
	mu       sync.Mutex
	incoming []byte
	frames   [][]byte // every frame written by the engine
	closed   bool

	// onWrite, when set, is invoked with each written frame after the
	// write is recorded. It may call feed.
	onWrite func(frame []byte)
}

func (s *scriptedTransport) Read(p []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, io.EOF
	}
	if len(s.incoming) == 0 {
		s.mu.Unlock()
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	n := copy(p, s.incoming)
	s.incoming = s.incoming[n:]
	s.mu.Unlock()
	return n, nil
}

func (s *scriptedTransport) Write(p []byte) (int, error) {
	frame := make([]byte, len(p))
	copy(frame, p)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	s.frames = append(s.frames, frame)
	cb := s.onWrite
	s.mu.Unlock()
	if cb != nil {
		cb(frame)
	}
	return len(p), nil
}

func (s *scriptedTransport) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *scriptedTransport) feed(b []byte) {
	s.mu.Lock()
	s.incoming = append(s.incoming, b...)
	s.mu.Unlock()
}

func (s *scriptedTransport) written() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.frames))
	copy(out, s.frames)
	return out
}

func testConfig() Config {
	return Config{
		CommandSchemas: map[string][]FieldType{
			"C01": {},
			"C05": {FieldInt, FieldBool},
			"C06": {FieldBytes},
		},
		ResponseSchemas: map[string][]FieldType{
			"R01": {FieldInt},
			"R05": {FieldInt, FieldFloat},
			"R06": {FieldBool},
			"S01": {FieldInt},
			"S04": {FieldBytes},
		},
		Timeout:          200 * time.Millisecond,
		MaxFrameLength:   100,
		FragmentCommand:  "C06",
		FragmentResponse: "R06",
		FragmentEvent:    "S04",
	}
}

// respondTo wires an auto-responder: every write whose key matches cmd
// feeds the given raw response bytes back.
func respondTo(tr *scriptedTransport, cmd string, response []byte) {
	tr.onWrite = func(frame []byte) {
		if len(frame) >= KeyLength && string(frame[:KeyLength]) == cmd {
			tr.feed(response)
		}
	}
}

func TestModemSendAndWait(t *testing.T) {
	tr := &scriptedTransport{}
	respondTo(tr, "C01", []byte("R01|7\r"))

	m, err := New(tr, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	values, ok, err := m.SendAndWait("C01", "R01")
	if err != nil {
		t.Fatalf("SendAndWait: %v", err)
	}
	if !ok {
		t.Fatal("SendAndWait timed out despite scripted response")
	}
	if n, _ := values[0].Int(); n != 7 {
		t.Errorf("response = %v, want 7", values[0])
	}

	frames := tr.written()
	if len(frames) != 1 || !bytes.Equal(frames[0], []byte("C01\r")) {
		t.Errorf("wrote %q, want C01<CR>", frames)
	}
}

func TestModemSendAndWaitTimeout(t *testing.T) {
	tr := &scriptedTransport{}
	cfg := testConfig()
	cfg.Timeout = 50 * time.Millisecond

	m, err := New(tr, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	start := time.Now()
	values, ok, err := m.SendAndWait("C01", "R01")
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("timeout must not be an error, got %v", err)
	}
	if ok || values != nil {
		t.Fatal("SendAndWait reported a response with none scripted")
	}
	if elapsed < 50*time.Millisecond || elapsed > 500*time.Millisecond {
		t.Errorf("timed out after %v, want roughly the 50ms timeout", elapsed)
	}
	if snap := m.Stats().Snapshot(); snap.Timeouts != 1 {
		t.Errorf("timeouts = %d, want 1", snap.Timeouts)
	}
}

func TestModemSendErrors(t *testing.T) {
	tr := &scriptedTransport{}
	m, err := New(tr, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := m.Send("XXX"); err == nil {
		t.Error("Send accepted an unknown command key")
	}
	if _, _, err := m.SendAndWait("C01", "XXX"); err == nil {
		t.Error("SendAndWait accepted an unknown response key")
	}
	if err := m.Send("C05", Int(1), Int(2)); err == nil {
		t.Error("Send accepted a value/schema type mismatch")
	}

	m.Close()
	if err := m.Send("C01"); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
}

func TestModemBadKeyLength(t *testing.T) {
	cfg := testConfig()
	cfg.CommandSchemas["TOOLONG"] = nil
	if _, err := New(&scriptedTransport{}, cfg); err == nil {
		t.Fatal("New accepted a key that is not 3 bytes")
	}
}

// Spontaneous frames reach callbacks in arrival order, and callbacks on
// one key fire in registration order.
func TestModemEventDispatchOrder(t *testing.T) {
	tr := &scriptedTransport{}
	m, err := New(tr, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	got := make(chan string, 8)
	m.Register("S01", func(values []Value, arg any) {
		got <- arg.(string) + values[0].String()
	}, "a")
	m.Register("S01", func(values []Value, _ any) {
		got <- "b" + values[0].String()
	}, nil)

	tr.feed([]byte("S01|1\rS01|2\r"))

	want := []string{"a1", "b1", "a2", "b2"}
	for _, w := range want {
		select {
		case g := <-got:
			if g != w {
				t.Fatalf("callback fired %q, want %q", g, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("callback %q never fired", w)
		}
	}
}

func TestModemUnregister(t *testing.T) {
	tr := &scriptedTransport{}
	m, err := New(tr, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	got := make(chan string, 8)
	removed := func(_ []Value, _ any) { got <- "removed" }
	kept := func(_ []Value, _ any) { got <- "kept" }
	m.Register("S01", removed, nil)
	m.Register("S01", kept, nil)
	m.Unregister("S01", removed)

	tr.feed([]byte("S01|1\r"))

	select {
	case g := <-got:
		if g != "kept" {
			t.Fatalf("removed callback still fired")
		}
	case <-time.After(time.Second):
		t.Fatal("surviving callback never fired")
	}
}

// A response frame also reaches registered callbacks: correlation and
// dispatch are independent consumers of the same stream.
func TestModemResponseAlsoDispatched(t *testing.T) {
	tr := &scriptedTransport{}
	respondTo(tr, "C01", []byte("R01|5\r"))

	m, err := New(tr, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	got := make(chan int64, 1)
	m.Register("R01", func(values []Value, _ any) {
		n, _ := values[0].Int()
		got <- n
	}, nil)

	if _, ok, err := m.SendAndWait("C01", "R01"); err != nil || !ok {
		t.Fatalf("SendAndWait: ok=%v err=%v", ok, err)
	}
	select {
	case n := <-got:
		if n != 5 {
			t.Errorf("callback value = %d, want 5", n)
		}
	case <-time.After(time.Second):
		t.Fatal("response frame never reached the callback")
	}
}

func TestModemBroadcast(t *testing.T) {
	tr := &scriptedTransport{}
	respondTo(tr, "C06", []byte("R06|1\r"))

	m, err := New(tr, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	payload := bytes.Repeat([]byte{0xAB}, 250)
	ok, err := m.Broadcast(payload)
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if !ok {
		t.Fatal("Broadcast not acknowledged")
	}

	// 100-byte frames carry 80 payload bytes each: 4 fragments with
	// countdowns 3,2,1,0. Frame layout: key sep len16 countdown payload term.
	frames := tr.written()
	if len(frames) != 4 {
		t.Fatalf("wrote %d fragments, want 4", len(frames))
	}
	for i, f := range frames {
		if string(f[:3]) != "C06" {
			t.Fatalf("fragment %d key = %q", i, f[:3])
		}
		if countdown := int(f[6]); countdown != 3-i {
			t.Errorf("fragment %d countdown = %d, want %d", i, countdown, 3-i)
		}
	}
}

func TestModemBroadcastUnacknowledged(t *testing.T) {
	tr := &scriptedTransport{}
	cfg := testConfig()
	cfg.Timeout = 30 * time.Millisecond

	m, err := New(tr, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	ok, err := m.Broadcast([]byte("abc"))
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if ok {
		t.Fatal("Broadcast reported ok with no acknowledgements")
	}
}

func TestModemLongMessageReassembly(t *testing.T) {
	tr := &scriptedTransport{}
	m, err := New(tr, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	type result struct {
		msg   []byte
		valid bool
	}
	got := make(chan result, 1)
	if err := m.RegisterLongMessageCallback(func(msg []byte, valid bool) {
		got <- result{msg, valid}
	}); err != nil {
		t.Fatalf("RegisterLongMessageCallback: %v", err)
	}

	payload := bytes.Repeat([]byte{0x5A}, 200)
	chunks, err := SplitPayload(payload, 100)
	if err != nil {
		t.Fatalf("SplitPayload: %v", err)
	}
	p := NewPacker(DefaultSeparator, DefaultTerminator)
	for _, chunk := range chunks {
		body, err := p.Pack([]Value{Bytes(chunk)}, []FieldType{FieldBytes})
		if err != nil {
			t.Fatalf("pack fragment: %v", err)
		}
		tr.feed(append([]byte("S04"), body...))
	}

	select {
	case r := <-got:
		if !r.valid {
			t.Error("complete fragment stream reported invalid")
		}
		if !bytes.Equal(r.msg, payload) {
			t.Errorf("reassembled %d bytes, want %d", len(r.msg), len(payload))
		}
	case <-time.After(time.Second):
		t.Fatal("long-message callback never fired")
	}
}

// Each dropped fragment in a session counts as its own gap.
func TestModemFragmentGapStats(t *testing.T) {
	tr := &scriptedTransport{}
	m, err := New(tr, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	got := make(chan bool, 1)
	if err := m.RegisterLongMessageCallback(func(_ []byte, valid bool) {
		got <- valid
	}); err != nil {
		t.Fatalf("RegisterLongMessageCallback: %v", err)
	}

	// Countdowns 5, 3, 1, 0: two distinct drops.
	p := NewPacker(DefaultSeparator, DefaultTerminator)
	for _, frag := range [][]byte{{5, 'a'}, {3, 'b'}, {1, 'c'}, {0, 'd'}} {
		body, err := p.Pack([]Value{Bytes(frag)}, []FieldType{FieldBytes})
		if err != nil {
			t.Fatalf("pack fragment: %v", err)
		}
		tr.feed(append([]byte("S04"), body...))
	}

	select {
	case valid := <-got:
		if valid {
			t.Error("gapped stream reported valid")
		}
	case <-time.After(time.Second):
		t.Fatal("long-message callback never fired")
	}
	snap := m.Stats().Snapshot()
	if snap.Fragments != 4 {
		t.Errorf("fragments = %d, want 4", snap.Fragments)
	}
	if snap.FragmentGaps != 2 {
		t.Errorf("fragment gaps = %d, want 2", snap.FragmentGaps)
	}
}

// instantIdleTransport returns (0, nil) immediately when idle, the
// loosest behavior the Transport contract allows.
type instantIdleTransport struct {
	scriptedTransport
	reads int32
}

func (s *instantIdleTransport) Read(p []byte) (int, error) {
	atomic.AddInt32(&s.reads, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, io.EOF
	}
	if len(s.incoming) == 0 {
		s.mu.Unlock()
		return 0, nil
	}
	n := copy(p, s.incoming)
	s.incoming = s.incoming[n:]
	s.mu.Unlock()
	return n, nil
}

// A cooperative wait on an instantly-returning transport must back off
// between idle reads rather than spin.
func TestModemCooperativeIdleBackoff(t *testing.T) {
	tr := &instantIdleTransport{}
	cfg := testConfig()
	cfg.Cooperative = true
	cfg.Timeout = 50 * time.Millisecond

	m, err := New(tr, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	start := time.Now()
	_, ok, err := m.SendAndWait("C01", "R01")
	elapsed := time.Since(start)
	if err != nil || ok {
		t.Fatalf("SendAndWait: ok=%v err=%v", ok, err)
	}
	if elapsed < 50*time.Millisecond {
		t.Errorf("returned after %v, before the timeout", elapsed)
	}

	// ~50 one-millisecond backoffs fit in the window; a busy-wait would
	// rack up orders of magnitude more reads.
	if reads := atomic.LoadInt32(&tr.reads); reads > 500 {
		t.Errorf("%d reads during a 50ms wait, cooperative loop is spinning", reads)
	}
}

func TestModemCooperativeSendAndWait(t *testing.T) {
	tr := &scriptedTransport{}
	respondTo(tr, "C01", []byte("R01|11\r"))

	cfg := testConfig()
	cfg.Cooperative = true
	m, err := New(tr, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	values, ok, err := m.SendAndWait("C01", "R01")
	if err != nil || !ok {
		t.Fatalf("SendAndWait: ok=%v err=%v", ok, err)
	}
	if n, _ := values[0].Int(); n != 11 {
		t.Errorf("response = %v, want 11", values[0])
	}
}

// In the cooperative model callbacks run on the caller's stack during
// Pump, never on a background task.
func TestModemCooperativePump(t *testing.T) {
	tr := &scriptedTransport{}
	cfg := testConfig()
	cfg.Cooperative = true
	m, err := New(tr, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	var fired []int64
	m.Register("S01", func(values []Value, _ any) {
		n, _ := values[0].Int()
		fired = append(fired, n)
	}, nil)

	tr.feed([]byte("S01|4\rS01|5\r"))

	if err := m.Pump(); err != nil {
		t.Fatalf("Pump: %v", err)
	}
	if len(fired) != 2 || fired[0] != 4 || fired[1] != 5 {
		t.Errorf("fired = %v, want [4 5] synchronously", fired)
	}
}

func TestModemPumpThreadedRejected(t *testing.T) {
	m, err := New(&scriptedTransport{}, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()
	if err := m.Pump(); err == nil {
		t.Error("Pump accepted in threaded mode")
	}
}

func TestModemCloseIdempotent(t *testing.T) {
	m, err := New(&scriptedTransport{}, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestModemSetMaxFrameLength(t *testing.T) {
	m, err := New(&scriptedTransport{}, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	if m.MaxFrameLength() != 100 {
		t.Errorf("initial max frame length = %d, want 100", m.MaxFrameLength())
	}
	m.SetMaxFrameLength(64)
	if m.MaxFrameLength() != 64 {
		t.Errorf("updated max frame length = %d, want 64", m.MaxFrameLength())
	}
	m.SetMaxFrameLength(0) // ignored
	if m.MaxFrameLength() != 64 {
		t.Error("zero length accepted")
	}
}

package vport

import (
	"bytes"
	"errors"
	"io"
	"net/netip"
	"sync"
	"testing"
	"time"
)

// fakeTAP is an in-memory local interface: Read hands out frames
// injected via inject, Write collects frames on the written channel.
type fakeTAP struct {
	inject  chan []byte
	written chan []byte

	once   sync.Once
	closed chan struct{}
}

func newFakeTAP() *fakeTAP {
	return &fakeTAP{
		inject:  make(chan []byte, 16),
		written: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (f *fakeTAP) Read(p []byte) (int, error) {
	select {
	case frame := <-f.inject:
		return copy(p, frame), nil
	case <-f.closed:
		return 0, io.EOF
	}
}

func (f *fakeTAP) Write(p []byte) (int, error) {
	select {
	case <-f.closed:
		return 0, errors.New("tap closed")
	default:
	}
	data := make([]byte, len(p))
	copy(data, p)
	f.written <- data
	return len(p), nil
}

func (f *fakeTAP) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

type datagram struct {
	data []byte
	from netip.AddrPort
}

// fakeConn implements transport.FrameConn with channel-fed receives
// and recorded sends.
type fakeConn struct {
	incoming chan datagram

	mu   sync.Mutex
	sent map[netip.AddrPort][][]byte

	once   sync.Once
	closed chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan datagram, 16),
		sent:     make(map[netip.AddrPort][][]byte),
		closed:   make(chan struct{}),
	}
}

func (f *fakeConn) Receive(buf []byte) (int, netip.AddrPort, error) {
	select {
	case d := <-f.incoming:
		return copy(buf, d.data), d.from, nil
	case <-f.closed:
		return 0, netip.AddrPort{}, errors.New("use of closed connection")
	}
}

func (f *fakeConn) Send(frame []byte, to netip.AddrPort) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data := make([]byte, len(frame))
	copy(data, frame)
	f.sent[to] = append(f.sent[to], data)
	return nil
}

func (f *fakeConn) LocalAddrPort() netip.AddrPort {
	return netip.MustParseAddrPort("127.0.0.1:40000")
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) sentTo(addr netip.AddrPort) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[addr]
}

var switchAddr = netip.MustParseAddrPort("127.0.0.1:9999")

func validFrame(payload ...byte) []byte {
	frame := []byte{
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0x52, 0x54, 0x00, 0x12, 0x34, 0x56,
		0x08, 0x00,
	}
	return append(frame, payload...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestUplinkSendsToSwitchAddress(t *testing.T) {
	tap := newFakeTAP()
	conn := newFakeConn()
	bridge := NewBridge(tap, conn, switchAddr)

	go func() { _ = bridge.Run() }()
	defer tap.Close()
	defer conn.Close()

	frame := validFrame(0x01, 0x02, 0x03)
	tap.inject <- frame

	waitFor(t, "uplink send", func() bool {
		return len(conn.sentTo(switchAddr)) == 1
	})

	if got := conn.sentTo(switchAddr)[0]; !bytes.Equal(got, frame) {
		t.Errorf("Expected byte-identical uplink frame, got %v", got)
	}
}

func TestUplinkDropsUndersizedFrames(t *testing.T) {
	tap := newFakeTAP()
	conn := newFakeConn()
	bridge := NewBridge(tap, conn, switchAddr)

	go func() { _ = bridge.Run() }()
	defer tap.Close()
	defer conn.Close()

	tap.inject <- []byte{0x01, 0x02, 0x03}
	full := validFrame()
	tap.inject <- full

	waitFor(t, "uplink send", func() bool {
		return len(conn.sentTo(switchAddr)) >= 1
	})

	sent := conn.sentTo(switchAddr)
	if len(sent) != 1 {
		t.Fatalf("Expected only the valid frame to be sent, got %d frames", len(sent))
	}
	if !bytes.Equal(sent[0], full) {
		t.Errorf("Expected the valid frame to be sent verbatim")
	}
}

func TestDownlinkWritesToTAP(t *testing.T) {
	tap := newFakeTAP()
	conn := newFakeConn()
	bridge := NewBridge(tap, conn, switchAddr)

	go func() { _ = bridge.Run() }()
	defer tap.Close()
	defer conn.Close()

	frame := validFrame(0xca, 0xfe)
	conn.incoming <- datagram{data: frame, from: switchAddr}

	select {
	case got := <-tap.written:
		if !bytes.Equal(got, frame) {
			t.Errorf("Expected byte-identical downlink frame, got %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for downlink write")
	}
}

func TestDownlinkDropsUndersizedFrames(t *testing.T) {
	tap := newFakeTAP()
	conn := newFakeConn()
	bridge := NewBridge(tap, conn, switchAddr)

	go func() { _ = bridge.Run() }()
	defer tap.Close()
	defer conn.Close()

	conn.incoming <- datagram{data: []byte{0x01, 0x02}, from: switchAddr}
	full := validFrame(0x01)
	conn.incoming <- datagram{data: full, from: switchAddr}

	select {
	case got := <-tap.written:
		if !bytes.Equal(got, full) {
			t.Errorf("Expected the undersized frame to be dropped, got %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for downlink write")
	}
}

func TestTapReadFailureStopsBridge(t *testing.T) {
	tap := newFakeTAP()
	conn := newFakeConn()
	bridge := NewBridge(tap, conn, switchAddr)

	done := make(chan error, 1)
	go func() { done <- bridge.Run() }()

	tap.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Errorf("Expected Run to return an error after tap failure")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after tap failure")
	}
	conn.Close()
}

func TestTransportReceiveFailureStopsBridge(t *testing.T) {
	tap := newFakeTAP()
	conn := newFakeConn()
	bridge := NewBridge(tap, conn, switchAddr)

	done := make(chan error, 1)
	go func() { done <- bridge.Run() }()

	conn.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Errorf("Expected Run to return an error after transport failure")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after transport failure")
	}
	tap.Close()
}

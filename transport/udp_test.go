package transport

import (
	"bytes"
	"net/netip"
	"testing"
	"time"

	"udp-vswitch/ethernet"
)

func TestUDPRoundTrip(t *testing.T) {
	server, err := Listen(0)
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer server.Close()

	client, err := Open()
	if err != nil {
		t.Fatalf("Failed to open client socket: %v", err)
	}
	defer client.Close()

	frame := []byte{
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0x52, 0x54, 0x00, 0x12, 0x34, 0x56,
		0x08, 0x06,
		0x00, 0x01, 0x08, 0x00,
	}

	serverAddr := netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), server.LocalAddrPort().Port())
	if err := client.Send(frame, serverAddr); err != nil {
		t.Fatalf("Failed to send frame: %v", err)
	}

	buf := make([]byte, ethernet.MaxFrameSize)
	done := make(chan struct{})
	var (
		n    int
		from netip.AddrPort
	)
	go func() {
		n, from, err = server.Receive(buf)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for datagram")
	}

	if err != nil {
		t.Fatalf("Failed to receive frame: %v", err)
	}

	if !bytes.Equal(buf[:n], frame) {
		t.Errorf("Expected received frame to match sent frame, got %v", buf[:n])
	}

	if from.Port() != client.LocalAddrPort().Port() {
		t.Errorf("Expected sender port %d, got %d", client.LocalAddrPort().Port(), from.Port())
	}
}

func TestSendRejectsOversizedFrame(t *testing.T) {
	client, err := Open()
	if err != nil {
		t.Fatalf("Failed to open client socket: %v", err)
	}
	defer client.Close()

	frame := make([]byte, ethernet.MaxFrameSize+1)
	to := netip.MustParseAddrPort("127.0.0.1:9")

	if err := client.Send(frame, to); err == nil {
		t.Errorf("Expected error for oversized frame")
	}
}

func TestReceiveReturnsAfterClose(t *testing.T) {
	server, err := Listen(0)
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, ethernet.MaxFrameSize)
		_, _, err := server.Receive(buf)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	server.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Errorf("Expected error from Receive after Close")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Receive did not return after Close")
	}
}

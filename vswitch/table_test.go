package vswitch

import (
	"net"
	"net/netip"
	"testing"
	"time"
)

var (
	macA = net.HardwareAddr{0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa}
	macB = net.HardwareAddr{0xbb, 0xbb, 0xbb, 0xbb, 0xbb, 0xbb}

	portA = netip.MustParseAddrPort("127.0.0.1:9001")
	portB = netip.MustParseAddrPort("127.0.0.1:9002")
)

func TestMACTableLearnAndLookup(t *testing.T) {
	table := NewMACTable(0, 0)

	if _, ok := table.Lookup(macA); ok {
		t.Errorf("Expected lookup miss for unlearned MAC")
	}

	table.Learn(macA, portA)

	port, ok := table.Lookup(macA)
	if !ok {
		t.Fatalf("Expected lookup hit for learned MAC")
	}
	if port != portA {
		t.Errorf("Expected port %s, got %s", portA, port)
	}

	if table.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", table.Len())
	}
}

func TestMACTableRelearnMovesPort(t *testing.T) {
	table := NewMACTable(0, 0)

	table.Learn(macA, portA)
	table.Learn(macA, portB)

	port, ok := table.Lookup(macA)
	if !ok {
		t.Fatalf("Expected lookup hit after relearn")
	}
	if port != portB {
		t.Errorf("Expected last-seen port %s to win, got %s", portB, port)
	}

	if table.Len() != 1 {
		t.Errorf("Expected a single entry per MAC, got %d", table.Len())
	}
}

func TestMACTableEvict(t *testing.T) {
	table := NewMACTable(0, 0)

	table.Learn(macA, portA)

	if !table.Evict(macA) {
		t.Errorf("Expected Evict to report removal")
	}

	if _, ok := table.Lookup(macA); ok {
		t.Errorf("Expected lookup miss after eviction")
	}

	if table.Evict(macA) {
		t.Errorf("Expected Evict of absent MAC to report false")
	}
}

func TestMACTableIdleExpiry(t *testing.T) {
	table := NewMACTable(0, 50*time.Millisecond)

	table.Learn(macA, portA)
	time.Sleep(150 * time.Millisecond)

	if _, ok := table.Lookup(macA); ok {
		t.Errorf("Expected entry to expire after idle timeout")
	}
}

func TestMACTableEvictPort(t *testing.T) {
	table := NewMACTable(0, 0)

	table.Learn(macA, portA)
	table.Learn(macB, portA)
	other := net.HardwareAddr{0xcc, 0xcc, 0xcc, 0xcc, 0xcc, 0xcc}
	table.Learn(other, portB)

	if removed := table.EvictPort(portA); removed != 2 {
		t.Errorf("Expected 2 entries removed, got %d", removed)
	}

	if _, ok := table.Lookup(macA); ok {
		t.Errorf("Expected MAC on evicted port to be gone")
	}

	if _, ok := table.Lookup(other); !ok {
		t.Errorf("Expected MAC on other port to survive")
	}
}

func TestMACTableCapacityBound(t *testing.T) {
	table := NewMACTable(2, 0)

	table.Learn(macA, portA)
	table.Learn(macB, portA)
	table.Learn(net.HardwareAddr{0xcc, 0xcc, 0xcc, 0xcc, 0xcc, 0xcc}, portB)

	if table.Len() != 2 {
		t.Errorf("Expected table capped at 2 entries, got %d", table.Len())
	}

	// The oldest entry is the one displaced.
	if _, ok := table.Lookup(macA); ok {
		t.Errorf("Expected oldest entry to be displaced at capacity")
	}
}

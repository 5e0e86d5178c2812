package vswitch

import (
	"net"
	"net/netip"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultMACTableSize bounds the learning table. The oldest entry is
	// evicted when a full table learns a new MAC.
	DefaultMACTableSize = 4096

	// DefaultMACTimeout is how long an entry survives without being
	// refreshed by a frame from that MAC.
	DefaultMACTimeout = 300 * time.Second
)

// MACTable maps a source MAC address to the port it was last seen on.
// At most one entry exists per MAC; learning the same MAC on a new port
// overwrites the old entry (last writer wins). Entries expire after the
// idle timeout. Safe for concurrent use.
type MACTable struct {
	entries *expirable.LRU[string, netip.AddrPort]
}

// NewMACTable creates a table with the given capacity and idle timeout.
// Zero values select the defaults.
func NewMACTable(size int, idleTimeout time.Duration) *MACTable {
	if size <= 0 {
		size = DefaultMACTableSize
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultMACTimeout
	}
	return &MACTable{
		entries: expirable.NewLRU[string, netip.AddrPort](size, nil, idleTimeout),
	}
}

// Learn records or refreshes the port for a MAC. Always succeeds.
func (t *MACTable) Learn(mac net.HardwareAddr, port netip.AddrPort) {
	t.entries.Add(mac.String(), port)
}

// Lookup returns the port a MAC was last seen on, if the entry has not
// expired.
func (t *MACTable) Lookup(mac net.HardwareAddr) (netip.AddrPort, bool) {
	return t.entries.Get(mac.String())
}

// Evict removes the entry for a MAC, if present.
func (t *MACTable) Evict(mac net.HardwareAddr) bool {
	return t.entries.Remove(mac.String())
}

// EvictPort removes every entry pointing at the given port. Used when a
// port ages out of the registry, so stale unicast entries cannot direct
// traffic at a dead endpoint.
func (t *MACTable) EvictPort(port netip.AddrPort) int {
	removed := 0
	for _, key := range t.entries.Keys() {
		if entry, ok := t.entries.Peek(key); ok && entry == port {
			t.entries.Remove(key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live entries.
func (t *MACTable) Len() int {
	return t.entries.Len()
}

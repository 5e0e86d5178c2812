package vswitch

import (
	"fmt"
	"net/netip"
	"sync"
	"time"
)

// DefaultPortTimeout is how long a port stays registered without
// sending a frame. Flooding to endpoints that stopped talking is cheap
// but not free, and the registry must not grow without bound.
const DefaultPortTimeout = 300 * time.Second

// Port is the switch's bookkeeping for one connected endpoint. A port
// is identified purely by the transport address frames arrive from;
// there is no separate port-number namespace.
type Port struct {
	Addr netip.AddrPort

	mu        sync.Mutex
	firstSeen time.Time
	lastSeen  time.Time

	framesIn  uint64
	framesOut uint64
	bytesIn   uint64
	bytesOut  uint64
}

func newPort(addr netip.AddrPort) *Port {
	now := time.Now()
	return &Port{
		Addr:      addr,
		firstSeen: now,
		lastSeen:  now,
	}
}

// noteIn records one received frame and refreshes the idle clock.
func (p *Port) noteIn(n int) {
	p.mu.Lock()
	p.framesIn++
	p.bytesIn += uint64(n)
	p.lastSeen = time.Now()
	p.mu.Unlock()
}

// noteOut records one frame transmitted to this port.
func (p *Port) noteOut(n int) {
	p.mu.Lock()
	p.framesOut++
	p.bytesOut += uint64(n)
	p.mu.Unlock()
}

// LastSeen returns when the port last sent a frame.
func (p *Port) LastSeen() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeen
}

// String returns a string representation of the port.
func (p *Port) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fmt.Sprintf("Port[%s, frames_rx=%d, frames_tx=%d]", p.Addr, p.framesIn, p.framesOut)
}

// PortRegistry tracks every address that has sent a frame to the
// switch. Registration is lazy: the first frame from a new address
// creates the port. Safe for concurrent use; Snapshot copies, so
// flooding can iterate while registrations proceed.
type PortRegistry struct {
	mu    sync.RWMutex
	ports map[netip.AddrPort]*Port
}

// NewPortRegistry creates an empty registry.
func NewPortRegistry() *PortRegistry {
	return &PortRegistry{
		ports: make(map[netip.AddrPort]*Port),
	}
}

// Register records the address as a known port and refreshes its idle
// clock. Returns the port and whether it was newly created.
func (r *PortRegistry) Register(addr netip.AddrPort) (*Port, bool) {
	r.mu.RLock()
	port, ok := r.ports[addr]
	r.mu.RUnlock()
	if ok {
		return port, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if port, ok := r.ports[addr]; ok {
		return port, false
	}
	port = newPort(addr)
	r.ports[addr] = port
	return port, true
}

// Get returns the port for an address, if registered.
func (r *PortRegistry) Get(addr netip.AddrPort) (*Port, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	port, ok := r.ports[addr]
	return port, ok
}

// Snapshot returns a copy of the current port set.
func (r *PortRegistry) Snapshot() []*Port {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ports := make([]*Port, 0, len(r.ports))
	for _, port := range r.ports {
		ports = append(ports, port)
	}
	return ports
}

// Remove drops a port from the registry.
func (r *PortRegistry) Remove(addr netip.AddrPort) {
	r.mu.Lock()
	delete(r.ports, addr)
	r.mu.Unlock()
}

// ExpireIdle removes ports that have not sent a frame within maxIdle
// and returns the removed addresses.
func (r *PortRegistry) ExpireIdle(maxIdle time.Duration) []netip.AddrPort {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []netip.AddrPort
	for addr, port := range r.ports {
		if port.LastSeen().Before(cutoff) {
			delete(r.ports, addr)
			expired = append(expired, addr)
		}
	}
	return expired
}

// Len returns the number of registered ports.
func (r *PortRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ports)
}

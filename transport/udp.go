// Package transport carries Ethernet frames between ports and the
// switch: one frame per UDP datagram, no added framing. Delivery is
// unreliable by design; callers log failed sends and move on.
package transport

import (
	"fmt"
	"net"
	"net/netip"

	"udp-vswitch/ethernet"
)

// FrameConn sends and receives whole Ethernet frames.
type FrameConn interface {
	// Receive blocks until one datagram arrives, copies it into buf and
	// returns the payload length and the sender's address.
	Receive(buf []byte) (int, netip.AddrPort, error)

	// Send transmits frame as a single datagram to the given address.
	// A short send is reported as an error; it is never retried here.
	Send(frame []byte, to netip.AddrPort) error

	// LocalAddrPort returns the local bound address.
	LocalAddrPort() netip.AddrPort

	Close() error
}

// UDPConn implements FrameConn on top of an IPv4/IPv6 UDP socket.
type UDPConn struct {
	conn *net.UDPConn
}

// Listen binds a switch-side socket on the given port on all interfaces.
func Listen(port int) (*UDPConn, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to bind UDP port %d: %w", port, err)
	}
	return &UDPConn{conn: conn}, nil
}

// Open binds a port-side socket on an ephemeral port. The switch
// identifies the port by the address datagrams arrive from, so no
// well-known local port is needed.
func Open() (*UDPConn, error) {
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open UDP socket: %w", err)
	}
	return &UDPConn{conn: conn}, nil
}

// Receive reads one datagram into buf.
func (u *UDPConn) Receive(buf []byte) (int, netip.AddrPort, error) {
	n, from, err := u.conn.ReadFromUDPAddrPort(buf)
	if err != nil {
		return 0, netip.AddrPort{}, err
	}
	return n, from, nil
}

// Send writes frame as one datagram to the given address.
func (u *UDPConn) Send(frame []byte, to netip.AddrPort) error {
	if len(frame) > ethernet.MaxFrameSize {
		return fmt.Errorf("frame too large for one datagram: %d bytes", len(frame))
	}

	n, err := u.conn.WriteToUDPAddrPort(frame, to)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return fmt.Errorf("short send to %s: wrote %d of %d bytes", to, n, len(frame))
	}
	return nil
}

// LocalAddrPort returns the socket's bound address.
func (u *UDPConn) LocalAddrPort() netip.AddrPort {
	return u.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// Close closes the underlying socket. A blocked Receive returns with an
// error once the socket is closed.
func (u *UDPConn) Close() error {
	return u.conn.Close()
}

// Package vswitch implements a learning Ethernet switch whose ports
// are UDP peers: every address a frame arrives from becomes a port,
// source MACs are learned per frame, and destinations are either
// forwarded to their learned port or flooded.
package vswitch

import (
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"udp-vswitch/ethernet"
	"udp-vswitch/transport"
)

// sweepInterval is how often idle ports are reaped.
const sweepInterval = 30 * time.Second

// Config holds the per-segment switch configuration.
type Config struct {
	// Port is the UDP port the segment listens on.
	Port int

	// MACTableSize caps the learning table; zero selects the default.
	MACTableSize int

	// MACTimeout is the idle eviction window for learned MACs; zero
	// selects the default.
	MACTimeout time.Duration

	// PortTimeout is the idle eviction window for registered ports;
	// zero selects the default.
	PortTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MACTableSize <= 0 {
		c.MACTableSize = DefaultMACTableSize
	}
	if c.MACTimeout <= 0 {
		c.MACTimeout = DefaultMACTimeout
	}
	if c.PortTimeout <= 0 {
		c.PortTimeout = DefaultPortTimeout
	}
	return c
}

// VirtualSwitch is one isolated switching segment: one UDP socket, one
// MAC table, one port registry. The MAC table and port registry are the
// only shared mutable state; everything else is owned by the receive
// loop.
type VirtualSwitch struct {
	cfg Config

	conn     transport.FrameConn
	macTable *MACTable
	ports    *PortRegistry

	totalFrames     atomic.Uint64
	unicastFrames   atomic.Uint64
	broadcastFrames atomic.Uint64
	floodedFrames   atomic.Uint64
	droppedFrames   atomic.Uint64

	shutdown chan struct{}
	wg       sync.WaitGroup
}

// NewVirtualSwitch creates a segment. The socket is not bound until
// Start.
func NewVirtualSwitch(cfg Config) *VirtualSwitch {
	cfg = cfg.withDefaults()
	return &VirtualSwitch{
		cfg:      cfg,
		macTable: NewMACTable(cfg.MACTableSize, cfg.MACTimeout),
		ports:    NewPortRegistry(),
		shutdown: make(chan struct{}),
	}
}

// Start binds the UDP socket and launches the receive loop and the
// idle-port sweeper.
func (vs *VirtualSwitch) Start() error {
	conn, err := transport.Listen(vs.cfg.Port)
	if err != nil {
		return fmt.Errorf("failed to start segment on port %d: %w", vs.cfg.Port, err)
	}
	vs.conn = conn

	log.WithField("port", vs.cfg.Port).Info("segment listening")

	vs.wg.Add(2)
	go vs.receiveLoop()
	go vs.sweepLoop()

	return nil
}

// Addr returns the bound listen address. Only valid after Start; with
// Port 0 it reports the kernel-assigned port.
func (vs *VirtualSwitch) Addr() netip.AddrPort {
	return vs.conn.LocalAddrPort()
}

// Stop closes the socket and waits for the loops to exit.
func (vs *VirtualSwitch) Stop() {
	close(vs.shutdown)
	if vs.conn != nil {
		_ = vs.conn.Close()
	}
	vs.wg.Wait()
	log.WithField("port", vs.cfg.Port).Info("segment stopped")
}

// receiveLoop pulls datagrams off the socket one at a time. Processing
// inline keeps frames from the same sender in arrival order, which is
// what makes last-learned-wins deterministic per port.
func (vs *VirtualSwitch) receiveLoop() {
	defer vs.wg.Done()

	buf := ethernet.GetBuffer()
	defer ethernet.PutBuffer(buf)

	for {
		n, from, err := vs.conn.Receive(buf)
		if err != nil {
			select {
			case <-vs.shutdown:
				return
			default:
			}
			log.WithError(err).WithField("port", vs.cfg.Port).Warn("receive failed")
			continue
		}
		vs.processFrame(buf[:n], from)
	}
}

// processFrame runs the forwarding algorithm for one inbound frame:
// validate, register the sender, learn its source MAC, then forward or
// flood. Frame-level failures drop the frame and nothing else.
func (vs *VirtualSwitch) processFrame(data []byte, from netip.AddrPort) {
	vs.totalFrames.Add(1)

	frame, err := ethernet.Parse(data)
	if err != nil {
		vs.droppedFrames.Add(1)
		log.WithError(err).WithField("from", from.String()).Warn("dropping frame")
		return
	}

	// Reject oversized frames and all-zero source MACs before the
	// sender is registered or anything is learned from the frame.
	if err := frame.Validate(); err != nil {
		vs.droppedFrames.Add(1)
		log.WithError(err).WithField("from", from.String()).Warn("dropping invalid frame")
		return
	}

	log.WithField("from", from.String()).Trace(frame.String())

	port, isNew := vs.ports.Register(from)
	port.noteIn(len(data))
	if isNew {
		log.WithFields(log.Fields{
			"port":    vs.cfg.Port,
			"address": from.String(),
		}).Info("new port registered")
	}

	// Learning happens unconditionally, even when the destination is
	// unknown or broadcast.
	vs.macTable.Learn(frame.SrcMAC, from)

	if frame.IsBroadcast() || frame.IsMulticast() {
		vs.broadcastFrames.Add(1)
		vs.flood(frame, from)
		return
	}

	dest, known := vs.macTable.Lookup(frame.DestMAC)
	if !known {
		vs.floodedFrames.Add(1)
		log.WithField("dst", frame.DestMAC.String()).Debug("unknown destination, flooding")
		vs.flood(frame, from)
		return
	}

	// A destination learned on the arrival port would echo the frame
	// back to its sender. Drop silently.
	if dest == from {
		return
	}

	vs.unicastFrames.Add(1)
	vs.send(frame, dest)
}

// flood transmits the frame to every registered port except the one it
// arrived on.
func (vs *VirtualSwitch) flood(frame *ethernet.Frame, src netip.AddrPort) {
	for _, port := range vs.ports.Snapshot() {
		if port.Addr == src {
			continue
		}
		vs.send(frame, port.Addr)
	}
}

// send is fire-and-forget: a failed send is logged and the frame
// dropped, never retried.
func (vs *VirtualSwitch) send(frame *ethernet.Frame, to netip.AddrPort) {
	if err := vs.conn.Send(frame.Raw, to); err != nil {
		vs.droppedFrames.Add(1)
		log.WithError(err).WithField("to", to.String()).Warn("failed to send frame")
		return
	}
	if port, ok := vs.ports.Get(to); ok {
		port.noteOut(len(frame.Raw))
	}
}

// sweepLoop periodically reaps ports that stopped sending, together
// with any MAC entries still pointing at them.
func (vs *VirtualSwitch) sweepLoop() {
	defer vs.wg.Done()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-vs.shutdown:
			return
		case <-ticker.C:
			vs.expireIdlePorts()
		}
	}
}

func (vs *VirtualSwitch) expireIdlePorts() {
	expired := vs.ports.ExpireIdle(vs.cfg.PortTimeout)
	for _, addr := range expired {
		removed := vs.macTable.EvictPort(addr)
		log.WithFields(log.Fields{
			"address":     addr.String(),
			"mac_entries": removed,
		}).Info("expired idle port")
	}
}

// GetStats returns current segment statistics.
func (vs *VirtualSwitch) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"total_frames":     vs.totalFrames.Load(),
		"broadcast_frames": vs.broadcastFrames.Load(),
		"unicast_frames":   vs.unicastFrames.Load(),
		"flooded_frames":   vs.floodedFrames.Load(),
		"dropped_frames":   vs.droppedFrames.Load(),
		"ports":            vs.ports.Len(),
		"mac_entries":      vs.macTable.Len(),
	}
}

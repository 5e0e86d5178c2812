// Package vport bridges one local TAP interface to the switch over
// UDP, acting as the virtual cable between the kernel network stack
// and the switch process.
package vport

import (
	"fmt"
	"io"

	"net/netip"

	log "github.com/sirupsen/logrus"
	packets "github.com/songgao/packets/ethernet"

	"udp-vswitch/ethernet"
	"udp-vswitch/transport"
)

// Bridge pumps Ethernet frames in both directions between a local
// interface and the switch. The two pumps are fully independent data
// paths; the only thing they have in common is the transport socket
// and the switch address, which is immutable configuration.
type Bridge struct {
	tap  io.ReadWriteCloser
	conn transport.FrameConn

	// switchAddr is captured once at construction and is the uplink's
	// only send destination. The downlink never writes to it: the
	// sender address observed on a receive stays local to that pump.
	switchAddr netip.AddrPort
}

// NewBridge pairs a local interface with the switch at switchAddr.
func NewBridge(tap io.ReadWriteCloser, conn transport.FrameConn, switchAddr netip.AddrPort) *Bridge {
	return &Bridge{
		tap:        tap,
		conn:       conn,
		switchAddr: switchAddr,
	}
}

// Run starts both pumps and blocks until either fails. Local-interface
// failures are fatal for the whole bridge; there is no degraded mode.
func (b *Bridge) Run() error {
	errs := make(chan error, 2)

	go func() { errs <- b.uplink() }()
	go func() { errs <- b.downlink() }()

	return <-errs
}

// uplink reads frames from the local interface and sends each one as a
// datagram to the switch.
func (b *Bridge) uplink() error {
	buf := make([]byte, ethernet.MaxFrameSize)

	for {
		n, err := b.tap.Read(buf)
		if err != nil {
			return fmt.Errorf("tap read failed: %w", err)
		}

		if n < ethernet.HeaderSize {
			log.WithField("len", n).Warn("dropping undersized frame from tap")
			continue
		}

		frame := packets.Frame(buf[:n])
		log.WithFields(log.Fields{
			"src": frame.Source().String(),
			"dst": frame.Destination().String(),
			"len": n,
		}).Trace("uplink frame")

		if err := b.conn.Send(buf[:n], b.switchAddr); err != nil {
			// Unreliable transport: log and move on, never retry.
			log.WithError(err).Warn("failed to send frame to switch")
		}
	}
}

// downlink receives datagrams from the switch and writes each frame
// verbatim to the local interface.
func (b *Bridge) downlink() error {
	buf := make([]byte, ethernet.MaxFrameSize)

	for {
		// The observed sender address is informational only. Feeding it
		// back into the uplink's destination would let a stray datagram
		// redirect outbound traffic.
		n, from, err := b.conn.Receive(buf)
		if err != nil {
			return fmt.Errorf("transport receive failed: %w", err)
		}

		if n < ethernet.HeaderSize {
			log.WithFields(log.Fields{
				"len":  n,
				"from": from.String(),
			}).Warn("dropping undersized frame from transport")
			continue
		}

		frame := packets.Frame(buf[:n])
		log.WithFields(log.Fields{
			"src":  frame.Source().String(),
			"dst":  frame.Destination().String(),
			"from": from.String(),
			"len":  n,
		}).Trace("downlink frame")

		written, err := b.tap.Write(buf[:n])
		if err != nil {
			return fmt.Errorf("tap write failed: %w", err)
		}
		if written != n {
			log.WithFields(log.Fields{
				"expected": n,
				"written":  written,
			}).Warn("short tap write")
		}
	}
}

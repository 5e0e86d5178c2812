// Package ethernet holds the Layer-2 frame model shared by the switch
// and the port bridge. Frames are treated as opaque byte sequences with
// a fixed 14-byte header; the relay never rewrites them.
package ethernet

import (
	"fmt"
	"net"

	"github.com/google/gopacket/layers"
)

const (
	// HeaderSize is the fixed Ethernet header: destination MAC (6),
	// source MAC (6), EtherType (2).
	HeaderSize = 14

	// MaxFrameSize is the largest frame carried in one datagram.
	MaxFrameSize = 1518
)

// Broadcast is the Ethernet broadcast address.
var Broadcast = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// Frame is a parsed Ethernet frame. Raw is a private copy of the full
// frame, so the receive buffer can be reused once Parse returns.
type Frame struct {
	DestMAC   net.HardwareAddr
	SrcMAC    net.HardwareAddr
	EtherType uint16
	Payload   []byte
	Raw       []byte
}

// Parse parses raw bytes into a Frame.
func Parse(data []byte) (*Frame, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("frame too short: %d bytes (minimum %d)", len(data), HeaderSize)
	}

	frame := &Frame{
		Raw: make([]byte, len(data)),
	}
	copy(frame.Raw, data)

	frame.DestMAC = net.HardwareAddr(frame.Raw[0:6])
	frame.SrcMAC = net.HardwareAddr(frame.Raw[6:12])
	frame.EtherType = uint16(frame.Raw[12])<<8 | uint16(frame.Raw[13])
	frame.Payload = frame.Raw[HeaderSize:]

	return frame, nil
}

// IsBroadcast returns true if the destination is the broadcast address.
func (f *Frame) IsBroadcast() bool {
	return f.DestMAC.String() == Broadcast.String()
}

// IsMulticast returns true if the destination has the group bit set.
// Broadcast frames are also multicast by this definition.
func (f *Frame) IsMulticast() bool {
	return f.DestMAC[0]&0x01 == 1
}

// String returns a one-line summary of the frame for logging.
func (f *Frame) String() string {
	return fmt.Sprintf("Frame[%s -> %s, type=%s, len=%d]",
		f.SrcMAC.String(), f.DestMAC.String(),
		layers.EthernetType(f.EtherType).String(), len(f.Raw))
}

// Validate performs basic frame validation beyond the header-size check
// done by Parse.
func (f *Frame) Validate() error {
	if len(f.Raw) < HeaderSize {
		return fmt.Errorf("frame too short: %d bytes", len(f.Raw))
	}

	if len(f.Raw) > MaxFrameSize {
		return fmt.Errorf("frame too long: %d bytes", len(f.Raw))
	}

	if f.SrcMAC.String() == "00:00:00:00:00:00" {
		return fmt.Errorf("invalid source MAC: all zeros")
	}

	return nil
}

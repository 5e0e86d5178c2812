//go:build linux

package vport

import (
	"fmt"

	"github.com/songgao/water"
	"github.com/vishvananda/netlink"
)

// OpenTAP creates a TAP device. The kernel may assign a different name
// than requested; the returned interface reports the actual one via
// Name().
func OpenTAP(name string) (*water.Interface, error) {
	ifce, err := water.New(water.Config{
		DeviceType: water.TAP,
		PlatformSpecificParams: water.PlatformSpecificParams{
			Name: name,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create TAP device: %w", err)
	}
	return ifce, nil
}

// SetLinkUp brings the named interface up. Address assignment is left
// to external tooling.
func SetLinkUp(name string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return fmt.Errorf("failed to find link %s: %w", name, err)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("failed to bring link %s up: %w", name, err)
	}
	return nil
}

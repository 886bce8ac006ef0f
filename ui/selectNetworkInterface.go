// ui/selectNetworkInterface.go
package ui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/huh"
	psnet "github.com/shirou/gopsutil/v3/net"
)

// SelectNetworkInterface prompts the user to select one of the interfaces
// that are up and not loopback.
func SelectNetworkInterface(ctx context.Context) (string, error) {
	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("list network interfaces: %w", err)
	}

	choices := interfaceChoices(ifaces)
	if len(choices) == 0 {
		return "", errors.New("no usable network interfaces found")
	}

	// Create a selection form using the huh package
	var selected string
	form := huh.NewSelect[string]().
		Title("Select a network interface to monitor").
		Options(choices...).
		Value(&selected)

	if err := form.Run(); err != nil {
		return "", fmt.Errorf("interface selection failed: %w", err)
	}
	return selected, nil
}

// interfaceChoices filters out interfaces that are down or loopback and
// labels the rest with their addresses.
func interfaceChoices(ifaces psnet.InterfaceStatList) []huh.Option[string] {
	choices := []huh.Option[string]{}
	for _, iface := range ifaces {
		if !slices.Contains(iface.Flags, "up") || slices.Contains(iface.Flags, "loopback") {
			continue
		}
		addrStrs := make([]string, 0, len(iface.Addrs))
		for _, addr := range iface.Addrs {
			// gopsutil reports CIDR notation; keep only the address
			ip, _, _ := strings.Cut(addr.Addr, "/")
			addrStrs = append(addrStrs, ip)
		}
		pretty := fmt.Sprintf("%s (%s)", iface.Name, strings.Join(addrStrs, ", "))
		choices = append(choices, huh.NewOption(pretty, iface.Name))
	}
	return choices
}

package services

import (
	"fmt"
	"net"

	"github.com/HerbHall/edgescan/pkg/models"
)

// NetworkInterface is an alias kept for handler signatures.
type NetworkInterface = models.NetworkInterface

// hostInterface is the subset of net.Interface the service reads.
type hostInterface struct {
	Name  string
	Flags net.Flags
	MAC   net.HardwareAddr
	Addrs []net.Addr
}

// InterfaceService enumerates the scanner host's IPv4 interfaces.
type InterfaceService struct {
	source func() ([]hostInterface, error)
}

// NewInterfaceService creates an InterfaceService using the OS interface table.
func NewInterfaceService() *InterfaceService {
	return &InterfaceService{source: osInterfaces}
}

func osInterfaces() ([]hostInterface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]hostInterface, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		out = append(out, hostInterface{Name: iface.Name, Flags: iface.Flags, MAC: iface.HardwareAddr, Addrs: addrs})
	}
	return out, nil
}

// ListNetworkInterfaces returns one entry per IPv4 address on every
// non-loopback interface. Status is "up" or "down".
func (s *InterfaceService) ListNetworkInterfaces() ([]NetworkInterface, error) {
	ifaces, err := s.source()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	result := []NetworkInterface{}
	for _, iface := range ifaces {
		result = append(result, ipv4Entries(iface)...)
	}
	return result, nil
}

func ipv4Entries(iface hostInterface) []NetworkInterface {
	if iface.Flags&net.FlagLoopback != 0 {
		return nil
	}
	status := "down"
	if iface.Flags&net.FlagUp != 0 {
		status = "up"
	}
	var out []NetworkInterface
	for _, addr := range iface.Addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip4 := ipNet.IP.To4()
		if ip4 == nil || ip4.IsLoopback() || ip4.IsLinkLocalUnicast() {
			continue
		}
		network := &net.IPNet{IP: ip4.Mask(ipNet.Mask), Mask: ipNet.Mask}
		out = append(out, NetworkInterface{
			Name:      iface.Name,
			IPAddress: ip4.String(),
			Subnet:    network.String(),
			MAC:       iface.MAC.String(),
			Status:    status,
		})
	}
	return out
}

package node

import (
	"fmt"
	"net"

	"Pnode/pkg/util"

	"golang.org/x/sys/unix"
)

// NewNetif gives the node an interface on network and returns its index.
//
// On a running node the broker builds a tunnel towards network, which is
// taken off the network and adopted as the node interface. Before startup
// (configuring services) an unstarted tunnel endpoint named ifname, or
// gt<index>, stands in for it. ifindex nil allocates the next free index.
func (n *PhysicalNode) NewNetif(network Network, addrs []string, hwaddr net.HardwareAddr, ifindex *int, ifname string) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	live := n.state == StateUp
	if live && network == nil {
		return -1, fmt.Errorf("%w: creating an interface without a network on running node %s", ErrUnsupported, n.name)
	}
	if n.state == StateShuttingDown || n.state == StateDown {
		return -1, fmt.Errorf("%w: node %s is %s", ErrUnsupported, n.name, n.state)
	}

	addrs, err := normalizeAddrs(addrs)
	if err != nil {
		return -1, err
	}

	var index int
	if ifindex != nil {
		index = *ifindex
		if _, used := n.netifs[index]; used {
			return -1, fmt.Errorf("%w: interface index %d already in use on %s", ErrInvalidArgument, index, n.name)
		}
	} else {
		index = n.newIfIndexLocked()
	}
	n.logger.Info().Int("ifindex", index).Msg("creating interface")

	if live {
		if n.session == nil || n.session.Broker() == nil {
			return -1, fmt.Errorf("%w: node %s has no broker", ErrConfiguration, n.name)
		}
		tunnels, err := n.session.Broker().AddNetTunnel(network.ObjID())
		if err != nil {
			return -1, fmt.Errorf("%w: failed to build tunnel to network %d: %w", ErrConfiguration, network.ObjID(), err)
		}
		if len(tunnels) != 1 {
			return -1, fmt.Errorf("%w: broker returned %d tunnels for network %d, want 1", ErrConfiguration, len(tunnels), network.ObjID())
		}
		gt := tunnels[0]
		network.Detach(gt)
		gt.Net = network
		if err := n.adoptNetifLocked(gt, index, hwaddr, addrs); err != nil {
			return -1, err
		}
		return index, nil
	}

	if ifname == "" {
		ifname = fmt.Sprintf("%s%d", TunnelPrefix, index)
	}
	gt := NewTunnel(ifname, GreTapMTU, nil)
	gt.Net = network
	if err := n.adoptNetifLocked(gt, index, hwaddr, addrs); err != nil {
		return -1, err
	}
	return index, nil
}

// AdoptNetif makes tunnel the node interface at ifindex. The tunnel is renamed
// gt<ifindex> and, on a running node, reconfigured in place: down, rename,
// hardware address, addresses, up. A node that is shutting down or down
// takes no new interfaces.
func (n *PhysicalNode) AdoptNetif(tunnel *Netif, ifindex int, hwaddr net.HardwareAddr, addrs []string) error {
	addrs, err := normalizeAddrs(addrs)
	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	return n.adoptNetifLocked(tunnel, ifindex, hwaddr, addrs)
}

func (n *PhysicalNode) adoptNetifLocked(tunnel *Netif, ifindex int, hwaddr net.HardwareAddr, addrs []string) error {
	if n.state == StateShuttingDown || n.state == StateDown {
		return fmt.Errorf("%w: node %s is %s", ErrUnsupported, n.name, n.state)
	}
	name := fmt.Sprintf("%s%d", TunnelPrefix, ifindex)
	if err := checkIfName(name); err != nil {
		return err
	}
	if existing, used := n.netifs[ifindex]; used && existing != tunnel {
		return fmt.Errorf("%w: interface index %d already in use on %s", ErrInvalidArgument, ifindex, n.name)
	}

	tunnel.Index = ifindex
	tunnel.Name = name
	tunnel.Node = n
	n.netifs[ifindex] = tunnel

	live := n.state == StateUp
	if live {
		// the broker's device name (gt.<net>.<seq>) becomes gt<index>
		_ = n.Cmd([]string{n.ipBin, "link", "set", "dev", tunnel.LocalName, "down"}, true)
		if err := n.Cmd([]string{n.ipBin, "link", "set", tunnel.LocalName, "name", tunnel.Name}, true); err != nil {
			n.logger.Error().Str("device", tunnel.LocalName).Str("name", tunnel.Name).Msg("keeping device name")
		} else {
			tunnel.LocalName = tunnel.Name
		}
	} else {
		tunnel.LocalName = tunnel.Name
	}

	if hwaddr != nil {
		_ = n.setHwAddrLocked(ifindex, hwaddr)
	}
	for _, addr := range addrs {
		_ = n.addAddrLocked(ifindex, addr)
	}

	if live {
		_ = n.Cmd([]string{n.ipBin, "link", "set", "dev", tunnel.LocalName, "up"}, true)
	}
	n.logger.Info().Int("ifindex", ifindex).Str("name", tunnel.Name).Bool("live", live).Msg("adopted interface")
	return nil
}

// SetHwAddr sets the hardware address of the interface at ifindex.
func (n *PhysicalNode) SetHwAddr(ifindex int, addr net.HardwareAddr) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.setHwAddrLocked(ifindex, addr)
}

func (n *PhysicalNode) setHwAddrLocked(ifindex int, addr net.HardwareAddr) error {
	netif, ok := n.netifs[ifindex]
	if !ok {
		return fmt.Errorf("%w: no interface %d on %s", ErrInvalidArgument, ifindex, n.name)
	}

	if n.state == StateUp {
		status, out, err := n.CmdResult([]string{n.ipBin, "link", "set", "dev", netif.LocalName, "address", addr.String()})
		if err != nil {
			return err
		}
		if status != 0 {
			n.logger.Error().Str("addr", addr.String()).Int("status", status).Bytes("output", out).Msg("error setting MAC address")
			return fmt.Errorf("failed to set MAC address %s on %s: exit status %d", addr, netif.LocalName, status)
		}
	}
	netif.HwAddr = addr
	return nil
}

// AddAddr assigns addr to the interface at ifindex. The address is recorded
// only once the OS accepted it.
func (n *PhysicalNode) AddAddr(ifindex int, addr string) error {
	addr, err := util.NormalizeAddr(addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	return n.addAddrLocked(ifindex, addr)
}

func (n *PhysicalNode) addAddrLocked(ifindex int, addr string) error {
	netif, ok := n.netifs[ifindex]
	if !ok {
		return fmt.Errorf("%w: no interface %d on %s", ErrInvalidArgument, ifindex, n.name)
	}

	if n.state == StateUp {
		if err := n.Cmd([]string{n.ipBin, "addr", "add", addr, "dev", netif.LocalName}, true); err != nil {
			return err
		}
	}
	netif.addAddr(addr)
	return nil
}

// DelAddr removes addr from the interface at ifindex. An address the node
// does not know about is logged and still removed from the OS.
func (n *PhysicalNode) DelAddr(ifindex int, addr string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	netif, ok := n.netifs[ifindex]
	if !ok {
		return fmt.Errorf("%w: no interface %d on %s", ErrInvalidArgument, ifindex, n.name)
	}
	if normalized, err := util.NormalizeAddr(addr); err == nil {
		addr = normalized
	}

	if err := netif.delAddr(addr); err != nil {
		n.logger.Error().Err(err).Str("addr", addr).Msg("trying to delete unknown address")
	}

	if n.state == StateUp {
		return n.Cmd([]string{n.ipBin, "addr", "del", addr, "dev", netif.LocalName}, true)
	}
	return nil
}

// IfName returns the node-side name of the interface at ifindex.
func (n *PhysicalNode) IfName(ifindex int) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	netif, ok := n.netifs[ifindex]
	if !ok {
		return "", false
	}
	return netif.Name, true
}

func normalizeAddrs(addrs []string) ([]string, error) {
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		normalized, err := util.NormalizeAddr(addr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		out = append(out, normalized)
	}
	return out, nil
}

// checkIfName rejects names the kernel would truncate or refuse.
func checkIfName(name string) error {
	if name == "" || len(name) >= unix.IFNAMSIZ {
		return fmt.Errorf("%w: interface name %q must be 1-%d bytes", ErrInvalidArgument, name, unix.IFNAMSIZ-1)
	}
	return nil
}

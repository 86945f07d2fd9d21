package node

import (
	"fmt"
	"net"
	"slices"

	"Pnode/pkg/link"
)

const (
	// TunnelPrefix names adopted tunnels: gt0, gt1, ...
	TunnelPrefix = "gt"
	// GreTapMTU leaves room for the GRE and outer IP headers.
	GreTapMTU = 1458
	// DefaultMTU is used for veth interfaces.
	DefaultMTU = 1500
)

// Netif is one network endpoint of a node. Tunnel handles returned by a Broker
// are Netifs too; they become node interfaces once adopted.
//
// A Netif is mutated only under its owning node's lock.
type Netif struct {
	Index     int
	Name      string // name inside the node, e.g. gt0
	LocalName string // current OS device name
	HwAddr    net.HardwareAddr
	MTU       int
	Node      *PhysicalNode
	Net       Network

	addrs   []string
	params  link.Params
	netns   string
	started bool
	remove  func() error
}

// NewTunnel wraps a tunnel device called localName. remove deletes the OS
// device at shutdown; a nil remove marks an endpoint that was never started.
func NewTunnel(localName string, mtu int, remove func() error) *Netif {
	return &Netif{
		Index:     -1,
		Name:      localName,
		LocalName: localName,
		MTU:       mtu,
		started:   remove != nil,
		remove:    remove,
	}
}

// NewNamespacedNetif describes a device living in the network namespace at netns,
// such as the inside end of a container veth pair.
func NewNamespacedNetif(name, netns string, mtu int) *Netif {
	return &Netif{
		Index:     0,
		Name:      name,
		LocalName: name,
		MTU:       mtu,
		netns:     netns,
		started:   true,
	}
}

// Addrs returns a copy of the assigned addresses.
func (i *Netif) Addrs() []string {
	return slices.Clone(i.addrs)
}

func (i *Netif) addAddr(addr string) {
	i.addrs = append(i.addrs, addr)
}

func (i *Netif) delAddr(addr string) error {
	idx := slices.Index(i.addrs, addr)
	if idx < 0 {
		return fmt.Errorf("%w: address %s not on %s", ErrInvalidArgument, addr, i.Name)
	}
	i.addrs = slices.Delete(i.addrs, idx, idx+1)
	return nil
}

// Started reports whether the OS device exists.
func (i *Netif) Started() bool {
	return i.started
}

// Shutdown removes the OS device. Unstarted endpoints have nothing to remove.
func (i *Netif) Shutdown() error {
	if !i.started {
		return nil
	}
	i.started = false
	if i.remove == nil {
		return nil
	}
	if err := i.remove(); err != nil {
		return fmt.Errorf("failed to remove %s: %w", i.LocalName, err)
	}
	return nil
}

// link.Target

func (i *Netif) DeviceName() string       { return i.LocalName }
func (i *Netif) Namespace() string        { return i.netns }
func (i *Netif) LinkParams() *link.Params { return &i.params }

func (i *Netif) DeviceMTU() int {
	if i.MTU <= 0 {
		return DefaultMTU
	}
	return i.MTU
}

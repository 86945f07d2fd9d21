package broker

import (
	"fmt"
	"net"
	"sync"

	"Pnode/api"
	"Pnode/pkg/node"
	"Pnode/pkg/util"

	"github.com/vishvananda/netlink"
)

// Network is an emulated segment the broker can tunnel to.
type Network interface {
	node.Network
	// Peer is the GRE endpoint pair towards the server hosting the network, nil if none.
	Peer() *api.TunnelPeer
	Attach(netif *node.Netif) error
}

type linkOps interface {
	LinkAdd(link netlink.Link) error
	LinkSetUp(link netlink.Link) error
	LinkDel(link netlink.Link) error
}

type netlinkOps struct{}

func (netlinkOps) LinkAdd(link netlink.Link) error   { return netlink.LinkAdd(link) }
func (netlinkOps) LinkSetUp(link netlink.Link) error { return netlink.LinkSetUp(link) }
func (netlinkOps) LinkDel(link netlink.Link) error   { return netlink.LinkDel(link) }

// Broker builds GRE tap tunnels from this host to the emulation servers that
// host each network. A tunnel comes up plugged into the network's bridge.
type Broker struct {
	ops    linkOps
	logger util.Logger

	mu       sync.Mutex
	networks map[int]Network
	seq      int
}

func NewBroker() *Broker {
	return &Broker{
		ops:      netlinkOps{},
		logger:   util.GetLogger("broker"),
		networks: make(map[int]Network),
	}
}

// AddNetwork makes network reachable through AddNetTunnel.
func (b *Broker) AddNetwork(network Network) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.networks[network.ObjID()] = network
}

// RemoveNetwork forgets the network with id netID.
func (b *Broker) RemoveNetwork(netID int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.networks, netID)
}

// AddNetTunnel builds one tunnel towards network netID. A network without a
// configured peer yields no tunnels.
func (b *Broker) AddNetTunnel(netID int) ([]*node.Netif, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	network, ok := b.networks[netID]
	if !ok {
		return nil, fmt.Errorf("unknown network %d", netID)
	}
	peer := network.Peer()
	if peer == nil {
		b.logger.Warn().Int("network", netID).Msg("no tunnel peer configured")
		return nil, nil
	}

	local := net.ParseIP(peer.Local)
	remote := net.ParseIP(peer.Remote)
	if local == nil || remote == nil {
		return nil, fmt.Errorf("invalid tunnel endpoints %q -> %q for network %d", peer.Local, peer.Remote, netID)
	}

	b.seq++
	name := fmt.Sprintf("gt.%d.%d", netID, b.seq)
	attrs := netlink.NewLinkAttrs()
	attrs.Name = name
	attrs.MTU = node.GreTapMTU
	gretap := &netlink.Gretap{
		LinkAttrs: attrs,
		Local:     local,
		Remote:    remote,
		IKey:      peer.Key,
		OKey:      peer.Key,
		Ttl:       peer.TTL,
	}

	if err := b.ops.LinkAdd(gretap); err != nil {
		return nil, fmt.Errorf("failed to create gretap %s: %w", name, err)
	}
	if err := b.ops.LinkSetUp(gretap); err != nil {
		b.cleanup(gretap)
		return nil, fmt.Errorf("failed to set link up %s: %w", name, err)
	}

	tunnel := node.NewTunnel(name, node.GreTapMTU, func() error {
		return b.ops.LinkDel(gretap)
	})
	if err := network.Attach(tunnel); err != nil {
		b.cleanup(gretap)
		return nil, err
	}

	b.logger.Info().Int("network", netID).Str("device", name).Str("remote", peer.Remote).Msg("tunnel built")
	return []*node.Netif{tunnel}, nil
}

func (b *Broker) cleanup(link netlink.Link) {
	if err := b.ops.LinkDel(link); err != nil {
		b.logger.Error().Err(err).Str("device", link.Attrs().Name).Msg("failed to remove tunnel")
	}
}

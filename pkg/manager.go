package pkg

import (
	"context"
	"errors"
	"fmt"
	"net"

	"Pnode/api"
	"Pnode/pkg/broker"
	"Pnode/pkg/config"
	"Pnode/pkg/link"
	"Pnode/pkg/node"
	"Pnode/pkg/ovs"
	"Pnode/pkg/services"
	"Pnode/pkg/session"
	"Pnode/pkg/util"
)

const defaultFileMode = 0o644

// ErrNoDocker is returned for container peers when no docker daemon could be reached.
var ErrNoDocker = errors.New("docker is not available")

// containerPeer is a running container and the shaping target inside it.
type containerPeer struct {
	vnode api.VirtualNode
	netif *node.Netif
}

// Manager builds a topology on this host: the emulated networks, container
// peers on them, and this host itself as a physical node tunneled in.
// Destroy tears everything down in reverse order.
type Manager struct {
	cfg      *config.Config
	session  *session.Session
	om       *ovs.OvsManager
	broker   *broker.Broker
	services *services.Manager
	cm       *node.ContainerManager // nil when docker is unavailable
	shaper   *link.Shaper

	networks   map[int]*ovs.Network
	containers map[string]*containerPeer
	order      []string // container creation order
	physical   *node.PhysicalNode

	ctx    context.Context
	logger util.Logger
}

// NewManager creates the session and the managers for networks and containers.
// A missing docker daemon only disables container peers.
func NewManager(cfg *config.Config) (*Manager, error) {
	b := broker.NewBroker()
	svc := services.NewManager()
	s, err := session.New(cfg.SessionRoot, b, svc)
	if err != nil {
		return nil, err
	}

	logger := util.GetLogger("manager")
	cm, err := node.NewContainerManager()
	if err != nil {
		logger.Warn().Err(err).Msg("container peers disabled")
	}

	return &Manager{
		cfg:        cfg,
		session:    s,
		om:         ovs.NewOvsManager(),
		broker:     b,
		services:   svc,
		cm:         cm,
		shaper:     link.DefaultShaper(),
		networks:   make(map[int]*ovs.Network),
		containers: make(map[string]*containerPeer),
		ctx:        context.Background(),
		logger:     logger,
	}, nil
}

// AddNetwork creates the bridge for n and makes it reachable by the broker.
func (m *Manager) AddNetwork(n api.Network) error {
	if _, existed := m.networks[n.ObjID]; existed {
		return fmt.Errorf("network %d already exists", n.ObjID)
	}
	network, err := m.om.NewNetwork(n)
	if err != nil {
		return err
	}
	if err := m.session.AddObject(network); err != nil {
		network.Shutdown()
		return err
	}
	m.networks[n.ObjID] = network
	m.broker.AddNetwork(network)
	return nil
}

// AddContainer starts a container peer on its network and shapes its link.
func (m *Manager) AddContainer(v api.VirtualNode) error {
	if m.cm == nil {
		return fmt.Errorf("container %s: %w", v.Name, ErrNoDocker)
	}
	if _, existed := m.containers[v.Name]; existed {
		return fmt.Errorf("container %s already exists", v.Name)
	}
	network, ok := m.networks[v.Network]
	if !ok {
		return fmt.Errorf("container %s: network %d not found", v.Name, v.Network)
	}

	netif, err := m.cm.AddNode(m.ctx, &v, network)
	if err != nil {
		return err
	}
	m.containers[v.Name] = &containerPeer{vnode: v, netif: netif}
	m.order = append(m.order, v.Name)

	if !v.Link.Empty() {
		if err := m.shaper.Config(netif, v.Link, true); err != nil {
			return fmt.Errorf("failed to shape link of %s: %w", v.Name, err)
		}
	}
	return nil
}

// AddPhysicalNode brings this host up as node p: node files, one tunneled
// interface per requested network with its shaping, then the services.
func (m *Manager) AddPhysicalNode(p api.PhysicalNode) error {
	if m.physical != nil {
		return fmt.Errorf("physical node %s already exists", m.physical.Name())
	}

	cfg := node.Config{
		ObjID:       p.ObjID,
		Name:        p.Name,
		NodeDir:     p.NodeDir,
		PrivateDirs: p.PrivateDirs,
		Shaper:      m.shaper,
	}
	cfg.ApplyTools(m.cfg)
	n := node.NewPhysicalNode(m.session, cfg)
	if err := m.session.AddObject(n); err != nil {
		return err
	}
	m.physical = n
	m.services.SetNodeServices(n.ObjID(), p.Services)
	n.Startup()

	for _, f := range p.Files {
		mode := f.Mode
		if mode == 0 {
			mode = defaultFileMode
		}
		if err := n.NodeFile(f.Path, f.Contents, mode); err != nil {
			return err
		}
	}

	for _, intf := range p.Interfaces {
		if err := m.addInterface(n, intf); err != nil {
			return err
		}
	}

	if err := n.Boot(); err != nil {
		return err
	}
	return n.Validate()
}

func (m *Manager) addInterface(n *node.PhysicalNode, intf api.NodeInterface) error {
	network, ok := m.networks[intf.Network]
	if !ok {
		return fmt.Errorf("interface on %s: network %d not found", n.Name(), intf.Network)
	}

	var hwaddr net.HardwareAddr
	if intf.Mac != "" {
		mac, err := util.ParseMac(intf.Mac)
		if err != nil {
			return err
		}
		hwaddr = mac
	}

	index, err := n.NewNetif(network, intf.Addresses, hwaddr, intf.Index, intf.Name)
	if err != nil {
		return err
	}
	if intf.Link.Empty() {
		return nil
	}
	netif, _ := n.Netif(index)
	return n.LinkConfig(netif, intf.Link, nil)
}

// Physical returns the physical node, nil before AddPhysicalNode.
func (m *Manager) Physical() *node.PhysicalNode {
	return m.physical
}

// Networks returns the networks ordered by id.
func (m *Manager) Networks() []*ovs.Network {
	out := make([]*ovs.Network, 0, len(m.networks))
	for _, obj := range m.session.Objects() {
		if network, ok := obj.(*ovs.Network); ok {
			out = append(out, network)
		}
	}
	return out
}

// Destroy shuts the physical node down, removes the containers and then
// the networks. Errors are logged.
func (m *Manager) Destroy() {
	if m.physical != nil {
		m.physical.Shutdown()
	}

	for i := len(m.order) - 1; i >= 0; i-- {
		peer := m.containers[m.order[i]]
		var network node.PortAttacher
		if nw, ok := m.networks[peer.vnode.Network]; ok {
			network = nw
		}
		if err := m.cm.DeleteNode(m.ctx, &peer.vnode, network); err != nil {
			m.logger.Error().Err(err).Str("container", peer.vnode.Name).Msg("failed to delete container")
		}
	}
	m.containers = make(map[string]*containerPeer)
	m.order = nil

	for id := range m.networks {
		m.broker.RemoveNetwork(id)
	}
	m.session.Shutdown()
	m.networks = make(map[int]*ovs.Network)
	m.physical = nil

	if m.cm != nil {
		if err := m.cm.Close(); err != nil {
			m.logger.Error().Err(err).Msg("failed to close docker client")
		}
		m.cm = nil
	}
}

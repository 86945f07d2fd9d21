package ovs

import (
	"fmt"
	"sort"
	"sync"

	"Pnode/api"
	"Pnode/pkg/node"
	"Pnode/pkg/util"

	"github.com/digitalocean/go-openvswitch/ovs"
)

const DefaultBridgePrefix = "pn-br"

// vswitch is the part of ovs.VSwitchService the networks use.
type vswitch interface {
	AddBridge(bridge string) error
	DeleteBridge(bridge string) error
	AddPort(bridge, port string) error
	DeletePort(bridge, port string) error
}

// OvsManager creates the bridges backing emulated networks.
type OvsManager struct {
	vs     vswitch
	logger util.Logger
}

func NewOvsManager() *OvsManager {
	c := ovs.New()
	return &OvsManager{
		vs:     c.VSwitch,
		logger: util.GetLogger("ovs"),
	}
}

// NewNetwork creates the bridge for cfg. The bridge defaults to pn-br<id>.
func (om *OvsManager) NewNetwork(cfg api.Network) (*Network, error) {
	bridge := cfg.Bridge
	if bridge == "" {
		bridge = fmt.Sprintf("%s%d", DefaultBridgePrefix, cfg.ObjID)
	}
	if err := om.vs.AddBridge(bridge); err != nil {
		return nil, fmt.Errorf("failed to create bridge %s: %w", bridge, err)
	}
	om.logger.Info().Int("network", cfg.ObjID).Str("bridge", bridge).Msg("bridge created")

	return &Network{
		objID:  cfg.ObjID,
		name:   cfg.Name,
		bridge: bridge,
		peer:   cfg.Tunnel,
		vs:     om.vs,
		ports:  make(map[string]*node.Netif),
		logger: om.logger.With().Int("network", cfg.ObjID).Logger(),
	}, nil
}

// Network is one emulated segment: an OVS bridge and the devices plugged into it.
type Network struct {
	objID  int
	name   string
	bridge string
	peer   *api.TunnelPeer
	vs     vswitch
	logger util.Logger

	mu    sync.Mutex
	ports map[string]*node.Netif // nil value: plain device such as a container veth
}

func (n *Network) ObjID() int            { return n.objID }
func (n *Network) Name() string          { return n.name }
func (n *Network) Bridge() string        { return n.bridge }
func (n *Network) Peer() *api.TunnelPeer { return n.peer }

// Attach plugs netif into the bridge.
func (n *Network) Attach(netif *node.Netif) error {
	if err := n.AttachPort(netif.LocalName); err != nil {
		return err
	}
	n.mu.Lock()
	n.ports[netif.LocalName] = netif
	n.mu.Unlock()
	netif.Net = n
	return nil
}

// Detach takes netif off the bridge. Failures are logged.
func (n *Network) Detach(netif *node.Netif) {
	if err := n.DetachPort(netif.LocalName); err != nil {
		n.logger.Error().Err(err).Str("port", netif.LocalName).Msg("detach failed")
	}
	if same, ok := netif.Net.(*Network); ok && same == n {
		netif.Net = nil
	}
}

// AttachPort plugs a host device into the bridge.
func (n *Network) AttachPort(device string) error {
	if err := n.vs.AddPort(n.bridge, device); err != nil {
		return fmt.Errorf("failed to add %s to bridge %s: %w", device, n.bridge, err)
	}
	n.mu.Lock()
	if _, ok := n.ports[device]; !ok {
		n.ports[device] = nil
	}
	n.mu.Unlock()
	return nil
}

// DetachPort removes a host device from the bridge.
func (n *Network) DetachPort(device string) error {
	n.mu.Lock()
	_, known := n.ports[device]
	delete(n.ports, device)
	n.mu.Unlock()

	if !known {
		return fmt.Errorf("port %s is not on bridge %s", device, n.bridge)
	}
	if err := n.vs.DeletePort(n.bridge, device); err != nil {
		return fmt.Errorf("failed to remove %s from bridge %s: %w", device, n.bridge, err)
	}
	return nil
}

// Ports lists the devices on the bridge.
func (n *Network) Ports() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.ports))
	for port := range n.ports {
		out = append(out, port)
	}
	sort.Strings(out)
	return out
}

// Shutdown deletes the bridge together with its ports.
func (n *Network) Shutdown() {
	n.mu.Lock()
	n.ports = make(map[string]*node.Netif)
	n.mu.Unlock()
	if err := n.vs.DeleteBridge(n.bridge); err != nil {
		n.logger.Error().Err(err).Str("bridge", n.bridge).Msg("failed to delete bridge")
	}
}

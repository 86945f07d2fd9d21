package pkg

import (
	"fmt"
	"io"
	"os"
	"strings"

	"Pnode/api"
	"Pnode/pkg/config"
	"Pnode/pkg/link"

	"gopkg.in/yaml.v3"
)

type Calculator struct {
	m   *Manager
	out io.Writer
}

func NewCalculator(cfg *config.Config) (*Calculator, error) {
	m, err := NewManager(cfg)
	if err != nil {
		return nil, err
	}
	return &Calculator{m: m, out: os.Stdout}, nil
}

// LoadTopoConfig reads and checks a topology file.
func LoadTopoConfig(filepath string) (*api.TopoConfig, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("error reading YAML file: %w", err)
	}

	var topoCfg api.TopoConfig
	if err = yaml.Unmarshal(data, &topoCfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling YAML file: %w", err)
	}
	if err = validateTopo(&topoCfg); err != nil {
		return nil, err
	}
	return &topoCfg, nil
}

// validateTopo checks that ids are unique and every reference names a network.
func validateTopo(topo *api.TopoConfig) error {
	ids := make(map[int]bool)
	for _, n := range topo.Networks {
		if ids[n.ObjID] {
			return fmt.Errorf("duplicate object id %d", n.ObjID)
		}
		ids[n.ObjID] = true
	}
	names := make(map[string]bool)
	for _, c := range topo.Containers {
		if names[c.Name] {
			return fmt.Errorf("duplicate container %s", c.Name)
		}
		names[c.Name] = true
		if !ids[c.Network] {
			return fmt.Errorf("container %s: network %d not found", c.Name, c.Network)
		}
	}
	if p := topo.Physical; p != nil {
		if ids[p.ObjID] {
			return fmt.Errorf("duplicate object id %d", p.ObjID)
		}
		for _, intf := range p.Interfaces {
			if !ids[intf.Network] {
				return fmt.Errorf("physical node %s: network %d not found", p.Name, intf.Network)
			}
		}
	}
	return nil
}

func (c *Calculator) ApplyTopoConfig(filepath string) error {
	topoCfg, err := LoadTopoConfig(filepath)
	if err != nil {
		return err
	}

	// Add networks
	for _, network := range topoCfg.Networks {
		if err = c.m.AddNetwork(network); err != nil {
			return err
		}
	}

	// Add container peers
	for _, container := range topoCfg.Containers {
		if err = c.m.AddContainer(container); err != nil {
			return err
		}
	}

	// Tunnel this host in
	if topoCfg.Physical != nil {
		if err = c.m.AddPhysicalNode(*topoCfg.Physical); err != nil {
			return err
		}
	}

	return nil
}

func (c *Calculator) Destroy() {
	c.m.Destroy()
}

func (c *Calculator) ShowNodes() {
	for _, network := range c.m.Networks() {
		fmt.Fprintf(c.out, "Network: %s, Id: %d, Bridge: %s, Ports: %s\n", network.Name(), network.ObjID(), network.Bridge(), strings.Join(network.Ports(), ","))
	}
	for _, name := range c.m.order {
		peer := c.m.containers[name]
		fmt.Fprintf(c.out, "Container: %s, Network: %d, IPv4: %s, NetNs: %s\n", peer.vnode.Name, peer.vnode.Network, peer.vnode.Ipv4, peer.vnode.NetNs)
	}
	if n := c.m.Physical(); n != nil {
		fmt.Fprintf(c.out, "Physical: %s, Id: %d, State: %s, Dir: %s, Mounts: %d\n", n.Name(), n.ObjID(), n.State(), n.NodeDir(), len(n.Mounts()))
	}
}

func (c *Calculator) ShowLinks() {
	n := c.m.Physical()
	if n == nil {
		return
	}
	for _, netif := range n.Netifs() {
		network := -1
		if netif.Net != nil {
			network = netif.Net.ObjID()
		}
		fmt.Fprintf(c.out, "Netif: %s, Index: %d, Device: %s, Network: %d, Addrs: %s, Mac: %s, %s\n",
			netif.Name, netif.Index, netif.LocalName, network, strings.Join(netif.Addrs(), ","), netif.HwAddr, formatParams(netif.LinkParams()))
	}
}

func formatParams(p *link.Params) string {
	var parts []string
	for _, key := range []string{link.ParamBandwidth, link.ParamDelay, link.ParamLoss, link.ParamDuplicate, link.ParamJitter} {
		if v, ok := p.Get(key); ok {
			parts = append(parts, fmt.Sprintf("%s: %g", key, v))
		}
	}
	if len(parts) == 0 {
		return "unshaped"
	}
	return strings.Join(parts, ", ")
}

// PrintTopo writes the class of elements of a parsed topology to w.
// class is one of networks, containers, physical or all.
func PrintTopo(w io.Writer, topo *api.TopoConfig, class string) error {
	all := class == "all"
	switch class {
	case "all", "networks", "containers", "physical":
	default:
		return fmt.Errorf("invalid class %q", class)
	}

	if all || class == "networks" {
		for _, n := range topo.Networks {
			remote := "-"
			if n.Tunnel != nil {
				remote = n.Tunnel.Remote
			}
			fmt.Fprintf(w, "Network: %s, Id: %d, Bridge: %s, Remote: %s\n", n.Name, n.ObjID, n.Bridge, remote)
		}
	}
	if all || class == "containers" {
		for _, c := range topo.Containers {
			fmt.Fprintf(w, "Container: %s, Image: %s, Network: %d, IPv4: %s\n", c.Name, c.Image, c.Network, c.Ipv4)
		}
	}
	if p := topo.Physical; p != nil && (all || class == "physical") {
		fmt.Fprintf(w, "Physical: %s, Id: %d, PrivateDirs: %s, Services: %d\n", p.Name, p.ObjID, strings.Join(p.PrivateDirs, ","), len(p.Services))
		for _, intf := range p.Interfaces {
			fmt.Fprintf(w, "  Interface: Network: %d, Addrs: %s, Mac: %s\n", intf.Network, strings.Join(intf.Addresses, ","), intf.Mac)
		}
	}
	return nil
}

// Validate checks the services of the physical node.
func (c *Calculator) Validate() error {
	n := c.m.Physical()
	if n == nil {
		return fmt.Errorf("no physical node")
	}
	return n.Validate()
}

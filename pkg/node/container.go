package node

import (
	"context"
	"fmt"
	"net"

	"Pnode/api"
	"Pnode/pkg/util"

	ns "github.com/containernetworking/plugins/pkg/ns"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/vishvananda/netlink"
)

const (
	NodeVethSuffix  = "-veth0"
	HostVethSuffix  = "-br"
	ContainerIfName = "eth0"
	DefaultImage    = "frr:v4"
)

// PortAttacher plugs a host device into an emulated network.
type PortAttacher interface {
	AttachPort(device string) error
	DetachPort(device string) error
}

// ContainerManager runs virtual peer nodes as containers, each wired by a
// veth pair into one emulated network.
// seq gives every container a unique id and never decreases.
type ContainerManager struct {
	dClient *client.Client
	seq     int
	logger  util.Logger
}

func NewContainerManager() (*ContainerManager, error) {
	dClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &ContainerManager{
		dClient: dClient,
		seq:     1,
		logger:  util.GetLogger("containers"),
	}, nil
}

// AddNode creates and starts the container for n, then links it into network.
// The returned Netif is the container side of the link, usable as a shaping target.
func (cm *ContainerManager) AddNode(ctx context.Context, n *api.VirtualNode, network PortAttacher) (*Netif, error) {
	uid := cm.seq
	cm.seq++
	if n.Image == "" {
		n.Image = DefaultImage
	}
	if !util.CheckValidIpv4(n.Ipv4) {
		return nil, fmt.Errorf("%w: node %s has invalid ipv4 address %q", ErrInvalidArgument, n.Name, n.Ipv4)
	}

	sysctls := map[string]string{
		"net.ipv4.ip_forward":          "1",
		"net.ipv6.conf.all.forwarding": "1",
	}
	_, err := cm.dClient.ContainerCreate(ctx, &container.Config{
		Image:           n.Image,
		NetworkDisabled: true,
		User:            "root",
		Labels:          map[string]string{"pnode.uid": fmt.Sprint(uid)},
	}, &container.HostConfig{
		Privileged: true,
		Sysctls:    sysctls,
	}, nil, nil, n.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container %s: %w", n.Name, err)
	}

	if err := cm.dClient.ContainerStart(ctx, n.Name, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container %s: %w", n.Name, err)
	}

	res, err := cm.dClient.ContainerInspect(ctx, n.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container %s: %w", n.Name, err)
	}
	n.NetNs = fmt.Sprintf("/proc/%d/ns/net", res.State.Pid)
	cm.logger.Info().Str("node", n.Name).Str("netns", n.NetNs).Msg("container started")

	return cm.linkNode(n, network)
}

// linkNode creates a veth pair, moves one end into the container as eth0
// with the node address, and attaches the other end to the network.
func (cm *ContainerManager) linkNode(n *api.VirtualNode, network PortAttacher) (*Netif, error) {
	vethContainer := n.Name + NodeVethSuffix
	vethHost := n.Name + HostVethSuffix
	if err := checkIfName(vethContainer); err != nil {
		return nil, err
	}
	if err := checkIfName(vethHost); err != nil {
		return nil, err
	}

	attrs := netlink.NewLinkAttrs()
	attrs.Name = vethHost
	attrs.MTU = DefaultMTU
	attrs.Flags = net.FlagUp
	veth := &netlink.Veth{LinkAttrs: attrs, PeerName: vethContainer}
	if err := netlink.LinkAdd(veth); err != nil {
		return nil, fmt.Errorf("failed to create veth pair %s: %w", vethHost, err)
	}

	hostLink, err := netlink.LinkByName(vethHost)
	if err != nil {
		return nil, fmt.Errorf("failed to get link by name %s: %w", vethHost, err)
	}
	if err := netlink.LinkSetUp(hostLink); err != nil {
		return nil, fmt.Errorf("failed to set link up %s: %w", vethHost, err)
	}

	containerLink, err := netlink.LinkByName(vethContainer)
	if err != nil {
		return nil, fmt.Errorf("failed to get link by name %s: %w", vethContainer, err)
	}

	containerNs, err := ns.GetNS(n.NetNs)
	if err != nil {
		return nil, fmt.Errorf("failed to get namespace for container: %w", err)
	}
	defer containerNs.Close()

	if err := netlink.LinkSetNsFd(containerLink, int(containerNs.Fd())); err != nil {
		return nil, fmt.Errorf("failed to set namespace for veth: %w", err)
	}

	err = containerNs.Do(func(_ ns.NetNS) error {
		link, err := netlink.LinkByName(vethContainer)
		if err != nil {
			return fmt.Errorf("failed to get link in container namespace: %w", err)
		}
		if err := netlink.LinkSetName(link, ContainerIfName); err != nil {
			return fmt.Errorf("failed to rename %s: %w", vethContainer, err)
		}
		addr, err := netlink.ParseAddr(n.Ipv4)
		if err != nil {
			return fmt.Errorf("failed to parse address %s: %w", n.Ipv4, err)
		}
		if err := netlink.AddrAdd(link, addr); err != nil {
			return fmt.Errorf("failed to add address to link: %w", err)
		}
		if err := netlink.LinkSetUp(link); err != nil {
			return fmt.Errorf("failed to set link up: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure container namespace: %w", err)
	}

	if err := network.AttachPort(vethHost); err != nil {
		return nil, err
	}

	netif := NewNamespacedNetif(ContainerIfName, n.NetNs, DefaultMTU)
	netif.addAddr(n.Ipv4)
	return netif, nil
}

// DeleteNode removes the container; its veth pair goes with the namespace.
func (cm *ContainerManager) DeleteNode(ctx context.Context, n *api.VirtualNode, network PortAttacher) error {
	if network != nil {
		if err := network.DetachPort(n.Name + HostVethSuffix); err != nil {
			cm.logger.Warn().Err(err).Str("node", n.Name).Msg("failed to detach port")
		}
	}
	if err := cm.dClient.ContainerRemove(ctx, n.Name, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove container %s: %w", n.Name, err)
	}
	return nil
}

// Close releases the docker client.
func (cm *ContainerManager) Close() error {
	return cm.dClient.Close()
}

package api

// Network is one emulated segment, backed by an OVS bridge on this host.
type Network struct {
	ObjID  int         `yaml:"id"`
	Name   string      `yaml:"name"`
	Bridge string      `yaml:"bridge,omitempty"` // default pn-br<id>
	Tunnel *TunnelPeer `yaml:"tunnel,omitempty"`
}

// TunnelPeer is the GRE endpoint pair the broker uses to reach a network
// hosted by another emulation server.
type TunnelPeer struct {
	Local  string `yaml:"local"`
	Remote string `yaml:"remote"`
	Key    uint32 `yaml:"key"`
	TTL    uint8  `yaml:"ttl,omitempty"`
}

// TopoConfig is the topology file applied by the calculator.
type TopoConfig struct {
	Networks   []Network     `yaml:"networks"`
	Containers []VirtualNode `yaml:"containers"`
	Physical   *PhysicalNode `yaml:"physical"`
}

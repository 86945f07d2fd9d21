package node

// Broker builds tunnels between emulation hosts.
type Broker interface {
	// AddNetTunnel returns the tunnels built towards network netID.
	// Callers in this package expect exactly one.
	AddNetTunnel(netID int) ([]*Netif, error)
}

// Network is an emulated segment a tunnel may be attached to.
type Network interface {
	ObjID() int
	// Detach removes netif from the network's own bookkeeping.
	Detach(netif *Netif)
}

// ServiceNode is what the service manager needs from a node to boot it.
type ServiceNode interface {
	ObjID() int
	Name() string
	NodeDir() string
	NodeFile(filename, contents string, mode uint32) error
	Cmd(args []string, wait bool) error
	CmdResult(args []string) (int, []byte, error)
	ShCmd(cmdstr string) error
	ShCmdResult(cmdstr string) (int, []byte, error)
}

// ServiceManager boots and validates the services configured for a node.
type ServiceManager interface {
	BootNodeServices(n ServiceNode) error
	ValidateNodeServices(n ServiceNode) error
}

// Session owns the node and provides its collaborators.
type Session interface {
	ID() string
	Dir() string
	Broker() Broker
	Services() ServiceManager
}

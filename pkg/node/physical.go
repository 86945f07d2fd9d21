package node

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"Pnode/api"
	"Pnode/pkg/config"
	"Pnode/pkg/link"
	"Pnode/pkg/util"
)

// State is the lifecycle position of a node.
type State int

const (
	StateUninitialized State = iota
	StateUp
	StateShuttingDown
	StateDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateUp:
		return "up"
	case StateShuttingDown:
		return "shutting-down"
	case StateDown:
		return "down"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// LinkShaper applies link parameters to a device.
type LinkShaper interface {
	Config(t link.Target, p api.LinkProperties, up bool) error
}

// Mount is one active bind mount.
type Mount struct {
	Source string // host directory
	Target string // path seen by the node
}

// Config configures a PhysicalNode. Zero values fall back to defaults.
type Config struct {
	ObjID       int
	Name        string
	NodeDir     string // default <session dir>/<name>.conf
	PrivateDirs []string
	Start       bool

	IPBin     string
	MountBin  string
	UmountBin string
	Shell     string

	Runner Runner
	Shaper LinkShaper
}

// ApplyTools copies binary paths and the command timeout from the tool configuration.
func (c *Config) ApplyTools(tools *config.Config) {
	c.IPBin = tools.IPBin
	c.MountBin = tools.MountBin
	c.UmountBin = tools.UmountBin
	c.Shell = tools.Shell
	if c.Runner == nil {
		c.Runner = ExecRunner{Timeout: tools.CommandTimeout}
	}
}

// PhysicalNode is a real host taking part in the emulation as one node.
//
// mu serializes lifecycle transitions, index allocation, interface adoption
// and changes to the mount list.
type PhysicalNode struct {
	objID       int
	name        string
	nodeDir     string
	privateDirs []string
	session     Session

	mu      sync.Mutex
	state   State
	mounts  []Mount
	netifs  map[int]*Netif
	ifIndex int

	ipBin     string
	mountBin  string
	umountBin string
	shell     string
	runner    Runner
	shaper    LinkShaper
	logger    util.Logger
}

// NewPhysicalNode creates the node and, if cfg.Start is set, starts it.
func NewPhysicalNode(session Session, cfg Config) *PhysicalNode {
	if cfg.Name == "" {
		cfg.Name = fmt.Sprintf("n%d", cfg.ObjID)
	}
	if cfg.NodeDir == "" {
		base := os.TempDir()
		if session != nil {
			base = session.Dir()
		}
		cfg.NodeDir = filepath.Join(base, cfg.Name+".conf")
	}
	defaults := config.NewDefaultConfig()
	if cfg.IPBin == "" {
		cfg.IPBin = defaults.IPBin
	}
	if cfg.MountBin == "" {
		cfg.MountBin = defaults.MountBin
	}
	if cfg.UmountBin == "" {
		cfg.UmountBin = defaults.UmountBin
	}
	if cfg.Shell == "" {
		cfg.Shell = defaults.Shell
	}
	if cfg.Runner == nil {
		cfg.Runner = ExecRunner{Timeout: defaults.CommandTimeout}
	}
	if cfg.Shaper == nil {
		cfg.Shaper = link.DefaultShaper()
	}

	logger := util.GetLogger("physical-node")
	n := &PhysicalNode{
		objID:       cfg.ObjID,
		name:        cfg.Name,
		nodeDir:     cfg.NodeDir,
		privateDirs: cfg.PrivateDirs,
		session:     session,
		netifs:      make(map[int]*Netif),
		ipBin:       cfg.IPBin,
		mountBin:    cfg.MountBin,
		umountBin:   cfg.UmountBin,
		shell:       cfg.Shell,
		runner:      cfg.Runner,
		shaper:      cfg.Shaper,
		logger:      logger.With().Str("node", cfg.Name).Int("objid", cfg.ObjID).Logger(),
	}
	if cfg.Start {
		n.Startup()
	}
	return n
}

func (n *PhysicalNode) ObjID() int      { return n.objID }
func (n *PhysicalNode) Name() string    { return n.name }
func (n *PhysicalNode) NodeDir() string { return n.nodeDir }

// State returns the current lifecycle state.
func (n *PhysicalNode) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Up reports whether changes are applied to the live OS.
func (n *PhysicalNode) Up() bool {
	return n.State() == StateUp
}

// Startup creates the node directory and the configured private directories.
// Directory errors are logged; the node comes up regardless.
func (n *PhysicalNode) Startup() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state != StateUninitialized {
		n.logger.Warn().Stringer("state", n.state).Msg("startup ignored")
		return
	}

	if err := os.MkdirAll(n.nodeDir, 0o755); err != nil {
		n.logger.Error().Err(err).Str("dir", n.nodeDir).Msg("startup error")
	}
	n.state = StateUp

	for _, dir := range n.privateDirs {
		if err := n.privateDirLocked(dir); err != nil {
			n.logger.Error().Err(err).Str("path", dir).Msg("private directory skipped")
		}
	}
	n.logger.Info().Str("dir", n.nodeDir).Msg("node started")
}

// Shutdown unmounts every private mount in reverse order, shuts every
// interface down and removes the node directory. A node that is not up is
// left alone, so calling Shutdown again does nothing.
func (n *PhysicalNode) Shutdown() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state != StateUp {
		return
	}
	n.state = StateShuttingDown

	for len(n.mounts) > 0 {
		last := n.mounts[len(n.mounts)-1]
		n.mounts = n.mounts[:len(n.mounts)-1]
		_ = n.umount(last.Target)
	}

	for index, netif := range n.netifs {
		if err := netif.Shutdown(); err != nil {
			n.logger.Error().Err(err).Int("ifindex", index).Msg("interface shutdown failed")
		}
	}
	n.netifs = make(map[int]*Netif)

	if err := os.RemoveAll(n.nodeDir); err != nil {
		n.logger.Error().Err(err).Str("dir", n.nodeDir).Msg("error removing node directory")
	}

	n.state = StateDown
	n.logger.Info().Msg("node shut down")
}

// Boot starts the node's services through the session.
func (n *PhysicalNode) Boot() error {
	if n.session == nil || n.session.Services() == nil {
		return fmt.Errorf("%w: node %s has no service manager", ErrConfiguration, n.name)
	}
	return n.session.Services().BootNodeServices(n)
}

// Validate checks the node's services through the session.
func (n *PhysicalNode) Validate() error {
	if n.session == nil || n.session.Services() == nil {
		return fmt.Errorf("%w: node %s has no service manager", ErrConfiguration, n.name)
	}
	return n.session.Services().ValidateNodeServices(n)
}

// NewIfIndex returns the lowest unused interface index at or above the
// counter, and moves the counter past it.
func (n *PhysicalNode) NewIfIndex() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.newIfIndexLocked()
}

func (n *PhysicalNode) newIfIndexLocked() int {
	for {
		if _, used := n.netifs[n.ifIndex]; !used {
			break
		}
		n.ifIndex++
	}
	index := n.ifIndex
	n.ifIndex++
	return index
}

// Netif returns the interface at index.
func (n *PhysicalNode) Netif(index int) (*Netif, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	netif, ok := n.netifs[index]
	return netif, ok
}

// Netifs returns the interfaces ordered by index.
func (n *PhysicalNode) Netifs() []*Netif {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]*Netif, 0, len(n.netifs))
	for _, netif := range n.netifs {
		out = append(out, netif)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Mounts returns the active mounts in creation order.
func (n *PhysicalNode) Mounts() []Mount {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Mount(nil), n.mounts...)
}

// LinkConfig shapes netif through the shared shaper. peer is accepted for
// parity with bridge networks; token bucket and netem shaping ignore it.
func (n *PhysicalNode) LinkConfig(netif *Netif, p api.LinkProperties, peer *Netif) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if peer != nil {
		n.logger.Debug().Str("peer", peer.Name).Msg("peer interface not used for shaping")
	}
	if err := n.shaper.Config(netif, p, n.state == StateUp); err != nil {
		n.logger.Error().Err(err).Str("netif", netif.Name).Msg("link config failed")
		return err
	}
	return nil
}

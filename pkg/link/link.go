package link

import (
	"fmt"
	"sync"

	"Pnode/api"
	"Pnode/pkg/util"

	ns "github.com/containernetworking/plugins/pkg/ns"
	"github.com/vishvananda/netlink"
)

// Target is anything with a device that can carry queueing disciplines.
type Target interface {
	DeviceName() string
	// Namespace is the netns path holding the device, or "" for the current namespace.
	Namespace() string
	DeviceMTU() int
	LinkParams() *Params
}

// qdiscOps is the subset of netlink used by the shaper.
type qdiscOps interface {
	LinkByName(name string) (netlink.Link, error)
	QdiscReplace(qdisc netlink.Qdisc) error
	QdiscDel(qdisc netlink.Qdisc) error
}

type netlinkOps struct{}

func (netlinkOps) LinkByName(name string) (netlink.Link, error) { return netlink.LinkByName(name) }

func (netlinkOps) QdiscReplace(q netlink.Qdisc) error { return netlink.QdiscReplace(q) }

func (netlinkOps) QdiscDel(q netlink.Qdisc) error { return netlink.QdiscDel(q) }

// Shaper applies bandwidth, delay, loss, duplication and jitter to a device.
// It keeps no state of its own: what is installed on a device is recorded in
// the target's Params, so one Shaper can serve every node type.
type Shaper struct {
	ops    qdiscOps
	logger util.Logger
}

var (
	defaultShaper     *Shaper
	defaultShaperOnce sync.Once
)

// NewShaper returns a shaper backed by netlink.
func NewShaper() *Shaper {
	return &Shaper{
		ops:    netlinkOps{},
		logger: util.GetLogger("shaper"),
	}
}

// DefaultShaper returns the process-wide netlink shaper.
func DefaultShaper() *Shaper {
	defaultShaperOnce.Do(func() {
		defaultShaper = NewShaper()
	})
	return defaultShaper
}

// Config brings the queueing disciplines of t in line with p. When up is false
// only the recorded parameters change; nothing is sent to the kernel.
// Otherwise the target's Params change only once every qdisc change succeeded.
func (s *Shaper) Config(t Target, p api.LinkProperties, up bool) error {
	state := t.LinkParams().clone()
	plan := s.plan(t, &state, p)
	if len(plan) == 0 || !up {
		*t.LinkParams() = state
		return nil
	}

	err := inNamespace(t.Namespace(), func() error {
		link, err := s.ops.LinkByName(t.DeviceName())
		if err != nil {
			return fmt.Errorf("failed to get link by name %s: %w", t.DeviceName(), err)
		}
		index := link.Attrs().Index
		for _, step := range plan {
			if err := step(index); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	*t.LinkParams() = state
	return nil
}

// inNamespace runs fn inside the network namespace at path.
func inNamespace(path string, fn func() error) error {
	if path == "" {
		return fn()
	}
	target, err := ns.GetNS(path)
	if err != nil {
		return fmt.Errorf("failed to get namespace %s: %w", path, err)
	}
	defer target.Close()

	return target.Do(func(_ ns.NetNS) error {
		return fn()
	})
}

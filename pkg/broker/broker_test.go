package broker

import (
	"errors"
	"testing"

	"Pnode/api"
	"Pnode/pkg/node"
	"Pnode/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"
)

type fakeOps struct {
	added   []*netlink.Gretap
	deleted []string
	upErr   error
}

func (f *fakeOps) LinkAdd(link netlink.Link) error {
	f.added = append(f.added, link.(*netlink.Gretap))
	return nil
}

func (f *fakeOps) LinkSetUp(netlink.Link) error { return f.upErr }

func (f *fakeOps) LinkDel(link netlink.Link) error {
	f.deleted = append(f.deleted, link.Attrs().Name)
	return nil
}

type fakeNetwork struct {
	id        int
	peer      *api.TunnelPeer
	attached  []*node.Netif
	attachErr error
}

func (f *fakeNetwork) ObjID() int            { return f.id }
func (f *fakeNetwork) Detach(*node.Netif)    {}
func (f *fakeNetwork) Peer() *api.TunnelPeer { return f.peer }

func (f *fakeNetwork) Attach(n *node.Netif) error {
	if f.attachErr != nil {
		return f.attachErr
	}
	f.attached = append(f.attached, n)
	return nil
}

func newTestBroker() (*Broker, *fakeOps) {
	ops := &fakeOps{}
	return &Broker{ops: ops, logger: util.GetLogger("broker-test"), networks: make(map[int]Network)}, ops
}

func TestAddNetTunnel(t *testing.T) {
	b, ops := newTestBroker()
	network := &fakeNetwork{id: 4, peer: &api.TunnelPeer{Local: "192.0.2.1", Remote: "192.0.2.2", Key: 77, TTL: 64}}
	b.AddNetwork(network)

	tunnels, err := b.AddNetTunnel(4)
	require.NoError(t, err)
	require.Len(t, tunnels, 1)

	gt := tunnels[0]
	assert.Equal(t, "gt.4.1", gt.LocalName)
	assert.True(t, gt.Started())
	assert.Equal(t, []*node.Netif{gt}, network.attached)

	require.Len(t, ops.added, 1)
	assert.Equal(t, "192.0.2.2", ops.added[0].Remote.String())
	assert.Equal(t, uint32(77), ops.added[0].IKey)
	assert.Equal(t, uint32(77), ops.added[0].OKey)
	assert.Equal(t, node.GreTapMTU, ops.added[0].MTU)

	require.NoError(t, gt.Shutdown())
	assert.Equal(t, []string{"gt.4.1"}, ops.deleted)

	second, err := b.AddNetTunnel(4)
	require.NoError(t, err)
	assert.Equal(t, "gt.4.2", second[0].LocalName)
}

func TestAddNetTunnel_NoPeer(t *testing.T) {
	b, ops := newTestBroker()
	b.AddNetwork(&fakeNetwork{id: 1})

	tunnels, err := b.AddNetTunnel(1)
	require.NoError(t, err)
	assert.Empty(t, tunnels)
	assert.Empty(t, ops.added)
}

func TestAddNetTunnel_Errors(t *testing.T) {
	b, ops := newTestBroker()

	_, err := b.AddNetTunnel(9)
	assert.ErrorContains(t, err, "unknown network")

	b.AddNetwork(&fakeNetwork{id: 2, peer: &api.TunnelPeer{Local: "x", Remote: "192.0.2.2"}})
	_, err = b.AddNetTunnel(2)
	assert.ErrorContains(t, err, "invalid tunnel endpoints")

	b.AddNetwork(&fakeNetwork{
		id:        3,
		peer:      &api.TunnelPeer{Local: "192.0.2.1", Remote: "192.0.2.2"},
		attachErr: errors.New("no bridge"),
	})
	_, err = b.AddNetTunnel(3)
	assert.ErrorContains(t, err, "no bridge")
	assert.Equal(t, []string{"gt.3.1"}, ops.deleted, "half-built tunnel is removed")

	ops.upErr = errors.New("busy")
	_, err = b.AddNetTunnel(3)
	assert.ErrorContains(t, err, "busy")
	assert.Equal(t, []string{"gt.3.1", "gt.3.2"}, ops.deleted)

	b.RemoveNetwork(3)
	_, err = b.AddNetTunnel(3)
	assert.ErrorContains(t, err, "unknown network")
}

package ovs

import (
	"errors"
	"testing"

	"Pnode/api"
	"Pnode/pkg/node"
	"Pnode/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVSwitch struct {
	calls   []string
	failAdd bool
}

func (f *fakeVSwitch) AddBridge(bridge string) error {
	f.calls = append(f.calls, "add-br "+bridge)
	return nil
}

func (f *fakeVSwitch) DeleteBridge(bridge string) error {
	f.calls = append(f.calls, "del-br "+bridge)
	return nil
}

func (f *fakeVSwitch) AddPort(bridge, port string) error {
	f.calls = append(f.calls, "add-port "+bridge+" "+port)
	if f.failAdd {
		return errors.New("ovs-vsctl: exit status 1")
	}
	return nil
}

func (f *fakeVSwitch) DeletePort(bridge, port string) error {
	f.calls = append(f.calls, "del-port "+bridge+" "+port)
	return nil
}

func newTestManager() (*OvsManager, *fakeVSwitch) {
	vs := &fakeVSwitch{}
	return &OvsManager{vs: vs, logger: util.GetLogger("ovs-test")}, vs
}

func TestNewNetwork_DefaultBridge(t *testing.T) {
	om, vs := newTestManager()

	net, err := om.NewNetwork(api.Network{ObjID: 3, Name: "lan"})
	require.NoError(t, err)
	assert.Equal(t, "pn-br3", net.Bridge())
	assert.Equal(t, 3, net.ObjID())
	assert.Equal(t, []string{"add-br pn-br3"}, vs.calls)

	named, err := om.NewNetwork(api.Network{ObjID: 4, Bridge: "core0"})
	require.NoError(t, err)
	assert.Equal(t, "core0", named.Bridge())
}

func TestNetwork_AttachDetach(t *testing.T) {
	om, vs := newTestManager()
	net, err := om.NewNetwork(api.Network{ObjID: 1})
	require.NoError(t, err)

	tunnel := node.NewTunnel("gt.1.1", node.GreTapMTU, nil)
	require.NoError(t, net.Attach(tunnel))
	require.NoError(t, net.AttachPort("n1-br"))
	assert.Equal(t, []string{"gt.1.1", "n1-br"}, net.Ports())
	assert.Equal(t, net, tunnel.Net)

	net.Detach(tunnel)
	assert.Nil(t, tunnel.Net)
	assert.Equal(t, []string{"n1-br"}, net.Ports())

	assert.Error(t, net.DetachPort("nope"))

	net.Shutdown()
	assert.Empty(t, net.Ports())
	assert.Equal(t, []string{
		"add-br pn-br1",
		"add-port pn-br1 gt.1.1",
		"add-port pn-br1 n1-br",
		"del-port pn-br1 gt.1.1",
		"del-br pn-br1",
	}, vs.calls)
}

func TestNetwork_AttachFailure(t *testing.T) {
	om, vs := newTestManager()
	net, err := om.NewNetwork(api.Network{ObjID: 1})
	require.NoError(t, err)
	vs.failAdd = true

	tunnel := node.NewTunnel("gt.1.1", node.GreTapMTU, nil)
	assert.Error(t, net.Attach(tunnel))
	assert.Empty(t, net.Ports())
	assert.Nil(t, tunnel.Net)
}

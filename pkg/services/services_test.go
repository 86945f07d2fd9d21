package services

import (
	"errors"
	"strings"
	"testing"

	"Pnode/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNode struct {
	files   map[string]string
	modes   map[string]uint32
	cmds    []string
	status  map[string]int
	fileErr error
}

func newFakeNode() *fakeNode {
	return &fakeNode{files: map[string]string{}, modes: map[string]uint32{}, status: map[string]int{}}
}

func (f *fakeNode) ObjID() int      { return 7 }
func (f *fakeNode) Name() string    { return "phys" }
func (f *fakeNode) NodeDir() string { return "/tmp/phys.conf" }

func (f *fakeNode) NodeFile(filename, contents string, mode uint32) error {
	if f.fileErr != nil {
		return f.fileErr
	}
	f.files[filename] = contents
	f.modes[filename] = mode
	return nil
}

func (f *fakeNode) Cmd(args []string, _ bool) error {
	f.cmds = append(f.cmds, strings.Join(args, " "))
	return nil
}

func (f *fakeNode) CmdResult(args []string) (int, []byte, error) {
	cmd := strings.Join(args, " ")
	f.cmds = append(f.cmds, cmd)
	return f.status[cmd], nil, nil
}

func (f *fakeNode) ShCmd(cmdstr string) error {
	return f.Cmd([]string{"/bin/ash", "-c", cmdstr}, true)
}

func (f *fakeNode) ShCmdResult(cmdstr string) (int, []byte, error) {
	return f.CmdResult([]string{"/bin/ash", "-c", cmdstr})
}

func TestBootNodeServices_StartOrder(t *testing.T) {
	m := NewManager()
	m.SetNodeServices(7, []api.Service{
		{Name: "ospfd", StartIndex: 35, Startup: []string{"ospfd -d"}},
		{Name: "zebra", StartIndex: 30, Startup: []string{"zebra -d"}},
		{Name: "ipforward", StartIndex: 5, Startup: []string{"sysctl -w net.ipv4.ip_forward=1"}},
		{Name: "bgpd", StartIndex: 35, Startup: []string{"bgpd -d"}},
	})
	n := newFakeNode()

	require.NoError(t, m.BootNodeServices(n))

	script := n.files[StartupScript]
	assert.True(t, strings.HasPrefix(script, "#!/bin/sh\n# auto-generated by Startup\n\nexec > startup.log 2>&1\n\n"))
	order := []string{"sysctl -w", "zebra -d", "ospfd -d", "bgpd -d"}
	last := -1
	for _, line := range order {
		pos := strings.Index(script, line)
		require.NotEqual(t, -1, pos, line)
		assert.Greater(t, pos, last, "%s out of order", line)
		last = pos
	}
	assert.Equal(t, uint32(0o755), n.modes[StartupScript])
	assert.Equal(t, []string{"/bin/ash -c . ./startup.sh"}, n.cmds, "the node's shell runs the script")
}

func TestBootNodeServices_WriteFailure(t *testing.T) {
	m := NewManager()
	n := newFakeNode()
	n.fileErr = errors.New("read-only")

	assert.ErrorContains(t, m.BootNodeServices(n), "read-only")
	assert.Empty(t, n.cmds)
}

func TestValidateNodeServices(t *testing.T) {
	m := NewManager()
	m.SetNodeServices(7, []api.Service{
		{Name: "zebra", StartIndex: 1, Validate: []string{"pidof zebra"}},
		{Name: "ospfd", StartIndex: 2, Validate: []string{"pidof ospfd"}},
	})
	n := newFakeNode()

	require.NoError(t, m.ValidateNodeServices(n))
	assert.Equal(t, []string{"/bin/ash -c pidof zebra", "/bin/ash -c pidof ospfd"}, n.cmds)

	n.cmds = nil
	n.status["/bin/ash -c pidof zebra"] = 1
	err := m.ValidateNodeServices(n)
	assert.ErrorContains(t, err, "zebra")
	assert.Len(t, n.cmds, 1, "validation stops at the first failure")
}

func TestNodeServices_Copy(t *testing.T) {
	m := NewManager()
	services := []api.Service{{Name: "a"}}
	m.SetNodeServices(1, services)
	services[0].Name = "changed"

	assert.Equal(t, "a", m.NodeServices(1)[0].Name)
	assert.Empty(t, m.NodeServices(2))
}

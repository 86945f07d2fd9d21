package pkg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"Pnode/api"
	"Pnode/pkg/link"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTopo(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "topo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadTopoConfig_Example(t *testing.T) {
	topo, err := LoadTopoConfig(filepath.Join("..", "example", "topo.yaml"))
	require.NoError(t, err)

	require.Len(t, topo.Networks, 2)
	require.NotNil(t, topo.Networks[0].Tunnel)
	assert.Equal(t, "192.168.10.1", topo.Networks[0].Tunnel.Remote)
	assert.Nil(t, topo.Networks[1].Tunnel)

	require.Len(t, topo.Containers, 1)
	require.NotNil(t, topo.Containers[0].Link.Delay)
	assert.Equal(t, uint32(5000), *topo.Containers[0].Link.Delay)

	p := topo.Physical
	require.NotNil(t, p)
	assert.Equal(t, 10, p.ObjID)
	assert.Equal(t, []string{"/var/run/frr"}, p.PrivateDirs)
	require.Len(t, p.Interfaces, 1)
	intf := p.Interfaces[0]
	assert.Nil(t, intf.Index)
	assert.Equal(t, []string{"10.0.1.2/24"}, intf.Addresses)
	require.NotNil(t, intf.Link.Loss)
	assert.InDelta(t, 0.5, *intf.Link.Loss, 1e-6)
	assert.Nil(t, intf.Link.Duplicate)
	require.Len(t, p.Services, 2)
	assert.Equal(t, "zebra=yes\nospfd=yes\n", p.Files[0].Contents)
}

func TestLoadTopoConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		topo string
		want string
	}{
		{
			name: "duplicate network",
			topo: "networks:\n  - id: 1\n  - id: 1\n",
			want: "duplicate object id 1",
		},
		{
			name: "container on unknown network",
			topo: "networks:\n  - id: 1\ncontainers:\n  - name: r1\n    network: 2\n",
			want: "network 2 not found",
		},
		{
			name: "physical id clashes with network",
			topo: "networks:\n  - id: 1\nphysical:\n  id: 1\n",
			want: "duplicate object id 1",
		},
		{
			name: "interface on unknown network",
			topo: "physical:\n  id: 5\n  name: p\n  interfaces:\n    - network: 3\n",
			want: "network 3 not found",
		},
		{
			name: "not yaml",
			topo: "networks: [",
			want: "error unmarshaling YAML file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTopoConfig(writeTopo(t, tt.topo))
			assert.ErrorContains(t, err, tt.want)
		})
	}

	_, err := LoadTopoConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "error reading YAML file")
}

func TestValidateTopo_Empty(t *testing.T) {
	assert.NoError(t, validateTopo(&api.TopoConfig{}))
}

func TestFormatParams(t *testing.T) {
	var p link.Params
	assert.Equal(t, "unshaped", formatParams(&p))

	p.Set(link.ParamDelay, 20000)
	p.Set(link.ParamBandwidth, 1e7)
	assert.Equal(t, "bw: 1e+07, delay: 20000", formatParams(&p))
}

func TestPrintTopo(t *testing.T) {
	topo, err := LoadTopoConfig(filepath.Join("..", "example", "topo.yaml"))
	require.NoError(t, err)

	var b strings.Builder
	require.NoError(t, PrintTopo(&b, topo, "networks"))
	assert.Equal(t, "Network: lan1, Id: 1, Bridge: , Remote: 192.168.10.1\nNetwork: lan2, Id: 2, Bridge: pn-lan2, Remote: -\n", b.String())

	b.Reset()
	require.NoError(t, PrintTopo(&b, topo, "all"))
	assert.Contains(t, b.String(), "Container: r1, Image: frr:v4, Network: 2, IPv4: 10.0.2.10/24")
	assert.Contains(t, b.String(), "Physical: phys, Id: 10, PrivateDirs: /var/run/frr, Services: 2")
	assert.Contains(t, b.String(), "  Interface: Network: 1, Addrs: 10.0.1.2/24, Mac: 00:00:00:aa:00:01")

	assert.ErrorContains(t, PrintTopo(&b, topo, "links"), "invalid class")
}

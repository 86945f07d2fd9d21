package node

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrivateDir_Relative(t *testing.T) {
	n, runner, _ := newTestNode(t, true)

	err := n.PrivateDir("relative/path")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, n.PrivateDir("/"), ErrInvalidArgument)
	assert.Empty(t, n.Mounts())
	assert.Empty(t, runner.commands())
}

func TestPrivateDir_Absolute(t *testing.T) {
	n, runner, _ := newTestNode(t, true)
	path := filepath.Join(t.TempDir(), "var", "log")

	require.NoError(t, n.PrivateDir(path))

	mounts := n.Mounts()
	require.Len(t, mounts, 1)
	assert.Equal(t, path, mounts[0].Target)

	flat := strings.ReplaceAll(strings.Trim(path, "/"), "/", ".")
	hostPath := filepath.Join(n.NodeDir(), flat)
	assert.Equal(t, hostPath, mounts[0].Source)
	assert.DirExists(t, hostPath)
	assert.DirExists(t, path)
	assert.Equal(t, []string{"mount --bind " + hostPath + " " + path}, runner.commands())
}

func TestMount_FailureNotRecorded(t *testing.T) {
	n, runner, _ := newTestNode(t, true)
	runner.fail = func(args []string) bool { return args[0] == "mount" }

	n.Mount(t.TempDir(), filepath.Join(t.TempDir(), "x"))
	assert.Empty(t, n.Mounts())
}

func TestMount_RelativeSourceResolved(t *testing.T) {
	n, _, _ := newTestNode(t, true)
	target := filepath.Join(t.TempDir(), "x")

	n.Mount("some/dir", target)
	mounts := n.Mounts()
	require.Len(t, mounts, 1)
	assert.True(t, filepath.IsAbs(mounts[0].Source))
}

func TestUmount_ForgetsMount(t *testing.T) {
	n, runner, _ := newTestNode(t, true)
	a := filepath.Join(t.TempDir(), "a")
	b := filepath.Join(t.TempDir(), "b")
	n.Mount(t.TempDir(), a)
	n.Mount(t.TempDir(), b)

	require.NoError(t, n.Umount(a))
	mounts := n.Mounts()
	require.Len(t, mounts, 1)
	assert.Equal(t, b, mounts[0].Target)

	runner.fail = func(args []string) bool { return args[0] == "umount" }
	assert.Error(t, n.Umount(b))
	assert.Len(t, n.Mounts(), 1, "a failed unmount keeps the record")
}

func TestNodeFile_WritesFlattenedPath(t *testing.T) {
	n, _, _ := newTestNode(t, false)

	require.NoError(t, n.NodeFile("/etc/hosts", "127.0.0.1 localhost\n", 0o644))

	hostFile := filepath.Join(n.NodeDir(), "etc", "hosts")
	data, err := os.ReadFile(hostFile)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1 localhost\n", string(data))

	info, err := os.Stat(hostFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestNodeFile_NestedAndModes(t *testing.T) {
	n, _, _ := newTestNode(t, false)

	require.NoError(t, n.NodeFile("/etc/quagga/zebra.conf", "hostname z\n", 0o600))
	require.NoError(t, n.NodeFile("startup.sh", "#!/bin/sh\n", 0o755))

	info, err := os.Stat(filepath.Join(n.NodeDir(), "etc.quagga", "zebra.conf"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	info, err = os.Stat(filepath.Join(n.NodeDir(), "startup.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	// rewriting truncates
	require.NoError(t, n.NodeFile("/etc/quagga/zebra.conf", "x", 0o600))
	data, err := os.ReadFile(filepath.Join(n.NodeDir(), "etc.quagga", "zebra.conf"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestNodeFile_NoBasename(t *testing.T) {
	n, _, _ := newTestNode(t, false)

	assert.ErrorIs(t, n.NodeFile("/etc/", "x", 0o644), ErrInvalidArgument)
	_, err := n.OpenNodeFile("", os.O_RDONLY)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestOpenNodeFile_Read(t *testing.T) {
	n, _, _ := newTestNode(t, false)
	require.NoError(t, n.NodeFile("/var/run/pid", "42", 0o644))

	f, err := n.OpenNodeFile("/var/run/pid", os.O_RDONLY)
	require.NoError(t, err)
	defer f.Close()
	buf := make([]byte, 8)
	k, _ := f.Read(buf)
	assert.Equal(t, "42", string(buf[:k]))
	assert.Equal(t, filepath.Join(n.NodeDir(), "var.run", "pid"), f.Name())
}

package node

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PrivateDir gives the node its own copy of path: a directory under the node
// directory is bind-mounted over it. path must be absolute.
func (n *PhysicalNode) PrivateDir(path string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.privateDirLocked(path)
}

func (n *PhysicalNode) privateDirLocked(path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("%w: path not fully qualified: %s", ErrInvalidArgument, path)
	}
	flat := strings.ReplaceAll(strings.Trim(filepath.Clean(path), "/"), "/", ".")
	if flat == "" {
		return fmt.Errorf("%w: cannot make / private", ErrInvalidArgument)
	}

	hostPath := filepath.Join(n.nodeDir, flat)
	if err := os.Mkdir(hostPath, 0o755); err != nil {
		n.logger.Error().Err(err).Str("dir", hostPath).Msg("error creating directory")
	}

	n.mountLocked(hostPath, path)
	return nil
}

// Mount bind-mounts source at target and records it for shutdown.
// Failures are logged; the mount is recorded only when it succeeded.
func (n *PhysicalNode) Mount(source, target string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mountLocked(source, target)
}

func (n *PhysicalNode) mountLocked(source, target string) {
	abs, err := filepath.Abs(source)
	if err != nil {
		n.logger.Error().Err(err).Str("source", source).Msg("error resolving mount source")
		return
	}
	source = abs
	n.logger.Info().Str("source", source).Str("target", target).Msg("mounting")

	if err := os.MkdirAll(target, 0o755); err != nil {
		n.logger.Error().Err(err).Str("target", target).Msg("error making directories")
		return
	}
	if err := n.Cmd([]string{n.mountBin, "--bind", source, target}, true); err != nil {
		n.logger.Error().Str("source", source).Str("target", target).Msg("mounting failed")
		return
	}
	n.mounts = append(n.mounts, Mount{Source: source, Target: target})
}

// Umount lazily unmounts target and forgets the most recent mount on it.
func (n *PhysicalNode) Umount(target string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.umount(target); err != nil {
		return err
	}
	for i := len(n.mounts) - 1; i >= 0; i-- {
		if n.mounts[i].Target == target {
			n.mounts = append(n.mounts[:i], n.mounts[i+1:]...)
			break
		}
	}
	return nil
}

func (n *PhysicalNode) umount(target string) error {
	n.logger.Info().Str("target", target).Msg("unmounting")
	if err := n.Cmd([]string{n.umountBin, "-l", target}, true); err != nil {
		n.logger.Error().Str("target", target).Msg("unmounting failed")
		return err
	}
	return nil
}

// hostFilename maps a node path to its place under the node directory:
// /etc/quagga/zebra.conf becomes <nodedir>/etc.quagga/zebra.conf.
func (n *PhysicalNode) hostFilename(filename string) (string, string, error) {
	dir, base := filepath.Split(filename)
	if base == "" {
		return "", "", fmt.Errorf("%w: no basename for filename: %s", ErrInvalidArgument, filename)
	}
	dir = strings.TrimPrefix(strings.TrimSuffix(dir, "/"), "/")
	dir = filepath.Join(n.nodeDir, strings.ReplaceAll(dir, "/", "."))
	return dir, filepath.Join(dir, base), nil
}

// OpenNodeFile opens the host file backing filename, creating its directory.
// flag is passed to os.OpenFile; new files start as 0644.
func (n *PhysicalNode) OpenNodeFile(filename string, flag int) (*os.File, error) {
	dir, hostFilename, err := n.hostFilename(filename)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return os.OpenFile(hostFilename, flag, 0o644)
}

// NodeFile writes contents to filename as seen by the node and sets its mode.
func (n *PhysicalNode) NodeFile(filename, contents string, mode uint32) error {
	f, err := n.OpenNodeFile(filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteString(contents); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.Name(), err)
	}
	if err := f.Chmod(os.FileMode(mode)); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", f.Name(), err)
	}
	n.logger.Info().Str("file", f.Name()).Str("mode", fmt.Sprintf("0%o", mode)).Msg("created nodefile")
	return nil
}

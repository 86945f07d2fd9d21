package services

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"Pnode/api"
	"Pnode/pkg/node"
	"Pnode/pkg/util"
)

const (
	StartupScript = "startup.sh"
	StartupLog    = "startup.log"
)

// Manager keeps the services configured for each node and boots them with a
// single generated startup script.
type Manager struct {
	mu       sync.Mutex
	services map[int][]api.Service
	logger   util.Logger
}

func NewManager() *Manager {
	return &Manager{
		services: make(map[int][]api.Service),
		logger:   util.GetLogger("services"),
	}
}

// SetNodeServices replaces the services of node objID.
func (m *Manager) SetNodeServices(objID int, services []api.Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[objID] = append([]api.Service(nil), services...)
}

// NodeServices returns the services of node objID ordered by start index.
// Services sharing an index keep their configured order.
func (m *Manager) NodeServices(objID int) []api.Service {
	m.mu.Lock()
	out := append([]api.Service(nil), m.services[objID]...)
	m.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].StartIndex < out[j].StartIndex })
	return out
}

// StartupScript renders the script that starts services in order.
func (m *Manager) StartupScript(objID int) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("# auto-generated by Startup\n\n")
	fmt.Fprintf(&b, "exec > %s 2>&1\n\n", StartupLog)
	for _, svc := range m.NodeServices(objID) {
		if len(svc.Startup) == 0 {
			continue
		}
		fmt.Fprintf(&b, "# %s\n", svc.Name)
		for _, line := range svc.Startup {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// BootNodeServices writes the startup script into the node directory and runs
// it in the node's shell.
func (m *Manager) BootNodeServices(n node.ServiceNode) error {
	script := m.StartupScript(n.ObjID())
	if err := n.NodeFile(StartupScript, script, 0o755); err != nil {
		return fmt.Errorf("failed to write %s for %s: %w", StartupScript, n.Name(), err)
	}
	if err := n.ShCmd(". ./" + StartupScript); err != nil {
		return fmt.Errorf("failed to boot services on %s: %w", n.Name(), err)
	}
	m.logger.Info().Str("node", n.Name()).Msg("services booted")
	return nil
}

// ValidateNodeServices runs every validate command and fails on the first
// non-zero exit status.
func (m *Manager) ValidateNodeServices(n node.ServiceNode) error {
	for _, svc := range m.NodeServices(n.ObjID()) {
		for _, check := range svc.Validate {
			status, out, err := n.ShCmdResult(check)
			if err != nil {
				return fmt.Errorf("failed to validate %s on %s: %w", svc.Name, n.Name(), err)
			}
			if status != 0 {
				m.logger.Warn().Str("node", n.Name()).Str("service", svc.Name).Bytes("output", out).Msg("validation failed")
				return fmt.Errorf("service %s on %s: %q exited with status %d", svc.Name, n.Name(), check, status)
			}
		}
	}
	return nil
}

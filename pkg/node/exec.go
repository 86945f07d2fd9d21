package node

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Runner executes OS commands with dir as the working directory.
type Runner interface {
	// Run waits for the command and discards its output.
	Run(dir string, args []string) error
	// Start launches the command and returns without waiting.
	Start(dir string, args []string) error
	// Output waits for the command and returns its exit status and combined stdout/stderr.
	Output(dir string, args []string) (int, []byte, error)
}

const outputWaitDelay = time.Second

// ExecRunner runs commands with os/exec. A non-zero Timeout kills synchronous
// commands that run longer; detached commands are never bounded.
type ExecRunner struct {
	Timeout time.Duration
}

func (r ExecRunner) commandContext() (context.Context, context.CancelFunc) {
	if r.Timeout > 0 {
		return context.WithTimeout(context.Background(), r.Timeout)
	}
	return context.WithCancel(context.Background())
}

func (r ExecRunner) Run(dir string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: empty command", ErrInvalidArgument)
	}
	ctx, cancel := r.commandContext()
	defer cancel()

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir
	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("command %s: %w", args[0], ctxErr)
	}
	return err
}

func (r ExecRunner) Start(dir string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: empty command", ErrInvalidArgument)
	}
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = dir
	if err := cmd.Start(); err != nil {
		return err
	}
	// reap the child so it does not linger as a zombie
	go func() { _ = cmd.Wait() }()
	return nil
}

func (r ExecRunner) Output(dir string, args []string) (int, []byte, error) {
	if len(args) == 0 {
		return -1, nil, fmt.Errorf("%w: empty command", ErrInvalidArgument)
	}
	ctx, cancel := r.commandContext()
	defer cancel()

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir
	// children of a killed command may hold the output pipe open
	cmd.WaitDelay = outputWaitDelay
	out, err := cmd.CombinedOutput()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, out, fmt.Errorf("command %s: %w", args[0], ctxErr)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), out, nil
		}
		return -1, out, err
	}
	return 0, out, nil
}

// Cmd runs args in the node directory, waiting for it when wait is set.
// Failures are logged and returned; callers decide whether they matter.
func (n *PhysicalNode) Cmd(args []string, wait bool) error {
	var err error
	if wait {
		err = n.runner.Run(n.nodeDir, args)
	} else {
		err = n.runner.Start(n.nodeDir, args)
	}
	if err != nil {
		n.logger.Error().Err(err).Strs("args", args).Msg("command failed")
		return fmt.Errorf("command %v: %w", args, err)
	}
	return nil
}

// CmdResult runs args in the node directory and returns its exit status and combined output.
func (n *PhysicalNode) CmdResult(args []string) (int, []byte, error) {
	status, out, err := n.runner.Output(n.nodeDir, args)
	if err != nil {
		n.logger.Error().Err(err).Strs("args", args).Msg("command failed")
		return status, out, fmt.Errorf("command %v: %w", args, err)
	}
	return status, out, nil
}

// ShCmd runs cmdstr through the configured shell and waits for it.
func (n *PhysicalNode) ShCmd(cmdstr string) error {
	return n.Cmd([]string{n.shell, "-c", cmdstr}, true)
}

// ShCmdResult runs cmdstr through the configured shell and returns its exit
// status and combined output.
func (n *PhysicalNode) ShCmdResult(cmdstr string) (int, []byte, error) {
	return n.CmdResult([]string{n.shell, "-c", cmdstr})
}

// TermCmdString returns the shell for a terminal on this node. The broker wraps
// it with whatever remote access the physical host needs.
func (n *PhysicalNode) TermCmdString() string {
	return n.shell
}

package binpack

import (
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// ProcessHandle tracks one launched job command.
type ProcessHandle interface {
	// Wait blocks until the command finishes and returns its error, if any.
	Wait() error
}

// Launcher starts a job command on a specific node of the allocation the
// process already holds. Implementations must not block in LaunchOnNode
// beyond starting the process.
type Launcher interface {
	LaunchOnNode(ctx context.Context, node string, command string) (ProcessHandle, error)
}

type cmdHandle struct {
	cmd *exec.Cmd
}

func (h *cmdHandle) Wait() error {
	return errors.WithStack(h.cmd.Wait())
}

// LocalLauncher runs commands directly on the current node through bash. It
// serves single-node allocations and the thread-pool site.
type LocalLauncher struct{}

func (l *LocalLauncher) LaunchOnNode(ctx context.Context, node string, command string) (ProcessHandle, error) {
	cmd := exec.CommandContext(ctx, "/bin/bash", "-c", command)
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "could not start job command on node %s", node)
	}
	return &cmdHandle{cmd: cmd}, nil
}

// SrunLauncher places commands on a named node of a multi-node allocation
// through the cluster's node-parallel launcher.
type SrunLauncher struct {
	// Extra srun arguments, e.g. "-K0 -k".
	Overrides string
}

func (l *SrunLauncher) LaunchOnNode(ctx context.Context, node string, command string) (ProcessHandle, error) {
	args := []string{"--nodes=1", "--ntasks=1", "--nodelist=" + node}
	if l.Overrides != "" {
		args = append(args, strings.Fields(l.Overrides)...)
	}
	args = append(args, "/bin/bash", "-c", command)
	cmd := exec.CommandContext(ctx, "srun", args...)
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "could not srun job command on node %s", node)
	}
	return &cmdHandle{cmd: cmd}, nil
}

// Package batch holds concrete clients for batch scheduling systems. The
// scaling layer only sees the client interface; this package supplies the
// production implementation that shells out to the scheduler's tools.
package batch

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/hpcdispatch/internal/dispatch/directive"
	"github.com/G-Research/hpcdispatch/internal/dispatch/scaling"
)

const commandTimeout = 2 * time.Minute

// SlurmClient submits allocations through sbatch and tracks them through
// squeue. One client serves all executors of a workflow.
type SlurmClient struct {
	// Directory submission scripts are written to. Scripts are kept after
	// submission for postmortem inspection.
	ScriptDir string
	// Command each worker runs inside the allocation, after the rendered
	// worker init. Empty means the allocation idles until the runtime
	// attaches work to it.
	WorkerCommand string
}

func (c *SlurmClient) SubmitAllocation(directives *directive.Directives) (scaling.AllocationHandle, error) {
	path, err := c.writeScript(directives)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, "sbatch", "--parsable", path).Output()
	if err != nil {
		return "", errors.Wrapf(err, "sbatch failed for %s", path)
	}

	// --parsable prints "jobid" or "jobid;cluster".
	id, _, _ := strings.Cut(strings.TrimSpace(string(out)), ";")
	if id == "" {
		return "", errors.Errorf("sbatch returned no job id for %s", path)
	}
	log.Infof("submitted batch allocation %s (%s)", id, path)
	return scaling.AllocationHandle(id), nil
}

func (c *SlurmClient) AllocationStatus(handle scaling.AllocationHandle) (scaling.BlockState, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, "squeue", "--noheader", "--format=%T", "--job", string(handle)).Output()
	if err != nil {
		return "", errors.Wrapf(err, "squeue failed for allocation %s", handle)
	}
	// squeue forgets jobs shortly after they finish; an empty answer means
	// the allocation has left the queue one way or another.
	state := strings.TrimSpace(string(out))
	if state == "" {
		return scaling.BlockCompleted, nil
	}
	return translateState(state), nil
}

func (c *SlurmClient) writeScript(directives *directive.Directives) (string, error) {
	if err := os.MkdirAll(c.ScriptDir, 0o755); err != nil {
		return "", errors.WithStack(err)
	}
	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	b.WriteString(directives.Script())
	if directives.WorkerInit != "" {
		b.WriteString(directives.WorkerInit)
		b.WriteString("\n")
	}
	if c.WorkerCommand != "" {
		b.WriteString(c.WorkerCommand)
		b.WriteString("\n")
	}
	path := filepath.Join(c.ScriptDir, fmt.Sprintf("%s-%d.sh", directives.JobName, time.Now().UnixNano()))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", errors.WithStack(err)
	}
	return path, nil
}

func translateState(state string) scaling.BlockState {
	switch state {
	case "PENDING", "CONFIGURING", "REQUEUED":
		return scaling.BlockQueued
	case "RUNNING", "COMPLETING":
		return scaling.BlockRunning
	case "COMPLETED":
		return scaling.BlockCompleted
	default:
		// CANCELLED, FAILED, TIMEOUT, NODE_FAIL, OUT_OF_MEMORY and friends.
		return scaling.BlockFailed
	}
}

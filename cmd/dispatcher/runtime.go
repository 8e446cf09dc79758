package main

import (
	"context"
	"os/exec"

	log "github.com/sirupsen/logrus"

	"github.com/G-Research/hpcdispatch/internal/dispatch"
	"github.com/G-Research/hpcdispatch/internal/dispatch/executor"
	"github.com/G-Research/hpcdispatch/pkg/api"
)

// runtimeFromEnvironment returns the workflow runtime the standalone daemon
// uses. Bin-packed executors are served directly by the dispatch service; for
// batch-backed executors the daemon keeps allocations warm and runs any job
// handed to it on the submit host. Embedding runtimes replace this with
// execution inside the allocations.
func runtimeFromEnvironment() dispatch.Runtime {
	return &shellRuntime{}
}

type shellRuntime struct{}

func (r *shellRuntime) DefineExecutor(descriptor executor.Descriptor) error {
	log.Infof("executor %s (%s), up to %d block(s)", descriptor.Name, descriptor.Kind, descriptor.Scaling.MaxBlocks)
	return nil
}

func (r *shellRuntime) SubmitJob(executorName string, job *api.Job, command string) (<-chan error, error) {
	cmd := exec.CommandContext(context.Background(), "bash", "-c", command)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()
	log.Infof("job %s started on executor %s", job.Name, executorName)
	return done, nil
}

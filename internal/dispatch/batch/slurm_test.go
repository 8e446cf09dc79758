package batch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/G-Research/hpcdispatch/internal/dispatch/directive"
	"github.com/G-Research/hpcdispatch/internal/dispatch/scaling"
)

func TestTranslateState(t *testing.T) {
	assert.Equal(t, scaling.BlockQueued, translateState("PENDING"))
	assert.Equal(t, scaling.BlockQueued, translateState("CONFIGURING"))
	assert.Equal(t, scaling.BlockRunning, translateState("RUNNING"))
	assert.Equal(t, scaling.BlockRunning, translateState("COMPLETING"))
	assert.Equal(t, scaling.BlockCompleted, translateState("COMPLETED"))
	assert.Equal(t, scaling.BlockFailed, translateState("FAILED"))
	assert.Equal(t, scaling.BlockFailed, translateState("TIMEOUT"))
	assert.Equal(t, scaling.BlockFailed, translateState("NODE_FAIL"))
}

func TestWriteScript(t *testing.T) {
	dir := t.TempDir()
	client := &SlurmClient{ScriptDir: filepath.Join(dir, "blocks"), WorkerCommand: "run-worker"}

	directives, err := directive.Build(
		directive.Settings{
			Site:          "cluster",
			Scheduler:     directive.SchedulerSlurm,
			JobName:       "pipeline.nightly",
			CommandPrefix: "module load pipeline",
		},
		directive.BlockRequest{Nodes: 1, Walltime: time.Hour},
	)
	assert.NoError(t, err)

	path, err := client.writeScript(directives)
	assert.NoError(t, err)

	content, err := os.ReadFile(path)
	assert.NoError(t, err)
	script := string(content)
	assert.True(t, strings.HasPrefix(script, "#!/bin/bash\n"))
	assert.Contains(t, script, "#SBATCH --job-name=pipeline.nightly\n")
	assert.Contains(t, script, "module load pipeline\n")
	assert.True(t, strings.HasSuffix(script, "run-worker\n"))
}

package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/G-Research/hpcdispatch/internal/dispatch/configuration"
	"github.com/G-Research/hpcdispatch/internal/dispatch/directive"
	"github.com/G-Research/hpcdispatch/internal/dispatch/executor"
	"github.com/G-Research/hpcdispatch/internal/dispatch/scaling"
	"github.com/G-Research/hpcdispatch/internal/dispatch/site"
	"github.com/G-Research/hpcdispatch/pkg/api"
)

type recordingRuntime struct {
	mu        sync.Mutex
	defined   []string
	submitted []string
	commands  []string
}

func (r *recordingRuntime) DefineExecutor(descriptor executor.Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defined = append(r.defined, descriptor.Name)
	return nil
}

func (r *recordingRuntime) SubmitJob(executorName string, job *api.Job, command string) (<-chan error, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted = append(r.submitted, executorName)
	r.commands = append(r.commands, command)
	done := make(chan error, 1)
	done <- nil
	return done, nil
}

type countingBatchClient struct {
	mu          sync.Mutex
	submissions int
}

func (c *countingBatchClient) SubmitAllocation(directives *directive.Directives) (scaling.AllocationHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submissions++
	return scaling.AllocationHandle(fmt.Sprintf("job-%d", c.submissions)), nil
}

func (c *countingBatchClient) AllocationStatus(handle scaling.AllocationHandle) (scaling.BlockState, error) {
	return scaling.BlockRunning, nil
}

func (c *countingBatchClient) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submissions
}

func batchSiteConfig() *configuration.DispatcherConfig {
	return &configuration.DispatcherConfig{
		ComputeSite: "prod",
		Project:     "lsst",
		Sites: map[string]*configuration.SiteConfig{
			"prod": {Kind: "slurm", Nodes: 1, Walltime: time.Hour, MaxBlocks: 2},
		},
	}
}

func newBatchService(t *testing.T) (*Service, *recordingRuntime, *countingBatchClient) {
	config := batchSiteConfig()
	computeSite, err := site.FromConfig(config)
	assert.NoError(t, err)

	runtime := &recordingRuntime{}
	client := &countingBatchClient{}
	service, err := NewService(config, computeSite, runtime, client)
	assert.NoError(t, err)
	return service, runtime, client
}

func TestNewService_RegistersExecutors(t *testing.T) {
	_, runtime, _ := newBatchService(t)
	assert.Equal(t, []string{"prod"}, runtime.defined)
}

func TestNewService_UnknownComputeSite(t *testing.T) {
	config := batchSiteConfig()
	config.ComputeSite = "missing"

	computeSite, err := site.FromConfig(batchSiteConfig())
	assert.NoError(t, err)
	_, err = NewService(config, computeSite, &recordingRuntime{}, &countingBatchClient{})
	assert.Error(t, err)
}

func TestDispatch_SubmitsThroughRuntimeAndScalesUp(t *testing.T) {
	service, runtime, client := newBatchService(t)

	job := api.NewJob("1", "calibrate_1", "calibrate", "pipetask run", "/tmp/submit", api.ResourceSpec{})
	done, err := service.Dispatch(context.Background(), job, nil)
	assert.NoError(t, err)
	assert.NoError(t, <-done)

	assert.Equal(t, []string{"prod"}, runtime.submitted)
	assert.Equal(t, 1, client.count())
}

func TestDispatch_BlockCountIsBounded(t *testing.T) {
	service, runtime, client := newBatchService(t)

	for i := 0; i < 5; i++ {
		job := api.NewJob(fmt.Sprintf("%d", i), fmt.Sprintf("j%d", i), "label", "run", "/tmp/submit", api.ResourceSpec{})
		_, err := service.Dispatch(context.Background(), job, nil)
		assert.NoError(t, err)
	}

	assert.Len(t, runtime.submitted, 5)
	assert.Equal(t, 2, client.count())
}

func TestDispatch_ResolvesPlaceholders(t *testing.T) {
	service, runtime, _ := newBatchService(t)

	job := api.NewJob("1", "j1", "label", "process <FILE:config>", "/tmp/submit", api.ResourceSpec{})
	_, err := service.Dispatch(context.Background(), job, map[string]string{"config": "/repo/butler.yaml"})
	assert.NoError(t, err)

	// The prefix reaches batch workers through the block script, not the
	// job command.
	assert.Equal(t, []string{"process /repo/butler.yaml"}, runtime.commands)
}

func TestDispatch_UnknownFilePlaceholderFails(t *testing.T) {
	service, _, _ := newBatchService(t)

	job := api.NewJob("1", "j1", "label", "process <FILE:mystery>", "/tmp/submit", api.ResourceSpec{})
	_, err := service.Dispatch(context.Background(), job, nil)
	assert.Error(t, err)
}

func TestDispatch_LocalSiteBinPacks(t *testing.T) {
	config := &configuration.DispatcherConfig{
		ComputeSite: "laptop",
		Sites: map[string]*configuration.SiteConfig{
			"laptop": {Kind: "local", Cores: 2},
		},
	}
	computeSite, err := site.FromConfig(config)
	assert.NoError(t, err)

	runtime := &recordingRuntime{}
	service, err := NewService(config, computeSite, runtime, &countingBatchClient{})
	assert.NoError(t, err)

	job := api.NewJob("1", "j1", "label", "true", "/tmp/submit", api.ResourceSpec{Cores: 1})
	done, err := service.Dispatch(context.Background(), job, nil)
	assert.NoError(t, err)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("local job did not finish")
	}
	// The runtime never sees bin-packed jobs.
	assert.Empty(t, runtime.submitted)
}

func TestDispatch_LocalSitePlacesDiskRequests(t *testing.T) {
	disk := 100
	config := &configuration.DispatcherConfig{
		ComputeSite: "laptop",
		Sites: map[string]*configuration.SiteConfig{
			"laptop": {Kind: "local", Cores: 8, DiskPerNodeGB: &disk},
		},
	}
	computeSite, err := site.FromConfig(config)
	assert.NoError(t, err)

	service, err := NewService(config, computeSite, &recordingRuntime{}, &countingBatchClient{})
	assert.NoError(t, err)

	resources := api.ResourceSpec{Cores: 1, Disk: api.MustParseQuantity("1G")}
	job := api.NewJob("1", "j1", "label", "true", "/tmp/submit", resources)
	done, err := service.Dispatch(context.Background(), job, nil)
	assert.NoError(t, err)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("disk-requesting job did not finish")
	}
}

func TestNotifyBacklog_ForwardsToPolicy(t *testing.T) {
	service, _, client := newBatchService(t)

	assert.NoError(t, service.NotifyBacklog("prod", 3))
	assert.Equal(t, 1, client.count())

	// Executors without a scaling policy ignore the signal.
	assert.NoError(t, service.NotifyBacklog("unknown", 3))
}

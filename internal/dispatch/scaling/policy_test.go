package scaling

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/G-Research/hpcdispatch/internal/dispatch/directive"
)

type fakeBatchClient struct {
	mu          sync.Mutex
	submissions int
	failures    int
	states      map[AllocationHandle]BlockState
}

func newFakeBatchClient() *fakeBatchClient {
	return &fakeBatchClient{states: map[AllocationHandle]BlockState{}}
}

func (c *fakeBatchClient) SubmitAllocation(directives *directive.Directives) (AllocationHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submissions++
	if c.failures > 0 {
		c.failures--
		return "", errors.New("sbatch: error: queue is full")
	}
	handle := AllocationHandle(fmt.Sprintf("job-%d", c.submissions))
	c.states[handle] = BlockQueued
	return handle, nil
}

func (c *fakeBatchClient) AllocationStatus(handle AllocationHandle) (BlockState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.states[handle]
	if !ok {
		return "", errors.Errorf("unknown allocation %s", handle)
	}
	return state, nil
}

func (c *fakeBatchClient) setAll(state BlockState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for handle := range c.states {
		c.states[handle] = state
	}
}

func (c *fakeBatchClient) submissionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submissions
}

func batchSettings() directive.Settings {
	return directive.Settings{Site: "cluster", Scheduler: directive.SchedulerSlurm, JobName: "pipeline"}
}

func blockRequest() directive.BlockRequest {
	return directive.BlockRequest{Nodes: 1, Walltime: time.Hour}
}

func newTestPolicy(t *testing.T, settings Settings, client BatchClient) *Policy {
	policy, err := NewPolicy("small", settings, batchSettings(), blockRequest(), client)
	assert.NoError(t, err)
	return policy
}

func TestNewPolicy_RejectsBadLimits(t *testing.T) {
	client := newFakeBatchClient()

	_, err := NewPolicy("x", Settings{MaxBlocks: 0}, batchSettings(), blockRequest(), client)
	assert.Error(t, err)

	_, err = NewPolicy("x", Settings{MaxBlocks: 1, InitBlocks: 2}, batchSettings(), blockRequest(), client)
	assert.Error(t, err)
}

func TestNewPolicy_SurfacesDirectiveErrorsBeforeAnyJobRuns(t *testing.T) {
	client := newFakeBatchClient()
	request := directive.BlockRequest{Nodes: 1} // no walltime

	_, err := NewPolicy("x", Settings{MaxBlocks: 1}, batchSettings(), request, client)
	assert.Error(t, err)
	var missing *directive.ErrMissingField
	assert.ErrorAs(t, err, &missing)
	assert.Equal(t, 0, client.submissionCount())
}

func TestNewPolicy_SubmitsInitBlocks(t *testing.T) {
	client := newFakeBatchClient()
	policy := newTestPolicy(t, Settings{MaxBlocks: 4, InitBlocks: 2}, client)

	assert.Equal(t, 2, client.submissionCount())
	assert.Len(t, policy.ActiveBlocks(), 2)
	assert.Equal(t, StateScaling, policy.State())
}

func TestNotifyBacklog_GrowsOneBlockAtATime(t *testing.T) {
	client := newFakeBatchClient()
	policy := newTestPolicy(t, Settings{MaxBlocks: 2}, client)
	assert.Equal(t, StateIdle, policy.State())

	block, err := policy.NotifyBacklog(10)
	assert.NoError(t, err)
	assert.NotNil(t, block)
	assert.Len(t, policy.ActiveBlocks(), 1)

	block, err = policy.NotifyBacklog(10)
	assert.NoError(t, err)
	assert.NotNil(t, block)
	assert.Len(t, policy.ActiveBlocks(), 2)
	assert.Equal(t, StateSaturated, policy.State())
}

func TestNotifyBacklog_NeverExceedsMaxBlocks(t *testing.T) {
	client := newFakeBatchClient()
	policy := newTestPolicy(t, Settings{MaxBlocks: 2}, client)

	for i := 0; i < 10; i++ {
		_, err := policy.NotifyBacklog(1)
		assert.NoError(t, err)
	}
	assert.Len(t, policy.ActiveBlocks(), 2)
	assert.Equal(t, 2, client.submissionCount())
}

func TestNotifyBacklog_SingleBlockForSeveralJobs(t *testing.T) {
	client := newFakeBatchClient()
	policy := newTestPolicy(t, Settings{MaxBlocks: 1}, client)

	_, err := policy.NotifyBacklog(1)
	assert.NoError(t, err)
	_, err = policy.NotifyBacklog(1)
	assert.NoError(t, err)

	assert.Len(t, policy.ActiveBlocks(), 1)
	assert.Equal(t, 1, client.submissionCount())
}

func TestNotifyBacklog_EmptyBacklogIsANoop(t *testing.T) {
	client := newFakeBatchClient()
	policy := newTestPolicy(t, Settings{MaxBlocks: 2}, client)

	block, err := policy.NotifyBacklog(0)
	assert.NoError(t, err)
	assert.Nil(t, block)
	assert.Equal(t, 0, client.submissionCount())
}

func TestNotifyBacklog_ConcurrentArrivalsRespectMaxBlocks(t *testing.T) {
	client := newFakeBatchClient()
	policy := newTestPolicy(t, Settings{MaxBlocks: 3}, client)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := policy.NotifyBacklog(1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, policy.ActiveBlocks(), 3)
	assert.Equal(t, 3, client.submissionCount())
}

func TestRequestBlock_RetriesTransientFailures(t *testing.T) {
	client := newFakeBatchClient()
	client.failures = 2
	policy := newTestPolicy(t, Settings{MaxBlocks: 1, SubmitRetries: 3}, client)

	block, err := policy.NotifyBacklog(1)
	assert.NoError(t, err)
	assert.NotNil(t, block)
	assert.Equal(t, 3, client.submissionCount())
}

func TestRequestBlock_ExhaustedRetriesAreFatal(t *testing.T) {
	client := newFakeBatchClient()
	client.failures = 100
	policy := newTestPolicy(t, Settings{MaxBlocks: 1, SubmitRetries: 2}, client)

	_, err := policy.NotifyBacklog(1)
	assert.Error(t, err)
	var failed *ErrAllocationFailed
	assert.ErrorAs(t, err, &failed)
	assert.Equal(t, "small", failed.Executor)
	assert.Equal(t, uint(2), failed.Attempts)

	// The reserved slot is released, so a later backlog can try again.
	assert.Len(t, policy.ActiveBlocks(), 0)
	assert.Equal(t, StateIdle, policy.State())
}

func TestRefresh_UpdatesBlockStates(t *testing.T) {
	client := newFakeBatchClient()
	policy := newTestPolicy(t, Settings{MaxBlocks: 2, InitBlocks: 2}, client)

	client.setAll(BlockRunning)
	policy.Refresh()
	for _, b := range policy.ActiveBlocks() {
		assert.Equal(t, BlockRunning, b.State)
	}

	client.setAll(BlockCompleted)
	policy.Refresh()
	assert.Len(t, policy.ActiveBlocks(), 0)
	assert.Equal(t, StateIdle, policy.State())
}

func TestRefresh_RestoresMinBlocksFloor(t *testing.T) {
	client := newFakeBatchClient()
	policy := newTestPolicy(t, Settings{MaxBlocks: 3, InitBlocks: 1, MinBlocks: 1}, client)
	assert.Len(t, policy.ActiveBlocks(), 1)

	client.setAll(BlockFailed)
	policy.Refresh()

	blocks := policy.ActiveBlocks()
	assert.Len(t, blocks, 1)
	assert.Equal(t, BlockQueued, blocks[0].State)
	assert.Equal(t, 2, client.submissionCount())
}

package scaling

import (
	"sync"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/renstrom/shortuuid"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/hpcdispatch/internal/common/util"
	"github.com/G-Research/hpcdispatch/internal/dispatch/directive"
)

// BatchClient is the external batch-system client. Submission happens outside
// any policy lock, so a slow batch system cannot stall capacity accounting.
type BatchClient interface {
	SubmitAllocation(directives *directive.Directives) (AllocationHandle, error)
	AllocationStatus(handle AllocationHandle) (BlockState, error)
}

// Settings bounds the elastic scaling of one executor. All values are fixed
// at construction: block count is dynamic, block shape is not, because a batch
// allocation's shape cannot change after submission.
type Settings struct {
	MaxBlocks int
	// Blocks submitted eagerly at startup, before any backlog.
	InitBlocks int
	// Floor maintained on refresh once blocks start expiring.
	MinBlocks int
	// Submission attempts against the batch system before an allocation
	// failure becomes fatal.
	SubmitRetries uint
}

// State is the observable condition of the policy for one executor.
type State string

const (
	StateIdle      State = "idle"
	StateScaling   State = "scaling"
	StateSaturated State = "saturated"
)

var activeBlocksGauge = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "hpcdispatch_active_blocks",
		Help: "Number of batch allocations currently queued or running per executor",
	},
	[]string{"executor"},
)

// ErrAllocationFailed is returned once every submission attempt for a block
// has been exhausted. It is fatal for the workflow: if no block can ever be
// obtained, no job of this executor can run.
type ErrAllocationFailed struct {
	Executor string
	Attempts uint
	Cause    error
}

func (err *ErrAllocationFailed) Error() string {
	return errors.Wrapf(err.Cause, "could not obtain an allocation for executor %s after %d attempts", err.Executor, err.Attempts).Error()
}

// Policy owns the bounded set of blocks behind one executor. Mutable state is
// guarded by a single mutex; the batch client is only ever called with the
// mutex released.
type Policy struct {
	executor string
	settings Settings

	directiveSettings directive.Settings
	request           directive.BlockRequest

	client BatchClient
	clock  util.Clock

	mu     sync.Mutex
	blocks []*Block
}

func NewPolicy(
	executor string,
	settings Settings,
	directiveSettings directive.Settings,
	request directive.BlockRequest,
	client BatchClient,
) (*Policy, error) {
	if settings.MaxBlocks < 1 {
		return nil, errors.Errorf("executor %s: maxBlocks must be at least 1", executor)
	}
	if settings.InitBlocks > settings.MaxBlocks {
		return nil, errors.Errorf("executor %s: initBlocks %d exceeds maxBlocks %d", executor, settings.InitBlocks, settings.MaxBlocks)
	}
	// Validate the directive configuration up front so a missing required
	// field surfaces before any job runs, not on first scale-up.
	if _, err := directive.Build(directiveSettings, request); err != nil {
		return nil, err
	}
	p := &Policy{
		executor:          executor,
		settings:          settings,
		directiveSettings: directiveSettings,
		request:           request,
		client:            client,
		clock:             &util.DefaultClock{},
	}
	for i := 0; i < settings.InitBlocks; i++ {
		if _, err := p.requestBlock(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// NotifyBacklog is the scale-up trigger: called when queued work is observed
// with no idle worker capacity. It requests at most one additional block, and
// only while the active count is below the maximum; at the maximum the batch
// scheduler's own queue absorbs the backlog. The returned block is nil when no
// block was requested.
func (p *Policy) NotifyBacklog(backlog int) (*Block, error) {
	if backlog <= 0 {
		return nil, nil
	}
	return p.requestBlock()
}

func (p *Policy) requestBlock() (*Block, error) {
	p.mu.Lock()
	if p.activeCount() >= p.settings.MaxBlocks {
		p.mu.Unlock()
		return nil, nil
	}
	block := &Block{
		Id:       shortuuid.New(),
		Nodes:    p.request.Nodes,
		Walltime: p.request.Walltime,
		State:    BlockQueued,
		Created:  p.clock.Now(),
	}
	// Reserve the slot before submitting so concurrent arrivals cannot
	// overshoot MaxBlocks while the batch client is slow.
	p.blocks = append(p.blocks, block)
	count := p.activeCount()
	p.mu.Unlock()
	activeBlocksGauge.WithLabelValues(p.executor).Set(float64(count))

	directives, err := directive.Build(p.directiveSettings, p.request)
	if err != nil {
		p.dropBlock(block)
		return nil, err
	}

	var handle AllocationHandle
	attempts := p.settings.SubmitRetries
	if attempts == 0 {
		attempts = 1
	}
	err = retry.Do(
		func() error {
			var submitErr error
			handle, submitErr = p.client.SubmitAllocation(directives)
			return submitErr
		},
		retry.Attempts(attempts),
		retry.OnRetry(func(n uint, err error) {
			log.Warnf("allocation request %s for executor %s failed (attempt %d): %v", block.Id, p.executor, n+1, err)
		}),
	)
	if err != nil {
		p.dropBlock(block)
		return nil, &ErrAllocationFailed{Executor: p.executor, Attempts: attempts, Cause: err}
	}

	p.mu.Lock()
	block.Handle = handle
	p.mu.Unlock()
	log.Infof("requested block %s (%d nodes, %s walltime) for executor %s", block.Id, block.Nodes, block.Walltime, p.executor)
	return block, nil
}

func (p *Policy) dropBlock(block *Block) {
	p.mu.Lock()
	for i, b := range p.blocks {
		if b == block {
			p.blocks = append(p.blocks[:i], p.blocks[i+1:]...)
			break
		}
	}
	count := p.activeCount()
	p.mu.Unlock()
	activeBlocksGauge.WithLabelValues(p.executor).Set(float64(count))
}

// Refresh polls the batch scheduler for the status of every active block and
// tops the pool back up to MinBlocks when expired blocks have dropped it
// below the floor. Blocks are never cancelled here; they end through their
// own wall-clock expiry or workflow teardown.
func (p *Policy) Refresh() {
	p.mu.Lock()
	active := make([]*Block, 0, len(p.blocks))
	for _, b := range p.blocks {
		if b.active() && b.Handle != "" {
			active = append(active, b)
		}
	}
	p.mu.Unlock()

	for _, b := range active {
		state, err := p.client.AllocationStatus(b.Handle)
		if err != nil {
			log.Errorf("could not fetch status of block %s: %v", b.Id, err)
			continue
		}
		p.mu.Lock()
		b.State = state
		p.mu.Unlock()
	}

	p.mu.Lock()
	deficit := p.settings.MinBlocks - p.activeCount()
	count := p.activeCount()
	p.mu.Unlock()
	activeBlocksGauge.WithLabelValues(p.executor).Set(float64(count))

	for i := 0; i < deficit; i++ {
		if _, err := p.requestBlock(); err != nil {
			log.Errorf("could not restore block floor for executor %s: %v", p.executor, err)
			return
		}
	}
}

// ActiveBlocks returns the blocks currently queued or running.
func (p *Policy) ActiveBlocks() []*Block {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := make([]*Block, 0, len(p.blocks))
	for _, b := range p.blocks {
		if b.active() {
			result = append(result, b)
		}
	}
	return result
}

// State reports idle, scaling or saturated from the active block count.
func (p *Policy) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch count := p.activeCount(); {
	case count == 0:
		return StateIdle
	case count < p.settings.MaxBlocks:
		return StateScaling
	default:
		return StateSaturated
	}
}

// activeCount must be called with the mutex held.
func (p *Policy) activeCount() int {
	count := 0
	for _, b := range p.blocks {
		if b.active() {
			count++
		}
	}
	return count
}

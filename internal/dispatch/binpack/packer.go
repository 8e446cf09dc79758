// Package binpack schedules many small jobs onto the residual core, memory
// and disk capacity of nodes inside an allocation the process already holds,
// with no further round-trip through the batch scheduler. Resource matching
// here is per job, not per executor tier.
package binpack

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/hpcdispatch/internal/common"
	"github.com/G-Research/hpcdispatch/internal/common/util"
	"github.com/G-Research/hpcdispatch/pkg/api"
)

var (
	placedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hpcdispatch_binpack_resident_jobs",
		Help: "Jobs currently resident on a node of the local allocation",
	})
	queuedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hpcdispatch_binpack_queued_jobs",
		Help: "Jobs waiting for free capacity in the local allocation",
	})
)

// NodeCapacity declares the schedulable capacity of one allocation node.
type NodeCapacity struct {
	Name     string
	Capacity common.ComputeResources
}

type node struct {
	name     string
	capacity common.ComputeResourcesFloat
	free     common.ComputeResourcesFloat
}

// workItem is a job tracked while queued or resident on a node. Residency is
// exclusive: the item's request is subtracted from its node's free capacity
// for as long as it runs. The submit context travels with the item so that a
// job launched after queueing still runs under its own caller's context.
type workItem struct {
	ctx      context.Context
	job      *api.Job
	command  string
	request  common.ComputeResourcesFloat
	node     *node
	enqueued time.Time
	seq      uint64
	done     chan error
}

// Packer owns the per-node capacity accounting of one allocation. All
// capacity bookkeeping happens inside a single critical section; launching
// and waiting on processes happens outside it.
type Packer struct {
	launcher Launcher
	clock    util.Clock

	mu      sync.Mutex
	nodes   []*node
	waiters []*workItem
	seq     uint64

	unplaceableWarned map[string]bool
}

func NewPacker(launcher Launcher, capacities []NodeCapacity) (*Packer, error) {
	if len(capacities) == 0 {
		return nil, errors.New("bin packer needs at least one node")
	}
	nodes := make([]*node, 0, len(capacities))
	for _, c := range capacities {
		if c.Name == "" {
			return nil, errors.New("node with empty name")
		}
		capacity := c.Capacity.AsFloat()
		if !capacity.IsValid() {
			return nil, errors.Errorf("node %s declares negative capacity %s", c.Name, c.Capacity)
		}
		nodes = append(nodes, &node{
			name:     c.Name,
			capacity: capacity,
			free:     capacity.DeepCopy(),
		})
	}
	return &Packer{
		launcher:          launcher,
		clock:             &util.DefaultClock{},
		nodes:             nodes,
		unplaceableWarned: map[string]bool{},
	}, nil
}

// Submit places the job on the first node with sufficient free capacity, or
// queues it until capacity is released. The returned channel receives the
// job's completion error (nil on success) exactly once.
func (p *Packer) Submit(ctx context.Context, job *api.Job, command string) <-chan error {
	item := &workItem{
		ctx:      ctx,
		job:      job,
		command:  command,
		request:  requestOf(job.Resources),
		enqueued: p.clock.Now(),
		done:     make(chan error, 1),
	}

	p.mu.Lock()
	item.seq = p.seq
	p.seq++
	target := p.tryPlace(item)
	if target == nil {
		if !p.fitsAnyNodeTotal(item) && !p.unplaceableWarned[job.Name] {
			p.unplaceableWarned[job.Name] = true
			log.Warnf("job %s requests more than any node's total capacity; it will wait indefinitely", job.Name)
		}
		p.waiters = append(p.waiters, item)
		queuedGauge.Set(float64(len(p.waiters)))
	}
	p.mu.Unlock()

	if target != nil {
		p.launch(item)
	}
	return item.done
}

// QueuedJobs returns the number of jobs waiting for capacity.
func (p *Packer) QueuedJobs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}

// Unplaceable lists queued jobs whose request exceeds every node's total
// capacity. They can never run on this allocation.
func (p *Packer) Unplaceable() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var result []string
	for _, item := range p.waiters {
		if !p.fitsAnyNodeTotal(item) {
			result = append(result, item.job.Name)
		}
	}
	return result
}

// FreeCapacity reports the current free capacity of each node by name.
func (p *Packer) FreeCapacity() map[string]common.ComputeResourcesFloat {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := make(map[string]common.ComputeResourcesFloat, len(p.nodes))
	for _, n := range p.nodes {
		result[n.name] = n.free.DeepCopy()
	}
	return result
}

// tryPlace commits the item's request against the first node that fits, in
// fixed node order. Must be called with the mutex held. The subtraction is
// re-checked before the reservation stands: free capacity must never go
// negative, so a would-be violation rolls back and the item stays queued.
func (p *Packer) tryPlace(item *workItem) *node {
	for _, n := range p.nodes {
		if n.free.IsLessThan(item.request) {
			continue
		}
		n.free.Sub(item.request)
		if !n.free.IsValid() {
			n.free.Add(item.request)
			log.Errorf("capacity accounting for node %s would have gone negative placing job %s; requeueing", n.name, item.job.Name)
			continue
		}
		item.node = n
		placedGauge.Inc()
		return n
	}
	return nil
}

// launch starts the job on its reserved node, under the context it was
// submitted with, and releases the reservation when the process finishes.
// Never called with the mutex held.
func (p *Packer) launch(item *workItem) {
	handle, err := p.launcher.LaunchOnNode(item.ctx, item.node.name, item.command)
	if err != nil {
		p.finish(item, err)
		return
	}
	go func() {
		p.finish(item, handle.Wait())
	}()
}

// finish releases the item's capacity atomically with its completion, then
// drains any waiters that now fit.
func (p *Packer) finish(item *workItem, result error) {
	p.mu.Lock()
	item.node.free.Add(item.request)
	item.node.free = item.node.free.LimitWith(item.node.capacity)
	item.node = nil
	placedGauge.Dec()
	launchable := p.drainWaiters()
	queuedGauge.Set(float64(len(p.waiters)))
	p.mu.Unlock()

	item.done <- result
	for _, next := range launchable {
		p.launch(next)
	}
}

// drainWaiters places as many queued items as now fit and returns them for
// launching. Waiters are visited oldest first; a priority hint only reorders
// waiters that arrived within the same second. Must be called with the mutex
// held.
func (p *Packer) drainWaiters() []*workItem {
	sort.SliceStable(p.waiters, func(i, j int) bool {
		a, b := p.waiters[i], p.waiters[j]
		ageA, ageB := a.enqueued.Unix(), b.enqueued.Unix()
		if ageA != ageB {
			return ageA < ageB
		}
		if a.job.Resources.Priority != b.job.Resources.Priority {
			return a.job.Resources.Priority > b.job.Resources.Priority
		}
		return a.seq < b.seq
	})

	var launchable []*workItem
	remaining := p.waiters[:0]
	for _, item := range p.waiters {
		if p.tryPlace(item) != nil {
			launchable = append(launchable, item)
		} else {
			remaining = append(remaining, item)
		}
	}
	p.waiters = remaining
	return launchable
}

// fitsAnyNodeTotal must be called with the mutex held.
func (p *Packer) fitsAnyNodeTotal(item *workItem) bool {
	for _, n := range p.nodes {
		if !n.capacity.IsLessThan(item.request) {
			return true
		}
	}
	return false
}

func requestOf(spec api.ResourceSpec) common.ComputeResourcesFloat {
	request := common.ComputeResourcesFloat{
		"cpu": float64(spec.Cores),
	}
	if spec.Cores <= 0 {
		request["cpu"] = 1
	}
	if spec.Memory != nil {
		request["memory"] = common.QuantityAsFloat64(*spec.Memory)
	}
	if spec.Disk != nil {
		request["disk"] = common.QuantityAsFloat64(*spec.Disk)
	}
	return request
}

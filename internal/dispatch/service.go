// Package dispatch wires a compute site into the external workflow runtime:
// it registers the site's executors, routes each job to one of them, and
// feeds backlog signals into the scaling policy of batch-backed executors.
package dispatch

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/hpcdispatch/internal/common"
	"github.com/G-Research/hpcdispatch/internal/dispatch/binpack"
	"github.com/G-Research/hpcdispatch/internal/dispatch/configuration"
	"github.com/G-Research/hpcdispatch/internal/dispatch/executor"
	"github.com/G-Research/hpcdispatch/internal/dispatch/monitoring"
	"github.com/G-Research/hpcdispatch/internal/dispatch/scaling"
	"github.com/G-Research/hpcdispatch/internal/dispatch/site"
	"github.com/G-Research/hpcdispatch/pkg/api"
)

// Runtime is the narrow interface to the external workflow-engine runtime.
// It executes job commands, retries them per the executor's retry count, and
// reports completion through the returned channel.
type Runtime interface {
	DefineExecutor(descriptor executor.Descriptor) error
	SubmitJob(executorName string, job *api.Job, command string) (<-chan error, error)
}

// Service is the per-workflow dispatch engine. Created once at workflow
// submission time and used for every job of the workflow.
type Service struct {
	config  *configuration.DispatcherConfig
	siteCfg *configuration.SiteConfig
	site    site.Site
	runtime Runtime

	policies map[string]*scaling.Policy
	packers  map[string]*binpack.Packer

	sampler       *monitoring.Sampler
	commandPrefix string
}

// NewService builds the dispatch engine for the configured compute site:
// registers every executor with the runtime, sets up a scaling policy per
// batch-backed executor and a bin packer per local one, and starts the
// resource monitor when enabled. Configuration problems surface here, before
// any job runs.
func NewService(
	config *configuration.DispatcherConfig,
	computeSite site.Site,
	runtime Runtime,
	batch scaling.BatchClient,
) (*Service, error) {
	siteCfg, ok := config.Site()
	if !ok {
		return nil, errors.Errorf("no configuration for compute site %q", config.ComputeSite)
	}

	descriptors, err := computeSite.Executors()
	if err != nil {
		return nil, err
	}

	s := &Service{
		config:        config,
		siteCfg:       siteCfg,
		site:          computeSite,
		runtime:       runtime,
		policies:      map[string]*scaling.Policy{},
		packers:       map[string]*binpack.Packer{},
		commandPrefix: site.CommandPrefix(siteCfg),
	}

	for _, descriptor := range descriptors {
		switch descriptor.Kind {
		case executor.KindBatch:
			policy, err := scaling.NewPolicy(descriptor.Name, descriptor.Scaling, descriptor.Settings, descriptor.Request, batch)
			if err != nil {
				return nil, err
			}
			s.policies[descriptor.Name] = policy
		case executor.KindLocal, executor.KindAllocation:
			packer, err := buildPacker(descriptor)
			if err != nil {
				return nil, err
			}
			s.packers[descriptor.Name] = packer
		}
		if err := runtime.DefineExecutor(descriptor); err != nil {
			return nil, errors.Wrapf(err, "could not register executor %s", descriptor.Name)
		}
	}

	if siteCfg.MonitorEnable {
		store, err := monitoring.OpenCSVStore(siteCfg.MonitorFilename)
		if err != nil {
			return nil, err
		}
		s.sampler = monitoring.NewSampler(store, &monitoring.ProcessUsageSource{}, siteCfg.MonitorInterval)
	}
	return s, nil
}

// Dispatch routes the job to an executor and submits it. The returned channel
// receives the job's final completion error, after any runtime-side retries.
func (s *Service) Dispatch(ctx context.Context, job *api.Job, filePaths map[string]string) (<-chan error, error) {
	spec := job.Resources.WithDefaults(s.siteDefaults())
	name := s.site.SelectExecutor(spec)

	command, err := job.EvaluateCommand(filePaths)
	if err != nil {
		return nil, err
	}

	if packer, ok := s.packers[name]; ok {
		// Bin-packed jobs have no block script to carry worker init, so the
		// prefix rides on each job command instead.
		if s.commandPrefix != "" {
			command = s.commandPrefix + "\n" + command
		}
		routed := *job
		routed.Resources = spec
		return packer.Submit(ctx, &routed, command), nil
	}

	if policy, ok := s.policies[name]; ok {
		// Every dispatched job counts as backlog; the policy itself bounds
		// the block count and ignores the signal once saturated.
		if _, err := policy.NotifyBacklog(1); err != nil {
			return nil, err
		}
	}
	return s.runtime.SubmitJob(name, job, command)
}

// NotifyBacklog forwards an explicit backlog observation from the runtime to
// the named executor's scaling policy, for runtimes that report queue depth.
func (s *Service) NotifyBacklog(executorName string, backlog int) error {
	policy, ok := s.policies[executorName]
	if !ok {
		return nil
	}
	_, err := policy.NotifyBacklog(backlog)
	return err
}

// RefreshBlocks polls block states for every batch-backed executor.
func (s *Service) RefreshBlocks() {
	for _, policy := range s.policies {
		policy.Refresh()
	}
}

// Sampler exposes the resource monitor hook, nil when monitoring is off.
func (s *Service) Sampler() *monitoring.Sampler {
	return s.sampler
}

// Shutdown stops the monitor. Outstanding blocks are deliberately left to
// expire at their wall-clock limit.
func (s *Service) Shutdown() {
	if s.sampler != nil {
		s.sampler.Stop(s.siteCfg.MonitorInterval)
	}
}

func (s *Service) siteDefaults() api.ResourceSpec {
	defaults := api.ResourceSpec{Cores: 1, Walltime: s.siteCfg.Walltime}
	if s.siteCfg.MemPerNodeGB != nil {
		defaults.Memory = api.MustParseQuantity(fmt.Sprintf("%dG", *s.siteCfg.MemPerNodeGB))
	}
	return defaults
}

func buildPacker(descriptor executor.Descriptor) (*binpack.Packer, error) {
	var nodes []string
	var launcher binpack.Launcher
	if descriptor.Kind == executor.KindAllocation && descriptor.Request.Nodes > 1 {
		allocated, err := site.AllocationNodes()
		if err != nil {
			return nil, err
		}
		nodes = allocated
		launcher = &binpack.SrunLauncher{Overrides: "-K0 -k"}
	} else {
		nodes = []string{"localhost"}
		launcher = &binpack.LocalLauncher{}
	}

	capacities := make([]binpack.NodeCapacity, 0, len(nodes))
	for _, node := range nodes {
		capacity := common.ComputeResources{}
		if descriptor.Request.CoresPerNode != nil {
			capacity["cpu"] = *api.MustParseQuantity(fmt.Sprintf("%d", *descriptor.Request.CoresPerNode))
		}
		if descriptor.Request.MemPerNodeGB != nil {
			capacity["memory"] = *api.MustParseQuantity(fmt.Sprintf("%dG", *descriptor.Request.MemPerNodeGB))
		}
		if descriptor.Request.DiskPerNodeGB != nil {
			capacity["disk"] = *api.MustParseQuantity(fmt.Sprintf("%dG", *descriptor.Request.DiskPerNodeGB))
		}
		if len(capacity) == 0 {
			return nil, errors.Errorf("executor %s: local executors need coresPerNode or cores configured", descriptor.Name)
		}
		capacities = append(capacities, binpack.NodeCapacity{Name: node, Capacity: capacity})
	}

	log.Infof("bin packing executor %s over %d node(s)", descriptor.Name, len(capacities))
	return binpack.NewPacker(launcher, capacities)
}

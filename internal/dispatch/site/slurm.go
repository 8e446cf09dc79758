package site

import (
	"time"

	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/G-Research/hpcdispatch/internal/dispatch/configuration"
	"github.com/G-Research/hpcdispatch/internal/dispatch/directive"
	"github.com/G-Research/hpcdispatch/internal/dispatch/executor"
	"github.com/G-Research/hpcdispatch/internal/dispatch/scaling"
	"github.com/G-Research/hpcdispatch/pkg/api"
)

func init() {
	Register("slurm", newSlurmSite)
	Register("tieredslurm", newTieredSlurmSite)
	Register("torque", newTorqueSite)
}

// newSlurmSite builds a site with a single Slurm-backed executor named after
// the site. Node count and walltime are required; cores and memory per node
// default to whatever the scheduler gives a node.
func newSlurmSite(name string, cfg *configuration.SiteConfig, workflowName string) (Site, error) {
	return newSingleBatchSite(name, cfg, workflowName, directive.SchedulerSlurm)
}

func newTorqueSite(name string, cfg *configuration.SiteConfig, workflowName string) (Site, error) {
	return newSingleBatchSite(name, cfg, workflowName, directive.SchedulerTorque)
}

func newSingleBatchSite(name string, cfg *configuration.SiteConfig, workflowName string, scheduler directive.Scheduler) (Site, error) {
	return &poolSite{
		name: name,
		build: func() (*executor.Pool, error) {
			descriptor := executor.Descriptor{
				Name:     name,
				Kind:     executor.KindBatch,
				Settings: batchSettings(name, cfg, workflowName, scheduler, cfg.Qos, cfg.Partition),
				Request: directive.BlockRequest{
					Nodes:         cfg.Nodes,
					CoresPerNode:  cfg.CoresPerNode,
					MemPerNodeGB:  cfg.MemPerNodeGB,
					DiskPerNodeGB: cfg.DiskPerNodeGB,
					Walltime:      cfg.Walltime,
				},
				Scaling: scalingSettings(cfg, cfg.MaxBlocks),
				Retries: cfg.Retries,
			}
			// Fail on missing required directives now, before any job runs.
			if _, err := directive.Build(descriptor.Settings, descriptor.Request); err != nil {
				return nil, err
			}
			return executor.NewPool(executor.AxisMemory, descriptor)
		},
	}, nil
}

// Tier defaults when a tiered site configures no tiers of its own: workers
// with three levels of available memory, the large tier with a longer
// wall-clock limit.
func defaultTiers() []configuration.TierConfig {
	return []configuration.TierConfig{
		{Name: "small", Memory: api.MustParseQuantity("2G"), Walltime: 10 * time.Hour},
		{Name: "medium", Memory: api.MustParseQuantity("4G"), Walltime: 10 * time.Hour},
		{Name: "large", Memory: api.MustParseQuantity("8G"), Walltime: 40 * time.Hour},
	}
}

// newTieredSlurmSite builds a site with one Slurm-backed executor per tier,
// ordered by increasing memory ceiling. Jobs route to the smallest tier whose
// ceiling covers their request.
func newTieredSlurmSite(name string, cfg *configuration.SiteConfig, workflowName string) (Site, error) {
	return &poolSite{
		name: name,
		build: func() (*executor.Pool, error) {
			tiers := cfg.Tiers
			if len(tiers) == 0 {
				// Synthesized tiers exist after configuration defaulting
				// has run, so they inherit the site-wide values here.
				tiers = defaultTiers()
				for i := range tiers {
					if tiers[i].MaxBlocks == 0 {
						tiers[i].MaxBlocks = cfg.MaxBlocks
					}
					if cfg.Walltime != 0 {
						tiers[i].Walltime = cfg.Walltime
					}
					tiers[i].Qos = cfg.Qos
					tiers[i].Partition = cfg.Partition
				}
			}
			axis, err := executor.ParseAxis(cfg.SelectionAxis)
			if err != nil {
				return nil, err
			}
			descriptors := make([]executor.Descriptor, 0, len(tiers))
			for _, tier := range tiers {
				memPerNode := cfg.MemPerNodeGB
				if memPerNode == nil && tier.Memory != nil {
					// Size the worker nodes to the tier's ceiling when the
					// site does not pin memory per node.
					gb := int(tier.Memory.ScaledValue(resource.Giga))
					if gb > 0 {
						memPerNode = &gb
					}
				}
				descriptor := executor.Descriptor{
					Name: tier.Name,
					Kind: executor.KindBatch,
					Ceiling: api.ResourceSpec{
						Memory:   tier.Memory,
						Cores:    tier.Cores,
						Walltime: tier.Walltime,
					},
					Settings: batchSettings(name, cfg, workflowName, directive.SchedulerSlurm, tier.Qos, tier.Partition),
					Request: directive.BlockRequest{
						Nodes:         cfg.Nodes,
						CoresPerNode:  cfg.CoresPerNode,
						MemPerNodeGB:  memPerNode,
						DiskPerNodeGB: cfg.DiskPerNodeGB,
						Walltime:      tier.Walltime,
					},
					Scaling: scalingSettings(cfg, tier.MaxBlocks),
					Retries: cfg.Retries,
				}
				if _, err := directive.Build(descriptor.Settings, descriptor.Request); err != nil {
					return nil, err
				}
				descriptors = append(descriptors, descriptor)
			}
			return executor.NewPool(axis, descriptors...)
		},
	}, nil
}

func batchSettings(name string, cfg *configuration.SiteConfig, workflowName string, scheduler directive.Scheduler, qos string, partition string) directive.Settings {
	return directive.Settings{
		Site:                 name,
		Scheduler:            scheduler,
		JobName:              workflowName,
		Qos:                  qos,
		Constraint:           cfg.Constraint,
		Partition:            partition,
		Account:              cfg.Account,
		Singleton:            cfg.Singleton,
		SchedulerOptions:     cfg.SchedulerOptions,
		CommandPrefix:        cfg.CommandPrefix,
		ReplicateEnvironment: cfg.Environment,
	}
}

func scalingSettings(cfg *configuration.SiteConfig, maxBlocks int) scaling.Settings {
	return scaling.Settings{
		MaxBlocks:     maxBlocks,
		InitBlocks:    cfg.InitBlocks,
		MinBlocks:     cfg.MinBlocks,
		SubmitRetries: uint(cfg.BlockRetries),
	}
}
